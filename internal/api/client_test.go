package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"dcpinventory-desktop/internal/config"
	"dcpinventory-desktop/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, session.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	store := session.NewMemoryStore()
	client := NewClient(config.APIOptions{
		BaseURL:    srv.URL + "/",
		Timeout:    5 * time.Second,
		RetryCount: 2,
	}, store, nil)
	return client, store
}

func TestClientAuth(t *testing.T) {
	t.Run("Should send the session token as a bearer token", func(t *testing.T) {
		var got string
		client, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"data":[]}`))
		})
		require.NoError(t, store.Set(session.KeyToken, "tok-123"))

		_, err := client.ListDivisions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-123", got)
	})

	t.Run("Should omit the header without a session", func(t *testing.T) {
		var got string
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Get("Authorization")
			_, _ = w.Write([]byte(`{"data":[]}`))
		})

		_, err := client.ListDistricts(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestLogin(t *testing.T) {
	t.Run("Should return the token and user", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/auth/login", r.URL.Path)
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "admin", body["username"])
			_, _ = w.Write([]byte(`{"token":"abc","user":{"name":"Admin"}}`))
		})

		resp, err := client.Login(context.Background(), "admin", "secret")
		require.NoError(t, err)
		assert.Equal(t, "abc", resp.Token)
		assert.JSONEq(t, `{"name":"Admin"}`, string(resp.User))
	})

	t.Run("Should surface rejected credentials", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"invalid credentials"}`))
		})

		_, err := client.Login(context.Background(), "admin", "wrong")
		var serr *StatusError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, http.StatusUnauthorized, serr.StatusCode)
		assert.Contains(t, serr.Body, "invalid credentials")
	})
}

func TestListReference(t *testing.T) {
	t.Run("Should unwrap the data envelope", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/divisions", r.URL.Path)
			_, _ = w.Write([]byte(`{"data":[{"id":7,"name":"Cebu"},{"id":8,"name":"Bohol"}]}`))
		})

		divisions, err := client.ListDivisions(context.Background())
		require.NoError(t, err)
		require.Len(t, divisions, 2)
		assert.Equal(t, int64(7), divisions[0].ID)
		assert.Equal(t, "Bohol", divisions[1].Name)
	})

	t.Run("Should retry reads on server errors", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"Laoag"}]}`))
		})

		districts, err := client.ListDistricts(context.Background())
		require.NoError(t, err)
		assert.Len(t, districts, 1)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	})
}

func TestBulkCreateSchools(t *testing.T) {
	t.Run("Should post the batch once and never retry", func(t *testing.T) {
		var calls int32
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			assert.Equal(t, http.MethodPost, r.Method)
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		})

		_, err := client.BulkCreateSchools(context.Background(), []map[string]any{{"name": "Central"}})
		var serr *StatusError
		require.True(t, errors.As(err, &serr))
		assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
		assert.Equal(t, "upstream down", serr.Body)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	})

	t.Run("Should send the records as a JSON array", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `[{"name":"Central"}]`, string(body))
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"created":1}`))
		})

		body, err := client.BulkCreateSchools(context.Background(), []map[string]any{{"name": "Central"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"created":1}`, string(body))
	})
}

func TestLookupSchool(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/schools/lookup/101":
			_, _ = w.Write([]byte(`{"id":55}`))
		case "/api/schools/lookup/202":
			_, _ = w.Write([]byte(`{"id":0}`))
		case "/api/schools/lookup":
			if r.URL.Query().Get("name") == "Central School" {
				_, _ = w.Write([]byte(`{"id":77}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":null}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	t.Run("Should return the backend id", func(t *testing.T) {
		res, err := client.LookupSchoolByID(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, LookupResult{ID: 55, Status: LookupFound}, res)
	})

	t.Run("Should report the zero answer as ambiguous", func(t *testing.T) {
		res, err := client.LookupSchoolByID(ctx, 202)
		require.NoError(t, err)
		assert.Equal(t, LookupAmbiguous, res.Status)
		assert.Zero(t, res.ID)
	})

	t.Run("Should report a 404 as not found", func(t *testing.T) {
		res, err := client.LookupSchoolByID(ctx, 303)
		require.NoError(t, err)
		assert.Equal(t, LookupNotFound, res.Status)
	})

	t.Run("Should look up by name", func(t *testing.T) {
		res, err := client.LookupSchoolByName(ctx, "Central School")
		require.NoError(t, err)
		assert.Equal(t, int64(77), res.ID)

		res, err = client.LookupSchoolByName(ctx, "Nowhere")
		require.NoError(t, err)
		assert.Equal(t, LookupNotFound, res.Status)
	})
}

func TestUpdateSchoolContact(t *testing.T) {
	t.Run("Should put the contact payload", func(t *testing.T) {
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/api/schools/55/contact", r.URL.Path)
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"telephoneNumber":null}`, string(body))
			_, _ = w.Write([]byte(`{}`))
		})

		err := client.UpdateSchoolContact(context.Background(), 55, map[string]*string{"telephoneNumber": nil})
		assert.NoError(t, err)
	})
}
