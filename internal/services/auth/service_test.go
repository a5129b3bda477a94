package auth

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"dcpinventory-desktop/internal/api"
	"dcpinventory-desktop/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	resp *api.LoginResponse
	err  error
}

func (f fakeAuthenticator) Login(context.Context, string, string) (*api.LoginResponse, error) {
	return f.resp, f.err
}

func TestLogin(t *testing.T) {
	t.Run("Should store the token and user", func(t *testing.T) {
		store := session.NewMemoryStore()
		svc := NewService(fakeAuthenticator{resp: &api.LoginResponse{
			Token: "tok",
			User:  json.RawMessage(`{"id":3,"name":"Ana Cruz","email":"ana@deped.gov.ph"}`),
		}}, store, nil)

		user, err := svc.Login(context.Background(), " ana ", "secret")
		require.NoError(t, err)
		assert.Equal(t, "Ana Cruz", user.Name)
		assert.Equal(t, "ana", user.Username)
		assert.Equal(t, UserID("3"), user.ID)

		token, ok := store.Get(session.KeyToken)
		assert.True(t, ok)
		assert.Equal(t, "tok", token)

		current, err := svc.CurrentUser()
		require.NoError(t, err)
		assert.Equal(t, "ana@deped.gov.ph", current.Email)
	})

	t.Run("Should keep a text user id", func(t *testing.T) {
		store := session.NewMemoryStore()
		svc := NewService(fakeAuthenticator{resp: &api.LoginResponse{
			Token: "tok",
			User:  json.RawMessage(`{"id":"6f1c2a9e-usr","name":"Ana Cruz"}`),
		}}, store, nil)

		user, err := svc.Login(context.Background(), "ana", "secret")
		require.NoError(t, err)
		assert.Equal(t, UserID("6f1c2a9e-usr"), user.ID)

		current, err := svc.CurrentUser()
		require.NoError(t, err)
		assert.Equal(t, UserID("6f1c2a9e-usr"), current.ID)
		assert.Equal(t, "Ana Cruz", current.Name)
	})

	t.Run("Should leave the session empty on failure", func(t *testing.T) {
		store := session.NewMemoryStore()
		svc := NewService(fakeAuthenticator{err: errors.New("401")}, store, nil)

		_, err := svc.Login(context.Background(), "ana", "wrong")
		assert.Error(t, err)
		_, ok := store.Get(session.KeyToken)
		assert.False(t, ok)
	})

	t.Run("Should require credentials", func(t *testing.T) {
		svc := NewService(fakeAuthenticator{}, session.NewMemoryStore(), nil)
		_, err := svc.Login(context.Background(), "", "x")
		assert.Error(t, err)
	})
}

func TestLogout(t *testing.T) {
	store := session.NewMemoryStore()
	svc := NewService(fakeAuthenticator{resp: &api.LoginResponse{Token: "tok"}}, store, nil)

	_, err := svc.Login(context.Background(), "ana", "secret")
	require.NoError(t, err)
	require.NoError(t, svc.Logout())

	_, err = svc.CurrentUser()
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestUserID(t *testing.T) {
	t.Run("Should accept numeric and text ids", func(t *testing.T) {
		cases := map[string]UserID{
			`{"id":42}`:      "42",
			`{"id":"u-42"}`:  "u-42",
			`{"id":null}`:    "",
			`{"name":"Ana"}`: "",
		}
		for in, want := range cases {
			var u User
			require.NoError(t, json.Unmarshal([]byte(in), &u), in)
			assert.Equal(t, want, u.ID, in)
		}
	})

	t.Run("Should reject other JSON types", func(t *testing.T) {
		var u User
		assert.Error(t, json.Unmarshal([]byte(`{"id":true}`), &u))
	})

	t.Run("Should write the id as a string", func(t *testing.T) {
		b, err := json.Marshal(User{ID: "42", Name: "Ana"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"42","name":"Ana"}`, string(b))
	})
}
