package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"dcpinventory-desktop/internal/models"
)

// LoginResponse is returned by the auth endpoint
type LoginResponse struct {
	Token string          `json:"token"`
	User  json.RawMessage `json:"user"`
}

// LookupStatus classifies a school lookup
type LookupStatus int

const (
	LookupNotFound LookupStatus = iota
	LookupFound
	// LookupAmbiguous is the backend answering id 0: the key matches a
	// duplicate or placeholder record.
	LookupAmbiguous
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupAmbiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// LookupResult is a school lookup. ID is set only when Status is LookupFound.
type LookupResult struct {
	ID     int64
	Status LookupStatus
}

// Login exchanges credentials for a token
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResponse, error) {
	resp, err := c.Post(ctx, "api/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	var result LoginResponse
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse login response: %w", err)
	}
	if result.Token == "" {
		return nil, fmt.Errorf("login response carried no token")
	}
	return &result, nil
}

// ListDivisions returns every division known to the backend
func (c *Client) ListDivisions(ctx context.Context) ([]models.ReferenceEntity, error) {
	return c.listReference(ctx, "api/divisions")
}

// ListDistricts returns every district known to the backend
func (c *Client) ListDistricts(ctx context.Context) ([]models.ReferenceEntity, error) {
	return c.listReference(ctx, "api/districts")
}

func (c *Client) listReference(ctx context.Context, endpoint string) ([]models.ReferenceEntity, error) {
	resp, err := c.Get(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}

	var result struct {
		Data []models.ReferenceEntity `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", endpoint, err)
	}
	return result.Data, nil
}

// BulkCreateSchools posts the whole batch in one request and returns the response body.
// Any non-2xx answer is a *StatusError.
func (c *Client) BulkCreateSchools(ctx context.Context, schools interface{}) ([]byte, error) {
	resp, err := c.Post(ctx, "api/schools/bulk", schools)
	if err != nil {
		return nil, fmt.Errorf("bulk create request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	return resp.Body(), nil
}

// LookupSchoolByID resolves a school id to the backend record id
func (c *Client) LookupSchoolByID(ctx context.Context, schoolID int64) (LookupResult, error) {
	return c.lookup(ctx, "api/schools/lookup/"+strconv.FormatInt(schoolID, 10), nil)
}

// LookupSchoolByName resolves a school name to the backend record id
func (c *Client) LookupSchoolByName(ctx context.Context, name string) (LookupResult, error) {
	return c.lookup(ctx, "api/schools/lookup", map[string]string{"name": name})
}

func (c *Client) lookup(ctx context.Context, endpoint string, params map[string]string) (LookupResult, error) {
	resp, err := c.Get(ctx, endpoint, params)
	if err != nil {
		return LookupResult{}, fmt.Errorf("lookup request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return LookupResult{Status: LookupNotFound}, nil
	}
	if !resp.IsSuccess() {
		return LookupResult{}, statusError(resp)
	}

	var result struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return LookupResult{}, fmt.Errorf("failed to parse lookup response: %w", err)
	}

	switch {
	case result.ID == nil:
		return LookupResult{Status: LookupNotFound}, nil
	case *result.ID == 0:
		return LookupResult{Status: LookupAmbiguous}, nil
	default:
		return LookupResult{ID: *result.ID, Status: LookupFound}, nil
	}
}

// UpdateSchoolContact replaces the contact block of one school record
func (c *Client) UpdateSchoolContact(ctx context.Context, id int64, contact interface{}) error {
	resp, err := c.Put(ctx, fmt.Sprintf("api/schools/%d/contact", id), contact)
	if err != nil {
		return fmt.Errorf("contact update request failed: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return nil
}
