//go:build integration

package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RegisterUser signs up a referee or league and returns its token and user ID.
func (env *TestEnv) RegisterUser(role, email, password, name string) (token string, userID uuid.UUID) {
	env.t.Helper()
	resp := env.POST("/auth/register", map[string]string{
		"email":    email,
		"password": password,
		"role":     role,
		"name":     name,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		env.t.Fatalf("RegisterUser: expected 201, got %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
		User        struct {
			ID uuid.UUID `json:"id"`
		} `json:"user"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("RegisterUser: decode: %v", err)
	}
	return result.AccessToken, result.User.ID
}

// Login authenticates an existing user and returns the token.
func (env *TestEnv) Login(email, password string) string {
	env.t.Helper()
	resp := env.POST("/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		env.t.Fatalf("Login: expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		env.t.Fatalf("Login: decode: %v", err)
	}
	return result.AccessToken
}

// RefereeProfileID returns the referee profile id behind a referee token.
func (env *TestEnv) RefereeProfileID(token string) uuid.UUID {
	env.t.Helper()
	resp := env.AuthGET("/refs/me", token)
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		env.t.Fatalf("RefereeProfileID: expected 200, got %d", resp.StatusCode)
	}
	var p struct {
		ID uuid.UUID `json:"id"`
	}
	DecodeJSON(env.t, resp, &p)
	return p.ID
}

// CreateGame posts a game for the league behind token and returns its id.
func (env *TestEnv) CreateGame(token string, start time.Time, centerFee, arFee float64) uuid.UUID {
	env.t.Helper()
	resp := env.AuthPOST("/games", map[string]interface{}{
		"location":          "Springfield",
		"latitude":          39.7817,
		"longitude":         -89.6501,
		"scheduled_start":   start.UTC().Format(time.RFC3339),
		"age_group":         "U12",
		"competition_level": "recreational",
		"center_fee":        centerFee,
		"ar_fee":            arFee,
	}, token)
	if resp.StatusCode != http.StatusCreated {
		resp.Body.Close()
		env.t.Fatalf("CreateGame: expected 201, got %d", resp.StatusCode)
	}
	var g struct {
		ID uuid.UUID `json:"id"`
	}
	DecodeJSON(env.t, resp, &g)
	return g.ID
}

func (env *TestEnv) do(method, path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			env.t.Fatalf("%s %s: encode: %v", method, path, err)
		}
	}
	req, err := http.NewRequest(method, env.Server.URL+path, &buf)
	if err != nil {
		env.t.Fatalf("%s %s: new request: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// GET performs an unauthenticated GET request.
func (env *TestEnv) GET(path string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, "")
}

// POST performs a POST request with optional auth token.
func (env *TestEnv) POST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token)
}

// AuthGET performs an authenticated GET request.
func (env *TestEnv) AuthGET(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodGet, path, nil, token)
}

// AuthPOST performs an authenticated POST request.
func (env *TestEnv) AuthPOST(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPost, path, body, token)
}

// AuthPUT performs an authenticated PUT request.
func (env *TestEnv) AuthPUT(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPut, path, body, token)
}

// AuthPATCH performs an authenticated PATCH request.
func (env *TestEnv) AuthPATCH(path string, body interface{}, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodPatch, path, body, token)
}

// AuthDELETE performs an authenticated DELETE request.
func (env *TestEnv) AuthDELETE(path, token string) *http.Response {
	env.t.Helper()
	return env.do(http.MethodDelete, path, nil, token)
}

// OPTIONS performs a CORS preflight request.
func (env *TestEnv) OPTIONS(path string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodOptions, env.Server.URL+path, nil)
	if err != nil {
		env.t.Fatalf("OPTIONS %s: new request: %v", path, err)
	}
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("OPTIONS %s: %v", path, err)
	}
	return resp
}

// Upload posts a raw body with the given content type.
func (env *TestEnv) Upload(path, contentType string, body []byte, token string) *http.Response {
	env.t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+path, bytes.NewReader(body))
	if err != nil {
		env.t.Fatalf("POST %s: new request: %v", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		env.t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}
