package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// mockSessionStore implements SessionStore for testing.
type mockSessionStore struct {
	sessions map[string]*Account
}

func (m *mockSessionStore) Lookup(ctx context.Context, tokenHash string) (*Account, error) {
	acct, ok := m.sessions[tokenHash]
	if !ok {
		return nil, nil
	}
	return acct, nil
}

func (m *mockSessionStore) Upsert(ctx context.Context, username, password string) (*Account, error) {
	return &Account{ID: "1", Username: username, InterfaxUsername: username, InterfaxPassword: password}, nil
}

func (m *mockSessionStore) CreateSession(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	return nil
}

func (m *mockSessionStore) DeleteSession(ctx context.Context, tokenHash string) error {
	delete(m.sessions, tokenHash)
	return nil
}

func TestMiddleware_MissingAuthHeader(t *testing.T) {
	store := &mockSessionStore{sessions: make(map[string]*Account)}
	mw := Middleware(store)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/faxes/inbound", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_WrongScheme(t *testing.T) {
	store := &mockSessionStore{sessions: make(map[string]*Account)}
	mw := Middleware(store)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/faxes/inbound", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_UnknownToken(t *testing.T) {
	store := &mockSessionStore{sessions: make(map[string]*Account)}
	mw := Middleware(store)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	}))

	req := httptest.NewRequest("GET", "/api/faxes/inbound", nil)
	req.Header.Set("Authorization", "Bearer faxgw-doesnotexist")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestMiddleware_ValidToken(t *testing.T) {
	token := "faxgw-validtoken1234"
	store := &mockSessionStore{sessions: map[string]*Account{
		HashToken(token): {
			ID:               "acct-1",
			Username:         "kim",
			InterfaxUsername: "kim",
			InterfaxPassword: "pw",
		},
	}}
	mw := Middleware(store)

	var gotInfo *AccountInfo
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := AccountFromContext(r.Context())
		if !ok {
			t.Fatal("account missing from context")
		}
		gotInfo = info
	}))

	req := httptest.NewRequest("GET", "/api/faxes/inbound", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotInfo.ID != "acct-1" {
		t.Errorf("account id = %q", gotInfo.ID)
	}
	if !gotInfo.Configured() {
		t.Error("expected provider credentials to be configured")
	}
}

func TestAccountInfo_Configured(t *testing.T) {
	var nilInfo *AccountInfo
	if nilInfo.Configured() {
		t.Error("nil info must not be configured")
	}
	info := &AccountInfo{}
	if info.Configured() {
		t.Error("empty credentials must not be configured")
	}
}
