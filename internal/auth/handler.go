package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/af-corp/fax-gateway/internal/httputil"
	"github.com/af-corp/fax-gateway/internal/interfax"
)

// Handler serves login/logout/current-user. Login accepts any
// username/password pair and binds it as the account's fax provider
// credentials; the provider itself is the arbiter of whether they work.
type Handler struct {
	store      SessionStore
	sessionTTL time.Duration
}

func NewHandler(store SessionStore) *Handler {
	return &Handler{store: store, sessionTTL: DefaultSessionTTL}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string   `json:"token"`
	User  *Account `json:"user"`
}

// Login handles POST /api/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		httputil.WriteValidationError(w, "username and password are required")
		return
	}

	acct, err := h.store.Upsert(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.Error("login upsert failed", "error", err, "user", interfax.MaskUser(req.Username))
		httputil.WriteInternalError(w, "Login failed", "could not store account")
		return
	}

	token, err := GenerateToken()
	if err != nil {
		httputil.WriteInternalError(w, "Login failed", "could not issue token")
		return
	}
	if err := h.store.CreateSession(r.Context(), acct.ID, HashToken(token), time.Now().Add(h.sessionTTL)); err != nil {
		slog.Error("session create failed", "error", err, "account_id", acct.ID)
		httputil.WriteInternalError(w, "Login failed", "could not create session")
		return
	}

	slog.Info("login", "account_id", acct.ID, "user", interfax.MaskUser(acct.Username))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(loginResponse{Token: token, User: acct})
}

// Logout handles POST /api/logout; it revokes the presented token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token != "" {
		if err := h.store.DeleteSession(r.Context(), HashToken(token)); err != nil {
			slog.Error("logout failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// User handles GET /api/user.
func (h *Handler) User(w http.ResponseWriter, r *http.Request) {
	info, ok := AccountFromContext(r.Context())
	if !ok {
		httputil.WriteAuthError(w, "Not authenticated")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(Account{
		ID:               info.ID,
		Username:         info.Username,
		InterfaxUsername: info.Provider.Username,
	})
}
