package auth

import (
	"context"

	"github.com/af-corp/fax-gateway/internal/interfax"
)

type contextKey string

const accountContextKey contextKey = "faxgw_account"

// AccountInfo is the authenticated identity attached to a request. Each
// account carries its own provider credentials; nothing about them is
// shared process-wide.
type AccountInfo struct {
	ID       string
	Username string
	Provider interfax.Credentials
}

// Configured reports whether the account has fax provider credentials bound.
func (a *AccountInfo) Configured() bool {
	return a != nil && a.Provider.Valid()
}

func ContextWithAccount(ctx context.Context, info *AccountInfo) context.Context {
	return context.WithValue(ctx, accountContextKey, info)
}

func AccountFromContext(ctx context.Context) (*AccountInfo, bool) {
	info, ok := ctx.Value(accountContextKey).(*AccountInfo)
	return info, ok
}
