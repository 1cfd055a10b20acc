package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisCacheTTL = 5 * time.Minute
const redisKeyPrefix = "faxgw:session:"

// DefaultSessionTTL bounds how long an issued token stays valid.
const DefaultSessionTTL = 30 * 24 * time.Hour

// Account is one dashboard login with its bound provider credentials. The
// provider password is stored as given because the gateway replays it as
// HTTP basic auth against the fax service.
type Account struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	InterfaxUsername string `json:"interfax_username"`
	InterfaxPassword string `json:"-"`
}

// sessionCacheEntry is what gets cached in Redis per token hash. The
// provider password rides along so a cache hit avoids the database, but it
// never appears in JSON responses (Account marshals it away).
type sessionCacheEntry struct {
	ID               string `json:"id"`
	Username         string `json:"username"`
	InterfaxUsername string `json:"interfax_username"`
	InterfaxPassword string `json:"interfax_password"`
}

// SessionStore resolves bearer tokens to accounts and manages logins.
type SessionStore interface {
	Lookup(ctx context.Context, tokenHash string) (*Account, error)
	Upsert(ctx context.Context, username, password string) (*Account, error)
	CreateSession(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error
	DeleteSession(ctx context.Context, tokenHash string) error
}

// CachedSessionStore implements SessionStore with PostgreSQL + Redis cache.
type CachedSessionStore struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func NewCachedSessionStore(db *pgxpool.Pool, rdb *redis.Client) *CachedSessionStore {
	return &CachedSessionStore{db: db, redis: rdb}
}

func (s *CachedSessionStore) Lookup(ctx context.Context, tokenHash string) (*Account, error) {
	if s.redis != nil {
		cached, err := s.redis.Get(ctx, redisKeyPrefix+tokenHash).Bytes()
		if err == nil {
			var entry sessionCacheEntry
			if err := json.Unmarshal(cached, &entry); err == nil {
				return &Account{
					ID:               entry.ID,
					Username:         entry.Username,
					InterfaxUsername: entry.InterfaxUsername,
					InterfaxPassword: entry.InterfaxPassword,
				}, nil
			}
		}
	}

	acct, err := s.lookupDB(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, nil
	}

	if s.redis != nil {
		data, err := json.Marshal(sessionCacheEntry{
			ID:               acct.ID,
			Username:         acct.Username,
			InterfaxUsername: acct.InterfaxUsername,
			InterfaxPassword: acct.InterfaxPassword,
		})
		if err == nil {
			s.redis.Set(ctx, redisKeyPrefix+tokenHash, data, redisCacheTTL)
		}
	}

	return acct, nil
}

func (s *CachedSessionStore) lookupDB(ctx context.Context, tokenHash string) (*Account, error) {
	var acct Account
	err := s.db.QueryRow(ctx, `
		SELECT a.id, a.username, a.interfax_username, a.interfax_password
		FROM sessions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.token_hash = $1
		  AND s.expires_at > NOW()
	`, tokenHash).Scan(
		&acct.ID,
		&acct.Username,
		&acct.InterfaxUsername,
		&acct.InterfaxPassword,
	)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, nil
		}
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	// Touch last_used_at asynchronously (fire-and-forget).
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.db.Exec(bgCtx, `UPDATE sessions SET last_used_at = NOW() WHERE token_hash = $1`, tokenHash)
	}()

	return &acct, nil
}

// Upsert creates the account on first login or rebinds its provider
// credentials when they change. Any username/password pair is accepted;
// whether the pair actually works is the provider's call on the first
// remote operation.
func (s *CachedSessionStore) Upsert(ctx context.Context, username, password string) (*Account, error) {
	var acct Account
	err := s.db.QueryRow(ctx, `
		INSERT INTO accounts (username, interfax_username, interfax_password)
		VALUES ($1, $1, $2)
		ON CONFLICT (username) DO UPDATE
		SET interfax_username = EXCLUDED.interfax_username,
		    interfax_password = EXCLUDED.interfax_password,
		    updated_at = NOW()
		RETURNING id, username, interfax_username, interfax_password
	`, username, password).Scan(
		&acct.ID,
		&acct.Username,
		&acct.InterfaxUsername,
		&acct.InterfaxPassword,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert account: %w", err)
	}
	return &acct, nil
}

func (s *CachedSessionStore) CreateSession(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (account_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, accountID, tokenHash, expiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *CachedSessionStore) DeleteSession(ctx context.Context, tokenHash string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash = $1`, tokenHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if s.redis != nil {
		s.redis.Del(ctx, redisKeyPrefix+tokenHash)
	}
	return nil
}
