package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/uptrace/bun"

	"github.com/studcom-mm/washbot/washbot/database/models"
)

const sessionCacheSize = 256

// SessionRepository persists per-user conversation state across restarts.
// Reads go through a small LRU so the hot path (every single user input)
// rarely touches the database; writes are write-through.
type SessionRepository interface {
	Get(ctx context.Context, accountID string) (json.RawMessage, error)
	Put(ctx context.Context, accountID string, state json.RawMessage) error
	Delete(ctx context.Context, accountID string) error
}

type sessionRepository struct {
	db    *bun.DB
	cache *lru.Cache
}

func NewSessionRepository(db *bun.DB) (SessionRepository, error) {
	cache, err := lru.New(sessionCacheSize)
	if err != nil {
		return nil, err
	}
	return &sessionRepository{db: db, cache: cache}, nil
}

// Get returns the stored state, or nil when the user has no session yet.
func (r *sessionRepository) Get(ctx context.Context, accountID string) (json.RawMessage, error) {
	if cached, ok := r.cache.Get(accountID); ok {
		return cached.(json.RawMessage), nil
	}

	session := new(models.Session)
	err := r.db.NewSelect().
		Model(session).
		Where("account_id = ?", accountID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	r.cache.Add(accountID, session.State)
	return session.State, nil
}

func (r *sessionRepository) Put(ctx context.Context, accountID string, state json.RawMessage) error {
	session := &models.Session{
		AccountID: accountID,
		State:     state,
		UpdatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(session).
		On("CONFLICT (account_id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return err
	}

	r.cache.Add(accountID, state)
	return nil
}

func (r *sessionRepository) Delete(ctx context.Context, accountID string) error {
	_, err := r.db.NewDelete().
		Model((*models.Session)(nil)).
		Where("account_id = ?", accountID).
		Exec(ctx)
	if err != nil {
		return err
	}

	r.cache.Remove(accountID)
	return nil
}
