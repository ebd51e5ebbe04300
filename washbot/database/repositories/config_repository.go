package repositories

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/uptrace/bun"

	"github.com/studcom-mm/washbot/washbot/database/models"
)

const configCacheKey = "config_all"

// ConfigRepository reads the operator-maintained key/value mapping
// (responsible-party contacts, key rooms, notification targets). The table
// is edited out of band, so values are served from a short TTL cache rather
// than re-queried per lookup.
type ConfigRepository interface {
	Get(ctx context.Context, key string) (string, error)
	GetAll(ctx context.Context) (map[string]string, error)
}

type configRepository struct {
	db    *bun.DB
	cache *gocache.Cache
}

func NewConfigRepository(db *bun.DB) ConfigRepository {
	return &configRepository{
		db:    db,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

func (r *configRepository) GetAll(ctx context.Context) (map[string]string, error) {
	if cached, ok := r.cache.Get(configCacheKey); ok {
		return cached.(map[string]string), nil
	}

	var entries []models.ConfigEntry
	if err := r.db.NewSelect().Model(&entries).Scan(ctx); err != nil {
		return nil, err
	}

	all := make(map[string]string, len(entries))
	for _, e := range entries {
		all[e.Key] = e.Value
	}

	r.cache.Set(configCacheKey, all, gocache.DefaultExpiration)
	return all, nil
}

// Get returns the value for key, or "" when absent.
func (r *configRepository) Get(ctx context.Context, key string) (string, error) {
	all, err := r.GetAll(ctx)
	if err != nil {
		return "", err
	}
	return all[key], nil
}
