package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"vexcel-xp-service/internal/domain"
)

// ContentLoader fetches learning content from a backing store (e.g., document DB).
type ContentLoader interface {
	LoadModule(ctx context.Context, moduleID string) (domain.Module, error)
	LoadChallengeBank(ctx context.Context) ([]domain.Question, error)
}

// ContentRepository caches content in Redis and falls back to a loader on cache miss.
// Modules are stored as:        SET content:module:{moduleID} {module JSON}
// The challenge bank is stored: SET content:challenge {questions JSON}
// Redis failures degrade to the loader; they never fail a read on their own.
type ContentRepository struct {
	client *redis.Client
	loader ContentLoader
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewContentRepository(client *redis.Client, loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ContentRepository) GetModule(ctx context.Context, moduleID string) (domain.Module, error) {
	key := moduleKey(moduleID)
	var module domain.Module
	if r.cached(ctx, key, &module) {
		return module, nil
	}

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		var module domain.Module
		if r.cached(ctx, key, &module) {
			return module, nil
		}
		module, err := r.loader.LoadModule(ctx, moduleID)
		if err != nil {
			return domain.Module{}, err
		}
		r.store(ctx, key, module)
		return module, nil
	})
	if err != nil {
		return domain.Module{}, err
	}
	return result.(domain.Module), nil
}

func (r *ContentRepository) ChallengeBank(ctx context.Context) ([]domain.Question, error) {
	var bank []domain.Question
	if r.cached(ctx, challengeKey, &bank) {
		return bank, nil
	}

	result, err, _ := r.sf.Do(challengeKey, func() (interface{}, error) {
		bank, err := r.loader.LoadChallengeBank(ctx)
		if err != nil {
			return nil, err
		}
		if bank == nil {
			bank = []domain.Question{}
		}
		r.store(ctx, challengeKey, bank)
		return bank, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *ContentRepository) cached(ctx context.Context, key string, dst any) bool {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).WithField("key", key).Warn("content cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		log.WithError(err).WithField("key", key).Warn("content cache entry corrupt")
		return false
	}
	return true
}

func (r *ContentRepository) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, key, data, r.ttlWithJitter()).Err(); err != nil {
		log.WithError(err).WithField("key", key).Warn("content cache write failed")
	}
}

const challengeKey = "content:challenge"

func moduleKey(moduleID string) string {
	return "content:module:" + moduleID
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
