package memory

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
	"vexcel-xp-service/internal/domain"
)

// ContentLoader fetches learning content from a backing store (e.g., document DB).
type ContentLoader interface {
	LoadModule(ctx context.Context, moduleID string) (domain.Module, error)
	LoadChallengeBank(ctx context.Context) ([]domain.Question, error)
}

// ContentRepository caches modules and the challenge bank with TTL to avoid repeated loads.
type ContentRepository struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand

	mu      sync.RWMutex
	modules map[string]cachedModule
	bank    cachedBank
}

type cachedModule struct {
	module    domain.Module
	expiresAt time.Time
}

type cachedBank struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewContentRepository(loader ContentLoader, ttl time.Duration) *ContentRepository {
	return &ContentRepository{
		loader:  loader,
		ttl:     ttl,
		clock:   time.Now,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		modules: make(map[string]cachedModule),
	}
}

func (r *ContentRepository) GetModule(ctx context.Context, moduleID string) (domain.Module, error) {
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.modules[moduleID]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.module, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("module:"+moduleID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.modules[moduleID]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.module, nil
		}
		r.mu.RUnlock()

		module, err := r.loader.LoadModule(ctx, moduleID)
		if err != nil {
			return domain.Module{}, err
		}

		expiresAt := now.Add(r.ttlWithJitter())
		r.mu.Lock()
		r.modules[moduleID] = cachedModule{module: module, expiresAt: expiresAt}
		r.mu.Unlock()
		return module, nil
	})
	if err != nil {
		return domain.Module{}, err
	}
	return result.(domain.Module), nil
}

func (r *ContentRepository) ChallengeBank(ctx context.Context) ([]domain.Question, error) {
	now := r.clock()

	r.mu.RLock()
	if r.bank.questions != nil && r.bank.expiresAt.After(now) {
		questions := r.bank.questions
		r.mu.RUnlock()
		return questions, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("challenge", func() (interface{}, error) {
		questions, err := r.loader.LoadChallengeBank(ctx)
		if err != nil {
			return nil, err
		}
		if questions == nil {
			questions = []domain.Question{}
		}
		expiresAt := r.clock().Add(r.ttlWithJitter())
		r.mu.Lock()
		r.bank = cachedBank{questions: questions, expiresAt: expiresAt}
		r.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (r *ContentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}

// DefaultCategory is assigned to challenge questions that do not name one.
const DefaultCategory = "general"

// StaticContentLoader is a simple loader backed by in-memory content (useful for tests/demos).
type StaticContentLoader struct {
	modules map[string]domain.Module
	bank    []domain.Question
}

// NewStaticContentLoader validates and indexes content.
func NewStaticContentLoader(content domain.Content) (*StaticContentLoader, error) {
	l := &StaticContentLoader{modules: make(map[string]domain.Module, len(content.Modules)), bank: content.Challenge}
	for _, doc := range content.Modules {
		module, err := doc.Module()
		if err != nil {
			return nil, err
		}
		l.modules[module.ID] = module
	}
	return l, nil
}

func (l *StaticContentLoader) LoadModule(_ context.Context, moduleID string) (domain.Module, error) {
	if module, ok := l.modules[moduleID]; ok {
		return module, nil
	}
	return domain.Module{}, domain.ErrModuleNotFound
}

func (l *StaticContentLoader) LoadChallengeBank(_ context.Context) ([]domain.Question, error) {
	return l.bank, nil
}

// LoadContentFile reads YAML (or JSON, which is valid YAML) content from path.
func LoadContentFile(path string) (*StaticContentLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var content domain.Content
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	for i, q := range content.Challenge {
		if q.Category == "" {
			content.Challenge[i].Category = DefaultCategory
		}
	}
	return NewStaticContentLoader(content)
}
