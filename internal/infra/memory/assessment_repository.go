package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/domain"
)

// AssessmentRepository caches resolved assessment content with TTL to avoid
// repeated DB hits.
type AssessmentRepository struct {
	loader catalog.Loader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedContent
}

type cachedContent struct {
	content   domain.Content
	expiresAt time.Time
}

func NewAssessmentRepository(loader catalog.Loader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedContent),
	}
}

func (r *AssessmentRepository) GetContent(ctx context.Context, assessmentID string) (domain.Content, error) {
	if content, ok := r.lookup(assessmentID); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(assessmentID, func() (interface{}, error) {
		if content, ok := r.lookup(assessmentID); ok {
			return content, nil
		}

		content, err := catalog.Resolve(ctx, r.loader, assessmentID)
		if err != nil {
			return domain.Content{}, err
		}

		r.mu.Lock()
		r.cache[assessmentID] = cachedContent{
			content:   content,
			expiresAt: r.clock().Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.Content{}, err
	}
	return result.(domain.Content), nil
}

// Invalidate drops a cached assessment so the next read reloads it.
func (r *AssessmentRepository) Invalidate(assessmentID string) {
	r.mu.Lock()
	delete(r.cache, assessmentID)
	r.mu.Unlock()
}

func (r *AssessmentRepository) lookup(assessmentID string) (domain.Content, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[assessmentID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Content{}, false
	}
	return entry.content, true
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
