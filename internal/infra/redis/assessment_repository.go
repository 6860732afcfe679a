package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/domain"
)

// AssessmentRepository caches resolved assessment content in Redis and falls
// back to a loader on cache miss. Content is stored as one JSON blob:
//
//	SET assessment:{assessmentID}:content {json} EX ttl
type AssessmentRepository struct {
	client *redis.Client
	loader catalog.Loader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex
}

func NewAssessmentRepository(client *redis.Client, loader catalog.Loader, ttl time.Duration) *AssessmentRepository {
	return &AssessmentRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *AssessmentRepository) GetContent(ctx context.Context, assessmentID string) (domain.Content, error) {
	key := r.contentKey(assessmentID)
	if content, ok := r.cached(ctx, key); ok {
		return content, nil
	}

	result, err, _ := r.sf.Do(assessmentID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if content, ok := r.cached(ctx, key); ok {
			return content, nil
		}

		content, err := catalog.Resolve(ctx, r.loader, assessmentID)
		if err != nil {
			return domain.Content{}, err
		}

		raw, err := json.Marshal(content)
		if err != nil {
			return domain.Content{}, err
		}
		if err := r.client.Set(ctx, key, raw, r.ttlWithJitter()).Err(); err != nil {
			log.Warn().Err(err).Str("assessment_id", assessmentID).Msg("failed to cache assessment content")
		}
		return content, nil
	})
	if err != nil {
		return domain.Content{}, err
	}
	return result.(domain.Content), nil
}

// Invalidate drops the cached content of an assessment.
func (r *AssessmentRepository) Invalidate(ctx context.Context, assessmentID string) error {
	return r.client.Del(ctx, r.contentKey(assessmentID)).Err()
}

func (r *AssessmentRepository) cached(ctx context.Context, key string) (domain.Content, bool) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("key", key).Msg("assessment cache read failed")
		}
		return domain.Content{}, false
	}
	var content domain.Content
	if err := json.Unmarshal(raw, &content); err != nil {
		return domain.Content{}, false
	}
	// QuestionIDs is not serialized
	content.Assessment.QuestionIDs = make([]string, len(content.Questions))
	for i, q := range content.Questions {
		content.Assessment.QuestionIDs[i] = q.ID
	}
	return content, true
}

func (r *AssessmentRepository) contentKey(assessmentID string) string {
	return "assessment:" + assessmentID + ":content"
}

func (r *AssessmentRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
