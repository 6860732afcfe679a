package redis

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"proctor-session-service/internal/catalog"
	"proctor-session-service/internal/domain"
)

func TestAssessmentRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)
	loader := &countingLoader{Loader: sampleLoader()}
	repo := NewAssessmentRepository(client, loader, time.Minute)

	content, err := repo.GetContent(context.Background(), "go-101")
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls.Load())
	}
	if !mr.Exists("assessment:go-101:content") {
		t.Fatalf("expected content cached in redis")
	}
	if ttl := mr.TTL("assessment:go-101:content"); ttl < time.Minute {
		t.Fatalf("expected ttl with jitter >= 1m, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetContent(context.Background(), "go-101")
	if err != nil {
		t.Fatalf("get cached content: %v", err)
	}
	if loader.calls.Load() != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls.Load())
	}
	if cached.Questions[0].Prompt != content.Questions[0].Prompt {
		t.Fatalf("cached prompt mismatch: %q", cached.Questions[0].Prompt)
	}
	if !cached.Questions[0].Options[1].IsCorrect {
		t.Fatalf("expected correctness flags to survive the cache")
	}
	if len(cached.Assessment.QuestionIDs) != 1 || cached.Assessment.QuestionIDs[0] != "q1" {
		t.Fatalf("expected question ids rebuilt, got %v", cached.Assessment.QuestionIDs)
	}

	if err := repo.Invalidate(context.Background(), "go-101"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, err := repo.GetContent(context.Background(), "go-101"); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if loader.calls.Load() != 2 {
		t.Fatalf("expected reload after invalidate, loader calls=%d", loader.calls.Load())
	}
}

func TestAssessmentRepositoryFallsBackWhenRedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	client := newClient(mr)
	mr.Close()

	repo := NewAssessmentRepository(client, sampleLoader(), time.Minute)
	content, err := repo.GetContent(context.Background(), "go-101")
	if err != nil {
		t.Fatalf("expected loader fallback, got %v", err)
	}
	if content.Assessment.Title != "Go Basics" {
		t.Fatalf("unexpected content %+v", content.Assessment)
	}
}

type countingLoader struct {
	catalog.Loader
	calls atomic.Int32
}

func (l *countingLoader) LoadAssessment(ctx context.Context, assessmentID string) (domain.AssessmentDocument, error) {
	l.calls.Add(1)
	return l.Loader.LoadAssessment(ctx, assessmentID)
}

func sampleLoader() *catalog.StaticLoader {
	q1 := domain.Question{
		ID:         "q1",
		Prompt:     "Which keyword starts a goroutine?",
		Type:       domain.QuestionMultipleChoice,
		AnswerType: domain.AnswerSingle,
		Options: []domain.Option{
			{ID: "a", Text: "defer"},
			{ID: "b", Text: "go", IsCorrect: true},
		},
	}
	return catalog.NewStaticLoader(map[string]domain.AssessmentDocument{
		"go-101": {
			Assessment: domain.Assessment{ID: "go-101", Title: "Go Basics", Duration: 10},
			Questions:  []domain.QuestionRef{{ID: "q1", Question: &q1}},
		},
	}, nil)
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
