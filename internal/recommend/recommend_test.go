package recommend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFocusAreasRanksByFrequency(t *testing.T) {
	got := FocusAreas([]string{
		"What is a goroutine scheduler?",
		"Which goroutine primitive blocks on channels?",
		"How do buffered channels behave?",
		"Explain goroutine leaks.",
	})
	assert.Equal(t, []string{"goroutine", "channels", "scheduler", "primitive", "blocks"}, got)
}

func TestFocusAreasDropsShortAndStopWords(t *testing.T) {
	assert.Empty(t, FocusAreas([]string{"What is the map of a set?"}))
	assert.Nil(t, FocusAreas(nil))
}

func TestFocusAreasKeepsNonASCIILetters(t *testing.T) {
	got := FocusAreas([]string{"Über café résumé?", "Le café!"})
	assert.Equal(t, []string{"café", "über", "résumé"}, got)
}

func TestClientDecodesTopics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Go Basics", req.AssessmentTitle)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"topics": []Topic{{Topic: "Concurrency", Description: "goroutines", Resources: []Resource{{Title: "Tour of Go"}}}},
		})
	}))
	defer srv.Close()

	topics, err := NewClient(srv.URL, time.Second).Recommend(context.Background(), Request{AssessmentTitle: "Go Basics"})
	require.NoError(t, err)
	require.Len(t, topics, 1)
	assert.Equal(t, "Concurrency", topics[0].Topic)
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"topics":[{"topic":"Maps","description":"","resources":[]}]}`))
	}))
	defer srv.Close()

	topics, err := NewClient(srv.URL, time.Second).Recommend(context.Background(), Request{})
	require.NoError(t, err)
	assert.Len(t, topics, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientEmptyTopicsAndClientErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"topics":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Recommend(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoTopics)

	_, err = NewClient(srv.URL+"/bad", time.Second).Recommend(context.Background(), Request{})
	assert.Error(t, err)
}
