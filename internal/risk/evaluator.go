// Package risk classifies whether a candidate's machine shows signs of remote
// access or virtualization.
package risk

import (
	"context"
	"fmt"
	"sync"

	"proctor-session-service/internal/domain"
)

// Level is the coarse environment risk classification.
type Level string

const (
	LevelLow  Level = "low"
	LevelHigh Level = "high"
)

// Verdict is the result of one environment evaluation.
type Verdict struct {
	IsRemoteAccess   bool    `json:"isRemoteAccess"`
	IsVirtualMachine bool    `json:"isVirtualMachine"`
	Details          Details `json:"detectionDetails"`
}

// Risky reports whether the verdict carries remote-access or VM signals.
func (v Verdict) Risky() bool {
	return v.IsRemoteAccess || v.IsVirtualMachine
}

// Level maps the verdict onto a risk level.
func (v Verdict) Level() Level {
	if v.Risky() {
		return LevelHigh
	}
	return LevelLow
}

// Evaluator produces verdicts on demand. Implementations must be safe to call
// repeatedly.
type Evaluator interface {
	Detect(ctx context.Context) (Verdict, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context) (Verdict, error)

func (f EvaluatorFunc) Detect(ctx context.Context) (Verdict, error) { return f(ctx) }

// SafeDetect runs an evaluator and converts panics into errors.
func SafeDetect(ctx context.Context, e Evaluator) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: evaluator panic: %v", domain.ErrEnvironmentUnavailable, r)
		}
	}()
	if e == nil {
		return Verdict{}, domain.ErrEnvironmentUnavailable
	}
	return e.Detect(ctx)
}

// Probe evaluates the most recent fingerprint reported by the client.
type Probe struct {
	mu sync.RWMutex
	fp *Fingerprint
}

func NewProbe() *Probe {
	return &Probe{}
}

// Update replaces the fingerprint used by subsequent evaluations.
func (p *Probe) Update(fp Fingerprint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fp = &fp
}

func (p *Probe) Detect(ctx context.Context) (Verdict, error) {
	if err := ctx.Err(); err != nil {
		return Verdict{}, err
	}
	p.mu.RLock()
	fp := p.fp
	p.mu.RUnlock()
	if fp == nil {
		return Verdict{}, fmt.Errorf("%w: no fingerprint reported", domain.ErrEnvironmentUnavailable)
	}
	return Evaluate(*fp), nil
}
