// Package models holds the algorithm layer the dispatcher's work units call.
package models

import (
	"context"
	"fmt"
	"strings"
	"sync"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/runtime"
)

type TrainInput struct {
	Meta          map[string]string
	ResourcePaths map[string]string
	// Optional labelled CSV used to score the model.
	InputPath string
	DescCol   string
	ResCol    string
	LabelCol  string
}

type TrainResult struct {
	TestAccuracy    *float64
	TrainingSetSize *int
}

type ClassifyInput struct {
	Meta          map[string]string
	ResourcePaths map[string]string
	InputPath     string
	OutputPath    string
	DescCol       string
	ResCol        string
	OutClassCol   string
}

// Algorithm is one model type. Implementations report progress through h and
// finish classification with a Done update once OutputPath is written.
type Algorithm interface {
	Type() string
	Train(ctx context.Context, h *runtime.Handle, in TrainInput) (TrainResult, error)
	Classify(ctx context.Context, h *runtime.Handle, in ClassifyInput) error
}

type Registry struct {
	mu         sync.RWMutex
	algorithms map[string]Algorithm
}

func NewRegistry() *Registry {
	return &Registry{algorithms: make(map[string]Algorithm)}
}

// NewDefaultRegistry registers the built-in algorithms.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(NewKeyword())
	return r
}

func (r *Registry) Register(a Algorithm) error {
	if a == nil {
		return fmt.Errorf("nil algorithm")
	}
	t := strings.TrimSpace(a.Type())
	if t == "" {
		return fmt.Errorf("algorithm Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.algorithms[t]; exists {
		return fmt.Errorf("algorithm already registered for model_type=%s", t)
	}
	r.algorithms[t] = a
	return nil
}

func (r *Registry) Get(modelType string) (Algorithm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.algorithms[modelType]
	if !ok {
		return nil, fmt.Errorf("%w: model type %s is not supported by this server", types.ErrWorkUnit, modelType)
	}
	return a, nil
}

func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.algorithms))
	for t := range r.algorithms {
		out = append(out, t)
	}
	return out
}
