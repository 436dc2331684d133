// Package pipeline wires steps together and runs hooks around each one.
package pipeline

import (
	"context"
	"time"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
)

// Pipeline executes a sequence of Steps with hook support. There are no
// retries: the first failing step ends the run.
type Pipeline struct {
	steps []core.Step
	hooks []core.Hook
}

// New returns an empty Pipeline.
func New() *Pipeline { return &Pipeline{} }

// Use appends a step to the pipeline. Returns the same Pipeline for chaining.
func (p *Pipeline) Use(s ...core.Step) *Pipeline {
	p.steps = append(p.steps, s...)
	return p
}

// AddHook registers an observer.
func (p *Pipeline) AddHook(h ...core.Hook) *Pipeline {
	p.hooks = append(p.hooks, h...)
	return p
}

// Steps returns the names of the configured steps in order.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.Name()
	}
	return names
}

// Run executes the pipeline on img and returns the final ImageData.
func (p *Pipeline) Run(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	current := img
	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err)
		}
		result, err := p.runStep(ctx, step, current)
		if err != nil {
			return nil, err
		}
		current = result
	}
	return current, nil
}

func (p *Pipeline) runStep(ctx context.Context, step core.Step, img *core.ImageData) (*core.ImageData, error) {
	p.callHooksBefore(ctx, step.Name(), img)
	start := time.Now()
	result, err := step.Execute(ctx, img)
	p.callHooksAfter(ctx, step.Name(), result, time.Since(start), err)
	return result, err
}

func (p *Pipeline) callHooksBefore(ctx context.Context, name string, img *core.ImageData) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (p *Pipeline) callHooksAfter(ctx context.Context, name string, img *core.ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

var _ core.PipelineRunner = (*Pipeline)(nil)
