// Package renderer submits render jobs to an external image generator and follows
// them to completion.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jo-hoe/promptrank/internal/workflow"
)

// ErrDisabled is returned by the renderer configured as "none".
var ErrDisabled = errors.New("rendering is disabled")

// Renderer executes jobs. Render blocks until the task is terminal or ctx is done and
// reports every state change to onEvent, which may be nil. A job the renderer rejected
// or failed comes back as a Failed task with a nil error; the error is reserved for
// transport problems, in which case the returned task is Failed too.
type Renderer interface {
	Render(ctx context.Context, job workflow.Job, onEvent func(Event)) (Task, error)
}

type Config struct {
	Type       string        `yaml:"type"`
	Address    string        `yaml:"address"`
	OutputDir  string        `yaml:"outputDir"`
	JobTimeout time.Duration `yaml:"jobTimeout"`
}

func NewRenderer(cfg Config) (Renderer, error) {
	switch cfg.Type {
	case "comfyui":
		return NewComfyClient(cfg.Address, cfg.OutputDir)
	case "none", "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported renderer: %s", cfg.Type)
	}
}

// Disabled fails every job. It keeps the ranking service usable without a renderer.
type Disabled struct{}

func (Disabled) Render(_ context.Context, _ workflow.Job, onEvent func(Event)) (Task, error) {
	t := Task{}
	t.fail(ErrDisabled.Error())
	if onEvent != nil {
		onEvent(Event{State: Failed, Message: t.Reason})
	}
	return t, ErrDisabled
}
