package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dohr-michael/taskd/internal/tasks"
)

// CodeDemoFailure is reported by the demo handler's fail variant.
const CodeDemoFailure = "DEMO_FAILURE"

const demoSteps = 10

// DemoInput selects the demo behaviour.
type DemoInput struct {
	Variant string `json:"variant" validate:"required,oneof=fast slow fail stream"`
}

// DemoResult is returned by the fast, slow and stream variants.
type DemoResult struct {
	Variant string `json:"variant"`
	Steps   int    `json:"steps"`
}

// Demo exercises progress, streaming, failure and cancellation.
type Demo struct {
	FastStep time.Duration // fast runs demoSteps of these
	SlowStep time.Duration
}

// NewDemo creates a demo handler: fast takes ~500ms, slow ~3s.
func NewDemo() *Demo {
	return &Demo{
		FastStep: 50 * time.Millisecond,
		SlowStep: 300 * time.Millisecond,
	}
}

func (d *Demo) Type() string { return "demo" }

func (d *Demo) Validate(input json.RawMessage) error {
	_, err := decodeInput[DemoInput](input)
	return err
}

func (d *Demo) Execute(ctx context.Context, input json.RawMessage, progress tasks.ProgressReporter, stream tasks.StreamReporter) (any, error) {
	in, err := decodeInput[DemoInput](input)
	if err != nil {
		return nil, err
	}

	switch in.Variant {
	case "fail":
		return nil, tasks.NewHandlerError(CodeDemoFailure, "demo task failed on purpose", nil)
	case "stream":
		for i := 1; i <= demoSteps/2; i++ {
			if err := sleep(ctx, d.FastStep); err != nil {
				return nil, err
			}
			stream.Emit(fmt.Sprintf("chunk %d", i))
		}
		return DemoResult{Variant: in.Variant, Steps: demoSteps / 2}, nil
	}

	step := d.FastStep
	if in.Variant == "slow" {
		step = d.SlowStep
	}
	for i := 1; i <= demoSteps; i++ {
		if err := sleep(ctx, step); err != nil {
			return nil, err
		}
		progress.Report(float64(i*100/demoSteps), fmt.Sprintf("step %d/%d", i, demoSteps), nil)
	}
	return DemoResult{Variant: in.Variant, Steps: demoSteps}, nil
}

// sleep waits for d or returns the context's cancellation cause.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Cause(ctx)
	case <-t.C:
		return nil
	}
}
