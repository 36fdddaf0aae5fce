package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of one input in a batch. Exactly one of Result and
// Err is set.
type Outcome struct {
	Input  string
	Output string
	Result *Result
	Err    error
}

// Summary collects batch outcomes in input order.
type Summary struct {
	Outcomes []Outcome
}

func (s Summary) Succeeded() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

func (s Summary) Failed() int { return len(s.Outcomes) - s.Succeeded() }

// RunBatch converts inputs[i] into outputs[i] with at most jobs inputs in
// flight. A failing input is recorded and never stops the others.
func (r *Runner) RunBatch(ctx context.Context, inputs, outputs []string, opts Options, jobs int) (Summary, error) {
	if len(inputs) != len(outputs) {
		return Summary{}, fmt.Errorf("%d inputs but %d outputs", len(inputs), len(outputs))
	}
	if jobs < 1 {
		jobs = 1
	}

	outcomes := make([]Outcome, len(inputs))
	var g errgroup.Group
	g.SetLimit(jobs)

	for i := range inputs {
		outcomes[i] = Outcome{Input: inputs[i], Output: outputs[i]}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i].Err = err
				return nil
			}
			res, err := r.Run(ctx, inputs[i], outputs[i], opts)
			if err != nil {
				r.log().Debug("input failed", zap.String("input", inputs[i]), zap.Error(err))
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	return Summary{Outcomes: outcomes}, ctx.Err()
}
