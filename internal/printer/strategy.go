package printer

import (
	"context"
	"errors"
)

// Strategy is one way of getting to a usable connection
type Strategy struct {
	Name string
	Run  func(context.Context) error
}

// Attempt records the outcome of one Strategy
type Attempt struct {
	Strategy string
	Err      error
}

// FirstSuccess runs strategies in order and stops at the first one that
// succeeds. If all fail, the error of the last one is returned.
func FirstSuccess(ctx context.Context, strategies ...Strategy) ([]Attempt, error) {
	if len(strategies) == 0 {
		return nil, errors.New("no strategies")
	}

	attempts := make([]Attempt, 0, len(strategies))
	var err error
	for _, s := range strategies {
		err = s.Run(ctx)
		attempts = append(attempts, Attempt{Strategy: s.Name, Err: err})
		if err == nil {
			return attempts, nil
		}
	}
	return attempts, err
}
