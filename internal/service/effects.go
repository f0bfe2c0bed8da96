package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SideEffect is post-commit work such as an email or an event publish.
// Its failure never changes the outcome of the operation that produced it.
type SideEffect struct {
	Name string
	Run  func(ctx context.Context) error
}

type Dispatcher struct {
	timeout time.Duration
	logger  *zap.Logger
}

func NewDispatcher(timeout time.Duration, logger *zap.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		timeout: timeout,
		logger:  logger,
	}
}

// Run executes effects in order, each bounded by the dispatcher timeout.
// Failures are logged and swallowed.
func (d *Dispatcher) Run(ctx context.Context, effects ...SideEffect) {
	for _, effect := range effects {
		if effect.Run == nil {
			continue
		}
		effectCtx, cancel := context.WithTimeout(ctx, d.timeout)
		err := effect.Run(effectCtx)
		cancel()
		if err != nil {
			d.logger.Warn("Side effect failed",
				zap.String("effect", effect.Name),
				zap.Error(err),
			)
		}
	}
}

// Go runs effects in the background, detached from the caller's context.
func (d *Dispatcher) Go(effects ...SideEffect) {
	if len(effects) == 0 {
		return
	}
	go d.Run(context.Background(), effects...)
}
