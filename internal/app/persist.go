package app

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"studyquiz/internal/domain"
	"studyquiz/internal/observability"
)

// PersistOptions bounds every document store write.
type PersistOptions struct {
	// Timeout applies to each attempt.
	Timeout time.Duration
	// Retries is the number of extra attempts after the first failure.
	Retries int
	// Backoff is multiplied by the attempt number between attempts.
	Backoff time.Duration
}

func DefaultPersistOptions() PersistOptions {
	return PersistOptions{Timeout: 5 * time.Second, Retries: 2, Backoff: 200 * time.Millisecond}
}

type persister struct {
	opts    PersistOptions
	log     *zap.Logger
	metrics *observability.Metrics
}

func newPersister(opts PersistOptions, logger *zap.Logger, metrics *observability.Metrics) persister {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultPersistOptions().Timeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return persister{opts: opts, log: logger, metrics: metrics}
}

// do runs fn with a per-attempt timeout and a bounded number of retries.
// The final failure is wrapped in domain.ErrPersistenceFailed.
func (p persister) do(ctx context.Context, op, key string, fn func(context.Context) error) error {
	ctx, span := observability.Tracer().Start(ctx, op)
	span.SetAttributes(attribute.String("studyquiz.key", key))
	defer span.End()

	var err error
retry:
	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		err = fn(attemptCtx)
		cancel()
		p.metrics.ObservePersistence(op, err)
		if err == nil {
			return nil
		}
		p.log.Debug("document store call failed",
			zap.String("op", op), zap.String("key", key), zap.Int("attempt", attempt+1), zap.Error(err))
		if attempt >= p.opts.Retries {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(p.opts.Backoff * time.Duration(attempt+1)):
		}
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.log.Warn("giving up on document store call", zap.String("op", op), zap.String("key", key), zap.Error(err))
	return fmt.Errorf("%w: %s %s: %v", domain.ErrPersistenceFailed, op, key, err)
}
