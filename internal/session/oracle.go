package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/llm"
)

// ErrOracleFailed is returned when every oracle attempt failed. The engine
// turns it into an apology message; it is never shown to callers.
var ErrOracleFailed = errors.New("oracle failed")

// RetryPolicy bounds how many oracle attempts one step may make.
type RetryPolicy struct {
	MaxAttempts int
}

// attempt is one oracle request. Later attempts are usually narrower.
type attempt struct {
	schema *llm.Schema
	system string
	user   string
}

// invoke runs attempts in order until parse accepts a response. When the
// policy allows more attempts than given, the last one is repeated. It
// returns the index of the attempt that succeeded.
func (e *Engine) invoke(ctx context.Context, purpose string, attempts []attempt, policy RetryPolicy, parse func(json.RawMessage) error) (int, error) {
	if len(attempts) == 0 {
		return 0, fmt.Errorf("%w: no attempts", ErrOracleFailed)
	}
	n := max(policy.MaxAttempts, 1)
	ctx = llm.WithPurpose(ctx, purpose)

	var lastErr error
	for i := range n {
		if err := ctx.Err(); err != nil {
			return i, errors.Join(ErrOracleFailed, err)
		}
		a := attempts[min(i, len(attempts)-1)]
		err := e.call(ctx, a, parse)
		if err == nil {
			return i, nil
		}
		lastErr = err
		e.logger.Warn("oracle attempt failed",
			zap.String("purpose", purpose),
			zap.String("schema", a.schema.Name),
			zap.Int("attempt", i+1),
			zap.Error(err),
		)
	}
	return n - 1, fmt.Errorf("%w: %w", ErrOracleFailed, lastErr)
}

func (e *Engine) call(ctx context.Context, a attempt, parse func(json.RawMessage) error) error {
	actx, cancel := context.WithTimeout(ctx, e.cfg.OracleTimeout)
	defer cancel()

	start := time.Now()
	req := llm.SingleTurn(a.system, a.user, a.schema)
	req.MaxTokens, req.Temperature = e.cfg.MaxTokens, e.cfg.Temperature
	resp, err := e.provider.Generate(actx, req)
	if err != nil {
		return err
	}
	e.logger.Debug("oracle responded",
		zap.String("schema", a.schema.Name),
		zap.Int64("latency_ms", time.Since(start).Milliseconds()),
	)
	return parse(resp.Content)
}
