package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/abhisek/microtutor/internal/store"
)

// NewProvider builds the configured vendor client and wraps it so that
// every call is bounded, retried and logged:
//
//	caller -> timeout -> retry -> logging -> vendor
//
// Each retry attempt is logged as its own event.
func NewProvider(ctx context.Context, cfg Config, eventRepo store.EventRepo, logger *zap.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case ProviderAnthropic:
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case ProviderOpenAI:
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case ProviderGemini:
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case ProviderOpenRouter:
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case ProviderMock:
		base = NewMockProvider()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	if logger != nil {
		logger.Info("oracle configured",
			zap.String("provider", cfg.Provider),
			zap.String("model", base.ModelID()),
			zap.Duration("timeout", cfg.Timeout),
			zap.Int("max_attempts", cfg.Retry.MaxAttempts),
		)
	}
	logged := WithLogging(base, cfg.Provider, eventRepo, logger)
	return WithTimeout(WithRetry(logged, cfg.Retry), cfg.Timeout), nil
}
