// Package oracle wraps the external language-model services consulted for
// intent classification, slot extraction, and comment validation. Every call
// is a single attempt bounded by a timeout; callers own the fallback.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-intake/internal/config"
)

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("oracle returned an empty completion")

// Completer sends one system+user prompt pair and returns the model's text.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, prompt string) (string, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

// NewCompleter builds the configured provider. It returns a nil Completer
// when no provider is configured; callers then use their deterministic paths.
func NewCompleter(ctx context.Context, cfg config.OracleConfig, logger *zap.Logger) (Completer, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	var (
		c   Completer
		err error
	)
	switch provider {
	case "", "none":
		logger.Info("no oracle provider configured; using deterministic extractors")
		return nil, nil
	case "openai", "azure":
		c, err = NewLangchainClient(cfg)
	case "bedrock", "aws":
		c, err = NewBedrockClient(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown oracle provider: %s (supported: none, openai, azure, bedrock)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("oracle provider configured", zap.String("provider", provider), zap.String("model", cfg.Model))
	return withTimeout(c, cfg.Timeout()), nil
}

type timeoutCompleter struct {
	next    Completer
	timeout time.Duration
}

func withTimeout(c Completer, timeout time.Duration) Completer {
	if timeout <= 0 {
		return c
	}
	return &timeoutCompleter{next: c, timeout: timeout}
}

func (t *timeoutCompleter) Complete(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, system, prompt)
}

// Truncate shortens model text for logging.
func Truncate(s string) string {
	const maxLength = 500
	if len(s) <= maxLength {
		return s
	}
	cut := maxLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... [truncated]"
}
