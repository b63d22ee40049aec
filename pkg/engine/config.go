package engine

import (
	"fmt"
	"time"

	"github.com/dukex/stageflow/pkg/invoker"
	"github.com/go-playground/validator/v10"
)

// Config holds the numeric policy of the engine.
type Config struct {
	// MaxDepth is the deepest event that may still invoke actions.
	MaxDepth int `validate:"gte=0"`
	// Concurrency bounds sibling rules running at once for one event.
	Concurrency int `validate:"gte=1"`
	// Policy is the per-invocation timeout and retry policy.
	Policy invoker.Policy
}

// DefaultConfig returns depth 10, concurrency 4 and the default invoker policy.
func DefaultConfig() Config {
	return Config{
		MaxDepth:    10,
		Concurrency: 4,
		Policy:      invoker.DefaultPolicy(),
	}
}

// ConfigFrom builds a config from CLI-style values, keeping defaults for zero values.
func ConfigFrom(maxDepth, concurrency, maxAttempts int, timeout time.Duration) Config {
	config := DefaultConfig()

	if maxDepth > 0 {
		config.MaxDepth = maxDepth
	}

	if concurrency > 0 {
		config.Concurrency = concurrency
	}

	if maxAttempts > 0 {
		config.Policy.MaxAttempts = maxAttempts
	}

	if timeout > 0 {
		config.Policy.DefaultTimeout = timeout
	}

	return config
}

// Validate checks the struct tags of the config and its policy.
func (c Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	return nil
}
