package suraksh

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Ayush-3103-AI/Suraksh/internal/crypto"
)

// DefaultChunkSize is the plaintext chunk size for file artifacts.
const DefaultChunkSize = 4096

// RetryConfig bounds the retry loop used when an optimistic save loses
// a concurrent update race.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig returns sensible retry defaults for store
// contention.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   1 * time.Second,
	}
}

// Options configures a Vault.
type Options struct {
	// ChunkSize is the plaintext bytes per encrypted chunk. Zero means
	// DefaultChunkSize.
	ChunkSize int

	// Logger receives operational events. The audit trail is the
	// ledger; this channel only carries diagnostics. Nil means a
	// default logrus logger.
	Logger *logrus.Logger

	// Augmenter supplies the secondary shared secret mixed into hybrid
	// key wraps. Nil means crypto.DefaultAugmenter.
	Augmenter crypto.SecretAugmenter

	// Retry bounds optimistic-concurrency retries. Zero value means
	// DefaultRetryConfig.
	Retry RetryConfig
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Augmenter == nil {
		o.Augmenter = crypto.DefaultAugmenter
	}
	if o.Retry.MaxRetries <= 0 {
		o.Retry = DefaultRetryConfig()
	}
	return o
}
