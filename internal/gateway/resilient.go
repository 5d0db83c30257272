package gateway

import (
	"context"
	"errors"
	"time"

	"github.com/mcofie/gatepass-settlement/internal/domain"
	"github.com/mcofie/gatepass-settlement/pkg/logger"
	"github.com/mcofie/gatepass-settlement/pkg/retry"
	"go.uber.org/zap"
)

// ResilientVerifier retries transient verification failures and stops calling
// the gateway while it is failing
type ResilientVerifier struct {
	next    Verifier
	retrier *retry.Retrier
	breaker *CircuitBreaker
}

// ResilientConfig configures a ResilientVerifier
type ResilientConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Breaker         *BreakerConfig
}

// NewResilientVerifier wraps next with retry and a circuit breaker
func NewResilientVerifier(next Verifier, config *ResilientConfig) *ResilientVerifier {
	if config == nil {
		config = &ResilientConfig{}
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialInterval <= 0 {
		config.InitialInterval = 200 * time.Millisecond
	}
	if config.MaxInterval <= 0 {
		config.MaxInterval = 2 * time.Second
	}
	if config.Breaker == nil {
		config.Breaker = DefaultBreakerConfig(next.Name())
	}

	return &ResilientVerifier{
		next: next,
		retrier: retry.New(&retry.Config{
			MaxRetries:      config.MaxRetries,
			InitialInterval: config.InitialInterval,
			MaxInterval:     config.MaxInterval,
			Multiplier:      2.0,
			JitterFactor:    0.1,
			ShouldRetry:     isVerificationError,
		}),
		breaker: NewCircuitBreaker(config.Breaker),
	}
}

// Verify verifies through the breaker, retrying VerificationError
func (v *ResilientVerifier) Verify(ctx context.Context, reference string) (*TransactionResult, error) {
	var result *TransactionResult

	res := v.retrier.DoWithCallback(ctx, func(ctx context.Context) error {
		err := v.breaker.Execute(func() error {
			r, err := v.next.Verify(ctx, reference)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrTooManyRequests) {
			return retry.Permanent(&domain.VerificationError{Reference: reference, Err: err})
		}
		return err
	}, func(attempt int, err error, next time.Duration) {
		logger.Get().Warn("Retrying gateway verification",
			zap.String("gateway", v.next.Name()),
			zap.String("reference", reference),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	})

	if res.Err == nil {
		return result, nil
	}

	lastErr := res.LastError
	if lastErr == nil {
		lastErr = res.Err
	}
	var ve *domain.VerificationError
	if errors.As(lastErr, &ve) {
		return nil, ve
	}
	if errors.Is(res.Err, retry.ErrContextCanceled) {
		return nil, &domain.VerificationError{Reference: reference, Err: ctx.Err()}
	}
	return nil, lastErr
}

// Name returns the wrapped gateway's name
func (v *ResilientVerifier) Name() string {
	return v.next.Name()
}

// BreakerState exposes the breaker state for readiness checks
func (v *ResilientVerifier) BreakerState() BreakerState {
	return v.breaker.State()
}

func isVerificationError(err error) bool {
	var ve *domain.VerificationError
	return errors.As(err, &ve)
}
