package processor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ecodeli/ecodeli-backend/internal/docvalidation/domain"
	"github.com/ecodeli/ecodeli-backend/pkg/logger"
)

// Fallback reasons reported in Outcome.Reason
const (
	ReasonReadError     = "read_error"
	ReasonCircuitOpen   = "circuit_open"
	ReasonTimeout       = "timeout"
	ReasonCanceled      = "canceled"
	ReasonBackendError  = "backend_error"
	ReasonUnsupported   = "unsupported_media"
	ReasonEmptyResponse = "empty_response"
)

// BreakerConfig tunes the circuit breaker around the remote backend
type BreakerConfig struct {
	MinRequests     uint32
	FailureRatio    float64
	OpenTimeout     time.Duration
	HalfOpenMaxCall uint32
}

// DefaultBreakerConfig returns the breaker settings used when none are configured
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MinRequests:     5,
		FailureRatio:    0.6,
		OpenTimeout:     30 * time.Second,
		HalfOpenMaxCall: 1,
	}
}

// Outcome describes how a submission was classified
type Outcome struct {
	Backend  string
	FellBack bool
	Reason   string
	Duration time.Duration
}

// Dispatcher invokes the configured backend once per request and falls back
// to the filename classifier on any failure. It never retries.
type Dispatcher struct {
	primary  Classifier
	fallback *BasicClassifier
	breaker  *gobreaker.CircuitBreaker[*domain.ValidationResult]
	timeout  time.Duration
	maxBytes int64
	log      *logger.Logger
}

// NewDispatcher creates a dispatcher. primary may be nil, in which case every
// request goes to the filename classifier.
func NewDispatcher(cfg domain.ValidationConfig, primary Classifier, breakerCfg BreakerConfig, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.Nop()
	}
	d := &Dispatcher{
		primary:  primary,
		fallback: NewBasicClassifier(),
		timeout:  cfg.RequestTimeout(),
		maxBytes: cfg.MaxFileSizeBytes(),
		log:      log.WithComponent("dispatcher"),
	}
	if primary != nil {
		d.breaker = newBreaker(primary.Name(), breakerCfg, d.log)
	}
	return d
}

func newBreaker(name string, cfg BreakerConfig, log *logger.Logger) *gobreaker.CircuitBreaker[*domain.ValidationResult] {
	defaults := DefaultBreakerConfig()
	if cfg.MinRequests == 0 {
		cfg.MinRequests = defaults.MinRequests
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = defaults.FailureRatio
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = defaults.OpenTimeout
	}
	if cfg.HalfOpenMaxCall == 0 {
		cfg.HalfOpenMaxCall = defaults.HalfOpenMaxCall
	}

	return gobreaker.NewCircuitBreaker[*domain.ValidationResult](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxCall,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// The caller going away says nothing about the backend
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("backend", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})
}

// Backend returns the name of the configured primary backend, or "basic"
func (d *Dispatcher) Backend() string {
	if d.primary == nil {
		return d.fallback.Name()
	}
	return d.primary.Name()
}

// Dispatch classifies sub. The returned result is never nil.
func (d *Dispatcher) Dispatch(ctx context.Context, sub Submission) (*domain.ValidationResult, Outcome) {
	start := time.Now()

	if d.primary == nil {
		result, _ := d.fallback.Classify(ctx, sub)
		return result, Outcome{Backend: d.fallback.Name(), Duration: time.Since(start)}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	result, err := d.classifyRemote(ctx, sub)
	if err == nil {
		return result, Outcome{Backend: d.primary.Name(), Duration: time.Since(start)}
	}

	reason := fallbackReason(err)
	d.log.Warn().
		Err(err).
		Str("backend", d.primary.Name()).
		Str("reason", reason).
		Msg("backend failed, falling back to filename classifier")

	fallback, _ := d.fallback.Classify(ctx, sub)
	return fallback, Outcome{
		Backend:  d.fallback.Name(),
		FellBack: true,
		Reason:   reason,
		Duration: time.Since(start),
	}
}

func (d *Dispatcher) classifyRemote(ctx context.Context, sub Submission) (*domain.ValidationResult, error) {
	if len(sub.Data) == 0 {
		data, err := readFile(ctx, sub.Path, d.maxBytes)
		if err != nil {
			return nil, err
		}
		sub.Data = data
	}

	return d.breaker.Execute(func() (*domain.ValidationResult, error) {
		result, err := d.primary.Classify(ctx, sub)
		if err != nil {
			return nil, err
		}
		if result == nil {
			return nil, ErrEmptyResponse
		}
		if ctx.Err() != nil {
			// An answer that arrived after the deadline is discarded
			return nil, ctx.Err()
		}
		result.SetConfidence(result.Confidence)
		return result, nil
	})
}

type readError struct{ err error }

func (e *readError) Error() string { return "read document: " + e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

func readFile(ctx context.Context, path string, maxBytes int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, &readError{err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, &readError{err: err}
	}
	if int64(len(data)) > maxBytes {
		return nil, &readError{err: fmt.Errorf("file exceeds %d bytes", maxBytes)}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data, nil
}

func fallbackReason(err error) string {
	var re *readError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ReasonCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.As(err, &re):
		return ReasonReadError
	case errors.Is(err, ErrUnsupportedMedia):
		return ReasonUnsupported
	case errors.Is(err, ErrEmptyResponse):
		return ReasonEmptyResponse
	default:
		return ReasonBackendError
	}
}
