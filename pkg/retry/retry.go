// Package retry decides which failures are worth another attempt and runs
// operations under a bounded exponential backoff.
package retry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goRetry "github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"github.com/sidkik/drivesync/pkg/errors"
)

// Class is the retry classification of an error.
type Class int

const (
	// Fatal errors end the operation immediately.
	Fatal Class = iota

	// Transient errors are retried with backoff until the attempts run out.
	Transient

	// Skippable errors end the operation without counting it as a failure.
	Skippable
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case Skippable:
		return "skippable"
	default:
		return "fatal"
	}
}

// Classify maps an error onto its retry class.
func Classify(err error) Class {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Fatal
	case errors.Is(err, errors.ErrUnsupportedKind), errors.Is(err, errors.ErrQuotaExceeded):
		return Skippable
	case errors.Is(err, errors.ErrRateLimited):
		return Transient
	case isCertificateError(err):
		return Fatal
	case errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.ErrUnexpectedEOF):
		return Transient
	}

	var recordErr tls.RecordHeaderError
	var alertErr tls.AlertError
	if errors.As(err, &recordErr) || errors.As(err, &alertErr) {
		return Transient
	}

	var opErr *net.OpError
	var netErr net.Error
	if errors.As(err, &opErr) || errors.As(err, &netErr) {
		return Transient
	}
	return Fatal
}

// Certificate verification failures won't fix themselves, even though they
// usually arrive wrapped in a net.Error.
func isCertificateError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	var unknownAuthority x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &verifyErr) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// Policy describes the backoff schedule.
type Policy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts int

	// Multiplier is the base of the exponential schedule.
	Multiplier time.Duration

	// MinDelay and MaxDelay bound every individual wait.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// DefaultPolicy returns the policy used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:   5,
		Multiplier: time.Second,
		MinDelay:   4 * time.Second,
		MaxDelay:   10 * time.Second,
	}
}

// Backoff returns a fresh schedule for one operation. The schedule yields
// Attempts-1 delays, each within [MinDelay, MaxDelay] and never shorter than
// the one before it.
func (p Policy) Backoff() goRetry.Backoff {
	multiplier := p.Multiplier
	if multiplier <= 0 {
		multiplier = time.Second
	}

	retries := uint64(0)
	if p.Attempts > 1 {
		retries = uint64(p.Attempts - 1)
	}

	b := goRetry.NewExponential(multiplier)
	if p.MaxDelay > 0 {
		b = goRetry.WithCappedDuration(p.MaxDelay, b)
	}
	b = withFloor(p.MinDelay, b)
	return goRetry.WithMaxRetries(retries, b)
}

func withFloor(floor time.Duration, next goRetry.Backoff) goRetry.Backoff {
	return goRetry.BackoffFunc(func() (time.Duration, bool) {
		val, stop := next.Next()
		if stop {
			return 0, true
		}
		if val < floor {
			val = floor
		}
		return val, false
	})
}

// ExhaustedError is returned when a transient error persisted through every
// attempt.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (err ExhaustedError) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts: %s", err.Op, err.Attempts, err.Err)
}

func (err ExhaustedError) Unwrap() error {
	return err.Err
}

// Executor runs operations under a Policy.
type Executor struct {
	Policy   Policy
	Classify func(error) Class
	Clock    clockwork.Clock
	Log      log.FieldLogger
}

// NewExecutor returns an Executor that uses the real clock and the default
// classification.
func NewExecutor(policy Policy, logger log.FieldLogger) *Executor {
	return &Executor{
		Policy:   policy,
		Classify: Classify,
		Clock:    clockwork.NewRealClock(),
		Log:      logger,
	}
}

// Do calls fn until it succeeds, returns a non-transient error, or the policy
// runs out of attempts. `op` names the operation in logs and errors. A nil
// Executor calls fn exactly once.
func (e *Executor) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if e == nil {
		e = &Executor{Policy: Policy{Attempts: 1}}
	}

	classify := e.Classify
	if classify == nil {
		classify = Classify
	}
	clock := e.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	logger := e.Log
	if logger == nil {
		logger = log.StandardLogger()
	}

	backoff := e.Policy.Backoff()
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.WithContext(err, op)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if classify(err) != Transient || ctx.Err() != nil {
			return err
		}

		delay, stop := backoff.Next()
		if stop {
			return ExhaustedError{Op: op, Attempts: attempt, Err: err}
		}

		logger.WithError(err).WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Transient failure. Retrying.")

		select {
		case <-ctx.Done():
			return errors.WithContext(ctx.Err(), op)
		case <-clock.After(delay):
		}
	}
}

// DoWithResult is Do for operations that produce a value.
func DoWithResult[T any](ctx context.Context, e *Executor, op string,
	fn func(context.Context) (T, error)) (T, error) {

	var result T
	err := e.Do(ctx, op, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
