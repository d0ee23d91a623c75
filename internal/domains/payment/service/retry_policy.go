package service

import (
	"math"
	"math/rand"
	"time"

	"paygate-backend/internal/shared/errcodes"
)

// =====================================================
// RETRY POLICIES
// =====================================================
// A policy names a bounded-backoff configuration plus the error codes
// it considers transient. Codes outside the set are never retried.

const (
	PolicyDefault      = "default"
	PolicyAggressive   = "aggressive"
	PolicyConservative = "conservative"
)

// Policy is one named retry configuration.
type Policy struct {
	Name           string
	MaxAttempts    int
	InitialDelay   time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	JitterFraction float64

	// RetryableCodes is the allow-list of gateway error codes worth
	// retrying. Unknown codes are non-retryable.
	RetryableCodes map[string]bool

	// DelayFunc overrides the exponential schedule when set. The
	// argument is the 1-based backoff step.
	DelayFunc func(step int) time.Duration
}

// transientCodes is the shared base set of retryable failures.
func transientCodes() map[string]bool {
	return map[string]bool{
		errcodes.BankDeclined:       true,
		errcodes.LockContention:     true,
		errcodes.InternalError:      true,
		errcodes.DuplicateOrder:     false,
		errcodes.InvalidParams:      false,
		errcodes.AuthenticationFail: false,
		errcodes.RuleViolation:      false,
	}
}

// DefaultPolicy is the standard schedule: 1 s, 2 s, 4 s.
func DefaultPolicy() Policy {
	return Policy{
		Name:           PolicyDefault,
		MaxAttempts:    3,
		InitialDelay:   time.Second,
		Multiplier:     2.0,
		MaxDelay:       30 * time.Minute,
		JitterFraction: 0.1,
		RetryableCodes: transientCodes(),
	}
}

// AggressivePolicy retries more often with shorter waits.
func AggressivePolicy() Policy {
	return Policy{
		Name:           PolicyAggressive,
		MaxAttempts:    5,
		InitialDelay:   500 * time.Millisecond,
		Multiplier:     1.5,
		MaxDelay:       10 * time.Minute,
		JitterFraction: 0.1,
		RetryableCodes: transientCodes(),
	}
}

// ConservativePolicy backs off hard; used for high-value payments.
func ConservativePolicy() Policy {
	return Policy{
		Name:           PolicyConservative,
		MaxAttempts:    2,
		InitialDelay:   5 * time.Second,
		Multiplier:     3.0,
		MaxDelay:       time.Hour,
		JitterFraction: 0.1,
		RetryableCodes: transientCodes(),
	}
}

// PolicyByName resolves a policy name, falling back to default.
func PolicyByName(name string) Policy {
	switch name {
	case PolicyAggressive:
		return AggressivePolicy()
	case PolicyConservative:
		return ConservativePolicy()
	default:
		return DefaultPolicy()
	}
}

// SelectPolicy picks a policy by amount band. High-value payments back
// off conservatively; the selection is deterministic.
func SelectPolicy(amount, highValueThreshold int64) Policy {
	if highValueThreshold > 0 && amount >= highValueThreshold {
		return ConservativePolicy()
	}
	return DefaultPolicy()
}

// IsRetryable reports whether the code is in the policy's transient
// set. Unknown codes are non-retryable.
func (p Policy) IsRetryable(code string) bool {
	return p.RetryableCodes[code]
}

// Delay computes the wait before backoff step (1-based): initial *
// multiplier^(step-1), capped, with symmetric jitter applied.
func (p Policy) Delay(step int) time.Duration {
	if p.DelayFunc != nil {
		return p.DelayFunc(step)
	}
	if step < 1 {
		step = 1
	}

	d := time.Duration(float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(step-1)))
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}

	if p.JitterFraction > 0 {
		spread := float64(d) * p.JitterFraction
		d += time.Duration((rand.Float64()*2 - 1) * spread)
	}
	if d < 0 {
		d = 0
	}
	return d
}
