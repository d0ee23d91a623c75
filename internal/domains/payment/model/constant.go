package model

// =====================================================
// PAYMENT STATUS
// =====================================================

// Status is the closed payment lifecycle enumeration. Values are stored
// verbatim in the payments table and in transition records.
type Status string

const (
	StatusInit            Status = "INIT"
	StatusNew             Status = "NEW"
	StatusFormShowed      Status = "FORM_SHOWED"
	StatusOneChooseVision Status = "ONECHOOSEVISION"
	StatusFinishAuthorize Status = "FINISHAUTHORIZE"
	StatusAuthorizing     Status = "AUTHORIZING"
	StatusAuthorized      Status = "AUTHORIZED"
	StatusAuthFail        Status = "AUTH_FAIL"
	StatusConfirm         Status = "CONFIRM"
	StatusConfirming      Status = "CONFIRMING"
	StatusConfirmed       Status = "CONFIRMED"
	StatusCancel          Status = "CANCEL"
	StatusCancelling      Status = "CANCELLING"
	StatusCancelled       Status = "CANCELLED"
	StatusReversing       Status = "REVERSING"
	StatusReversed        Status = "REVERSED"
	StatusRefunding       Status = "REFUNDING"
	StatusRefunded        Status = "REFUNDED"
	StatusPartialRefunded Status = "PARTIAL_REFUNDED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
	StatusDeadlineExpired Status = "DEADLINE_EXPIRED"
)

// ValidStatuses lists every member of the enumeration, in lifecycle order.
var ValidStatuses = []Status{
	StatusInit,
	StatusNew,
	StatusFormShowed,
	StatusOneChooseVision,
	StatusFinishAuthorize,
	StatusAuthorizing,
	StatusAuthorized,
	StatusAuthFail,
	StatusConfirm,
	StatusConfirming,
	StatusConfirmed,
	StatusCancel,
	StatusCancelling,
	StatusCancelled,
	StatusReversing,
	StatusReversed,
	StatusRefunding,
	StatusRefunded,
	StatusPartialRefunded,
	StatusRejected,
	StatusExpired,
	StatusDeadlineExpired,
}

// terminalStatuses admit no further outgoing transition. CONFIRMED is
// conditionally terminal: it may still advance into the refund path and
// is therefore not listed here.
var terminalStatuses = map[Status]bool{
	StatusCancelled:       true,
	StatusReversed:        true,
	StatusRefunded:        true,
	StatusRejected:        true,
	StatusExpired:         true,
	StatusDeadlineExpired: true,
}

// IsTerminal reports whether the status admits no outgoing transitions.
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsValid reports whether the value is a member of the enumeration.
func (s Status) IsValid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) String() string {
	return string(s)
}

// =====================================================
// OPERATION DEFAULTS
// =====================================================
const (
	// DefaultPaymentExpiryMinutes applies when the merchant omits
	// PaymentExpiry on init.
	DefaultPaymentExpiryMinutes = 15

	// MaxPaymentExpiryMinutes caps merchant-requested expiry windows.
	MaxPaymentExpiryMinutes = 60 * 24

	// DefaultMaxAuthorizationAttempts bounds authorization retries
	// per payment unless the team overrides it.
	DefaultMaxAuthorizationAttempts = 3

	// MaxRetryablePaymentAgeHours: payments older than this are never
	// retried regardless of policy.
	MaxRetryablePaymentAgeHours = 24
)

// =====================================================
// SUPPORTED CURRENCIES
// =====================================================
var SupportedCurrencies = []string{"RUB", "USD", "EUR", "KZT", "BYN"}

// IsSupportedCurrency checks a currency code against the gateway list.
func IsSupportedCurrency(code string) bool {
	for _, c := range SupportedCurrencies {
		if c == code {
			return true
		}
	}
	return false
}
