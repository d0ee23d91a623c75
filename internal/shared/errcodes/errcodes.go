package errcodes

// =====================================================
// GATEWAY ERROR CODES
// =====================================================
// Numeric string codes returned on every API response and webhook.
// Each code carries routing metadata (category, severity, whether the
// merchant may retry, whether the cardholder must act, whether support
// should be contacted) and a localised message pair.

// Category groups codes by the subsystem that produced them.
type Category string

const (
	CategoryNone       Category = "NONE"
	CategoryValidation Category = "VALIDATION"
	CategoryAuth       Category = "AUTHENTICATION"
	CategoryBusiness   Category = "BUSINESS_RULE"
	CategoryState      Category = "STATE"
	CategoryProcessing Category = "PROCESSING"
	CategorySystem     Category = "SYSTEM"
)

// Severity ranks operational impact.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Code is the full description of one gateway error code.
type Code struct {
	Value              string
	Category           Category
	Severity           Severity
	Retryable          bool
	UserActionRequired bool
	SupportContact     bool
	MessageEN          string
	MessageRU          string
}

// Success codes. "0" is the canonical success marker, "2000" is the
// legacy alias some merchant integrations still expect.
const (
	Success       = "0"
	SuccessLegacy = "2000"
)

// Failure codes.
const (
	InvalidParams      = "1001"
	DuplicateOrder     = "1002"
	AuthenticationFail = "1003"
	PaymentNotFound    = "1004"
	RuleViolation      = "1005"
	InvalidTransition  = "1006"
	PaymentExpired     = "1007"
	AmountOutOfRange   = "1008"
	RefundExceedsTotal = "1009"
	TeamBlocked        = "1010"
	TeamNotFound       = "1011"
	RetryExhausted     = "1012"
	BankDeclined       = "1013"
	LockContention     = "3001"
	InternalError      = "9999"
)

var registry = map[string]Code{
	Success: {
		Value: Success, Category: CategoryNone, Severity: SeverityInfo,
		MessageEN: "Success",
		MessageRU: "Успешно",
	},
	SuccessLegacy: {
		Value: SuccessLegacy, Category: CategoryNone, Severity: SeverityInfo,
		MessageEN: "Success",
		MessageRU: "Успешно",
	},
	InvalidParams: {
		Value: InvalidParams, Category: CategoryValidation, Severity: SeverityWarning,
		UserActionRequired: true,
		MessageEN:          "Invalid request parameters",
		MessageRU:          "Неверные параметры запроса",
	},
	DuplicateOrder: {
		Value: DuplicateOrder, Category: CategoryBusiness, Severity: SeverityWarning,
		MessageEN: "Order with this identifier already has an active payment",
		MessageRU: "Заказ с таким идентификатором уже имеет активный платёж",
	},
	AuthenticationFail: {
		Value: AuthenticationFail, Category: CategoryAuth, Severity: SeverityError,
		UserActionRequired: true,
		MessageEN:          "Token authentication failed",
		MessageRU:          "Ошибка аутентификации токена",
	},
	PaymentNotFound: {
		Value: PaymentNotFound, Category: CategoryValidation, Severity: SeverityWarning,
		MessageEN: "Payment not found",
		MessageRU: "Платёж не найден",
	},
	RuleViolation: {
		Value: RuleViolation, Category: CategoryBusiness, Severity: SeverityWarning,
		UserActionRequired: true,
		MessageEN:          "Payment rejected by business rules",
		MessageRU:          "Платёж отклонён бизнес-правилами",
	},
	InvalidTransition: {
		Value: InvalidTransition, Category: CategoryState, Severity: SeverityError,
		MessageEN: "Operation is not allowed in the current payment status",
		MessageRU: "Операция недопустима в текущем статусе платежа",
	},
	PaymentExpired: {
		Value: PaymentExpired, Category: CategoryState, Severity: SeverityWarning,
		MessageEN: "Payment session has expired",
		MessageRU: "Время сессии платежа истекло",
	},
	AmountOutOfRange: {
		Value: AmountOutOfRange, Category: CategoryValidation, Severity: SeverityWarning,
		UserActionRequired: true,
		MessageEN:          "Amount is outside the allowed limits",
		MessageRU:          "Сумма выходит за допустимые пределы",
	},
	RefundExceedsTotal: {
		Value: RefundExceedsTotal, Category: CategoryValidation, Severity: SeverityWarning,
		MessageEN: "Refund amount exceeds the remaining confirmed amount",
		MessageRU: "Сумма возврата превышает остаток подтверждённой суммы",
	},
	TeamBlocked: {
		Value: TeamBlocked, Category: CategoryAuth, Severity: SeverityError,
		SupportContact: true,
		MessageEN:      "Merchant account is temporarily locked",
		MessageRU:      "Аккаунт мерчанта временно заблокирован",
	},
	TeamNotFound: {
		Value: TeamNotFound, Category: CategoryAuth, Severity: SeverityError,
		MessageEN: "Merchant terminal not found",
		MessageRU: "Терминал мерчанта не найден",
	},
	RetryExhausted: {
		Value: RetryExhausted, Category: CategoryProcessing, Severity: SeverityError,
		SupportContact: true,
		MessageEN:      "Payment retry attempts exhausted",
		MessageRU:      "Попытки повторной оплаты исчерпаны",
	},
	BankDeclined: {
		Value: BankDeclined, Category: CategoryProcessing, Severity: SeverityWarning,
		Retryable:          true,
		UserActionRequired: true,
		MessageEN:          "Payment was declined by the issuing bank",
		MessageRU:          "Платёж отклонён банком-эмитентом",
	},
	LockContention: {
		Value: LockContention, Category: CategorySystem, Severity: SeverityWarning,
		Retryable: true,
		MessageEN: "Payment is being processed by another operation, try again",
		MessageRU: "Платёж обрабатывается другой операцией, повторите попытку",
	},
	InternalError: {
		Value: InternalError, Category: CategorySystem, Severity: SeverityCritical,
		Retryable:      true,
		SupportContact: true,
		MessageEN:      "Internal gateway error",
		MessageRU:      "Внутренняя ошибка шлюза",
	},
}

// Lookup resolves a code to its full description. Unknown codes map to
// InternalError so callers always get a well-formed response.
func Lookup(value string) Code {
	if c, ok := registry[value]; ok {
		return c
	}
	return registry[InternalError]
}

// Message returns the localised message for a code. Supported languages
// are "en" and "ru"; anything else falls back to English.
func Message(value, lang string) string {
	c := Lookup(value)
	if lang == "ru" {
		return c.MessageRU
	}
	return c.MessageEN
}

// IsSuccess reports whether a code marks a successful operation.
func IsSuccess(value string) bool {
	return value == Success || value == SuccessLegacy
}

// IsRetryable reports whether the failure may be retried automatically.
// Used by the retry scheduler to filter permanent declines.
func IsRetryable(value string) bool {
	return Lookup(value).Retryable
}
