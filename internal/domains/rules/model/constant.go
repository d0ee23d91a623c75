package model

// =====================================================
// RULE TYPES
// =====================================================

// RuleType tags the predicate a rule evaluates.
type RuleType string

const (
	TypePaymentLimit             RuleType = "PAYMENT_LIMIT"
	TypeAmountValidation         RuleType = "AMOUNT_VALIDATION"
	TypeCurrencyValidation       RuleType = "CURRENCY_VALIDATION"
	TypeTeamRestriction          RuleType = "TEAM_RESTRICTION"
	TypeGeographicRestriction    RuleType = "GEOGRAPHIC_RESTRICTION"
	TypeTimeRestriction          RuleType = "TIME_RESTRICTION"
	TypePaymentMethodRestriction RuleType = "PAYMENT_METHOD_RESTRICTION"
	TypeFraudPrevention          RuleType = "FRAUD_PREVENTION"
	TypeComplianceCheck          RuleType = "COMPLIANCE_CHECK"
	TypeCustomValidation         RuleType = "CUSTOM_VALIDATION"
	TypeCustomerRestriction      RuleType = "CUSTOMER_RESTRICTION"
)

var ValidRuleTypes = []RuleType{
	TypePaymentLimit,
	TypeAmountValidation,
	TypeCurrencyValidation,
	TypeTeamRestriction,
	TypeGeographicRestriction,
	TypeTimeRestriction,
	TypePaymentMethodRestriction,
	TypeFraudPrevention,
	TypeComplianceCheck,
	TypeCustomValidation,
	TypeCustomerRestriction,
}

// =====================================================
// RULE ACTIONS
// =====================================================

// RuleAction decides what a violated rule does to the operation.
type RuleAction string

const (
	ActionAllow           RuleAction = "ALLOW"
	ActionDeny            RuleAction = "DENY"
	ActionWarn            RuleAction = "WARN"
	ActionRequireApproval RuleAction = "REQUIRE_APPROVAL"
	ActionApplyFee        RuleAction = "APPLY_FEE"
	ActionRedirect        RuleAction = "REDIRECT"
)

var ValidRuleActions = []RuleAction{
	ActionAllow,
	ActionDeny,
	ActionWarn,
	ActionRequireApproval,
	ActionApplyFee,
	ActionRedirect,
}

// ContextType names the operation being guarded.
type ContextType string

const (
	ContextPaymentInit   ContextType = "payment.init"
	ContextPaymentRefund ContextType = "payment.refund"
)
