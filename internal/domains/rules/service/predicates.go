package service

import (
	"encoding/json"
	"fmt"

	"paygate-backend/internal/domains/rules/model"
)

// =====================================================
// TYPED PREDICATES
// =====================================================
// One predicate per rule type. A predicate answers "is this rule
// violated by the context" plus a human-readable message. Thresholds
// come from the rule's parameter map.

func evaluatePredicate(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	switch rule.Type {
	case model.TypePaymentLimit:
		return checkPaymentLimit(rule, ectx)
	case model.TypeAmountValidation:
		return checkAmountValidation(rule, ectx)
	case model.TypeCurrencyValidation:
		return checkCurrencyValidation(rule, ectx)
	case model.TypeTeamRestriction:
		return checkTeamRestriction(rule)
	case model.TypeGeographicRestriction:
		return checkGeographicRestriction(rule, ectx)
	case model.TypeTimeRestriction:
		return checkTimeRestriction(rule, ectx)
	case model.TypePaymentMethodRestriction:
		return checkPaymentMethodRestriction(rule, ectx)
	case model.TypeFraudPrevention:
		return checkFraudPrevention(rule, ectx)
	case model.TypeComplianceCheck:
		return checkComplianceCheck(rule, ectx)
	case model.TypeCustomerRestriction:
		return checkCustomerRestriction(rule, ectx)
	case model.TypeCustomValidation:
		// Free-form expressions are not evaluated; the type exists for
		// operator bookkeeping only.
		return false, ""
	default:
		return false, ""
	}
}

func checkPaymentLimit(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if limit, ok := paramInt64(rule.Parameters, "transaction_limit"); ok && ectx.Amount > limit {
		return true, fmt.Sprintf("amount %d exceeds transaction limit %d", ectx.Amount, limit)
	}
	if daily, ok := paramInt64(rule.Parameters, "daily_limit"); ok && ectx.DailyTotal+ectx.Amount > daily {
		return true, fmt.Sprintf("daily total %d would exceed limit %d", ectx.DailyTotal+ectx.Amount, daily)
	}
	return false, ""
}

func checkAmountValidation(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if min, ok := paramInt64(rule.Parameters, "min_amount"); ok && ectx.Amount < min {
		return true, fmt.Sprintf("amount %d is below minimum %d", ectx.Amount, min)
	}
	if max, ok := paramInt64(rule.Parameters, "max_amount"); ok && ectx.Amount > max {
		return true, fmt.Sprintf("amount %d is above maximum %d", ectx.Amount, max)
	}
	return false, ""
}

func checkCurrencyValidation(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if len(rule.AllowedCurrencies) == 0 {
		return false, ""
	}
	for _, c := range rule.AllowedCurrencies {
		if c == ectx.Currency {
			return false, ""
		}
	}
	return true, fmt.Sprintf("currency %s is not allowed", ectx.Currency)
}

func checkTeamRestriction(rule *model.Rule) (bool, string) {
	if blocked, ok := paramBool(rule.Parameters, "blocked"); ok && blocked {
		return true, "team is restricted from creating payments"
	}
	return false, ""
}

func checkGeographicRestriction(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if len(rule.AllowedCountries) == 0 || ectx.Country == "" {
		return false, ""
	}
	for _, c := range rule.AllowedCountries {
		if c == ectx.Country {
			return false, ""
		}
	}
	return true, fmt.Sprintf("country %s is not allowed", ectx.Country)
}

func checkTimeRestriction(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	start, hasStart := paramInt64(rule.Parameters, "allowed_hour_start")
	end, hasEnd := paramInt64(rule.Parameters, "allowed_hour_end")
	if !hasStart || !hasEnd {
		return false, ""
	}

	hour := int64(ectx.Now.UTC().Hour())
	if hour < start || hour >= end {
		return true, fmt.Sprintf("payments are only allowed between %02d:00 and %02d:00 UTC", start, end)
	}
	return false, ""
}

func checkPaymentMethodRestriction(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if len(rule.AllowedPaymentMethods) == 0 || ectx.PaymentMethod == "" {
		return false, ""
	}
	for _, m := range rule.AllowedPaymentMethods {
		if m == ectx.PaymentMethod {
			return false, ""
		}
	}
	return true, fmt.Sprintf("payment method %s is not allowed", ectx.PaymentMethod)
}

func checkFraudPrevention(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if max, ok := paramInt64(rule.Parameters, "max_risk_score"); ok && int64(ectx.RiskScore) > max {
		return true, fmt.Sprintf("risk score %d exceeds threshold %d", ectx.RiskScore, max)
	}
	return false, ""
}

func checkComplianceCheck(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	if required, ok := paramBool(rule.Parameters, "require_email"); ok && required && ectx.Email == "" {
		return true, "email is required for this payment"
	}
	if required, ok := paramBool(rule.Parameters, "require_customer_key"); ok && required && ectx.CustomerKey == "" {
		return true, "customer key is required for this payment"
	}
	return false, ""
}

func checkCustomerRestriction(rule *model.Rule, ectx model.EvaluationContext) (bool, string) {
	blocked, ok := rule.Parameters["blocked_customers"]
	if !ok || ectx.CustomerKey == "" {
		return false, ""
	}

	list, ok := blocked.([]interface{})
	if !ok {
		return false, ""
	}
	for _, item := range list {
		if s, ok := item.(string); ok && s == ectx.CustomerKey {
			return true, fmt.Sprintf("customer %s is blocked", ectx.CustomerKey)
		}
	}
	return false, ""
}

// =====================================================
// PARAMETER HELPERS
// =====================================================
// JSONB parameters decode numbers as float64 (or json.Number); both
// forms are accepted.

func paramInt64(params map[string]interface{}, key string) (int64, bool) {
	raw, ok := params[key]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func paramBool(params map[string]interface{}, key string) (bool, bool) {
	raw, ok := params[key]
	if !ok {
		return false, false
	}
	b, ok := raw.(bool)
	return b, ok
}
