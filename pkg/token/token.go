package token

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =====================================================
// MERCHANT REQUEST TOKEN
// =====================================================
// Deterministic canonical-hash scheme used on every merchant call.
//
// Algorithm:
// 1. Start from the top-level request parameter map
// 2. Drop "Token", "Receipt" and every non-scalar value
// 3. Add Password = <team secret>
// 4. Sort remaining keys byte-wise ascending
// 5. Concatenate the string form of each value, no separators
// 6. SHA-256 over the UTF-8 bytes, lowercase hex

const (
	tokenKey    = "Token"
	receiptKey  = "Receipt"
	passwordKey = "Password"

	// Timestamps are canonicalised to ISO-8601 with millisecond
	// precision and an explicit UTC suffix.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

// Generate computes the request token for a parameter map and team password.
// The input map is not modified.
func Generate(params map[string]interface{}, password string) string {
	entries := make(map[string]string, len(params)+1)

	for key, value := range params {
		if key == tokenKey || key == receiptKey {
			continue
		}
		str, ok := coerceScalar(value)
		if !ok {
			// Maps, lists and other composites never participate.
			continue
		}
		entries[key] = str
	}
	entries[passwordKey] = password

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	// Ordinal (byte-wise) ascending comparison.
	sort.Strings(keys)

	var sb strings.Builder
	for _, key := range keys {
		sb.WriteString(entries[key])
	}

	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the token and compares it against the submitted one
// in constant time.
func Verify(params map[string]interface{}, password, submitted string) bool {
	expected := Generate(params, password)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(submitted)) == 1
}

// coerceScalar renders a scalar parameter value in its canonical string
// form. Returns false for composite values, which are excluded from the
// canonical string entirely.
func coerceScalar(value interface{}) (string, bool) {
	switch v := value.(type) {
	case nil:
		// Null-of-scalar participates as the empty string.
		return "", true
	case string:
		return v, true
	case bool:
		if v {
			return "true", true
		}
		return "false", true
	case int:
		return strconv.FormatInt(int64(v), 10), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		// Invariant decimal form, no exponent, no trailing zeros.
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case json.Number:
		return v.String(), true
	case time.Time:
		return v.UTC().Format(timeLayout), true
	case *string:
		if v == nil {
			return "", true
		}
		return *v, true
	case *int64:
		if v == nil {
			return "", true
		}
		return strconv.FormatInt(*v, 10), true
	default:
		return "", false
	}
}
