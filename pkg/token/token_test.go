package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseParams() map[string]interface{} {
	return map[string]interface{}{
		"TeamSlug": "acme",
		"OrderId":  "O-1",
		"Amount":   int64(150000),
		"Currency": "RUB",
	}
}

func TestGenerateDeterministic(t *testing.T) {
	first := Generate(baseParams(), "secret")
	second := Generate(baseParams(), "secret")

	require.Len(t, first, 64)
	assert.Equal(t, first, second)
}

func TestGenerateIgnoresTokenReceiptAndComposites(t *testing.T) {
	params := baseParams()
	reference := Generate(params, "secret")

	params["Token"] = "anything"
	params["Receipt"] = map[string]interface{}{"Email": "x@y.z"}
	params["Items"] = []interface{}{"a", "b"}
	params["Data"] = map[string]string{"k": "v"}

	assert.Equal(t, reference, Generate(params, "secret"))
}

func TestGenerateOrderIndependent(t *testing.T) {
	// Maps have no iteration order guarantee, so build the same logical
	// request through different insert orders.
	a := map[string]interface{}{}
	a["Currency"] = "RUB"
	a["Amount"] = int64(150000)
	a["OrderId"] = "O-1"
	a["TeamSlug"] = "acme"

	assert.Equal(t, Generate(baseParams(), "secret"), Generate(a, "secret"))
}

func TestGenerateSensitivity(t *testing.T) {
	reference := Generate(baseParams(), "secret")

	tampered := baseParams()
	tampered["Amount"] = int64(150001)
	assert.NotEqual(t, reference, Generate(tampered, "secret"))

	assert.NotEqual(t, reference, Generate(baseParams(), "other-secret"))
}

func TestScalarCoercion(t *testing.T) {
	ts := time.Date(2026, 8, 26, 10, 30, 0, 250_000_000, time.UTC)

	params := map[string]interface{}{
		"Bool":  true,
		"Null":  nil,
		"Float": 12.50,
		"When":  ts,
	}

	// true + "" + "12.5" + ISO timestamp, concatenated in key order
	// (Bool, Float, Null, Password, When).
	got, ok := coerceScalar(ts)
	require.True(t, ok)
	assert.Equal(t, "2026-08-26T10:30:00.250Z", got)

	got, ok = coerceScalar(12.50)
	require.True(t, ok)
	assert.Equal(t, "12.5", got)

	_, ok = coerceScalar([]string{"no"})
	assert.False(t, ok)

	first := Generate(params, "pw")
	assert.Equal(t, first, Generate(params, "pw"))
}

func TestVerify(t *testing.T) {
	params := baseParams()
	tok := Generate(params, "secret")

	assert.True(t, Verify(params, "secret", tok))
	assert.False(t, Verify(params, "secret", tok[:63]+"x"))
	assert.False(t, Verify(params, "wrong", tok))

	params["Amount"] = int64(1)
	assert.False(t, Verify(params, "secret", tok))
}
