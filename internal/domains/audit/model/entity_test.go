package model

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry() *Entry {
	return &Entry{
		ID:                  uuid.New(),
		EntityID:            "pay-1",
		EntityType:          "payment",
		Action:              ActionPaymentTransition,
		UserID:              "system",
		Timestamp:           time.Date(2026, 8, 26, 10, 30, 0, 250_000_000, time.UTC),
		Details:             "NEW -> AUTHORIZING",
		EntitySnapshotAfter: []byte(`{"status":"AUTHORIZING"}`),
	}
}

func TestIntegrityHash_Deterministic(t *testing.T) {
	e := sampleEntry()
	e.IntegrityHash = e.ComputeIntegrityHash()

	assert.Len(t, e.IntegrityHash, 64)
	assert.Equal(t, e.IntegrityHash, e.ComputeIntegrityHash())
	assert.True(t, e.VerifyIntegrity())
}

func TestIntegrityHash_DetectsTampering(t *testing.T) {
	e := sampleEntry()
	e.IntegrityHash = e.ComputeIntegrityHash()

	e.Details = "NEW -> CONFIRMED"
	assert.False(t, e.VerifyIntegrity())

	e = sampleEntry()
	e.IntegrityHash = e.ComputeIntegrityHash()
	e.EntitySnapshotAfter = []byte(`{"status":"CONFIRMED"}`)
	assert.False(t, e.VerifyIntegrity())

	e = sampleEntry()
	e.IntegrityHash = e.ComputeIntegrityHash()
	e.UserID = "intruder"
	assert.False(t, e.VerifyIntegrity())
}

func TestDeriveSeverity(t *testing.T) {
	assert.Equal(t, SeverityCritical, DeriveSeverity(ActionTeamLocked))
	assert.Equal(t, SeverityError, DeriveSeverity(ActionAuthFailed))
	assert.Equal(t, SeverityError, DeriveSeverity(ActionRuleDenied))
	assert.Equal(t, SeverityWarning, DeriveSeverity(ActionPaymentExpired))
	assert.Equal(t, SeverityInfo, DeriveSeverity(ActionPaymentCreated))
}

func TestDeriveCategory(t *testing.T) {
	assert.Equal(t, CategoryAuthentication, DeriveCategory(ActionAuthFailed))
	assert.Equal(t, CategoryRule, DeriveCategory(ActionRuleDenied))
	assert.Equal(t, CategoryConfiguration, DeriveCategory(ActionConfigChanged))
	assert.Equal(t, CategorySecurity, DeriveCategory(ActionTeamUpdated))
	assert.Equal(t, CategoryPayment, DeriveCategory(ActionPaymentTransition))
}

func TestSeverity_AtLeast(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeverityWarning))
	assert.True(t, SeverityWarning.AtLeast(SeverityWarning))
	assert.False(t, SeverityInfo.AtLeast(SeverityError))
}

func TestSnapshot(t *testing.T) {
	data, err := Snapshot(map[string]interface{}{"a": 1, "b": nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":null}`, string(data))

	data, err = Snapshot(nil)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestIsSensitiveAction(t *testing.T) {
	assert.True(t, IsSensitiveAction(ActionTeamLocked))
	assert.False(t, IsSensitiveAction(ActionPaymentCreated))
}
