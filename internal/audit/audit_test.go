package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/migration-estimator-api/internal/models"
)

type record struct {
	Status   string            `json:"status"`
	Comments *string           `json:"comments"`
	Nested   map[string]string `json:"nested,omitempty"`
}

func TestDiffReportsOnlyChangedFields(t *testing.T) {
	before := record{Status: "New", Nested: map[string]string{"a": "1", "b": "2"}}
	note := "called"
	after := record{Status: "Contacted", Comments: &note, Nested: map[string]string{"a": "1", "b": "3"}}

	diff, err := DiffValues(before, after)
	require.NoError(t, err)
	assert.Equal(t, []string{"comments", "nested.b", "status"}, diff.Fields())
	assert.Equal(t, models.Present(nil), diff["comments"].Old)
	assert.Equal(t, models.Present("called"), diff["comments"].New)
}

func TestDiffDistinguishesAbsentFromNull(t *testing.T) {
	before := Snapshot{"a": nil}
	after := Snapshot{}
	diff := Diff(before, after)
	require.Contains(t, diff, "a")
	assert.True(t, diff["a"].Old.Present)
	assert.False(t, diff["a"].New.Present)

	raw, err := json.Marshal(diff)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":{"old":null}}`, string(raw))
}

func TestDiffOfIdenticalValuesIsEmpty(t *testing.T) {
	diff, err := DiffValues(record{Status: "New"}, record{Status: "New"})
	require.NoError(t, err)
	assert.Empty(t, diff)
}

func TestCreateDiffHasNoOldSide(t *testing.T) {
	diff, err := DiffValues(nil, record{Status: "New"})
	require.NoError(t, err)
	require.Contains(t, diff, "status")
	assert.False(t, diff["status"].Old.Present)
}

func TestChainSealAndVerify(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	rec := NewRecorderWithClock(func() time.Time { return fixed })
	actor := models.Actor{UserID: "s-1", Role: models.RoleSales, Active: true}

	first, err := rec.Mutation(context.Background(), actor, models.AuditEntitySubmission, "sub-1", models.AuditActionCreate, nil, record{Status: "New"})
	require.NoError(t, err)
	assert.Equal(t, fixed.Truncate(time.Microsecond), first.Timestamp)
	require.NoError(t, Seal(first, ""))

	second, err := rec.Mutation(context.Background(), actor, models.AuditEntitySubmission, "sub-1", models.AuditActionUpdateStatus, record{Status: "New"}, record{Status: "Contacted"})
	require.NoError(t, err)
	require.NoError(t, Seal(second, first.Hash))

	entries := []models.AuditLogEntry{*first, *second}
	ok, broken := Verify(entries)
	assert.True(t, ok)
	assert.Empty(t, broken)

	entries[0].Diff["status"] = models.FieldChange{New: models.Present("Closed Won")}
	ok, broken = Verify(entries)
	assert.False(t, ok)
	assert.Equal(t, first.ID, broken)
}

func TestHashStableAcrossStorageRoundTrip(t *testing.T) {
	rec := NewRecorder()
	entry, err := rec.Mutation(context.Background(), models.Actor{UserID: "a-1"}, "submission", "sub-1", models.AuditActionRecompute,
		map[string]interface{}{"estimate": map[string]interface{}{"totalCost": "48000", "totalWeeks": 10}},
		map[string]interface{}{"estimate": map[string]interface{}{"totalCost": "54500", "totalWeeks": 11}},
	)
	require.NoError(t, err)
	require.NoError(t, Seal(entry, "sha256:prev"))

	stored, err := entry.Diff.Value()
	require.NoError(t, err)
	var reloaded models.AuditDiff
	require.NoError(t, reloaded.Scan(stored))

	copyEntry := *entry
	copyEntry.Diff = reloaded
	copyEntry.Timestamp = entry.Timestamp.In(time.FixedZone("WIB", 7*3600))
	hash, err := Hash(copyEntry)
	require.NoError(t, err)
	assert.Equal(t, entry.Hash, hash)
}

func TestLargeBudgetSurvivesStorageAndVerify(t *testing.T) {
	type form struct {
		CustomerInfo models.CustomerInfo `json:"customerInfo"`
	}
	budget := decimal.RequireFromString("12345678901234567.89")
	before := form{CustomerInfo: models.CustomerInfo{CompanyName: "Acme", RoughBudget: budget}}

	stored, err := before.CustomerInfo.Value()
	require.NoError(t, err)
	var reloaded models.CustomerInfo
	require.NoError(t, reloaded.Scan(stored))
	assert.True(t, reloaded.RoughBudget.Equal(budget))

	diff, err := DiffValues(before, form{CustomerInfo: reloaded})
	require.NoError(t, err)
	assert.Empty(t, diff)

	entry, err := NewRecorder().Mutation(context.Background(), models.Actor{UserID: "u-1"}, models.AuditEntitySubmission, "sub-1", models.AuditActionCreate, nil, before)
	require.NoError(t, err)
	require.NoError(t, Seal(entry, ""))
	assert.Equal(t, budget.String(), entry.Diff["customerInfo.roughBudget"].New.Value)

	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	var fromAPI models.AuditLogEntry
	require.NoError(t, json.Unmarshal(raw, &fromAPI))
	ok, broken := Verify([]models.AuditLogEntry{fromAPI})
	assert.True(t, ok)
	assert.Empty(t, broken)
}

func TestFailureEntryCarriesReasonAndRequestMeta(t *testing.T) {
	ctx := WithRequestMeta(context.Background(), RequestMeta{IPAddress: "10.0.0.1", UserAgent: "curl"})
	entry := NewRecorder().Failure(ctx, models.Actor{UserID: "u-1"}, "submission", "sub-1", models.AuditActionAccessDenied, "updateStatus")
	require.NotNil(t, entry.Reason)
	assert.Equal(t, "updateStatus", *entry.Reason)
	assert.Equal(t, "10.0.0.1", entry.IPAddress)
	assert.Empty(t, entry.Diff)

	assert.Equal(t, "system", RequestMetaFrom(context.Background()).IPAddress)
}
