package alert

import (
	"testing"
	"time"

	"safetrip/internal/domain/geo"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPoint(t *testing.T) geo.Point {
	t.Helper()
	p, err := geo.NewPoint(6.5244, 3.3792)
	require.NoError(t, err)
	return p
}

func TestNewAppliesKindDefaults(t *testing.T) {
	a, err := New("a1", KindFlood, "lagos-island", validPoint(t), SeverityMedium, "street flooding")
	require.NoError(t, err)

	assert.Equal(t, 1000.0, a.TriggerRadius)
	assert.False(t, a.Triggered)
	assert.True(t, a.ValidUntil.IsZero())

	traffic, err := New("a2", KindTraffic, "", validPoint(t), SeverityLow, "")
	require.NoError(t, err)
	assert.Equal(t, 5000.0, traffic.TriggerRadius)
}

func TestNewValidates(t *testing.T) {
	_, err := New("", KindFlood, "", validPoint(t), SeverityLow, "")
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = New("a1", Kind("VOLCANO"), "", validPoint(t), SeverityLow, "")
	assert.ErrorIs(t, err, ErrInvalidKind)

	_, err = New("a1", KindFlood, "", validPoint(t), Severity("PANIC"), "")
	assert.ErrorIs(t, err, ErrInvalidSeverity)

	_, err = New("a1", KindFlood, "", geo.Point{Latitude: 95}, SeverityLow, "")
	assert.Error(t, err)
}

func TestMarkTriggeredIsMonotonic(t *testing.T) {
	a, err := New("a1", KindFlood, "", validPoint(t), SeverityMedium, "")
	require.NoError(t, err)

	assert.True(t, a.MarkTriggered())
	assert.True(t, a.Triggered)

	// second transition must report no change
	assert.False(t, a.MarkTriggered())
	assert.True(t, a.Triggered)
}

func TestEscalateNeverLowers(t *testing.T) {
	a, err := New("a1", KindFlood, "", validPoint(t), SeverityMedium, "")
	require.NoError(t, err)

	assert.False(t, a.Escalate(SeverityLow), "downgrade must be a no-op")
	assert.Equal(t, SeverityMedium, a.Severity)

	assert.False(t, a.Escalate(SeverityMedium), "same level must be a no-op")

	assert.True(t, a.Escalate(SeverityHigh))
	assert.Equal(t, SeverityHigh, a.Severity)

	assert.False(t, a.Escalate(Severity("PANIC")), "invalid severity must be a no-op")
	assert.Equal(t, SeverityHigh, a.Severity)
}

func TestExpiryAndMatchability(t *testing.T) {
	now := time.Now().UTC()

	a, err := New("a1", KindFlood, "", validPoint(t), SeverityMedium, "")
	require.NoError(t, err)

	// zero ValidUntil never expires
	assert.False(t, a.Expired(now))
	assert.True(t, a.Matchable(now))

	a.ValidUntil = now.Add(-time.Minute)
	assert.True(t, a.Expired(now))
	assert.False(t, a.Matchable(now))

	a.ValidUntil = now.Add(time.Hour)
	assert.True(t, a.Matchable(now))

	a.MarkTriggered()
	assert.False(t, a.Matchable(now), "triggered alerts never match again")
}

func TestParseSeverityAliases(t *testing.T) {
	cases := map[string]Severity{
		"low": SeverityLow, "INFO": SeverityLow, "minor": SeverityLow,
		"medium": SeverityMedium, "Warning": SeverityMedium, "MODERATE": SeverityMedium,
		"high": SeverityHigh, "critical": SeverityHigh, " SEVERE ": SeverityHigh,
	}
	for in, want := range cases {
		got, err := ParseSeverity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseSeverity("apocalyptic")
	assert.ErrorIs(t, err, ErrInvalidSeverity)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" flood ")
	require.NoError(t, err)
	assert.Equal(t, KindFlood, k)

	_, err = ParseKind("earthquake")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityHigh.AtLeast(SeverityLow))
	assert.True(t, SeverityMedium.AtLeast(SeverityMedium))
	assert.False(t, SeverityLow.AtLeast(SeverityHigh))
}
