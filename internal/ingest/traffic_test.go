package ingest

import (
	"testing"

	"safetrip/internal/domain/alert"
	"safetrip/internal/general/contracts"

	"github.com/stretchr/testify/assert"
)

func TestCongestionSeverity(t *testing.T) {
	sev, hazardous := congestionSeverity("severe")
	assert.True(t, hazardous)
	assert.Equal(t, alert.SeverityHigh, sev)

	sev, hazardous = congestionSeverity(" Moderate ")
	assert.True(t, hazardous)
	assert.Equal(t, alert.SeverityMedium, sev)

	_, hazardous = congestionSeverity("low")
	assert.False(t, hazardous, "free-flowing traffic produces no alert")

	_, hazardous = congestionSeverity("")
	assert.False(t, hazardous)
}

func TestDescribeTraffic(t *testing.T) {
	msg := contracts.TrafficReadingMessage{
		Segment:         "third-mainland-bridge",
		CongestionLevel: "SEVERE",
		DelayMinutes:    25,
	}
	assert.Equal(t, "Traffic congestion (severe) on third-mainland-bridge, expect 25 min delay", describeTraffic(msg))

	msg.DelayMinutes = 0
	assert.Equal(t, "Traffic congestion (severe) on third-mainland-bridge", describeTraffic(msg))
}
