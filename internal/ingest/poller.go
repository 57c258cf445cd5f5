package ingest

import (
	"context"
	"fmt"
	"time"

	"safetrip/internal/domain/alert"
	"safetrip/internal/domain/geo"
	"safetrip/internal/engine"
	"safetrip/internal/general/config"
	"safetrip/internal/general/logger"
	"safetrip/internal/observability"
)

// WeatherPoller periodically fetches conditions for the configured
// watchpoints and ingests a weather alert whenever rainfall crosses the
// threshold or the provider reports a severe condition group. One failing
// watchpoint never blocks the others.
type WeatherPoller struct {
	logger      *logger.Logger
	fetcher     WeatherFetcher
	engine      *engine.Engine
	watchpoints []config.Watchpoint
	interval    time.Duration
	thresholdMM float64
}

func NewWeatherPoller(log *logger.Logger, fetcher WeatherFetcher, eng *engine.Engine, watchpoints []config.Watchpoint, interval time.Duration, thresholdMM float64) *WeatherPoller {
	return &WeatherPoller{
		logger:      log,
		fetcher:     fetcher,
		engine:      eng,
		watchpoints: watchpoints,
		interval:    interval,
		thresholdMM: thresholdMM,
	}
}

// Run polls until ctx is cancelled. The first cycle fires immediately so a
// fresh deploy does not wait a full interval for coverage.
func (p *WeatherPoller) Run(ctx context.Context) {
	if len(p.watchpoints) == 0 {
		p.logger.Info(ctx, "weather_poller_idle", "No watchpoints configured, weather polling disabled", nil)
		return
	}

	p.pollAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(ctx)
		}
	}
}

func (p *WeatherPoller) pollAll(ctx context.Context) {
	for _, wp := range p.watchpoints {
		if ctx.Err() != nil {
			return
		}
		p.pollOne(ctx, wp)
	}
}

func (p *WeatherPoller) pollOne(ctx context.Context, wp config.Watchpoint) {
	point, err := geo.NewPoint(wp.Latitude, wp.Longitude)
	if err != nil {
		p.logger.Error(ctx, "watchpoint_invalid", "Skipping watchpoint with bad coordinates", err, map[string]any{
			"region": wp.Region,
		})
		return
	}

	obs, err := p.fetcher.Current(ctx, point)
	if err != nil {
		observability.FetchFailures.WithLabelValues("weather").Inc()
		p.logger.Error(ctx, "weather_fetch_failed", "Weather fetch failed, skipping cycle for watchpoint", err, map[string]any{
			"region": wp.Region,
		})
		return
	}

	severity, hazardous := classify(obs, p.thresholdMM)
	if !hazardous {
		return
	}

	reading := engine.Reading{
		Kind:        alert.KindWeather,
		Region:      wp.Region,
		Point:       point,
		Severity:    severity,
		Description: describeWeather(obs),
		Segment:     wp.Region, // one live weather alert per watchpoint
	}
	if _, err := p.engine.IngestHazard(ctx, reading); err != nil {
		p.logger.Error(ctx, "weather_ingest_failed", "Weather reading not ingested", err, map[string]any{
			"region": wp.Region,
		})
	}
}

// classify maps an observation to a severity. Rainfall at or above the
// threshold is hazardous; double the threshold or a thunderstorm group is
// high severity.
func classify(obs Observation, thresholdMM float64) (alert.Severity, bool) {
	if obs.Condition == "Thunderstorm" || obs.Condition == "Tornado" {
		return alert.SeverityHigh, true
	}
	if obs.RainMM >= thresholdMM*2 {
		return alert.SeverityHigh, true
	}
	if obs.RainMM >= thresholdMM {
		return alert.SeverityMedium, true
	}
	return "", false
}

func describeWeather(obs Observation) string {
	if obs.RainMM > 0 {
		return fmt.Sprintf("Heavy rainfall: %.1fmm in the last hour (%s)", obs.RainMM, obs.Description)
	}
	return "Severe weather: " + obs.Description
}
