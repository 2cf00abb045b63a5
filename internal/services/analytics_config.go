package services

import (
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type WindowConfig struct {
	Duration time.Duration
	Hop      time.Duration
}

type AnalyticsConfig struct {
	RetentionDays                      int
	ConfidenceThreshold                float64
	MinConversationsBeforeFirstInsight int
	InsightCheckIntervalConversations  int
	MaxInsightsPerDay                  int
	TriggerLookbackWindow              time.Duration
	TriggerConfirmationCount           int
	PressureThresholdHPA               float64
	CorrelationMinSampleSize           int
	PatternMinSampleSize               int
	MaxIngestSkew                      time.Duration
	EvaluationTimeout                  time.Duration
	AlertHeartRateBPM                  float64
	SweepInterval                      time.Duration
	Windows                            map[models.WindowKind]WindowConfig
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		RetentionDays:                      30,
		ConfidenceThreshold:                0.70,
		MinConversationsBeforeFirstInsight: 3,
		InsightCheckIntervalConversations:  3,
		MaxInsightsPerDay:                  1,
		TriggerLookbackWindow:              2 * time.Hour,
		TriggerConfirmationCount:           3,
		PressureThresholdHPA:               1010,
		CorrelationMinSampleSize:           5,
		PatternMinSampleSize:               5,
		MaxIngestSkew:                      5 * time.Minute,
		EvaluationTimeout:                  100 * time.Millisecond,
		AlertHeartRateBPM:                  100,
		SweepInterval:                      5 * time.Minute,
		Windows: map[models.WindowKind]WindowConfig{
			models.WindowHourOfDay: {Duration: 6 * time.Hour, Hop: 30 * time.Minute},
			models.WindowDayOfWeek: {Duration: 7 * 24 * time.Hour, Hop: 24 * time.Hour},
		},
	}
}

func (cfg AnalyticsConfig) Retention() time.Duration {
	return time.Duration(cfg.RetentionDays) * 24 * time.Hour
}

// Window falls back to the default for kinds missing from the map.
func (cfg AnalyticsConfig) Window(kind models.WindowKind) WindowConfig {
	if window, ok := cfg.Windows[kind]; ok && window.Duration > 0 && window.Hop > 0 {
		return window
	}
	return DefaultAnalyticsConfig().Windows[kind]
}
