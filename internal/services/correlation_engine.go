package services

import (
	"context"
	"math"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type CorrelationStore interface {
	Increment(ctx context.Context, userID string, factor string, at time.Time) error
	List(ctx context.Context, userID string) ([]models.CorrelationCounter, error)
	DeleteUser(ctx context.Context, userID string) error
}

// Correlation is computed on read. Ratio is nil until the sample is large enough.
type Correlation struct {
	Low              int64    `json:"low"`
	High             int64    `json:"high"`
	Ratio            *float64 `json:"ratio"`
	Sufficient       bool     `json:"sufficient"`
	Strength         float64  `json:"strength"`
	WeatherSensitive bool     `json:"weather_sensitive"`
}

type CorrelationEngine struct {
	counters CorrelationStore
	cfg      AnalyticsConfig
}

func NewCorrelationEngine(counters CorrelationStore, cfg AnalyticsConfig) *CorrelationEngine {
	return &CorrelationEngine{counters: counters, cfg: cfg}
}

func (engine *CorrelationEngine) Consume(ctx context.Context, event models.Event) error {
	if event.Type != models.EventSymptom || event.Metadata.Pressure == nil {
		return nil
	}
	return engine.counters.Increment(ctx, event.UserID, engine.classify(*event.Metadata.Pressure), event.OccurredAt)
}

func (engine *CorrelationEngine) classify(pressure float64) string {
	if pressure < engine.cfg.PressureThresholdHPA {
		return models.FactorLowPressure
	}
	return models.FactorHighPressure
}

func (engine *CorrelationEngine) Correlation(ctx context.Context, userID string) (Correlation, error) {
	counters, err := engine.counters.List(ctx, userID)
	if err != nil {
		return Correlation{}, err
	}

	result := Correlation{}
	for _, counter := range counters {
		switch counter.Factor {
		case models.FactorLowPressure:
			result.Low = counter.SymptomCount
		case models.FactorHighPressure:
			result.High = counter.SymptomCount
		}
	}
	return summarizeCorrelation(result.Low, result.High, engine.cfg.CorrelationMinSampleSize), nil
}

func summarizeCorrelation(low int64, high int64, minSampleSize int) Correlation {
	result := Correlation{Low: low, High: high}
	total := low + high
	if total == 0 || total < int64(minSampleSize) {
		return result
	}

	ratio := float64(low) / float64(total)
	result.Ratio = &ratio
	result.Sufficient = true
	result.Strength = math.Abs(ratio-0.5) * 2
	result.WeatherSensitive = ratio > 0.6
	return result
}

func (engine *CorrelationEngine) Reset(ctx context.Context, userID string) error {
	return engine.counters.DeleteUser(ctx, userID)
}
