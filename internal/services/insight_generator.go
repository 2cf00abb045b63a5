package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type InsightRenderer interface {
	Render(language string, insight models.Insight) string
}

type bucketSource interface {
	Buckets(ctx context.Context, userID string, kind models.WindowKind, series models.EventType) (map[int]int64, error)
}

type correlationSource interface {
	Correlation(ctx context.Context, userID string) (Correlation, error)
}

type candidateSource interface {
	Candidates(ctx context.Context, userID string, outcome models.Outcome) ([]models.TriggerCandidate, error)
	OutcomesEvaluated(ctx context.Context, userID string, outcome models.Outcome) (int64, error)
}

type ledgerSource interface {
	Snapshot(ctx context.Context, userID string) (LedgerSnapshot, error)
}

// InsightGenerator reads aggregate state and the ledger; it never writes.
type InsightGenerator struct {
	buckets      bucketSource
	correlations correlationSource
	triggers     candidateSource
	ledger       ledgerSource
	renderer     InsightRenderer
	cfg          AnalyticsConfig
	now          func() time.Time
}

func NewInsightGenerator(buckets bucketSource, correlations correlationSource, triggers candidateSource, ledger ledgerSource, renderer InsightRenderer, cfg AnalyticsConfig, now func() time.Time) *InsightGenerator {
	if now == nil {
		now = time.Now
	}
	return &InsightGenerator{
		buckets:      buckets,
		correlations: correlations,
		triggers:     triggers,
		ledger:       ledger,
		renderer:     renderer,
		cfg:          cfg,
		now:          now,
	}
}

// ShouldEvaluate reports whether this conversation turn is an evaluation turn.
func (generator *InsightGenerator) ShouldEvaluate(conversationCount int) bool {
	if conversationCount < generator.cfg.MinConversationsBeforeFirstInsight {
		return false
	}
	interval := generator.cfg.InsightCheckIntervalConversations
	if interval <= 1 {
		return true
	}
	return conversationCount%interval == 0
}

// Check returns at most one insight. Exceeding the evaluation timeout yields ErrEvaluationTimeout.
func (generator *InsightGenerator) Check(ctx context.Context, userID string, conversationCount int, language string) (*models.Insight, error) {
	if !generator.ShouldEvaluate(conversationCount) {
		return nil, nil
	}

	if generator.cfg.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, generator.cfg.EvaluationTimeout)
		defer cancel()
	}

	type outcome struct {
		insight *models.Insight
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: fmt.Errorf("insight evaluation panicked: %v", recovered)}
			}
		}()
		insight, err := generator.evaluate(ctx, userID, language)
		done <- outcome{insight: insight, err: err}
	}()

	select {
	case result := <-done:
		return result.insight, result.err
	case <-ctx.Done():
		return nil, ErrEvaluationTimeout
	}
}

func (generator *InsightGenerator) evaluate(ctx context.Context, userID string, language string) (*models.Insight, error) {
	now := generator.now().UTC()

	snapshot, err := generator.ledger.Snapshot(ctx, userID)
	if err != nil {
		return nil, storeUnavailable("load sharing state", err)
	}
	if generator.capReached(snapshot, now) {
		return nil, nil
	}

	input, err := generator.collect(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := scoreCandidates(input, generator.cfg.PatternMinSampleSize, generator.cfg.TriggerConfirmationCount)
	selected, ok := selectInsight(candidates, generator.cfg.ConfidenceThreshold, snapshot.SharedIDs)
	if !ok {
		return nil, nil
	}

	insight := &models.Insight{
		ID:          selected.ID,
		UserID:      userID,
		Kind:        selected.Kind,
		Confidence:  selected.Confidence,
		Subject:     selected.Subject,
		GeneratedAt: now,
	}
	if generator.renderer != nil {
		insight.Message = generator.renderer.Render(language, *insight)
	}
	return insight, nil
}

func (generator *InsightGenerator) capReached(snapshot LedgerSnapshot, now time.Time) bool {
	limit := generator.cfg.MaxInsightsPerDay
	if limit <= 0 {
		return true
	}
	if snapshot.SharedLastDay >= int64(limit) {
		return true
	}
	if limit == 1 && snapshot.LastSharedAt != nil && now.Sub(snapshot.LastSharedAt.UTC()) < 24*time.Hour {
		return true
	}
	return false
}

func (generator *InsightGenerator) collect(ctx context.Context, userID string) (scoringInput, error) {
	input := scoringInput{Temporal: make(map[models.WindowKind]map[int]int64, len(models.WindowKinds()))}
	for _, kind := range models.WindowKinds() {
		buckets, err := generator.buckets.Buckets(ctx, userID, kind, models.EventSymptom)
		if err != nil {
			return scoringInput{}, storeUnavailable("load buckets", err)
		}
		input.Temporal[kind] = buckets
	}

	correlation, err := generator.correlations.Correlation(ctx, userID)
	if err != nil {
		return scoringInput{}, storeUnavailable("load correlation", err)
	}
	input.Correlation = correlation

	if input.SymptomCandidates, err = generator.triggers.Candidates(ctx, userID, models.OutcomeSymptom); err != nil {
		return scoringInput{}, storeUnavailable("load trigger candidates", err)
	}
	if input.ReliefCandidates, err = generator.triggers.Candidates(ctx, userID, models.OutcomeRelief); err != nil {
		return scoringInput{}, storeUnavailable("load relief candidates", err)
	}
	if input.SymptomsEvaluated, err = generator.triggers.OutcomesEvaluated(ctx, userID, models.OutcomeSymptom); err != nil {
		return scoringInput{}, storeUnavailable("count evaluated symptoms", err)
	}
	return input, nil
}
