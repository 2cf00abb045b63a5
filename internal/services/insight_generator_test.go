package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ash-Blanc/migru/internal/models"
)

type bucketSourceStub struct {
	buckets map[models.WindowKind]map[int]int64
	err     error
}

func (stub *bucketSourceStub) Buckets(_ context.Context, _ string, kind models.WindowKind, _ models.EventType) (map[int]int64, error) {
	if stub.err != nil {
		return nil, stub.err
	}
	return stub.buckets[kind], nil
}

type correlationSourceStub struct {
	correlation Correlation
}

func (stub *correlationSourceStub) Correlation(context.Context, string) (Correlation, error) {
	return stub.correlation, nil
}

type candidateSourceStub struct {
	byOutcome map[models.Outcome][]models.TriggerCandidate
	evaluated int64
}

func (stub *candidateSourceStub) Candidates(_ context.Context, _ string, outcome models.Outcome) ([]models.TriggerCandidate, error) {
	return stub.byOutcome[outcome], nil
}

func (stub *candidateSourceStub) OutcomesEvaluated(context.Context, string, models.Outcome) (int64, error) {
	return stub.evaluated, nil
}

type ledgerSourceStub struct {
	snapshot LedgerSnapshot
	block    bool
}

func (stub *ledgerSourceStub) Snapshot(ctx context.Context, _ string) (LedgerSnapshot, error) {
	if stub.block {
		<-ctx.Done()
		return LedgerSnapshot{}, ctx.Err()
	}
	return stub.snapshot, nil
}

func newGeneratorForTest(buckets *bucketSourceStub, ledger *ledgerSourceStub, candidates *candidateSourceStub, cfg AnalyticsConfig) *InsightGenerator {
	if buckets == nil {
		buckets = &bucketSourceStub{}
	}
	if ledger == nil {
		ledger = &ledgerSourceStub{}
	}
	if candidates == nil {
		candidates = &candidateSourceStub{}
	}
	return NewInsightGenerator(buckets, &correlationSourceStub{}, candidates, ledger, rendererStub{}, cfg, func() time.Time {
		return fixtureNow
	})
}

func TestInsightGeneratorTemporalPattern(t *testing.T) {
	hourly := map[int]int64{}
	hourly[9] = 8
	hourly[14] = 2
	generator := newGeneratorForTest(&bucketSourceStub{buckets: map[models.WindowKind]map[int]int64{models.WindowHourOfDay: hourly}}, nil, nil, DefaultAnalyticsConfig())

	insight, err := generator.Check(context.Background(), "alice", 3, "en")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if insight == nil || insight.ID != "temporal_pattern:hour_of_day:9" {
		t.Fatalf("expected hour 9 pattern, got %#v", insight)
	}
	if insight.Confidence != 0.8 {
		t.Fatalf("expected confidence 0.8, got %v", insight.Confidence)
	}
	if insight.Subject["bucket"] != "9" || insight.GeneratedAt != fixtureNow {
		t.Fatalf("unexpected insight fields %#v", insight)
	}
}

func TestInsightGeneratorSkipsBelowThreshold(t *testing.T) {
	hourly := map[int]int64{9: 6, 14: 4}
	generator := newGeneratorForTest(&bucketSourceStub{buckets: map[models.WindowKind]map[int]int64{models.WindowHourOfDay: hourly}}, nil, nil, DefaultAnalyticsConfig())

	insight, err := generator.Check(context.Background(), "alice", 3, "en")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if insight != nil {
		t.Fatalf("expected a 0.6 share to be discarded, got %#v", insight)
	}
}

func TestInsightGeneratorRespectsDailyCap(t *testing.T) {
	sharedAt := fixtureNow.Add(-2 * time.Hour)
	cfg := DefaultAnalyticsConfig()
	candidates := &candidateSourceStub{
		byOutcome: map[models.Outcome][]models.TriggerCandidate{
			models.OutcomeSymptom: {{ActivityKind: "morning-rush", Occurrences: 3, Confirmed: true}},
		},
		evaluated: 3,
	}

	capped := newGeneratorForTest(nil, &ledgerSourceStub{snapshot: LedgerSnapshot{LastSharedAt: &sharedAt, SharedLastDay: 1}}, candidates, cfg)
	if insight, err := capped.Check(context.Background(), "alice", 3, "en"); err != nil || insight != nil {
		t.Fatalf("expected cap to suppress insight, got %#v err=%v", insight, err)
	}

	cfg.MaxInsightsPerDay = 2
	relaxed := newGeneratorForTest(nil, &ledgerSourceStub{snapshot: LedgerSnapshot{LastSharedAt: &sharedAt, SharedLastDay: 1}}, candidates, cfg)
	insight, err := relaxed.Check(context.Background(), "alice", 3, "en")
	if err != nil || insight == nil {
		t.Fatalf("expected a second insight under a cap of 2, got %#v err=%v", insight, err)
	}
}

func TestInsightGeneratorTimesOut(t *testing.T) {
	cfg := DefaultAnalyticsConfig()
	cfg.EvaluationTimeout = 20 * time.Millisecond
	generator := newGeneratorForTest(nil, &ledgerSourceStub{block: true}, nil, cfg)

	started := time.Now()
	insight, err := generator.Check(context.Background(), "alice", 3, "en")
	if !errors.Is(err, ErrEvaluationTimeout) {
		t.Fatalf("expected ErrEvaluationTimeout, got %v", err)
	}
	if insight != nil {
		t.Fatal("expected no insight on timeout")
	}
	if elapsed := time.Since(started); elapsed > time.Second {
		t.Fatalf("expected check to return near the timeout, took %v", elapsed)
	}
}

func TestInsightGeneratorReportsStoreFailures(t *testing.T) {
	generator := newGeneratorForTest(&bucketSourceStub{err: errors.New("disk I/O error")}, nil, nil, DefaultAnalyticsConfig())

	insight, err := generator.Check(context.Background(), "alice", 3, "en")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if insight != nil {
		t.Fatal("expected no insight on store failure")
	}
}

func TestSelectInsightTieBreaksByID(t *testing.T) {
	candidates := []insightCandidate{
		{ID: "trigger_discovery:stairs", Confidence: 0.9},
		{ID: "temporal_pattern:day_of_week:0", Confidence: 0.9},
		{ID: "environmental_correlation:low_pressure", Confidence: 0.75},
		{ID: "relief_effectiveness:nap", Confidence: 0.5},
	}

	selected, ok := selectInsight(candidates, 0.70, map[string]struct{}{})
	if !ok || selected.ID != "temporal_pattern:day_of_week:0" {
		t.Fatalf("expected the smaller id among equal confidence, got %#v", selected)
	}

	selected, ok = selectInsight(candidates, 0.70, map[string]struct{}{
		"temporal_pattern:day_of_week:0": {},
		"trigger_discovery:stairs":       {},
	})
	if !ok || selected.ID != "environmental_correlation:low_pressure" {
		t.Fatalf("expected shared candidates to be skipped, got %#v", selected)
	}

	if _, ok := selectInsight(candidates[3:], 0.70, nil); ok {
		t.Fatal("expected candidates below the threshold to be discarded")
	}
}

func TestReliefCandidatesCompareAgainstTriggerOccurrences(t *testing.T) {
	relief := []models.TriggerCandidate{
		{ActivityKind: "nap", Occurrences: 8, Confirmed: true},
		{ActivityKind: "stretching", Occurrences: 2, Confirmed: false},
	}
	symptom := []models.TriggerCandidate{
		{ActivityKind: "nap", Occurrences: 2, Confirmed: false},
	}

	scored := reliefCandidates(relief, symptom, 3)
	if len(scored) != 1 {
		t.Fatalf("expected only confirmed relief candidates, got %d", len(scored))
	}
	if scored[0].ID != "relief_effectiveness:nap" || scored[0].Confidence != 0.8 {
		t.Fatalf("unexpected relief candidate %#v", scored[0])
	}
}

func TestTriggerCandidatesRequireRetainedConfirmationCount(t *testing.T) {
	candidates := []models.TriggerCandidate{
		{ActivityKind: "morning-rush", Occurrences: 1, Confirmed: true},
		{ActivityKind: "screen-time", Occurrences: 3, Confirmed: true},
	}

	scored := triggerCandidates(candidates, 4, 3)
	if len(scored) != 1 || scored[0].ID != "trigger_discovery:screen-time" {
		t.Fatalf("expected only the candidate with enough retained occurrences, got %#v", scored)
	}
	if scored[0].Confidence != 0.75 {
		t.Fatalf("expected confidence 3/4, got %v", scored[0].Confidence)
	}
}

func TestTemporalCandidateRequiresMinimumSample(t *testing.T) {
	if _, ok := temporalCandidate(models.WindowDayOfWeek, map[int]int64{2: 4}, 5); ok {
		t.Fatal("expected no candidate below the minimum sample")
	}
	candidate, ok := temporalCandidate(models.WindowDayOfWeek, map[int]int64{2: 5}, 5)
	if !ok || candidate.Confidence != maxConfidence {
		t.Fatalf("expected a single-bucket pattern to be capped, got %#v", candidate)
	}
}

func TestSharingPhaseTransitions(t *testing.T) {
	sharedAt := fixtureNow
	cases := []struct {
		snapshot LedgerSnapshot
		want     string
	}{
		{snapshot: LedgerSnapshot{ConversationCount: 2}, want: models.SharingCold},
		{snapshot: LedgerSnapshot{ConversationCount: 3}, want: models.SharingWarm},
		{snapshot: LedgerSnapshot{ConversationCount: 9, LastSharedAt: &sharedAt}, want: models.SharingActive},
	}
	for _, testCase := range cases {
		if got := testCase.snapshot.Phase(3); got != testCase.want {
			t.Fatalf("expected %s, got %s", testCase.want, got)
		}
	}
}
