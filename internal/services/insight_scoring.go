package services

import (
	"math"
	"sort"
	"strconv"

	"github.com/Ash-Blanc/migru/internal/models"
)

const maxConfidence = 0.95

type insightCandidate struct {
	ID         string
	Kind       models.InsightKind
	Confidence float64
	Subject    map[string]string
}

type scoringInput struct {
	Temporal          map[models.WindowKind]map[int]int64
	Correlation       Correlation
	SymptomCandidates []models.TriggerCandidate
	ReliefCandidates  []models.TriggerCandidate
	SymptomsEvaluated int64
}

func scoreCandidates(input scoringInput, patternMinSampleSize int, confirmationCount int) []insightCandidate {
	candidates := make([]insightCandidate, 0)

	for _, kind := range models.WindowKinds() {
		if candidate, ok := temporalCandidate(kind, input.Temporal[kind], patternMinSampleSize); ok {
			candidates = append(candidates, candidate)
		}
	}
	if candidate, ok := environmentalCandidate(input.Correlation); ok {
		candidates = append(candidates, candidate)
	}
	candidates = append(candidates, triggerCandidates(input.SymptomCandidates, input.SymptomsEvaluated, confirmationCount)...)
	candidates = append(candidates, reliefCandidates(input.ReliefCandidates, input.SymptomCandidates, confirmationCount)...)
	return candidates
}

// temporalCandidate scores the dominant bucket's share of all symptoms in the window.
func temporalCandidate(kind models.WindowKind, buckets map[int]int64, minSampleSize int) (insightCandidate, bool) {
	var total int64
	dominantKey, dominantCount := -1, int64(0)
	for key := 0; key < kind.BucketCount(); key++ {
		count := buckets[key]
		total += count
		if count > dominantCount {
			dominantKey, dominantCount = key, count
		}
	}
	if dominantKey < 0 || total < int64(minSampleSize) {
		return insightCandidate{}, false
	}

	share := float64(dominantCount) / float64(total)
	return insightCandidate{
		ID:         string(models.InsightTemporalPattern) + ":" + string(kind) + ":" + strconv.Itoa(dominantKey),
		Kind:       models.InsightTemporalPattern,
		Confidence: clampConfidence(share),
		Subject: map[string]string{
			"window": string(kind),
			"bucket": strconv.Itoa(dominantKey),
			"count":  strconv.FormatInt(dominantCount, 10),
			"total":  strconv.FormatInt(total, 10),
		},
	}, true
}

func environmentalCandidate(correlation Correlation) (insightCandidate, bool) {
	if !correlation.Sufficient || correlation.Ratio == nil {
		return insightCandidate{}, false
	}

	factor := models.FactorHighPressure
	if *correlation.Ratio >= 0.5 {
		factor = models.FactorLowPressure
	}
	return insightCandidate{
		ID:         string(models.InsightEnvironmentalCorrelation) + ":" + factor,
		Kind:       models.InsightEnvironmentalCorrelation,
		Confidence: clampConfidence(math.Abs(*correlation.Ratio-0.5) * 2),
		Subject: map[string]string{
			"factor": factor,
			"ratio":  strconv.FormatFloat(*correlation.Ratio, 'f', 2, 64),
		},
	}, true
}

// triggerCandidates only scores candidates whose retained occurrences still reach the confirmation count.
func triggerCandidates(candidates []models.TriggerCandidate, symptomsEvaluated int64, confirmationCount int) []insightCandidate {
	if symptomsEvaluated <= 0 {
		return nil
	}

	scored := make([]insightCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.Confirmed || candidate.Occurrences < int64(confirmationCount) {
			continue
		}
		scored = append(scored, insightCandidate{
			ID:         string(models.InsightTriggerDiscovery) + ":" + candidate.ActivityKind,
			Kind:       models.InsightTriggerDiscovery,
			Confidence: clampConfidence(float64(candidate.Occurrences) / float64(symptomsEvaluated)),
			Subject: map[string]string{
				"activity":    candidate.ActivityKind,
				"occurrences": strconv.FormatInt(candidate.Occurrences, 10),
			},
		})
	}
	return scored
}

// reliefCandidates compares how often an activity preceded relief against how often it preceded symptoms.
func reliefCandidates(relief []models.TriggerCandidate, symptom []models.TriggerCandidate, confirmationCount int) []insightCandidate {
	symptomOccurrences := make(map[string]int64, len(symptom))
	for _, candidate := range symptom {
		symptomOccurrences[candidate.ActivityKind] = candidate.Occurrences
	}

	scored := make([]insightCandidate, 0, len(relief))
	for _, candidate := range relief {
		if !candidate.Confirmed || candidate.Occurrences <= 0 || candidate.Occurrences < int64(confirmationCount) {
			continue
		}
		total := candidate.Occurrences + symptomOccurrences[candidate.ActivityKind]
		scored = append(scored, insightCandidate{
			ID:         string(models.InsightReliefEffectiveness) + ":" + candidate.ActivityKind,
			Kind:       models.InsightReliefEffectiveness,
			Confidence: clampConfidence(float64(candidate.Occurrences) / float64(total)),
			Subject: map[string]string{
				"activity":    candidate.ActivityKind,
				"occurrences": strconv.FormatInt(candidate.Occurrences, 10),
			},
		})
	}
	return scored
}

// selectInsight picks the highest-confidence unshared candidate; ties go to the smaller id.
func selectInsight(candidates []insightCandidate, threshold float64, shared map[string]struct{}) (insightCandidate, bool) {
	eligible := make([]insightCandidate, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Confidence < threshold {
			continue
		}
		if _, done := shared[candidate.ID]; done {
			continue
		}
		eligible = append(eligible, candidate)
	}
	if len(eligible) == 0 {
		return insightCandidate{}, false
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Confidence != eligible[j].Confidence {
			return eligible[i].Confidence > eligible[j].Confidence
		}
		return eligible[i].ID < eligible[j].ID
	})
	return eligible[0], true
}

func clampConfidence(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > maxConfidence {
		return maxConfidence
	}
	return value
}
