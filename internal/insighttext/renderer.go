package insighttext

import (
	"strconv"
	"strings"

	"github.com/Ash-Blanc/migru/internal/models"
)

// Renderer turns a scored insight into the caring message shown to the user.
type Renderer struct {
	catalog *Catalog
}

func NewRenderer(catalog *Catalog) *Renderer {
	return &Renderer{catalog: catalog}
}

func (renderer *Renderer) Catalog() *Catalog {
	return renderer.catalog
}

func (renderer *Renderer) Render(language string, insight models.Insight) string {
	subject := insight.Subject
	switch insight.Kind {
	case models.InsightTemporalPattern:
		bucket, err := strconv.Atoi(subject["bucket"])
		if err != nil {
			break
		}
		switch models.WindowKind(subject["window"]) {
		case models.WindowHourOfDay:
			return renderer.catalog.Translatef(language, "insight.temporal.hour_of_day", renderer.DescribeHour(language, bucket), bucket)
		case models.WindowDayOfWeek:
			return renderer.catalog.Translatef(language, "insight.temporal.day_of_week", renderer.catalog.Translate(language, "day."+strconv.Itoa(bucket)))
		}
	case models.InsightEnvironmentalCorrelation:
		switch subject["factor"] {
		case models.FactorLowPressure:
			return renderer.catalog.Translate(language, "insight.environment.low_pressure")
		case models.FactorHighPressure:
			return renderer.catalog.Translate(language, "insight.environment.high_pressure")
		}
	case models.InsightTriggerDiscovery:
		if activity := ActivityLabel(subject["activity"]); activity != "" {
			return renderer.catalog.Translatef(language, "insight.trigger", activity)
		}
	case models.InsightReliefEffectiveness:
		if activity := ActivityLabel(subject["activity"]); activity != "" {
			return capitalize(renderer.catalog.Translatef(language, "insight.relief", activity))
		}
	}
	return renderer.catalog.Translate(language, "insight.generic")
}

func (renderer *Renderer) DescribeHour(language string, hour int) string {
	switch {
	case hour >= 5 && hour < 12:
		return renderer.catalog.Translate(language, "time.morning")
	case hour >= 12 && hour < 17:
		return renderer.catalog.Translate(language, "time.afternoon")
	case hour >= 17 && hour < 21:
		return renderer.catalog.Translate(language, "time.evening")
	default:
		return renderer.catalog.Translate(language, "time.late_night")
	}
}

// ActivityLabel turns an activity kind like "morning-rush" back into words.
func ActivityLabel(kind string) string {
	return strings.TrimSpace(strings.ReplaceAll(kind, "-", " "))
}

func capitalize(text string) string {
	if text == "" || text[0] < 'a' || text[0] > 'z' {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}
