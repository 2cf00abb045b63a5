package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const MetadataVersion = 1

const (
	MetaHour        = "hour"
	MetaDayOfWeek   = "day_of_week"
	MetaPressure    = "pressure"
	MetaTemperature = "temperature"
	MetaHeartRate   = "heart_rate"
	MetaSleepScore  = "sleep_score"
	MetaStepCount   = "step_count"
	MetaStressLevel = "stress_level"
	MetaActivity    = "activity"
)

// v0 keys written by the weather tool integration.
var legacyMetadataKeys = map[string]string{
	"weather_pressure": MetaPressure,
	"weather_temp":     MetaTemperature,
}

const maxActivityKindLength = 64

// Metadata is the closed set of values an event may carry. Absent values are nil.
type Metadata struct {
	Version     int      `json:"v,omitempty"`
	Hour        *int     `json:"hour,omitempty"`
	DayOfWeek   *int     `json:"day_of_week,omitempty"`
	Pressure    *float64 `json:"pressure,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	HeartRate   *float64 `json:"heart_rate,omitempty"`
	SleepScore  *float64 `json:"sleep_score,omitempty"`
	StepCount   *int     `json:"step_count,omitempty"`
	StressLevel *float64 `json:"stress_level,omitempty"`
	Activity    string   `json:"activity,omitempty"`
}

type numericRange struct {
	min       float64
	max       float64
	exclusive bool
	integral  bool
}

var metadataRanges = map[string]numericRange{
	MetaHour:        {min: 0, max: 23, integral: true},
	MetaDayOfWeek:   {min: 0, max: 6, integral: true},
	MetaPressure:    {min: 800, max: 1100, exclusive: true},
	MetaTemperature: {min: -90, max: 60},
	MetaHeartRate:   {min: 20, max: 250},
	MetaSleepScore:  {min: 0, max: 100},
	MetaStepCount:   {min: 0, max: 1_000_000, integral: true},
	MetaStressLevel: {min: 0, max: 10},
}

// ParseMetadata validates a raw key/value bag against the v1 schema.
func ParseMetadata(raw map[string]any) (Metadata, error) {
	metadata := Metadata{Version: MetadataVersion}
	if len(raw) == 0 {
		return metadata, nil
	}

	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seen := make(map[string]string, len(raw))
	for _, rawKey := range keys {
		key := strings.TrimSpace(rawKey)
		if canonical, ok := legacyMetadataKeys[key]; ok {
			key = canonical
		}
		if previous, duplicate := seen[key]; duplicate {
			return Metadata{}, &ValidationError{Field: "metadata." + rawKey, Reason: fmt.Sprintf("duplicates %s", previous)}
		}
		seen[key] = rawKey

		value := raw[rawKey]
		if key == MetaActivity {
			kind, err := parseActivityKind(rawKey, value)
			if err != nil {
				return Metadata{}, err
			}
			metadata.Activity = kind
			continue
		}

		bounds, known := metadataRanges[key]
		if !known {
			return Metadata{}, &ValidationError{Field: "metadata." + rawKey, Reason: "unrecognized key"}
		}
		number, err := parseBoundedNumber(rawKey, value, bounds)
		if err != nil {
			return Metadata{}, err
		}
		metadata.assign(key, number)
	}

	return metadata, nil
}

func (metadata *Metadata) assign(key string, number float64) {
	switch key {
	case MetaHour:
		metadata.Hour = intPointer(int(number))
	case MetaDayOfWeek:
		metadata.DayOfWeek = intPointer(int(number))
	case MetaPressure:
		metadata.Pressure = floatPointer(number)
	case MetaTemperature:
		metadata.Temperature = floatPointer(number)
	case MetaHeartRate:
		metadata.HeartRate = floatPointer(number)
	case MetaSleepScore:
		metadata.SleepScore = floatPointer(number)
	case MetaStepCount:
		metadata.StepCount = intPointer(int(number))
	case MetaStressLevel:
		metadata.StressLevel = floatPointer(number)
	}
}

// Validate re-checks a typed value, for callers that build Metadata directly.
func (metadata Metadata) Validate() error {
	checks := []struct {
		key   string
		value *float64
	}{
		{MetaHour, intAsFloat(metadata.Hour)},
		{MetaDayOfWeek, intAsFloat(metadata.DayOfWeek)},
		{MetaPressure, metadata.Pressure},
		{MetaTemperature, metadata.Temperature},
		{MetaHeartRate, metadata.HeartRate},
		{MetaSleepScore, metadata.SleepScore},
		{MetaStepCount, intAsFloat(metadata.StepCount)},
		{MetaStressLevel, metadata.StressLevel},
	}
	for _, check := range checks {
		if check.value == nil {
			continue
		}
		if _, err := parseBoundedNumber(check.key, *check.value, metadataRanges[check.key]); err != nil {
			return err
		}
	}
	if metadata.Activity != "" {
		if _, err := parseActivityKind(MetaActivity, metadata.Activity); err != nil {
			return err
		}
	}
	return nil
}

func parseBoundedNumber(key string, value any, bounds numericRange) (float64, error) {
	var number float64
	switch typed := value.(type) {
	case float64:
		number = typed
	case float32:
		number = float64(typed)
	case int:
		number = float64(typed)
	case int64:
		number = float64(typed)
	case int32:
		number = float64(typed)
	default:
		return 0, &ValidationError{Field: "metadata." + key, Reason: "must be numeric"}
	}

	if math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, &ValidationError{Field: "metadata." + key, Reason: "must be finite"}
	}
	if bounds.integral && number != math.Trunc(number) {
		return 0, &ValidationError{Field: "metadata." + key, Reason: "must be an integer"}
	}

	outOfRange := number < bounds.min || number > bounds.max
	if bounds.exclusive {
		outOfRange = number <= bounds.min || number >= bounds.max
	}
	if outOfRange {
		return 0, &ValidationError{Field: "metadata." + key, Reason: fmt.Sprintf("out of range [%g, %g]", bounds.min, bounds.max)}
	}
	return number, nil
}

func parseActivityKind(key string, value any) (string, error) {
	text, ok := value.(string)
	if !ok {
		return "", &ValidationError{Field: "metadata." + key, Reason: "must be a string"}
	}
	kind := NormalizeActivityKind(text)
	if kind == "" || len(kind) > maxActivityKindLength {
		return "", &ValidationError{Field: "metadata." + key, Reason: fmt.Sprintf("must be 1-%d characters", maxActivityKindLength)}
	}
	return kind, nil
}

func intPointer(value int) *int {
	return &value
}

func floatPointer(value float64) *float64 {
	return &value
}

func intAsFloat(value *int) *float64 {
	if value == nil {
		return nil
	}
	converted := float64(*value)
	return &converted
}
