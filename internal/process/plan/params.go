package plan

import (
	"math"
	"time"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

const (
	// Volume scaling kicks in above this many PIRs so wide campaigns do not
	// multiply the document budget unbounded.
	scalingPIRThreshold = 5
	scalingStepPerPIR   = 0.1
	minVolumeScale      = 0.5

	crisisThresholdFactor   = 0.7
	longTermThresholdFactor = 1.2
	minThreshold            = 0.1
	maxThreshold            = 0.8
)

// Base document volume per PIR keyed by collection intensity.
var baseVolumes = map[string]int{
	domain.IntensityLight:         200,
	domain.IntensityStandard:      500,
	domain.IntensityIntensive:     1000,
	domain.IntensityComprehensive: 2000,
}

// Base relevance threshold keyed by selectivity tier.
var baseThresholds = map[string]float64{
	domain.SelectivityVerySelective: 0.7,
	domain.SelectivitySelective:     0.5,
	domain.SelectivityBalanced:      0.3,
	domain.SelectivityInclusive:     0.15,
}

// Base campaign timeout in seconds keyed by urgency tier. Kept as integer
// seconds so the intensity multipliers stay exact.
var baseTimeoutSeconds = map[string]int{
	domain.UrgencyCrisis:    180,
	domain.UrgencyStrategic: 300,
	domain.UrgencyLongTerm:  450,
}

var evalBatchSizes = map[string]int{
	domain.IntensityLight:         20,
	domain.IntensityStandard:      30,
	domain.IntensityIntensive:     50,
	domain.IntensityComprehensive: 100,
}

var signalCaps = map[string]int{
	domain.IntensityLight:         15,
	domain.IntensityStandard:      25,
	domain.IntensityIntensive:     50,
	domain.IntensityComprehensive: 100,
}

// Derive maps a strategy and the campaign's PIR count onto concrete
// collection parameters. The mapping is pure: same strategy and count, same
// parameters. Unrecognized tier values use the standard, balanced and
// strategic rows.
func Derive(strategy *domain.Strategy, pirCount int) domain.CollectionParams {
	return domain.CollectionParams{
		MaxDocsPerPIR:    maxDocsPerPIR(strategy.Intensity, pirCount),
		Threshold:        relevanceThreshold(strategy.Selectivity, strategy.Urgency),
		Timeout:          campaignTimeout(strategy.Urgency, strategy.Intensity),
		EvalBatchSize:    lookup(evalBatchSizes, strategy.Intensity, domain.IntensityStandard),
		MaxSignalsPerPIR: lookup(signalCaps, strategy.Intensity, domain.IntensityStandard),
	}
}

func maxDocsPerPIR(intensity string, pirCount int) int {
	base := lookup(baseVolumes, intensity, domain.IntensityStandard)

	if pirCount <= scalingPIRThreshold {
		return base
	}

	scale := 1.0 - float64(pirCount-scalingPIRThreshold)*scalingStepPerPIR
	if scale < minVolumeScale {
		scale = minVolumeScale
	}

	return int(math.Round(float64(base) * scale))
}

func relevanceThreshold(selectivity, urgency string) float64 {
	threshold := lookup(baseThresholds, selectivity, domain.SelectivityBalanced)

	switch urgency {
	case domain.UrgencyCrisis:
		threshold *= crisisThresholdFactor
	case domain.UrgencyLongTerm:
		threshold *= longTermThresholdFactor
	}

	return clamp(threshold, minThreshold, maxThreshold)
}

func campaignTimeout(urgency, intensity string) time.Duration {
	seconds := lookup(baseTimeoutSeconds, urgency, domain.UrgencyStrategic)

	switch intensity {
	case domain.IntensityComprehensive:
		seconds = seconds * 3 / 2
	case domain.IntensityLight:
		seconds = seconds * 7 / 10
	}

	return time.Duration(seconds) * time.Second
}

func lookup[V any](table map[string]V, key, fallback string) V {
	if v, ok := table[key]; ok {
		return v
	}

	return table[fallback]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
