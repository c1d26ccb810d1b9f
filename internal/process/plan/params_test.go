package plan

import (
	"math"
	"testing"
	"time"

	"github.com/lueurxax/signal-bridge/internal/core/domain"
)

const thresholdEpsilon = 1e-9

func TestDerive(t *testing.T) {
	tests := []struct {
		name        string
		strategy    domain.Strategy
		pirCount    int
		wantDocs    int
		wantThresh  float64
		wantTimeout time.Duration
		wantBatch   int
		wantSignals int
	}{
		{
			name: "standard_balanced_strategic",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyStrategic,
				Intensity:   domain.IntensityStandard,
				Selectivity: domain.SelectivityBalanced,
			},
			pirCount:    3,
			wantDocs:    500,
			wantThresh:  0.30,
			wantTimeout: 300 * time.Second,
			wantBatch:   30,
			wantSignals: 25,
		},
		{
			name: "crisis_lowers_threshold_and_timeout",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyCrisis,
				Intensity:   domain.IntensityStandard,
				Selectivity: domain.SelectivityBalanced,
			},
			pirCount:    3,
			wantDocs:    500,
			wantThresh:  0.21,
			wantTimeout: 180 * time.Second,
			wantBatch:   30,
			wantSignals: 25,
		},
		{
			name: "seven_pirs_scale_volume",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyStrategic,
				Intensity:   domain.IntensityStandard,
				Selectivity: domain.SelectivityBalanced,
			},
			pirCount:    7,
			wantDocs:    400,
			wantThresh:  0.30,
			wantTimeout: 300 * time.Second,
			wantBatch:   30,
			wantSignals: 25,
		},
		{
			name: "many_pirs_hit_scale_floor",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyStrategic,
				Intensity:   domain.IntensityStandard,
				Selectivity: domain.SelectivityBalanced,
			},
			pirCount:    12,
			wantDocs:    250,
			wantThresh:  0.30,
			wantTimeout: 300 * time.Second,
			wantBatch:   30,
			wantSignals: 25,
		},
		{
			name: "comprehensive_long_term_inclusive",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyLongTerm,
				Intensity:   domain.IntensityComprehensive,
				Selectivity: domain.SelectivityInclusive,
			},
			pirCount:    2,
			wantDocs:    2000,
			wantThresh:  0.18,
			wantTimeout: 675 * time.Second,
			wantBatch:   100,
			wantSignals: 100,
		},
		{
			name: "light_crisis_very_selective",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyCrisis,
				Intensity:   domain.IntensityLight,
				Selectivity: domain.SelectivityVerySelective,
			},
			pirCount:    1,
			wantDocs:    200,
			wantThresh:  0.49,
			wantTimeout: 126 * time.Second,
			wantBatch:   20,
			wantSignals: 15,
		},
		{
			name: "threshold_clamped_at_ceiling",
			strategy: domain.Strategy{
				Urgency:     domain.UrgencyLongTerm,
				Intensity:   domain.IntensityStandard,
				Selectivity: domain.SelectivityVerySelective,
			},
			pirCount:    2,
			wantDocs:    500,
			wantThresh:  0.80,
			wantTimeout: 450 * time.Second,
			wantBatch:   30,
			wantSignals: 25,
		},
		{
			name: "unknown_tiers_fall_back_to_defaults",
			strategy: domain.Strategy{
				Urgency:     "immediate",
				Intensity:   "maximum",
				Selectivity: "strict",
			},
			pirCount:    3,
			wantDocs:    500,
			wantThresh:  0.30,
			wantTimeout: 300 * time.Second,
			wantBatch:   30,
			wantSignals: 25,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(&tt.strategy, tt.pirCount)

			if got.MaxDocsPerPIR != tt.wantDocs {
				t.Errorf("MaxDocsPerPIR = %d, want %d", got.MaxDocsPerPIR, tt.wantDocs)
			}

			if math.Abs(got.Threshold-tt.wantThresh) > thresholdEpsilon {
				t.Errorf("Threshold = %v, want %v", got.Threshold, tt.wantThresh)
			}

			if got.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", got.Timeout, tt.wantTimeout)
			}

			if got.EvalBatchSize != tt.wantBatch {
				t.Errorf("EvalBatchSize = %d, want %d", got.EvalBatchSize, tt.wantBatch)
			}

			if got.MaxSignalsPerPIR != tt.wantSignals {
				t.Errorf("MaxSignalsPerPIR = %d, want %d", got.MaxSignalsPerPIR, tt.wantSignals)
			}
		})
	}
}

func TestDeriveIsPure(t *testing.T) {
	strategy := domain.Strategy{
		Urgency:     domain.UrgencyCrisis,
		Intensity:   domain.IntensityIntensive,
		Selectivity: domain.SelectivitySelective,
	}

	first := Derive(&strategy, 8)
	second := Derive(&strategy, 8)

	if first != second {
		t.Errorf("Derive not deterministic: %+v vs %+v", first, second)
	}
}
