package phase

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale/pkg/config"
)

const T = int64(1_700_000_000)

func days(d float64) *float64 { return &d }

func twoPhaseConfig() *config.SaleConfig {
	return &config.SaleConfig{
		SaleStartTime: T,
		BaseRate:      15,
		PaymentToken:  config.TokenConfig{Symbol: "USDT"},
		SaleToken:     config.TokenConfig{Symbol: "GOBG"},
		Phases: []config.PhaseDef{
			{Name: "Phase 1", TokensPerUnit: 20, UnitsPerToken: 0.05, DurationDays: days(1)},
			{Name: "Phase 2", TokensPerUnit: 10, UnitsPerToken: 0.1, DurationDays: days(1)},
		},
	}
}

func TestBuildTimeline(t *testing.T) {
	cfg := twoPhaseConfig()
	cfg.Phases = append(cfg.Phases,
		config.PhaseDef{Name: "Zero", DurationDays: days(0)},
		config.PhaseDef{Name: "Negative", DurationDays: days(-3)},
		config.PhaseDef{Name: "Default"},
		config.PhaseDef{Name: "Fraction", DurationDays: days(0.5)},
	)

	timeline := BuildTimeline(cfg)
	require.Len(t, timeline, len(cfg.Phases))
	assert.Equal(t, T, timeline[0].Start)
	for i, seg := range timeline {
		assert.Greater(t, seg.End, seg.Start, "segment %d must have positive width", i)
		if i > 0 {
			assert.Equal(t, timeline[i-1].End, seg.Start, "segment %d must start where %d ends", i, i-1)
		}
	}
	assert.Equal(t, int64(1), timeline[2].End-timeline[2].Start)
	assert.Equal(t, int64(1), timeline[3].End-timeline[3].Start)
	assert.Equal(t, int64(7*86400), timeline[4].End-timeline[4].Start)
	assert.Equal(t, int64(43200), timeline[5].End-timeline[5].Start)

	assert.Equal(t, timeline, BuildTimeline(cfg), "timeline must be deterministic")
}

func TestBuildTimeline_Unscheduled(t *testing.T) {
	cfg := twoPhaseConfig()
	cfg.SaleStartTime = 0
	assert.Empty(t, BuildTimeline(cfg))

	cfg = twoPhaseConfig()
	cfg.Phases = nil
	assert.Empty(t, BuildTimeline(cfg))
	assert.Empty(t, BuildTimeline(nil))
}

func TestDurationSeconds(t *testing.T) {
	assert.Equal(t, int64(86400), DurationSeconds(1))
	assert.Equal(t, int64(1), DurationSeconds(0))
	assert.Equal(t, int64(1), DurationSeconds(-1))
	assert.Equal(t, int64(1), DurationSeconds(1e-9))
	assert.Equal(t, int64(1), DurationSeconds(math.NaN()))
	assert.Greater(t, DurationSeconds(math.Inf(1)), int64(0))
}

func TestResolveScenario(t *testing.T) {
	cfg := twoPhaseConfig()
	timeline := BuildTimeline(cfg)

	res := Resolve(timeline, T, T-10)
	assert.Equal(t, NotStarted, res.Status)
	assert.Equal(t, T, res.Boundary)
	assert.Equal(t, "00:00:00:10", Render(cfg, T-10).Countdown)

	res = Resolve(timeline, T, T+3600)
	assert.Equal(t, InPhase, res.Status)
	assert.Equal(t, 0, res.Index)
	assert.Equal(t, 20.0, CurrentRate(cfg, T+3600))

	res = Resolve(timeline, T, T+86400+10)
	assert.Equal(t, InPhase, res.Status)
	assert.Equal(t, 1, res.Index)
	assert.Equal(t, 10.0, CurrentRate(cfg, T+86400+10))

	res = Resolve(timeline, T, T+2*86400+5)
	assert.Equal(t, Ended, res.Status)
	assert.Equal(t, T+2*86400, res.Boundary)
	assert.Equal(t, 15.0, CurrentRate(cfg, T+2*86400+5))
}

func TestResolve_Boundaries(t *testing.T) {
	cfg := twoPhaseConfig()
	timeline := BuildTimeline(cfg)

	assert.Equal(t, Resolution{Status: InPhase, Index: 0, Boundary: T + 86400}, Resolve(timeline, T, T))
	assert.Equal(t, 1, Resolve(timeline, T, T+86400).Index)
	assert.Equal(t, Ended, Resolve(timeline, T, T+2*86400).Status)
	assert.Equal(t, Unscheduled, Resolve(nil, T, T).Status)
	assert.Equal(t, Unscheduled, Resolve(timeline, 0, T).Status)

	// Two instants inside one segment resolve identically.
	assert.Equal(t, Resolve(timeline, T, T+100), Resolve(timeline, T, T+80000))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		res  Resolution
		want []Class
	}{
		{"unscheduled", Resolution{Status: Unscheduled, Index: -1}, []Class{Future, Future, Future}},
		{"not started", Resolution{Status: NotStarted, Index: -1}, []Class{Future, Future, Future}},
		{"in phase", Resolution{Status: InPhase, Index: 1}, []Class{Past, Current, Future}},
		{"ended", Resolution{Status: Ended, Index: 3}, []Class{Past, Past, Past}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i, want := range tt.want {
				assert.Equal(t, want, Classify(tt.res, i))
			}
		})
	}
}

func TestCurrentRate_AlwaysPositive(t *testing.T) {
	for _, bad := range []float64{0, -5, math.NaN(), math.Inf(1), math.Inf(-1)} {
		cfg := twoPhaseConfig()
		cfg.Phases[0].TokensPerUnit = bad
		assert.Equal(t, 15.0, CurrentRate(cfg, T+10))

		cfg.BaseRate = bad
		rate := CurrentRate(cfg, T+10)
		assert.Equal(t, config.DefaultBaseRate, rate)
		assert.False(t, math.IsNaN(rate))
	}
	assert.Equal(t, config.DefaultBaseRate, CurrentRate(nil, T))
}

func TestEstimateOutput(t *testing.T) {
	cfg := twoPhaseConfig()

	est := EstimateOutput("10", cfg, T+10)
	require.True(t, est.Available)
	assert.Equal(t, TagBaseRate, est.Tag)
	assert.Equal(t, "Estimated output (base rate): 150 GOBG", est.String())

	cfg.UsePhaseRateForEstimate = true
	est = EstimateOutput("1,000.5", cfg, T+10)
	require.True(t, est.Available)
	assert.Equal(t, TagPhaseRate, est.Tag)
	assert.Equal(t, "Estimated output (phase rate): 20,010 GOBG", est.String())

	est = EstimateOutput("10,5", cfg, T+86400+1)
	assert.Equal(t, "Estimated output (phase rate): 105 GOBG", est.String())

	for _, bad := range []string{"", "abc", "0", "-1"} {
		est = EstimateOutput(bad, cfg, T+10)
		assert.False(t, est.Available, bad)
		assert.Equal(t, "Estimated output: unavailable", est.String())
	}
}

func TestRender(t *testing.T) {
	cfg := twoPhaseConfig()

	view := Render(cfg, T+3600)
	assert.Equal(t, "Phase 1 • 1 USDT = 20 GOBG", view.Active)
	assert.Equal(t, "00:23:00:00", view.Countdown)
	require.Len(t, view.Rows, 2)
	assert.Equal(t, Current, view.Rows[0].Class)
	assert.Equal(t, "20", view.Rows[0].TokensPerUnit)
	assert.Equal(t, "0.05", view.Rows[0].UnitsPerToken)
	assert.Equal(t, "1 days • 1 USDT = 20 GOBG", view.Rows[0].Meta("USDT", "GOBG"))
	assert.Equal(t, Future, view.Rows[1].Class)
	assert.Equal(t, MaskedRate, view.Rows[1].TokensPerUnit)
	assert.Equal(t, MaskedRate, view.Rows[1].UnitsPerToken)
	assert.Equal(t, "X.XXXX USDT / GOBG", view.Rows[1].Price("USDT", "GOBG"))

	view = Render(cfg, T-10)
	assert.Equal(t, LabelNotStarted, view.Active)
	for _, row := range view.Rows {
		assert.Equal(t, MaskedRate, row.TokensPerUnit)
	}

	view = Render(cfg, T+3*86400)
	assert.Equal(t, LabelEnded, view.Active)
	assert.Equal(t, "00:00:00:00", view.Countdown)
	assert.Equal(t, "10", view.Rows[1].TokensPerUnit)

	cfg.SaleStartTime = 0
	view = Render(cfg, T)
	assert.Equal(t, LabelNotConfigured, view.Active)
	assert.Equal(t, "--:--:--:--", view.Countdown)
	assert.Empty(t, view.Rows)
}
