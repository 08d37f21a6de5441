package phase

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"presale/pkg/amount"
	"presale/pkg/config"
	"presale/pkg/utils"
)

const (
	TagPhaseRate = "phase rate"
	TagBaseRate  = "base rate"
)

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// BaseRate is the configured base rate, or the built-in default when the
// configured value is unusable.
func BaseRate(cfg *config.SaleConfig) float64 {
	if cfg != nil && positive(cfg.BaseRate) {
		return cfg.BaseRate
	}
	return config.DefaultBaseRate
}

// CurrentRate returns tokens per payment unit at now. It is always finite
// and positive.
func CurrentRate(cfg *config.SaleConfig, now int64) float64 {
	timeline, res := At(cfg, now)
	if res.Status == InPhase {
		if r := timeline[res.Index].Def.TokensPerUnit; positive(r) {
			return r
		}
	}
	return BaseRate(cfg)
}

// Estimate is the projected token output for an entered amount.
type Estimate struct {
	Available bool
	Output    decimal.Decimal
	Rate      float64
	Tag       string
	Symbol    string
}

func (e Estimate) String() string {
	if !e.Available {
		return "Estimated output: unavailable"
	}
	return fmt.Sprintf("Estimated output (%s): %s %s", e.Tag, utils.FormatNumber(e.Output.InexactFloat64(), 6), e.Symbol)
}

// EstimateOutput multiplies the parsed amount by the phase rate or the base
// rate, depending on use_phase_rate_for_estimate.
func EstimateOutput(text string, cfg *config.SaleConfig, now int64) Estimate {
	est := Estimate{}
	if cfg != nil {
		est.Symbol = cfg.SaleToken.Symbol
	}
	d, err := amount.Parse(text)
	if err != nil {
		return est
	}

	est.Rate, est.Tag = BaseRate(cfg), TagBaseRate
	if cfg != nil && cfg.UsePhaseRateForEstimate {
		est.Rate, est.Tag = CurrentRate(cfg, now), TagPhaseRate
	}
	est.Output = d.Mul(decimal.NewFromFloat(est.Rate))
	est.Available = true
	return est
}
