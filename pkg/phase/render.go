package phase

import (
	"fmt"
	"strconv"

	"presale/pkg/config"
	"presale/pkg/utils"
)

// MaskedRate replaces both rates of future phases.
const MaskedRate = "X.XXXX"

const (
	LabelNotConfigured = "Not configured"
	LabelNotStarted    = "Not started"
	LabelEnded         = "Ended (waiting for finalize)"
)

// Row is one rendered phase line.
type Row struct {
	Name          string `json:"name"`
	Class         Class  `json:"class"`
	Days          string `json:"days"`
	TokensPerUnit string `json:"tokens_per_unit"`
	UnitsPerToken string `json:"units_per_token"`
	Start         int64  `json:"start"`
	End           int64  `json:"end"`
}

// Meta is the "<days> days • 1 USDT = <rate> TOKEN" line.
func (r Row) Meta(pay, token string) string {
	return fmt.Sprintf("%s days • 1 %s = %s %s", r.Days, pay, r.TokensPerUnit, token)
}

// Price is the "<inverse> USDT / TOKEN" line.
func (r Row) Price(pay, token string) string {
	return fmt.Sprintf("%s %s / %s", r.UnitsPerToken, pay, token)
}

// View is everything the presentation layer shows about the schedule.
type View struct {
	Status    string `json:"status"`
	Active    string `json:"active"`
	Countdown string `json:"countdown"`
	Remaining int64  `json:"remaining"`
	Rows      []Row  `json:"rows"`
}

func formatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Render resolves now and formats the active label, countdown and rows.
func Render(cfg *config.SaleConfig, now int64) View {
	timeline, res := At(cfg, now)
	view := View{Status: res.Status.String()}

	if res.Status == Unscheduled {
		view.Active = LabelNotConfigured
		view.Countdown = utils.CountdownPlaceholder
		return view
	}

	view.Remaining = res.Boundary - now
	if view.Remaining < 0 {
		view.Remaining = 0
	}
	view.Countdown = utils.FormatCountdown(view.Remaining)

	switch res.Status {
	case NotStarted:
		view.Active = LabelNotStarted
	case Ended:
		view.Active = LabelEnded
	case InPhase:
		def := timeline[res.Index].Def
		view.Active = fmt.Sprintf("%s • 1 %s = %s %s", def.Name, cfg.PaymentToken.Symbol, formatRate(def.TokensPerUnit), cfg.SaleToken.Symbol)
	}

	view.Rows = make([]Row, 0, len(timeline))
	for i, seg := range timeline {
		row := Row{
			Name:          seg.Def.Name,
			Class:         Classify(res, i),
			Days:          formatRate(seg.Def.Days()),
			TokensPerUnit: formatRate(seg.Def.TokensPerUnit),
			UnitsPerToken: formatRate(seg.Def.UnitsPerToken),
			Start:         seg.Start,
			End:           seg.End,
		}
		if row.Class == Future {
			row.TokensPerUnit = MaskedRate
			row.UnitsPerToken = MaskedRate
		}
		view.Rows = append(view.Rows, row)
	}
	return view
}
