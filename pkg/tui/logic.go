package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"presale/pkg/config"
	"presale/pkg/models"
	"presale/pkg/phase"
	"presale/pkg/utils"
	"presale/pkg/watcher"
)

const notAvailable = "—"

func formatLogEntry(e models.LogEntry) string {
	line := fmt.Sprintf("[%s] %s", e.Time.Local().Format("15:04:05"), e.Message)
	switch e.Level {
	case "warn":
		return warnStyle.Render(line)
	case "error", "dpanic", "panic", "fatal":
		return errStyle.Render(line)
	}
	return line
}

func connectionLabel(s models.ConnectionState) string {
	switch s.Status {
	case models.StatusConnecting:
		return "Connecting…"
	case models.StatusConnected:
		label := fmt.Sprintf("%s (%s)", utils.ShortAddress(s.Account), s.Capability)
		if !s.CorrectNetwork {
			label += fmt.Sprintf(" • wrong network (%d)", s.ChainID)
		}
		return label
	case models.StatusError:
		if s.Message != "" {
			return "Error: " + s.Message
		}
		return "Error"
	}
	return "Not connected"
}

func connectionStyle(s models.ConnectionState) lipgloss.Style {
	switch {
	case s.Status == models.StatusError:
		return errStyle
	case s.Connected() && !s.CorrectNetwork:
		return warnStyle
	case s.Connected():
		return infoStyle
	}
	return subtleStyle
}

func raisedLabel(snap *models.StatsSnapshot, cfg *config.SaleConfig) string {
	if snap == nil {
		return notAvailable
	}
	return fmt.Sprintf("%s %s", utils.FormatDecimal(snap.Raised, 2), cfg.PaymentToken.Symbol)
}

func soldLabel(snap *models.StatsSnapshot, cfg *config.SaleConfig) string {
	if snap == nil || !snap.Sold.Valid {
		return notAvailable
	}
	label := fmt.Sprintf("%s %s", utils.FormatDecimal(snap.Sold.Decimal, 2), cfg.SaleToken.Symbol)
	switch snap.SoldSource {
	case models.SoldFromAccessor:
		label += subtleStyle.Render(" (" + snap.Accessor + ")")
	case models.SoldFromInventory:
		label += subtleStyle.Render(" (inventory)")
	case models.SoldFromRaisedRate:
		label += subtleStyle.Render(" (estimated)")
	}
	return label
}

func capacityLabel(cfg *config.SaleConfig) string {
	if cfg.Capacity <= 0 {
		return notAvailable
	}
	return fmt.Sprintf("%s %s", utils.FormatNumber(cfg.Capacity, 2), cfg.SaleToken.Symbol)
}

func endTimeLabel(endTime int64) string {
	if endTime <= 0 {
		return notAvailable
	}
	return time.Unix(endTime, 0).Local().Format("2006-01-02 15:04")
}

func operationLabel(op *models.PendingOperation) string {
	if op == nil {
		return ""
	}
	switch op.Stage {
	case models.StageSubmitted:
		return fmt.Sprintf("%s pending: %s", op.Kind, utils.ShortAddress(op.TxHash))
	case models.StageConfirmed:
		return fmt.Sprintf("%s confirmed.", op.Kind)
	case models.StageSkipped:
		return fmt.Sprintf("%s skipped: %s", op.Kind, op.Message)
	case models.StageFailed:
		return fmt.Sprintf("%s failed: %s", op.Kind, op.Message)
	}
	return ""
}

func rowStyle(c phase.Class) lipgloss.Style {
	switch c {
	case phase.Past:
		return pastStyle
	case phase.Current:
		return currentStyle
	}
	return futureStyle
}

// phaseRows renders the schedule, one line per phase.
func phaseRows(view phase.View, cfg *config.SaleConfig) []string {
	pay, token := cfg.PaymentToken.Symbol, cfg.SaleToken.Symbol
	lines := make([]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		marker := "  "
		if row.Class == phase.Current {
			marker = "▶ "
		}
		line := fmt.Sprintf("%s%-12s %-32s %s", marker, utils.TruncateString(row.Name, 12), row.Meta(pay, token), row.Price(pay, token))
		lines = append(lines, rowStyle(row.Class).Render(line))
	}
	return lines
}

func listenForWatcher(sub watcher.Subscriber) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-sub
		if !ok {
			return nil
		}
		return e
	}
}

func historyValues(points []models.StatsPoint) []float64 {
	values := make([]float64, 0, len(points))
	for _, p := range points {
		values = append(values, p.Raised)
	}
	return values
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return clearStatusMsg{} })
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n")
}
