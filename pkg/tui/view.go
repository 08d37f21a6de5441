package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"presale/pkg/phase"
	"presale/pkg/utils"
)

func (m model) View() string {
	if m.showHelp {
		return m.viewHelp()
	}
	if m.showGraph {
		return m.viewGraph()
	}

	targetWidth := m.width - 4
	if targetWidth < 40 {
		targetWidth = 40
	}

	view := phase.Render(m.cfg, m.now.Unix())
	sections := []string{
		m.viewPhases(view),
		m.viewStats(),
	}
	if m.connection.Connected() {
		sections = append(sections, m.viewPosition())
	}
	sections = append(sections, m.viewActions(), m.viewActivity())

	content := boxStyle.Width(targetWidth).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))

	// Footer
	line1 := "c:connect • w:remote • d:disconnect • i:amount • a:approve • b:buy • l:claim • f:finalize"
	line2 := fmt.Sprintf("r:ref • o:explorer • y:cpy • g:graph • ?:hlp • q:quit • v%s", Version)

	var footer string
	if m.width > 0 {
		l1 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line1)
		l2 := subtleStyle.Width(m.width).Align(lipgloss.Center).Render(line2)
		footer = lipgloss.JoinVertical(lipgloss.Center, l1, l2)
	} else {
		footer = subtleStyle.Render(line1 + "\n" + line2)
	}
	if m.statusMessage != "" {
		footer = lipgloss.JoinVertical(lipgloss.Center, infoStyle.Render(m.statusMessage), footer)
	}

	// Top bar
	leftBlock := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render(fmt.Sprintf("%s Presale", m.cfg.SaleToken.Symbol)),
		subtleStyle.Render(fmt.Sprintf(" %s (%d) • ", m.cfg.ChainName, m.cfg.ChainID)),
		connectionStyle(m.connection).Render(connectionLabel(m.connection)),
	)
	lastUpd := "never"
	if !m.lastUpdate.IsZero() {
		lastUpd = m.lastUpdate.Local().Format("15:04:05")
	}
	rightBlock := subtleStyle.Render(fmt.Sprintf("Updated: %s ", lastUpd))
	gap := m.width - lipgloss.Width(leftBlock) - lipgloss.Width(rightBlock)
	if gap < 0 {
		gap = 0
	}
	topBar := lipgloss.JoinHorizontal(lipgloss.Top, leftBlock, strings.Repeat(" ", gap), rightBlock)

	return lipgloss.JoinVertical(lipgloss.Left, topBar, content, footer)
}

func (m model) viewPhases(view phase.View) string {
	header := tableHeaderStyle.Render("Phases")
	active := fmt.Sprintf("Active: %s", currentStyle.Render(view.Active))
	countdown := fmt.Sprintf("Time left: %s", view.Countdown)

	lines := []string{header, active, countdown}
	if rows := phaseRows(view, m.cfg); len(rows) > 0 {
		lines = append(lines, "", joinLines(rows))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) viewStats() string {
	header := tableHeaderStyle.Render("Sale")
	lines := []string{
		header,
		fmt.Sprintf("Raised:   %s", raisedLabel(m.stats, m.cfg)),
		fmt.Sprintf("Sold:     %s", soldLabel(m.stats, m.cfg)),
		fmt.Sprintf("Capacity: %s", capacityLabel(m.cfg)),
	}
	if m.stats != nil && m.cfg.Capacity > 0 {
		lines = append(lines, fmt.Sprintf("%s %s", m.progress.ViewAs(m.stats.Percent/100), utils.FormatNumber(m.stats.Percent, 2)+"%"))
	}
	if m.statsErr != "" {
		lines = append(lines, errStyle.Render("Stats error: "+m.statsErr))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) viewPosition() string {
	header := tableHeaderStyle.Render("Your position")
	if m.position == nil {
		return lipgloss.JoinVertical(lipgloss.Left, header, subtleStyle.Render("Loading..."))
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		fmt.Sprintf("Balance:   %s %s", utils.FormatDecimal(m.position.PaymentBalance, 2), m.cfg.PaymentToken.Symbol),
		fmt.Sprintf("Claimable: %s %s", utils.FormatDecimal(m.position.Claimable, 4), m.cfg.SaleToken.Symbol),
		fmt.Sprintf("Sale end:  %s", endTimeLabel(m.position.EndTime)),
	)
}

func (m model) viewActions() string {
	header := tableHeaderStyle.Render("Buy")
	estimate := phase.EstimateOutput(m.amountInput.Value(), m.cfg, m.now.Unix())
	lines := []string{
		header,
		fmt.Sprintf("Amount (%s): %s", m.cfg.PaymentToken.Symbol, m.amountInput.View()),
		subtleStyle.Render(estimate.String()),
	}
	if m.running != "" {
		lines = append(lines, fmt.Sprintf("%s %s in progress...", m.spinner.View(), m.running))
	} else if label := operationLabel(m.lastOp); label != "" {
		lines = append(lines, label)
	}
	if m.pairingURI != "" {
		lines = append(lines, warnStyle.Render("Pair your wallet: ")+utils.TruncateString(m.pairingURI, 60))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m model) viewActivity() string {
	return lipgloss.JoinVertical(lipgloss.Left, tableHeaderStyle.Render("Activity"), m.viewport.View())
}

func (m model) viewGraph() string {
	header := titleStyle.Render(fmt.Sprintf("Raised History (%s)", m.cfg.PaymentToken.Symbol))
	var graph string
	var values []float64
	if m.watcher != nil {
		values = historyValues(m.watcher.History())
	}
	if len(values) > 1 {
		width := m.width - 14
		if width < 10 {
			width = 10
		}
		height := m.height - 12
		if height < 1 {
			height = 1
		}
		graph = asciigraph.Plot(values,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption(fmt.Sprintf("Raised (%s)", m.cfg.PaymentToken.Symbol)),
		)
	} else {
		graph = "Not enough data to draw graph."
	}

	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Center, header, "\n", graph))
	footer := subtleStyle.Render("g/q/esc: back")
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer))
}

func (m model) viewHelp() string {
	shortcuts := []string{
		"c: Connect (local key, else remote signer)",
		"w: Connect remote signer",
		"d: Disconnect",
		"i/Tab: Edit amount (enter/esc to finish)",
		"a: Approve amount",
		"b: Buy with amount",
		"l: Claim tokens",
		"f: Finalize sale",
		"r: Refresh data",
		"o: Open sale in explorer",
		"y: Copy pairing URI / account",
		"g: Raised history graph",
		"↑/↓: Scroll activity",
		"q: Quit",
		"?: Toggle Help",
	}

	header := titleStyle.Render("Help")
	content := boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, "\n", strings.Join(shortcuts, "\n")))
	footer := subtleStyle.Render("Press '?' or 'esc' to close")

	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, content, "\n", footer),
	)
}
