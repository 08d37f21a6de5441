package tui

import (
	"errors"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"presale/pkg/models"
	"presale/pkg/watcher"
)

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()

	case watcher.Event:
		cmds = append(cmds, listenForWatcher(m.sub))
		cmds = append(cmds, m.handleEvent(msg)...)

	case opDoneMsg:
		if errors.Is(msg.err, models.ErrBusy) {
			m.statusMessage = models.Message(msg.err)
			cmds = append(cmds, clearStatusAfter(2*time.Second))
			break
		}
		m.running = ""
		if msg.err != nil {
			m.statusMessage = models.Message(msg.err)
			cmds = append(cmds, clearStatusAfter(4*time.Second))
		}

	case connectDoneMsg:
		m.connecting = false
		m.connection = msg.state
		if msg.err != nil {
			m.statusMessage = models.Message(msg.err)
			cmds = append(cmds, clearStatusAfter(4*time.Second))
		}

	case tea.KeyMsg:
		if m.amountInput.Focused() {
			switch msg.String() {
			case "esc", "enter", "tab":
				m.amountInput.Blur()
				return m, nil
			case "ctrl+c":
				return m, tea.Quit
			}
			var cmd tea.Cmd
			m.amountInput, cmd = m.amountInput.Update(msg)
			return m, cmd
		}

		if msg.String() == "?" {
			m.showHelp = !m.showHelp
			return m, nil
		}
		if m.showHelp {
			if msg.String() == "q" || msg.String() == "esc" {
				m.showHelp = false
			}
			return m, nil
		}
		if m.showGraph {
			if msg.String() == "q" || msg.String() == "esc" || msg.String() == "g" {
				m.showGraph = false
			}
			return m, nil
		}

		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "g":
			m.showGraph = true
		case "tab", "i":
			cmds = append(cmds, m.amountInput.Focus())
		case "c":
			cmds = append(cmds, m.connect(""))
		case "w":
			cmds = append(cmds, m.connect(models.CapabilityRemote))
		case "d":
			if m.session != nil {
				m.session.Disconnect()
				m.connection = m.session.State()
				m.position = nil
			}
		case "a":
			cmds = append(cmds, m.runOp(models.OpApprove))
		case "b":
			cmds = append(cmds, m.runOp(models.OpBuy))
		case "l":
			cmds = append(cmds, m.runOp(models.OpClaim))
		case "f":
			cmds = append(cmds, m.runOp(models.OpFinalize))
		case "r":
			cmds = append(cmds, m.refresh())
			m.statusMessage = "Refreshing data..."
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		case "o":
			m.statusMessage = "Opened in browser"
			if err := openExplorer(m.cfg.SaleExplorerURL); err != nil {
				m.statusMessage = "Failed to open browser: " + err.Error()
			}
			cmds = append(cmds, clearStatusAfter(2*time.Second))
		case "y":
			cmds = append(cmds, m.copyToClipboard())
		default:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)
		}

	case uiTickMsg:
		m.now = time.Time(msg)
		cmds = append(cmds, tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }))

	case clearStatusMsg:
		m.statusMessage = ""

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleEvent(e watcher.Event) []tea.Cmd {
	var cmds []tea.Cmd
	switch e.Type {
	case watcher.EventStatsUpdated:
		if snap, ok := e.Data.(models.StatsSnapshot); ok {
			m.stats = &snap
			m.statsErr = ""
			m.lastUpdate = snap.UpdatedAt
		}
	case watcher.EventStatsFailed:
		if msg, ok := e.Data.(string); ok {
			m.statsErr = msg
		}
	case watcher.EventPositionUpdated:
		if pos, ok := e.Data.(models.Position); ok {
			m.position = &pos
		}
	case watcher.EventConnectionChanged:
		if state, ok := e.Data.(models.ConnectionState); ok {
			m.connection = state
			m.connecting = state.Status == models.StatusConnecting
			if !state.Connected() {
				m.position = nil
			} else {
				m.pairingURI = ""
				cmds = append(cmds, m.refreshPersonal())
			}
		}
	case watcher.EventOperation:
		if op, ok := e.Data.(models.PendingOperation); ok {
			m.lastOp = &op
		}
	case watcher.EventLog:
		if entry, ok := e.Data.(models.LogEntry); ok {
			m.logs = append(m.logs, entry)
			if len(m.logs) > watcher.LogLimit {
				m.logs = m.logs[len(m.logs)-watcher.LogLimit:]
			}
			m.refreshViewport()
		}
	case watcher.EventPairingURI:
		if uri, ok := e.Data.(string); ok {
			m.pairingURI = uri
			if err := clipboard.WriteAll(uri); err != nil {
				m.statusMessage = "Scan or paste the pairing URI in your wallet (press y to copy)"
			} else {
				m.statusMessage = "Pairing URI copied to clipboard!"
			}
			cmds = append(cmds, clearStatusAfter(4*time.Second))
		}
	}
	return cmds
}

func (m *model) connect(capability models.Capability) tea.Cmd {
	if m.session == nil || m.connecting {
		return nil
	}
	m.connecting = true
	m.connection = models.ConnectionState{Status: models.StatusConnecting, Capability: capability}
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		var state models.ConnectionState
		var err error
		if capability == "" {
			state, err = session.ConnectAuto(ctx)
		} else {
			state, err = session.Connect(ctx, capability)
		}
		return connectDoneMsg{state: state, err: err}
	}
}

func (m *model) runOp(kind models.OperationKind) tea.Cmd {
	if m.ops == nil {
		return nil
	}
	if m.running == "" {
		m.running = kind
	}
	ctx, ops, text := m.ctx, m.ops, m.amountInput.Value()
	return func() tea.Msg {
		var err error
		switch kind {
		case models.OpApprove:
			err = ops.Approve(ctx, text)
		case models.OpBuy:
			err = ops.Buy(ctx, text)
		case models.OpClaim:
			err = ops.Claim(ctx)
		case models.OpFinalize:
			err = ops.Finalize(ctx)
		}
		return opDoneMsg{kind: kind, err: err}
	}
}

func (m model) refresh() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	ctx, w := m.ctx, m.watcher
	return func() tea.Msg {
		w.RefreshStats(ctx)
		w.RefreshPersonal(ctx)
		return nil
	}
}

func (m model) refreshPersonal() tea.Cmd {
	if m.watcher == nil {
		return nil
	}
	ctx, w := m.ctx, m.watcher
	return func() tea.Msg {
		w.RefreshPersonal(ctx)
		return nil
	}
}

func (m *model) copyToClipboard() tea.Cmd {
	text, what := m.pairingURI, "Pairing URI"
	if text == "" {
		text, what = m.connection.Account, "Account"
	}
	if text == "" {
		return nil
	}
	if err := clipboard.WriteAll(text); err != nil {
		m.statusMessage = "Failed to copy to clipboard"
	} else {
		m.statusMessage = what + " copied to clipboard!"
	}
	return clearStatusAfter(2 * time.Second)
}

func (m *model) resize() {
	w := m.width - 6
	if w < 20 {
		w = 20
	}
	h := m.height / 4
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
	pw := w - 20
	if pw > 50 {
		pw = 50
	}
	if pw < 10 {
		pw = 10
	}
	m.progress.Width = pw
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	lines := make([]string, 0, len(m.logs))
	for _, e := range m.logs {
		lines = append(lines, formatLogEntry(e))
	}
	content := joinLines(lines)
	if len(lines) == 0 {
		content = subtleStyle.Render("No activity yet.")
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}
