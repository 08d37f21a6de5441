package tui

import (
	"context"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presale/pkg/models"
	"presale/pkg/watcher"
)

type fakeSession struct {
	mu           sync.Mutex
	state        models.ConnectionState
	auto         int
	disconnected bool
}

func (f *fakeSession) ConnectAuto(ctx context.Context) (models.ConnectionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auto++
	f.state = models.ConnectionState{Status: models.StatusConnected, Account: "0xabc", CorrectNetwork: true}
	return f.state, nil
}

func (f *fakeSession) Connect(ctx context.Context, c models.Capability) (models.ConnectionState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = models.ConnectionState{Status: models.StatusConnected, Account: "0xdef", Capability: c, CorrectNetwork: true}
	return f.state, nil
}

func (f *fakeSession) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	f.state = models.ConnectionState{Status: models.StatusDisconnected}
}

func (f *fakeSession) State() models.ConnectionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type fakeOps struct {
	mu       sync.Mutex
	approved []string
	err      error
}

func (f *fakeOps) Approve(ctx context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, text)
	return f.err
}

func (f *fakeOps) Buy(ctx context.Context, text string) error { return f.err }
func (f *fakeOps) Claim(ctx context.Context) error            { return f.err }
func (f *fakeOps) Finalize(ctx context.Context) error         { return f.err }
func (f *fakeOps) Busy() bool                                 { return false }

func newTestModel(t *testing.T) (model, *fakeSession, *fakeOps) {
	t.Helper()
	cfg := testConfig()
	w := watcher.NewWatcher(cfg, nil, nil, nil)
	s := &fakeSession{state: models.ConnectionState{Status: models.StatusDisconnected}}
	ops := &fakeOps{}
	m := initialModel(context.Background(), App{Config: cfg, Watcher: w, Session: s, Ops: ops})
	m.now = time.Unix(cfg.SaleStartTime+60, 0)
	m.width, m.height = 120, 40
	m.resize()
	t.Cleanup(func() { w.Unsubscribe(m.sub) })
	return m, s, ops
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	require.True(t, ok)
	return nm, cmd
}

func TestUpdate_Quit(t *testing.T) {
	m, _, _ := newTestModel(t)
	_, cmd := update(t, m, key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUpdate_Connect(t *testing.T) {
	m, s, _ := newTestModel(t)
	m, cmd := update(t, m, key("c"))
	assert.True(t, m.connecting)
	assert.Equal(t, models.StatusConnecting, m.connection.Status)

	var done connectDoneMsg
	require.NotNil(t, cmd)
	for _, msg := range collect(cmd) {
		if d, ok := msg.(connectDoneMsg); ok {
			done = d
		}
	}
	assert.Equal(t, 1, s.auto)

	m, _ = update(t, m, done)
	assert.False(t, m.connecting)
	assert.True(t, m.connection.Connected())

	m, _ = update(t, m, key("d"))
	assert.True(t, s.disconnected)
	assert.Equal(t, models.StatusDisconnected, m.connection.Status)
}

func TestUpdate_AmountInputAndApprove(t *testing.T) {
	m, _, ops := newTestModel(t)
	m, _ = update(t, m, key("i"))
	assert.True(t, m.amountInput.Focused())
	for _, r := range "12.5" {
		m, _ = update(t, m, key(string(r)))
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.False(t, m.amountInput.Focused())
	assert.Equal(t, "12.5", m.amountInput.Value())

	m, cmd := update(t, m, key("a"))
	assert.Equal(t, models.OpApprove, m.running)
	var done opDoneMsg
	for _, msg := range collect(cmd) {
		if d, ok := msg.(opDoneMsg); ok {
			done = d
		}
	}
	assert.Equal(t, []string{"12.5"}, ops.approved)

	m, _ = update(t, m, done)
	assert.Equal(t, models.OperationKind(""), m.running)
}

func TestUpdate_OperationError(t *testing.T) {
	m, _, ops := newTestModel(t)
	ops.err = models.NewError(models.KindAllowance, "buy", "Allowance too low. Approve first.", nil)
	m, _ = update(t, m, opDoneMsg{kind: models.OpBuy, err: ops.err})
	assert.Equal(t, "Allowance too low. Approve first.", m.statusMessage)
}

func TestUpdate_BusyKeepsRunning(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.running = models.OpClaim
	m, _ = update(t, m, opDoneMsg{kind: models.OpBuy, err: models.ErrBusy})
	assert.Equal(t, models.OpClaim, m.running)
	assert.Equal(t, "Another transaction is pending.", m.statusMessage)
}

func TestUpdate_WatcherEvents(t *testing.T) {
	m, _, _ := newTestModel(t)

	m, cmd := update(t, m, watcher.Event{Type: watcher.EventStatsUpdated, Data: models.StatsSnapshot{
		Raised: decimal.NewFromInt(500), UpdatedAt: time.Unix(1_700_000_100, 0),
	}})
	assert.NotNil(t, cmd)
	require.NotNil(t, m.stats)
	assert.Equal(t, "500", m.stats.Raised.String())

	m, _ = update(t, m, watcher.Event{Type: watcher.EventStatsFailed, Data: "Request timed out."})
	assert.Equal(t, "Request timed out.", m.statsErr)
	require.NotNil(t, m.stats)

	m, _ = update(t, m, watcher.Event{Type: watcher.EventOperation, Data: models.PendingOperation{Kind: models.OpBuy, Stage: models.StageConfirmed}})
	require.NotNil(t, m.lastOp)
	assert.Equal(t, models.StageConfirmed, m.lastOp.Stage)

	m, _ = update(t, m, watcher.Event{Type: watcher.EventLog, Data: models.LogEntry{Time: time.Now(), Level: "info", Message: "Buy tx: 0x1"}})
	assert.Len(t, m.logs, 1)
	assert.Contains(t, m.viewport.View(), "Buy tx: 0x1")

	m.position = &models.Position{}
	m, _ = update(t, m, watcher.Event{Type: watcher.EventConnectionChanged, Data: models.ConnectionState{Status: models.StatusDisconnected}})
	assert.Nil(t, m.position)
}

func TestUpdate_TickRendersPhase(t *testing.T) {
	m, _, _ := newTestModel(t)
	ts := time.Unix(testConfig().SaleStartTime+86400+10, 0)
	m, cmd := update(t, m, uiTickMsg(ts))
	assert.NotNil(t, cmd)
	assert.Equal(t, ts, m.now)

	out := m.View()
	assert.Contains(t, out, "Public")
	assert.Contains(t, out, "Estimated output")
}

func TestUpdate_HelpAndGraph(t *testing.T) {
	m, _, _ := newTestModel(t)
	m, _ = update(t, m, key("?"))
	assert.True(t, m.showHelp)
	assert.Contains(t, m.View(), "Help")
	m, _ = update(t, m, key("?"))
	assert.False(t, m.showHelp)

	m, _ = update(t, m, key("g"))
	assert.True(t, m.showGraph)
	assert.Contains(t, m.View(), "Not enough data to draw graph.")
	m, _ = update(t, m, key("g"))
	assert.False(t, m.showGraph)
}

// collect runs cmd and flattens batches; it skips ticks and listeners by
// only running commands that return quickly.
func collect(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()
	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(200 * time.Millisecond):
		return nil
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, collect(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}
