package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"presale/pkg/config"
	"presale/pkg/models"
	"presale/pkg/watcher"
)

// Version is set by Start()
var Version = "dev"

// Session is the wallet session driven by the connect keys.
type Session interface {
	ConnectAuto(ctx context.Context) (models.ConnectionState, error)
	Connect(ctx context.Context, capability models.Capability) (models.ConnectionState, error)
	Disconnect()
	State() models.ConnectionState
}

// Operations are the four on-chain actions.
type Operations interface {
	Approve(ctx context.Context, text string) error
	Buy(ctx context.Context, text string) error
	Claim(ctx context.Context) error
	Finalize(ctx context.Context) error
	Busy() bool
}

// App bundles what the UI drives.
type App struct {
	Config  *config.SaleConfig
	Watcher *watcher.Watcher
	Session Session
	Ops     Operations
}

// --- Messages ---

type clearStatusMsg struct{}
type uiTickMsg time.Time

type opDoneMsg struct {
	kind models.OperationKind
	err  error
}

type connectDoneMsg struct {
	state models.ConnectionState
	err   error
}

// --- Model ---

type model struct {
	ctx     context.Context
	cfg     *config.SaleConfig
	watcher *watcher.Watcher
	sub     watcher.Subscriber
	session Session
	ops     Operations

	width  int
	height int
	now    time.Time

	amountInput textinput.Model
	spinner     spinner.Model
	progress    progress.Model
	viewport    viewport.Model

	connection models.ConnectionState
	connecting bool
	stats      *models.StatsSnapshot
	statsErr   string
	position   *models.Position
	logs       []models.LogEntry
	lastOp     *models.PendingOperation
	running    models.OperationKind
	pairingURI string
	lastUpdate time.Time

	statusMessage string
	showHelp      bool
	showGraph     bool
}

func initialModel(ctx context.Context, app App) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ti := textinput.New()
	ti.Placeholder = "Amount in " + app.Config.PaymentToken.Symbol
	ti.CharLimit = 32
	ti.Width = 24

	m := model{
		ctx:         ctx,
		cfg:         app.Config,
		watcher:     app.Watcher,
		session:     app.Session,
		ops:         app.Ops,
		now:         time.Now(),
		amountInput: ti,
		spinner:     s,
		progress:    progress.New(progress.WithDefaultGradient()),
		viewport:    viewport.New(0, 0),
		connection:  models.ConnectionState{Status: models.StatusDisconnected},
	}
	if app.Watcher != nil {
		m.sub = app.Watcher.Subscribe()
		m.logs = app.Watcher.Logs()
		if snap, ok := app.Watcher.Stats(); ok {
			m.stats = &snap
		}
	}
	if app.Session != nil {
		m.connection = app.Session.State()
	}
	m.refreshViewport()
	return m
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return uiTickMsg(t) }),
	}
	if m.sub != nil {
		cmds = append(cmds, listenForWatcher(m.sub))
	}
	return tea.Batch(cmds...)
}
