package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"presale/pkg/config"
	"presale/pkg/logging"
	"presale/pkg/models"
)

const (
	// HistoryLimit caps the raised history kept for the graph.
	HistoryLimit = 120
	// LogLimit caps the activity log kept for late subscribers.
	LogLimit = 200
)

// StatsSource computes the global sale stats.
type StatsSource interface {
	Compute(ctx context.Context) (models.StatsSnapshot, error)
}

// PositionSource reads the position of one account.
type PositionSource interface {
	Fetch(ctx context.Context, account common.Address) (models.Position, error)
}

// AccountSource reports the connected account, if any.
type AccountSource interface {
	Account() (common.Address, bool)
}

// Watcher refreshes stats and the connected position on a timer and fans
// session events out to subscribers.
type Watcher struct {
	cfg       *config.SaleConfig
	stats     StatsSource
	positions PositionSource
	accounts  AccountSource
	log       *zap.Logger

	snapshot *models.StatsSnapshot
	position *models.Position
	history  []models.StatsPoint
	logs     []models.LogEntry

	subscribers []Subscriber
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWatcher creates a new Watcher instance.
func NewWatcher(cfg *config.SaleConfig, stats StatsSource, positions PositionSource, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{
		cfg:       cfg,
		stats:     stats,
		positions: positions,
		log:       log,
		stopChan:  make(chan struct{}),
	}
}

// SetAccountSource attaches the session whose position is refreshed.
func (w *Watcher) SetAccountSource(a AccountSource) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.accounts = a
}

// SetLogger replaces the logger, e.g. once the activity hook is attached.
func (w *Watcher) SetLogger(log *zap.Logger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.log = log
}

func (w *Watcher) logger() *zap.Logger {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.log
}

// Subscribe adds a new subscriber and returns a channel to receive events.
func (w *Watcher) Subscribe() Subscriber {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch := make(Subscriber, 100)
	w.subscribers = append(w.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber.
func (w *Watcher) Unsubscribe(ch Subscriber) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, sub := range w.subscribers {
		if sub == ch {
			w.subscribers = append(w.subscribers[:i], w.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Publish fans e out to every subscriber. Slow subscribers miss events.
func (w *Watcher) Publish(e Event) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	w.notifyLocked(e)
}

func (w *Watcher) notifyLocked(e Event) {
	for _, sub := range w.subscribers {
		select {
		case sub <- e:
		default:
		}
	}
}

// AppendLog records an activity entry and publishes it.
func (w *Watcher) AppendLog(entry models.LogEntry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.logs = append(w.logs, entry)
	if len(w.logs) > LogLimit {
		w.logs = w.logs[len(w.logs)-LogLimit:]
	}
	w.notifyLocked(Event{Type: EventLog, Data: entry})
}

// Start begins the refresh loop.
func (w *Watcher) Start(ctx context.Context) {
	go w.pollingLoop(ctx)
}

// Stop stops the refresh loop. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) pollingLoop(ctx context.Context) {
	defer logging.Recover(w.logger(), "refresh loop")

	w.refreshAll(ctx)

	interval := w.cfg.RefreshInterval()
	if interval <= 0 {
		interval = config.DefaultRefreshInterval * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.refreshAll(ctx)
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) refreshAll(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.RefreshStats(ctx)
	}()
	go func() {
		defer wg.Done()
		w.RefreshPersonal(ctx)
	}()
	wg.Wait()
}

// RefreshStats recomputes the global stats. A failure keeps the previous
// snapshot.
func (w *Watcher) RefreshStats(ctx context.Context) {
	if w.stats == nil {
		return
	}
	snap, err := w.stats.Compute(ctx)
	if err != nil {
		msg := models.Message(err)
		w.logger().Warn("Stats error: "+msg, zap.Error(err))
		w.Publish(Event{Type: EventStatsFailed, Data: msg})
		return
	}

	w.mu.Lock()
	w.snapshot = &snap
	raised, _ := snap.Raised.Float64()
	w.history = append(w.history, models.StatsPoint{Timestamp: snap.UpdatedAt, Raised: raised})
	if len(w.history) > HistoryLimit {
		w.history = w.history[len(w.history)-HistoryLimit:]
	}
	w.notifyLocked(Event{Type: EventStatsUpdated, Data: snap})
	w.mu.Unlock()
}

// RefreshPersonal reloads the connected account's position. Without a
// connected account the position is cleared.
func (w *Watcher) RefreshPersonal(ctx context.Context) {
	w.mu.RLock()
	accounts := w.accounts
	w.mu.RUnlock()

	var account common.Address
	connected := false
	if accounts != nil {
		account, connected = accounts.Account()
	}
	if !connected || w.positions == nil {
		w.mu.Lock()
		w.position = nil
		w.mu.Unlock()
		return
	}

	pos, err := w.positions.Fetch(ctx, account)
	if err != nil {
		w.logger().Warn("Position error: "+models.Message(err), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.position = &pos
	w.notifyLocked(Event{Type: EventPositionUpdated, Data: pos})
	w.mu.Unlock()
}

// Stats returns the latest snapshot.
func (w *Watcher) Stats() (models.StatsSnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.snapshot == nil {
		return models.StatsSnapshot{}, false
	}
	return *w.snapshot, true
}

// Position returns the latest position of the connected account.
func (w *Watcher) Position() (models.Position, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.position == nil {
		return models.Position{}, false
	}
	return *w.position, true
}

// History returns a copy of the raised history.
func (w *Watcher) History() []models.StatsPoint {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]models.StatsPoint(nil), w.history...)
}

// Logs returns a copy of the activity log.
func (w *Watcher) Logs() []models.LogEntry {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]models.LogEntry(nil), w.logs...)
}
