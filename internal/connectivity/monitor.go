// Package connectivity tracks whether the remote catalog is reachable.
//
// The state machine has three states: checking (process start), online and
// offline. A passive signal is consulted first; when it reports connected, a
// single bounded reachability probe confirms real connectivity, which guards
// against captive portals and half-dead links. The monitor owns the state;
// consumers read it through State or Subscribe, never through a shared
// variable.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tunecache/tunecache-go/internal/monitoring"
	"github.com/tunecache/tunecache-go/internal/network"
)

// State is the connectivity state
type State string

const (
	StateChecking State = "checking"
	StateOnline   State = "online"
	StateOffline  State = "offline"
)

// Transition describes one observed state change
type Transition struct {
	From State
	To   State
	At   time.Time
}

// PassiveSignal reports OS- or runtime-level network presence without I/O.
// It is advisory: a connected signal is always confirmed by an active probe.
type PassiveSignal interface {
	Connected() bool
}

// alwaysConnected is the default passive signal on platforms without one
type alwaysConnected struct{}

func (alwaysConnected) Connected() bool { return true }

// Options configures a Monitor
type Options struct {
	ProbeURL string
	// ProbeExpectStatus is the exact status the probe endpoint answers with
	// when the network is genuinely reachable. Captive portals intercept the
	// request and answer with their own page, so any other status, success
	// included, counts as offline.
	ProbeExpectStatus int
	ProbeTimeout      time.Duration
	ProbeInterval     time.Duration
	RevalidateDelay   time.Duration
	ReconcileDelay    time.Duration
	Passive           PassiveSignal
	Logger            *zap.Logger
}

// Monitor owns the process-wide connectivity state
type Monitor struct {
	opts   Options
	client *http.Client
	logger *zap.Logger

	mu          sync.RWMutex
	state       State
	lastChecked time.Time
	subs        map[int]func(Transition)
	nextSubID   int

	revalidate []func(context.Context)
	reconcile  []func(context.Context)

	checkCh chan struct{}
	stopped chan struct{}
	cancel  context.CancelFunc
	started bool
}

// NewMonitor creates a monitor in the checking state
func NewMonitor(opts Options) *Monitor {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = 30 * time.Second
	}
	if opts.ProbeExpectStatus == 0 {
		opts.ProbeExpectStatus = http.StatusNoContent
	}
	if opts.Passive == nil {
		opts.Passive = alwaysConnected{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Monitor{
		opts:    opts,
		client:  network.GetProbeClient(opts.ProbeTimeout),
		logger:  opts.Logger,
		state:   StateChecking,
		subs:    make(map[int]func(Transition)),
		checkCh: make(chan struct{}, 1),
	}
}

// State returns the current connectivity state
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOnline reports whether the last resolved state was online
func (m *Monitor) IsOnline() bool {
	return m.State() == StateOnline
}

// LastChecked returns the time of the last completed check
func (m *Monitor) LastChecked() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastChecked
}

// Subscribe registers a transition listener and returns an unsubscribe
// function. Listeners are invoked on the monitor's goroutine and must not
// block.
func (m *Monitor) Subscribe(fn func(Transition)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

// OnReconnect registers hooks run after a confirmed offline-to-online
// transition. The revalidate hook (identity) runs first, then the reconcile
// hook (stats), each after its configured stabilization delay.
func (m *Monitor) OnReconnect(revalidate, reconcile func(context.Context)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revalidate != nil {
		m.revalidate = append(m.revalidate, revalidate)
	}
	if reconcile != nil {
		m.reconcile = append(m.reconcile, reconcile)
	}
}

// Start begins periodic checking. The first check runs immediately.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	ctx, m.cancel = context.WithCancel(ctx)
	m.stopped = make(chan struct{})
	m.mu.Unlock()

	go m.run(ctx)
}

// Stop halts periodic checking
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stopped := m.stopped
	m.started = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stopped != nil {
		<-stopped
	}
}

// CheckNow schedules an immediate re-check, the window-focus-regained path.
// It never blocks; a check already pending absorbs the request.
func (m *Monitor) CheckNow() {
	select {
	case m.checkCh <- struct{}{}:
	default:
	}
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.stopped)

	ticker := time.NewTicker(m.opts.ProbeInterval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		case <-m.checkCh:
			m.check(ctx)
		}
	}
}

// check resolves the current state and emits a transition on change
func (m *Monitor) check(ctx context.Context) {
	resolved := StateOffline
	if m.opts.Passive.Connected() {
		if m.probe(ctx) {
			resolved = StateOnline
		}
	}

	m.mu.Lock()
	previous := m.state
	m.state = resolved
	m.lastChecked = time.Now()
	var subs []func(Transition)
	if resolved != previous {
		for _, fn := range m.subs {
			subs = append(subs, fn)
		}
	}
	m.mu.Unlock()

	monitoring.SetConnectivityState(string(resolved))

	if resolved == previous {
		return
	}

	transition := Transition{From: previous, To: resolved, At: time.Now()}
	m.logger.Info("connectivity changed",
		zap.String("from", string(previous)),
		zap.String("to", string(resolved)),
	)

	for _, fn := range subs {
		fn(transition)
	}

	if previous == StateOffline && resolved == StateOnline {
		m.runReconnectHooks(ctx)
	}
}

// probe performs one bounded reachability request against an endpoint with
// a known response status. A portal login page served in its place fails
// the status check even though the HTTP exchange succeeded.
func (m *Monitor) probe(ctx context.Context) bool {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.opts.ProbeURL, nil)
	if err != nil {
		m.logger.Warn("invalid probe URL", zap.Error(err))
		return false
	}

	resp, err := m.client.Do(req)
	if err != nil {
		monitoring.RecordProbe(time.Since(start), false)
		m.logger.Debug("reachability probe failed", zap.Error(err))
		return false
	}
	resp.Body.Close()

	ok := resp.StatusCode == m.opts.ProbeExpectStatus
	monitoring.RecordProbe(time.Since(start), ok)
	return ok
}

// runReconnectHooks runs identity revalidation and reconciliation after their
// stabilization delays. Timers are cut short if the monitor stops.
func (m *Monitor) runReconnectHooks(ctx context.Context) {
	m.mu.RLock()
	revalidate := append([]func(context.Context){}, m.revalidate...)
	reconcile := append([]func(context.Context){}, m.reconcile...)
	m.mu.RUnlock()

	go func() {
		if !sleepCtx(ctx, m.opts.RevalidateDelay) {
			return
		}
		for _, fn := range revalidate {
			fn(ctx)
		}
		if !sleepCtx(ctx, m.opts.ReconcileDelay) {
			return
		}
		for _, fn := range reconcile {
			fn(ctx)
		}
	}()
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
