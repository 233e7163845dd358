package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type stubSignal struct {
	connected atomic.Bool
}

func (s *stubSignal) Connected() bool { return s.connected.Load() }

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func newTestMonitor(t *testing.T, probeURL string, passive PassiveSignal) *Monitor {
	t.Helper()
	m := NewMonitor(Options{
		ProbeURL:        probeURL,
		ProbeTimeout:    time.Second,
		ProbeInterval:   20 * time.Millisecond,
		RevalidateDelay: time.Millisecond,
		ReconcileDelay:  time.Millisecond,
		Passive:         passive,
	})
	t.Cleanup(m.Stop)
	return m
}

func TestInitialStateIsChecking(t *testing.T) {
	m := NewMonitor(Options{ProbeURL: "http://127.0.0.1:0/"})
	if m.State() != StateChecking {
		t.Errorf("initial state = %s, want checking", m.State())
	}
}

func TestCheckingToOnline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := newTestMonitor(t, server.URL, nil)
	m.Start(context.Background())

	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOnline })

	if m.LastChecked().IsZero() {
		t.Error("LastChecked should be set after a check")
	}
}

func TestProbeFailureMeansOfflineDespitePassiveSignal(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
	}))
	defer server.Close()

	passive := &stubSignal{}
	passive.connected.Store(true)

	m := newTestMonitor(t, server.URL, passive)
	m.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOnline })

	// Passive still says connected, but the probe starts failing
	status.Store(http.StatusInternalServerError)
	m.CheckNow()
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOffline })
}

func TestPassiveDisconnectedSkipsProbe(t *testing.T) {
	var probeCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probeCalls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	passive := &stubSignal{} // disconnected

	m := newTestMonitor(t, server.URL, passive)
	m.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOffline })

	if probeCalls.Load() != 0 {
		t.Errorf("probe calls = %d, want 0 when passive signal is disconnected", probeCalls.Load())
	}
}

func TestTransitionNotifications(t *testing.T) {
	passive := &stubSignal{}
	passive.connected.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := newTestMonitor(t, server.URL, passive)

	var mu sync.Mutex
	var transitions []Transition
	unsubscribe := m.Subscribe(func(tr Transition) {
		mu.Lock()
		transitions = append(transitions, tr)
		mu.Unlock()
	})

	m.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOnline })

	mu.Lock()
	if len(transitions) == 0 {
		mu.Unlock()
		t.Fatal("expected a checking->online transition")
	}
	first := transitions[0]
	mu.Unlock()

	if first.From != StateChecking || first.To != StateOnline {
		t.Errorf("transition = %s->%s, want checking->online", first.From, first.To)
	}

	// No notification when the state does not change
	mu.Lock()
	seen := len(transitions)
	mu.Unlock()
	m.CheckNow()
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(transitions) != seen {
		t.Errorf("got %d transitions after steady-state check, want %d", len(transitions), seen)
	}
	mu.Unlock()

	unsubscribe()
	passive.connected.Store(false)
	m.CheckNow()
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOffline })
	mu.Lock()
	if len(transitions) != seen {
		t.Error("unsubscribed listener should not be notified")
	}
	mu.Unlock()
}

func TestReconnectHooksRunInOrder(t *testing.T) {
	passive := &stubSignal{}
	passive.connected.Store(true)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	m := newTestMonitor(t, server.URL, passive)

	var mu sync.Mutex
	var order []string
	m.OnReconnect(
		func(ctx context.Context) {
			mu.Lock()
			order = append(order, "revalidate")
			mu.Unlock()
		},
		func(ctx context.Context) {
			mu.Lock()
			order = append(order, "reconcile")
			mu.Unlock()
		},
	)

	m.Start(context.Background())
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOnline })

	// checking->online must not run the reconnect hooks
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(order) != 0 {
		mu.Unlock()
		t.Fatal("reconnect hooks must only run on offline->online")
	}
	mu.Unlock()

	passive.connected.Store(false)
	m.CheckNow()
	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOffline })

	passive.connected.Store(true)
	m.CheckNow()
	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "revalidate" || order[1] != "reconcile" {
		t.Errorf("hook order = %v, want [revalidate reconcile]", order)
	}
}

func TestCaptivePortalSuccessPageIsOffline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A portal intercepts the probe and serves its login page with 200
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html>sign in to the network</html>"))
	}))
	defer server.Close()

	passive := &stubSignal{}
	passive.connected.Store(true)

	m := newTestMonitor(t, server.URL, passive)
	m.Start(context.Background())
	defer m.Stop()

	waitFor(t, 2*time.Second, func() bool { return m.State() == StateOffline })

	if m.State() != StateOffline {
		t.Errorf("state = %s, want offline behind a captive portal", m.State())
	}
}
