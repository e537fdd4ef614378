package bsclient

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/sealed-battleship/pkg/battledto"
)

type WatchState string

const (
	WatchDisconnected WatchState = "disconnected"
	WatchConnecting   WatchState = "connecting"
	WatchConnected    WatchState = "connected"
	WatchReconnecting WatchState = "reconnecting"
	WatchFailed       WatchState = "failed"
)

type EventCallback func(ev *battledto.Event)

type StateCallback func(state WatchState)

type eventEntry struct {
	id       int
	callback EventCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

// EventWatcher follows a node's event feed and reconnects when it drops.
// Events published while disconnected are not replayed; reload the game
// snapshot after a reconnect.
type EventWatcher struct {
	wsURL  string
	player string

	conn   *websocket.Conn
	connM  sync.Mutex
	state  WatchState
	stateM sync.RWMutex

	eventCbs []eventEntry
	stateCbs []stateEntry
	nextID   int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewEventWatcher prepares a watcher for wsURL, e.g. ws://host:8081/events?game=g1.
func NewEventWatcher(wsURL string, maxReconnectAttempts int) *EventWatcher {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventWatcher{
		wsURL:                wsURL,
		state:                WatchDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

// SetPlayer sends the identity header in the handshake.
func (w *EventWatcher) SetPlayer(id string) { w.player = id }

func (w *EventWatcher) State() WatchState {
	w.stateM.RLock()
	defer w.stateM.RUnlock()
	return w.state
}

func (w *EventWatcher) Connect(ctx context.Context) error {
	if s := w.State(); s == WatchConnected || s == WatchConnecting {
		return nil
	}
	w.setState(WatchConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := w.dial(dialCtx)
	if err != nil {
		w.setState(WatchFailed)
		w.scheduleReconnect()
		return err
	}
	w.attach(conn)
	return nil
}

func (w *EventWatcher) dial(ctx context.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	if w.player != "" {
		hdr.Set(battledto.PlayerHeader, w.player)
	}
	conn, _, err := websocket.Dial(ctx, w.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      hdr,
	})
	return conn, err
}

func (w *EventWatcher) attach(conn *websocket.Conn) {
	w.connM.Lock()
	w.conn = conn
	w.connM.Unlock()
	w.setState(WatchConnected)

	w.wg.Add(2)
	go w.listen(conn)
	go w.pingLoop(conn)
}

func (w *EventWatcher) listen(conn *websocket.Conn) {
	defer w.wg.Done()
	for {
		var ev battledto.Event
		if err := wsjson.Read(w.rootCtx, conn, &ev); err != nil {
			if w.isStopping() {
				return
			}
			w.setState(WatchDisconnected)
			w.closeConn(conn, websocket.StatusGoingAway, "reconnect")
			w.scheduleReconnect()
			return
		}

		w.cbM.RLock()
		callbacks := make([]eventEntry, len(w.eventCbs))
		copy(callbacks, w.eventCbs)
		w.cbM.RUnlock()
		for _, entry := range callbacks {
			entry.callback(&ev)
		}
	}
}

func (w *EventWatcher) pingLoop(conn *websocket.Conn) {
	defer w.wg.Done()
	t := time.NewTicker(w.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.rootCtx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(w.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// listen notices the closed conn and schedules the reconnect
				w.closeConn(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (w *EventWatcher) scheduleReconnect() {
	if w.maxReconnectAttempts <= 0 || w.isStopping() {
		return
	}
	w.setState(WatchReconnecting)

	go func() {
		for attempt := 1; attempt <= w.maxReconnectAttempts; attempt++ {
			select {
			case <-w.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}
			dialCtx, cancel := context.WithTimeout(w.rootCtx, 10*time.Second)
			conn, err := w.dial(dialCtx)
			cancel()
			if err != nil {
				continue
			}
			if w.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			w.attach(conn)
			return
		}
		w.setState(WatchFailed)
	}()
}

// OnEvent registers cb and returns an id for RemoveEventCallback.
func (w *EventWatcher) OnEvent(cb EventCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextID++
	w.eventCbs = append(w.eventCbs, eventEntry{id: w.nextID, callback: cb})
	return w.nextID
}

func (w *EventWatcher) RemoveEventCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.eventCbs {
		if cb.id == id {
			w.eventCbs = append(w.eventCbs[:i], w.eventCbs[i+1:]...)
			break
		}
	}
}

func (w *EventWatcher) OnStateChange(cb StateCallback) int {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	w.nextID++
	w.stateCbs = append(w.stateCbs, stateEntry{id: w.nextID, callback: cb})
	return w.nextID
}

func (w *EventWatcher) RemoveStateCallback(id int) {
	w.cbM.Lock()
	defer w.cbM.Unlock()
	for i, cb := range w.stateCbs {
		if cb.id == id {
			w.stateCbs = append(w.stateCbs[:i], w.stateCbs[i+1:]...)
			break
		}
	}
}

func (w *EventWatcher) setState(state WatchState) {
	w.stateM.Lock()
	w.state = state
	w.stateM.Unlock()

	w.cbM.RLock()
	callbacks := make([]stateEntry, len(w.stateCbs))
	copy(callbacks, w.stateCbs)
	w.cbM.RUnlock()
	for _, entry := range callbacks {
		entry.callback(state)
	}
}

func (w *EventWatcher) Close(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.connM.Lock()
	conn := w.conn
	w.connM.Unlock()
	if conn != nil {
		w.closeConn(conn, websocket.StatusNormalClosure, "close")
	}
	w.rootCancel()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		w.setState(WatchDisconnected)
		return nil
	}
}

func (w *EventWatcher) closeConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	w.connM.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.connM.Unlock()
	_ = conn.Close(code, reason)
}

func (w *EventWatcher) isStopping() bool {
	select {
	case <-w.stopCh:
		return true
	default:
		return false
	}
}
