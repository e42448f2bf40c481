// Package feed maintains a live subscription to market events over a
// websocket, reconnecting with capped exponential backoff. Transport
// errors never reach the caller as errors; they drive the state
// machine, and the caller observes state transitions and delivered
// events.
package feed

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/gtmarket/polyscope/pkg/models"
)

const (
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 30 * time.Second

	handshakeTimeout = 10 * time.Second
	eventBuffer      = 256
)

// Conn is the slice of a websocket connection the feed needs. It
// keeps the state machine independent of the transport library.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteJSON(v interface{}) error
	Close() error
}

// Dialer opens one connection attempt.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := d.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// subscribeMessage names the asset ids of interest on the market
// channel. It is safe to resend in full after every reconnect.
type subscribeMessage struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids"`
}

type Feed struct {
	url    string
	dialer Dialer
	logger *logrus.Logger

	backoffBase time.Duration
	backoffCap  time.Duration

	events chan models.PriceUpdate

	mu       sync.Mutex
	state    State
	assets   map[string]struct{}
	conn     Conn
	attempts int
	closed   bool

	// writeMu serializes WriteJSON calls; the transport forbids
	// concurrent writers.
	writeMu sync.Mutex

	lastMsgNanos atomic.Int64

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Feed)

// WithDialer swaps the transport; tests use a scripted dialer.
func WithDialer(d Dialer) Option {
	return func(f *Feed) { f.dialer = d }
}

// WithBackoff overrides the reconnect backoff base and cap.
func WithBackoff(base, cap time.Duration) Option {
	return func(f *Feed) {
		f.backoffBase = base
		f.backoffCap = cap
	}
}

func New(url string, logger *logrus.Logger, opts ...Option) *Feed {
	f := &Feed{
		url:         url,
		dialer:      gorillaDialer{},
		logger:      logger,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		events:      make(chan models.PriceUpdate, eventBuffer),
		state:       StateDisconnected,
		assets:      make(map[string]struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Events is the stream of parsed updates. For a given asset id,
// events arrive in the order the socket delivered them.
func (f *Feed) Events() <-chan models.PriceUpdate {
	return f.events
}

func (f *Feed) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// LastMessageAt reports when the last message was received, zero if
// none yet. The feed does not self-heal on silence; callers use this
// to implement their own liveness policy.
func (f *Feed) LastMessageAt() time.Time {
	n := f.lastMsgNanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Subscribe adds asset ids to the subscription set. If currently
// connected, the full set is resent immediately.
func (f *Feed) Subscribe(assetIDs ...string) {
	f.mu.Lock()
	for _, id := range assetIDs {
		f.assets[id] = struct{}{}
	}
	conn := f.conn
	msg := f.subscriptionLocked()
	f.mu.Unlock()

	if conn != nil {
		if err := f.writeJSON(conn, msg); err != nil {
			f.logger.WithError(err).Warn("subscription update failed, will resend on reconnect")
		}
	}
}

func (f *Feed) writeJSON(conn Conn, v interface{}) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(v)
}

func (f *Feed) subscriptionLocked() subscribeMessage {
	ids := make([]string, 0, len(f.assets))
	for id := range f.assets {
		ids = append(ids, id)
	}
	return subscribeMessage{Type: "market", AssetsIDs: ids}
}

// Start launches the connection loop. It returns immediately; Close
// (or cancelling ctx) shuts the loop down.
func (f *Feed) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		cancel()
		return
	}
	f.cancel = cancel
	f.mu.Unlock()
	go f.run(runCtx)
}

// Close stops reconnection, tears down the transport and cuts any
// in-flight backoff wait short. The event channel is closed once the
// loop has fully exited, or immediately if the feed was never
// started, so consumers ranging Events never hang.
func (f *Feed) Close() {
	f.mu.Lock()
	cancel := f.cancel
	f.closed = true
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		<-f.done
		return
	}
	f.closeOnce.Do(func() {
		f.transition(TransitionShutdown)
		close(f.events)
		close(f.done)
	})
}

func (f *Feed) transition(t Transition) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = Next(f.state, t)
	return f.state
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	defer close(f.events)
	defer f.transition(TransitionShutdown)

	for {
		if ctx.Err() != nil {
			return
		}
		f.transition(TransitionDial)

		connID := uuid.NewString()[:8]
		log := f.logger.WithFields(logrus.Fields{"conn_id": connID, "url": f.url})

		conn, err := f.dialer.Dial(ctx, f.url)
		if err != nil {
			log.WithError(err).Warn("websocket dial failed")
			f.transition(TransitionError)
			if !f.waitBackoff(ctx) {
				return
			}
			continue
		}

		f.mu.Lock()
		f.conn = conn
		msg := f.subscriptionLocked()
		f.mu.Unlock()

		if err := f.writeJSON(conn, msg); err != nil {
			log.WithError(err).Warn("subscription send failed")
			conn.Close()
			f.clearConn()
			f.transition(TransitionError)
			if !f.waitBackoff(ctx) {
				return
			}
			continue
		}

		f.transition(TransitionConnectOK)
		log.WithField("assets", len(msg.AssetsIDs)).Info("websocket connected, subscription sent")

		f.readLoop(ctx, conn, log)
		conn.Close()
		f.clearConn()

		if ctx.Err() != nil {
			return
		}
		f.transition(TransitionError)
		if !f.waitBackoff(ctx) {
			return
		}
	}
}

func (f *Feed) clearConn() {
	f.mu.Lock()
	f.conn = nil
	f.mu.Unlock()
}

// readLoop pumps messages until the transport fails or ctx ends. A
// parse failure on one message is logged and skipped, never treated
// as a connection failure.
func (f *Feed) readLoop(ctx context.Context, conn Conn, log *logrus.Entry) {
	unblock := make(chan struct{})
	defer close(unblock)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-unblock:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Warn("websocket read failed")
			}
			return
		}

		now := time.Now()
		f.lastMsgNanos.Store(now.UnixNano())
		f.resetAttempts()

		updates := parseMessage(data, now)
		if updates == nil {
			log.WithField("bytes", len(data)).Debug("skipping undecodable or unknown message")
			continue
		}
		for _, update := range updates {
			select {
			case f.events <- update:
			case <-ctx.Done():
				return
			}
		}
	}
}

// resetAttempts zeroes the reconnect counter: any successful receipt
// proves the connection was good, so transient blips don't compound.
func (f *Feed) resetAttempts() {
	f.mu.Lock()
	f.attempts = 0
	f.mu.Unlock()
}

// waitBackoff sleeps min(cap, base*2^(attempts-1)) plus jitter and
// reports whether the loop should keep going.
func (f *Feed) waitBackoff(ctx context.Context) bool {
	f.mu.Lock()
	f.attempts++
	attempts := f.attempts
	f.mu.Unlock()

	delay := f.backoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= f.backoffCap {
			break
		}
	}
	if delay > f.backoffCap {
		delay = f.backoffCap
	}
	delay += time.Duration(rand.Int63n(int64(100 * time.Millisecond)))

	f.logger.WithFields(logrus.Fields{
		"attempt": attempts,
		"delay":   delay.String(),
	}).Info("websocket backing off before reconnect")

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		f.transition(TransitionBackoffDone)
		return true
	}
}
