// internal/bus/listener.go
package bus

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const (
	reconnectBaseDelay = 500 * time.Millisecond
	reconnectMaxDelay  = 15 * time.Second
)

// Subscriber is the registration surface consumers see. The engine's
// registry and the gateway's fan-out both depend on this interface so tests
// can inject a fake bus.
type Subscriber interface {
	Subscribe(channel string, h Handler)
	SetCatchup(fn func(ctx context.Context) error)
	Start(ctx context.Context) error
	Stop()
}

// Listener holds a dedicated connection in LISTEN mode and dispatches
// notifications to registered handlers. On every (re)connect it runs the
// injected catch-up function before consuming live notifications, so a
// missed notify can never lose a command or event permanently.
type Listener struct {
	pool *pgxpool.Pool
	log  *logrus.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	catchup  func(ctx context.Context) error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a listener over the shared pool. A connection is only
// held while the listener runs.
func NewListener(pool *pgxpool.Pool, log *logrus.Logger) *Listener {
	return &Listener{
		pool:     pool,
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for a channel. Must be called before Start.
func (l *Listener) Subscribe(channel string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[channel] = append(l.handlers[channel], h)
}

// SetCatchup installs the backlog replay run after every (re)connect, before
// live notifications are consumed.
func (l *Listener) SetCatchup(fn func(ctx context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.catchup = fn
}

// Start launches the listen loop. It returns immediately; the loop keeps
// reconnecting with backoff until Stop or context cancellation.
func (l *Listener) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(ctx)
	return nil
}

// Stop cancels the listen loop and waits for it to exit.
func (l *Listener) Stop() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
}

func (l *Listener) run(ctx context.Context) {
	defer close(l.done)
	delay := reconnectBaseDelay
	for {
		err := l.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		l.log.WithError(err).Warnf("bus listener disconnected, reconnecting in %s", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// listenOnce acquires a connection, LISTENs every subscribed channel, runs
// catch-up, then blocks on notifications until the connection breaks.
func (l *Listener) listenOnce(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	l.mu.Lock()
	channels := make([]string, 0, len(l.handlers))
	for ch := range l.handlers {
		channels = append(channels, ch)
	}
	catchup := l.catchup
	l.mu.Unlock()

	for _, ch := range channels {
		if _, err := conn.Exec(ctx, "LISTEN "+quoteIdent(ch)); err != nil {
			return err
		}
	}

	if catchup != nil {
		if err := catchup(ctx); err != nil {
			return err
		}
	}
	l.log.WithField("channels", channels).Info("bus listener online")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		note, err := ParsePayload(n.Channel, n.Payload)
		if err != nil {
			l.log.WithError(err).Warn("dropping malformed bus notification")
			continue
		}
		l.dispatch(ctx, note)
	}
}

// dispatch fans a notification out to its channel's handlers. A handler
// panic is contained to that one notification.
func (l *Listener) dispatch(ctx context.Context, n Notification) {
	l.mu.Lock()
	handlers := l.handlers[n.Channel]
	l.mu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					l.log.WithFields(logrus.Fields{
						"channel":  n.Channel,
						"table_id": n.TableID,
						"row_id":   n.RowID,
					}).Errorf("bus handler panic: %v", r)
				}
			}()
			h(ctx, n)
		}()
	}
}

// quoteIdent guards channel names used in LISTEN statements, which cannot
// take bind parameters.
func quoteIdent(s string) string {
	out := make([]rune, 0, len(s)+2)
	out = append(out, '"')
	for _, r := range s {
		if r == '"' {
			out = append(out, '"')
		}
		out = append(out, r)
	}
	out = append(out, '"')
	return string(out)
}
