// internal/engine/registry.go
package engine

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pokerhall/tableserv/internal/bus"
	"github.com/pokerhall/tableserv/internal/models"
)

// Registry owns the set of live table sessions in this process. It is the
// single authority for which process-local worker owns which table;
// commands for tables it doesn't own are dropped (another process instance
// owns them, or the table raced with shutdown).
type Registry struct {
	store    Store
	listener bus.Subscriber
	log      *logrus.Logger

	// newSession is the factory; tests swap it out.
	newSession func(profile *models.TableProfile) Session

	mu        sync.Mutex
	sessions  map[int64]Session
	accepting bool
}

// NewRegistry wires the registry to storage and the bus listener.
func NewRegistry(store Store, listener bus.Subscriber, history HandHistory, log *logrus.Logger) *Registry {
	r := &Registry{
		store:     store,
		listener:  listener,
		log:       log,
		sessions:  make(map[int64]Session),
		accepting: true,
	}
	r.newSession = func(profile *models.TableProfile) Session {
		return NewSession(profile, store, history, log)
	}
	return r
}

// Start recovers all currently-open tables and their command backlog, then
// begins consuming live notifications. The recovery closure doubles as the
// listener's catch-up phase, so reconnects self-heal the same way.
func (r *Registry) Start(ctx context.Context) error {
	r.listener.Subscribe(bus.ChanTableCreated, func(ctx context.Context, n bus.Notification) {
		r.OnTableCreated(ctx, n.TableID)
	})
	r.listener.Subscribe(bus.ChanTableClosed, func(ctx context.Context, n bus.Notification) {
		r.OnTableClosed(ctx, n.TableID)
	})
	r.listener.Subscribe(bus.ChanTableCmd, func(ctx context.Context, n bus.Notification) {
		r.OnCommand(ctx, n.RowID, n.TableID)
	})
	r.listener.SetCatchup(r.catchUp)
	return r.listener.Start(ctx)
}

// catchUp replays the open-table set and each table's unprocessed command
// backlog. Safe to run repeatedly: owned tables aren't double-started and
// processed commands are no-ops.
func (r *Registry) catchUp(ctx context.Context) error {
	tables, err := r.store.GetOpenTables(ctx)
	if err != nil {
		return err
	}
	for _, t := range tables {
		r.OnTableCreated(ctx, t.ID)
		cmds, err := r.store.GetUnprocessedCmds(ctx, t.ID)
		if err != nil {
			return err
		}
		for _, cmd := range cmds {
			r.OnCommand(ctx, cmd.ID, cmd.TableID)
		}
	}
	return nil
}

// OnTableCreated starts a session for the table unless one is already
// owned or the registry has stopped accepting.
func (r *Registry) OnTableCreated(ctx context.Context, tableID int64) {
	r.mu.Lock()
	if !r.accepting {
		r.mu.Unlock()
		return
	}
	if _, owned := r.sessions[tableID]; owned {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	profile, err := r.store.GetTable(ctx, tableID)
	if err != nil {
		r.log.WithError(err).WithField("table_id", tableID).Warn("cannot load created table")
		return
	}
	if profile.Status != models.TableStatusOpen {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.accepting {
		return
	}
	if _, owned := r.sessions[tableID]; owned {
		return
	}
	sess := r.newSession(profile)
	r.sessions[tableID] = sess
	sess.Start(ctx)
	r.log.WithField("table_id", tableID).Info("table session started")
}

// OnTableClosed drains and releases the session if this process owns it.
func (r *Registry) OnTableClosed(ctx context.Context, tableID int64) {
	r.mu.Lock()
	sess, owned := r.sessions[tableID]
	r.mu.Unlock()
	if !owned {
		return
	}
	sess.Shutdown()
	sess.Wait()
	r.mu.Lock()
	delete(r.sessions, tableID)
	r.mu.Unlock()
	r.log.WithField("table_id", tableID).Info("table session released")
}

// OnCommand routes a command to its owning session. The command is marked
// processed afterward even when the handler fails, so it is never retried;
// commands already processed (duplicate notifications) are dropped.
func (r *Registry) OnCommand(ctx context.Context, cmdID, tableID int64) {
	r.mu.Lock()
	sess, owned := r.sessions[tableID]
	r.mu.Unlock()
	if !owned {
		return
	}

	cmd, err := r.store.GetTableCmd(ctx, cmdID)
	if err != nil {
		r.log.WithError(err).WithField("cmd_id", cmdID).Warn("cannot load command")
		return
	}
	if cmd.Processed {
		return
	}
	if err := sess.HandleCommand(ctx, cmd); err != nil {
		r.log.WithError(err).WithFields(logrus.Fields{
			"cmd_id":   cmdID,
			"table_id": tableID,
		}).Warn("command handling failed")
	}
	if err := r.store.SetTableCmdProcessed(ctx, cmdID); err != nil {
		r.log.WithError(err).WithField("cmd_id", cmdID).Warn("cannot mark command processed")
	}
}

// Owned reports whether this registry currently owns the table.
func (r *Registry) Owned(tableID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[tableID]
	return ok
}

// Len returns the number of owned sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops accepting new tables, signals every owned session, blocks
// until all of them have exited, then stops the listener.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.accepting = false
	sessions := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Shutdown()
	}
	for _, s := range sessions {
		s.Wait()
		r.mu.Lock()
		delete(r.sessions, s.TableID())
		r.mu.Unlock()
	}
	r.listener.Stop()
	r.log.Info("registry shut down")
}
