// ABOUTME: In-memory registry of open live-push connections keyed by connection id
// ABOUTME: Safe for concurrent registration, iteration, and removal; spawns heartbeats

package stream

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultHeartbeatInterval is the keep-alive push period.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultMaxConnectionAge is the hard ceiling after which a connection
	// is force-closed regardless of activity.
	DefaultMaxConnectionAge = time.Hour
)

// Registry tracks currently open connections. It is process-local state: a
// broadcast only reaches connections held by this instance. All mutation
// goes through Register/Unregister; the underlying maps are never exposed.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*Connection
	byOwner map[string]map[string]*Connection

	heartbeatInterval time.Duration
	maxAge            time.Duration

	// onFirst fires when an owner's first connection registers, onLast when
	// the owner's last connection unregisters. Used to start and stop the
	// per-user change poller. Both may be nil. hookMu orders the membership
	// change and its hook as one step, so a last-unregister racing a
	// re-register cannot fire onLast after onFirst.
	hookMu  sync.Mutex
	onFirst func(owner string)
	onLast  func(owner string)

	logger *slog.Logger
}

// NewRegistry creates a registry. Pass nil logger for default.
func NewRegistry(heartbeatInterval, maxAge time.Duration, logger *slog.Logger) *Registry {
	if heartbeatInterval <= 0 {
		heartbeatInterval = DefaultHeartbeatInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxConnectionAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:             make(map[string]*Connection),
		byOwner:           make(map[string]map[string]*Connection),
		heartbeatInterval: heartbeatInterval,
		maxAge:            maxAge,
		logger:            logger.With("component", "registry"),
	}
}

// SetOwnerHooks installs the first-connection/last-connection callbacks.
// Must be called before any Register.
func (r *Registry) SetOwnerHooks(onFirst, onLast func(owner string)) {
	r.onFirst = onFirst
	r.onLast = onLast
}

// Register adds the connection and starts its heartbeat emitter.
// Returns the connection id.
func (r *Registry) Register(conn *Connection) string {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.mu.Lock()
	if _, ok := r.byOwner[conn.Owner]; !ok {
		r.byOwner[conn.Owner] = make(map[string]*Connection)
	}
	first := len(r.byOwner[conn.Owner]) == 0
	r.conns[conn.ID] = conn
	r.byOwner[conn.Owner][conn.ID] = conn
	r.mu.Unlock()

	r.logger.Debug("connection registered", "connection_id", conn.ID, "owner", conn.Owner)

	if first && r.onFirst != nil {
		r.onFirst(conn.Owner)
	}

	go r.runHeartbeat(conn)
	return conn.ID
}

// Unregister removes the connection, cancels it, and stops its heartbeat.
// The writer handle is never used again afterwards. Double-unregister is a
// no-op, not an error.
func (r *Registry) Unregister(id string) {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.mu.Lock()
	conn, ok := r.conns[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, id)
	owned := r.byOwner[conn.Owner]
	delete(owned, id)
	last := len(owned) == 0
	if last {
		delete(r.byOwner, conn.Owner)
	}
	r.mu.Unlock()

	conn.Close()
	r.logger.Debug("connection unregistered", "connection_id", id, "owner", conn.Owner)

	if last && r.onLast != nil {
		r.onLast(conn.Owner)
	}
}

// ForEachOwnedBy calls fn for every connection owned by the given user.
// Connections are copied out under the lock, so fn may unregister safely.
// No ordering guarantee between connections of the same user.
func (r *Registry) ForEachOwnedBy(owner string, fn func(*Connection)) {
	r.mu.Lock()
	targets := make([]*Connection, 0, len(r.byOwner[owner]))
	for _, conn := range r.byOwner[owner] {
		targets = append(targets, conn)
	}
	r.mu.Unlock()

	for _, conn := range targets {
		fn(conn)
	}
}

// ForEachAll calls fn for every open connection.
func (r *Registry) ForEachAll(fn func(*Connection)) {
	r.mu.Lock()
	targets := make([]*Connection, 0, len(r.conns))
	for _, conn := range r.conns {
		targets = append(targets, conn)
	}
	r.mu.Unlock()

	for _, conn := range targets {
		fn(conn)
	}
}

// Count returns the number of open connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// CountOwnedBy returns the number of open connections for one owner.
func (r *Registry) CountOwnedBy(owner string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byOwner[owner])
}

// Close unregisters every connection. Used at shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Unregister(id)
	}
}
