package services

import "sync/atomic"

// ConnectionRegistry is the single source of truth for which users are
// reachable and on which connections. State is in-memory only; clients
// re-register after a restart.
type ConnectionRegistry struct {
	users *setIndex
	conns atomic.Int64
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{users: newSetIndex()}
}

// Register adds connectionID for userID and reports whether it is the
// user's first live connection.
func (r *ConnectionRegistry) Register(userID, connectionID string) bool {
	added, size := r.users.add(userID, connectionID)
	if added {
		r.conns.Add(1)
	}
	return added && size == 1
}

// Deregister removes connectionID and reports whether it was the user's last
// live connection. Removing an unknown connection reports false.
func (r *ConnectionRegistry) Deregister(userID, connectionID string) bool {
	removed, size := r.users.remove(userID, connectionID)
	if removed {
		r.conns.Add(-1)
	}
	return removed && size == 0
}

// ConnectionsFor returns a copy of the user's live connections, empty when offline.
func (r *ConnectionRegistry) ConnectionsFor(userID string) []string {
	return r.users.members(userID)
}

func (r *ConnectionRegistry) IsOnline(userID string) bool {
	return r.users.size(userID) > 0
}

func (r *ConnectionRegistry) onlineUsers() []string {
	return r.users.keys()
}

// ConnectionsExcept returns every live connection not owned by userID.
func (r *ConnectionRegistry) ConnectionsExcept(userID string) []string {
	var out []string
	for _, u := range r.onlineUsers() {
		if u == userID {
			continue
		}
		out = append(out, r.users.members(u)...)
	}
	return out
}

// Counts returns the number of online users and live connections.
func (r *ConnectionRegistry) Counts() (users, connections int) {
	users, _ = r.users.count()
	return users, int(r.conns.Load())
}
