package ws

import "github.com/braianpx/fieldtrack/internal/models"

// registry owns the set of live connections and their per-connection state.
// It is only ever touched from the hub's run goroutine, so it needs no lock.
// One registry is built per hub; there is no package-level instance.
type registry struct {
	conns map[*connection]struct{}
}

func newRegistry() *registry {
	return &registry{conns: make(map[*connection]struct{})}
}

func (r *registry) add(c *connection) {
	r.conns[c] = struct{}{}
}

// remove reports whether the connection was still registered. Callers use the
// result to guarantee close handling runs exactly once per connection.
func (r *registry) remove(c *connection) bool {
	if _, ok := r.conns[c]; !ok {
		return false
	}
	delete(r.conns, c)
	return true
}

func (r *registry) has(c *connection) bool {
	_, ok := r.conns[c]
	return ok
}

// setIdentity is a no-op on an unregistered connection.
func (r *registry) setIdentity(c *connection, userID int, role models.Role) {
	if !r.has(c) {
		return
	}
	c.identity = &identity{userID: userID, role: role}
}

// subscribe is a no-op on an unregistered connection.
func (r *registry) subscribe(c *connection, channel string) {
	if !r.has(c) {
		return
	}
	c.subs[channel] = struct{}{}
}

func (r *registry) forEach(fn func(*connection)) {
	for c := range r.conns {
		fn(c)
	}
}

func (r *registry) len() int {
	return len(r.conns)
}
