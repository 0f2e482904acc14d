package websocket

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
)

const (
	DefaultSendBuffer   = 64
	DefaultPingInterval = 25 * time.Second
)

// Registry binds live connections to user identities and named groups.
// One user may own any number of connections.
type Registry struct {
	name         string
	bufferSize   int
	pingInterval time.Duration

	mu      sync.RWMutex
	clients map[uuid.UUID]*Client
	users   map[uint]map[uuid.UUID]*Client
	groups  map[string]map[uuid.UUID]*Client
}

type Option func(*Registry)

func WithSendBuffer(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.bufferSize = n
		}
	}
}

// WithPingInterval sets the keep-alive period. Zero disables pings.
func WithPingInterval(d time.Duration) Option {
	return func(r *Registry) { r.pingInterval = d }
}

func NewRegistry(name string, opts ...Option) *Registry {
	r := &Registry{
		name:         name,
		bufferSize:   DefaultSendBuffer,
		pingInterval: DefaultPingInterval,
		clients:      make(map[uuid.UUID]*Client),
		users:        make(map[uint]map[uuid.UUID]*Client),
		groups:       make(map[string]map[uuid.UUID]*Client),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Register(userID uint, conn Conn) *Client {
	c := &Client{
		ID:     uuid.New(),
		UserID: userID,
		conn:   conn,
		send:   make(chan Event, r.bufferSize),
		done:   make(chan struct{}),
		groups: make(map[string]struct{}),
	}

	r.mu.Lock()
	r.clients[c.ID] = c
	if r.users[userID] == nil {
		r.users[userID] = make(map[uuid.UUID]*Client)
	}
	r.users[userID][c.ID] = c
	r.mu.Unlock()

	c.loops.Add(1)
	go c.writeLoop(r)
	if r.pingInterval > 0 {
		c.loops.Add(1)
		go c.keepAliveLoop(r, r.pingInterval)
	}

	log.Debugf("[%s] client %s registered for user %d", r.name, c.ID, userID)
	return c
}

// Unregister removes c from its user and every group it joined, closes the
// socket and waits for c's write and ping goroutines to exit. It returns how
// many connections the user still has open. Calling it twice is harmless.
//
// Once it returns the registry no longer uses the socket, so the owning
// handler may return and let the server recycle the connection.
func (r *Registry) Unregister(c *Client) int {
	remaining := r.remove(c)
	c.wait()
	return remaining
}

// remove is Unregister without the wait, for the client's own goroutines
// and for send paths that must not block on a stuck socket.
func (r *Registry) remove(c *Client) int {
	r.mu.Lock()
	if _, ok := r.clients[c.ID]; ok {
		delete(r.clients, c.ID)
		if set, ok := r.users[c.UserID]; ok {
			delete(set, c.ID)
			if len(set) == 0 {
				delete(r.users, c.UserID)
			}
		}
		for group := range c.groups {
			r.removeFromGroupLocked(c, group)
		}
		log.Debugf("[%s] client %s unregistered for user %d", r.name, c.ID, c.UserID)
	}
	remaining := len(r.users[c.UserID])
	r.mu.Unlock()

	c.stop()
	return remaining
}

// Join subscribes c to group. It reports false if c is no longer registered.
func (r *Registry) Join(c *Client, group string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.clients[c.ID]; !ok {
		return false
	}
	if r.groups[group] == nil {
		r.groups[group] = make(map[uuid.UUID]*Client)
	}
	r.groups[group][c.ID] = c
	c.groups[group] = struct{}{}
	return true
}

func (r *Registry) Leave(c *Client, group string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeFromGroupLocked(c, group)
}

// JoinUser subscribes every live connection of userID to group.
func (r *Registry) JoinUser(userID uint, group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.users[userID]
	if len(set) == 0 {
		return 0
	}
	if r.groups[group] == nil {
		r.groups[group] = make(map[uuid.UUID]*Client)
	}
	for id, c := range set {
		r.groups[group][id] = c
		c.groups[group] = struct{}{}
	}
	return len(set)
}

func (r *Registry) LeaveUser(userID uint, group string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.users[userID] {
		if _, ok := c.groups[group]; ok {
			r.removeFromGroupLocked(c, group)
			n++
		}
	}
	return n
}

func (r *Registry) removeFromGroupLocked(c *Client, group string) {
	delete(c.groups, group)
	if members, ok := r.groups[group]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(r.groups, group)
		}
	}
}

func (r *Registry) InGroup(c *Client, group string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[group][c.ID]
	return ok
}

func (r *Registry) GroupSize(group string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[group])
}

func (r *Registry) Online(userID uint) bool {
	return r.ConnectionCount(userID) > 0
}

func (r *Registry) ConnectionCount(userID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *Registry) SendToClient(c *Client, ev Event) Delivery {
	r.mu.RLock()
	_, ok := r.clients[c.ID]
	queued := ok && c.enqueue(ev)
	r.mu.RUnlock()

	if ok && !queued {
		r.dropSlow([]*Client{c})
	}
	if queued {
		return Delivered
	}
	return NoActiveConnection
}

func (r *Registry) SendToUser(userID uint, ev Event) Delivery {
	return r.SendToUserExcept(userID, uuid.Nil, ev)
}

// SendToUserExcept delivers ev to every connection of userID other than except.
func (r *Registry) SendToUserExcept(userID uint, except uuid.UUID, ev Event) Delivery {
	var slow []*Client
	delivered := 0

	r.mu.RLock()
	for id, c := range r.users[userID] {
		if id == except {
			continue
		}
		if c.enqueue(ev) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	r.mu.RUnlock()

	r.dropSlow(slow)
	if delivered > 0 {
		return Delivered
	}
	return NoActiveConnection
}

// SendToGroup delivers ev to every subscriber of group except the listed
// connections and returns how many connections it was queued on.
func (r *Registry) SendToGroup(group string, ev Event, except ...uuid.UUID) int {
	return r.SendToGroupFunc(group, func(c *Client) (Event, bool) {
		for _, id := range except {
			if c.ID == id {
				return Event{}, false
			}
		}
		return ev, true
	})
}

// SendToGroupFunc builds one event per subscriber; returning false skips it.
func (r *Registry) SendToGroupFunc(group string, build func(c *Client) (Event, bool)) int {
	var slow []*Client
	delivered := 0

	r.mu.RLock()
	for _, c := range r.groups[group] {
		ev, ok := build(c)
		if !ok {
			continue
		}
		if c.enqueue(ev) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	r.mu.RUnlock()

	r.dropSlow(slow)
	return delivered
}

// dropSlow disconnects clients whose send queue is full. A skipped frame
// would break per-connection ordering, so the connection goes instead.
func (r *Registry) dropSlow(slow []*Client) {
	for _, c := range slow {
		select {
		case <-c.done:
			continue
		default:
		}
		log.Warnf("[%s] client %s (user %d) send queue full, disconnecting", r.name, c.ID, c.UserID)
		r.remove(c)
	}
}

// Close disconnects every client.
func (r *Registry) Close() {
	r.mu.RLock()
	all := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		all = append(all, c)
	}
	r.mu.RUnlock()

	for _, c := range all {
		r.Unregister(c)
	}
}

// Clients returns a snapshot of userID's live connections.
func (r *Registry) Clients(userID uint) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.users[userID]))
	for _, c := range r.users[userID] {
		out = append(out, c)
	}
	return out
}
