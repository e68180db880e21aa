// Package subscription tracks connected clients, their token rooms and
// the filter groups they belong to.
package subscription

import (
	"sort"
	"sync"

	"token-aggregator/internal/domain"
)

// Group is a filter group: a canonical criterion and its members.
type Group struct {
	Name      string
	Criterion domain.FilterCriterion
	Members   []string
}

type connection struct {
	tokens map[string]struct{}
	groups map[string]struct{}
}

// Registry is safe for concurrent use. All mutations are serialized.
type Registry struct {
	mu         sync.RWMutex
	conns      map[string]*connection
	tokenRooms map[string]map[string]struct{}
	groups     map[string]map[string]struct{}
	criteria   map[string]domain.FilterCriterion
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:      make(map[string]*connection),
		tokenRooms: make(map[string]map[string]struct{}),
		groups:     make(map[string]map[string]struct{}),
		criteria:   make(map[string]domain.FilterCriterion),
	}
}

// Connect registers a connection. Registering an id twice is a no-op.
func (r *Registry) Connect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[id]; ok {
		return
	}
	r.conns[id] = &connection{
		tokens: make(map[string]struct{}),
		groups: make(map[string]struct{}),
	}
}

// Disconnect removes the connection from every room and group.
func (r *Registry) Disconnect(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return
	}
	for addr := range c.tokens {
		r.leaveRoomLocked(id, addr)
	}
	for name := range c.groups {
		r.leaveGroupLocked(id, name)
	}
	delete(r.conns, id)
}

// JoinToken adds the connection to the room for address.
func (r *Registry) JoinToken(id, address string) bool {
	key := domain.AddressKey(address)
	if key == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.tokens[key] = struct{}{}
	room, ok := r.tokenRooms[key]
	if !ok {
		room = make(map[string]struct{})
		r.tokenRooms[key] = room
	}
	room[id] = struct{}{}
	return true
}

// LeaveToken removes the connection from the room for address.
func (r *Registry) LeaveToken(id, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := domain.AddressKey(address)
	if c, ok := r.conns[id]; ok {
		delete(c.tokens, key)
	}
	r.leaveRoomLocked(id, key)
}

// JoinGroup adds the connection to the group named by the criterion's
// canonical key. The first member's criterion is kept for the group's
// lifetime; created reports whether this call created the group.
func (r *Registry) JoinGroup(id string, c domain.FilterCriterion) (name string, created bool) {
	name = c.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	conn, ok := r.conns[id]
	if !ok {
		return name, false
	}
	members, ok := r.groups[name]
	if !ok {
		members = make(map[string]struct{})
		r.groups[name] = members
		r.criteria[name] = c
		created = true
	}
	members[id] = struct{}{}
	conn.groups[name] = struct{}{}
	return name, created
}

// LeaveAllGroups removes the connection from every filter group.
func (r *Registry) LeaveAllGroups(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[id]
	if !ok {
		return
	}
	for name := range c.groups {
		r.leaveGroupLocked(id, name)
	}
	c.groups = make(map[string]struct{})
}

func (r *Registry) leaveRoomLocked(id, key string) {
	room, ok := r.tokenRooms[key]
	if !ok {
		return
	}
	delete(room, id)
	if len(room) == 0 {
		delete(r.tokenRooms, key)
	}
}

// leaveGroupLocked drops the criterion together with the last member.
func (r *Registry) leaveGroupLocked(id, name string) {
	members, ok := r.groups[name]
	if !ok {
		return
	}
	delete(members, id)
	if len(members) == 0 {
		delete(r.groups, name)
		delete(r.criteria, name)
	}
}

// Groups returns a copy of every non-empty group, ordered by name.
func (r *Registry) Groups() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Group, 0, len(r.groups))
	for name, members := range r.groups {
		out = append(out, Group{
			Name:      name,
			Criterion: r.criteria[name],
			Members:   sortedKeys(members),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// GroupCriterion returns the stored criterion for a group name.
func (r *Registry) GroupCriterion(name string) (domain.FilterCriterion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.criteria[name]
	return c, ok
}

// TokenMembers returns the connections in the room for address.
func (r *Registry) TokenMembers(address string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return sortedKeys(r.tokenRooms[domain.AddressKey(address)])
}

// Connections returns every connected id.
func (r *Registry) Connections() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ConnectionCount returns the number of connected clients.
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// GroupCount returns the number of live filter groups.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
