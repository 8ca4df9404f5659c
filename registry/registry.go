// Package registry owns the authoritative chat server state: the set of open
// connections, the binding between usernames and connections, and group
// membership. It performs no I/O; all methods are safe for concurrent use and
// every compound read/modify/write sequence is atomic under a single mutex,
// so username and group claims use compare-and-register semantics.
package registry

import (
	"errors"
	"sync"
)

// ConnID is an opaque handle uniquely identifying one open client connection
// for its lifetime.
type ConnID uint32

var (
	// ErrUnknownConnection is returned when an operation references a
	// connection that is not registered.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrUsernameTaken is returned when a username is already bound to a
	// live connection.
	ErrUsernameTaken = errors.New("username already taken")

	// ErrGroupExists is returned when creating a group whose name is in use.
	ErrGroupExists = errors.New("group already exists")

	// ErrUnknownGroup is returned when a group name does not exist.
	ErrUnknownGroup = errors.New("group does not exist")

	// ErrNotMember is returned when the connection is not a member of the group.
	ErrNotMember = errors.New("not a member of the group")
)

// Registry is the process-wide identity and membership state. Usernames map
// to connections bijectively: every entry in usernameToConn has its mirror
// in connToUsername and vice versa. Groups persist once created, even when
// their member set becomes empty.
type Registry struct {
	mu             sync.RWMutex
	connections    map[ConnID]struct{}
	usernameToConn map[string]ConnID
	connToUsername map[ConnID]string
	groups         map[string]map[ConnID]struct{}
}

// NewRegistry returns an empty Registry ready for use.
//
// Returns:
//   - A pointer to a new Registry
func NewRegistry() *Registry {
	return &Registry{
		connections:    make(map[ConnID]struct{}),
		usernameToConn: make(map[string]ConnID),
		connToUsername: make(map[ConnID]string),
		groups:         make(map[string]map[ConnID]struct{}),
	}
}

// AddConnection registers a newly accepted connection. It must be called
// before any other operation referencing the connection.
//
// Parameters:
//   - id: The connection to register
func (r *Registry) AddConnection(id ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[id] = struct{}{}
}

// RemoveConnection tears down all registry state for a connection in one
// atomic step: the connection itself, its username binding (if any), and its
// membership in every group. Groups left empty are kept.
//
// Parameters:
//   - id: The connection to remove
//
// Returns:
//   - The username that was bound to the connection, or "" if it never
//     authenticated
func (r *Registry) RemoveConnection(id ConnID) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, id)

	username := r.connToUsername[id]
	if username != "" {
		delete(r.connToUsername, id)
		delete(r.usernameToConn, username)
	}

	for _, members := range r.groups {
		delete(members, id)
	}

	return username
}

// HasConnection reports whether the connection is registered.
//
// Parameters:
//   - id: The connection to check
//
// Returns:
//   - true if the connection is registered, false otherwise
func (r *Registry) HasConnection(id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connections[id]
	return ok
}

// Connections returns a snapshot of all registered connection IDs.
//
// Returns:
//   - A slice of connection IDs; order is unspecified
func (r *Registry) Connections() []ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]ConnID, 0, len(r.connections))
	for id := range r.connections {
		ids = append(ids, id)
	}

	return ids
}

// UsernameTaken reports whether a username is currently bound to a live
// connection. A false result is advisory only: the name may be claimed by
// another connection before the caller gets to ClaimUsername.
//
// Parameters:
//   - username: The username to check
//
// Returns:
//   - true if the username is bound, false otherwise
func (r *Registry) UsernameTaken(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.usernameToConn[username]
	return ok
}

// ClaimUsername atomically binds a username to a connection. The check and
// the registration happen under one lock, so no two connections can ever
// both hold the same name.
//
// Parameters:
//   - id: The connection claiming the username
//   - username: The username to claim
//
// Returns:
//   - ErrUnknownConnection if the connection is not registered,
//     ErrUsernameTaken if the name is already bound, nil on success
func (r *Registry) ClaimUsername(id ConnID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; !ok {
		return ErrUnknownConnection
	}

	if _, ok := r.usernameToConn[username]; ok {
		return ErrUsernameTaken
	}

	r.usernameToConn[username] = id
	r.connToUsername[id] = username
	return nil
}

// Username returns the username bound to a connection.
//
// Parameters:
//   - id: The connection to look up
//
// Returns:
//   - The username and true if the connection is authenticated, or "" and
//     false otherwise
func (r *Registry) Username(id ConnID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username, ok := r.connToUsername[id]
	return username, ok
}

// Connection returns the connection a username is bound to.
//
// Parameters:
//   - username: The username to look up
//
// Returns:
//   - The connection ID and true if the username is bound, or 0 and false
//     otherwise
func (r *Registry) Connection(username string) (ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.usernameToConn[username]
	return id, ok
}

// CreateGroup creates a group with the given connection as its sole member.
// Group names are case-sensitive and matched exactly.
//
// Parameters:
//   - name: The group name to create
//   - owner: The connection creating the group
//
// Returns:
//   - ErrUnknownConnection if the connection is not registered,
//     ErrGroupExists if the name is in use, nil on success
func (r *Registry) CreateGroup(name string, owner ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[owner]; !ok {
		return ErrUnknownConnection
	}

	if _, ok := r.groups[name]; ok {
		return ErrGroupExists
	}

	r.groups[name] = map[ConnID]struct{}{owner: {}}
	return nil
}

// JoinGroup adds a connection to a group's member set. Joining a group the
// connection already belongs to is a no-op.
//
// Parameters:
//   - name: The group to join
//   - id: The connection joining
//
// Returns:
//   - ErrUnknownConnection if the connection is not registered,
//     ErrUnknownGroup if the group does not exist, nil on success
func (r *Registry) JoinGroup(name string, id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; !ok {
		return ErrUnknownConnection
	}

	members, ok := r.groups[name]
	if !ok {
		return ErrUnknownGroup
	}

	members[id] = struct{}{}
	return nil
}

// LeaveGroup removes a connection from a group's member set. The group is
// kept even if it becomes empty.
//
// Parameters:
//   - name: The group to leave
//   - id: The connection leaving
//
// Returns:
//   - ErrUnknownGroup if the group does not exist, ErrNotMember if the
//     connection is not in the group, nil on success
func (r *Registry) LeaveGroup(name string, id ConnID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.groups[name]
	if !ok {
		return ErrUnknownGroup
	}

	if _, ok := members[id]; !ok {
		return ErrNotMember
	}

	delete(members, id)
	return nil
}

// HasGroup reports whether a group exists.
//
// Parameters:
//   - name: The group name to check
//
// Returns:
//   - true if the group exists, false otherwise
func (r *Registry) HasGroup(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.groups[name]
	return ok
}

// IsMember reports whether a connection belongs to a group.
//
// Parameters:
//   - name: The group name
//   - id: The connection to check
//
// Returns:
//   - true if the group exists and the connection is a member
func (r *Registry) IsMember(name string, id ConnID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[name]
	if !ok {
		return false
	}

	_, ok = members[id]
	return ok
}

// GroupMembers returns a snapshot of a group's member set.
//
// Parameters:
//   - name: The group name
//
// Returns:
//   - The member connection IDs (order unspecified) and true if the group
//     exists, or nil and false otherwise
func (r *Registry) GroupMembers(name string) ([]ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.groups[name]
	if !ok {
		return nil, false
	}

	ids := make([]ConnID, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}

	return ids, true
}

// ConnectionCount returns the number of registered connections.
//
// Returns:
//   - The number of open connections
func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}
