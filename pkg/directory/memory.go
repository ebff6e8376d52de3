package directory

import (
	"sort"
	"sync"
)

// Memory is an in-memory implementation of the directory contracts. Members
// of a scope may access its posts; owners and moderators are explicit sets.
type Memory struct {
	mu         sync.RWMutex
	users      map[string]UserRef
	posts      map[string]PostRef
	members    map[string]map[string]struct{} // scopeID -> userIDs
	owners     map[string]map[string]struct{}
	moderators map[string]map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		users:      map[string]UserRef{},
		posts:      map[string]PostRef{},
		members:    map[string]map[string]struct{}{},
		owners:     map[string]map[string]struct{}{},
		moderators: map[string]map[string]struct{}{},
	}
}

// AddUser registers a user and optionally its scope membership.
func (m *Memory) AddUser(u UserRef, scopeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	if scopeID != "" {
		if m.members[scopeID] == nil {
			m.members[scopeID] = map[string]struct{}{}
		}
		m.members[scopeID][u.ID] = struct{}{}
	}
}

// AddPost registers a post reference.
func (m *Memory) AddPost(p PostRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
}

// SetOwner marks a user as owner of a scope.
func (m *Memory) SetOwner(userID, scopeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.owners[scopeID] == nil {
		m.owners[scopeID] = map[string]struct{}{}
	}
	m.owners[scopeID][userID] = struct{}{}
}

// SetModerator grants moderator rights in a scope.
func (m *Memory) SetModerator(userID, scopeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.moderators[scopeID] == nil {
		m.moderators[scopeID] = map[string]struct{}{}
	}
	m.moderators[scopeID][userID] = struct{}{}
}

func (m *Memory) UserCanAccessPost(userID, postID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[postID]
	if !ok {
		return false
	}
	if _, ok := m.members[p.ScopeID][userID]; ok {
		return true
	}
	_, ok = m.owners[p.ScopeID][userID]
	return ok
}

func (m *Memory) UserInScope(userID, scopeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.members[scopeID][userID]; ok {
		return true
	}
	_, ok := m.owners[scopeID][userID]
	return ok
}

func (m *Memory) UserOwnsScope(userID, scopeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.owners[scopeID][userID]
	return ok
}

func (m *Memory) UserIsModerator(userID, scopeID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.moderators[scopeID][userID]; ok {
		return true
	}
	_, ok := m.owners[scopeID][userID]
	return ok
}

func (m *Memory) ResolveUser(userID string) (UserRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	return u, ok
}

func (m *Memory) GetPost(postID string) (PostRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.posts[postID]
	return p, ok
}

// Scopes returns every scope id known to the directory, from membership,
// ownership or registered posts.
func (m *Memory) Scopes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := map[string]struct{}{}
	for id := range m.members {
		seen[id] = struct{}{}
	}
	for id := range m.owners {
		seen[id] = struct{}{}
	}
	for _, p := range m.posts {
		if p.ScopeID != "" {
			seen[p.ScopeID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
