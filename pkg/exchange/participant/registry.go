package participant

import (
	"sync"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Participant is a registered exchange user. The API key is the opaque
// credential presented on every call.
type Participant struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Role   Role      `json:"role"`
	APIKey string    `json:"api_key"`
}

// Registry holds all participants with lookups by id, API key and name.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]*Participant
	byKey  map[string]*Participant
	byName map[string]*Participant
}

func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[uuid.UUID]*Participant),
		byKey:  make(map[string]*Participant),
		byName: make(map[string]*Participant),
	}
}

// Register creates a USER participant with a generated API key. Registration
// is idempotent by name: an existing participant is returned unchanged.
func (r *Registry) Register(name string) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, exists := r.byName[name]; exists {
		return *p, false
	}
	p := &Participant{
		ID:     uuid.New(),
		Name:   name,
		Role:   RoleUser,
		APIKey: "key-" + uuid.NewString(),
	}
	r.index(p)
	return *p, true
}

// Put inserts a fully-specified participant (store restore, bootstrap admin).
func (r *Registry) Put(p Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := p
	r.index(&cp)
}

func (r *Registry) index(p *Participant) {
	r.byID[p.ID] = p
	r.byKey[p.APIKey] = p
	r.byName[p.Name] = p
}

func (r *Registry) ByID(id uuid.UUID) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// ByKey resolves the opaque API-key credential to a participant.
func (r *Registry) ByKey(apiKey string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byKey[apiKey]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// Delete removes a participant. Their ledger rows and order records are
// untouched.
func (r *Registry) Delete(id uuid.UUID) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return Participant{}, false
	}
	delete(r.byID, p.ID)
	delete(r.byKey, p.APIKey)
	delete(r.byName, p.Name)
	return *p, true
}

// ForEach visits every participant.
func (r *Registry) ForEach(visit func(p Participant)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		visit(*p)
	}
}
