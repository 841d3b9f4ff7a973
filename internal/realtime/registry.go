package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Registry ведет реестр живых соединений процесса: principal -> множество вкладок.
// Все методы потокобезопасны; выборки возвращают снапшоты, поэтому вкладка,
// подключившаяся посреди fan-out, не попадет в уже идущую рассылку.
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Register добавляет соединение; true значит это был переход offline -> online
func (r *Registry) Register(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.principalID]
	if !ok {
		set = make(map[*Client]struct{})
		r.conns[c.principalID] = set
	}
	set[c] = struct{}{}

	return !ok
}

// Unregister убирает соединение; true значит это был переход online -> offline
func (r *Registry) Unregister(c *Client) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[c.principalID]
	if !ok {
		return false
	}
	if _, ok := set[c]; !ok {
		return false
	}

	delete(set, c)
	if len(set) == 0 {
		delete(r.conns, c.principalID)
		return true
	}
	return false
}

func (r *Registry) ConnectionsFor(principalID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[principalID]
	snapshot := make([]*Client, 0, len(set))
	for c := range set {
		snapshot = append(snapshot, c)
	}
	return snapshot
}

func (r *Registry) IsOnline(principalID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.conns[principalID]) > 0
}

func (r *Registry) OnlineIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	return ids
}

// SnapshotExcept возвращает все соединения, кроме принадлежащих principalID
func (r *Registry) SnapshotExcept(principalID uuid.UUID) []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snapshot []*Client
	for id, set := range r.conns {
		if id == principalID {
			continue
		}
		for c := range set {
			snapshot = append(snapshot, c)
		}
	}
	return snapshot
}
