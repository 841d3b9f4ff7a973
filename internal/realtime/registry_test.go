package realtime

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"messenger/pkg/logger"
)

func newTestClient(principalID uuid.UUID) *Client {
	return NewClient(principalID, nil, 8, time.Second, time.Minute, logger.NewNop())
}

func TestRegistry_OnlineTransitions(t *testing.T) {
	registry := NewRegistry()
	alice := uuid.New()

	tab1 := newTestClient(alice)
	tab2 := newTestClient(alice)

	// Первая вкладка дает переход в online
	assert.True(t, registry.Register(tab1))
	assert.True(t, registry.IsOnline(alice))

	// Вторая вкладка того же principal перехода не дает
	assert.False(t, registry.Register(tab2))
	assert.Len(t, registry.ConnectionsFor(alice), 2)

	// Закрытие одной из двух вкладок: все еще online
	assert.False(t, registry.Unregister(tab1))
	assert.True(t, registry.IsOnline(alice))

	// Последняя вкладка дает ровно один переход в offline
	assert.True(t, registry.Unregister(tab2))
	assert.False(t, registry.IsOnline(alice))

	// Повторный unregister не считается переходом
	assert.False(t, registry.Unregister(tab2))
}

func TestRegistry_ConnectionsForUnknownPrincipal(t *testing.T) {
	registry := NewRegistry()

	// Неизвестный principal дает пустой снапшот, не ошибку
	assert.Empty(t, registry.ConnectionsFor(uuid.New()))
	assert.False(t, registry.IsOnline(uuid.New()))
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	registry := NewRegistry()
	alice := uuid.New()

	tab1 := newTestClient(alice)
	registry.Register(tab1)

	snapshot := registry.ConnectionsFor(alice)
	assert.Len(t, snapshot, 1)

	// Вкладка, подключившаяся после снятия снапшота, в него не попадает
	registry.Register(newTestClient(alice))
	assert.Len(t, snapshot, 1)
	assert.Len(t, registry.ConnectionsFor(alice), 2)
}

func TestRegistry_OnlineIDs(t *testing.T) {
	registry := NewRegistry()
	alice := uuid.New()
	bob := uuid.New()

	registry.Register(newTestClient(alice))
	registry.Register(newTestClient(bob))
	registry.Register(newTestClient(alice))

	ids := registry.OnlineIDs()
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, alice)
	assert.Contains(t, ids, bob)
}

func TestRegistry_SnapshotExcept(t *testing.T) {
	registry := NewRegistry()
	alice := uuid.New()
	bob := uuid.New()

	aliceTab := newTestClient(alice)
	bobTab := newTestClient(bob)
	registry.Register(aliceTab)
	registry.Register(bobTab)

	snapshot := registry.SnapshotExcept(alice)
	assert.Len(t, snapshot, 1)
	assert.Equal(t, bob, snapshot[0].PrincipalID())
}
