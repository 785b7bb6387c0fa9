package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/internal/catalog"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
)

func newTestSelector(remote *fakeRemote, local *fakeLocal) *Selector {
	return NewSelector(SelectorOptions{
		Catalog: catalog.Inventory(),
		Local:   local,
		Remote:  remote,
		Sync:    fastPolicy(),
	})
}

func TestSelectorSwitchTearsDownPreviousSource(t *testing.T) {
	remote := newFakeRemote()
	remote.docs["u1"] = Record{Items: []StoredItem{NewStoredItem(entry(t, 2))}}
	s := newTestSelector(remote, newFakeLocal())
	defer s.Close(context.Background())

	user, err := s.Switch(context.Background(), identity.Authenticated("u1"))
	require.NoError(t, err)
	require.Len(t, user.Items(), 1)

	var stale func(RemoteSnapshot)
	remote.mu.Lock()
	for _, sub := range remote.subs {
		stale = sub.fn
	}
	remote.mu.Unlock()
	require.NotNil(t, stale)

	guest, err := s.Switch(context.Background(), identity.Anonymous())
	require.NoError(t, err)
	assert.Equal(t, 0, remote.subscribers())
	assert.Same(t, guest, s.Engine())

	stale(RemoteSnapshot{Exists: true, Record: Record{Items: []StoredItem{
		NewStoredItem(entry(t, 3)),
		NewStoredItem(entry(t, 4)),
	}}})
	assert.Empty(t, guest.Items())
	assert.Len(t, user.Items(), 1)
	assert.Greater(t, guest.Generation(), user.Generation())
}

func TestSelectorSwitchSameIdentityKeepsEngine(t *testing.T) {
	s := newTestSelector(newFakeRemote(), newFakeLocal())
	defer s.Close(context.Background())

	first, err := s.Switch(context.Background(), identity.Anonymous())
	require.NoError(t, err)
	first.AddEntry(entry(t, 2))

	second, err := s.Switch(context.Background(), identity.Anonymous())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Len(t, second.Items(), 1)
}

func TestSelectorDrainsWritesBeforeSwitch(t *testing.T) {
	remote := newFakeRemote()
	s := newTestSelector(remote, newFakeLocal())
	defer s.Close(context.Background())

	user, err := s.Switch(context.Background(), identity.Authenticated("u1"))
	require.NoError(t, err)
	user.AddEntry(entry(t, 11))

	_, err = s.Switch(context.Background(), identity.Authenticated("u2"))
	require.NoError(t, err)
	record, ok := remote.doc("u1")
	require.True(t, ok)
	assert.Len(t, record.Items, 1)
	_, ok = remote.doc("u2")
	assert.False(t, ok)
}

func TestSelectorRunFollowsIdentity(t *testing.T) {
	remote := newFakeRemote()
	var switched []identity.Identity
	s := NewSelector(SelectorOptions{
		Catalog:  catalog.Inventory(),
		Local:    newFakeLocal(),
		Remote:   remote,
		Sync:     fastPolicy(),
		OnSwitch: func(e *Engine) { switched = append(switched, e.Identity()) },
	})
	defer s.Close(context.Background())

	c, cancel := context.WithCancel(context.Background())
	defer cancel()
	signal := identity.NewSignal(nil)
	done := make(chan error, 1)
	go func() { done <- s.Run(c, signal.Watch(c)) }()

	assert.Eventually(t, func() bool {
		e := s.Engine()
		return e != nil && e.Identity() == identity.Anonymous()
	}, time.Second, 5*time.Millisecond)

	signal.Set(&identity.Profile{UID: "u1"})
	assert.Eventually(t, func() bool {
		e := s.Engine()
		return e != nil && e.Identity() == identity.Authenticated("u1")
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []identity.Identity{identity.Anonymous(), identity.Authenticated("u1")}, switched)
}

func TestSelectorClosed(t *testing.T) {
	s := newTestSelector(newFakeRemote(), newFakeLocal())
	_, err := s.Switch(context.Background(), identity.Anonymous())
	require.NoError(t, err)
	require.NoError(t, s.Close(context.Background()))
	assert.Nil(t, s.Engine())

	_, err = s.Switch(context.Background(), identity.Anonymous())
	assert.ErrorIs(t, err, inErrors.ErrClosed)
}
