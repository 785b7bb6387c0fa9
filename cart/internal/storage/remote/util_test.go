package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/identity"
)

type recorder struct {
	mu    sync.Mutex
	snaps []engine.RemoteSnapshot
}

func (r *recorder) record(snap engine.RemoteSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) last() (engine.RemoteSnapshot, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return engine.RemoteSnapshot{}, 0
	}
	return r.snaps[len(r.snaps)-1], len(r.snaps)
}

func sampleRecord(ids ...int) engine.Record {
	inv := catalog.Inventory()
	record := engine.Record{Items: []engine.StoredItem{}}
	for _, id := range ids {
		entry, _ := inv.Find(catalog.IntID(id))
		record.Items = append(record.Items, engine.NewStoredItem(entry))
	}
	return record
}

// testStoreContract checks the behavior every remote store shares. userID
// must be unused in store.
func testStoreContract(t *testing.T, store engine.RemoteStore, userID string) {
	t.Helper()
	c := context.Background()

	mine := &recorder{}
	sub, err := store.Subscribe(c, userID, mine.record)
	require.NoError(t, err)

	other := &recorder{}
	otherSub, err := store.Subscribe(c, userID+"-other", other.record)
	require.NoError(t, err)
	defer otherSub.Close()

	assert.Eventually(t, func() bool {
		snap, n := mine.last()
		return n == 1 && !snap.Exists
	}, 10*time.Second, 20*time.Millisecond, "first notification is the absent document")

	record := sampleRecord(2, 3)
	require.NoError(t, store.Replace(c, userID, record))
	assert.Eventually(t, func() bool {
		snap, _ := mine.last()
		return snap.Exists && assert.ObjectsAreEqual(record, snap.Record)
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, store.Replace(c, userID, engine.Record{}))
	assert.Eventually(t, func() bool {
		snap, _ := mine.last()
		return snap.Exists && snap.Record.Items != nil && len(snap.Record.Items) == 0
	}, 10*time.Second, 20*time.Millisecond)

	require.NoError(t, sub.Close())
	_, before := mine.last()
	require.NoError(t, store.Replace(c, userID, sampleRecord(4)))
	time.Sleep(200 * time.Millisecond)
	_, after := mine.last()
	assert.Equal(t, before, after, "closed subscription must not be notified")

	// a new subscription starts from the current document
	again := &recorder{}
	againSub, err := store.Subscribe(c, userID, again.record)
	require.NoError(t, err)
	defer againSub.Close()
	assert.Eventually(t, func() bool {
		snap, _ := again.last()
		return snap.Exists && len(snap.Record.Items) == 1 && snap.Record.Items[0].ID == catalog.IntID(4)
	}, 10*time.Second, 20*time.Millisecond)

	other.mu.Lock()
	defer other.mu.Unlock()
	for _, snap := range other.snaps {
		assert.False(t, snap.Exists)
	}
}

// firstSnapshot waits for the first notification of a fresh subscription.
func firstSnapshot(t *testing.T, store engine.RemoteStore, userID string) engine.RemoteSnapshot {
	t.Helper()
	rec := &recorder{}
	sub, err := store.Subscribe(context.Background(), userID, rec.record)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool {
		_, n := rec.last()
		return n > 0
	}, 10*time.Second, 20*time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.snaps[0]
}

// openUnreadable opens an engine over a document that cannot be decoded and
// checks it settles on an empty cart that still accepts writes.
func openUnreadable(t *testing.T, store engine.RemoteStore, userID string) {
	t.Helper()
	e, err := engine.Open(context.Background(), engine.Options{
		Identity: identity.Authenticated(userID),
		Catalog:  catalog.Inventory(),
		Remote:   store,
		Sync:     engine.SyncPolicy{MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond},
	})
	require.NoError(t, err)
	defer e.Close(context.Background())

	c, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, e.WaitLoaded(c))
	assert.Empty(t, e.Items())

	entry, _ := catalog.Inventory().Find(catalog.IntID(2))
	e.AddEntry(entry)
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, engine.SyncStateSynced, e.SyncState())
}
