package engine

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
)

func entry(t *testing.T, id int) catalog.Entry {
	t.Helper()
	e, ok := catalog.Inventory().Find(catalog.IntID(id))
	require.True(t, ok)
	return e
}

func ids(items []DisplayItem) []catalog.ID {
	out := make([]catalog.ID, len(items))
	for i, item := range items {
		out[i] = item.ID
	}
	return out
}

func openAnonymous(t *testing.T, local LocalStorage) *Engine {
	t.Helper()
	e, err := Open(context.Background(), Options{
		Identity: identity.Anonymous(),
		Catalog:  catalog.Inventory(),
		Local:    local,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func openUser(t *testing.T, uid string, remote RemoteStore, local LocalStorage, policy SyncPolicy) *Engine {
	t.Helper()
	e, err := Open(context.Background(), Options{
		Identity: identity.Authenticated(uid),
		Catalog:  catalog.Inventory(),
		Local:    local,
		Remote:   remote,
		Sync:     policy,
	})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		expected int64
	}{
		{name: "given grouped price should strip commas", label: "25,000", expected: 25000},
		{name: "given undisclosed price should be zero", label: "???", expected: 0},
		{name: "given plain digits should parse", label: "3000", expected: 3000},
		{name: "given empty label should be zero", label: "", expected: 0},
		{name: "given letters should be zero", label: "free", expected: 0},
		{name: "given decimal should stop at the dot", label: "12.5", expected: 12},
		{name: "given trailing text should keep leading digits", label: "1,500 eddies", expected: 1500},
		{name: "given leading spaces should skip them", label: "  4,000", expected: 4000},
		{name: "given negative sign should keep it", label: "-3,000", expected: -3000},
		{name: "given bare sign should be zero", label: "-", expected: 0},
		{name: "given overflowing digits should be zero", label: "99,999,999,999,999,999,999", expected: 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ParsePrice(test.label))
		})
	}
}

func TestTotal(t *testing.T) {
	items := []StoredItem{{Price: "25,000"}, {Price: "???"}, {Price: "1,500"}}
	assert.Equal(t, int64(26500), Total(items))
	assert.Equal(t, Total(items), Total(items))
	assert.Equal(t, int64(0), Total([]StoredItem{}))
	assert.Equal(t, int64(0), Total[StoredItem](nil))
}

func TestAnonymousScenario(t *testing.T) {
	e := openAnonymous(t, newFakeLocal())

	a := StoredItem{ID: "a", Name: "A", Price: "10,000"}
	b := StoredItem{ID: "b", Name: "B", Price: "???"}
	e.Add(a)
	e.Add(b)
	assert.Equal(t, int64(10000), e.Total())

	assert.True(t, e.RemoveAt(0))
	assert.Equal(t, []catalog.ID{"b"}, ids(e.Items()))
	assert.Equal(t, int64(0), e.Total())

	e.Clear()
	assert.Empty(t, e.Items())
	assert.NotNil(t, e.Items())
	assert.Equal(t, int64(0), e.Total())
	assert.Equal(t, SyncStateSynced, e.SyncState())
}

func TestAddThenRemoveIsPositional(t *testing.T) {
	e := openAnonymous(t, newFakeLocal())
	x := e.AddEntry(entry(t, 2))
	assert.True(t, e.RemoveAt(0))
	assert.Empty(t, e.Items())

	x = e.AddEntry(entry(t, 2))
	y := e.AddEntry(entry(t, 2))
	assert.NotEqual(t, x.InstanceID, y.InstanceID)
	assert.True(t, e.RemoveAt(0))

	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, y.InstanceID, items[0].InstanceID)
}

func TestRemoveByInstanceID(t *testing.T) {
	e := openAnonymous(t, newFakeLocal())
	x := e.AddEntry(entry(t, 2))
	y := e.AddEntry(entry(t, 3))

	assert.False(t, e.Remove("missing"))
	assert.True(t, e.Remove(y.InstanceID))
	assert.Equal(t, []catalog.ID{x.ID}, ids(e.Items()))
}

func TestRemoveAtOutOfRange(t *testing.T) {
	local := newFakeLocal()
	e := openAnonymous(t, local)
	e.AddEntry(entry(t, 2))
	marker := e.LastUpdate()
	before, _ := local.get(constants.LOCAL_KEY_CART)
	require.NoError(t, local.SetItem(constants.LOCAL_KEY_CART, "sentinel"))

	tests := []struct {
		name  string
		index int
	}{
		{name: "given negative index should be no-op", index: -1},
		{name: "given index equal to length should be no-op", index: 1},
		{name: "given large index should be no-op", index: 99},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.False(t, e.RemoveAt(test.index))
			assert.Len(t, e.Items(), 1)
			assert.Equal(t, marker, e.LastUpdate())
			value, _ := local.get(constants.LOCAL_KEY_CART)
			assert.Equal(t, "sentinel", value)
		})
	}
	assert.NotEmpty(t, before)
}

func TestLastUpdateStrictlyIncreasing(t *testing.T) {
	e, err := Open(context.Background(), Options{
		Identity: identity.Anonymous(),
		Catalog:  catalog.Inventory(),
		Local:    newFakeLocal(),
		Clock:    fixedClock(),
	})
	require.NoError(t, err)
	defer e.Close(context.Background())
	assert.True(t, e.LastUpdate().IsZero())

	var last time.Time
	for i := 0; i < 5; i++ {
		switch i % 3 {
		case 0:
			e.AddEntry(entry(t, 8))
		case 1:
			e.RemoveAt(0)
		default:
			e.Clear()
		}
		assert.True(t, e.LastUpdate().After(last))
		last = e.LastUpdate()
	}
}

func TestAnonymousPersistenceSurvivesReload(t *testing.T) {
	local := newFakeLocal()
	first := openAnonymous(t, local)
	added := first.AddEntry(entry(t, 9))
	first.Add(StoredItem{ID: "retired", Name: "RETIRED", Price: "1,000"})
	require.NoError(t, first.Close(context.Background()))

	raw, ok := local.get(constants.LOCAL_KEY_CART)
	require.True(t, ok)
	assert.NotContains(t, raw, "icon")

	second := openAnonymous(t, local)
	items := second.Items()
	require.Len(t, items, 2)
	assert.Equal(t, added.InstanceID, items[0].InstanceID)
	assert.Equal(t, "eye", items[0].Icon.Name)
	assert.Nil(t, items[1].Icon)
	assert.Equal(t, int64(6200), second.Total())
}

func TestMalformedLocalStorage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeLocal)
	}{
		{name: "given garbage should start empty", setup: func(l *fakeLocal) { l.values[constants.LOCAL_KEY_CART] = "{not json" }},
		{name: "given object instead of array should start empty", setup: func(l *fakeLocal) { l.values[constants.LOCAL_KEY_CART] = `{"items":[]}` }},
		{name: "given read error should start empty", setup: func(l *fakeLocal) { l.readErr = errUnavailable }},
		{name: "given absent slot should start empty", setup: func(*fakeLocal) {}},
		{name: "given empty array should start empty", setup: func(l *fakeLocal) { l.values[constants.LOCAL_KEY_CART] = "[]" }},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			local := newFakeLocal()
			test.setup(local)
			e := openAnonymous(t, local)
			assert.NotNil(t, e.Items())
			assert.Empty(t, e.Items())
			assert.Equal(t, int64(0), e.Total())
		})
	}
}

func TestLegacyLocalItemsGetInstanceIDs(t *testing.T) {
	local := newFakeLocal()
	local.values[constants.LOCAL_KEY_CART] = `[{"id":2,"name":"GUTS_SHOTGUN","price":"25,000","rarity":"epic","status":"available"}]`

	e := openAnonymous(t, local)
	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, catalog.ID("2"), items[0].ID)
	assert.NotEmpty(t, items[0].InstanceID)
	assert.Equal(t, "skull", items[0].Icon.Name)
}

func TestAuthenticatedWritesRemote(t *testing.T) {
	remote := newFakeRemote()
	local := newFakeLocal()
	e := openUser(t, "u1", remote, local, fastPolicy())
	assert.Empty(t, e.Items())
	_, exists := remote.doc("u1")
	assert.False(t, exists)

	e.AddEntry(entry(t, 2))
	e.AddEntry(entry(t, 3))
	require.NoError(t, e.Flush(context.Background()))

	record, exists := remote.doc("u1")
	require.True(t, exists)
	assert.Len(t, record.Items, 2)
	assert.Equal(t, Sanitize(e.Items()), record.Items)
	assert.Equal(t, SyncStateSynced, e.SyncState())

	_, ok := local.get(constants.LOCAL_KEY_CART)
	assert.False(t, ok)
}

func TestAuthenticatedLoadsAndFollowsRemote(t *testing.T) {
	remote := newFakeRemote()
	remote.docs["u1"] = Record{Items: []StoredItem{NewStoredItem(entry(t, 4))}}
	e := openUser(t, "u1", remote, newFakeLocal(), fastPolicy())

	items := e.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "crosshair", items[0].Icon.Name)

	remote.push("u1", Record{Items: []StoredItem{NewStoredItem(entry(t, 11)), {ID: "gone", Price: "5"}}})
	items = e.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "cpu", items[0].Icon.Name)
	assert.Nil(t, items[1].Icon)
	assert.Equal(t, int64(45005), e.Total())
}

func TestMissingRemoteKeepsGuestCartByDefault(t *testing.T) {
	local := newFakeLocal()
	guest := openAnonymous(t, local)
	guest.AddEntry(entry(t, 2))
	require.NoError(t, guest.Close(context.Background()))

	remote := newFakeRemote()
	e := openUser(t, "u1", remote, local, fastPolicy())
	assert.Empty(t, e.Items())
	_, ok := local.get(constants.LOCAL_KEY_CART)
	assert.True(t, ok)
	assert.Equal(t, 0, remote.writeCount())
}

func TestMergeGuestCart(t *testing.T) {
	local := newFakeLocal()
	guest := openAnonymous(t, local)
	guest.AddEntry(entry(t, 2))
	guest.AddEntry(entry(t, 10))
	require.NoError(t, guest.Close(context.Background()))

	policy := fastPolicy()
	policy.MergeGuestCart = true
	remote := newFakeRemote()
	e := openUser(t, "u1", remote, local, policy)
	require.NoError(t, e.Flush(context.Background()))

	assert.Equal(t, int64(29000), e.Total())
	record, exists := remote.doc("u1")
	require.True(t, exists)
	assert.Len(t, record.Items, 2)
	_, ok := local.get(constants.LOCAL_KEY_CART)
	assert.False(t, ok)
}

func TestUnreadableRemoteIsEmptyCart(t *testing.T) {
	testCases := []struct {
		name       string
		guestItems []int
		merge      bool
	}{
		{name: "without guest cart"},
		{name: "guest cart is not merged", guestItems: []int{2, 10}, merge: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			local := newFakeLocal()
			if len(tc.guestItems) > 0 {
				guest := openAnonymous(t, local)
				for _, id := range tc.guestItems {
					guest.AddEntry(entry(t, id))
				}
				require.NoError(t, guest.Close(context.Background()))
			}

			policy := fastPolicy()
			policy.MergeGuestCart = tc.merge
			remote := newFakeRemote()
			remote.readErr = errUnavailable
			e := openUser(t, "u1", remote, local, policy)

			c, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			require.NoError(t, e.WaitLoaded(c))
			require.NoError(t, e.Flush(context.Background()))
			assert.Empty(t, e.Items())
			assert.Equal(t, int64(0), e.Total())
			assert.Equal(t, 0, remote.writeCount())
			_, ok := local.get(constants.LOCAL_KEY_CART)
			assert.Equal(t, len(tc.guestItems) > 0, ok)

			e.AddEntry(entry(t, 3))
			require.NoError(t, e.Flush(context.Background()))
			record, exists := remote.doc("u1")
			require.True(t, exists)
			assert.Len(t, record.Items, 1)
		})
	}
}

func TestUnreadablePushAfterLoadKeepsCart(t *testing.T) {
	remote := &manualRemote{}
	e := openUser(t, "u1", remote, newFakeLocal(), fastPolicy())
	remote.deliver(RemoteSnapshot{Exists: true, Record: Record{Items: []StoredItem{NewStoredItem(entry(t, 2))}}})
	require.NoError(t, e.WaitLoaded(context.Background()))

	remote.deliver(RemoteSnapshot{Err: errUnavailable})

	assert.Equal(t, []catalog.ID{catalog.IntID(2)}, ids(e.Items()))
	assert.Equal(t, int64(25000), e.Total())
}

func TestWriteRetriesWithBackoff(t *testing.T) {
	remote := newFakeRemote()
	remote.failures = 2
	e := openUser(t, "u1", remote, nil, fastPolicy())

	e.AddEntry(entry(t, 2))
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, SyncStateSynced, e.SyncState())
	assert.NoError(t, e.SyncErr())
	assert.Equal(t, 1, remote.writeCount())
}

func TestWriteFailureIsReportedNotRolledBack(t *testing.T) {
	remote := newFakeRemote()
	remote.failures = 100
	e := openUser(t, "u1", remote, nil, fastPolicy())

	e.AddEntry(entry(t, 2))
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, SyncStateFailed, e.SyncState())
	assert.ErrorIs(t, e.SyncErr(), errUnavailable)
	assert.Len(t, e.Items(), 1)

	remote.mu.Lock()
	remote.failures = 0
	remote.mu.Unlock()
	e.AddEntry(entry(t, 3))
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, SyncStateSynced, e.SyncState())
	record, _ := remote.doc("u1")
	assert.Len(t, record.Items, 2)
}

func TestWritesCoalesceToLatestSnapshot(t *testing.T) {
	remote := newFakeRemote()
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	remote.writeHook = func(Record) {
		select {
		case started <- struct{}{}:
			<-release
		default:
		}
	}
	e := openUser(t, "u1", remote, nil, fastPolicy())

	e.AddEntry(entry(t, 2))
	<-started
	assert.Equal(t, SyncStatePending, e.SyncState())
	e.AddEntry(entry(t, 3))
	e.AddEntry(entry(t, 4))
	e.AddEntry(entry(t, 8))
	close(release)

	require.NoError(t, e.Flush(context.Background()))
	remote.mu.Lock()
	writes := append([]Record(nil), remote.writes...)
	remote.mu.Unlock()
	require.Len(t, writes, 2)
	assert.Len(t, writes[0].Items, 1)
	assert.Len(t, writes[1].Items, 4)
	assert.Len(t, e.Items(), 4)
}

func TestPushDuringWriteIsAppliedOnceIdle(t *testing.T) {
	remote := newFakeRemote()
	remote.noEcho = true
	other := Record{Items: []StoredItem{NewStoredItem(entry(t, 7))}}
	pushed := false
	remote.writeHook = func(Record) {
		if !pushed {
			pushed = true
			remote.push("u1", other)
		}
	}
	e := openUser(t, "u1", remote, nil, fastPolicy())

	e.AddEntry(entry(t, 2))
	require.NoError(t, e.Flush(context.Background()))

	assert.Eventually(t, func() bool {
		items := e.Items()
		return len(items) == 1 && items[0].ID == catalog.IntID(7)
	}, time.Second, 5*time.Millisecond)
	record, _ := remote.doc("u1")
	assert.Equal(t, other, record)
}

func TestMissingDocumentDuringWriteIsDropped(t *testing.T) {
	remote := newFakeRemote()
	remote.noEcho = true
	remote.writeHook = func(Record) {
		remote.deliver("u1", RemoteSnapshot{Exists: false})
	}
	e := openUser(t, "u1", remote, newFakeLocal(), fastPolicy())

	e.AddEntry(entry(t, 2))
	require.NoError(t, e.Flush(context.Background()))

	assert.Equal(t, []catalog.ID{catalog.IntID(2)}, ids(e.Items()))
	record, ok := remote.doc("u1")
	require.True(t, ok)
	assert.Len(t, record.Items, 1)
}

func TestWatch(t *testing.T) {
	e := openAnonymous(t, newFakeLocal())
	var snapshots []Snapshot
	cancel := e.Watch(func(s Snapshot) { snapshots = append(snapshots, s) })

	e.AddEntry(entry(t, 2))
	e.AddEntry(entry(t, 3))
	e.RemoveAt(5)
	cancel()
	e.Clear()

	require.Len(t, snapshots, 2)
	assert.Less(t, snapshots[0].Version, snapshots[1].Version)
	assert.Equal(t, int64(57000), snapshots[1].Total)
	assert.Equal(t, identity.Anonymous(), snapshots[1].Identity)
}

func TestClosedEngineIgnoresMutations(t *testing.T) {
	remote := newFakeRemote()
	e := openUser(t, "u1", remote, nil, fastPolicy())
	require.NoError(t, e.Close(context.Background()))
	require.NoError(t, e.Close(context.Background()))
	assert.Equal(t, 0, remote.subscribers())

	e.AddEntry(entry(t, 2))
	assert.Empty(t, e.Items())
	assert.Equal(t, 0, remote.writeCount())
}

func TestOpenWithoutRemote(t *testing.T) {
	_, err := Open(context.Background(), Options{Identity: identity.Authenticated("u1"), Catalog: catalog.Inventory()})
	assert.ErrorIs(t, err, inErrors.ErrUnknownBackend)
}

func TestStoredShapeHasNoIcon(t *testing.T) {
	e := openAnonymous(t, newFakeLocal())
	e.AddEntry(entry(t, 1))

	b, err := json.Marshal(Record{Items: Sanitize(e.Items())})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "icon")
	assert.Contains(t, string(b), `"price":"???"`)
}

func TestLoaded(t *testing.T) {
	anonymous := openAnonymous(t, newFakeLocal())
	require.NoError(t, anonymous.WaitLoaded(context.Background()))

	remote := &manualRemote{}
	e := openUser(t, "u1", remote, newFakeLocal(), fastPolicy())
	select {
	case <-e.Loaded():
		t.Fatal("loaded before the first remote notification")
	default:
	}

	c, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.WaitLoaded(c), context.DeadlineExceeded)

	remote.deliver(RemoteSnapshot{Exists: true, Record: Record{Items: []StoredItem{NewStoredItem(entry(t, 2))}}})
	require.NoError(t, e.WaitLoaded(context.Background()))
	assert.Equal(t, int64(25000), e.Total())
}
