// Package engine keeps a shopping cart consistent between memory and the
// storage backend that belongs to the current identity: the device local
// slot for anonymous sessions and a per user remote document otherwise.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/metric"
	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type Options struct {
	Identity   identity.Identity
	Catalog    *catalog.Catalog
	Local      LocalStorage
	Remote     RemoteStore
	Sync       SyncPolicy
	Clock      func() time.Time
	Generation uint64
}

// Snapshot is what watchers are handed after every change. Version grows by
// one per change of this engine.
type Snapshot struct {
	Identity   identity.Identity
	Items      []DisplayItem
	Total      int64
	LastUpdate time.Time
	SyncState  SyncState
	Version    uint64
}

// Engine owns the in-memory cart of exactly one identity. Mutations are
// applied in memory first and persisted afterwards; they never fail.
type Engine struct {
	identity   identity.Identity
	catalog    *catalog.Catalog
	local      LocalStorage
	policy     SyncPolicy
	clock      func() time.Time
	generation uint64
	logger     zerolog.Logger

	writer *writer

	mu          sync.Mutex
	items       []DisplayItem
	lastUpdate  time.Time
	version     uint64
	closed      bool
	deferred    *RemoteSnapshot
	sub         Subscription
	watchers    map[int]func(Snapshot)
	nextWatcher int

	loaded     chan struct{}
	loadedOnce sync.Once
}

func Open(c context.Context, opts Options) (*Engine, error) {
	c, span := inOtel.Tracer.Start(c, "engine Open")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "engine Open").
		Str(constants.KEY_IDENTITY, opts.Identity.String()).
		Uint64(constants.KEY_GENERATION, opts.Generation).
		Logger()

	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	e := &Engine{
		identity:   opts.Identity,
		catalog:    opts.Catalog,
		local:      opts.Local,
		policy:     opts.Sync,
		clock:      opts.Clock,
		generation: opts.Generation,
		logger:     logger.With().Str(constants.KEY_TAG, "Engine").Logger(),
		items:      []DisplayItem{},
		watchers:   map[int]func(Snapshot){},
		loaded:     make(chan struct{}),
	}

	if !opts.Identity.IsAuthenticated() {
		logger = logger.With().Str(constants.KEY_PROCESS, "loading local cart").Logger()
		logger.Debug().Msg("loading local cart")
		if stored, ok := e.readLocal(); ok {
			e.items = Rehydrate(stored, e.catalog)
		}
		e.markLoaded()
		metric.OpenEngines.Inc()
		logger.Info().Int(constants.KEY_CART_ITEMS_COUNT, len(e.items)).Msg("loaded local cart")
		return e, nil
	}

	if opts.Remote == nil {
		err := fmt.Errorf("failed opening cart for %s with error=%w", opts.Identity, inErrors.ErrUnknownBackend)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	userID := opts.Identity.UserID()
	remote := opts.Remote
	c = e.logger.WithContext(c)
	e.writer = newWriter(c, func(c context.Context, record Record) error {
		return remote.Replace(c, userID, record)
	}, opts.Sync, e.broadcast)

	logger = logger.With().Str(constants.KEY_PROCESS, "subscribing remote cart").Logger()
	logger.Debug().Msg("subscribing remote cart")
	sub, err := remote.Subscribe(c, userID, e.applyRemote)
	if err != nil {
		err = fmt.Errorf("failed subscribing remote cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.writer.close(context.Background())
		return nil, err
	}
	e.mu.Lock()
	e.sub = sub
	e.mu.Unlock()
	metric.OpenEngines.Inc()
	logger.Info().Msg("subscribed remote cart")

	return e, nil
}

func (e *Engine) Identity() identity.Identity { return e.identity }

func (e *Engine) Generation() uint64 { return e.generation }

// Loaded is closed once the cart holds the state of its backend: right away
// for the local slot, after the first remote notification otherwise.
func (e *Engine) Loaded() <-chan struct{} { return e.loaded }

func (e *Engine) WaitLoaded(c context.Context) error {
	select {
	case <-e.loaded:
		return nil
	case <-c.Done():
		return fmt.Errorf("failed waiting for remote cart with error=%w", c.Err())
	}
}

func (e *Engine) markLoaded() {
	e.loadedOnce.Do(func() { close(e.loaded) })
}

func (e *Engine) isLoaded() bool {
	select {
	case <-e.loaded:
		return true
	default:
		return false
	}
}

// Add appends item and returns the line as it is now held in memory. The
// item's catalog status is not checked here.
func (e *Engine) Add(item StoredItem) DisplayItem {
	if item.InstanceID == "" {
		item.InstanceID = uuid.NewString()
	}
	line := DisplayItem{StoredItem: item, Icon: e.catalog.IconOf(item.ID)}
	e.mutate("add", func(items []DisplayItem) ([]DisplayItem, bool) {
		next := make([]DisplayItem, len(items), len(items)+1)
		copy(next, items)
		return append(next, line), true
	})
	return line
}

func (e *Engine) AddEntry(entry catalog.Entry) DisplayItem {
	return e.Add(NewStoredItem(entry))
}

// RemoveAt drops the line at index. Out of range indexes leave the cart as is.
func (e *Engine) RemoveAt(index int) bool {
	return e.mutate("remove", func(items []DisplayItem) ([]DisplayItem, bool) {
		if index < 0 || index >= len(items) {
			return items, false
		}
		next := make([]DisplayItem, 0, len(items)-1)
		next = append(next, items[:index]...)
		return append(next, items[index+1:]...), true
	})
}

func (e *Engine) Remove(instanceID string) bool {
	return e.mutate("remove", func(items []DisplayItem) ([]DisplayItem, bool) {
		for i, item := range items {
			if item.InstanceID != instanceID {
				continue
			}
			next := make([]DisplayItem, 0, len(items)-1)
			next = append(next, items[:i]...)
			return append(next, items[i+1:]...), true
		}
		return items, false
	})
}

func (e *Engine) Clear() {
	e.mutate("clear", func([]DisplayItem) ([]DisplayItem, bool) {
		return []DisplayItem{}, true
	})
}

func (e *Engine) Items() []DisplayItem {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneItems(e.items)
}

func (e *Engine) Total() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Total(e.items)
}

func (e *Engine) LastUpdate() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastUpdate
}

func (e *Engine) SyncState() SyncState {
	if e.writer == nil {
		return SyncStateSynced
	}
	return e.writer.state()
}

// SyncErr is the error of the last failed remote write, nil once a later
// write succeeded.
func (e *Engine) SyncErr() error {
	if e.writer == nil {
		return nil
	}
	return e.writer.err()
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Watch registers fn for every later change. fn runs outside the engine
// lock and may observe snapshots out of order under concurrent mutations;
// compare Version to discard older ones.
func (e *Engine) Watch(fn func(Snapshot)) (cancel func()) {
	e.mu.Lock()
	id := e.nextWatcher
	e.nextWatcher++
	e.watchers[id] = fn
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.watchers, id)
		e.mu.Unlock()
	}
}

func (e *Engine) Flush(c context.Context) error {
	if e.writer == nil {
		return nil
	}
	return e.writer.flush(c)
}

// Close releases the remote subscription, waits for it to stop delivering
// and lets pending writes drain until c is done. Notifications that arrive
// after Close started are discarded.
func (e *Engine) Close(c context.Context) error {
	logger := e.logger.With().Str(constants.KEY_PROCESS, "closing engine").Logger()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sub := e.sub
	e.sub = nil
	e.mu.Unlock()
	e.markLoaded()

	var errs error
	if sub != nil {
		logger.Debug().Msg("closing remote subscription")
		if err := sub.Close(); err != nil {
			errs = errors.Join(errs, fmt.Errorf("failed closing remote subscription with error=%w", err))
		}
	}
	if e.writer != nil {
		logger.Debug().Msg("draining cart writes")
		if err := e.writer.close(c); err != nil {
			errs = errors.Join(errs, err)
		}
	}
	metric.OpenEngines.Dec()
	if errs != nil {
		logger.Error().Err(errs).Msg(errs.Error())
		return errs
	}
	logger.Info().Msg("closed engine")
	return nil
}

func (e *Engine) mutate(operation string, fn func([]DisplayItem) ([]DisplayItem, bool)) bool {
	logger := e.logger.With().Str(constants.KEY_PROCESS, operation).Logger()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		logger.Warn().Err(inErrors.ErrClosed).Msg("ignoring mutation on closed engine")
		return false
	}
	next, changed := fn(e.items)
	if !changed {
		e.mu.Unlock()
		logger.Debug().Msg("mutation left cart unchanged")
		return false
	}
	e.items = next
	e.deferred = nil
	e.touchLocked()
	e.persistLocked(Record{Items: Sanitize(next)})
	e.version++
	snapshot := e.snapshotLocked()
	watchers := e.watchersLocked()
	e.mu.Unlock()

	metric.Mutations.WithLabelValues(operation, metric.IdentityLabel(e.identity.IsAuthenticated())).Inc()
	logger.Debug().
		Int(constants.KEY_CART_ITEMS_COUNT, len(snapshot.Items)).
		Int64(constants.KEY_CART_TOTAL, snapshot.Total).
		Msg("applied mutation")
	notifyWatchers(watchers, snapshot)
	return true
}

// touchLocked keeps the change marker strictly increasing.
func (e *Engine) touchLocked() {
	now := e.clock()
	if !now.After(e.lastUpdate) {
		now = e.lastUpdate.Add(time.Nanosecond)
	}
	e.lastUpdate = now
}

func (e *Engine) persistLocked(record Record) {
	if e.writer != nil {
		e.writer.enqueue(record)
		return
	}

	logger := e.logger.With().
		Str(constants.KEY_PROCESS, "writing local cart").
		Str(constants.KEY_STORAGE_KEY, constants.LOCAL_KEY_CART).
		Logger()
	if e.local == nil {
		return
	}
	value, err := encodeLocal(record.Items)
	if err == nil {
		err = e.local.SetItem(constants.LOCAL_KEY_CART, value)
	}
	if err != nil {
		err = fmt.Errorf("failed writing local cart with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
	}
}

// readLocal reports ok=false when the slot is absent, unreadable or holds
// something that does not decode.
func (e *Engine) readLocal() ([]StoredItem, bool) {
	logger := e.logger.With().
		Str(constants.KEY_PROCESS, "reading local cart").
		Str(constants.KEY_STORAGE_KEY, constants.LOCAL_KEY_CART).
		Logger()
	if e.local == nil {
		return nil, false
	}

	value, ok, err := e.local.GetItem(constants.LOCAL_KEY_CART)
	if err != nil {
		metric.LocalReadFailures.Inc()
		logger.Warn().Err(err).Msg("failed reading local cart, using empty cart")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	items, err := decodeLocal(value)
	if err != nil {
		metric.LocalReadFailures.Inc()
		logger.Warn().Err(err).Msg("malformed local cart, using empty cart")
		return nil, false
	}
	return items, true
}

func (e *Engine) applyRemote(snap RemoteSnapshot) {
	logger := e.logger.With().
		Str(constants.KEY_PROCESS, "applying remote cart").
		Bool(constants.KEY_DOCUMENT_EXISTS, snap.Exists).
		Logger()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		metric.RemoteNotifications.WithLabelValues("stale").Inc()
		logger.Debug().Msg("discarding notification for closed engine")
		return
	}
	if snap.Err != nil {
		e.applyUnreadableLocked(logger, snap.Err)
		return
	}
	// the queued snapshot overwrites the document, keep only the newest push
	// until the queue is idle
	if e.writer.busy() {
		if !snap.Exists {
			// the pending write creates the document
			e.markLoaded()
			e.mu.Unlock()
			metric.RemoteNotifications.WithLabelValues("stale").Inc()
			logger.Debug().Msg("discarding missing document while local write is pending")
			return
		}
		e.deferred = &snap
		e.mu.Unlock()
		metric.RemoteNotifications.WithLabelValues("deferred").Inc()
		logger.Debug().Msg("deferring notification while local write is pending")
		return
	}
	e.applyRemoteLocked(snap)
	snapshot := e.snapshotLocked()
	watchers := e.watchersLocked()
	e.mu.Unlock()

	logger.Debug().Int(constants.KEY_CART_ITEMS_COUNT, len(snapshot.Items)).Msg("applied remote cart")
	notifyWatchers(watchers, snapshot)
}

// applyUnreadableLocked handles a remote document that could not be read.
// Before the first successful load the cart becomes empty; afterwards, or
// with a local write pending, the cart in memory is kept. It releases e.mu.
func (e *Engine) applyUnreadableLocked(logger zerolog.Logger, err error) {
	if e.isLoaded() || e.writer.busy() {
		e.markLoaded()
		e.mu.Unlock()
		metric.RemoteNotifications.WithLabelValues("unreadable").Inc()
		logger.Warn().Err(err).Msg("remote cart unreadable, keeping cart in memory")
		return
	}
	e.items = []DisplayItem{}
	e.version++
	e.markLoaded()
	snapshot := e.snapshotLocked()
	watchers := e.watchersLocked()
	e.mu.Unlock()

	metric.RemoteNotifications.WithLabelValues("unreadable").Inc()
	logger.Warn().Err(err).Msg("remote cart unreadable, using empty cart")
	notifyWatchers(watchers, snapshot)
}

func (e *Engine) applyRemoteLocked(snap RemoteSnapshot) {
	logger := e.logger.With().Str(constants.KEY_PROCESS, "applying remote cart").Logger()

	e.deferred = nil
	defer e.markLoaded()
	switch {
	case snap.Exists:
		e.items = Rehydrate(snap.Record.Items, e.catalog)
	default:
		stored, ok := e.readLocal()
		switch {
		case !ok:
			e.items = []DisplayItem{}
		case e.policy.MergeGuestCart && len(stored) > 0:
			logger.Info().Int(constants.KEY_CART_ITEMS_COUNT, len(stored)).Msg("merging guest cart into account")
			e.items = Rehydrate(stored, e.catalog)
			e.touchLocked()
			e.writer.enqueue(Record{Items: Sanitize(e.items)})
			if err := e.local.RemoveItem(constants.LOCAL_KEY_CART); err != nil {
				logger.Warn().Err(err).Msg("failed removing merged guest cart")
			}
		}
	}
	metric.RemoteNotifications.WithLabelValues("applied").Inc()
	e.version++
}

// broadcast runs on every write queue transition. Once the queue is idle the
// newest deferred push is applied.
func (e *Engine) broadcast() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if e.deferred != nil && !e.writer.busy() {
		e.applyRemoteLocked(*e.deferred)
	} else {
		e.version++
	}
	snapshot := e.snapshotLocked()
	watchers := e.watchersLocked()
	e.mu.Unlock()
	notifyWatchers(watchers, snapshot)
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Identity:   e.identity,
		Items:      cloneItems(e.items),
		Total:      Total(e.items),
		LastUpdate: e.lastUpdate,
		SyncState:  e.SyncState(),
		Version:    e.version,
	}
}

func (e *Engine) watchersLocked() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(e.watchers))
	for _, fn := range e.watchers {
		out = append(out, fn)
	}
	return out
}

func notifyWatchers(watchers []func(Snapshot), snapshot Snapshot) {
	for _, fn := range watchers {
		fn(snapshot)
	}
}

func cloneItems(items []DisplayItem) []DisplayItem {
	out := make([]DisplayItem, len(items))
	for i, item := range items {
		if item.Icon != nil {
			icon := *item.Icon
			item.Icon = &icon
		}
		out[i] = item
	}
	return out
}
