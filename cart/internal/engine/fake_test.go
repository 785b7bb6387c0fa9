package engine

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errUnavailable = errors.New("backend unavailable")

type fakeLocal struct {
	mu      sync.Mutex
	values  map[string]string
	readErr error
}

func newFakeLocal() *fakeLocal {
	return &fakeLocal{values: map[string]string{}}
}

func (f *fakeLocal) GetItem(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return "", false, f.readErr
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeLocal) SetItem(key string, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *fakeLocal) RemoveItem(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeLocal) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

type fakeSubscriber struct {
	userID string
	fn     func(RemoteSnapshot)
}

// fakeRemote delivers notifications synchronously on the calling goroutine.
type fakeRemote struct {
	mu        sync.Mutex
	docs      map[string]Record
	subs      map[int]fakeSubscriber
	nextSub   int
	failures  int
	writes    []Record
	writeHook func(Record)
	noEcho    bool
	readErr   error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{docs: map[string]Record{}, subs: map[int]fakeSubscriber{}}
}

func (f *fakeRemote) Subscribe(_ context.Context, userID string, fn func(RemoteSnapshot)) (Subscription, error) {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fakeSubscriber{userID: userID, fn: fn}
	record, ok := f.docs[userID]
	readErr := f.readErr
	f.mu.Unlock()

	if readErr != nil {
		fn(RemoteSnapshot{Err: readErr})
	} else {
		fn(RemoteSnapshot{Exists: ok, Record: record})
	}
	return &fakeSubscription{remote: f, id: id}, nil
}

func (f *fakeRemote) Replace(_ context.Context, userID string, record Record) error {
	f.mu.Lock()
	hook := f.writeHook
	echo := !f.noEcho
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errUnavailable
	}
	f.docs[userID] = record
	f.writes = append(f.writes, record)
	f.mu.Unlock()

	if hook != nil {
		hook(record)
	}
	if echo {
		f.deliver(userID, RemoteSnapshot{Exists: true, Record: record})
	}
	return nil
}

// push simulates a write made by another device.
func (f *fakeRemote) push(userID string, record Record) {
	f.mu.Lock()
	f.docs[userID] = record
	f.mu.Unlock()
	f.deliver(userID, RemoteSnapshot{Exists: true, Record: record})
}

func (f *fakeRemote) deliver(userID string, snap RemoteSnapshot) {
	f.mu.Lock()
	fns := []func(RemoteSnapshot){}
	for _, sub := range f.subs {
		if sub.userID == userID {
			fns = append(fns, sub.fn)
		}
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

func (f *fakeRemote) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeRemote) doc(userID string) (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.docs[userID]
	return r, ok
}

func (f *fakeRemote) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

type fakeSubscription struct {
	remote *fakeRemote
	id     int
}

func (s *fakeSubscription) Close() error {
	s.remote.mu.Lock()
	defer s.remote.mu.Unlock()
	delete(s.remote.subs, s.id)
	return nil
}

// fixedClock never advances.
func fixedClock() func() time.Time {
	t := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func fastPolicy() SyncPolicy {
	return SyncPolicy{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

// manualRemote delivers only when the test says so.
type manualRemote struct {
	mu sync.Mutex
	fn func(RemoteSnapshot)
}

func (m *manualRemote) Subscribe(_ context.Context, _ string, fn func(RemoteSnapshot)) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m, nil
}

func (m *manualRemote) Replace(context.Context, string, Record) error { return nil }

func (m *manualRemote) Close() error { return nil }

func (m *manualRemote) deliver(snap RemoteSnapshot) {
	m.mu.Lock()
	fn := m.fn
	m.mu.Unlock()
	fn(snap)
}
