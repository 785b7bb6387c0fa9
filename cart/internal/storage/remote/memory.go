// Package remote holds the per user cart document stores.
package remote

import (
	"context"
	"sync"

	"github.com/Alturino/storefront/cart/internal/engine"
)

// Memory is an in process document store. Every subscription gets its own
// delivery goroutine; a slow subscriber only sees the newest document.
type Memory struct {
	mu       sync.Mutex
	docs     map[string]engine.Record
	subs     map[string]map[*memorySubscription]struct{}
	failures int
	failErr  error
}

func NewMemory() *Memory {
	return &Memory{
		docs: map[string]engine.Record{},
		subs: map[string]map[*memorySubscription]struct{}{},
	}
}

// FailNext makes the next n Replace calls return err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
	m.failErr = err
}

func (m *Memory) Document(userID string) (engine.Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.docs[userID]
	if !ok {
		return engine.Record{}, false
	}
	return cloneRecord(record), true
}

func (m *Memory) Replace(c context.Context, userID string, record engine.Record) error {
	if err := c.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return m.failErr
	}
	record = cloneRecord(record)
	m.docs[userID] = record
	for sub := range m.subs[userID] {
		sub.offer(engine.RemoteSnapshot{Exists: true, Record: cloneRecord(record)})
	}
	return nil
}

func (m *Memory) Subscribe(c context.Context, userID string, fn func(engine.RemoteSnapshot)) (engine.Subscription, error) {
	if err := c.Err(); err != nil {
		return nil, err
	}

	sub := &memorySubscription{
		store:   m,
		userID:  userID,
		fn:      fn,
		mailbox: make(chan engine.RemoteSnapshot, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.subs[userID] == nil {
		m.subs[userID] = map[*memorySubscription]struct{}{}
	}
	m.subs[userID][sub] = struct{}{}
	record, ok := m.docs[userID]
	sub.offer(engine.RemoteSnapshot{Exists: ok, Record: cloneRecord(record)})
	m.mu.Unlock()

	go sub.run()
	return sub, nil
}

type memorySubscription struct {
	store   *Memory
	userID  string
	fn      func(engine.RemoteSnapshot)
	mailbox chan engine.RemoteSnapshot
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// offer must be called with the store lock held.
func (s *memorySubscription) offer(snap engine.RemoteSnapshot) {
	select {
	case <-s.mailbox:
	default:
	}
	s.mailbox <- snap
}

func (s *memorySubscription) run() {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case snap := <-s.mailbox:
			select {
			case <-s.stop:
				return
			default:
			}
			s.fn(snap)
		}
	}
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.subs[s.userID], s)
		if len(s.store.subs[s.userID]) == 0 {
			delete(s.store.subs, s.userID)
		}
		s.store.mu.Unlock()
		close(s.stop)
	})
	<-s.done
	return nil
}

func cloneRecord(record engine.Record) engine.Record {
	items := make([]engine.StoredItem, len(record.Items))
	copy(items, record.Items)
	return engine.Record{Items: items}
}
