package engine

import (
	"context"
	"encoding/json"
	"fmt"
)

// LocalStorage is a device local key/value slot store with the semantics of
// a browser's localStorage.
type LocalStorage interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key string, value string) error
	RemoveItem(key string) error
}

// RemoteSnapshot is one push from a remote document subscription. Err is set
// when the document could not be read or decoded.
type RemoteSnapshot struct {
	Exists bool
	Record Record
	Err    error
}

// RemoteStore is a per user document store with live subscriptions and
// wholesale overwrite. Implementations deliver the current state of the
// document as the first notification of every subscription, or a snapshot
// carrying Err when it cannot be read.
type RemoteStore interface {
	Subscribe(c context.Context, userID string, fn func(RemoteSnapshot)) (Subscription, error)
	Replace(c context.Context, userID string, record Record) error
}

// Subscription.Close returns only after the notification callback can no
// longer be invoked.
type Subscription interface {
	Close() error
}

func encodeLocal(items []StoredItem) (string, error) {
	if items == nil {
		items = []StoredItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("failed marshaling local cart with error=%w", err)
	}
	return string(b), nil
}

func decodeLocal(value string) ([]StoredItem, error) {
	items := []StoredItem{}
	if err := json.Unmarshal([]byte(value), &items); err != nil {
		return nil, fmt.Errorf("failed unmarshaling local cart with error=%w", err)
	}
	return items, nil
}
