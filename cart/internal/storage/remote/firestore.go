package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/internal/constants"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// Firestore keeps carts under carts/<uid> and follows them with document
// snapshot listeners.
type Firestore struct {
	client     *firestore.Client
	collection string
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client, collection: constants.COLLECTION_CARTS}
}

func (f *Firestore) doc(userID string) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(userID)
}

func (f *Firestore) Replace(c context.Context, userID string, record engine.Record) error {
	c, span := inOtel.Tracer.Start(c, "Firestore Replace")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Firestore Replace").
		Str(constants.KEY_PROCESS, "replacing cart document").
		Str(constants.KEY_USER_ID, userID).
		Logger()

	record = normalize(record)
	logger.Trace().Msg("replacing cart document")
	if _, err := f.doc(userID).Set(c, record); err != nil {
		err = fmt.Errorf("failed replacing cart document with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Int(constants.KEY_CART_ITEMS_COUNT, len(record.Items)).Msg("replaced cart document")
	return nil
}

func (f *Firestore) Subscribe(c context.Context, userID string, fn func(engine.RemoteSnapshot)) (engine.Subscription, error) {
	c, span := inOtel.Tracer.Start(c, "Firestore Subscribe")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Firestore Subscribe").
		Str(constants.KEY_PROCESS, "listening cart document").
		Str(constants.KEY_USER_ID, userID).
		Logger()

	ctx, cancel := context.WithCancel(logger.WithContext(context.WithoutCancel(c)))
	iter := f.doc(userID).Snapshots(ctx)
	sub := &firestoreSubscription{iter: iter, cancel: cancel, done: make(chan struct{})}
	logger.Debug().Msg("listening cart document")

	go func() {
		defer close(sub.done)
		for {
			snap, err := iter.Next()
			switch {
			case ctx.Err() != nil:
				return
			case status.Code(err) == codes.NotFound:
				fn(engine.RemoteSnapshot{})
				continue
			case status.Code(err) == codes.Canceled:
				return
			case err != nil:
				err = fmt.Errorf("failed listening cart document with error=%w", err)
				logger.Error().Err(err).Msg(err.Error())
				fn(engine.RemoteSnapshot{Err: err})
				return
			}

			if !snap.Exists() {
				fn(engine.RemoteSnapshot{})
				continue
			}
			record, err := decodeDocument(snap.Data())
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn().Err(err).Msg("received malformed cart document")
				fn(engine.RemoteSnapshot{Err: err})
				continue
			}
			fn(engine.RemoteSnapshot{Exists: true, Record: record})
		}
	}()

	return sub, nil
}

// decodeDocument goes through json so ids stored as numbers by older clients
// decode the same way they do from the other backends.
func decodeDocument(data map[string]interface{}) (engine.Record, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return engine.Record{}, fmt.Errorf("failed marshaling cart document with error=%w", err)
	}
	record := engine.Record{}
	if err = json.Unmarshal(payload, &record); err != nil {
		return engine.Record{}, fmt.Errorf("failed unmarshaling cart document with error=%w", err)
	}
	return normalize(record), nil
}

type firestoreSubscription struct {
	iter   *firestore.DocumentSnapshotIterator
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *firestoreSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.iter.Stop()
	})
	<-s.done
	return nil
}
