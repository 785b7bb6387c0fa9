package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/internal/constants"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// Redis keeps each cart as a JSON string under carts:<uid> and announces
// every overwrite on the carts:<uid>:changes channel.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func redisKey(userID string) string {
	return fmt.Sprintf("%s:%s", constants.COLLECTION_CARTS, userID)
}

func redisChannel(userID string) string {
	return redisKey(userID) + ":changes"
}

func (r *Redis) Replace(c context.Context, userID string, record engine.Record) error {
	c, span := inOtel.Tracer.Start(c, "Redis Replace")
	defer span.End()

	key := redisKey(userID)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Redis Replace").
		Str(constants.KEY_PROCESS, "replacing cart document").
		Str(constants.KEY_USER_ID, userID).
		Str(constants.KEY_CACHE_KEY, key).
		Logger()

	record = normalize(record)
	payload, err := json.Marshal(record)
	if err != nil {
		err = fmt.Errorf("failed marshaling cart document with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Trace().Msg("replacing cart document")
	_, err = r.client.TxPipelined(c, func(pipe redis.Pipeliner) error {
		pipe.Set(c, key, payload, 0)
		pipe.Publish(c, redisChannel(userID), payload)
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed replacing cart document with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Int(constants.KEY_CART_ITEMS_COUNT, len(record.Items)).Msg("replaced cart document")
	return nil
}

func (r *Redis) get(c context.Context, userID string) (engine.RemoteSnapshot, error) {
	payload, err := r.client.Get(c, redisKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return engine.RemoteSnapshot{}, nil
	}
	if err != nil {
		return engine.RemoteSnapshot{}, fmt.Errorf("failed getting cart document with error=%w", err)
	}
	return decodeSnapshot(payload)
}

func (r *Redis) Subscribe(c context.Context, userID string, fn func(engine.RemoteSnapshot)) (engine.Subscription, error) {
	c, span := inOtel.Tracer.Start(c, "Redis Subscribe")
	defer span.End()

	channel := redisChannel(userID)
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Redis Subscribe").
		Str(constants.KEY_PROCESS, "subscribing cart channel").
		Str(constants.KEY_USER_ID, userID).
		Str(constants.KEY_CHANNEL, channel).
		Logger()

	logger.Debug().Msg("subscribing cart channel")
	pubsub := r.client.Subscribe(c, channel)
	if _, err := pubsub.Receive(c); err != nil {
		pubsub.Close()
		err = fmt.Errorf("failed subscribing cart channel with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Debug().Msg("subscribed cart channel")

	ctx, cancel := context.WithCancel(logger.WithContext(context.WithoutCancel(c)))
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel, done: make(chan struct{})}
	messages := pubsub.Channel()

	go func() {
		defer close(sub.done)
		logger := zerolog.Ctx(ctx).With().Str(constants.KEY_PROCESS, "delivering cart changes").Logger()

		// the document is read after the subscription is live so no change
		// between the two is missed
		snap, err := r.get(ctx, userID)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg(err.Error())
			snap = engine.RemoteSnapshot{Err: err}
		}
		fn(snap)

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				snap, err := decodeSnapshot([]byte(msg.Payload))
				if err != nil {
					logger.Warn().Err(err).Msg("received malformed cart change")
					snap = engine.RemoteSnapshot{Err: err}
				}
				if ctx.Err() != nil {
					return
				}
				fn(snap)
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
	})
	<-s.done
	if err != nil {
		return fmt.Errorf("failed closing cart channel with error=%w", err)
	}
	return nil
}

func decodeSnapshot(payload []byte) (engine.RemoteSnapshot, error) {
	record := engine.Record{}
	if err := json.Unmarshal(payload, &record); err != nil {
		return engine.RemoteSnapshot{}, fmt.Errorf("failed unmarshaling cart document with error=%w", err)
	}
	return engine.RemoteSnapshot{Exists: true, Record: normalize(record)}, nil
}

func normalize(record engine.Record) engine.Record {
	if record.Items == nil {
		record.Items = []engine.StoredItem{}
	}
	return record
}
