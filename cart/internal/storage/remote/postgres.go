package remote

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/infra"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	upsertCart = `INSERT INTO carts (user_id, items, updated_at) VALUES ($1, $2, now())
ON CONFLICT (user_id) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`
	selectCart = `SELECT items FROM carts WHERE user_id = $1`
	notifyCart = `SELECT pg_notify($1, $2)`
)

// Postgres keeps carts in the carts table and announces overwrites with
// NOTIFY on the cart_changes channel, the payload being the user id. Every
// subscription listens on its own connection.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Migrate creates the carts table.
func (p *Postgres) Migrate(c context.Context) error {
	return infra.Migrate(c, p.pool, migrations, "migrations")
}

func (p *Postgres) Replace(c context.Context, userID string, record engine.Record) error {
	c, span := inOtel.Tracer.Start(c, "Postgres Replace")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Postgres Replace").
		Str(constants.KEY_PROCESS, "replacing cart row").
		Str(constants.KEY_USER_ID, userID).
		Logger()

	record = normalize(record)
	items, err := json.Marshal(record.Items)
	if err != nil {
		err = fmt.Errorf("failed marshaling cart items with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Trace().Msg("replacing cart row")
	// notifications are delivered on commit
	err = pgx.BeginFunc(c, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(c, upsertCart, userID, items); err != nil {
			return fmt.Errorf("failed upserting cart with error=%w", err)
		}
		if _, err := tx.Exec(c, notifyCart, constants.CHANNEL_CART, userID); err != nil {
			return fmt.Errorf("failed notifying cart change with error=%w", err)
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed replacing cart row with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Int(constants.KEY_CART_ITEMS_COUNT, len(record.Items)).Msg("replaced cart row")
	return nil
}

func (p *Postgres) get(c context.Context, userID string) (engine.RemoteSnapshot, error) {
	var items []byte
	err := p.pool.QueryRow(c, selectCart, userID).Scan(&items)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.RemoteSnapshot{}, nil
	}
	if err != nil {
		return engine.RemoteSnapshot{}, fmt.Errorf("failed selecting cart with error=%w", err)
	}
	record := engine.Record{}
	if err = json.Unmarshal(items, &record.Items); err != nil {
		return engine.RemoteSnapshot{}, fmt.Errorf("failed unmarshaling cart items with error=%w", err)
	}
	return engine.RemoteSnapshot{Exists: true, Record: normalize(record)}, nil
}

func (p *Postgres) Subscribe(c context.Context, userID string, fn func(engine.RemoteSnapshot)) (engine.Subscription, error) {
	c, span := inOtel.Tracer.Start(c, "Postgres Subscribe")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Postgres Subscribe").
		Str(constants.KEY_PROCESS, "listening cart changes").
		Str(constants.KEY_USER_ID, userID).
		Str(constants.KEY_CHANNEL, constants.CHANNEL_CART).
		Logger()

	logger.Debug().Msg("connecting listener")
	conn, err := pgx.ConnectConfig(c, p.pool.Config().ConnConfig.Copy())
	if err != nil {
		err = fmt.Errorf("failed connecting listener with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if _, err = conn.Exec(c, "LISTEN "+pgx.Identifier{constants.CHANNEL_CART}.Sanitize()); err != nil {
		conn.Close(context.Background())
		err = fmt.Errorf("failed listening cart changes with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Debug().Msg("listening cart changes")

	ctx, cancel := context.WithCancel(logger.WithContext(context.WithoutCancel(c)))
	sub := &postgresSubscription{conn: conn, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(sub.done)
		logger := zerolog.Ctx(ctx).With().Str(constants.KEY_PROCESS, "delivering cart changes").Logger()

		deliver := func() {
			snap, err := p.get(ctx, userID)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Error().Err(err).Msg(err.Error())
				snap = engine.RemoteSnapshot{Err: err}
			}
			fn(snap)
		}

		deliver()
		for {
			notification, err := conn.WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error().Err(err).Msg("failed waiting for cart change")
				}
				return
			}
			if notification.Payload != userID {
				continue
			}
			deliver()
		}
	}()

	return sub, nil
}

type postgresSubscription struct {
	conn   *pgx.Conn
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *postgresSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		<-s.done
		err = s.conn.Close(context.Background())
	})
	<-s.done
	if err != nil {
		return fmt.Errorf("failed closing listener with error=%w", err)
	}
	return nil
}
