package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type SelectorOptions struct {
	Catalog *catalog.Catalog
	Local   LocalStorage
	Remote  RemoteStore
	Sync    SyncPolicy
	Clock   func() time.Time
	// OnSwitch runs after a new engine became current.
	OnSwitch func(*Engine)
}

// Selector binds the cart engine to the current identity. Switching closes
// the previous engine before the next one is opened so that a late
// notification for the old identity never reaches the new cart.
type Selector struct {
	opts SelectorOptions

	mu         sync.Mutex
	current    *Engine
	generation uint64
	closed     bool
}

func NewSelector(opts SelectorOptions) *Selector {
	return &Selector{opts: opts}
}

// Engine returns the current engine or nil before the first Switch.
func (s *Selector) Engine() *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Selector) Switch(c context.Context, id identity.Identity) (*Engine, error) {
	c, span := inOtel.Tracer.Start(c, "Selector Switch")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Selector Switch").
		Str(constants.KEY_IDENTITY, id.String()).
		Logger()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		err := fmt.Errorf("failed switching cart to %s with error=%w", id, inErrors.ErrClosed)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if s.current != nil && s.current.Identity() == id {
		return s.current, nil
	}

	if s.current != nil {
		logger = logger.With().Str(constants.KEY_PROCESS, "closing previous engine").Logger()
		logger.Info().Str("previous", s.current.Identity().String()).Msg("closing previous engine")
		if err := s.current.Close(c); err != nil {
			logger.Warn().Err(err).Msg("previous engine closed with pending writes")
		}
		s.current = nil
	}

	s.generation++
	logger = logger.With().
		Str(constants.KEY_PROCESS, "opening engine").
		Uint64(constants.KEY_GENERATION, s.generation).
		Logger()
	logger.Debug().Msg("opening engine")
	e, err := Open(logger.WithContext(c), Options{
		Identity:   id,
		Catalog:    s.opts.Catalog,
		Local:      s.opts.Local,
		Remote:     s.opts.Remote,
		Sync:       s.opts.Sync,
		Clock:      s.opts.Clock,
		Generation: s.generation,
	})
	if err != nil {
		err = fmt.Errorf("failed opening engine with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	s.current = e
	logger.Info().Msg("opened engine")

	if s.opts.OnSwitch != nil {
		s.opts.OnSwitch(e)
	}
	return e, nil
}

// Run follows identities until c is done or the channel closes.
func (s *Selector) Run(c context.Context, identities <-chan identity.Identity) error {
	logger := zerolog.Ctx(c).With().Str(constants.KEY_TAG, "Selector Run").Logger()
	for {
		select {
		case <-c.Done():
			return c.Err()
		case id, ok := <-identities:
			if !ok {
				return c.Err()
			}
			if _, err := s.Switch(c, id); err != nil {
				logger.Error().Err(err).Msg("failed following identity change")
			}
		}
	}
}

func (s *Selector) Close(c context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.current == nil {
		return nil
	}
	err := s.current.Close(c)
	s.current = nil
	return err
}
