// Package identity models who the current session belongs to and fans out
// changes of that state to whoever owns identity scoped resources.
package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/Alturino/storefront/internal/constants"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// Identity is either anonymous (zero value) or bound to a user id.
type Identity struct {
	userID string
}

func Anonymous() Identity { return Identity{} }

func Authenticated(userID string) Identity {
	return Identity{userID: strings.TrimSpace(userID)}
}

func (i Identity) UserID() string { return i.userID }

func (i Identity) IsAuthenticated() bool { return i.userID != "" }

func (i Identity) String() string {
	if !i.IsAuthenticated() {
		return "anonymous"
	}
	return "user:" + i.userID
}

// Profile is the minimal user shape handed out by the auth provider.
type Profile struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
	PhotoURL    string `json:"photoURL,omitempty"`
}

func (p *Profile) Identity() Identity {
	if p == nil || strings.TrimSpace(p.UID) == "" {
		return Anonymous()
	}
	return Authenticated(p.UID)
}

type Verifier interface {
	Verify(c context.Context, token string) (Profile, error)
}

// Signal holds the current auth state. Watchers receive the identity that is
// current when they start watching and every change after that; a slow
// watcher only ever sees the latest value.
type Signal struct {
	mu       sync.Mutex
	verifier Verifier
	profile  *Profile
	nextID   int
	watchers map[int]chan Identity
}

func NewSignal(verifier Verifier) *Signal {
	return &Signal{verifier: verifier, watchers: map[int]chan Identity{}}
}

func (s *Signal) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile.Identity()
}

func (s *Signal) Profile() *Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profile == nil {
		return nil
	}
	p := *s.profile
	return &p
}

func (s *Signal) SignIn(c context.Context, token string) (Profile, error) {
	c, span := inOtel.Tracer.Start(c, "Signal SignIn")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "Signal SignIn").
		Str(constants.KEY_PROCESS, "verifying token").
		Logger()

	if s.verifier == nil {
		err := fmt.Errorf("failed signing in with error=%w", ErrNoVerifier)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Profile{}, err
	}

	logger.Debug().Msg("verifying token")
	c = logger.WithContext(c)
	profile, err := s.verifier.Verify(c, token)
	if err != nil {
		err = fmt.Errorf("failed verifying token with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Profile{}, err
	}
	logger.Info().Str(constants.KEY_USER_ID, profile.UID).Msg("verified token")

	s.Set(&profile)
	return profile, nil
}

func (s *Signal) SignOut() { s.Set(nil) }

// Set replaces the profile and notifies watchers when the identity changed.
func (s *Signal) Set(profile *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.profile.Identity()
	if profile != nil {
		p := *profile
		s.profile = &p
	} else {
		s.profile = nil
	}
	after := s.profile.Identity()
	if before == after {
		return
	}
	for _, ch := range s.watchers {
		offer(ch, after)
	}
}

func (s *Signal) Watch(c context.Context) <-chan Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Identity, 1)
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.profile.Identity()

	go func() {
		<-c.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.watchers, id)
		close(ch)
	}()
	return ch
}

// offer replaces any unread value so the channel always holds the latest.
func offer(ch chan Identity, id Identity) {
	select {
	case <-ch:
	default:
	}
	ch <- id
}

type identityKey struct{}

func WithContext(c context.Context, id Identity) context.Context {
	return context.WithValue(c, identityKey{}, id)
}

// FromContext returns Anonymous when c carries no identity.
func FromContext(c context.Context) Identity {
	id, _ := c.Value(identityKey{}).(Identity)
	return id
}
