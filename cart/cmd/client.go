package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/cart/internal/service"
	"github.com/Alturino/storefront/cart/internal/storage/local"
	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

// session is one client process: a single device whose anonymous cart and
// auth token live in the local directory.
type session struct {
	cfg     *config.Config
	backend *backend
	local   *local.File
	signal  *identity.Signal
	service *service.CartService
}

func openSession(c context.Context, cfg *config.Config) (*session, error) {
	c, span := inOtel.Tracer.Start(c, "cmd openSession")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_APP_NAME, constants.APP_CART_CLIENT).
		Str(constants.KEY_TAG, "cmd openSession").
		Logger()
	c = logger.WithContext(c)

	b, err := openBackend(c, cfg)
	if err != nil {
		inOtel.RecordError(err, span)
		return nil, err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "opening local storage").Logger()
	store, err := local.NewFile(cfg.Storage.LocalDir)
	if err != nil {
		b.Close()
		err = fmt.Errorf("failed opening local storage with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Debug().Str("dir", store.Dir()).Msg("opened local storage")

	svc, err := service.NewCartService(service.Options{
		Remote:          b.remote,
		Sync:            syncPolicy(cfg.Sync),
		ProcessingDelay: cfg.Checkout.ProcessingDelay,
		TaxRate:         cfg.Checkout.TaxRate,
		NewLocal:        func(string) (engine.LocalStorage, error) { return store, nil },
	})
	if err != nil {
		b.Close()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}

	s := &session{cfg: cfg, backend: b, local: store, signal: identity.NewSignal(b.verifier), service: svc}
	s.restore(c)
	return s, nil
}

// restore signs the stored token back in. A token that no longer verifies
// is dropped and the session continues anonymously.
func (s *session) restore(c context.Context) {
	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "session restore").
		Str(constants.KEY_STORAGE_KEY, constants.LOCAL_KEY_AUTH).
		Logger()

	token, ok, err := s.local.GetItem(constants.LOCAL_KEY_AUTH)
	if err != nil {
		logger.Warn().Err(err).Msg("failed reading stored token")
		return
	}
	if !ok || token == "" {
		return
	}
	if _, err = s.signal.SignIn(c, token); err != nil {
		logger.Warn().Err(err).Msg("dropping stored token")
		if err = s.local.RemoveItem(constants.LOCAL_KEY_AUTH); err != nil {
			logger.Warn().Err(err).Msg("failed removing stored token")
		}
	}
}

func (s *session) signIn(c context.Context, token string) (identity.Profile, error) {
	profile, err := s.signal.SignIn(c, token)
	if err != nil {
		return identity.Profile{}, err
	}
	if err = s.local.SetItem(constants.LOCAL_KEY_AUTH, token); err != nil {
		return identity.Profile{}, fmt.Errorf("failed storing token with error=%w", err)
	}
	return profile, nil
}

func (s *session) signOut() error {
	s.signal.SignOut()
	if err := s.local.RemoveItem(constants.LOCAL_KEY_AUTH); err != nil {
		return fmt.Errorf("failed removing token with error=%w", err)
	}
	return nil
}

func (s *session) Close(c context.Context) error {
	c, cancel := context.WithTimeout(context.WithoutCancel(c), shutdownTimeout)
	defer cancel()
	return errors.Join(s.service.Close(c), s.backend.Close())
}

// NewClientCommands returns the cart and auth command trees. Both open a
// session before running and drain pending cart writes afterwards.
func NewClientCommands() []*cobra.Command {
	var s *session
	open := func(cmd *cobra.Command, args []string) error {
		c := cmd.Context()
		cfg, err := config.Load(c, constants.APP_CART_CLIENT)
		if err != nil {
			return err
		}
		logger := log.Console(cfg.Application.LogFile, cfg.Application).
			With().
			Str(constants.KEY_APP_NAME, constants.APP_CART_CLIENT).
			Logger()
		c = logger.WithContext(c)
		cmd.SetContext(c)
		s, err = openSession(c, cfg)
		return err
	}
	closeSession := func(cmd *cobra.Command, args []string) error {
		if s == nil {
			return nil
		}
		return s.Close(cmd.Context())
	}
	current := func() identity.Identity { return s.signal.Current() }

	cartCmd := &cobra.Command{
		Use:                "cart",
		Short:              "Manage the cart of this device",
		PersistentPreRunE:  open,
		PersistentPostRunE: closeSession,
	}
	cartCmd.AddCommand(
		&cobra.Command{
			Use:   "catalog",
			Short: "List the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				renderCatalog(cmd.OutOrStdout(), s.service.Catalog(cmd.Context()))
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "Show the cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cart, err := s.service.GetCart(cmd.Context(), constants.DEFAULT_DEVICE_ID, current())
				if err != nil {
					return err
				}
				renderCart(cmd.OutOrStdout(), cart)
				return nil
			},
		},
		&cobra.Command{
			Use:   "add <itemId>",
			Short: "Add a catalog item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				_, cart, err := s.service.AddItem(
					cmd.Context(),
					constants.DEFAULT_DEVICE_ID,
					current(),
					request.AddCartItem{ItemID: args[0]},
				)
				if err != nil {
					return err
				}
				renderCart(cmd.OutOrStdout(), cart)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <instanceId>",
			Short: "Remove a cart item by its instance id",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cart, err := s.service.RemoveItem(
					cmd.Context(),
					constants.DEFAULT_DEVICE_ID,
					current(),
					request.RemoveCartItem{InstanceID: args[0]},
				)
				if err != nil {
					return err
				}
				renderCart(cmd.OutOrStdout(), cart)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove-at <index>",
			Short: "Remove the cart item at index",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				index, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("failed parsing index=%s with error=%w", args[0], err)
				}
				cart, err := s.service.RemoveItemAt(
					cmd.Context(),
					constants.DEFAULT_DEVICE_ID,
					current(),
					request.RemoveCartItemAt{Index: index},
				)
				if err != nil {
					return err
				}
				renderCart(cmd.OutOrStdout(), cart)
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Empty the cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cart, err := s.service.ClearCart(cmd.Context(), constants.DEFAULT_DEVICE_ID, current())
				if err != nil {
					return err
				}
				renderCart(cmd.OutOrStdout(), cart)
				return nil
			},
		},
		&cobra.Command{
			Use:   "checkout",
			Short: "Pay for the cart",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("processing payment..."))
				receipt, err := s.service.Checkout(cmd.Context(), constants.DEFAULT_DEVICE_ID, current())
				if err != nil {
					return err
				}
				renderReceipt(cmd.OutOrStdout(), receipt)
				return nil
			},
		},
		&cobra.Command{
			Use:   "watch",
			Short: "Print the cart every time it changes",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return watch(cmd, s)
			},
		},
	)

	authCmd := &cobra.Command{
		Use:                "auth",
		Short:              "Sign this device in or out",
		PersistentPreRunE:  open,
		PersistentPostRunE: closeSession,
	}
	var login request.Login
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a token, or by user id when tokens are issued locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cmd.Context()
			validate := validator.New(validator.WithRequiredStructEnabled())
			if err := validate.StructCtx(c, login); err != nil {
				return fmt.Errorf("failed validating login with error=%w", err)
			}
			token := login.Token
			if token == "" {
				if s.backend.authority == nil {
					return inErrors.ErrLocalSignIn
				}
				issued, err := s.backend.authority.Issue(c, identity.Profile{UID: login.UserID})
				if err != nil {
					return err
				}
				token = issued
			}
			profile, err := s.signIn(c, token)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", profile.Identity())
			return nil
		},
	}
	loginCmd.Flags().StringVar(&login.Token, "token", "", "id token issued by the auth provider")
	loginCmd.Flags().StringVar(&login.UserID, "user", "", "user id to issue a local token for")
	loginCmd.MarkFlagsMutuallyExclusive("token", "user")
	authCmd.AddCommand(
		loginCmd,
		&cobra.Command{
			Use:   "logout",
			Short: "Sign out; the anonymous cart of this device is kept",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := s.signOut(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return nil
			},
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the current identity",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				fmt.Fprintln(cmd.OutOrStdout(), current())
				return nil
			},
		},
	)

	return []*cobra.Command{cartCmd, authCmd}
}

// watch follows the session identity with its own selector and prints every
// snapshot until interrupted. Snapshots older than the last printed one are
// skipped.
func watch(cmd *cobra.Command, s *session) error {
	c := cmd.Context()
	logger := zerolog.Ctx(c).With().Str(constants.KEY_TAG, "cmd watch").Logger()

	var (
		mu         sync.Mutex
		generation uint64
		version    uint64
	)
	show := func(e *engine.Engine, snapshot engine.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if e.Generation() < generation || (e.Generation() == generation && snapshot.Version <= version) {
			return
		}
		generation, version = e.Generation(), snapshot.Version
		renderCart(cmd.OutOrStdout(), service.ToCartResponse(snapshot))
	}

	selector := engine.NewSelector(engine.SelectorOptions{
		Catalog: catalog.Inventory(),
		Local:   s.local,
		Remote:  s.backend.remote,
		Sync:    syncPolicy(s.cfg.Sync),
		OnSwitch: func(e *engine.Engine) {
			e.Watch(func(snapshot engine.Snapshot) { show(e, snapshot) })
			go func() {
				if err := e.WaitLoaded(c); err == nil {
					show(e, e.Snapshot())
				}
			}()
		},
	})
	defer func() {
		c, cancel := context.WithTimeout(context.WithoutCancel(c), shutdownTimeout)
		defer cancel()
		if err := selector.Close(c); err != nil {
			logger.Error().Err(err).Msg(err.Error())
		}
	}()

	logger.Info().Msg("watching cart")
	err := selector.Run(c, s.signal.Watch(c))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
