package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/storefront/cart/internal/engine"
	"github.com/Alturino/storefront/cart/internal/storage/local"
	"github.com/Alturino/storefront/cart/pkg/request"
	"github.com/Alturino/storefront/cart/pkg/response"
	"github.com/Alturino/storefront/internal/catalog"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/identity"
	inOtel "github.com/Alturino/storefront/internal/otel"
)

type Options struct {
	Catalog         *catalog.Catalog
	Remote          engine.RemoteStore
	Sync            engine.SyncPolicy
	ProcessingDelay time.Duration
	TaxRate         string
	// NewLocal opens the local slot store of a device. Devices get an in
	// memory store when nil.
	NewLocal func(deviceID string) (engine.LocalStorage, error)
	Clock    func() time.Time
}

type device struct {
	mu       sync.Mutex
	selector *engine.Selector
}

// CartService keeps one identity scoped cart per device and switches it to
// whoever the current request belongs to.
type CartService struct {
	catalog *catalog.Catalog
	remote  engine.RemoteStore
	sync    engine.SyncPolicy
	delay   time.Duration
	taxRate decimal.Decimal
	local   func(deviceID string) (engine.LocalStorage, error)
	clock   func() time.Time

	mu      sync.Mutex
	devices map[string]*device
	closed  bool
}

func NewCartService(opts Options) (*CartService, error) {
	taxRate := decimal.Zero
	if opts.TaxRate != "" {
		rate, err := decimal.NewFromString(opts.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("failed parsing tax rate=%s with error=%w", opts.TaxRate, err)
		}
		taxRate = rate
	}
	if opts.NewLocal == nil {
		opts.NewLocal = func(string) (engine.LocalStorage, error) { return local.NewMemory(), nil }
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Inventory()
	}
	return &CartService{
		catalog: opts.Catalog,
		remote:  opts.Remote,
		sync:    opts.Sync,
		delay:   opts.ProcessingDelay,
		taxRate: taxRate,
		local:   opts.NewLocal,
		clock:   opts.Clock,
		devices: map[string]*device{},
	}, nil
}

func (svc *CartService) device(deviceID string) (*device, error) {
	if deviceID == "" {
		deviceID = constants.DEFAULT_DEVICE_ID
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return nil, inErrors.ErrClosed
	}
	if d, ok := svc.devices[deviceID]; ok {
		return d, nil
	}
	store, err := svc.local(deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed opening local storage of device=%s with error=%w", deviceID, err)
	}
	d := &device{selector: engine.NewSelector(engine.SelectorOptions{
		Catalog: svc.catalog,
		Local:   store,
		Remote:  svc.remote,
		Sync:    svc.sync,
		Clock:   svc.clock,
	})}
	svc.devices[deviceID] = d
	return d, nil
}

// withEngine runs fn on the device's engine bound to id, once its cart is
// loaded, while holding the device lock.
func (svc *CartService) withEngine(
	c context.Context,
	deviceID string,
	id identity.Identity,
	fn func(*engine.Engine) error,
) error {
	d, err := svc.device(deviceID)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	e, err := d.selector.Switch(c, id)
	if err != nil {
		return err
	}
	if err = e.WaitLoaded(c); err != nil {
		return err
	}
	return fn(e)
}

func (svc *CartService) Catalog(c context.Context) []response.CatalogEntry {
	_, span := inOtel.Tracer.Start(c, "CartService Catalog")
	defer span.End()

	entries := svc.catalog.Entries()
	out := make([]response.CatalogEntry, len(entries))
	for i, e := range entries {
		out[i] = response.CatalogEntry{
			ID:          e.ID.String(),
			Name:        e.Name,
			Category:    string(e.Category),
			Rarity:      string(e.Rarity),
			Price:       e.Price,
			Status:      string(e.Status),
			Description: e.Description,
		}
		if e.Icon != nil {
			out[i].Icon = e.Icon.Name
		}
	}
	return out
}

func (svc *CartService) GetCart(c context.Context, deviceID string, id identity.Identity) (response.Cart, error) {
	c, span := inOtel.Tracer.Start(c, "CartService GetCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartService GetCart").
		Str(constants.KEY_DEVICE_ID, deviceID).
		Str(constants.KEY_IDENTITY, id.String()).
		Logger()

	var cart response.Cart
	err := svc.withEngine(logger.WithContext(c), deviceID, id, func(e *engine.Engine) error {
		cart = ToCartResponse(e.Snapshot())
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed getting cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	return cart, nil
}

func (svc *CartService) AddItem(
	c context.Context,
	deviceID string,
	id identity.Identity,
	param request.AddCartItem,
) (response.Item, response.Cart, error) {
	c, span := inOtel.Tracer.Start(
		c,
		"CartService AddItem",
		trace.WithAttributes(attribute.String(constants.KEY_ITEM_ID, param.ItemID)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartService AddItem").
		Str(constants.KEY_DEVICE_ID, deviceID).
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_ITEM_ID, param.ItemID).
		Logger()

	logger = logger.With().Str(constants.KEY_PROCESS, "finding catalog item").Logger()
	logger.Debug().Msg("finding catalog item")
	entry, ok := svc.catalog.Find(catalog.ID(param.ItemID))
	if !ok {
		err := fmt.Errorf("failed finding item=%s with error=%w", param.ItemID, inErrors.ErrItemNotFound)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Item{}, response.Cart{}, err
	}
	if !entry.Purchasable() {
		err := fmt.Errorf("failed adding item=%s with error=%w", param.ItemID, inErrors.ErrItemUnavailable)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Item{}, response.Cart{}, err
	}
	logger.Debug().Msg("found catalog item")

	logger = logger.With().Str(constants.KEY_PROCESS, "adding cart item").Logger()
	var item response.Item
	var cart response.Cart
	err := svc.withEngine(logger.WithContext(c), deviceID, id, func(e *engine.Engine) error {
		item = toItem(e.AddEntry(entry))
		cart = ToCartResponse(e.Snapshot())
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed adding cart item with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Item{}, response.Cart{}, err
	}
	logger.Info().Str(constants.KEY_INSTANCE_ID, item.InstanceID).Msg("added cart item")
	return item, cart, nil
}

func (svc *CartService) RemoveItem(
	c context.Context,
	deviceID string,
	id identity.Identity,
	param request.RemoveCartItem,
) (response.Cart, error) {
	c, span := inOtel.Tracer.Start(c, "CartService RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartService RemoveItem").
		Str(constants.KEY_DEVICE_ID, deviceID).
		Str(constants.KEY_IDENTITY, id.String()).
		Str(constants.KEY_INSTANCE_ID, param.InstanceID).
		Logger()

	var cart response.Cart
	err := svc.withEngine(logger.WithContext(c), deviceID, id, func(e *engine.Engine) error {
		if !e.Remove(param.InstanceID) {
			return inErrors.ErrCartItemNotFound
		}
		cart = ToCartResponse(e.Snapshot())
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Msg("removed cart item")
	return cart, nil
}

// RemoveItemAt removes by position. An index outside the cart leaves it
// unchanged and is not an error.
func (svc *CartService) RemoveItemAt(
	c context.Context,
	deviceID string,
	id identity.Identity,
	param request.RemoveCartItemAt,
) (response.Cart, error) {
	c, span := inOtel.Tracer.Start(c, "CartService RemoveItemAt")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartService RemoveItemAt").
		Str(constants.KEY_DEVICE_ID, deviceID).
		Str(constants.KEY_IDENTITY, id.String()).
		Int(constants.KEY_INDEX, param.Index).
		Logger()

	var cart response.Cart
	var removed bool
	err := svc.withEngine(logger.WithContext(c), deviceID, id, func(e *engine.Engine) error {
		removed = e.RemoveAt(param.Index)
		cart = ToCartResponse(e.Snapshot())
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Bool("removed", removed).Msg("removed cart item at index")
	return cart, nil
}

func (svc *CartService) ClearCart(c context.Context, deviceID string, id identity.Identity) (response.Cart, error) {
	c, span := inOtel.Tracer.Start(c, "CartService ClearCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartService ClearCart").
		Str(constants.KEY_DEVICE_ID, deviceID).
		Str(constants.KEY_IDENTITY, id.String()).
		Logger()

	var cart response.Cart
	err := svc.withEngine(logger.WithContext(c), deviceID, id, func(e *engine.Engine) error {
		e.Clear()
		cart = ToCartResponse(e.Snapshot())
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Cart{}, err
	}
	logger.Info().Msg("cleared cart")
	return cart, nil
}

// Checkout simulates a payment for the current cart and clears it. The
// device stays usable while the payment is processing.
func (svc *CartService) Checkout(c context.Context, deviceID string, id identity.Identity) (response.Receipt, error) {
	c, span := inOtel.Tracer.Start(c, "CartService Checkout")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(constants.KEY_TAG, "CartService Checkout").
		Str(constants.KEY_DEVICE_ID, deviceID).
		Str(constants.KEY_IDENTITY, id.String()).
		Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(constants.KEY_PROCESS, "reading cart").Logger()
	var snapshot engine.Snapshot
	err := svc.withEngine(c, deviceID, id, func(e *engine.Engine) error {
		snapshot = e.Snapshot()
		if len(snapshot.Items) == 0 {
			return inErrors.ErrEmptyCart
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("failed checking out cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Receipt{}, err
	}

	logger = logger.With().Str(constants.KEY_PROCESS, "processing payment").Logger()
	logger.Info().Dur("delay", svc.delay).Msg("processing payment")
	select {
	case <-time.After(svc.delay):
	case <-c.Done():
		err = fmt.Errorf("failed processing payment with error=%w", c.Err())
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Receipt{}, err
	}

	receipt := svc.receipt(snapshot)
	logger = logger.With().
		Str(constants.KEY_PROCESS, "clearing paid cart").
		Str(constants.KEY_CHECKOUT_RECEIPTID, receipt.ID).
		Str(constants.KEY_CHECKOUT_GRAND, receipt.GrandTotal.String()).
		Logger()
	err = svc.withEngine(c, deviceID, id, func(e *engine.Engine) error {
		e.Clear()
		return nil
	})
	if err != nil && !errors.Is(err, inErrors.ErrClosed) {
		err = fmt.Errorf("failed clearing paid cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Receipt{}, err
	}
	logger.Info().Msg("checked out cart")
	return receipt, nil
}

func (svc *CartService) receipt(snapshot engine.Snapshot) response.Receipt {
	subtotal := decimal.NewFromInt(snapshot.Total)
	tax := subtotal.Mul(svc.taxRate).Round(0)
	items := make([]response.Item, len(snapshot.Items))
	for i, item := range snapshot.Items {
		items[i] = toItem(item)
	}
	return response.Receipt{
		ID:         uuid.NewString(),
		Identity:   snapshot.Identity.String(),
		Items:      items,
		Subtotal:   subtotal,
		Tax:        tax,
		GrandTotal: subtotal.Add(tax),
		PaidAt:     svc.clock(),
	}
}

// Close closes every device's cart and waits for pending writes until c is
// done.
func (svc *CartService) Close(c context.Context) error {
	svc.mu.Lock()
	svc.closed = true
	devices := svc.devices
	svc.devices = map[string]*device{}
	svc.mu.Unlock()

	var errs error
	for _, d := range devices {
		d.mu.Lock()
		errs = errors.Join(errs, d.selector.Close(c))
		d.mu.Unlock()
	}
	return errs
}

func toItem(item engine.DisplayItem) response.Item {
	out := response.Item{
		InstanceID: item.InstanceID,
		ID:         item.ID.String(),
		Name:       item.Name,
		Price:      item.Price,
		Rarity:     string(item.Rarity),
		Status:     string(item.Status),
	}
	if item.Icon != nil {
		out.Icon = item.Icon.Name
	}
	return out
}

func ToCartResponse(snapshot engine.Snapshot) response.Cart {
	items := make([]response.Item, len(snapshot.Items))
	for i, item := range snapshot.Items {
		items[i] = toItem(item)
	}
	return response.Cart{
		Identity:   snapshot.Identity.String(),
		Items:      items,
		Total:      snapshot.Total,
		SyncState:  string(snapshot.SyncState),
		LastUpdate: snapshot.LastUpdate,
	}
}
