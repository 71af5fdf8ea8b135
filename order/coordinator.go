// Package order implements the checkout protocol. The merchant API's
// "create from cart" endpoint always consumes the ENTIRE server-side cart,
// so checking out a subset means temporarily removing the unselected lines,
// submitting, and restoring them afterwards - on failure as well as success.
package order

import (
	"context"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/cart"
	"github.com/snag21205/unimerch/core"
	"github.com/snag21205/unimerch/session"
)

// Shipping is flat-fee with a free threshold; the server recomputes and is
// authoritative on the created order.
const (
	defaultShippingFee    = 30000
	freeShippingThreshold = 500000
)

// Draft is the transient order request. It is never persisted; it exists
// only for the duration of one checkout flow.
type Draft struct {
	Items           []core.OrderItem // direct purchase only
	ShippingAddress string
	PaymentMethod   core.PaymentMethod
}

// Totals derives subtotal, shipping fee and total for a set of cart lines
// using the shared effective-price predicate.
func Totals(lines []core.CartLine) (subtotal, shipping, total float64) {
	for _, l := range lines {
		subtotal += l.EffectivePrice() * float64(l.Quantity)
	}
	if subtotal > 0 && subtotal < freeShippingThreshold {
		shipping = defaultShippingFee
	}
	return subtotal, shipping, subtotal + shipping
}

// Coordinator composes the cart store and the API client to execute the
// checkout protocol.
type Coordinator struct {
	api       *api.Client
	cart      *cart.Store
	session   *session.Store
	logger    core.Logger
	telemetry core.Telemetry
}

// Options configures a Coordinator.
type Options struct {
	API       *api.Client
	Cart      *cart.Store
	Session   *session.Store
	Logger    core.Logger
	Telemetry core.Telemetry
}

// New builds a Coordinator.
func New(opts Options) *Coordinator {
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}
	return &Coordinator{
		api:       opts.API,
		cart:      opts.Cart,
		session:   opts.Session,
		logger:    logger,
		telemetry: telemetry,
	}
}

// bufferedLine remembers a temporarily removed cart line so it can be
// re-added after the order call resolves.
type bufferedLine struct {
	ProductID int64
	Quantity  int
	Size      string
	Color     string
}

type createdOrder struct {
	ID string `json:"id"`
}

// CheckoutSelection submits an order for the currently selected cart lines.
//
// The protocol: fetch the server cart, remove every unselected line one at
// a time (remembering each), submit the create-from-cart call, and - in a
// guaranteed cleanup step that runs whether the submission succeeded or not -
// re-add every removed line and refetch the cart once. A rejection between
// the desync and the restore must not permanently lose the user's
// unselected lines.
func (c *Coordinator) CheckoutSelection(ctx context.Context, d Draft) (orderID string, err error) {
	if c.session != nil && !c.session.IsAuthenticated() {
		return "", core.ErrSessionExpired
	}
	if err := d.validate(false); err != nil {
		return "", err
	}

	selected := make(map[string]struct{})
	for _, id := range c.cart.SelectedIDs() {
		selected[id] = struct{}{}
	}
	if len(selected) == 0 {
		return "", core.ErrEmptySelection
	}

	var serverLines struct {
		Items []core.CartLine `json:"items"`
	}
	if err := c.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointCart,
		RequireAuth: true,
	}, &serverLines); err != nil {
		return "", err
	}
	if len(serverLines.Items) == 0 {
		return "", core.ErrEmptyCart
	}

	// Desync: drop the unselected lines from the server cart, buffering
	// them for restoration. Per-line failures are collected and logged so
	// one bad line does not block the whole checkout.
	var unselected []core.CartLine
	for _, l := range serverLines.Items {
		if _, ok := selected[l.ID]; !ok {
			unselected = append(unselected, l)
		}
	}

	var buffered []bufferedLine
	removePartial := core.CollectErrors("order.desync", unselected, func(l core.CartLine) error {
		if err := c.api.DoInto(ctx, api.Request{
			Endpoint:    api.EndpointCartRemoveItem,
			PathParams:  map[string]string{"itemId": l.ID},
			RequireAuth: true,
		}, nil); err != nil {
			return err
		}
		buffered = append(buffered, bufferedLine{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			Size:      l.Size,
			Color:     l.Color,
		})
		return nil
	})
	if removePartial != nil {
		c.logger.Warn("Cart desync partially failed", map[string]interface{}{
			"operation": "order_desync",
			"failed":    len(removePartial.Failed),
			"total":     removePartial.Total,
		})
	}

	// Restore guarantee: runs on success AND failure. Restoration re-adds
	// each buffered line individually (there is no snapshot-restore
	// endpoint); if stock changed in between, the server may clamp or
	// reject a line - that failure is logged, never raised over the
	// checkout outcome.
	defer func() {
		restorePartial := core.CollectErrors("order.restore", buffered, func(l bufferedLine) error {
			body := map[string]interface{}{
				"product_id": l.ProductID,
				"quantity":   l.Quantity,
			}
			if l.Size != "" {
				body["size"] = l.Size
			}
			if l.Color != "" {
				body["color"] = l.Color
			}
			return c.api.DoInto(ctx, api.Request{
				Endpoint:    api.EndpointCartAddItem,
				Body:        body,
				RequireAuth: true,
			}, nil)
		})
		if restorePartial != nil {
			c.logger.Error("Failed to restore unselected cart lines", map[string]interface{}{
				"operation": "order_restore",
				"failed":    len(restorePartial.Failed),
				"total":     restorePartial.Total,
			})
		}
		if reloadErr := c.cart.Reload(ctx); reloadErr != nil {
			c.logger.Warn("Cart refetch after checkout failed", map[string]interface{}{
				"operation": "order_restore",
				"error":     reloadErr.Error(),
			})
		}
	}()

	var created createdOrder
	if err := c.api.DoInto(ctx, api.Request{
		Endpoint: api.EndpointOrderFromCart,
		Body: map[string]interface{}{
			"shipping_address": d.ShippingAddress,
			"payment_method":   d.PaymentMethod,
		},
		RequireAuth: true,
	}, &created); err != nil {
		c.telemetry.RecordMetric("orders.submitted", 1, map[string]string{"result": "error"})
		return "", err
	}

	c.cart.ClearSelection()
	c.telemetry.RecordMetric("orders.submitted", 1, map[string]string{"result": "ok"})
	c.logger.Info("Order created from cart", map[string]interface{}{
		"operation": "order_create",
		"order_id":  created.ID,
	})
	return created.ID, nil
}

// BuyNow submits a direct order for an explicit item list, bypassing the
// cart entirely.
func (c *Coordinator) BuyNow(ctx context.Context, d Draft) (string, error) {
	if c.session != nil && !c.session.IsAuthenticated() {
		return "", core.ErrSessionExpired
	}
	if err := d.validate(true); err != nil {
		return "", err
	}

	var created createdOrder
	if err := c.api.DoInto(ctx, api.Request{
		Endpoint: api.EndpointOrderDirect,
		Body: map[string]interface{}{
			"items":            d.Items,
			"shipping_address": d.ShippingAddress,
			"payment_method":   d.PaymentMethod,
		},
		RequireAuth: true,
	}, &created); err != nil {
		c.telemetry.RecordMetric("orders.submitted", 1, map[string]string{"result": "error"})
		return "", err
	}

	c.telemetry.RecordMetric("orders.submitted", 1, map[string]string{"result": "ok"})
	c.logger.Info("Direct order created", map[string]interface{}{
		"operation": "order_create",
		"order_id":  created.ID,
		"items":     len(d.Items),
	})
	return created.ID, nil
}

// Orders fetches the caller's order history.
func (c *Coordinator) Orders(ctx context.Context) ([]core.Order, error) {
	var out struct {
		Orders []core.Order `json:"orders"`
	}
	err := c.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointOrders,
		RequireAuth: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Orders, nil
}

// Order fetches one order by id.
func (c *Coordinator) Order(ctx context.Context, id string) (*core.Order, error) {
	var out core.Order
	err := c.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointOrder,
		PathParams:  map[string]string{"orderId": id},
		RequireAuth: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// validate runs the fail-fast checks; nothing touches the network before
// these pass. The payment method defaults to COD when unset.
func (d *Draft) validate(direct bool) error {
	if d.ShippingAddress == "" {
		return core.ErrMissingShippingAddress
	}
	if d.PaymentMethod == "" {
		d.PaymentMethod = core.PaymentCOD
	}
	if direct {
		if len(d.Items) == 0 {
			return core.ErrInvalidOrderItem
		}
		for _, it := range d.Items {
			if it.ProductID <= 0 || it.Quantity <= 0 {
				return core.NewStoreError("order.BuyNow", "order",
					core.ErrInvalidOrderItem)
			}
		}
	}
	return nil
}
