// Package cart implements the dual-mode cart store. In Guest mode every
// operation is local-first against the persisted mirror; in Synced mode the
// server is the source of truth and the full cart is refetched after each
// successful mutation rather than patched client-side.
package cart

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/core"
	"github.com/snag21205/unimerch/session"
)

// MirrorKey is the one storage key holding the persisted cart document
// {items, summary}.
const MirrorKey = "unimerch.cart"

// Mode tags the cart's state machine. The transitions are: Guest -> Synced
// on login (MigrateGuestCart), Synced -> Guest on logout (the last-known
// server snapshot is retained as the new guest cart).
type Mode int

const (
	ModeGuest Mode = iota
	ModeSynced
)

func (m Mode) String() string {
	switch m {
	case ModeGuest:
		return "guest"
	case ModeSynced:
		return "synced"
	}
	return "unknown"
}

// Subscriber receives a snapshot after every successful mutation. This is
// the sole change-notification mechanism, there is no fine-grained diffing.
// Subscribers must not call back into mutating methods.
type Subscriber func(core.CartSnapshot)

// AddInput describes one add-to-cart action. Product carries the display
// data used to build a guest line when no server round trip happens.
type AddInput struct {
	ProductID int64
	Quantity  int
	Size      string
	Color     string
	Product   *core.Product
}

// Store is the cart state component.
type Store struct {
	// opMu serializes mutating operations end to end, including their
	// network calls. Without it two in-flight refetches could interleave
	// with last-write-wins; queueing removes that race.
	opMu sync.Mutex

	// dataMu guards the fields below and is held only briefly.
	dataMu    sync.RWMutex
	mode      Mode
	lines     []core.CartLine
	selection map[string]struct{}
	subs      map[int]Subscriber
	nextSub   int

	api       *api.Client
	session   *session.Store
	storage   core.Storage
	logger    core.Logger
	telemetry core.Telemetry
}

// Options configures a cart Store.
type Options struct {
	API       *api.Client
	Session   *session.Store
	Storage   core.Storage
	Logger    core.Logger
	Telemetry core.Telemetry
}

// New builds the store, restores the persisted mirror, and picks the mode
// from the current session state. Logout transitions are handled
// automatically; the login transition needs a network replay, so the caller
// runs MigrateGuestCart after a successful login.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	telemetry := opts.Telemetry
	if telemetry == nil {
		telemetry = &core.NoOpTelemetry{}
	}

	s := &Store{
		api:       opts.API,
		session:   opts.Session,
		storage:   opts.Storage,
		logger:    logger,
		telemetry: telemetry,
		selection: make(map[string]struct{}),
		subs:      make(map[int]Subscriber),
	}

	s.restoreMirror()

	if opts.Session != nil && opts.Session.IsAuthenticated() {
		s.mode = ModeSynced
	}
	if opts.Session != nil {
		opts.Session.OnChange(func(authenticated bool) {
			if !authenticated {
				s.handleLogout()
			}
		})
	}
	return s
}

func (s *Store) restoreMirror() {
	if s.storage == nil {
		return
	}
	raw, err := s.storage.Get(context.Background(), MirrorKey)
	if err != nil || raw == "" {
		return
	}
	var snap core.CartSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		s.logger.Warn("Discarding unreadable cart mirror", map[string]interface{}{
			"operation": "cart_restore",
			"error":     err.Error(),
		})
		return
	}
	s.lines = snap.Items
}

// Mode returns the current state-machine tag.
func (s *Store) Mode() Mode {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.mode
}

// Lines returns a copy of the current cart lines.
func (s *Store) Lines() []core.CartLine {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return copyLines(s.lines)
}

// Summary is a pure function over the current lines; it is recomputed on
// demand and never drifts from the line contents.
func (s *Store) Summary() core.CartSummary {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return core.Summarize(s.lines)
}

// Snapshot returns the persisted-mirror shape of the current state.
func (s *Store) Snapshot() core.CartSnapshot {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return core.CartSnapshot{
		Items:   copyLines(s.lines),
		Summary: core.Summarize(s.lines),
	}
}

// Subscribe registers fn and returns its unsubscribe function.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.dataMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.dataMu.Unlock()

	return func() {
		s.dataMu.Lock()
		delete(s.subs, id)
		s.dataMu.Unlock()
	}
}

// AddLine adds a product to the cart, or increments the existing line.
func (s *Store) AddLine(ctx context.Context, in AddInput) error {
	if in.ProductID <= 0 || in.Quantity < 1 {
		return core.NewStoreError("cart.AddLine", "cart", core.ErrInvalidOrderItem)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch s.Mode() {
	case ModeGuest:
		s.dataMu.Lock()
		// Guest lines are matched by product id ONLY: two variants of the
		// same product (different size/color) merge into one line. Order
		// creation downstream assumes one line per product; do not change
		// the matching without product-owner signoff.
		matched := false
		for i := range s.lines {
			if s.lines[i].ProductID == in.ProductID {
				s.lines[i].Quantity += in.Quantity
				matched = true
				break
			}
		}
		if !matched {
			s.lines = append(s.lines, s.newGuestLine(in))
		}
		s.dataMu.Unlock()
		s.finishMutation(ctx, "add")
		return nil

	case ModeSynced:
		err := s.api.DoInto(ctx, api.Request{
			Endpoint:    api.EndpointCartAddItem,
			Body:        addItemBody(in),
			RequireAuth: true,
		}, nil)
		if err != nil {
			return err
		}
		return s.reload(ctx, "add")
	}
	return nil
}

// UpdateQuantity sets a line's quantity; anything below 1 removes the line.
// No upper bound is enforced here beyond whatever the UI imposes.
func (s *Store) UpdateQuantity(ctx context.Context, lineID string, quantity int) error {
	if quantity < 1 {
		return s.RemoveLine(ctx, lineID)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch s.Mode() {
	case ModeGuest:
		s.dataMu.Lock()
		for i := range s.lines {
			if s.lines[i].ID == lineID {
				s.lines[i].Quantity = quantity
				break
			}
		}
		s.dataMu.Unlock()
		s.finishMutation(ctx, "update")
		return nil

	case ModeSynced:
		err := s.api.DoInto(ctx, api.Request{
			Endpoint:    api.EndpointCartUpdateItem,
			PathParams:  map[string]string{"itemId": lineID},
			Body:        map[string]interface{}{"quantity": quantity},
			RequireAuth: true,
		}, nil)
		if err != nil {
			return err
		}
		return s.reload(ctx, "update")
	}
	return nil
}

// RemoveLine removes one line.
func (s *Store) RemoveLine(ctx context.Context, lineID string) error {
	return s.RemoveLines(ctx, []string{lineID})
}

// RemoveLines removes several lines. The remote API has no bulk endpoint:
// synced mode issues one delete per line sequentially, then refetches once
// at the end. Individual failures are collected, not silently dropped, and
// no local rollback happens.
func (s *Store) RemoveLines(ctx context.Context, lineIDs []string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch s.Mode() {
	case ModeGuest:
		drop := make(map[string]struct{}, len(lineIDs))
		for _, id := range lineIDs {
			drop[id] = struct{}{}
		}
		s.dataMu.Lock()
		kept := s.lines[:0]
		for _, l := range s.lines {
			if _, gone := drop[l.ID]; !gone {
				kept = append(kept, l)
			} else {
				delete(s.selection, l.ID)
			}
		}
		s.lines = kept
		s.dataMu.Unlock()
		s.finishMutation(ctx, "remove")
		return nil

	case ModeSynced:
		partial := core.CollectErrors("cart.RemoveLines", lineIDs, func(id string) error {
			return s.api.DoInto(ctx, api.Request{
				Endpoint:    api.EndpointCartRemoveItem,
				PathParams:  map[string]string{"itemId": id},
				RequireAuth: true,
			}, nil)
		})
		if err := s.reload(ctx, "remove"); err != nil {
			return err
		}
		if partial != nil {
			return partial
		}
		return nil
	}
	return nil
}

// Clear empties the cart.
func (s *Store) Clear(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	switch s.Mode() {
	case ModeGuest:
		s.dataMu.Lock()
		s.lines = nil
		s.selection = make(map[string]struct{})
		s.dataMu.Unlock()
		s.finishMutation(ctx, "clear")
		return nil

	case ModeSynced:
		err := s.api.DoInto(ctx, api.Request{
			Endpoint:    api.EndpointCartClear,
			RequireAuth: true,
		}, nil)
		if err != nil {
			return err
		}
		return s.reload(ctx, "clear")
	}
	return nil
}

// Reload refetches the server cart and replaces local state. In guest mode
// there is nothing to refetch.
func (s *Store) Reload(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.Mode() != ModeSynced {
		return nil
	}
	return s.reload(ctx, "reload")
}

// MigrateGuestCart replays the guest lines onto the server cart after a
// login, then refetches so the server becomes the sole source of truth.
// The replay is best-effort: there is no atomic batch, a failed line is
// collected and the next one is attempted, and nothing rolls back. The
// returned PartialError reports the lines that did not make it.
func (s *Store) MigrateGuestCart(ctx context.Context) (*core.PartialError, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.dataMu.Lock()
	if s.mode == ModeSynced {
		s.dataMu.Unlock()
		return nil, s.reload(ctx, "migrate")
	}
	guestLines := copyLines(s.lines)
	s.mode = ModeSynced
	s.dataMu.Unlock()

	partial := core.CollectErrors("cart.MigrateGuestCart", guestLines, func(l core.CartLine) error {
		return s.api.DoInto(ctx, api.Request{
			Endpoint: api.EndpointCartAddItem,
			Body: map[string]interface{}{
				"product_id": l.ProductID,
				"quantity":   l.Quantity,
				"size":       l.Size,
				"color":      l.Color,
			},
			RequireAuth: true,
		}, nil)
	})
	if partial != nil {
		s.logger.Warn("Guest cart replay partially failed", map[string]interface{}{
			"operation": "cart_migrate",
			"failed":    len(partial.Failed),
			"total":     partial.Total,
		})
	}

	if err := s.reload(ctx, "migrate"); err != nil {
		return partial, err
	}
	return partial, nil
}

// handleLogout switches to guest mode, keeping the last-known server
// snapshot as the new guest cart. No explicit clearing happens.
//
// Deliberately does NOT take opMu: a 401 during a synced mutation fires the
// session-expired path while that mutation still holds the lock, and the
// logout transition must land anyway. The mode flip under dataMu is atomic;
// the failing mutation returns its error without reloading.
func (s *Store) handleLogout() {
	s.dataMu.Lock()
	if s.mode == ModeGuest {
		s.dataMu.Unlock()
		return
	}
	s.mode = ModeGuest
	s.dataMu.Unlock()

	s.finishMutation(context.Background(), "logout")
}

// Selection bookkeeping. The selection set defaults to empty and is cleared
// whenever lines are reloaded from the server.

// Select marks a line for the next checkout.
func (s *Store) Select(lineID string) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	for _, l := range s.lines {
		if l.ID == lineID {
			s.selection[lineID] = struct{}{}
			return
		}
	}
}

// Deselect unmarks a line.
func (s *Store) Deselect(lineID string) {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	delete(s.selection, lineID)
}

// SelectedIDs returns the ids currently marked for checkout.
func (s *Store) SelectedIDs() []string {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	ids := make([]string, 0, len(s.selection))
	for id := range s.selection {
		ids = append(ids, id)
	}
	return ids
}

// ClearSelection resets the selection set.
func (s *Store) ClearSelection() {
	s.dataMu.Lock()
	defer s.dataMu.Unlock()
	s.selection = make(map[string]struct{})
}

// internals

func (s *Store) newGuestLine(in AddInput) core.CartLine {
	line := core.CartLine{
		// Guest line identity is a client-generated timestamp id
		ID:        strconv.FormatInt(time.Now().UnixNano(), 10),
		ProductID: in.ProductID,
		Quantity:  in.Quantity,
		Size:      in.Size,
		Color:     in.Color,
	}
	if in.Product != nil {
		line.Name = in.Product.Name
		line.Price = in.Product.Price
		line.DiscountPrice = in.Product.DiscountPrice
	}
	return line
}

func addItemBody(in AddInput) map[string]interface{} {
	body := map[string]interface{}{
		"product_id": in.ProductID,
		"quantity":   in.Quantity,
	}
	if in.Size != "" {
		body["size"] = in.Size
	}
	if in.Color != "" {
		body["color"] = in.Color
	}
	return body
}

type serverCart struct {
	Items []core.CartLine `json:"items"`
}

// reload refetches the server cart, replaces local lines, clears the
// selection, persists the mirror and notifies subscribers. Callers hold opMu.
func (s *Store) reload(ctx context.Context, op string) error {
	var sc serverCart
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointCart,
		RequireAuth: true,
	}, &sc)
	if err != nil {
		return err
	}

	s.dataMu.Lock()
	s.lines = sc.Items
	s.selection = make(map[string]struct{})
	s.dataMu.Unlock()

	s.finishMutation(ctx, op)
	return nil
}

// finishMutation persists the mirror and notifies subscribers with a fresh
// snapshot. Mirror write failures are logged, not surfaced: the mutation
// itself already succeeded.
func (s *Store) finishMutation(ctx context.Context, op string) {
	snap := s.Snapshot()

	if s.storage != nil {
		raw, err := json.Marshal(snap)
		if err == nil {
			err = s.storage.Set(ctx, MirrorKey, string(raw), 0)
		}
		if err != nil {
			s.logger.Warn("Failed to persist cart mirror", map[string]interface{}{
				"operation": "cart_persist",
				"op":        op,
				"error":     err.Error(),
			})
		}
	}

	s.telemetry.RecordMetric("cart.mutations", 1, map[string]string{
		"op":   op,
		"mode": s.Mode().String(),
	})
	s.logger.Debug("Cart mutated", map[string]interface{}{
		"operation":   "cart_mutation",
		"op":          op,
		"mode":        s.Mode().String(),
		"total_items": snap.Summary.TotalItems,
		"line_count":  snap.Summary.LineCount,
	})

	s.dataMu.RLock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.dataMu.RUnlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func copyLines(lines []core.CartLine) []core.CartLine {
	out := make([]core.CartLine, len(lines))
	copy(out, lines)
	return out
}
