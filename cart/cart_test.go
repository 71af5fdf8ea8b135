package cart

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/core"
	"github.com/snag21205/unimerch/internal/apitest"
	"github.com/snag21205/unimerch/session"
)

func ptr(f float64) *float64 { return &f }

func fixtureProducts() []core.Product {
	return []core.Product{
		{ID: 1, Name: "UEH Hoodie", Price: 250000, Sizes: []string{"M", "L"}},
		{ID: 2, Name: "UEH Tote Bag", Price: 90000, DiscountPrice: ptr(75000.0)},
		{ID: 3, Name: "UEH Cap", Price: 120000},
	}
}

// newGuestStore builds a store with no session, pure guest mode.
func newGuestStore(storage core.Storage) *Store {
	return New(Options{Storage: storage})
}

// newSyncedStore builds a logged-in store talking to the API double.
func newSyncedStore(t *testing.T) (*Store, *apitest.Server, *session.Store) {
	t.Helper()
	srv := apitest.NewServer(fixtureProducts())
	t.Cleanup(srv.Close)
	srv.Token = apitest.MakeToken("u1", core.RoleUser)

	sess := session.New(core.NewMemoryStore(), nil)
	sess.Login(srv.Token)

	client := api.New(api.Options{BaseURL: srv.URL(), Tokens: sess})
	store := New(Options{API: client, Session: sess, Storage: core.NewMemoryStore()})
	require.Equal(t, ModeSynced, store.Mode())
	return store, srv, sess
}

// TestGuestAddMergesByProductID verifies guest line matching ignores size
// and color, merging variants into one line
func TestGuestAddMergesByProductID(t *testing.T) {
	ctx := context.Background()
	s := newGuestStore(core.NewMemoryStore())
	products := fixtureProducts()

	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 1, Size: "M", Product: &products[0]}))
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 2, Size: "L", Product: &products[0]}))

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 3, lines[0].Quantity)
	assert.Equal(t, "M", lines[0].Size)

	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 2, Quantity: 1, Product: &products[1]}))
	assert.Len(t, s.Lines(), 2)
}

// TestGuestSummary verifies the derived summary over guest lines including
// active discounts
func TestGuestSummary(t *testing.T) {
	ctx := context.Background()
	s := newGuestStore(core.NewMemoryStore())
	products := fixtureProducts()

	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 2, Product: &products[0]}))
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 2, Quantity: 1, Product: &products[1]}))

	sum := s.Summary()
	assert.Equal(t, 3, sum.TotalItems)
	assert.Equal(t, 2, sum.LineCount)
	assert.Equal(t, 2*250000.0+75000.0, sum.TotalAmount)
}

// TestGuestUpdateQuantity verifies updates and the quantity-zero removal
func TestGuestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	s := newGuestStore(core.NewMemoryStore())
	products := fixtureProducts()

	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 2, Product: &products[0]}))
	id := s.Lines()[0].ID

	require.NoError(t, s.UpdateQuantity(ctx, id, 5))
	assert.Equal(t, 5, s.Lines()[0].Quantity)

	// Dropping below one removes the line entirely.
	require.NoError(t, s.UpdateQuantity(ctx, id, 0))
	assert.Empty(t, s.Lines())
	assert.Equal(t, core.CartSummary{}, s.Summary())
}

// TestMirrorRoundTrip verifies the persisted document restores an identical
// cart in a fresh store
func TestMirrorRoundTrip(t *testing.T) {
	ctx := context.Background()
	storage := core.NewMemoryStore()
	products := fixtureProducts()

	s := newGuestStore(storage)
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 2, Size: "M", Product: &products[0]}))
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 2, Quantity: 1, Product: &products[1]}))
	want := s.Snapshot()

	restored := newGuestStore(storage)
	assert.Equal(t, want, restored.Snapshot())
	assert.Equal(t, ModeGuest, restored.Mode())
}

// TestSubscribers verifies notification on every successful mutation and
// unsubscribe
func TestSubscribers(t *testing.T) {
	ctx := context.Background()
	s := newGuestStore(core.NewMemoryStore())
	products := fixtureProducts()

	var snapshots []core.CartSnapshot
	unsubscribe := s.Subscribe(func(snap core.CartSnapshot) {
		snapshots = append(snapshots, snap)
	})

	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 1, Product: &products[0]}))
	require.NoError(t, s.Clear(ctx))
	require.Len(t, snapshots, 2)
	assert.Equal(t, 1, snapshots[0].Summary.TotalItems)
	assert.Equal(t, 0, snapshots[1].Summary.TotalItems)

	unsubscribe()
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 1, Product: &products[0]}))
	assert.Len(t, snapshots, 2)
}

// TestAddLineValidation verifies bad input is rejected before any state
// change
func TestAddLineValidation(t *testing.T) {
	ctx := context.Background()
	s := newGuestStore(core.NewMemoryStore())

	err := s.AddLine(ctx, AddInput{ProductID: 0, Quantity: 1})
	assert.True(t, errors.Is(err, core.ErrInvalidOrderItem))

	err = s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 0})
	assert.True(t, errors.Is(err, core.ErrInvalidOrderItem))
	assert.Empty(t, s.Lines())
}

// TestSyncedAdd verifies the optimistic-refetch cycle: mutate, refetch,
// server state wins
func TestSyncedAdd(t *testing.T) {
	ctx := context.Background()
	s, srv, _ := newSyncedStore(t)

	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 1, Size: "M"}))
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 2, Size: "M"}))
	// Server matches per variant, so a different size is a separate line
	// even though guest mode would have merged it.
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 1, Size: "L"}))

	lines := s.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, lines, srv.CartItems())
	assert.Equal(t, 3, lines[0].Quantity)
	// Server-assigned ids, not client timestamps.
	assert.Equal(t, "1", lines[0].ID)
}

// TestSyncedRemovePartialFailure verifies sequential deletes continue past
// a failure, the cart is still refetched, and the failure stays observable
func TestSyncedRemovePartialFailure(t *testing.T) {
	ctx := context.Background()
	s, srv, _ := newSyncedStore(t)

	srv.SeedCart([]core.CartLine{
		{ID: "a", ProductID: 1, Price: 250000, Quantity: 1},
		{ID: "b", ProductID: 2, Price: 90000, Quantity: 1},
		{ID: "c", ProductID: 3, Price: 120000, Quantity: 1},
	})
	require.NoError(t, s.Reload(ctx))
	srv.FailRemoveItemIDs["b"] = true

	err := s.RemoveLines(ctx, []string{"a", "b", "c"})
	var partial *core.PartialError
	require.True(t, errors.As(err, &partial))
	assert.Equal(t, 3, partial.Total)
	assert.Len(t, partial.Failed, 1)

	// The refetch still ran: local state shows the one surviving line.
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "b", lines[0].ID)
	assert.Equal(t, lines, srv.CartItems())
}

// TestMigrateGuestCart verifies the login transition replays guest lines
// and hands authority to the server
func TestMigrateGuestCart(t *testing.T) {
	ctx := context.Background()
	srv := apitest.NewServer(fixtureProducts())
	defer srv.Close()
	srv.Token = apitest.MakeToken("u1", core.RoleUser)

	sess := session.New(core.NewMemoryStore(), nil)
	client := api.New(api.Options{BaseURL: srv.URL(), Tokens: sess})
	s := New(Options{API: client, Session: sess, Storage: core.NewMemoryStore()})
	require.Equal(t, ModeGuest, s.Mode())

	products := fixtureProducts()
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 2, Size: "M", Product: &products[0]}))
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 2, Quantity: 1, Product: &products[1]}))

	sess.Login(srv.Token)
	partial, err := s.MigrateGuestCart(ctx)
	require.NoError(t, err)
	assert.Nil(t, partial)

	assert.Equal(t, ModeSynced, s.Mode())
	lines := s.Lines()
	require.Len(t, lines, 2)
	// Identity is now server-assigned; quantities carried over.
	assert.Equal(t, lines, srv.CartItems())
	assert.Equal(t, 3, s.Summary().TotalItems)
}

// TestMigratePartialFailure verifies a failed replay line is reported while
// the rest still transfer
func TestMigratePartialFailure(t *testing.T) {
	ctx := context.Background()
	srv := apitest.NewServer(fixtureProducts())
	defer srv.Close()
	srv.Token = apitest.MakeToken("u1", core.RoleUser)
	srv.FailAddProductIDs[2] = true

	sess := session.New(core.NewMemoryStore(), nil)
	client := api.New(api.Options{BaseURL: srv.URL(), Tokens: sess})
	s := New(Options{API: client, Session: sess, Storage: core.NewMemoryStore()})

	products := fixtureProducts()
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 1, Quantity: 1, Product: &products[0]}))
	require.NoError(t, s.AddLine(ctx, AddInput{ProductID: 2, Quantity: 1, Product: &products[1]}))

	sess.Login(srv.Token)
	partial, err := s.MigrateGuestCart(ctx)
	require.NoError(t, err)
	require.NotNil(t, partial)
	assert.Equal(t, 2, partial.Total)
	assert.Len(t, partial.Failed, 1)

	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, int64(1), lines[0].ProductID)
}

// TestLogoutRetainsSnapshot verifies the synced-to-guest transition keeps
// the last-known lines as the new guest cart
func TestLogoutRetainsSnapshot(t *testing.T) {
	ctx := context.Background()
	s, srv, sess := newSyncedStore(t)

	srv.SeedCart([]core.CartLine{
		{ID: "a", ProductID: 1, Price: 250000, Quantity: 2},
	})
	require.NoError(t, s.Reload(ctx))

	sess.Logout()
	assert.Equal(t, ModeGuest, s.Mode())
	lines := s.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, 2, lines[0].Quantity)
}

// TestSelection verifies the checkout selection set and its reset on reload
func TestSelection(t *testing.T) {
	ctx := context.Background()
	s, srv, _ := newSyncedStore(t)

	srv.SeedCart([]core.CartLine{
		{ID: "a", ProductID: 1, Price: 250000, Quantity: 1},
		{ID: "b", ProductID: 2, Price: 90000, Quantity: 1},
	})
	require.NoError(t, s.Reload(ctx))

	s.Select("a")
	s.Select("missing") // unknown line ids are ignored
	assert.Equal(t, []string{"a"}, s.SelectedIDs())

	s.Deselect("a")
	assert.Empty(t, s.SelectedIDs())

	s.Select("a")
	s.Select("b")
	require.NoError(t, s.Reload(ctx))
	// Reload replaces lines wholesale, so stale selections are dropped.
	assert.Empty(t, s.SelectedIDs())
}
