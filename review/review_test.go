package review

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/core"
	"github.com/snag21205/unimerch/internal/apitest"
	"github.com/snag21205/unimerch/session"
)

func newStore(t *testing.T) (*Store, *apitest.Server, *session.Store) {
	t.Helper()
	srv := apitest.NewServer([]core.Product{{ID: 1, Name: "UEH Hoodie", Price: 250000}})
	t.Cleanup(srv.Close)
	srv.Token = apitest.MakeToken("me", core.RoleUser)

	sess := session.New(core.NewMemoryStore(), nil)
	sess.Login(srv.Token)

	client := api.New(api.Options{BaseURL: srv.URL(), Tokens: sess})
	return New(client, sess, nil), srv, sess
}

// TestMyReview verifies not-found means "no review yet", not an error
func TestMyReview(t *testing.T) {
	ctx := context.Background()
	s, srv, sess := newStore(t)

	t.Run("no review yet", func(t *testing.T) {
		r, err := s.MyReview(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, r)

		reviewed, err := s.HasReviewed(ctx, 1)
		require.NoError(t, err)
		assert.False(t, reviewed)
	})

	t.Run("existing review returned", func(t *testing.T) {
		srv.SeedReviews([]core.Review{
			{ID: "r1", ProductID: 1, UserID: "me", Rating: 4, Comment: "Warm and comfy"},
		})
		r, err := s.MyReview(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, 4, r.Rating)

		reviewed, err := s.HasReviewed(ctx, 1)
		require.NoError(t, err)
		assert.True(t, reviewed)
	})

	t.Run("signed out short-circuits", func(t *testing.T) {
		sess.Logout()
		r, err := s.MyReview(ctx, 1)
		require.NoError(t, err)
		assert.Nil(t, r)
	})
}

// TestSubmit verifies the create path and its client-side rating check
func TestSubmit(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	t.Run("rating bounds checked before the network", func(t *testing.T) {
		for _, rating := range []int{0, 6, -1} {
			_, err := s.Submit(ctx, Input{ProductID: 1, Rating: rating})
			assert.True(t, core.IsValidation(err), "rating %d", rating)
		}
	})

	t.Run("creates a review", func(t *testing.T) {
		r, err := s.Submit(ctx, Input{ProductID: 1, Rating: 5, Comment: "Best hoodie on campus"})
		require.NoError(t, err)
		assert.Equal(t, 5, r.Rating)
		assert.Equal(t, int64(1), r.ProductID)
	})

	t.Run("second submit is rejected, never an implicit update", func(t *testing.T) {
		_, err := s.Submit(ctx, Input{ProductID: 1, Rating: 3})
		assert.True(t, core.IsValidation(err))
	})
}

// TestUpdate verifies the explicit update path
func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t)

	created, err := s.Submit(ctx, Input{ProductID: 1, Rating: 2, Comment: "meh"})
	require.NoError(t, err)

	updated, err := s.Update(ctx, created.ID, 5, "grew on me")
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Rating)
	assert.Equal(t, "grew on me", updated.Comment)

	_, err = s.Update(ctx, created.ID, 9, "")
	assert.True(t, core.IsValidation(err))
}

// TestDelete verifies deletion returns fresh server-side stats
func TestDelete(t *testing.T) {
	ctx := context.Background()
	s, srv, _ := newStore(t)

	srv.SeedReviews([]core.Review{
		{ID: "r1", ProductID: 1, UserID: "me", Rating: 4},
		{ID: "r2", ProductID: 1, UserID: "other", Rating: 2},
	})

	stats, err := s.Delete(ctx, "r1", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalReviews)
	assert.Equal(t, 2.0, stats.AverageRating)

	_, err = s.Delete(ctx, "r1", 1)
	assert.True(t, core.IsNotFound(err))
}

// TestStats verifies the aggregate is fetched fresh
func TestStats(t *testing.T) {
	ctx := context.Background()
	s, srv, _ := newStore(t)

	srv.SeedReviews([]core.Review{
		{ID: "r1", ProductID: 1, UserID: "a", Rating: 5},
		{ID: "r2", ProductID: 1, UserID: "b", Rating: 4},
		{ID: "r3", ProductID: 1, UserID: "c", Rating: 4},
		{ID: "r4", ProductID: 2, UserID: "d", Rating: 1},
	})

	stats, err := s.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalReviews)
	assert.InDelta(t, 4.33, stats.AverageRating, 0.01)
	assert.Equal(t, map[int]int{5: 1, 4: 2}, stats.RatingDistribution)

	reviews, err := s.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, reviews, 3)
}
