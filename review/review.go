// Package review drives the product review UI: the viewer's own review,
// the public list, and the aggregate stats. The client keeps no review
// cache - stats in particular are always refetched so the aggregate can
// never disagree with what the server computed.
package review

import (
	"context"
	"errors"
	"strconv"

	"github.com/snag21205/unimerch/api"
	"github.com/snag21205/unimerch/core"
)

// Input is the writable part of a review.
type Input struct {
	ProductID int64  `json:"product_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// Store performs review reads and writes against the merchant API.
type Store struct {
	api     *api.Client
	session authState
	logger  core.Logger
}

type authState interface {
	IsAuthenticated() bool
}

// New builds a review store.
func New(client *api.Client, session authState, logger core.Logger) *Store {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Store{api: client, session: session, logger: logger}
}

// List returns all reviews for a product, newest first per the server.
func (s *Store) List(ctx context.Context, productID int64) ([]core.Review, error) {
	var out struct {
		Reviews []core.Review `json:"reviews"`
	}
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:   api.EndpointProductReviews,
		PathParams: productParams(productID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Reviews, nil
}

// MyReview returns the authenticated user's review of the product, or
// (nil, nil) when they have not reviewed it. Not-found is an expected
// answer here, not a failure.
func (s *Store) MyReview(ctx context.Context, productID int64) (*core.Review, error) {
	if !s.session.IsAuthenticated() {
		return nil, nil
	}
	var out core.Review
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointMyReview,
		PathParams:  productParams(productID),
		RequireAuth: true,
	}, &out)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

// HasReviewed reports whether the current user already reviewed the product.
func (s *Store) HasReviewed(ctx context.Context, productID int64) (bool, error) {
	r, err := s.MyReview(ctx, productID)
	if err != nil {
		return false, err
	}
	return r != nil, nil
}

// Submit creates a new review. It never silently turns into an update:
// if the user has already reviewed, the server rejects the create and the
// caller is expected to use Update with the existing review's id.
func (s *Store) Submit(ctx context.Context, in Input) (*core.Review, error) {
	if !s.session.IsAuthenticated() {
		return nil, core.ErrSessionExpired
	}
	if err := validateRating(in.Rating); err != nil {
		return nil, err
	}
	var out core.Review
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointReviewCreate,
		Body:        in,
		RequireAuth: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Review submitted", map[string]interface{}{
		"operation":  "review_submit",
		"product_id": in.ProductID,
		"rating":     in.Rating,
	})
	return &out, nil
}

// Update replaces the rating and comment of an existing review.
func (s *Store) Update(ctx context.Context, reviewID string, rating int, comment string) (*core.Review, error) {
	if !s.session.IsAuthenticated() {
		return nil, core.ErrSessionExpired
	}
	if err := validateRating(rating); err != nil {
		return nil, err
	}
	var out core.Review
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:   api.EndpointReviewUpdate,
		PathParams: map[string]string{"reviewId": reviewID},
		Body: map[string]interface{}{
			"rating":  rating,
			"comment": comment,
		},
		RequireAuth: true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes the review, then refetches the product's stats so the
// caller can repaint the aggregate without a second round of wiring.
func (s *Store) Delete(ctx context.Context, reviewID string, productID int64) (*core.ReviewStats, error) {
	if !s.session.IsAuthenticated() {
		return nil, core.ErrSessionExpired
	}
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:    api.EndpointReviewDelete,
		PathParams:  map[string]string{"reviewId": reviewID},
		RequireAuth: true,
	}, nil)
	if err != nil {
		return nil, err
	}
	return s.Stats(ctx, productID)
}

// Stats fetches the aggregate fresh from the server.
func (s *Store) Stats(ctx context.Context, productID int64) (*core.ReviewStats, error) {
	var out core.ReviewStats
	err := s.api.DoInto(ctx, api.Request{
		Endpoint:   api.EndpointReviewStats,
		PathParams: productParams(productID),
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func validateRating(rating int) error {
	if rating < 1 || rating > 5 {
		return core.NewValidationError(nil, "rating must be between 1 and 5")
	}
	return nil
}

func productParams(id int64) map[string]string {
	return map[string]string{"productId": strconv.FormatInt(id, 10)}
}
