package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Endpoint pairs a method with a path template. Path segments starting with
// ':' are substituted from Request.PathParams.
type Endpoint struct {
	Method string
	Path   string
}

// The merchant API surface consumed by the storefront.
var (
	// Auth
	EndpointLogin          = Endpoint{http.MethodPost, "/api/auth/login"}
	EndpointRegister       = Endpoint{http.MethodPost, "/api/auth/register"}
	EndpointForgotPassword = Endpoint{http.MethodPost, "/api/auth/forgot-password"}
	EndpointResetPassword  = Endpoint{http.MethodPost, "/api/auth/reset-password"}

	// Cart
	EndpointCart           = Endpoint{http.MethodGet, "/api/cart"}
	EndpointCartAddItem    = Endpoint{http.MethodPost, "/api/cart/items"}
	EndpointCartUpdateItem = Endpoint{http.MethodPut, "/api/cart/items/:itemId"}
	EndpointCartRemoveItem = Endpoint{http.MethodDelete, "/api/cart/items/:itemId"}
	EndpointCartClear      = Endpoint{http.MethodDelete, "/api/cart"}

	// Orders
	EndpointOrders        = Endpoint{http.MethodGet, "/api/orders"}
	EndpointOrder         = Endpoint{http.MethodGet, "/api/orders/:orderId"}
	EndpointOrderFromCart = Endpoint{http.MethodPost, "/api/orders/from-cart"}
	EndpointOrderDirect   = Endpoint{http.MethodPost, "/api/orders"}

	// Products
	EndpointProducts = Endpoint{http.MethodGet, "/api/products"}
	EndpointProduct  = Endpoint{http.MethodGet, "/api/products/:productId"}

	// Reviews
	EndpointProductReviews = Endpoint{http.MethodGet, "/api/reviews/products/:productId"}
	EndpointMyReview       = Endpoint{http.MethodGet, "/api/reviews/products/:productId/me"}
	EndpointReviewStats    = Endpoint{http.MethodGet, "/api/reviews/products/:productId/stats"}
	EndpointReviewCreate   = Endpoint{http.MethodPost, "/api/reviews"}
	EndpointReviewUpdate   = Endpoint{http.MethodPut, "/api/reviews/:reviewId"}
	EndpointReviewDelete   = Endpoint{http.MethodDelete, "/api/reviews/:reviewId"}
)

// BuildPath substitutes :param placeholders with escaped values. Every
// placeholder must be resolved; a leftover one is a programming error
// surfaced as an error rather than a bad request on the wire.
func BuildPath(template string, params map[string]string) (string, error) {
	segments := strings.Split(template, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		name := seg[1:]
		val, ok := params[name]
		if !ok || val == "" {
			return "", fmt.Errorf("missing path parameter %q for %s", name, template)
		}
		segments[i] = url.PathEscape(val)
	}
	return strings.Join(segments, "/"), nil
}
