// Package apitest runs an in-process merchant API double for tests. It
// speaks the production envelope, enforces bearer auth on the routes that
// need it, and keeps just enough state (cart, orders, reviews) for the
// stores to run their full flows against. Failure injection is per-flag so
// a test can break exactly one call in the middle of a multi-call protocol.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/julienschmidt/httprouter"

	"github.com/snag21205/unimerch/core"
)

// RequestRecord is one observed call, for ordering assertions.
type RequestRecord struct {
	Method string
	Path   string
}

type cartItem struct {
	ID            string   `json:"id"`
	ProductID     int64    `json:"product_id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Quantity      int      `json:"quantity"`
	Size          string   `json:"size,omitempty"`
	Color         string   `json:"color,omitempty"`
}

// Server is the test double. Mutate its fields only before traffic starts
// or while holding no in-flight requests; handlers lock internally.
type Server struct {
	HTTP *httptest.Server

	// Token is the only bearer value the server accepts.
	Token string

	mu       sync.Mutex
	products []core.Product
	cart     []cartItem
	orders   []core.Order
	reviews  []core.Review
	nextID   int
	requests []RequestRecord

	// Failure injection.
	FailOrderCreate   bool
	FailRemoveItemIDs map[string]bool
	FailAddProductIDs map[int64]bool
}

// NewServer starts the double with the given catalog.
func NewServer(products []core.Product) *Server {
	s := &Server{
		Token:             "test-token",
		products:          products,
		nextID:            1,
		FailRemoveItemIDs: map[string]bool{},
		FailAddProductIDs: map[int64]bool{},
	}

	r := httprouter.New()

	// Auth
	r.POST("/api/auth/login", s.handleLogin)
	r.POST("/api/auth/register", s.handleLogin)
	r.POST("/api/auth/forgot-password", s.handleOK)
	r.POST("/api/auth/reset-password", s.handleOK)

	// Products
	r.GET("/api/products", s.handleProducts)
	r.GET("/api/products/:productId", s.handleProduct)

	// Cart
	r.GET("/api/cart", s.auth(s.handleCart))
	r.POST("/api/cart/items", s.auth(s.handleCartAdd))
	r.PUT("/api/cart/items/:itemId", s.auth(s.handleCartUpdate))
	r.DELETE("/api/cart/items/:itemId", s.auth(s.handleCartRemove))
	r.DELETE("/api/cart", s.auth(s.handleCartClear))

	// Orders
	r.GET("/api/orders", s.auth(s.handleOrders))
	r.GET("/api/orders/:orderId", s.auth(s.handleOrder))
	r.POST("/api/orders/from-cart", s.auth(s.handleOrderFromCart))
	r.POST("/api/orders", s.auth(s.handleOrderDirect))

	// Reviews
	r.GET("/api/reviews/products/:productId", s.handleReviews)
	r.GET("/api/reviews/products/:productId/me", s.auth(s.handleMyReview))
	r.GET("/api/reviews/products/:productId/stats", s.handleReviewStats)
	r.POST("/api/reviews", s.auth(s.handleReviewCreate))
	r.PUT("/api/reviews/:reviewId", s.auth(s.handleReviewUpdate))
	r.DELETE("/api/reviews/:reviewId", s.auth(s.handleReviewDelete))

	s.HTTP = httptest.NewServer(s.record(r))
	return s
}

// URL is the base URL clients should use.
func (s *Server) URL() string { return s.HTTP.URL }

// Close shuts the double down.
func (s *Server) Close() { s.HTTP.Close() }

// MakeToken mints a signed JWT carrying the claims the session layer
// decodes. The signature is irrelevant, only the payload matters.
func MakeToken(userID string, role core.Role) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   userID,
		"role": string(role),
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	signed, err := tok.SignedString([]byte("apitest"))
	if err != nil {
		panic(err)
	}
	return signed
}

// Requests returns a copy of the observed call log.
func (s *Server) Requests() []RequestRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RequestRecord, len(s.requests))
	copy(out, s.requests)
	return out
}

// ResetRequests clears the call log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// CartItems returns the server-side cart state.
func (s *Server) CartItems() []core.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.CartLine, 0, len(s.cart))
	for _, it := range s.cart {
		out = append(out, core.CartLine(it))
	}
	return out
}

// SeedCart places items directly into the server-side cart.
func (s *Server) SeedCart(lines []core.CartLine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
	for _, l := range lines {
		it := cartItem(l)
		if it.ID == "" {
			it.ID = s.newID()
		}
		s.cart = append(s.cart, it)
	}
}

// SeedReviews installs the review fixtures.
func (s *Server) SeedReviews(reviews []core.Review) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = reviews
}

// Orders returns the orders created so far.
func (s *Server) Orders() []core.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Order, len(s.orders))
	copy(out, s.orders)
	return out
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, RequestRecord{Method: r.Method, Path: r.URL.Path})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) auth(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeError(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		next(w, r, ps)
	}
}

func (s *Server) newID() string {
	id := strconv.Itoa(s.nextID)
	s.nextID++
	return id
}

// --- Handlers ---

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"email is required"})
		return
	}
	writeData(w, map[string]interface{}{"token": s.Token})
}

func (s *Server) handleOK(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	writeData(w, nil)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := r.URL.Query()
	out := []core.Product{}
	for _, p := range s.products {
		if search := q.Get("search"); search != "" && p.Name != search {
			continue
		}
		if cid := q.Get("category_id"); cid != "" && strconv.FormatInt(p.CategoryID, 10) != cid {
			continue
		}
		if min := q.Get("min_price"); min != "" {
			if v, err := strconv.ParseFloat(min, 64); err == nil && p.Price < v {
				continue
			}
		}
		if max := q.Get("max_price"); max != "" {
			if v, err := strconv.ParseFloat(max, 64); err == nil && p.Price > v {
				continue
			}
		}
		out = append(out, p)
	}
	writeData(w, map[string]interface{}{"products": out})
}

func (s *Server) handleProduct(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := strconv.ParseInt(ps.ByName("productId"), 10, 64)
	for _, p := range s.products {
		if p.ID == id {
			writeData(w, p)
			return
		}
	}
	writeError(w, http.StatusNotFound, "product not found", nil)
}

func (s *Server) handleCart(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.cart
	if items == nil {
		items = []cartItem{}
	}
	writeData(w, map[string]interface{}{"items": items})
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ProductID int64  `json:"product_id"`
		Quantity  int    `json:"quantity"`
		Size      string `json:"size"`
		Color     string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ProductID == 0 || body.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"product_id and quantity are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAddProductIDs[body.ProductID] {
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}

	var product *core.Product
	for i := range s.products {
		if s.products[i].ID == body.ProductID {
			product = &s.products[i]
			break
		}
	}
	if product == nil {
		writeError(w, http.StatusNotFound, "product not found", nil)
		return
	}

	// Server-side matching is per variant: same product in another size or
	// color is a distinct line.
	for i := range s.cart {
		it := &s.cart[i]
		if it.ProductID == body.ProductID && it.Size == body.Size && it.Color == body.Color {
			it.Quantity += body.Quantity
			writeData(w, it)
			return
		}
	}
	item := cartItem{
		ID:            s.newID(),
		ProductID:     product.ID,
		Name:          product.Name,
		Price:         product.Price,
		DiscountPrice: product.DiscountPrice,
		Quantity:      body.Quantity,
		Size:          body.Size,
		Color:         body.Color,
	}
	s.cart = append(s.cart, item)
	writeData(w, item)
}

func (s *Server) handleCartUpdate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Quantity < 1 {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"quantity must be positive"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("itemId")
	for i := range s.cart {
		if s.cart[i].ID == id {
			s.cart[i].Quantity = body.Quantity
			writeData(w, s.cart[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "cart item not found", nil)
}

func (s *Server) handleCartRemove(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("itemId")
	if s.FailRemoveItemIDs[id] {
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	for i := range s.cart {
		if s.cart[i].ID == id {
			s.cart = append(s.cart[:i], s.cart[i+1:]...)
			writeData(w, nil)
			return
		}
	}
	writeError(w, http.StatusNotFound, "cart item not found", nil)
}

func (s *Server) handleCartClear(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cart = nil
	writeData(w, nil)
}

func (s *Server) handleOrders(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orders := s.orders
	if orders == nil {
		orders = []core.Order{}
	}
	writeData(w, map[string]interface{}{"orders": orders})
}

func (s *Server) handleOrder(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("orderId")
	for _, o := range s.orders {
		if o.ID == id {
			writeData(w, o)
			return
		}
	}
	writeError(w, http.StatusNotFound, "order not found", nil)
}

func (s *Server) handleOrderFromCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ShippingAddress string `json:"shipping_address"`
		PaymentMethod   string `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ShippingAddress == "" {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"shipping_address is required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailOrderCreate {
		writeError(w, http.StatusInternalServerError, "internal error", nil)
		return
	}
	if len(s.cart) == 0 {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"cart is empty"})
		return
	}

	order := core.Order{
		ID:              s.newID(),
		Status:          "pending",
		ShippingAddress: body.ShippingAddress,
		PaymentMethod:   core.PaymentMethod(body.PaymentMethod),
		CreatedAt:       time.Now(),
	}
	for _, it := range s.cart {
		order.Items = append(order.Items, core.OrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Size:      it.Size,
			Color:     it.Color,
		})
	}
	// from-cart consumes the whole server cart.
	s.cart = nil
	s.orders = append(s.orders, order)
	writeData(w, order)
}

func (s *Server) handleOrderDirect(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		Items           []core.OrderItem `json:"items"`
		ShippingAddress string           `json:"shipping_address"`
		PaymentMethod   string           `json:"payment_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ShippingAddress == "" || len(body.Items) == 0 {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"items and shipping_address are required"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	order := core.Order{
		ID:              s.newID(),
		Status:          "pending",
		Items:           body.Items,
		ShippingAddress: body.ShippingAddress,
		PaymentMethod:   core.PaymentMethod(body.PaymentMethod),
		CreatedAt:       time.Now(),
	}
	s.orders = append(s.orders, order)
	writeData(w, order)
}

func (s *Server) handleReviews(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := strconv.ParseInt(ps.ByName("productId"), 10, 64)
	out := []core.Review{}
	for _, rv := range s.reviews {
		if rv.ProductID == id {
			out = append(out, rv)
		}
	}
	writeData(w, map[string]interface{}{"reviews": out})
}

func (s *Server) handleMyReview(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := strconv.ParseInt(ps.ByName("productId"), 10, 64)
	for _, rv := range s.reviews {
		if rv.ProductID == id && rv.UserID == "me" {
			writeData(w, rv)
			return
		}
	}
	writeError(w, http.StatusNotFound, "review not found", nil)
}

func (s *Server) handleReviewStats(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, _ := strconv.ParseInt(ps.ByName("productId"), 10, 64)
	stats := core.ReviewStats{RatingDistribution: map[int]int{}}
	sum := 0
	for _, rv := range s.reviews {
		if rv.ProductID != id {
			continue
		}
		stats.TotalReviews++
		stats.RatingDistribution[rv.Rating]++
		sum += rv.Rating
	}
	if stats.TotalReviews > 0 {
		stats.AverageRating = float64(sum) / float64(stats.TotalReviews)
	}
	writeData(w, stats)
}

func (s *Server) handleReviewCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var body struct {
		ProductID int64  `json:"product_id"`
		Rating    int    `json:"rating"`
		Comment   string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"rating must be between 1 and 5"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rv := range s.reviews {
		if rv.ProductID == body.ProductID && rv.UserID == "me" {
			writeError(w, http.StatusBadRequest, "validation failed", []string{"product already reviewed"})
			return
		}
	}
	rv := core.Review{
		ID:        s.newID(),
		ProductID: body.ProductID,
		UserID:    "me",
		Rating:    body.Rating,
		Comment:   body.Comment,
		CreatedAt: time.Now(),
	}
	s.reviews = append(s.reviews, rv)
	writeData(w, rv)
}

func (s *Server) handleReviewUpdate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Rating < 1 || body.Rating > 5 {
		writeError(w, http.StatusBadRequest, "validation failed", []string{"rating must be between 1 and 5"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("reviewId")
	for i := range s.reviews {
		if s.reviews[i].ID == id {
			s.reviews[i].Rating = body.Rating
			s.reviews[i].Comment = body.Comment
			writeData(w, s.reviews[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "review not found", nil)
}

func (s *Server) handleReviewDelete(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := ps.ByName("reviewId")
	for i := range s.reviews {
		if s.reviews[i].ID == id {
			s.reviews = append(s.reviews[:i], s.reviews[i+1:]...)
			writeData(w, nil)
			return
		}
	}
	writeError(w, http.StatusNotFound, "review not found", nil)
}

// --- Envelope helpers ---

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string, errs []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"message": message,
		"errors":  errs,
	})
}
