package core

import "time"

// ProductStatus mirrors the server's availability flag.
type ProductStatus string

const (
	ProductAvailable  ProductStatus = "available"
	ProductOutOfStock ProductStatus = "out_of_stock"
)

// Product is owned by the server; the client only caches it. JSON tags match
// the merchant API's snake_case fields.
type Product struct {
	ID            int64         `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Price         float64       `json:"price"`
	DiscountPrice *float64      `json:"discount_price"`
	StockQuantity int           `json:"stock_quantity"`
	Status        ProductStatus `json:"status"`
	CategoryID    int64         `json:"category_id"`
	ImageURL      string        `json:"image_url,omitempty"`
	Sizes         []string      `json:"sizes,omitempty"`
	Colors        []string      `json:"colors,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// CartLine is one purchasable row of the cart. ID is server-assigned in
// synced mode and a client-generated timestamp string in guest mode.
// A line never persists with quantity <= 0; reaching zero removes it.
type CartLine struct {
	ID            string   `json:"id"`
	ProductID     int64    `json:"product_id"`
	Name          string   `json:"name"`
	Price         float64  `json:"price"`
	DiscountPrice *float64 `json:"discount_price"`
	Quantity      int      `json:"quantity"`
	Size          string   `json:"size,omitempty"`
	Color         string   `json:"color,omitempty"`
}

// CartSummary is derived from the lines and never stored independently.
type CartSummary struct {
	TotalItems  int     `json:"total_items"`
	TotalAmount float64 `json:"total_amount"`
	LineCount   int     `json:"line_count"`
}

// CartSnapshot is the persisted mirror document: one storage key holds
// exactly this shape, and it must round-trip.
type CartSnapshot struct {
	Items   []CartLine  `json:"items"`
	Summary CartSummary `json:"summary"`
}

// PaymentMethod for order submission. Defaults to COD when unset.
type PaymentMethod string

const (
	PaymentCOD          PaymentMethod = "COD"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
)

// OrderItem is one explicit line of a direct (buy-now) order request.
type OrderItem struct {
	ProductID int64  `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size,omitempty"`
	Color     string `json:"color,omitempty"`
}

// Order as returned by the merchant API.
type Order struct {
	ID              string        `json:"id"`
	Status          string        `json:"status"`
	Items           []OrderItem   `json:"items,omitempty"`
	ShippingAddress string        `json:"shipping_address"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	Subtotal        float64       `json:"subtotal"`
	ShippingFee     float64       `json:"shipping_fee"`
	Total           float64       `json:"total"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Role is the unverified role claim decoded from the token, for display only.
type Role string

const (
	RoleUser   Role = "user"
	RoleSeller Role = "seller"
	RoleAdmin  Role = "admin"
)

// Review is a user's single review of a product.
type Review struct {
	ID        string    `json:"id"`
	ProductID int64     `json:"product_id"`
	UserID    string    `json:"user_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewStats are always fetched fresh from the server, never derived from
// the client's partial review list.
type ReviewStats struct {
	AverageRating      float64     `json:"average_rating"`
	TotalReviews       int         `json:"total_reviews"`
	RatingDistribution map[int]int `json:"rating_distribution"`
}
