package core

// IsDiscounted is the one discount predicate: a discount is active iff it is
// present, positive and strictly below the listed price. Cart totals, catalog
// sort keys and order subtotals all go through here so they cannot drift.
func IsDiscounted(price float64, discount *float64) bool {
	return discount != nil && *discount > 0 && *discount < price
}

// EffectivePrice returns the discount price when active, else the listed price.
func EffectivePrice(price float64, discount *float64) float64 {
	if IsDiscounted(price, discount) {
		return *discount
	}
	return price
}

// EffectivePrice of a product.
func (p Product) EffectivePrice() float64 {
	return EffectivePrice(p.Price, p.DiscountPrice)
}

// Discounted reports whether the product's discount is active.
func (p Product) Discounted() bool {
	return IsDiscounted(p.Price, p.DiscountPrice)
}

// EffectivePrice of a cart line's unit.
func (l CartLine) EffectivePrice() float64 {
	return EffectivePrice(l.Price, l.DiscountPrice)
}

// Summarize recomputes the derived cart summary from the lines. It is the
// only write path into CartSummary.
func Summarize(items []CartLine) CartSummary {
	var s CartSummary
	for _, l := range items {
		s.TotalItems += l.Quantity
		s.TotalAmount += l.EffectivePrice() * float64(l.Quantity)
	}
	s.LineCount = len(items)
	return s
}
