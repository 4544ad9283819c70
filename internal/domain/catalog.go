package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Course represents a simplified view of a catalog course, containing only
// the data the enrollment-service needs. Catalog records are read-only here.
type Course struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Slug  string    `json:"slug"`
}

// CoursePricing is the catalog's pricing record for a course (1:1).
type CoursePricing struct {
	ID        uuid.UUID        `json:"id"`
	CourseID  uuid.UUID        `json:"course_id"`
	Price     decimal.Decimal  `json:"price"`
	SalePrice *decimal.Decimal `json:"sale_price,omitempty"`
	Currency  string           `json:"currency"`
	IsFree    bool             `json:"is_free"`
}

// CouponDiscountType selects between percentage and fixed-amount discounts.
type CouponDiscountType string

const (
	DiscountPercent CouponDiscountType = "percent"
	DiscountFixed   CouponDiscountType = "fixed"
)

// Coupon is a catalog discount code with validity, usage, and eligibility
// constraints. Consumed read-only at validation time; usage counters are
// advanced when a payment is captured.
type Coupon struct {
	ID            uuid.UUID          `json:"id"`
	Code          string             `json:"code"`
	DiscountType  CouponDiscountType `json:"discount_type"`
	DiscountValue decimal.Decimal    `json:"discount_value"`
	ValidFrom     *time.Time         `json:"valid_from,omitempty"`
	ValidTo       *time.Time         `json:"valid_to,omitempty"`
	IsActive      bool               `json:"is_active"`
	MaxUses       *int               `json:"max_uses,omitempty"`
	CurrentUses   int                `json:"current_uses"`
}

// Usable reports whether the coupon can be redeemed at the given instant:
// active, inside its validity window, and under its usage cap.
func (c *Coupon) Usable(now time.Time) bool {
	if !c.IsActive {
		return false
	}
	if c.MaxUses != nil && c.CurrentUses >= *c.MaxUses {
		return false
	}
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return false
	}
	return true
}

// CouponCourseScope summarizes a coupon's course restrictions relative to one
// course. A coupon with no restriction rows applies to every course.
type CouponCourseScope struct {
	Restricted bool
	Applicable bool
}

// AppliesTo reports whether a coupon with this scope may be used on the
// course the scope was resolved against.
func (s CouponCourseScope) AppliesTo() bool {
	return !s.Restricted || s.Applicable
}

// CouponEligibility tracks a per-user coupon grant and whether it has been
// consumed.
type CouponEligibility struct {
	ID       uuid.UUID  `json:"id"`
	CouponID uuid.UUID  `json:"coupon_id"`
	UserID   uuid.UUID  `json:"user_id"`
	IsUsed   bool       `json:"is_used"`
	UsedAt   *time.Time `json:"used_at,omitempty"`
}
