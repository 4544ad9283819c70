/**
 * @description
 * This file contains the pricing calculation for enrollments: resolving the
 * effective base price, applying a coupon discount, and adding tax on the
 * discounted amount. The result is the immutable snapshot frozen onto the
 * enrollment row at initiation time.
 *
 * @notes
 * - All arithmetic uses decimal.Decimal; each of the three derived amounts is
 *   rounded to two decimal places (half away from zero) independently, so the
 *   persisted snapshot always satisfies final = (base - discount) + tax.
 */

package app

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/yogatara/enrollment-service/internal/domain"
)

var (
	// ErrInvalidPricing means the catalog pricing row cannot produce a
	// chargeable amount (non-positive effective price on a paid course).
	ErrInvalidPricing = errors.New("course pricing is invalid")
)

var oneHundred = decimal.NewFromInt(100)

// EffectiveBasePrice returns the price a purchase starts from: the sale price
// when one is set and positive, otherwise the regular price.
func EffectiveBasePrice(pricing *domain.CoursePricing) decimal.Decimal {
	if pricing.SalePrice != nil && pricing.SalePrice.IsPositive() {
		return *pricing.SalePrice
	}
	return pricing.Price
}

// ComputeQuote produces the pricing snapshot for one enrollment. A free
// course yields an all-zero snapshot regardless of any coupon. For paid
// courses: base from EffectiveBasePrice, discount from the coupon clamped to
// [0, base], tax computed on the discounted amount only.
func ComputeQuote(pricing *domain.CoursePricing, coupon *domain.Coupon, taxRate decimal.Decimal) (domain.PricingSnapshot, error) {
	if pricing.IsFree {
		zero := decimal.Zero.Round(2)
		return domain.PricingSnapshot{
			BaseAmount:     zero,
			DiscountAmount: zero,
			TaxAmount:      zero,
			FinalAmount:    zero,
		}, nil
	}

	base := EffectiveBasePrice(pricing)
	if !base.IsPositive() {
		return domain.PricingSnapshot{}, ErrInvalidPricing
	}

	discount := decimal.Zero
	if coupon != nil {
		switch coupon.DiscountType {
		case domain.DiscountPercent:
			discount = base.Mul(coupon.DiscountValue).Div(oneHundred)
		case domain.DiscountFixed:
			discount = coupon.DiscountValue
		}
		if discount.GreaterThan(base) {
			discount = base
		}
		if discount.IsNegative() {
			discount = decimal.Zero
		}
	}
	discount = discount.Round(2)

	discounted := base.Sub(discount)
	tax := discounted.Mul(taxRate).Round(2)
	final := discounted.Add(tax).Round(2)

	return domain.PricingSnapshot{
		BaseAmount:     base.Round(2),
		DiscountAmount: discount,
		TaxAmount:      tax,
		FinalAmount:    final,
	}, nil
}
