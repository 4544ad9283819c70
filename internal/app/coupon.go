/**
 * @description
 * This file contains coupon validation: resolving a code to a coupon and
 * checking every redemption precondition (active, window, usage cap, course
 * scope, per-user eligibility) before the discount is applied to a quote.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yogatara/enrollment-service/internal/domain"
	"github.com/yogatara/enrollment-service/internal/store"
)

var (
	// ErrCouponNotUsable means the coupon exists but is inactive, outside its
	// validity window, or at its usage cap.
	ErrCouponNotUsable = errors.New("coupon cannot be used")
	// ErrCouponNotApplicable means the coupon is restricted to courses that
	// do not include the one being purchased.
	ErrCouponNotApplicable = errors.New("coupon is not applicable to this course")
	// ErrCouponAlreadyUsed means the user's per-user grant for this coupon
	// was already consumed by a captured payment.
	ErrCouponAlreadyUsed = errors.New("coupon has already been used")
)

// couponCheckResult carries a fully validated coupon ready to be applied to
// a quote.
type couponCheckResult struct {
	coupon *domain.Coupon
}

// resolveCoupon validates a coupon code against a (user, course) purchase at
// the given instant. The checks run in a fixed order so callers get the most
// specific error: existence, usability, course scope, then per-user
// eligibility. A coupon with no eligibility rows is open to all users.
func (s *Service) resolveCoupon(ctx context.Context, code string, userID, courseID uuid.UUID, now time.Time) (*couponCheckResult, error) {
	coupon, err := s.repo.FindCouponByCode(ctx, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, store.ErrCouponNotFound) {
			return nil, store.ErrCouponNotFound
		}
		return nil, fmt.Errorf("failed to look up coupon: %w", err)
	}

	if !coupon.Usable(now) {
		return nil, ErrCouponNotUsable
	}

	scope, err := s.repo.FindCouponCourseScope(ctx, coupon.ID, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve coupon course scope: %w", err)
	}
	if !scope.AppliesTo() {
		return nil, ErrCouponNotApplicable
	}

	eligibility, err := s.repo.FindCouponEligibility(ctx, coupon.ID, userID)
	if err != nil && !errors.Is(err, store.ErrEligibilityNotFound) {
		return nil, fmt.Errorf("failed to look up coupon eligibility: %w", err)
	}
	if eligibility != nil && eligibility.IsUsed {
		return nil, ErrCouponAlreadyUsed
	}

	return &couponCheckResult{coupon: coupon}, nil
}
