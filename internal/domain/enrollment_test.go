package domain

import (
	"testing"
	"time"
)

func TestEnrollment_PastExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Minute)
	after := now.Add(time.Minute)

	cases := []struct {
		name       string
		enrollment Enrollment
		want       bool
	}{
		{"no expiry set", Enrollment{PaymentStatus: EnrollmentPending}, false},
		{"window still open", Enrollment{PaymentStatus: EnrollmentPending, ExpiresAt: &after}, false},
		{"window closed", Enrollment{PaymentStatus: EnrollmentPending, ExpiresAt: &before}, true},
		{"exactly at deadline", Enrollment{PaymentStatus: EnrollmentPending, ExpiresAt: &now}, true},
		{"flag already set", Enrollment{PaymentStatus: EnrollmentExpired, IsExpired: true, ExpiresAt: &after}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.enrollment.PastExpiry(now); got != tc.want {
				t.Errorf("PastExpiry = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEnrollment_ExpireTransitionsPending(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Minute)

	e := Enrollment{PaymentStatus: EnrollmentPending, ExpiresAt: &before}
	if !e.Expire(now) {
		t.Fatal("expected Expire to report a change")
	}
	if e.PaymentStatus != EnrollmentExpired {
		t.Errorf("expected expired status, got %s", e.PaymentStatus)
	}
	if !e.IsExpired {
		t.Error("expected is_expired flag to be set")
	}
	if e.IsActive {
		t.Error("expected enrollment to be inactive")
	}
}

func TestEnrollment_ExpireIsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Minute)

	e := Enrollment{PaymentStatus: EnrollmentPending, ExpiresAt: &before}
	e.Expire(now)
	if e.Expire(now) {
		t.Error("expected second Expire to be a no-op")
	}
	if e.PaymentStatus != EnrollmentExpired {
		t.Errorf("expected status to stay expired, got %s", e.PaymentStatus)
	}
}

func TestEnrollment_ExpireLeavesNonPendingAlone(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Minute)

	for _, status := range []EnrollmentPaymentStatus{EnrollmentFree, EnrollmentPaid, EnrollmentRefunded} {
		e := Enrollment{PaymentStatus: status, IsActive: true, ExpiresAt: &before}
		if e.Expire(now) {
			t.Errorf("expected Expire to be a no-op for %s", status)
		}
		if e.PaymentStatus != status {
			t.Errorf("expected status %s to be untouched, got %s", status, e.PaymentStatus)
		}
	}
}

func TestPaymentStatus_InFlight(t *testing.T) {
	inFlight := []PaymentStatus{PaymentCreated, PaymentAuthorized}
	terminal := []PaymentStatus{PaymentCaptured, PaymentFailed, PaymentRefunded}

	for _, s := range inFlight {
		if !s.InFlight() {
			t.Errorf("expected %s to be in flight", s)
		}
	}
	for _, s := range terminal {
		if s.InFlight() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
}

func TestCoupon_Usable(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	capTwo := 2

	cases := []struct {
		name   string
		coupon Coupon
		want   bool
	}{
		{"active without constraints", Coupon{IsActive: true}, true},
		{"inactive", Coupon{IsActive: false}, false},
		{"inside window", Coupon{IsActive: true, ValidFrom: &past, ValidTo: &future}, true},
		{"not yet valid", Coupon{IsActive: true, ValidFrom: &future}, false},
		{"already ended", Coupon{IsActive: true, ValidTo: &past}, false},
		{"under cap", Coupon{IsActive: true, MaxUses: &capTwo, CurrentUses: 1}, true},
		{"at cap", Coupon{IsActive: true, MaxUses: &capTwo, CurrentUses: 2}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.coupon.Usable(now); got != tc.want {
				t.Errorf("Usable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCouponCourseScope_AppliesTo(t *testing.T) {
	cases := []struct {
		name  string
		scope CouponCourseScope
		want  bool
	}{
		{"unrestricted", CouponCourseScope{}, true},
		{"restricted and listed", CouponCourseScope{Restricted: true, Applicable: true}, true},
		{"restricted and not listed", CouponCourseScope{Restricted: true, Applicable: false}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.scope.AppliesTo(); got != tc.want {
				t.Errorf("AppliesTo = %v, want %v", got, tc.want)
			}
		})
	}
}
