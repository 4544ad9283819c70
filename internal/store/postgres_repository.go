/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to enrollments, payments, and the read-only catalog tables (courses,
 * course_pricing, coupons).
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/yogatara/enrollment-service/internal/domain"
)

var (
	ErrCourseNotFound        = errors.New("course not found")
	ErrPricingNotFound       = errors.New("course pricing not found")
	ErrCouponNotFound        = errors.New("coupon not found")
	ErrEligibilityNotFound   = errors.New("coupon eligibility not found")
	ErrEnrollmentNotFound    = errors.New("enrollment not found")
	ErrEnrollmentNotEligible = errors.New("enrollment is not eligible for payment")
	ErrEnrollmentExpired     = errors.New("enrollment has expired")
	ErrDuplicateEnrollment   = errors.New("an active enrollment already exists for this course")
	ErrDuplicatePayment      = errors.New("an in-flight payment already exists for this enrollment")
	ErrPaymentNotFound       = errors.New("payment not found")
)

const enrollmentColumns = `id, user_id, course_id, coupon_id, base_amount, discount_amount, tax_amount, final_amount, currency, payment_status, is_active, expires_at, is_expired, created_at, updated_at`

const paymentColumns = `id, enrollment_id, razorpay_order_id, razorpay_payment_id, razorpay_signature, amount, currency, status, gateway_response, failure_reason, created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEnrollment(row rowScanner) (*domain.Enrollment, error) {
	var e domain.Enrollment
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.CourseID,
		&e.CouponID,
		&e.BaseAmount,
		&e.DiscountAmount,
		&e.TaxAmount,
		&e.FinalAmount,
		&e.Currency,
		&e.PaymentStatus,
		&e.IsActive,
		&e.ExpiresAt,
		&e.IsExpired,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func scanPayment(row rowScanner) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(
		&p.ID,
		&p.EnrollmentID,
		&p.RazorpayOrderID,
		&p.RazorpayPaymentID,
		&p.RazorpaySignature,
		&p.Amount,
		&p.Currency,
		&p.Status,
		&p.GatewayResponse,
		&p.FailureReason,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindCourseByID retrieves a catalog course by its ID.
func (r *PostgresRepository) FindCourseByID(ctx context.Context, courseID uuid.UUID) (*domain.Course, error) {
	var course domain.Course
	query := `SELECT id, title, slug FROM courses WHERE id = $1`
	err := r.db.QueryRow(ctx, query, courseID).Scan(&course.ID, &course.Title, &course.Slug)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCourseNotFound
		}
		return nil, err
	}
	return &course, nil
}

// FindPricingByCourseID retrieves the pricing record for a course.
func (r *PostgresRepository) FindPricingByCourseID(ctx context.Context, courseID uuid.UUID) (*domain.CoursePricing, error) {
	var pricing domain.CoursePricing
	query := `SELECT id, course_id, price, sale_price, currency, is_free FROM course_pricing WHERE course_id = $1`
	err := r.db.QueryRow(ctx, query, courseID).Scan(
		&pricing.ID,
		&pricing.CourseID,
		&pricing.Price,
		&pricing.SalePrice,
		&pricing.Currency,
		&pricing.IsFree,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPricingNotFound
		}
		return nil, err
	}
	return &pricing, nil
}

// FindCouponByCode retrieves a coupon by its (unique) code.
func (r *PostgresRepository) FindCouponByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	var coupon domain.Coupon
	query := `
		SELECT id, code, discount_type, discount_value, valid_from, valid_to, is_active, max_uses, current_uses
		FROM coupons
		WHERE code = btrim($1)
	`
	err := r.db.QueryRow(ctx, query, code).Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.DiscountType,
		&coupon.DiscountValue,
		&coupon.ValidFrom,
		&coupon.ValidTo,
		&coupon.IsActive,
		&coupon.MaxUses,
		&coupon.CurrentUses,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// FindCouponCourseScope summarizes a coupon's course restrictions relative to
// one course: how the coupon is scoped overall and whether this course is in
// scope. Zero restriction rows means the coupon applies everywhere.
func (r *PostgresRepository) FindCouponCourseScope(ctx context.Context, couponID, courseID uuid.UUID) (domain.CouponCourseScope, error) {
	var total, matched int
	query := `
		SELECT count(*),
		       count(*) FILTER (WHERE course_id = $2 AND is_applicable)
		FROM coupon_courses
		WHERE coupon_id = $1
	`
	err := r.db.QueryRow(ctx, query, couponID, courseID).Scan(&total, &matched)
	if err != nil {
		return domain.CouponCourseScope{}, err
	}
	return domain.CouponCourseScope{Restricted: total > 0, Applicable: matched > 0}, nil
}

// FindCouponEligibility retrieves the per-user grant record for a coupon, if any.
func (r *PostgresRepository) FindCouponEligibility(ctx context.Context, couponID, userID uuid.UUID) (*domain.CouponEligibility, error) {
	var e domain.CouponEligibility
	query := `
		SELECT id, coupon_id, student_id, is_used, used_at
		FROM student_coupon_eligibility
		WHERE coupon_id = $1 AND student_id = $2
	`
	err := r.db.QueryRow(ctx, query, couponID, userID).Scan(&e.ID, &e.CouponID, &e.UserID, &e.IsUsed, &e.UsedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEligibilityNotFound
		}
		return nil, err
	}
	return &e, nil
}

// HasActiveEnrollment reports whether a non-expired enrollment exists for the
// (user, course) pair.
func (r *PostgresRepository) HasActiveEnrollment(ctx context.Context, userID, courseID uuid.UUID) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2 AND is_expired = false)`
	if err := r.db.QueryRow(ctx, query, userID, courseID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateEnrollment inserts a new enrollment row. A partial unique index on
// (user_id, course_id) WHERE is_expired = false backs the
// one-active-enrollment invariant against concurrent initiations.
func (r *PostgresRepository) CreateEnrollment(ctx context.Context, enrollment *domain.Enrollment) error {
	query := `
		INSERT INTO enrollments (id, user_id, course_id, coupon_id, base_amount, discount_amount, tax_amount, final_amount, currency, payment_status, is_active, expires_at, is_expired, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, false, now(), now())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		enrollment.ID,
		enrollment.UserID,
		enrollment.CourseID,
		enrollment.CouponID,
		enrollment.BaseAmount,
		enrollment.DiscountAmount,
		enrollment.TaxAmount,
		enrollment.FinalAmount,
		enrollment.Currency,
		enrollment.PaymentStatus,
		enrollment.IsActive,
		enrollment.ExpiresAt,
	).Scan(&enrollment.CreatedAt, &enrollment.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateEnrollment
		}
		return err
	}
	return nil
}

// FindEnrollmentByID retrieves an enrollment scoped to its owning user.
func (r *PostgresRepository) FindEnrollmentByID(ctx context.Context, enrollmentID, userID uuid.UUID) (*domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 AND user_id = $2`
	enrollment, err := scanEnrollment(r.db.QueryRow(ctx, query, enrollmentID, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEnrollmentNotFound
		}
		return nil, err
	}
	return enrollment, nil
}

// ListEnrollmentsByUser returns all of a user's enrollments, newest first.
func (r *PostgresRepository) ListEnrollmentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var enrollments []domain.Enrollment
	for rows.Next() {
		enrollment, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		enrollments = append(enrollments, *enrollment)
	}
	return enrollments, rows.Err()
}

// ClaimEnrollmentForPayment performs the atomic read-and-lock that guards
// payment opening: the enrollment row is locked for the duration of the
// eligibility checks so a concurrent open or expiry cannot slip through.
func (r *PostgresRepository) ClaimEnrollmentForPayment(ctx context.Context, enrollmentID, userID uuid.UUID, now time.Time) (*domain.Enrollment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT ` + enrollmentColumns + `
		FROM enrollments
		WHERE id = $1 AND user_id = $2 AND payment_status = 'pending' AND is_expired = false
		FOR UPDATE
	`
	enrollment, err := scanEnrollment(tx.QueryRow(ctx, query, enrollmentID, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrEnrollmentNotEligible
		}
		return nil, err
	}

	// Expiry is enforced here even if no background sweep has run yet.
	if enrollment.Expire(now) {
		_, err = tx.Exec(ctx,
			`UPDATE enrollments SET is_expired = true, payment_status = 'expired', is_active = false, updated_at = now() WHERE id = $1`,
			enrollment.ID,
		)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return nil, ErrEnrollmentExpired
	}

	var inFlight bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE enrollment_id = $1 AND status IN ('created', 'authorized'))`,
		enrollment.ID,
	).Scan(&inFlight)
	if err != nil {
		return nil, err
	}
	if inFlight {
		return nil, ErrDuplicatePayment
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return enrollment, nil
}

// ExpireStaleEnrollments flips stale pending enrollments to expired in bulk.
// SKIP LOCKED keeps the sweep from contending with in-flight payment opens.
func (r *PostgresRepository) ExpireStaleEnrollments(ctx context.Context, now time.Time, limit int) (int64, error) {
	query := `
		UPDATE enrollments
		SET is_expired = true, payment_status = 'expired', is_active = false, updated_at = now()
		WHERE id IN (
			SELECT id FROM enrollments
			WHERE payment_status = 'pending' AND is_expired = false AND expires_at <= $1
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
	`
	tag, err := r.db.Exec(ctx, query, now, limit)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreatePayment inserts the payment row while holding the enrollment row
// lock, so two concurrent opens for the same enrollment serialize here and
// exactly one insert succeeds.
func (r *PostgresRepository) CreatePayment(ctx context.Context, payment *domain.Payment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var status domain.EnrollmentPaymentStatus
	var isExpired bool
	err = tx.QueryRow(ctx,
		`SELECT payment_status, is_expired FROM enrollments WHERE id = $1 FOR UPDATE`,
		payment.EnrollmentID,
	).Scan(&status, &isExpired)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrEnrollmentNotFound
		}
		return err
	}
	if status != domain.EnrollmentPending || isExpired {
		return ErrEnrollmentNotEligible
	}

	var inFlight bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE enrollment_id = $1 AND status IN ('created', 'authorized'))`,
		payment.EnrollmentID,
	).Scan(&inFlight)
	if err != nil {
		return err
	}
	if inFlight {
		return ErrDuplicatePayment
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO payments (id, enrollment_id, razorpay_order_id, amount, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'created', now(), now())
		RETURNING created_at, updated_at
	`,
		payment.ID,
		payment.EnrollmentID,
		payment.RazorpayOrderID,
		payment.Amount,
		payment.Currency,
	).Scan(&payment.CreatedAt, &payment.UpdatedAt)
	if err != nil {
		return err
	}
	payment.Status = domain.PaymentCreated

	return tx.Commit(ctx)
}

// FindPaymentInFlightByOrderID retrieves the created-status payment for a
// gateway order id. Already-verified or unknown orders are not found, which
// makes the synchronous verify path replay-safe.
func (r *PostgresRepository) FindPaymentInFlightByOrderID(ctx context.Context, orderID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE razorpay_order_id = $1 AND status = 'created'`
	payment, err := scanPayment(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return payment, nil
}

// AuthorizePayment transitions created -> authorized, storing the gateway
// payment id and signature. The status condition makes the update a no-op if
// a webhook already moved the row, avoiding lost updates from stale reads.
func (r *PostgresRepository) AuthorizePayment(ctx context.Context, orderID, gatewayPaymentID, signature string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = 'authorized', razorpay_payment_id = $2, razorpay_signature = $3, updated_at = now()
		WHERE razorpay_order_id = $1 AND status = 'created'
	`, orderID, gatewayPaymentID, signature)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// MarkPaymentFailed transitions an in-flight payment to failed with a reason.
// Terminal rows are left untouched.
func (r *PostgresRepository) MarkPaymentFailed(ctx context.Context, orderID, reason string, gatewayResponse []byte) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, gateway_response = COALESCE($3, gateway_response), updated_at = now()
		WHERE razorpay_order_id = $1 AND status IN ('created', 'authorized')
	`, orderID, reason, gatewayResponse)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

// ApplyCaptureEvent applies a payment.captured webhook event in one
// transaction: payment and enrollment rows are locked before the status is
// read, so the synchronous verify path cannot race a stale read in between.
func (r *PostgresRepository) ApplyCaptureEvent(ctx context.Context, orderID, gatewayPaymentID string, entity []byte, now time.Time) (*domain.CaptureResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	payment, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE razorpay_order_id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	enrollment, err := scanEnrollment(tx.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, payment.EnrollmentID))
	if err != nil {
		return nil, err
	}

	result := &domain.CaptureResult{
		PaymentID:    payment.ID,
		EnrollmentID: enrollment.ID,
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
	}

	if payment.Status == domain.PaymentCaptured {
		result.Outcome = domain.CaptureNoop
		return result, tx.Commit(ctx)
	}

	if enrollment.PastExpiry(now) {
		// Money captured on a closed window must not grant access; the
		// failure reason is the hook for the out-of-band refund process.
		_, err = tx.Exec(ctx, `
			UPDATE payments
			SET status = 'failed', failure_reason = 'Captured after expiry', razorpay_payment_id = COALESCE($2, razorpay_payment_id), gateway_response = $3, updated_at = now()
			WHERE id = $1
		`, payment.ID, nullableText(gatewayPaymentID), entity)
		if err != nil {
			return nil, err
		}
		result.Outcome = domain.CaptureRejectedExpired
		return result, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = 'captured', razorpay_payment_id = COALESCE($2, razorpay_payment_id), gateway_response = $3, updated_at = now()
		WHERE id = $1
	`, payment.ID, nullableText(gatewayPaymentID), entity)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE enrollments SET payment_status = 'paid', is_active = true, updated_at = now() WHERE id = $1`,
		enrollment.ID,
	)
	if err != nil {
		return nil, err
	}

	// Coupon usage accounting happens at capture, the point where money has
	// actually moved.
	if enrollment.CouponID != nil {
		_, err = tx.Exec(ctx,
			`UPDATE coupons SET current_uses = current_uses + 1, updated_at = now() WHERE id = $1`,
			*enrollment.CouponID,
		)
		if err != nil {
			return nil, err
		}
		_, err = tx.Exec(ctx, `
			UPDATE student_coupon_eligibility
			SET is_used = true, used_at = now(), updated_at = now()
			WHERE coupon_id = $1 AND student_id = $2 AND is_used = false
		`, *enrollment.CouponID, enrollment.UserID)
		if err != nil {
			return nil, err
		}
	}

	result.Outcome = domain.CaptureApplied
	return result, tx.Commit(ctx)
}

// ApplyFailureEvent applies a payment.failed webhook event. Terminal payments
// (captured/refunded/failed) are left untouched so stale replays cannot
// downgrade state.
func (r *PostgresRepository) ApplyFailureEvent(ctx context.Context, orderID, reason string, entity []byte) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	payment, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE razorpay_order_id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrPaymentNotFound
		}
		return err
	}

	if !payment.Status.InFlight() {
		return tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = 'failed', failure_reason = $2, gateway_response = $3, updated_at = now()
		WHERE id = $1
	`, payment.ID, reason, entity)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplyRefundEvent applies a refund.processed webhook event: payment ->
// refunded, enrollment -> refunded and deactivated, atomically.
func (r *PostgresRepository) ApplyRefundEvent(ctx context.Context, orderID string, entity []byte) (*domain.RefundResult, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	payment, err := scanPayment(tx.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE razorpay_order_id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	enrollment, err := scanEnrollment(tx.QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1 FOR UPDATE`, payment.EnrollmentID))
	if err != nil {
		return nil, err
	}

	result := &domain.RefundResult{
		PaymentID:    payment.ID,
		EnrollmentID: enrollment.ID,
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
	}

	if payment.Status == domain.PaymentRefunded {
		return result, tx.Commit(ctx)
	}

	_, err = tx.Exec(ctx, `
		UPDATE payments
		SET status = 'refunded', gateway_response = $2, updated_at = now()
		WHERE id = $1
	`, payment.ID, entity)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx,
		`UPDATE enrollments SET payment_status = 'refunded', is_active = false, updated_at = now() WHERE id = $1`,
		enrollment.ID,
	)
	if err != nil {
		return nil, err
	}

	result.Applied = true
	return result, tx.Commit(ctx)
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
