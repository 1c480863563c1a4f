package subscription

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingkit/pkg/pg"
	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// PGStore is a PostgreSQL-backed ProfileStore using the subscription_profiles table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const profileColumns = `user_id, chat_id, plan, pending_plan, payment_active,
	expires_at, next_billing_at, last_payment_at,
	gateway_subscription_id, gateway_customer_id, version, updated_at`

// Create inserts a new profile at version 0.
func (s *PGStore) Create(ctx context.Context, st State) (State, error) {
	if st.UserID == uuid.Nil {
		return State{}, ErrMissingUser
	}
	out, err := scanState(s.pool.QueryRow(ctx, `
		INSERT INTO subscription_profiles (
			user_id, chat_id, plan, pending_plan, payment_active,
			expires_at, next_billing_at, last_payment_at,
			gateway_subscription_id, gateway_customer_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+profileColumns,
		st.UserID, st.ChatID, string(st.Plan), planPtr(st.PendingPlan), st.PaymentActive,
		st.ExpiresAt, st.NextBillingAt, st.LastPaymentAt,
		st.GatewaySubscriptionID, st.GatewayCustomerID,
	))
	if pg.IsDuplicateKeyError(err) {
		return State{}, errors.Join(ErrProfileExists, err)
	}
	return out, err
}

func (s *PGStore) Get(ctx context.Context, userID uuid.UUID) (State, error) {
	return scanState(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM subscription_profiles WHERE user_id = $1`, userID,
	))
}

func (s *PGStore) FindByChatID(ctx context.Context, chatID string) (State, error) {
	if chatID == "" {
		return State{}, ErrProfileNotFound
	}
	return scanState(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM subscription_profiles
		WHERE chat_id = $1 ORDER BY updated_at DESC LIMIT 1`, chatID,
	))
}

func (s *PGStore) FindByCustomerID(ctx context.Context, customerID string) (State, error) {
	if customerID == "" {
		return State{}, ErrProfileNotFound
	}
	return scanState(s.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM subscription_profiles
		WHERE gateway_customer_id = $1 ORDER BY updated_at DESC LIMIT 1`, customerID,
	))
}

func (s *PGStore) FindBySubscriptionID(ctx context.Context, subscriptionID string) ([]State, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM subscription_profiles WHERE gateway_subscription_id = $1`,
		subscriptionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []State
	for rows.Next() {
		st, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *PGStore) UpdateIf(ctx context.Context, st State, version int64) (State, error) {
	out, err := scanState(s.pool.QueryRow(ctx, `
		UPDATE subscription_profiles SET
			chat_id = $3, plan = $4, pending_plan = $5, payment_active = $6,
			expires_at = $7, next_billing_at = $8, last_payment_at = $9,
			gateway_subscription_id = $10, gateway_customer_id = $11,
			version = version + 1, updated_at = now()
		WHERE user_id = $1 AND version = $2
		RETURNING `+profileColumns,
		st.UserID, version,
		st.ChatID, string(st.Plan), planPtr(st.PendingPlan), st.PaymentActive,
		st.ExpiresAt, st.NextBillingAt, st.LastPaymentAt,
		st.GatewaySubscriptionID, st.GatewayCustomerID,
	))
	if !errors.Is(err, ErrProfileNotFound) {
		return out, err
	}
	// No row matched: either the profile is gone or the version moved.
	if _, gerr := s.Get(ctx, st.UserID); gerr != nil {
		return State{}, gerr
	}
	return State{}, ErrVersionMismatch
}

func scanState(row pgx.Row) (State, error) {
	var (
		st      State
		planStr string
		pending *string
	)
	err := row.Scan(
		&st.UserID, &st.ChatID, &planStr, &pending, &st.PaymentActive,
		&st.ExpiresAt, &st.NextBillingAt, &st.LastPaymentAt,
		&st.GatewaySubscriptionID, &st.GatewayCustomerID, &st.Version, &st.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{}, ErrProfileNotFound
	}
	if err != nil {
		return State{}, err
	}
	st.Plan = plan.Plan(planStr)
	if pending != nil && *pending != "" {
		p := plan.Plan(*pending)
		st.PendingPlan = &p
	}
	return st, nil
}

func planPtr(p *plan.Plan) *string {
	if p == nil {
		return nil
	}
	s := string(*p)
	return &s
}
