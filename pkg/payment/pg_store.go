package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

// PGStore is a PostgreSQL-backed Store using the payments table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const recordColumns = `gateway_payment_id, user_id, chat_id, customer_id, subscription_id,
	amount::text, plan, kind, status, method, due_date, paid_at,
	invoice_url, receipt_url, pix_payload, pix_qr_code_url, external_reference,
	created_at, updated_at`

func (s *PGStore) Upsert(ctx context.Context, rec Record) (Record, error) {
	if rec.GatewayPaymentID == "" {
		return Record{}, ErrMissingGatewayID
	}

	var out Record
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		existing, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM payments WHERE gateway_payment_id = $1 FOR UPDATE`,
			rec.GatewayPaymentID,
		))
		switch {
		case errors.Is(err, ErrNotFound):
			if rec.UserID == uuid.Nil {
				return ErrMissingUser
			}
			out, err = insertRecord(ctx, tx, rec)
			return err
		case err != nil:
			return err
		}

		merged := Merge(existing, rec)
		out, err = scanRecord(tx.QueryRow(ctx, `
			UPDATE payments SET
				status = $2, paid_at = $3, customer_id = $4, subscription_id = $5, due_date = $6,
				invoice_url = $7, receipt_url = $8, pix_payload = $9, pix_qr_code_url = $10,
				updated_at = now()
			WHERE gateway_payment_id = $1
			RETURNING `+recordColumns,
			merged.GatewayPaymentID, merged.Status, merged.PaidAt, merged.CustomerID, merged.SubscriptionID,
			nullableDate(merged.DueDate), merged.InvoiceURL, merged.ReceiptURL, merged.PixPayload, merged.PixQRCodeURL,
		))
		return err
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func insertRecord(ctx context.Context, tx pgx.Tx, rec Record) (Record, error) {
	return scanRecord(tx.QueryRow(ctx, `
		INSERT INTO payments (
			gateway_payment_id, user_id, chat_id, customer_id, subscription_id,
			amount, plan, kind, status, method, due_date, paid_at,
			invoice_url, receipt_url, pix_payload, pix_qr_code_url, external_reference
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING `+recordColumns,
		rec.GatewayPaymentID, rec.UserID, rec.ChatID, rec.CustomerID, rec.SubscriptionID,
		rec.Amount.StringFixed(2), rec.Plan, lo.CoalesceOrEmpty(rec.Kind, KindStandard), rec.Status, rec.Method,
		nullableDate(rec.DueDate), rec.PaidAt,
		rec.InvoiceURL, rec.ReceiptURL, rec.PixPayload, rec.PixQRCodeURL, rec.ExternalReference,
	))
}

func (s *PGStore) FindByGatewayID(ctx context.Context, id string) (Record, error) {
	return scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payments WHERE gateway_payment_id = $1`, id,
	))
}

func (s *PGStore) CountPendingForUser(ctx context.Context, userID uuid.UUID, statuses []Status, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM payments WHERE user_id = $1 AND status = ANY($2) AND created_at >= $3`,
		userID, statusStrings(statuses), since,
	).Scan(&n)
	return n, err
}

func (s *PGStore) ListByStatus(ctx context.Context, statuses []Status, since time.Time, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+recordColumns+` FROM payments
		WHERE status = ANY($1) AND created_at >= $2
		ORDER BY created_at ASC LIMIT $3`,
		statusStrings(statuses), since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		amount  string
		planStr string
		dueDate *time.Time
	)
	err := row.Scan(
		&rec.GatewayPaymentID, &rec.UserID, &rec.ChatID, &rec.CustomerID, &rec.SubscriptionID,
		&amount, &planStr, &rec.Kind, &rec.Status, &rec.Method, &dueDate, &rec.PaidAt,
		&rec.InvoiceURL, &rec.ReceiptURL, &rec.PixPayload, &rec.PixQRCodeURL, &rec.ExternalReference,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}

	rec.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return Record{}, errors.Join(ErrInvalidAmount, err)
	}
	rec.Plan = plan.Plan(planStr)
	if dueDate != nil {
		rec.DueDate = *dueDate
	}
	return rec, nil
}

func statusStrings(statuses []Status) []string {
	return lo.Map(statuses, func(s Status, _ int) string { return string(s) })
}

func nullableDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
