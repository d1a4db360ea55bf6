package reconciler

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ecobazaar/ordercore/internal/domain"
)

const batchSize = 64

// Sweeper drains the pending adjustment outbox and applies each row to the
// catalog or reward ledger. Rows are claimed with FOR UPDATE SKIP LOCKED, so
// several sweepers (the background one and the engine's inline best-effort
// call) can run concurrently without applying an adjustment twice. An
// adjustment aimed at a product that no longer exists is marked applied and
// skipped, matching the create-order policy for vanished products.
type Sweeper struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSweeper(db *sql.DB, logger *slog.Logger) *Sweeper {
	return &Sweeper{db: db, logger: logger}
}

// Run polls the outbox until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			applied, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "error", err)
				continue
			}
			if applied > 0 {
				s.logger.Info("adjustments applied", "count", applied)
			}
		}
	}
}

// Sweep applies pending adjustments in batches until none remain. Returns the
// number applied.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	total := 0
	for {
		applied, err := s.sweepBatch(ctx)
		if err != nil {
			return total, err
		}
		total += applied
		if applied < batchSize {
			return total, nil
		}
	}
}

func (s *Sweeper) sweepBatch(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, order_id, kind, subject_id, stock_delta, sold_delta, point_delta
		FROM orders.adjustments
		WHERE status = $1
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $2
	`, domain.AdjustmentPending, batchSize)
	if err != nil {
		return 0, err
	}

	var batch []domain.Adjustment
	for rows.Next() {
		var adj domain.Adjustment
		if err := rows.Scan(&adj.ID, &adj.OrderID, &adj.Kind, &adj.SubjectID,
			&adj.StockDelta, &adj.SoldDelta, &adj.PointDelta); err != nil {
			_ = rows.Close()
			return 0, err
		}
		batch = append(batch, adj)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, err
	}
	_ = rows.Close()

	if len(batch) == 0 {
		return 0, nil
	}

	for _, adj := range batch {
		if err := s.apply(ctx, tx, adj); err != nil {
			return 0, fmt.Errorf("apply adjustment %d: %w", adj.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE orders.adjustments SET status = $1, applied_at = now() WHERE id = $2
		`, domain.AdjustmentApplied, adj.ID); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(batch), nil
}

func (s *Sweeper) apply(ctx context.Context, tx *sql.Tx, adj domain.Adjustment) error {
	switch adj.Kind {
	case domain.AdjustmentStock:
		result, err := tx.ExecContext(ctx, `
			UPDATE catalog.products
			SET stock = GREATEST(0, stock + $2), sold = GREATEST(0, sold + $3)
			WHERE id = $1
		`, adj.SubjectID, adj.StockDelta, adj.SoldDelta)
		if err != nil {
			return err
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			s.logger.Warn("stock adjustment for missing product skipped",
				"product_id", adj.SubjectID, "order_id", adj.OrderID)
		}
		return nil

	case domain.AdjustmentReward:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rewards.accounts (user_id, balance, updated_at)
			VALUES ($1, GREATEST(0, $2), now())
			ON CONFLICT (user_id) DO UPDATE
			SET balance = GREATEST(0, accounts.balance + $2), updated_at = now()
		`, adj.SubjectID, adj.PointDelta)
		return err

	default:
		return fmt.Errorf("unknown adjustment kind %q", adj.Kind)
	}
}
