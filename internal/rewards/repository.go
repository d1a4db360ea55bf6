package rewards

import (
	"context"
	"database/sql"

	"github.com/ecobazaar/ordercore/internal/domain"
)

// RewardsRepository owns per-user eco-point balances. Balances change only
// through AdjustBalance, which is atomic and floored at zero so repeated
// reversals can never drive an account negative.
type RewardsRepository struct {
	db *sql.DB
}

func NewRewardsRepository(db *sql.DB) *RewardsRepository {
	return &RewardsRepository{db: db}
}

func (r *RewardsRepository) GetAccount(ctx context.Context, userID string) (*domain.RewardAccount, error) {
	account := &domain.RewardAccount{}

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, balance, updated_at
		FROM rewards.accounts
		WHERE user_id = $1
	`, userID).Scan(&account.UserID, &account.Balance, &account.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return account, nil
}

// AdjustBalance adds delta to the user's balance, creating the account on
// first accrual. The floor lives in the statement itself so concurrent
// adjustments cannot race past it.
func (r *RewardsRepository) AdjustBalance(ctx context.Context, userID string, delta float64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rewards.accounts (user_id, balance, updated_at)
		VALUES ($1, GREATEST(0, $2), now())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = GREATEST(0, accounts.balance + $2), updated_at = now()
	`, userID, delta)
	return err
}
