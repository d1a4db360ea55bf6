package domain

import "time"

type AdjustmentKind string

const (
	AdjustmentStock  AdjustmentKind = "stock"
	AdjustmentReward AdjustmentKind = "reward"
)

type AdjustmentStatus string

const (
	AdjustmentPending AdjustmentStatus = "pending"
	AdjustmentApplied AdjustmentStatus = "applied"
)

// Adjustment is a durable intent to change a catalog or reward counter as a
// side effect of an order mutation. Rows are inserted in the same database
// transaction as the order write, so a crash between persisting the order and
// touching the counters leaves a pending row behind instead of a silent gap;
// the reconciler applies whatever is still pending.
type Adjustment struct {
	ID         int64            `json:"id"`
	OrderID    string           `json:"order_id"`
	Kind       AdjustmentKind   `json:"kind"`
	SubjectID  string           `json:"subject_id"`
	StockDelta int              `json:"stock_delta"`
	SoldDelta  int              `json:"sold_delta"`
	PointDelta float64          `json:"point_delta"`
	Status     AdjustmentStatus `json:"status"`
	CreatedAt  time.Time        `json:"created_at"`
	AppliedAt  *time.Time       `json:"applied_at,omitempty"`
}

// StockAdjustment records a stock/sold counter change for a product.
func StockAdjustment(orderID, productID string, stockDelta, soldDelta int) Adjustment {
	return Adjustment{
		OrderID:    orderID,
		Kind:       AdjustmentStock,
		SubjectID:  productID,
		StockDelta: stockDelta,
		SoldDelta:  soldDelta,
	}
}

// RewardAdjustment records an eco-point balance change for a user.
func RewardAdjustment(orderID, userID string, pointDelta float64) Adjustment {
	return Adjustment{
		OrderID:    orderID,
		Kind:       AdjustmentReward,
		SubjectID:  userID,
		PointDelta: pointDelta,
	}
}
