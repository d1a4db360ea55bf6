package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ecobazaar/ordercore/internal/domain"
)

var (
	ErrOrderNotFound = errors.New("order not found")
	ErrItemNotFound  = errors.New("order item not found for seller")
	ErrClosedOrder   = errors.New("order is in a terminal state")
	ErrBadTransition = errors.New("status transition not allowed")
)

// OrderRepository persists orders together with their adjustment outbox.
// Every mutation that implies a catalog or reward counter change writes the
// order rows and the pending adjustment rows in one transaction, so the
// intent survives a crash before the counters are touched.
type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, order *domain.Order, adjustments []domain.Adjustment) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders.orders (
			id, buyer_id, buyer_name, buyer_email, address, payment_method,
			delivery_charge, discount, total_amount, total_carbon_points,
			status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
	`, order.ID, order.BuyerID, order.BuyerName, order.BuyerEmail, order.Address,
		order.PaymentMethod, order.DeliveryCharge, order.Discount, order.TotalAmount,
		order.TotalCarbonPoints, order.Status, order.CreatedAt)
	if err != nil {
		return err
	}

	for i, item := range order.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO orders.order_items (
				id, order_id, position, product_id, seller_id, product_name,
				price, quantity, carbon_points, image_url, status, seller_status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, uuid.New().String(), order.ID, i, item.ProductID, item.SellerID,
			item.ProductName, item.Price, item.Quantity, item.CarbonPoints,
			item.ImageURL, item.Status, item.SellerStatus)
		if err != nil {
			return err
		}
	}

	if err := insertAdjustments(ctx, tx, order.ID, adjustments); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, buyer_id, buyer_name, buyer_email, address, payment_method,
		       delivery_charge, discount, total_amount, total_carbon_points,
		       status, created_at
		FROM orders.orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.BuyerID, &order.BuyerName, &order.BuyerEmail,
		&order.Address, &order.PaymentMethod, &order.DeliveryCharge, &order.Discount,
		&order.TotalAmount, &order.TotalCarbonPoints, &order.Status, &order.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, seller_id, product_name, price, quantity,
		       carbon_points, image_url, status, seller_status
		FROM orders.order_items
		WHERE order_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.SellerID, &item.ProductName,
			&item.Price, &item.Quantity, &item.CarbonPoints, &item.ImageURL,
			&item.Status, &item.SellerStatus); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return order, nil
}

func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, buyer_id, buyer_name, buyer_email, address, payment_method,
		       delivery_charge, discount, total_amount, total_carbon_points,
		       status, created_at
		FROM orders.orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC
	`, buyerID)
}

func (r *OrderRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, buyer_id, buyer_name, buyer_email, address, payment_method,
		       delivery_charge, discount, total_amount, total_carbon_points,
		       status, created_at
		FROM orders.orders
		WHERE id IN (SELECT order_id FROM orders.order_items WHERE seller_id = $1)
		ORDER BY created_at DESC
	`, sellerID)
}

func (r *OrderRepository) list(ctx context.Context, query string, arg any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.BuyerID, &order.BuyerName, &order.BuyerEmail,
			&order.Address, &order.PaymentMethod, &order.DeliveryCharge, &order.Discount,
			&order.TotalAmount, &order.TotalCarbonPoints, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, seller_id, product_name, price, quantity,
		       carbon_points, image_url, status, seller_status
		FROM orders.order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var orderID string
		var item domain.OrderItem
		if err := itemRows.Scan(&orderID, &item.ProductID, &item.SellerID, &item.ProductName,
			&item.Price, &item.Quantity, &item.CarbonPoints, &item.ImageURL,
			&item.Status, &item.SellerStatus); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// CloseOrder moves an order and every one of its items to a terminal status
// and queues the reverse adjustments, all in one transaction. The order row
// is locked for the duration so that concurrent close calls serialize.
// Returns false without error when the order is already at the target status,
// so retried cancellations never queue a second round of adjustments.
func (r *OrderRepository) CloseOrder(ctx context.Context, id string, target domain.Status, adjustments []domain.Adjustment) (bool, error) {
	if !target.Terminal() {
		return false, fmt.Errorf("%w: %s is not terminal", ErrBadTransition, target)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.Status
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders.orders WHERE id = $1 FOR UPDATE
	`, id).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, ErrOrderNotFound
		}
		return false, err
	}

	if current == target {
		return false, nil
	}
	if current.Terminal() {
		return false, ErrClosedOrder
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		UPDATE orders.orders SET status = $1, updated_at = $2 WHERE id = $3
	`, target, now, id); err != nil {
		return false, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders.order_items SET status = $1, seller_status = $1 WHERE order_id = $2
	`, target, id); err != nil {
		return false, err
	}

	if err := insertAdjustments(ctx, tx, id, adjustments); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}

	return true, nil
}

// UpdateItemStatus sets the seller status of the single item matching the
// (seller, product) pair. The item row is locked so concurrent updates to
// sibling items of the same order cannot overwrite each other. The order
// header is never touched here.
func (r *OrderRepository) UpdateItemStatus(ctx context.Context, orderID, sellerID, productID string, status domain.Status) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var current domain.Status
	err = tx.QueryRowContext(ctx, `
		SELECT seller_status
		FROM orders.order_items
		WHERE order_id = $1 AND seller_id = $2 AND product_id = $3
		FOR UPDATE
	`, orderID, sellerID, productID).Scan(&current)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrItemNotFound
		}
		return err
	}

	if !current.CanTransition(status) {
		if current.Terminal() {
			return ErrClosedOrder
		}
		return fmt.Errorf("%w: %s -> %s", ErrBadTransition, current, status)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE orders.order_items SET seller_status = $1
		WHERE order_id = $2 AND seller_id = $3 AND product_id = $4
	`, status, orderID, sellerID, productID); err != nil {
		return err
	}

	return tx.Commit()
}

func insertAdjustments(ctx context.Context, tx *sql.Tx, orderID string, adjustments []domain.Adjustment) error {
	for _, adj := range adjustments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders.adjustments (order_id, kind, subject_id, stock_delta, sold_delta, point_delta, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, orderID, adj.Kind, adj.SubjectID, adj.StockDelta, adj.SoldDelta, adj.PointDelta, domain.AdjustmentPending)
		if err != nil {
			return err
		}
	}
	return nil
}
