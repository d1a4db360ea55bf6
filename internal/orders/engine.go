package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ecobazaar/ordercore/internal/domain"
)

// OrderStore is the persistence boundary of the lifecycle engine, satisfied
// by OrderRepository in production.
type OrderStore interface {
	Create(ctx context.Context, order *domain.Order, adjustments []domain.Adjustment) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.Order, error)
	CloseOrder(ctx context.Context, id string, target domain.Status, adjustments []domain.Adjustment) (bool, error)
	UpdateItemStatus(ctx context.Context, orderID, sellerID, productID string, status domain.Status) error
}

// CatalogLedger resolves product snapshots at checkout time. GetProduct
// returns (nil, nil) when the product does not exist.
type CatalogLedger interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Sweeper applies pending adjustments. The engine calls it after a commit as
// a best effort so counters converge immediately in the common case; the
// background reconciler covers crashes.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Producer publishes order lifecycle events.
type Producer interface {
	Publish(ctx context.Context, key string, event any) error
}

// ValidationError names the request field that failed to parse.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Engine orchestrates the order lifecycle: creation, cancellation, return,
// and per-seller item status transitions. Catalog stock/sold counters and
// buyer reward balances are never written directly; every implied change is
// queued as a pending adjustment in the same transaction as the order write.
type Engine struct {
	store    OrderStore
	catalog  CatalogLedger
	sweeper  Sweeper
	producer Producer
	logger   *slog.Logger
}

func NewEngine(store OrderStore, catalog CatalogLedger, sweeper Sweeper, producer Producer, logger *slog.Logger) *Engine {
	return &Engine{
		store:    store,
		catalog:  catalog,
		sweeper:  sweeper,
		producer: producer,
		logger:   logger,
	}
}

type CreateOrderItemInput struct {
	ProductID   string  `json:"product_id"`
	SellerID    string  `json:"seller_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	ImageURL    string  `json:"image_url"`
}

type CreateOrderInput struct {
	BuyerID        string                 `json:"buyer_id"`
	BuyerName      string                 `json:"buyer_name"`
	BuyerEmail     string                 `json:"buyer_email"`
	Address        string                 `json:"address"`
	PaymentMethod  string                 `json:"payment_method"`
	DeliveryCharge float64                `json:"delivery_charge"`
	Discount       float64                `json:"discount"`
	TotalAmount    float64                `json:"total_amount"`
	Items          []CreateOrderItemInput `json:"items"`
}

// CreateOrder validates the request, snapshots each product's eco-point
// weight from the catalog, persists the order with status CONFIRMED, and
// queues the stock decrements and the buyer's reward accrual. A product that
// has vanished from the catalog contributes zero points and its stock
// adjustment is a no-op; the order itself still succeeds.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*domain.Order, error) {
	buyerID, err := parseID(in.BuyerID, "buyerId")
	if err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, &ValidationError{Field: "items", Reason: "must not be empty"}
	}

	order := &domain.Order{
		BuyerID:        buyerID,
		BuyerName:      in.BuyerName,
		BuyerEmail:     in.BuyerEmail,
		Address:        in.Address,
		PaymentMethod:  in.PaymentMethod,
		DeliveryCharge: in.DeliveryCharge,
		Discount:       in.Discount,
		TotalAmount:    in.TotalAmount,
		Status:         domain.StatusConfirmed,
		CreatedAt:      time.Now().UTC(),
	}

	var totalPoints float64
	for i, req := range in.Items {
		productID, err := parseID(req.ProductID, fmt.Sprintf("items[%d].productId", i))
		if err != nil {
			return nil, err
		}
		sellerID, err := parseID(req.SellerID, fmt.Sprintf("items[%d].sellerId", i))
		if err != nil {
			return nil, err
		}
		if req.Quantity < 1 {
			return nil, &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be positive"}
		}

		var points float64
		product, err := e.catalog.GetProduct(ctx, productID)
		if err != nil {
			return nil, fmt.Errorf("resolve product %s: %w", productID, err)
		}
		if product != nil {
			points = product.EcoPoints
		}

		order.Items = append(order.Items, domain.OrderItem{
			ProductID:    productID,
			SellerID:     sellerID,
			ProductName:  req.ProductName,
			Price:        req.Price,
			Quantity:     req.Quantity,
			CarbonPoints: points,
			ImageURL:     req.ImageURL,
			Status:       domain.StatusConfirmed,
			SellerStatus: domain.StatusConfirmed,
		})
		totalPoints += points * float64(req.Quantity)
	}
	order.TotalCarbonPoints = totalPoints

	adjustments := make([]domain.Adjustment, 0, len(order.Items)+1)
	for _, item := range order.Items {
		adjustments = append(adjustments, domain.StockAdjustment("", item.ProductID, -item.Quantity, item.Quantity))
	}
	if totalPoints > 0 {
		adjustments = append(adjustments, domain.RewardAdjustment("", buyerID, totalPoints))
	}

	if err := e.store.Create(ctx, order, adjustments); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}

	e.sweep(ctx, order.ID)
	e.publish(ctx, order, domain.EventOrderCreated)

	e.logger.Info("order created", "order_id", order.ID, "buyer_id", order.BuyerID,
		"items", len(order.Items), "carbon_points", order.TotalCarbonPoints)
	return order, nil
}

// CancelOrder moves the order to CANCELLED: every item's status and seller
// status follow the header, the stock taken at checkout is queued for
// restoration, and the buyer's reward accrual is reversed. Calling it on an
// order that is already cancelled returns the order unchanged.
func (e *Engine) CancelOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return e.close(ctx, orderID, domain.StatusCancelled, domain.EventOrderCancelled)
}

// ReturnOrder is the RETURNED counterpart of CancelOrder. The two stay as
// separate entry points so either can grow its own business rules, such as a
// return window, without entangling the other.
func (e *Engine) ReturnOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return e.close(ctx, orderID, domain.StatusReturned, domain.EventOrderReturned)
}

func (e *Engine) close(ctx context.Context, orderID string, target domain.Status, event domain.EventType) (*domain.Order, error) {
	id, err := parseID(orderID, "orderId")
	if err != nil {
		return nil, err
	}

	order, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	if order.Status == target {
		return order, nil
	}

	adjustments := make([]domain.Adjustment, 0, len(order.Items)+1)
	for _, item := range order.Items {
		adjustments = append(adjustments, domain.StockAdjustment(id, item.ProductID, item.Quantity, -item.Quantity))
	}
	if order.TotalCarbonPoints > 0 {
		adjustments = append(adjustments, domain.RewardAdjustment(id, order.BuyerID, -order.TotalCarbonPoints))
	}

	closed, err := e.store.CloseOrder(ctx, id, target, adjustments)
	if err != nil {
		return nil, err
	}

	order, err = e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	if closed {
		e.sweep(ctx, id)
		e.publish(ctx, order, event)
		e.logger.Info("order closed", "order_id", id, "status", target)
	}

	return order, nil
}

func (e *Engine) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	id, err := parseID(orderID, "orderId")
	if err != nil {
		return nil, err
	}
	order, err := e.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (e *Engine) ListOrdersForBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	id, err := parseID(buyerID, "buyerId")
	if err != nil {
		return nil, err
	}
	return e.store.ListByBuyer(ctx, id)
}

// ListOrdersForSeller returns every order containing at least one of the
// seller's items, with the item list narrowed to that seller. A seller never
// sees line items fulfilled by someone else.
func (e *Engine) ListOrdersForSeller(ctx context.Context, sellerID string) ([]domain.Order, error) {
	id, err := parseID(sellerID, "sellerId")
	if err != nil {
		return nil, err
	}

	orders, err := e.store.ListBySeller(ctx, id)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = orders[i].ItemsForSeller(id)
	}
	return orders, nil
}

func (e *Engine) GetSellerItem(ctx context.Context, orderID, sellerID, productID string) (*domain.OrderItem, error) {
	oid, err := parseID(orderID, "orderId")
	if err != nil {
		return nil, err
	}
	sid, err := parseID(sellerID, "sellerId")
	if err != nil {
		return nil, err
	}
	pid, err := parseID(productID, "productId")
	if err != nil {
		return nil, err
	}

	order, err := e.store.GetByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	item := order.Item(sid, pid)
	if item == nil {
		return nil, ErrItemNotFound
	}
	return item, nil
}

// UpdateItemStatus advances the seller status of exactly one line item. The
// order header and sibling items are untouched, which is how several sellers
// fulfill one order independently.
func (e *Engine) UpdateItemStatus(ctx context.Context, orderID, sellerID, productID string, status domain.Status) error {
	oid, err := parseID(orderID, "orderId")
	if err != nil {
		return err
	}
	sid, err := parseID(sellerID, "sellerId")
	if err != nil {
		return err
	}
	pid, err := parseID(productID, "productId")
	if err != nil {
		return err
	}

	if err := e.store.UpdateItemStatus(ctx, oid, sid, pid, status); err != nil {
		return err
	}

	e.logger.Info("item status updated", "order_id", oid, "seller_id", sid,
		"product_id", pid, "status", status)
	return nil
}

func (e *Engine) sweep(ctx context.Context, orderID string) {
	if e.sweeper == nil {
		return
	}
	if _, err := e.sweeper.Sweep(ctx); err != nil {
		e.logger.Error("failed to apply pending adjustments", "error", err, "order_id", orderID)
	}
}

func (e *Engine) publish(ctx context.Context, order *domain.Order, event domain.EventType) {
	if e.producer == nil {
		return
	}
	err := e.producer.Publish(ctx, order.ID, domain.OrderEvent{
		Type:              event,
		OrderID:           order.ID,
		BuyerID:           order.BuyerID,
		BuyerEmail:        order.BuyerEmail,
		TotalAmount:       order.TotalAmount,
		TotalCarbonPoints: order.TotalCarbonPoints,
		ItemCount:         len(order.Items),
		Timestamp:         time.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("failed to publish order event", "error", err, "order_id", order.ID, "event", event)
	}
}

func parseID(value, field string) (string, error) {
	if value == "" {
		return "", &ValidationError{Field: field, Reason: "is required"}
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return "", &ValidationError{Field: field, Reason: "must be a valid id"}
	}
	return id.String(), nil
}
