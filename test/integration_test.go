//go:build integration

package test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ecobazaar/ordercore/internal/catalog"
	"github.com/ecobazaar/ordercore/internal/domain"
	"github.com/ecobazaar/ordercore/internal/messaging"
	"github.com/ecobazaar/ordercore/internal/orders"
	"github.com/ecobazaar/ordercore/internal/reconciler"
	"github.com/ecobazaar/ordercore/internal/rewards"
	"github.com/ecobazaar/ordercore/internal/worker"
)

// Seeded by migrations/000002_seed_products.up.sql.
const (
	seedBuyer    = "11111111-1111-1111-1111-111111111111"
	seedSellerA  = "22222222-2222-2222-2222-222222222222"
	seedSellerB  = "33333333-3333-3333-3333-333333333333"
	seedProductA = "44444444-4444-4444-4444-444444444444" // stock 50, 5 eco points
	seedProductB = "55555555-5555-5555-5555-555555555555" // stock 30, 10 eco points
)

func newOrderRouter(db *sql.DB) (*http.ServeMux, *orders.Engine) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	repo := orders.NewOrderRepository(db)
	ledger := catalog.NewCatalogRepository(db)
	sweeper := reconciler.NewSweeper(db, logger)
	engine := orders.NewEngine(repo, ledger, sweeper, nil, logger)
	handler := orders.NewHandler(engine, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /orders", handler.HandleCreate)
	mux.HandleFunc("GET /orders/{id}", handler.HandleGet)
	mux.HandleFunc("GET /orders/buyer/{buyerId}", handler.HandleListByBuyer)
	mux.HandleFunc("GET /orders/seller/{sellerId}", handler.HandleListBySeller)
	mux.HandleFunc("POST /orders/{id}/cancel", handler.HandleCancel)
	mux.HandleFunc("POST /orders/{id}/return", handler.HandleReturn)
	mux.HandleFunc("GET /orders/{id}/items/{sellerId}/{productId}", handler.HandleGetItem)
	mux.HandleFunc("PATCH /orders/{id}/items/{sellerId}/{productId}/status", handler.HandleUpdateItemStatus)
	return mux, engine
}

func createTwoSellerOrder(t *testing.T, mux *http.ServeMux) *domain.Order {
	t.Helper()

	reqBody := `{
		"buyer_id": "` + seedBuyer + `",
		"buyer_email": "buyer@example.com",
		"address": "42 Green Way",
		"payment_method": "card",
		"total_amount": 63.0,
		"items": [
			{"product_id": "` + seedProductA + `", "seller_id": "` + seedSellerA + `", "product_name": "Bamboo Toothbrush", "price": 4.5, "quantity": 2},
			{"product_id": "` + seedProductB + `", "seller_id": "` + seedSellerB + `", "product_name": "Reusable Water Bottle", "price": 18.0, "quantity": 3}
		]
	}`
	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	var order domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	return &order
}

func productCounters(t *testing.T, db *sql.DB, productID string) (stock, sold int) {
	t.Helper()
	err := db.QueryRow(`SELECT stock, sold FROM catalog.products WHERE id = $1`, productID).Scan(&stock, &sold)
	if err != nil {
		t.Fatalf("failed to read product counters: %v", err)
	}
	return stock, sold
}

func rewardBalance(t *testing.T, db *sql.DB, userID string) float64 {
	t.Helper()
	var balance float64
	err := db.QueryRow(`SELECT balance FROM rewards.accounts WHERE user_id = $1`, userID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0
	}
	if err != nil {
		t.Fatalf("failed to read reward balance: %v", err)
	}
	return balance
}

func pendingAdjustments(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT count(*) FROM orders.adjustments WHERE status = 'pending'`).Scan(&n)
	if err != nil {
		t.Fatalf("failed to count pending adjustments: %v", err)
	}
	return n
}

func TestOrderLifecycle(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux, _ := newOrderRouter(db)
	order := createTwoSellerOrder(t, mux)

	if order.Status != domain.StatusConfirmed {
		t.Fatalf("expected status %s, got %s", domain.StatusConfirmed, order.Status)
	}
	if order.TotalCarbonPoints != 40 {
		t.Fatalf("expected 40 carbon points, got %v", order.TotalCarbonPoints)
	}

	// The engine sweeps inline after commit, so counters are already settled.
	if stock, sold := productCounters(t, db, seedProductA); stock != 48 || sold != 2 {
		t.Fatalf("product A after create: expected stock 48 sold 2, got %d/%d", stock, sold)
	}
	if stock, sold := productCounters(t, db, seedProductB); stock != 27 || sold != 3 {
		t.Fatalf("product B after create: expected stock 27 sold 3, got %d/%d", stock, sold)
	}
	if balance := rewardBalance(t, db, seedBuyer); balance != 40 {
		t.Fatalf("expected reward balance 40, got %v", balance)
	}
	if n := pendingAdjustments(t, db); n != 0 {
		t.Fatalf("expected no pending adjustments, got %d", n)
	}

	req := httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	var cancelled domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&cancelled); err != nil {
		t.Fatalf("failed to decode cancelled order: %v", err)
	}
	if cancelled.Status != domain.StatusCancelled {
		t.Fatalf("expected status %s, got %s", domain.StatusCancelled, cancelled.Status)
	}
	for _, item := range cancelled.Items {
		if item.Status != domain.StatusCancelled || item.SellerStatus != domain.StatusCancelled {
			t.Fatalf("expected item %s fully cancelled, got %s/%s", item.ProductID, item.Status, item.SellerStatus)
		}
	}

	if stock, sold := productCounters(t, db, seedProductA); stock != 50 || sold != 0 {
		t.Fatalf("product A after cancel: expected stock 50 sold 0, got %d/%d", stock, sold)
	}
	if stock, sold := productCounters(t, db, seedProductB); stock != 30 || sold != 0 {
		t.Fatalf("product B after cancel: expected stock 30 sold 0, got %d/%d", stock, sold)
	}
	if balance := rewardBalance(t, db, seedBuyer); balance != 0 {
		t.Fatalf("expected reward balance reversed to 0, got %v", balance)
	}

	// Cancelling again is a no-op, not an error, and must not queue new
	// adjustments.
	req = httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/cancel", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d on repeated cancel, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	if stock, sold := productCounters(t, db, seedProductA); stock != 50 || sold != 0 {
		t.Fatalf("product A after repeated cancel: expected stock 50 sold 0, got %d/%d", stock, sold)
	}
	if n := pendingAdjustments(t, db); n != 0 {
		t.Fatalf("expected no pending adjustments after repeated cancel, got %d", n)
	}

	// A cancelled order is terminal; returning it now is a conflict.
	req = httptest.NewRequest(http.MethodPost, "/orders/"+order.ID+"/return", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d for return after cancel, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}
}

func TestSellerItemStatusFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	mux, _ := newOrderRouter(db)
	order := createTwoSellerOrder(t, mux)

	itemPath := "/orders/" + order.ID + "/items/" + seedSellerA + "/" + seedProductA
	req := httptest.NewRequest(http.MethodPatch, itemPath+"/status", strings.NewReader(`{"status": "SHIPPED"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, itemPath, nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var item domain.OrderItem
	if err := json.NewDecoder(rec.Body).Decode(&item); err != nil {
		t.Fatalf("failed to decode item: %v", err)
	}
	if item.SellerStatus != domain.StatusShipped {
		t.Fatalf("expected seller status %s, got %s", domain.StatusShipped, item.SellerStatus)
	}

	// The header and the other seller's item are untouched.
	req = httptest.NewRequest(http.MethodGet, "/orders/"+order.ID, nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var fetched domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&fetched); err != nil {
		t.Fatalf("failed to decode order: %v", err)
	}
	if fetched.Status != domain.StatusConfirmed {
		t.Fatalf("expected header status %s, got %s", domain.StatusConfirmed, fetched.Status)
	}
	other := fetched.Item(seedSellerB, seedProductB)
	if other == nil {
		t.Fatal("expected seller B item to exist")
	}
	if other.SellerStatus != domain.StatusConfirmed {
		t.Fatalf("expected seller B item status %s, got %s", domain.StatusConfirmed, other.SellerStatus)
	}

	// Regressing a shipped item is rejected.
	req = httptest.NewRequest(http.MethodPatch, itemPath+"/status", strings.NewReader(`{"status": "CONFIRMED"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status %d for backward transition, got %d: %s", http.StatusConflict, rec.Code, rec.Body.String())
	}

	// Seller listing only exposes the requesting seller's items.
	req = httptest.NewRequest(http.MethodGet, "/orders/seller/"+seedSellerA, nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var sellerOrders []domain.Order
	if err := json.NewDecoder(rec.Body).Decode(&sellerOrders); err != nil {
		t.Fatalf("failed to decode seller orders: %v", err)
	}
	if len(sellerOrders) != 1 {
		t.Fatalf("expected 1 seller order, got %d", len(sellerOrders))
	}
	if len(sellerOrders[0].Items) != 1 || sellerOrders[0].Items[0].SellerID != seedSellerA {
		t.Fatalf("expected only seller A items, got %+v", sellerOrders[0].Items)
	}
}

func TestReconcilerDrainsOutbox(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	// No inline sweeper: adjustments stay pending until the reconciler runs,
	// modelling a crash between commit and the engine's best-effort sweep.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	repo := orders.NewOrderRepository(db)
	ledger := catalog.NewCatalogRepository(db)
	engine := orders.NewEngine(repo, ledger, nil, nil, logger)

	_, err = engine.CreateOrder(ctx, orders.CreateOrderInput{
		BuyerID: seedBuyer,
		Items: []orders.CreateOrderItemInput{
			{ProductID: seedProductA, SellerID: seedSellerA, ProductName: "Bamboo Toothbrush", Price: 4.5, Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("failed to create order: %v", err)
	}

	if stock, _ := productCounters(t, db, seedProductA); stock != 50 {
		t.Fatalf("expected stock untouched before sweep, got %d", stock)
	}
	if n := pendingAdjustments(t, db); n != 2 {
		t.Fatalf("expected 2 pending adjustments, got %d", n)
	}

	sweeper := reconciler.NewSweeper(db, logger)
	applied, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 adjustments applied, got %d", applied)
	}

	if stock, sold := productCounters(t, db, seedProductA); stock != 48 || sold != 2 {
		t.Fatalf("expected stock 48 sold 2 after sweep, got %d/%d", stock, sold)
	}
	if balance := rewardBalance(t, db, seedBuyer); balance != 10 {
		t.Fatalf("expected reward balance 10 after sweep, got %v", balance)
	}
	if n := pendingAdjustments(t, db); n != 0 {
		t.Fatalf("expected outbox drained, got %d pending", n)
	}

	// Sweeping an empty outbox is a no-op.
	applied, err = sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected 0 adjustments on second sweep, got %d", applied)
	}
}

func TestRewardsAccountReads(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open DB: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := rewards.NewRewardsRepository(db)

	account, err := repo.GetAccount(ctx, seedBuyer)
	if err != nil {
		t.Fatalf("failed to get account: %v", err)
	}
	if account != nil {
		t.Fatalf("expected no account before accrual, got %+v", account)
	}

	if err := repo.AdjustBalance(ctx, seedBuyer, 25); err != nil {
		t.Fatalf("failed to accrue: %v", err)
	}
	if err := repo.AdjustBalance(ctx, seedBuyer, -100); err != nil {
		t.Fatalf("failed to reverse: %v", err)
	}

	account, err = repo.GetAccount(ctx, seedBuyer)
	if err != nil {
		t.Fatalf("failed to get account: %v", err)
	}
	if account == nil {
		t.Fatal("expected account after accrual")
	}
	if account.Balance != 0 {
		t.Fatalf("expected balance floored at 0, got %v", account.Balance)
	}
}

type emailCapture struct {
	mu     sync.Mutex
	emails []map[string]string
}

func (e *emailCapture) handler(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e.mu.Lock()
	e.emails = append(e.emails, req)
	e.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, `{"status":"sent"}`)
}

func (e *emailCapture) getEmails() []map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]map[string]string, len(e.emails))
	copy(result, e.emails)
	return result
}

func TestOrderEventNotificationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	brokers, cleanup := SetupKafka(ctx, t)
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	emailCap := &emailCapture{}
	emailMux := http.NewServeMux()
	emailMux.HandleFunc("POST /send", emailCap.handler)
	emailServer := httptest.NewServer(emailMux)
	defer emailServer.Close()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderEvents)
	defer func() { _ = producer.Close() }()

	event := domain.OrderEvent{
		Type:              domain.EventOrderCreated,
		OrderID:           "77777777-7777-7777-7777-777777777777",
		BuyerID:           seedBuyer,
		BuyerEmail:        "buyer@example.com",
		TotalAmount:       63.0,
		TotalCarbonPoints: 40,
		ItemCount:         2,
		Timestamp:         time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderID, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	httpClient := &http.Client{Timeout: 10 * time.Second}
	notificationHandler := worker.NewNotificationHandler(emailServer.URL, httpClient, logger)

	consumeCtx, stopConsume := context.WithCancel(ctx)
	defer stopConsume()

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderEvents, "integration-test",
		messaging.WithStartOffset(kafka.FirstOffset))
	defer func() { _ = consumer.Close() }()

	consumeErr := make(chan error, 1)
	go func() {
		consumeErr <- consumer.Consume(consumeCtx, func(ctx context.Context, payload []byte) error {
			err := notificationHandler.Handle(ctx, payload)
			stopConsume()
			return err
		})
	}()

	select {
	case err := <-consumeErr:
		if consumeCtx.Err() == nil {
			t.Fatalf("consumer stopped unexpectedly: %v", err)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for event consumption")
	}

	emails := emailCap.getEmails()
	if len(emails) != 1 {
		t.Fatalf("expected 1 email, got %d", len(emails))
	}
	if emails[0]["to"] != "buyer@example.com" {
		t.Fatalf("expected email to buyer@example.com, got %s", emails[0]["to"])
	}
	if !strings.Contains(emails[0]["subject"], event.OrderID) {
		t.Fatalf("expected subject to contain order id, got: %s", emails[0]["subject"])
	}
}
