package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/notify"
	"github.com/safar/rain-market/internal/pricing"
	"github.com/safar/rain-market/internal/service"
	"github.com/safar/rain-market/internal/store"
)

func newOrderService(st *store.Store) *service.OrderService {
	return service.NewOrderService(st, pricing.NewEngine(st), notify.NewOutbox(st), zap.NewNop(), "KWD", nil)
}

func TestCreateOrder(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 50)
	orders := newOrderService(st)

	order, err := orders.CreateOrder(ctx, service.CreateOrderInput{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 5,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	if order.ID == 0 {
		t.Error("Order ID should not be 0")
	}

	expectedTotal := decimal.RequireFromString("255.00")
	if !order.TotalAmount.Equal(expectedTotal) {
		t.Errorf("Expected total %s, got %s", expectedTotal, order.TotalAmount)
	}

	stored, err := st.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if len(stored.Items) != 1 {
		t.Fatalf("Expected 1 item, got %d", len(stored.Items))
	}

	item := stored.Items[0]
	if item.SupplierID != m.supplier.ID {
		t.Errorf("Expected supplier %d, got %d", m.supplier.ID, item.SupplierID)
	}
	if !item.CommissionAmount.Equal(decimal.RequireFromString("5.10")) {
		t.Errorf("Expected commission 5.10, got %s", item.CommissionAmount)
	}
	if !item.NetToSupplier.Equal(decimal.RequireFromString("249.90")) {
		t.Errorf("Expected net 249.90, got %s", item.NetToSupplier)
	}

	offerAfter, err := st.GetOffer(ctx, m.offer.ID)
	if err != nil {
		t.Fatalf("Get offer: %v", err)
	}
	if offerAfter.StockQuantity != 45 {
		t.Errorf("Expected offer stock 45, got %d", offerAfter.StockQuantity)
	}

	notes, err := st.ListNotifications(ctx, m.buyer.ID, 10)
	if err != nil {
		t.Fatalf("List notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Kind != models.NotifyOrderCreated {
		t.Errorf("Expected one order_created notification, got %+v", notes)
	}
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 5)

	_, err := newOrderService(st).CreateOrder(ctx, service.CreateOrderInput{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 10,
	})
	if !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected insufficient stock error, got: %v", err)
	}

	offerAfter, err := st.GetOffer(ctx, m.offer.ID)
	if err != nil {
		t.Fatalf("Get offer: %v", err)
	}
	if offerAfter.StockQuantity != 5 {
		t.Errorf("Stock should remain unchanged at 5, got %d", offerAfter.StockQuantity)
	}
}

func TestConcurrentOrderCreation(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 20)
	orders := newOrderService(st)

	concurrency := 10
	var wg sync.WaitGroup
	results := make(chan error, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, err := orders.CreateOrder(ctx, service.CreateOrderInput{
				BuyerID:  m.buyer.ID,
				OfferID:  m.offer.ID,
				Quantity: 3,
			})
			results <- err
		}()
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, database.ErrInsufficientStock),
			errors.Is(err, database.ErrLockTimeout),
			database.IsRetryable(err):
		default:
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount == 0 || successCount > 6 {
		t.Errorf("Expected between 1 and 6 successful orders, got %d", successCount)
	}

	offerAfter, err := st.GetOffer(ctx, m.offer.ID)
	if err != nil {
		t.Fatalf("Get offer: %v", err)
	}

	expectedStock := 20 - (successCount * 3)
	if offerAfter.StockQuantity != expectedStock {
		t.Errorf("Expected final stock %d, got %d", expectedStock, offerAfter.StockQuantity)
	}
}

func TestCreateOrderOfferLocked(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 20)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("Begin tx: %v", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT id FROM offers WHERE id = $1 FOR UPDATE`, m.offer.ID); err != nil {
		t.Fatalf("Lock offer: %v", err)
	}

	_, err = newOrderService(st).CreateOrder(ctx, service.CreateOrderInput{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 1,
	})
	if !errors.Is(err, database.ErrLockTimeout) {
		t.Errorf("Expected lock timeout, got: %v", err)
	}
}

func TestConcurrentAcceptAppliesOnce(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 20)
	orders := newOrderService(st)

	order, err := orders.CreateOrder(ctx, service.CreateOrderInput{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 1,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	concurrency := 8
	var wg sync.WaitGroup
	results := make(chan service.TransitionResult, concurrency)

	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			_, result, err := orders.TransitionOrder(ctx, order.ID, m.supplier.ID, models.ActionAccept)
			if err != nil {
				t.Errorf("Accept: %v", err)
				return
			}
			results <- result
		}()
	}

	wg.Wait()
	close(results)

	applied := 0
	for r := range results {
		if r == service.Applied {
			applied++
		}
	}
	if applied != 1 {
		t.Errorf("Expected exactly one applied accept, got %d", applied)
	}

	stored, err := st.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if stored.Status != models.OrderStatusAccepted {
		t.Errorf("Expected accepted, got %s", stored.Status)
	}
	if stored.Version != 2 {
		t.Errorf("Expected version 2, got %d", stored.Version)
	}
}

func TestMispricedLineIsRejected(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 100)

	_, err := st.CreateOrder(ctx, store.CreateOrderRequest{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 2,
	}, func(offer models.Offer) (pricing.Line, error) {
		line, err := pricing.Quote(offer, models.RoleIndividual, 2, models.PlanCommission)
		if err != nil {
			return line, err
		}
		line.LineTotal = line.LineTotal.Add(decimal.NewFromInt(1))
		line.NetToSupplier = line.NetToSupplier.Add(decimal.NewFromInt(1))
		return line, nil
	})
	if err == nil {
		t.Fatal("Expected a mispriced line to be rejected")
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count); err != nil {
		t.Fatalf("Count orders: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected no persisted orders, got %d", count)
	}
}

func TestListOrdersCursor(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 100)
	orders := newOrderService(st)

	for i := 0; i < 15; i++ {
		_, err := orders.CreateOrder(ctx, service.CreateOrderInput{
			BuyerID:  m.buyer.ID,
			OfferID:  m.offer.ID,
			Quantity: 1,
		})
		if err != nil {
			t.Fatalf("Create order %d: %v", i, err)
		}
	}

	page1, err := st.ListOrdersCursor(ctx, m.buyer.ID, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}

	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := st.ListOrdersCursor(ctx, m.buyer.ID, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}

	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}

	supplierPage, err := st.ListSupplierOrdersCursor(ctx, m.supplier.ID, "", 20)
	if err != nil {
		t.Fatalf("List supplier orders: %v", err)
	}
	if items := supplierPage.Items.([]models.Order); len(items) != 15 {
		t.Errorf("Expected 15 supplier orders, got %d", len(items))
	}
}

func TestCancelOrderReleasesStock(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 100)
	orders := newOrderService(st)

	order, err := orders.CreateOrder(ctx, service.CreateOrderInput{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 10,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	payment := &models.Payment{
		OrderID:    order.ID,
		Method:     models.PaymentMethodCard,
		Status:     models.PaymentStatusPending,
		Amount:     order.TotalAmount,
		Currency:   "KWD",
		Provider:   "mock",
		SuccessURL: "https://shop.example/ok",
		CancelURL:  "https://shop.example/cancel",
	}
	if err := st.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("Create payment: %v", err)
	}

	_, result, err := orders.TransitionOrder(ctx, order.ID, m.buyer.ID, models.ActionCancel)
	if err != nil {
		t.Fatalf("Cancel order: %v", err)
	}
	if result != service.Applied {
		t.Errorf("Expected applied, got %s", result)
	}

	offerAfter, err := st.GetOffer(ctx, m.offer.ID)
	if err != nil {
		t.Fatalf("Get offer: %v", err)
	}
	if offerAfter.StockQuantity != 100 {
		t.Errorf("Expected stock restored to 100, got %d", offerAfter.StockQuantity)
	}

	stored, err := st.GetPayment(ctx, payment.ID)
	if err != nil {
		t.Fatalf("Get payment: %v", err)
	}
	if stored.Status != models.PaymentStatusCancelled {
		t.Errorf("Expected pending attempt cancelled, got %s", stored.Status)
	}

	res, err := st.CancelOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Cancel again: %v", err)
	}
	if res.Applied || res.Restocked != 0 {
		t.Errorf("Second cancel should change nothing, got %+v", res)
	}

	offerAfter, err = st.GetOffer(ctx, m.offer.ID)
	if err != nil {
		t.Fatalf("Get offer: %v", err)
	}
	if offerAfter.StockQuantity != 100 {
		t.Errorf("Stock should stay at 100, got %d", offerAfter.StockQuantity)
	}
}

func TestCancelOrderRefusedWhenCaptured(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)
	m := seedMarket(t, st, 100)

	order, err := newOrderService(st).CreateOrder(ctx, service.CreateOrderInput{
		BuyerID:  m.buyer.ID,
		OfferID:  m.offer.ID,
		Quantity: 4,
	})
	if err != nil {
		t.Fatalf("Create order: %v", err)
	}

	payment := &models.Payment{
		OrderID:    order.ID,
		Method:     models.PaymentMethodCard,
		Status:     models.PaymentStatusCaptured,
		Amount:     order.TotalAmount,
		Currency:   "KWD",
		Provider:   "mock",
		SuccessURL: "https://shop.example/ok",
		CancelURL:  "https://shop.example/cancel",
	}
	if err := st.CreatePayment(ctx, payment); err != nil {
		t.Fatalf("Create payment: %v", err)
	}

	if _, err := st.CancelOrder(ctx, order.ID); !errors.Is(err, database.ErrPaymentCaptured) {
		t.Fatalf("Expected captured payment error, got: %v", err)
	}

	stored, err := st.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("Get order: %v", err)
	}
	if stored.Status != models.OrderStatusPending {
		t.Errorf("Order should stay pending, got %s", stored.Status)
	}

	offerAfter, err := st.GetOffer(ctx, m.offer.ID)
	if err != nil {
		t.Fatalf("Get offer: %v", err)
	}
	if offerAfter.StockQuantity != 96 {
		t.Errorf("Expected stock 96, got %d", offerAfter.StockQuantity)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	st := store.New(db)

	if _, err := st.CreateUser(ctx, "dup@example.com", "First", models.RoleIndividual); err != nil {
		t.Fatalf("Create user: %v", err)
	}

	if _, err := st.CreateUser(ctx, "dup@example.com", "Second"); !errors.Is(err, database.ErrUserExists) {
		t.Errorf("Expected user exists error, got: %v", err)
	}
}
