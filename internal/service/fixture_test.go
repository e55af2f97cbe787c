package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/pricing"
	"github.com/safar/rain-market/internal/service/servicetest"
)

const testWebhookSecret = "whsec_test"

type fixture struct {
	store    *servicetest.MemStore
	notifier *servicetest.RecordingNotifier
	gateway  *servicetest.StubGateway
	logs     *observer.ObservedLogs

	orders       *OrderService
	checkout     *CheckoutService
	reconciler   *Reconciler
	applications *ApplicationService
	offers       *OfferService
	reports      *ReportService

	buyer    *models.User
	shop     *models.User
	supplier *models.User
	admin    *models.User
	product  *models.Product
	offer    *models.Offer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	st := servicetest.NewMemStore()
	notifier := &servicetest.RecordingNotifier{}
	gw := servicetest.NewStubGateway(testWebhookSecret)

	f := &fixture{
		store:    st,
		notifier: notifier,
		gateway:  gw,
		logs:     logs,

		orders: NewOrderService(st, pricing.NewEngine(st), notifier, logger, "KWD",
			map[string]decimal.Decimal{"USD": decimal.RequireFromString("3.25")}),
		checkout: NewCheckoutService(st, gw, notifier, logger, CheckoutConfig{
			Currency:   "KWD",
			Timeout:    time.Second,
			SuccessURL: "https://shop.example/checkout/success",
			CancelURL:  "https://shop.example/checkout/cancel",
		}),
		reconciler:   NewReconciler(st, gw, notifier, logger),
		applications: NewApplicationService(st, logger),
		offers:       NewOfferService(st, logger, "KWD"),
		reports:      NewReportService(st, logger, "KWD"),
	}

	f.buyer = st.AddUser("buyer", models.RoleIndividual)
	f.shop = st.AddUser("shop", models.RoleShop)
	f.supplier = st.AddUser("supplier", models.RoleSupplier)
	f.admin = st.AddUser("admin", models.RoleAdmin)
	f.product = st.AddProduct("SKU-1", "Rain jacket")
	f.offer = st.AddOffer(models.Offer{
		ProductID:     f.product.ID,
		SupplierID:    f.supplier.ID,
		Price:         servicetest.Money("50.00"),
		Currency:      "KWD",
		StockQuantity: 100,
		MinOrderQty:   1,
		IsActive:      true,
	})

	return f
}

// signed returns a mock-gateway webhook body and its signature.
func (f *fixture) signed(t *testing.T, evt gateway.MockEvent) ([]byte, string) {
	t.Helper()

	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return payload, f.gateway.Sign(payload)
}

func (f *fixture) placeOrder(t *testing.T, buyerID int64, quantity int) *models.Order {
	t.Helper()

	order, err := f.orders.CreateOrder(t.Context(), CreateOrderInput{
		BuyerID:  buyerID,
		OfferID:  f.offer.ID,
		Quantity: quantity,
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) startCheckout(t *testing.T, order *models.Order) *models.Payment {
	t.Helper()

	res, err := f.checkout.BeginCheckout(t.Context(), order.ID, order.BuyerID, models.PaymentMethodCard)
	require.NoError(t, err)
	return res.Payment
}
