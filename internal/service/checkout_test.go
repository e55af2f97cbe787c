package service

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/rain-market/internal/database"
	"github.com/safar/rain-market/internal/gateway"
	"github.com/safar/rain-market/internal/models"
)

func TestBeginCheckout(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, f.buyer.ID, 2)

	res, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodKNET)
	require.NoError(t, err)

	p := res.Payment
	assert.Equal(t, models.PaymentStatusPending, p.Status)
	assert.True(t, p.Amount.Equal(order.TotalAmount))
	assert.Equal(t, "KWD", p.Currency)
	assert.Equal(t, "mock", p.Provider)
	require.NotNil(t, p.ProviderReference)

	redirect, err := url.Parse(res.RedirectURL)
	require.NoError(t, err)
	assert.Equal(t, *p.ProviderReference, redirect.Query().Get("ref"))

	stored, err := f.store.GetPaymentByReference(t.Context(), *p.ProviderReference)
	require.NoError(t, err)
	assert.Equal(t, p.ID, stored.ID)

	reqs := f.gateway.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, order.ID, reqs[0].OrderID)
	assert.Equal(t, p.ID, reqs[0].PaymentID)
	assert.Equal(t, models.PaymentMethodKNET, reqs[0].Method)
	assert.Equal(t, "https://shop.example/checkout/cancel", reqs[0].CancelURL)
}

func TestBeginCheckoutGatewayFailureAllowsRetry(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, f.buyer.ID, 1)

	f.gateway.CreateSessionFunc = func(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
		return gateway.Session{}, errors.New("connection refused")
	}

	_, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodCard)
	require.ErrorIs(t, err, ErrGatewayUnavailable)

	attempts := f.store.Payments(order.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.PaymentStatusPending, attempts[0].Status)
	assert.Nil(t, attempts[0].ProviderReference)

	f.gateway.CreateSessionFunc = nil
	res, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodCard)
	require.NoError(t, err)

	attempts = f.store.Payments(order.ID)
	require.Len(t, attempts, 2)
	assert.Nil(t, attempts[0].ProviderReference)
	assert.Equal(t, res.Payment.ID, attempts[1].ID)
	require.NotNil(t, attempts[1].ProviderReference)
}

func TestBeginCheckoutTimeout(t *testing.T) {
	f := newFixture(t)
	f.checkout.cfg.Timeout = 20 * time.Millisecond
	order := f.placeOrder(t, f.buyer.ID, 1)

	f.gateway.CreateSessionFunc = func(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
		<-ctx.Done()
		return gateway.Session{}, ctx.Err()
	}

	_, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodCard)
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	attempts := f.store.Payments(order.ID)
	require.Len(t, attempts, 1)
	assert.Equal(t, models.PaymentStatusPending, attempts[0].Status)
	assert.Nil(t, attempts[0].ProviderReference)
}

func TestBeginCheckoutRejections(t *testing.T) {
	f := newFixture(t)

	t.Run("not the buyer", func(t *testing.T) {
		order := f.placeOrder(t, f.buyer.ID, 1)
		_, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.shop.ID, models.PaymentMethodCard)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("order no longer pending", func(t *testing.T) {
		order := f.placeOrder(t, f.buyer.ID, 1)
		_, _, err := f.orders.TransitionOrder(t.Context(), order.ID, f.supplier.ID, models.ActionAccept)
		require.NoError(t, err)

		_, err = f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodCard)
		assert.ErrorIs(t, err, ErrOrderNotPayable)
	})

	t.Run("already captured", func(t *testing.T) {
		order := f.placeOrder(t, f.buyer.ID, 1)
		payment := f.startCheckout(t, order)
		f.store.SetPaymentStatus(payment.ID, models.PaymentStatusCaptured)

		_, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodCard)
		assert.ErrorIs(t, err, ErrAlreadyPaid)
		assert.Len(t, f.store.Payments(order.ID), 1)
	})

	t.Run("unknown method", func(t *testing.T) {
		order := f.placeOrder(t, f.buyer.ID, 1)
		_, err := f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethod("cash"))
		assert.True(t, IsValidationError(err))
	})

	t.Run("unknown order", func(t *testing.T) {
		_, err := f.checkout.BeginCheckout(t.Context(), 9999, f.buyer.ID, models.PaymentMethodCard)
		assert.ErrorIs(t, err, database.ErrOrderNotFound)
	})
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, f.buyer.ID, 1)
	f.startCheckout(t, order)

	payment, err := f.checkout.VerifyPayment(t.Context(), order.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCaptured, payment.Status)
	assert.Equal(t, 1, f.notifier.Count(models.NotifyPaymentSucceeded))

	payment, err = f.checkout.VerifyPayment(t.Context(), order.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCaptured, payment.Status)
	assert.Equal(t, 1, f.notifier.Count(models.NotifyPaymentSucceeded))
}

func TestVerifyPaymentStillPending(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, f.buyer.ID, 1)
	f.startCheckout(t, order)
	f.gateway.VerifyFunc = func(ctx context.Context, reference string) (models.PaymentStatus, error) {
		return models.PaymentStatusPending, nil
	}

	payment, err := f.checkout.VerifyPayment(t.Context(), order.ID, f.buyer.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
	assert.Zero(t, f.notifier.Count(models.NotifyPaymentSucceeded))
}

func TestVerifyPaymentErrors(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t, f.buyer.ID, 1)

	_, err := f.checkout.VerifyPayment(t.Context(), order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, database.ErrPaymentNotFound)

	f.gateway.CreateSessionFunc = func(ctx context.Context, req gateway.SessionRequest) (gateway.Session, error) {
		return gateway.Session{}, errors.New("boom")
	}
	_, err = f.checkout.BeginCheckout(t.Context(), order.ID, f.buyer.ID, models.PaymentMethodCard)
	require.Error(t, err)

	_, err = f.checkout.VerifyPayment(t.Context(), order.ID, f.buyer.ID)
	assert.ErrorIs(t, err, ErrNoPaymentReference)

	_, err = f.checkout.VerifyPayment(t.Context(), order.ID, f.supplier.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}
