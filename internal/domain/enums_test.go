package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHappyPathAdvancesOneStepAtATime(t *testing.T) {
	status := StatusCreated
	steps := 0
	for {
		next, ok := status.Next()
		if !ok {
			break
		}
		assert.True(t, status.CanTransition(next), "%s -> %s", status, next)
		status = next
		steps++
	}
	assert.Equal(t, StatusCompleted, status)
	assert.Equal(t, 6, steps)
}

func TestTransitionsRejectSkipsAndNoOps(t *testing.T) {
	assert.False(t, StatusCreated.CanTransition(StatusCreated))
	assert.False(t, StatusCreated.CanTransition(StatusAssigned))
	assert.False(t, StatusInTransit.CanTransition(StatusConfirmed))
	assert.False(t, StatusCreated.CanTransition(OrderStatus("shipped")))
}

func TestCancellationOnlyBeforeDelivery(t *testing.T) {
	for _, status := range []OrderStatus{StatusCreated, StatusConfirmed, StatusAssigned, StatusInTransit, StatusArriving} {
		assert.True(t, status.CanTransition(StatusCancelled), "cancel from %s", status)
	}
	assert.False(t, StatusDelivered.CanTransition(StatusCancelled))
}

func TestTerminalStatesRejectEverything(t *testing.T) {
	targets := append([]OrderStatus{StatusCancelled}, happyPath...)
	for _, terminal := range []OrderStatus{StatusCompleted, StatusCancelled} {
		for _, next := range targets {
			assert.False(t, terminal.CanTransition(next), "%s -> %s", terminal, next)
		}
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentPending.CanBecome(PaymentPaid))
	assert.True(t, PaymentPending.CanBecome(PaymentFailed))
	assert.True(t, PaymentFailed.CanBecome(PaymentPaid))
	assert.True(t, PaymentPaid.CanBecome(PaymentRefunded))
	assert.False(t, PaymentPaid.CanBecome(PaymentPending))
	assert.False(t, PaymentRefunded.CanBecome(PaymentPaid))
}

func TestPaymentMethodSettlement(t *testing.T) {
	assert.True(t, PaymentCash.SettlesImmediately())
	assert.True(t, PaymentWallet.SettlesImmediately())
	assert.True(t, PaymentVoucher.SettlesImmediately())
	assert.False(t, PaymentEFT.SettlesImmediately())
	assert.False(t, PaymentMobileMoney.SettlesImmediately())
	assert.False(t, PaymentMethod("card").Valid())
}
