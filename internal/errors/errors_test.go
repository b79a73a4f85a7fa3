package errors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollaboratorErrorMatchesSentinelAndCause(t *testing.T) {
	err := Wrap(NewCollaboratorError("market_data", "fetch_candles", context.DeadlineExceeded), "technicals")

	assert.True(t, Is(err, ErrCollaboratorUnavailable))
	assert.True(t, Is(err, context.DeadlineExceeded))

	var ce *CollaboratorError
	if assert.True(t, As(err, &ce)) {
		assert.Equal(t, "market_data", ce.Collaborator)
		assert.Equal(t, "fetch_candles", ce.Operation)
	}
}

func TestValidationErrorIsInvalidEvent(t *testing.T) {
	err := NewValidationError("time", "", "missing release time")
	assert.True(t, Is(err, ErrInvalidEvent))
	assert.Contains(t, err.Error(), "missing release time")
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "ctx"))
	assert.NoError(t, Wrapf(nil, "ctx %d", 1))
}

func TestDataErrorMessage(t *testing.T) {
	err := NewDataError("candles", "EURUSD/H1", "no stored candles", ErrDataNotFound)
	assert.Equal(t, "candles EURUSD/H1: no stored candles: data not found", err.Error())
	assert.True(t, Is(err, ErrDataNotFound))

	assert.Equal(t, "candles GBPUSD/H1: empty", NewDataError("candles", "GBPUSD/H1", "empty", nil).Error())
}

func TestCollaboratorErrorMessage(t *testing.T) {
	err := NewCollaboratorError("order_execution", "place_order", ErrNotImplemented)
	assert.Equal(t, "order_execution.place_order failed: not implemented", err.Error())
}
