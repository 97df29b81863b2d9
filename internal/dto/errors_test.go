package dto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBizError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *BizError
		wantMsg string
	}{
		{"invalid_signature", ErrInvalidSignature, "INVALID_SIGNATURE"},
		{"invalid_params", ErrInvalidParams, "INVALID_PARAMS"},
		{"unauthorized", ErrUnauthorized, "UNAUTHORIZED"},
		{"webhook_signature", ErrInvalidWebhookSignature, "INVALID_WEBHOOK_SIGNATURE"},
		{"promotion_not_found", ErrPromotionNotFound, "PROMOTION_NOT_FOUND"},
		{"intent_expired", ErrIntentExpired, "INTENT_EXPIRED"},
		{"internal_error", ErrInternalError, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestBizError_HTTPStatusTaxonomy(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, ErrInvalidParams.HTTPStatus)
	assert.Equal(t, http.StatusBadRequest, ErrMissingFields.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrUnauthorized.HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, ErrInvalidWebhookSignature.HTTPStatus)
	assert.Equal(t, http.StatusBadGateway, ErrUpstreamError.HTTPStatus)
	assert.Equal(t, http.StatusInternalServerError, ErrInternalError.HTTPStatus)
}

func TestNewBizError(t *testing.T) {
	err := NewBizError(99999, "CUSTOM_ERROR", http.StatusTeapot)
	assert.Equal(t, 99999, err.Code)
	assert.Equal(t, "CUSTOM_ERROR", err.Message)
	assert.Equal(t, http.StatusTeapot, err.HTTPStatus)
}

func TestBizError_WithMessage(t *testing.T) {
	custom := ErrMissingFields.WithMessage("wallet is required")

	// 原错误不变
	assert.Equal(t, "MISSING_FIELDS", ErrMissingFields.Message)
	assert.Equal(t, ErrMissingFields.Code, custom.Code)
	assert.Equal(t, "wallet is required", custom.Error())

	wrapped := fmt.Errorf("issue: %w", custom)
	assert.True(t, errors.Is(wrapped, ErrMissingFields))
	assert.False(t, errors.Is(wrapped, ErrInvalidParams))
}

func TestResponses(t *testing.T) {
	ok := NewSuccessResponse(map[string]int{"a": 1})
	assert.Equal(t, 0, ok.Code)
	assert.Equal(t, "success", ok.Message)

	fail := NewErrorResponse(ErrPromotionNotFound)
	assert.Equal(t, 11001, fail.Code)
	assert.Nil(t, fail.Data)
}
