// Package dto 提供数据传输对象定义
package dto

import "net/http"

// BizError 业务错误
type BizError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

// Error 实现 error 接口
func (e *BizError) Error() string {
	return e.Message
}

// Is 同一错误码视为同一错误，WithMessage 的副本也能匹配
func (e *BizError) Is(target error) bool {
	t, ok := target.(*BizError)
	return ok && t.Code == e.Code
}

// 通用错误 (10xxx)
var (
	ErrInvalidSignature        = &BizError{10001, "INVALID_SIGNATURE", http.StatusUnauthorized}
	ErrSignatureExpired        = &BizError{10002, "SIGNATURE_EXPIRED", http.StatusUnauthorized}
	ErrInvalidParams           = &BizError{10003, "INVALID_PARAMS", http.StatusBadRequest}
	ErrUnauthorized            = &BizError{10004, "UNAUTHORIZED", http.StatusUnauthorized}
	ErrForbidden               = &BizError{10005, "FORBIDDEN", http.StatusForbidden}
	ErrSignatureReplay         = &BizError{10006, "SIGNATURE_REPLAY", http.StatusUnauthorized}
	ErrInvalidTimestamp        = &BizError{10007, "INVALID_TIMESTAMP", http.StatusUnauthorized}
	ErrMissingAuthHeader       = &BizError{10008, "MISSING_AUTH_HEADER", http.StatusUnauthorized}
	ErrInvalidAuthFormat       = &BizError{10009, "INVALID_AUTH_FORMAT", http.StatusUnauthorized}
	ErrInvalidWalletAddr       = &BizError{10010, "INVALID_WALLET_ADDRESS", http.StatusBadRequest}
	ErrMissingFields           = &BizError{10011, "MISSING_FIELDS", http.StatusBadRequest}
	ErrInvalidWebhookSignature = &BizError{10012, "INVALID_WEBHOOK_SIGNATURE", http.StatusUnauthorized}
	ErrInvalidNonce            = &BizError{10013, "INVALID_NONCE", http.StatusUnauthorized}
	ErrWalletMismatch          = &BizError{10014, "WALLET_MISMATCH", http.StatusForbidden}
)

// 推广错误 (11xxx)
var (
	ErrPromotionNotFound  = &BizError{11001, "PROMOTION_NOT_FOUND", http.StatusNotFound}
	ErrPromotionNotActive = &BizError{11002, "PROMOTION_NOT_ACTIVE", http.StatusBadRequest}
	ErrInsufficientBudget = &BizError{11003, "INSUFFICIENT_BUDGET", http.StatusBadRequest}
	ErrNotEligible        = &BizError{11004, "NOT_ELIGIBLE", http.StatusForbidden}
	ErrStatsNotReady      = &BizError{11005, "STATS_NOT_READY", http.StatusNotFound}
)

// 意图错误 (12xxx)
var (
	ErrIntentNotFound         = &BizError{12001, "INTENT_NOT_FOUND", http.StatusNotFound}
	ErrIntentAlreadyProcessed = &BizError{12002, "INTENT_ALREADY_PROCESSED", http.StatusConflict}
	ErrIntentExpired          = &BizError{12003, "INTENT_EXPIRED", http.StatusBadRequest}
	ErrCastNotFound           = &BizError{12004, "CAST_NOT_FOUND", http.StatusBadRequest}
	ErrCastAuthorMismatch     = &BizError{12005, "CAST_AUTHOR_MISMATCH", http.StatusForbidden}
)

// 任务错误 (13xxx)
var (
	ErrJobNotFound = &BizError{13001, "JOB_NOT_FOUND", http.StatusNotFound}
)

// 系统错误 (20xxx)
var (
	ErrRateLimitExceeded  = &BizError{20001, "RATE_LIMIT_EXCEEDED", http.StatusTooManyRequests}
	ErrServiceUnavailable = &BizError{20002, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable}
	ErrInternalError      = &BizError{20003, "INTERNAL_ERROR", http.StatusInternalServerError}
	ErrTimeout            = &BizError{20004, "TIMEOUT", http.StatusGatewayTimeout}
	ErrUpstreamError      = &BizError{20005, "UPSTREAM_ERROR", http.StatusBadGateway}
)

// NewBizError 创建自定义业务错误
func NewBizError(code int, message string, httpStatus int) *BizError {
	return &BizError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// WithMessage 返回带自定义消息的错误副本
func (e *BizError) WithMessage(msg string) *BizError {
	return &BizError{
		Code:       e.Code,
		Message:    msg,
		HTTPStatus: e.HTTPStatus,
	}
}
