package apperr

import (
	"errors"
	"net/http"
)

// 下单链路的错误分类。各组件用 fmt.Errorf("%w: ...") 包装，附上具体的商品/优惠券信息，
// 让客户端知道是哪个前置条件失败。
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidState       = errors.New("invalid state")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrMultiShopCart      = errors.New("products must be from the same shop")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrConflict           = errors.New("conflict")

	// HTTP 层使用
	ErrInvalidArgument = errors.New("invalid argument")
	ErrForbidden       = errors.New("forbidden")
)

// HTTPStatus 将错误映射为 HTTP 状态码，未知错误一律 500。
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidState), errors.Is(err, ErrMultiShopCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrGatewayUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable 表示调用方可以原样重试（网关抖动、并发冲突）。
func Retryable(err error) bool {
	return errors.Is(err, ErrGatewayUnavailable) || errors.Is(err, ErrConflict)
}
