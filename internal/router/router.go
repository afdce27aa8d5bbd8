package router

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"next_mart/internal/apperr"
	"next_mart/internal/checkout"
	"next_mart/internal/config"
	"next_mart/internal/logger"
	"next_mart/internal/middleware"
	"next_mart/internal/pricing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Deps 路由需要的全部依赖。RDB 为 nil 时下单不做限流和幂等。
type Deps struct {
	DB       *gorm.DB
	RDB      *rd.Client
	Checkout *checkout.Service
	Coupons  *pricing.CouponEvaluator
	// Discounts 创建限时折扣后需要失效的缓存，可为 nil
	Discounts pricing.DiscountCache
	Config    config.AppConfig
	Logger    *zap.Logger
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	api := r.Group("/api")

	// shops & products
	api.POST("/shops", createShop(d))
	api.GET("/products", listProducts(d))
	api.GET("/products/:id", getProduct(d))
	api.POST("/products", createProduct(d))

	// flash sales
	api.POST("/flash-sales", createFlashSales(d))
	api.GET("/flash-sales", listFlashSales(d))

	// coupons
	api.POST("/coupons", adminOnly(d.Config.AdminToken), createCoupon(d))
	api.GET("/coupons", adminOnly(d.Config.AdminToken), listCoupons(d))
	api.PATCH("/coupons/:code", adminOnly(d.Config.AdminToken), updateCoupon(d))
	api.POST("/coupons/:code/preview", previewCoupon(d))
	api.DELETE("/coupons/:id", adminOnly(d.Config.AdminToken), deleteCoupon(d))

	// orders
	orders := api.Group("/orders")
	if d.RDB != nil {
		orders.POST("", middleware.RedisRateLimit(d.RDB, "checkout", d.Config.CheckoutRateLimit, d.Config.CheckoutRateWindow), createOrder(d))
	} else {
		orders.POST("", createOrder(d))
	}
	orders.GET("/my-orders", myOrders(d))
	orders.GET("/my-shop-orders", myShopOrders(d))
	orders.GET("/:id", getOrder(d))
	orders.PATCH("/:id/status", updateOrderStatus(d))

	// payment gateway callback
	api.POST("/ssl/validate", validatePayment(d))
}

func reply(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

// fail 按错误类型映射 HTTP 状态码，5xx 会记录日志且不把内部错误返回给调用方。
func fail(c *gin.Context, l *zap.Logger, err error) {
	status := apperr.HTTPStatus(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logger.Error(c.Request.Context(), l, "request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
		msg = "internal error"
	}
	c.JSON(status, gin.H{"code": status, "msg": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": msg})
}

// bindJSON 解析请求体，校验失败时直接写 400 并返回 false。
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "invalid request", "data": formatValidation(verrs)})
			return false
		}
		badRequest(c, err.Error())
		return false
	}
	return true
}

func formatValidation(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			out[field] = fmt.Sprintf("%s is required", field)
		case "min":
			out[field] = fmt.Sprintf("%s must be at least %s", field, fe.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must be at most %s", field, fe.Param())
		case "gt":
			out[field] = fmt.Sprintf("%s must be greater than %s", field, fe.Param())
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
		case "email":
			out[field] = fmt.Sprintf("%s must be a valid email", field)
		default:
			out[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return out
}

// currentUser 鉴权在网关完成，这里只读取透传的 X-User-ID。
func currentUser(c *gin.Context) (uint, bool) {
	raw := c.GetHeader(middleware.UserIDHeader)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "missing or invalid " + middleware.UserIDHeader})
		return 0, false
	}
	return uint(id), true
}

func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, name+" 无效")
		return 0, false
	}
	return uint(id), true
}

func adminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" || c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		c.Next()
	}
}
