package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"next_mart/internal/apperr"
	"next_mart/internal/checkout"
	"next_mart/internal/logger"
	"next_mart/internal/model"
	"next_mart/internal/query"
	rediskey "next_mart/pkg/redis"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IdempotencyHeader 客户端重试下单时携带同一个值，服务端回放第一次的结果。
const IdempotencyHeader = "Idempotency-Key"

var orderFields = query.Fields{
	Search: []string{"order_no", "shipping_address"},
	Filter: map[string]string{
		"status":        "status",
		"paymentStatus": "payment_status",
		"paymentMethod": "payment_method",
	},
	Sort: map[string]string{"createdAt": "created_at", "finalAmount": "final_amount", "status": "status"},
}

type orderLineRequest struct {
	ProductID uint   `json:"product_id" binding:"required,min=1"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
	Color     string `json:"color" binding:"max=32"`
}

type createOrderRequest struct {
	Products        []orderLineRequest `json:"products" binding:"required,min=1,dive"`
	Coupon          string             `json:"coupon" binding:"max=64"`
	ShippingAddress string             `json:"shipping_address" binding:"required,max=512"`
	PaymentMethod   string             `json:"payment_method" binding:"required,oneof=COD Online"`
}

func (r createOrderRequest) cart(buyerID uint) checkout.Cart {
	lines := make([]checkout.CartLine, 0, len(r.Products))
	for _, p := range r.Products {
		lines = append(lines, checkout.CartLine{ProductID: p.ProductID, Quantity: p.Quantity, Color: p.Color})
	}
	return checkout.Cart{
		BuyerID:         buyerID,
		Lines:           lines,
		CouponCode:      r.Coupon,
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   model.PaymentMethod(r.PaymentMethod),
	}
}

// createOrder 下单入口。
// 关键流程：
// 1. 参数校验
// 2. 带 Idempotency-Key 时先占用幂等键；已被占用则回放已有结果或返回处理中
// 3. 同步定价 + 事务落库（checkout.Service）
// 4. 写回请求状态；失败时释放幂等键，允许客户端重试
func createOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var req createOrderRequest
		if !bindJSON(c, &req) {
			return
		}
		ctx := c.Request.Context()

		idemKey := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if idemKey == "" || d.RDB == nil {
			res, err := d.Checkout.CreateOrder(ctx, req.cart(uid))
			writeOrderResult(c, d, res, err)
			return
		}

		requestID := uuid.NewString()
		owner, acquired, err := rediskey.AcquireIdempotency(ctx, d.RDB, uid, idemKey, requestID, d.Config.IdempotencyTTL)
		if err != nil {
			fail(c, d.Logger, fmt.Errorf("acquire idempotency key: %w", err))
			return
		}
		if !acquired {
			replayOrder(c, d, owner)
			return
		}

		st := rediskey.RequestState{RequestID: requestID, Status: rediskey.RequestPending}
		if err := rediskey.PutRequestState(ctx, d.RDB, st, d.Config.IdempotencyTTL); err != nil {
			_ = rediskey.ReleaseIdempotencyIfMatch(ctx, d.RDB, uid, idemKey, requestID)
			fail(c, d.Logger, fmt.Errorf("put request state: %w", err))
			return
		}

		res, err := d.Checkout.CreateOrder(ctx, req.cart(uid))
		if res.Order.ID == 0 {
			// 订单未落库，释放幂等键让客户端可以用同一个键重试
			st.Status = rediskey.RequestFailed
			if err != nil {
				st.Reason = err.Error()
			}
			if perr := rediskey.PutRequestState(ctx, d.RDB, st, d.Config.IdempotencyTTL); perr != nil {
				logger.Warn(ctx, d.Logger, "put request state failed", zap.String("request_id", requestID), zap.Error(perr))
			}
			if rerr := rediskey.ReleaseIdempotencyIfMatch(ctx, d.RDB, uid, idemKey, requestID); rerr != nil {
				logger.Warn(ctx, d.Logger, "release idempotency key failed", zap.String("request_id", requestID), zap.Error(rerr))
			}
			writeOrderResult(c, d, res, err)
			return
		}

		st.Status = rediskey.RequestSuccess
		st.OrderNo = res.Order.OrderNo
		st.PaymentURL = res.PaymentURL
		if perr := rediskey.PutRequestState(ctx, d.RDB, st, d.Config.IdempotencyTTL); perr != nil {
			logger.Warn(ctx, d.Logger, "put request state failed", zap.String("request_id", requestID), zap.Error(perr))
		}
		writeOrderResult(c, d, res, err)
	}
}

// writeOrderResult 网关失败但订单已落库时返回 502，同时带上订单，客户端可稍后重新发起支付。
func writeOrderResult(c *gin.Context, d Deps, res checkout.Result, err error) {
	if err != nil && res.Order.ID == 0 {
		fail(c, d.Logger, err)
		return
	}
	data := gin.H{"order": res.Order}
	if res.PaymentURL != "" {
		data["payment_url"] = res.PaymentURL
	}
	if err != nil {
		status := apperr.HTTPStatus(err)
		c.JSON(status, gin.H{"code": status, "msg": err.Error(), "data": data})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"code": 0, "data": data})
}

// replayOrder 同一个幂等键的重复请求：已成功则返回原订单，仍在处理则 409。
func replayOrder(c *gin.Context, d Deps, requestID string) {
	ctx := c.Request.Context()
	st, found, err := rediskey.GetRequestState(ctx, d.RDB, requestID)
	if err != nil {
		fail(c, d.Logger, fmt.Errorf("get request state: %w", err))
		return
	}
	if !found || st.Status != rediskey.RequestSuccess {
		c.JSON(http.StatusConflict, gin.H{
			"code": 409,
			"msg":  "request with this idempotency key is still in progress",
			"data": gin.H{"request_id": requestID, "status": rediskey.RequestPending},
		})
		return
	}

	var o model.Order
	if err := d.DB.WithContext(ctx).Where("order_no = ?", st.OrderNo).Take(&o).Error; err != nil {
		fail(c, d.Logger, fmt.Errorf("load replayed order %s: %w", st.OrderNo, err))
		return
	}
	if err := attachPayment(c, d.DB, &o); err != nil {
		fail(c, d.Logger, err)
		return
	}
	data := gin.H{"order": o}
	if st.PaymentURL != "" {
		data["payment_url"] = st.PaymentURL
	}
	c.Header("Idempotent-Replayed", "true")
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": data})
}

func myOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		listOrders(c, d, d.DB.Where("user_id = ?", uid))
	}
}

// myShopOrders 店主查看自己店铺收到的订单。
func myShopOrders(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		var shop model.Shop
		if err := d.DB.WithContext(c.Request.Context()).Where("owner_id = ?", uid).Take(&shop).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = fmt.Errorf("%w: user %d has no shop", apperr.ErrNotFound, uid)
			}
			fail(c, d.Logger, err)
			return
		}
		listOrders(c, d, d.DB.Where("shop_id = ?", shop.ID))
	}
}

func listOrders(c *gin.Context, d Deps, scoped *gorm.DB) {
	spec, err := query.FromValues(c.Request.URL.Query(), orderFields)
	if err != nil {
		fail(c, d.Logger, err)
		return
	}
	list, meta, err := query.Find[model.Order](c.Request.Context(), scoped, spec)
	if err != nil {
		fail(c, d.Logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 0, "data": list, "meta": meta})
}

// getOrder 订单详情（含支付记录），仅买家和店主可见。
func getOrder(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		ctx := c.Request.Context()

		var o model.Order
		if err := d.DB.WithContext(ctx).First(&o, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				err = fmt.Errorf("%w: order %d", apperr.ErrNotFound, id)
			}
			fail(c, d.Logger, err)
			return
		}
		if o.UserID != uid {
			var shop model.Shop
			err := d.DB.WithContext(ctx).First(&shop, o.ShopID).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				fail(c, d.Logger, err)
				return
			}
			if err != nil || shop.OwnerID != uid {
				fail(c, d.Logger, fmt.Errorf("%w: order %d", apperr.ErrForbidden, id))
				return
			}
		}
		if err := attachPayment(c, d.DB, &o); err != nil {
			fail(c, d.Logger, err)
			return
		}
		reply(c, o)
	}
}

func attachPayment(c *gin.Context, db *gorm.DB, o *model.Order) error {
	var p model.Payment
	err := db.WithContext(c.Request.Context()).Where("order_id = ?", o.ID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load payment of order %d: %w", o.ID, err)
	}
	o.Payment = &p
	return nil
}

func updateOrderStatus(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := currentUser(c)
		if !ok {
			return
		}
		id, ok := paramID(c, "id")
		if !ok {
			return
		}
		var req struct {
			Status string `json:"status" binding:"required,oneof=Pending Processing Completed Cancelled"`
		}
		if !bindJSON(c, &req) {
			return
		}
		o, err := d.Checkout.UpdateStatus(c.Request.Context(), id, uid, model.OrderStatus(req.Status))
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		reply(c, o)
	}
}

// validatePayment 支付网关回调：校验交易后跳转到前端的成功/失败页。
func validatePayment(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		tranID := c.Query("tran_id")
		p, err := d.Checkout.ValidatePayment(c.Request.Context(), tranID)
		if err != nil {
			fail(c, d.Logger, err)
			return
		}
		target := d.Config.SSL.FailURL
		if p.Status == model.PaymentPaid {
			target = d.Config.SSL.SuccessURL
		}
		if target == "" {
			reply(c, gin.H{"transaction_id": p.TransactionID, "status": p.Status})
			return
		}
		c.Redirect(http.StatusFound, target)
	}
}
