package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"next_mart/internal/checkout"
	"next_mart/internal/config"
	"next_mart/internal/gateway"
	"next_mart/internal/model"
	"next_mart/internal/notify"
	"next_mart/internal/pricing"
	"next_mart/internal/query"
	"next_mart/internal/stock"
	"next_mart/internal/storage"
	rediskey "next_mart/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	adminToken  = "test-admin"
	ownerID     = 100
	buyerID     = 7
	eventStream = "test:order_events"
)

type stubGateway struct {
	url    string
	status gateway.TxStatus
}

func (g *stubGateway) InitPayment(context.Context, decimal.Decimal, string) (string, error) {
	return g.url, nil
}

func (g *stubGateway) QueryTransaction(_ context.Context, tranID string) (gateway.TxStatus, string, error) {
	return g.status, `{"tran_id":"` + tranID + `"}`, nil
}

type env struct {
	t     *testing.T
	r     *gin.Engine
	db    *gorm.DB
	rdb   *rd.Client
	gw    *stubGateway
	cache *rediskey.DiscountCache
	shop  model.Shop
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.Open(":memory:")
	require.NoError(t, err)
	mr := miniredis.RunT(t)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.AppConfig{
		CheckoutRateLimit:  1000,
		CheckoutRateWindow: time.Second,
		IdempotencyTTL:     time.Hour,
		AdminToken:         adminToken,
		SSL: config.SSLConfig{
			SuccessURL: "https://shop.example/payment/success",
			FailURL:    "https://shop.example/payment/fail",
		},
	}

	gw := &stubGateway{url: "https://pay.example/redirect", status: gateway.TxValid}
	cache := rediskey.NewDiscountCache(rdb, time.Minute)
	coupons := pricing.NewCouponEvaluator(db)
	delivery := pricing.DeliveryCalculator{City: "dhaka", InsideFee: decimal.NewFromInt(60), OutsideFee: decimal.NewFromInt(120)}
	dispatcher := notify.NewDispatcher(rdb, eventStream)
	assembler := checkout.NewAssembler(db, pricing.NewPriceResolver(db, cache), coupons, delivery)
	coord := checkout.NewCoordinator(db, stock.NewLedger(), coupons, gw, dispatcher, zap.NewNop())
	svc := checkout.NewService(db, assembler, coord, gw, dispatcher, zap.NewNop())

	r := gin.New()
	Setup(r, Deps{
		DB:        db,
		RDB:       rdb,
		Checkout:  svc,
		Coupons:   coupons,
		Discounts: cache,
		Config:    cfg,
		Logger:    zap.NewNop(),
	})

	shop := model.Shop{OwnerID: ownerID, Name: "Shop", IsActive: true}
	require.NoError(t, db.Create(&shop).Error)
	require.NoError(t, db.Create(&model.User{ID: buyerID, Name: "Buyer", Email: "buyer@example.com"}).Error)

	return &env{t: t, r: r, db: db, rdb: rdb, gw: gw, cache: cache, shop: shop}
}

func (e *env) product(price string, stockQty int64) model.Product {
	e.t.Helper()
	p := model.Product{ShopID: e.shop.ID, Name: "item " + price, Price: decimal.RequireFromString(price), Stock: stockQty, IsActive: true}
	require.NoError(e.t, e.db.Create(&p).Error)
	return p
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
	Meta query.Meta      `json:"meta"`
}

func (e *env) do(method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)

	var out envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && w.Code != http.StatusFound {
		require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func as(uid uint) map[string]string {
	return map[string]string{"X-User-ID": strconv.FormatUint(uint64(uid), 10)}
}

type orderData struct {
	Order      model.Order `json:"order"`
	PaymentURL string      `json:"payment_url"`
}

func orderBody(productID uint, qty int64, method string) gin.H {
	return gin.H{
		"products":         []gin.H{{"product_id": productID, "quantity": qty, "color": "red"}},
		"shipping_address": "House 1, Dhaka",
		"payment_method":   method,
	}
}

func TestPing(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(http.MethodGet, "/ping", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateOrderCOD(t *testing.T) {
	e := newEnv(t)
	p := e.product("500", 10)

	w, out := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 2, "COD"), as(buyerID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var data orderData
	require.NoError(t, json.Unmarshal(out.Data, &data))
	assert.True(t, data.Order.FinalAmount.Equal(decimal.NewFromInt(1060)), data.Order.FinalAmount.String())
	assert.True(t, data.Order.DeliveryCharge.Equal(decimal.NewFromInt(60)))
	assert.Equal(t, model.OrderPending, data.Order.Status)
	assert.Empty(t, data.PaymentURL)

	var after model.Product
	require.NoError(t, e.db.First(&after, p.ID).Error)
	assert.EqualValues(t, 8, after.Stock)

	n, err := e.rdb.XLen(context.Background(), eventStream).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestCreateOrderOnlineReturnsPaymentURL(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 5)

	w, out := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 1, "Online"), as(buyerID))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var data orderData
	require.NoError(t, json.Unmarshal(out.Data, &data))
	assert.Equal(t, "https://pay.example/redirect", data.PaymentURL)
}

func TestCreateOrderRequiresUser(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 5)
	w, _ := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 1, "COD"), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 5)

	w, out := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 1, "Bitcoin"), as(buyerID))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(out.Data, &fields))
	assert.Contains(t, fields, "paymentmethod")
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 1)

	w, out := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 2, "COD"), as(buyerID))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, out.Msg, "requested 2, available 1")
}

func TestCreateOrderIdempotentReplay(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 5)
	h := as(buyerID)
	h[IdempotencyHeader] = "checkout-1"

	w1, out1 := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 1, "COD"), h)
	require.Equal(t, http.StatusCreated, w1.Code, w1.Body.String())
	w2, out2 := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 1, "COD"), h)
	require.Equal(t, http.StatusOK, w2.Code, w2.Body.String())
	assert.Equal(t, "true", w2.Header().Get("Idempotent-Replayed"))

	var first, second orderData
	require.NoError(t, json.Unmarshal(out1.Data, &first))
	require.NoError(t, json.Unmarshal(out2.Data, &second))
	assert.Equal(t, first.Order.OrderNo, second.Order.OrderNo)
	require.NotNil(t, second.Order.Payment)

	var orders int64
	require.NoError(t, e.db.Model(&model.Order{}).Count(&orders).Error)
	assert.EqualValues(t, 1, orders)
	var after model.Product
	require.NoError(t, e.db.First(&after, p.ID).Error)
	assert.EqualValues(t, 4, after.Stock)
}

func TestCreateOrderFailureReleasesIdempotencyKey(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 1)
	h := as(buyerID)
	h[IdempotencyHeader] = "checkout-2"

	w, _ := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 3, "COD"), h)
	require.Equal(t, http.StatusConflict, w.Code)

	require.NoError(t, e.db.Model(&model.Product{}).Where("id = ?", p.ID).Update("stock", 5).Error)
	w, _ = e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 3, "COD"), h)
	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func TestCreateOrderInFlightKeyConflicts(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 5)
	ctx := context.Background()

	// 模拟另一个请求已占用幂等键、尚未完成
	_, acquired, err := rediskey.AcquireIdempotency(ctx, e.rdb, buyerID, "checkout-3", "other-request", time.Hour)
	require.NoError(t, err)
	require.True(t, acquired)

	h := as(buyerID)
	h[IdempotencyHeader] = "checkout-3"
	w, _ := e.do(http.MethodPost, "/api/orders", orderBody(p.ID, 1, "COD"), h)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func (e *env) placeOrder(productID uint, method string) model.Order {
	e.t.Helper()
	w, out := e.do(http.MethodPost, "/api/orders", orderBody(productID, 1, method), as(buyerID))
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var data orderData
	require.NoError(e.t, json.Unmarshal(out.Data, &data))
	return data.Order
}

func TestOrderQueries(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 10)
	o1 := e.placeOrder(p.ID, "COD")
	e.placeOrder(p.ID, "Online")

	w, out := e.do(http.MethodGet, "/api/orders/my-orders?paymentMethod=COD", nil, as(buyerID))
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Order
	require.NoError(t, json.Unmarshal(out.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, o1.OrderNo, list[0].OrderNo)
	assert.EqualValues(t, 1, out.Meta.Total)

	w, out = e.do(http.MethodGet, "/api/orders/my-shop-orders?limit=1", nil, as(ownerID))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(out.Data, &list))
	assert.Len(t, list, 1)
	assert.Equal(t, query.Meta{Page: 1, Limit: 1, Total: 2, TotalPage: 2}, out.Meta)

	w, _ = e.do(http.MethodGet, "/api/orders/my-shop-orders", nil, as(buyerID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderVisibility(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 10)
	o := e.placeOrder(p.ID, "COD")
	path := "/api/orders/" + strconv.FormatUint(uint64(o.ID), 10)

	w, out := e.do(http.MethodGet, path, nil, as(buyerID))
	require.Equal(t, http.StatusOK, w.Code)
	var got model.Order
	require.NoError(t, json.Unmarshal(out.Data, &got))
	require.NotNil(t, got.Payment)
	assert.Equal(t, model.PaymentPending, got.Payment.Status)

	w, _ = e.do(http.MethodGet, path, nil, as(ownerID))
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = e.do(http.MethodGet, path, nil, as(999))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodGet, "/api/orders/424242", nil, as(buyerID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateOrderStatus(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 10)
	o := e.placeOrder(p.ID, "COD")
	path := "/api/orders/" + strconv.FormatUint(uint64(o.ID), 10) + "/status"

	w, _ := e.do(http.MethodPatch, path, gin.H{"status": "Processing"}, as(buyerID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := e.do(http.MethodPatch, path, gin.H{"status": "Processing"}, as(ownerID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got model.Order
	require.NoError(t, json.Unmarshal(out.Data, &got))
	assert.Equal(t, model.OrderProcessing, got.Status)

	w, _ = e.do(http.MethodPatch, path, gin.H{"status": "Pending"}, as(ownerID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = e.do(http.MethodPatch, path, gin.H{"status": "Shipped"}, as(ownerID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidatePaymentRedirects(t *testing.T) {
	e := newEnv(t)
	p := e.product("100", 10)
	o := e.placeOrder(p.ID, "Online")

	var pay model.Payment
	require.NoError(t, e.db.Where("order_id = ?", o.ID).Take(&pay).Error)

	w, _ := e.do(http.MethodPost, "/api/ssl/validate?tran_id="+pay.TransactionID, nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example/payment/success", w.Header().Get("Location"))

	var order model.Order
	require.NoError(t, e.db.First(&order, o.ID).Error)
	assert.Equal(t, model.PaymentPaid, order.PaymentStatus)

	w, _ = e.do(http.MethodPost, "/api/ssl/validate?tran_id=unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestValidatePaymentFailedRedirectsToFailURL(t *testing.T) {
	e := newEnv(t)
	e.gw.status = gateway.TxInvalid
	p := e.product("100", 10)
	o := e.placeOrder(p.ID, "Online")

	var pay model.Payment
	require.NoError(t, e.db.Where("order_id = ?", o.ID).Take(&pay).Error)
	w, _ := e.do(http.MethodPost, "/api/ssl/validate?tran_id="+pay.TransactionID, nil, nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://shop.example/payment/fail", w.Header().Get("Location"))
}

func TestCouponLifecycle(t *testing.T) {
	e := newEnv(t)
	admin := map[string]string{"X-Admin-Token": adminToken}
	body := gin.H{
		"code":                "save50",
		"discount_type":       "Percentage",
		"discount_value":      "50",
		"max_discount_amount": "300",
		"min_order_amount":    "100",
		"start_date":          time.Now().Add(-time.Hour).Format(time.RFC3339),
		"end_date":            time.Now().Add(time.Hour).Format(time.RFC3339),
	}

	w, _ := e.do(http.MethodPost, "/api/coupons", body, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, out := e.do(http.MethodPost, "/api/coupons", body, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created model.Coupon
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.Equal(t, "SAVE50", created.Code)

	w, _ = e.do(http.MethodPost, "/api/coupons", body, admin)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out = e.do(http.MethodPost, "/api/coupons/save50/preview", gin.H{"order_amount": "1000"}, as(buyerID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview struct {
		DiscountAmount decimal.Decimal `json:"discount_amount"`
		Payable        decimal.Decimal `json:"payable"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &preview))
	assert.True(t, preview.DiscountAmount.Equal(decimal.NewFromInt(300)), preview.DiscountAmount.String())
	assert.True(t, preview.Payable.Equal(decimal.NewFromInt(700)))

	w, _ = e.do(http.MethodPost, "/api/coupons/save50/preview", gin.H{"order_amount": "50"}, as(buyerID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, _ = e.do(http.MethodPatch, "/api/coupons/save50",
		gin.H{"max_discount_amount": "10", "clear_max_discount_amount": true}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out = e.do(http.MethodPatch, "/api/coupons/save50", gin.H{"max_discount_amount": "12.349"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var patched model.Coupon
	require.NoError(t, json.Unmarshal(out.Data, &patched))
	require.NotNil(t, patched.MaxDiscountAmount)
	assert.True(t, patched.MaxDiscountAmount.Equal(decimal.RequireFromString("12.34")), patched.MaxDiscountAmount.String())

	w, _ = e.do(http.MethodPatch, "/api/coupons/save50", gin.H{"clear_max_discount_amount": true}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, out = e.do(http.MethodPost, "/api/coupons/save50/preview", gin.H{"order_amount": "1000"}, as(buyerID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(out.Data, &preview))
	assert.True(t, preview.DiscountAmount.Equal(decimal.NewFromInt(500)), preview.DiscountAmount.String())

	var stored model.Coupon
	require.NoError(t, e.db.Where("code = ?", "SAVE50").Take(&stored).Error)
	assert.Nil(t, stored.MaxDiscountAmount)

	w, out = e.do(http.MethodPatch, "/api/coupons/save50", gin.H{"is_active": false}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w, _ = e.do(http.MethodPost, "/api/coupons/save50/preview", gin.H{"order_amount": "1000"}, as(buyerID))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w, out = e.do(http.MethodGet, "/api/coupons?searchTerm=save", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out.Meta.Total)

	id := strconv.FormatUint(uint64(created.ID), 10)
	w, _ = e.do(http.MethodDelete, "/api/coupons/"+id, nil, admin)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodDelete, "/api/coupons/"+id, nil, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = e.do(http.MethodPost, "/api/coupons/save50/preview", gin.H{"order_amount": "1000"}, as(buyerID))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCouponRejectsBadWindow(t *testing.T) {
	e := newEnv(t)
	now := time.Now()
	w, _ := e.do(http.MethodPost, "/api/coupons", gin.H{
		"code":           "late",
		"discount_type":  "Flat",
		"discount_value": "10",
		"start_date":     now.Format(time.RFC3339),
		"end_date":       now.Add(-time.Hour).Format(time.RFC3339),
	}, map[string]string{"X-Admin-Token": adminToken})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlashSales(t *testing.T) {
	e := newEnv(t)
	p1 := e.product("500", 10)
	p2 := e.product("200", 10)
	ctx := context.Background()

	// 先让缓存记住“无折扣”，创建后应被失效
	require.NoError(t, e.cache.Set(ctx, p1.ID, decimal.Zero))

	w, out := e.do(http.MethodPost, "/api/flash-sales", gin.H{
		"products":            []uint{p1.ID, p2.ID, p1.ID},
		"discount_percentage": "10",
	}, as(ownerID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var created struct {
		Created   int64 `json:"created"`
		Requested int   `json:"requested"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.EqualValues(t, 2, created.Created)
	assert.Equal(t, 2, created.Requested)

	_, cached, err := e.cache.Get(ctx, p1.ID)
	require.NoError(t, err)
	assert.False(t, cached)

	// 已有折扣保留第一次写入的值
	w, out = e.do(http.MethodPost, "/api/flash-sales", gin.H{
		"products":            []uint{p1.ID},
		"discount_percentage": "50",
	}, as(ownerID))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(out.Data, &created))
	assert.EqualValues(t, 0, created.Created)

	w, out = e.do(http.MethodGet, "/api/flash-sales?sort=id", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []struct {
		ID                 uint            `json:"id"`
		DiscountPercentage decimal.Decimal `json:"discount_percentage"`
		OfferPrice         decimal.Decimal `json:"offer_price"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, p1.ID, list[0].ID)
	assert.True(t, list[0].OfferPrice.Equal(decimal.NewFromInt(450)), list[0].OfferPrice.String())
	assert.True(t, list[1].OfferPrice.Equal(decimal.NewFromInt(180)))

	// 下单按折后价计算
	o := e.placeOrder(p1.ID, "COD")
	assert.True(t, o.Subtotal.Equal(decimal.NewFromInt(450)), o.Subtotal.String())
}

func TestFlashSaleRejectsForeignProducts(t *testing.T) {
	e := newEnv(t)
	other := model.Shop{OwnerID: 300, Name: "Other", IsActive: true}
	require.NoError(t, e.db.Create(&other).Error)
	foreign := model.Product{ShopID: other.ID, Name: "foreign", Price: decimal.NewFromInt(10), Stock: 1, IsActive: true}
	require.NoError(t, e.db.Create(&foreign).Error)

	w, _ := e.do(http.MethodPost, "/api/flash-sales", gin.H{
		"products":            []uint{foreign.ID},
		"discount_percentage": "10",
	}, as(ownerID))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodPost, "/api/flash-sales", gin.H{
		"products":            []uint{foreign.ID},
		"discount_percentage": "150",
	}, as(300))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodPost, "/api/flash-sales", gin.H{
		"products":            []uint{foreign.ID},
		"discount_percentage": "0",
	}, as(300))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalog(t *testing.T) {
	e := newEnv(t)

	w, _ := e.do(http.MethodPost, "/api/shops", gin.H{"name": "Second"}, as(ownerID))
	assert.Equal(t, http.StatusConflict, w.Code)

	w, out := e.do(http.MethodPost, "/api/products", gin.H{"name": "Blue Shirt", "price": "250", "stock": 3}, as(ownerID))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var p model.Product
	require.NoError(t, json.Unmarshal(out.Data, &p))
	assert.Equal(t, e.shop.ID, p.ShopID)

	e.product("90", 1)

	w, _ = e.do(http.MethodPost, "/api/products", gin.H{"name": "Nope", "price": "10"}, as(buyerID))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = e.do(http.MethodGet, "/api/products?searchTerm=shirt&minPrice=100", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.Product
	require.NoError(t, json.Unmarshal(out.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Blue Shirt", list[0].Name)

	w, _ = e.do(http.MethodGet, "/api/products?sort=secret", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodGet, "/api/products/"+strconv.FormatUint(uint64(p.ID), 10), nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodGet, "/api/products/9999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = e.do(http.MethodPost, "/api/shops", gin.H{"name": "Buyer Shop"}, as(buyerID))
	assert.Equal(t, http.StatusOK, w.Code)
}
