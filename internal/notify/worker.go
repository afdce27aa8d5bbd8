package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"

	"next_mart/internal/logger"
	"next_mart/internal/model"
	"next_mart/internal/queue"
	redispkg "next_mart/pkg/redis"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var mailTemplates = template.Must(template.New("order_placed").Parse(`
<h2>Hi {{.Name}},</h2>
<p>Thanks for your order <b>{{.OrderNo}}</b>. We have received it and will start processing soon.</p>
<p>Total: <b>{{.Total}}</b> ({{.Method}})</p>
<p>Your invoice is attached.</p>
`))

func init() {
	template.Must(mailTemplates.New("payment_paid").Parse(`
<h2>Hi {{.Name}},</h2>
<p>Payment for order <b>{{.OrderNo}}</b> was successful.</p>
<p>Amount paid: <b>{{.Total}}</b></p>
<p>Your invoice is attached.</p>
`))
}

// Worker 消费订单事件：回表取订单和买家，生成发票并发邮件。
type Worker struct {
	db     *gorm.DB
	rdb    *rd.Client
	mailer Mailer
	logger *zap.Logger
}

func NewWorker(db *gorm.DB, rdb *rd.Client, mailer Mailer, l *zap.Logger) *Worker {
	return &Worker{db: db, rdb: rdb, mailer: mailer, logger: l}
}

// HandleOrderEvent 实现 queue.Handler。同一事件只发送一次；订单或买家不存在时直接跳过。
func (w *Worker) HandleOrderEvent(ctx context.Context, e queue.OrderEvent) error {
	claimed, err := redispkg.ClaimNotification(ctx, w.rdb, e.EventID)
	if err != nil {
		return fmt.Errorf("claim notification: %w", err)
	}
	if !claimed {
		logger.Debug(ctx, w.logger, "duplicate order event", zap.String("event_id", e.EventID))
		return nil
	}

	if err := w.send(ctx, e); err != nil {
		if relErr := redispkg.ReleaseNotification(ctx, w.rdb, e.EventID); relErr != nil {
			logger.Warn(ctx, w.logger, "release notification claim", zap.Error(relErr))
		}
		return err
	}
	return nil
}

func (w *Worker) send(ctx context.Context, e queue.OrderEvent) error {
	var o model.Order
	if err := w.db.WithContext(ctx).First(&o, e.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn(ctx, w.logger, "order for event not found", zap.Uint("order_id", e.OrderID))
			return nil
		}
		return fmt.Errorf("load order %d: %w", e.OrderID, err)
	}
	var u model.User
	if err := w.db.WithContext(ctx).First(&u, o.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn(ctx, w.logger, "buyer for order not found", zap.Uint("user_id", o.UserID))
			return nil
		}
		return fmt.Errorf("load user %d: %w", o.UserID, err)
	}

	names, err := w.productNames(ctx, o.Items)
	if err != nil {
		return err
	}
	pdf, err := BuildInvoicePDF(InvoiceData{Order: o, CustomerName: u.Name, ProductNames: names})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Order placed - %s", o.OrderNo)
	if e.Type == queue.EventPaymentPaid {
		subject = "Order confirmed - Payment Success!"
	}
	var html bytes.Buffer
	if err := mailTemplates.ExecuteTemplate(&html, string(e.Type), map[string]string{
		"Name":    u.Name,
		"OrderNo": o.OrderNo,
		"Total":   o.FinalAmount.StringFixed(2),
		"Method":  string(o.PaymentMethod),
	}); err != nil {
		return fmt.Errorf("render email: %w", err)
	}

	err = w.mailer.Send(ctx, Mail{
		To:      u.Email,
		Subject: subject,
		HTML:    html.String(),
		Attachments: []Attachment{{
			Filename:    fmt.Sprintf("Invoice_%s.pdf", o.OrderNo),
			ContentType: "application/pdf",
			Data:        pdf,
		}},
	})
	if err != nil {
		return err
	}
	logger.Info(ctx, w.logger, "order notification sent",
		zap.String("event_id", e.EventID),
		zap.String("type", string(e.Type)),
		zap.String("order_no", o.OrderNo),
	)
	return nil
}

// productNames 商品可能已被软删除，发票上仍显示名称。
func (w *Worker) productNames(ctx context.Context, items []model.OrderItem) (map[uint]string, error) {
	ids := make([]uint, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	var products []model.Product
	if err := w.db.WithContext(ctx).Unscoped().Select("id", "name").Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	out := make(map[uint]string, len(products))
	for _, p := range products {
		out[p.ID] = p.Name
	}
	return out, nil
}
