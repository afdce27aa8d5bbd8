package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"next_mart/internal/apperr"
	"next_mart/internal/config"
	"next_mart/internal/logger"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TxStatus 网关侧交易状态。
type TxStatus string

const (
	TxValid   TxStatus = "Valid"
	TxInvalid TxStatus = "Invalid"
	TxPending TxStatus = "Pending"
)

const (
	initPath  = "/gwprocess/v4/api.php"
	queryPath = "/validator/api/merchantTransIDvalidationAPI.php"
)

// SSLCommerz 支付网关客户端，只实现下单链路用到的两个接口：发起支付、按交易号查询。
type SSLCommerz struct {
	cfg    config.SSLConfig
	client *http.Client
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
	tracer trace.Tracer
}

func NewSSLCommerz(cfg config.SSLConfig, client *http.Client, l *zap.Logger) *SSLCommerz {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	settings := gobreaker.Settings{
		Name:        "SSLCommerz",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &SSLCommerz{
		cfg:    cfg,
		client: client,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: l,
		tracer: otel.Tracer("next_mart/gateway"),
	}
}

type initResponse struct {
	Status         string `json:"status"`
	FailedReason   string `json:"failedreason"`
	GatewayPageURL string `json:"GatewayPageURL"`
}

// InitPayment 发起支付并返回跳转地址。网关失败、熔断或没有返回地址都包装为 ErrGatewayUnavailable。
func (s *SSLCommerz) InitPayment(ctx context.Context, amount decimal.Decimal, tranID string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "sslcommerz.InitPayment")
	defer span.End()
	span.SetAttributes(attribute.String("tran_id", tranID), attribute.String("amount", amount.StringFixed(2)))

	form := url.Values{
		"store_id":         {s.cfg.StoreID},
		"store_passwd":     {s.cfg.StorePass},
		"total_amount":     {amount.StringFixed(2)},
		"currency":         {s.cfg.Currency},
		"tran_id":          {tranID},
		"success_url":      {s.cfg.ValidationURL + "?tran_id=" + url.QueryEscape(tranID)},
		"fail_url":         {s.cfg.FailURL},
		"cancel_url":       {s.cfg.CancelURL},
		"ipn_url":          {s.cfg.IPNURL},
		"shipping_method":  {"Courier"},
		"product_name":     {"N/A"},
		"product_category": {"N/A"},
		"product_profile":  {"general"},
	}

	resp, err := executeWithBreaker(s.cb, func() (initResponse, error) {
		var out initResponse
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+initPath, strings.NewReader(form.Encode()))
		if err != nil {
			return out, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if err := s.do(req, &out, nil); err != nil {
			return out, err
		}
		return out, nil
	})
	if err != nil {
		span.RecordError(err)
		logger.Warn(ctx, s.logger, "init payment failed", zap.String("tran_id", tranID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, err)
	}
	if resp.GatewayPageURL == "" {
		logger.Warn(ctx, s.logger, "gateway returned no redirect url",
			zap.String("tran_id", tranID),
			zap.String("status", resp.Status),
			zap.String("reason", resp.FailedReason),
		)
		return "", fmt.Errorf("%w: no redirect url (status=%s %s)", apperr.ErrGatewayUnavailable, resp.Status, resp.FailedReason)
	}
	return resp.GatewayPageURL, nil
}

type queryResponse struct {
	APIConnect string `json:"APIConnect"`
	Element    []struct {
		Status string `json:"status"`
		TranID string `json:"tran_id"`
	} `json:"element"`
}

// QueryTransaction 按交易号查询支付结果，raw 为网关响应原文。
// VALID / VALIDATED 视为成功，PENDING 或查无记录视为未决，其余视为失败。
func (s *SSLCommerz) QueryTransaction(ctx context.Context, tranID string) (TxStatus, string, error) {
	ctx, span := s.tracer.Start(ctx, "sslcommerz.QueryTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("tran_id", tranID))

	q := url.Values{
		"tran_id":      {tranID},
		"store_id":     {s.cfg.StoreID},
		"store_passwd": {s.cfg.StorePass},
		"format":       {"json"},
	}

	type result struct {
		resp queryResponse
		raw  string
	}
	res, err := executeWithBreaker(s.cb, func() (result, error) {
		var out result
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BaseURL+queryPath+"?"+q.Encode(), nil)
		if err != nil {
			return out, err
		}
		err = s.do(req, &out.resp, &out.raw)
		return out, err
	})
	if err != nil {
		span.RecordError(err)
		return "", "", fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, err)
	}

	if len(res.resp.Element) == 0 {
		return TxPending, res.raw, nil
	}
	switch strings.ToUpper(res.resp.Element[0].Status) {
	case "VALID", "VALIDATED":
		return TxValid, res.raw, nil
	case "PENDING":
		return TxPending, res.raw, nil
	default:
		return TxInvalid, res.raw, nil
	}
}

func (s *SSLCommerz) do(req *http.Request, out any, raw *string) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("gateway status %d", resp.StatusCode)
	}
	if raw != nil {
		*raw = string(body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode gateway response: %w", err)
	}
	return nil
}

func executeWithBreaker[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return *new(T), err
	}
	return res.(T), nil
}
