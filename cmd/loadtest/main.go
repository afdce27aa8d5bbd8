package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

type orderLine struct {
	ProductID int   `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

type orderReq struct {
	Products        []orderLine `json:"products"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"`
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	productID := flag.Int("product", 1, "product id")
	qty := flag.Int64("qty", 1, "quantity per order")

	// 超卖测试参数：200 个用户并发下单
	nUsers := flag.Int("users", 200, "distinct users")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	before, err := getStock(client, *baseURL, *productID)
	if err != nil {
		fmt.Println("read stock failed:", err)
		os.Exit(1)
	}
	fmt.Printf("initial stock: %d\n", before)

	// 1) 不超卖测试：不同 user 并发下单同一商品
	fmt.Printf("start oversell test: product=%d users=%d qty=%d concurrency=%d\n", *productID, *nUsers, *qty, *concurrency)
	results := run(*nUsers, *concurrency, func(idx int) Result {
		return orderOnce(client, *baseURL, *productID, *qty, 10000+idx, "")
	})
	printSummary("oversell", results)

	after, err := getStock(client, *baseURL, *productID)
	if err != nil {
		fmt.Println("read stock failed:", err)
		os.Exit(1)
	}
	created := count(results, http.StatusCreated)
	fmt.Printf("final stock: %d, orders created: %d\n", after, created)
	if after < 0 || before-after != int64(created)*(*qty) {
		fmt.Println("OVERSELL DETECTED: stock delta does not match created orders")
		os.Exit(2)
	}

	// 2) 幂等测试：同一个 user + 同一个 Idempotency-Key 并发重复提交，最多只落一单
	key := fmt.Sprintf("loadtest-%d", time.Now().UnixNano())
	fmt.Printf("\nstart idempotency test: same user (9999), key=%s, 20 requests\n", key)
	results2 := run(20, 20, func(int) Result {
		return orderOnce(client, *baseURL, *productID, 1, 9999, key)
	})
	printSummary("idempotency", results2)
	if c := count(results2, http.StatusCreated); c > 1 {
		fmt.Printf("IDEMPOTENCY BROKEN: %d orders created with one key\n", c)
		os.Exit(2)
	}
}

func run(total, concurrency int, fn func(idx int) Result) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, total)

	for i := 0; i < total; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = fn(idx)
		}(i)
	}

	wg.Wait()
	return results
}

func orderOnce(client *http.Client, baseURL string, productID int, qty int64, userID int, idemKey string) Result {
	b, _ := json.Marshal(orderReq{
		Products:        []orderLine{{ProductID: productID, Quantity: qty}},
		ShippingAddress: "Load Test Road, Dhaka",
		PaymentMethod:   "COD",
	})
	httpReq, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(b))
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", strconv.Itoa(userID))
	if idemKey != "" {
		httpReq.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(body)}
}

func count(results []Result, status int) int {
	n := 0
	for _, r := range results {
		if r.Err == nil && r.Status == status {
			n++
		}
	}
	return n
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	byCode := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		byCode[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 201, 400, 404, 409, 422, 429, 500, 502} {
		if byCode[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, byCode[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// getStock 查询商品当前库存，用于压测前后对账。
func getStock(client *http.Client, baseURL string, productID int) (int64, error) {
	url := fmt.Sprintf("%s/api/products/%d", baseURL, productID)
	resp, err := client.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Code int `json:"code"`
		Data struct {
			Stock int64 `json:"stock"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, err
	}
	return out.Data.Stock, nil
}
