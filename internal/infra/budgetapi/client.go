package budgetapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Spok95/spendguard/internal/domain/spending"
)

// StatusError ответ API не 2xx.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("budget api: status %d", e.Code)
	}
	return fmt.Sprintf("budget api: status %d: %s", e.Code, e.Detail)
}

// Client хранилище бюджета поверх HTTP API. Повторов нет: ошибка сразу уходит наверх.
type Client struct {
	base string
	http *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Budget(ctx context.Context) (spending.Budget, error) {
	var out MonthlyResponse
	if err := c.do(ctx, http.MethodGet, "/spending/monthly", nil, &out); err != nil {
		return spending.Budget{}, err
	}
	return out.Budget(), nil
}

// Record прибавляет заказ. Лимит в ответе есть не у всех серверов; если его нет,
// поле остаётся нулевым.
func (c *Client) Record(ctx context.Context, total decimal.Decimal, essential bool, items []spending.Item) (spending.Budget, error) {
	req := RecordPurchaseRequest{OrderAmount: total, ItemsInOrder: FromItems(items), IsEssential: essential}
	var out RecordPurchaseResponse
	if err := c.do(ctx, http.MethodPost, "/spending/record-purchase", req, &out); err != nil {
		return spending.Budget{}, err
	}
	var limit decimal.Decimal
	if out.Limit != nil {
		limit = *out.Limit
	}
	return budget(limit, out.CurrentSpending, out.EssentialSpending, out.NonEssentialSpending), nil
}

func (c *Client) SetLimit(ctx context.Context, limit decimal.Decimal) error {
	return c.do(ctx, http.MethodPut, "/spending/limit", UpdateLimitRequest{Limit: limit}, &UpdateLimitResponse{})
}

func (c *Client) Reset(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/spending/reset", nil, &ResetResponse{})
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("budget api %s %s: %w", method, path, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		se := &StatusError{Code: res.StatusCode}
		var e ErrorResponse
		if json.NewDecoder(io.LimitReader(res.Body, 4096)).Decode(&e) == nil {
			se.Detail = e.Detail
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("budget api %s %s: decode: %w", method, path, err)
	}
	return nil
}
