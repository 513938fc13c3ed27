// Package exchange implements the centralized-exchange fetch collaborators:
// trade history and currency-scoped deposit/withdrawal history over a signed
// REST API.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// Client is a signed REST client for one configured exchange.
type Client struct {
	name   string
	http   *resty.Client
	auth   HMACAuth
	logger *slog.Logger
}

// NewClient creates a client for the named exchange.
func NewClient(name, baseURL string, auth HMACAuth, logger *slog.Logger) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("X-API-KEY", auth.Key).
		SetHeader("accept", "application/json")
	return &Client{name: name, http: http, auth: auth, logger: logger}
}

type tradeRow struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"orderId"`
	Timestamp float64 `json:"timestamp"` // epoch ms
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Amount    float64 `json:"amount"`
	Price     float64 `json:"price"`
	Fee       *feeRow `json:"fee"`
}

type feeRow struct {
	Currency string  `json:"currency"`
	Cost     float64 `json:"cost"`
}

type transferRow struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Currency  string  `json:"currency"`
	Amount    float64 `json:"amount"`
	Fee       *feeRow `json:"fee"`
	Address   string  `json:"address"`
	Tag       string  `json:"tag"`
	Status    string  `json:"status"`
}

// FetchMyTrades pages through the account's trade history from since until
// exhaustion, advancing the cursor past the last row of each page.
func (c *Client) FetchMyTrades(ctx context.Context, account string, since time.Time, limit int) ([]domain.RawExchangeTrade, error) {
	if limit <= 0 {
		limit = 100
	}

	var out []domain.RawExchangeTrade
	cursor := since.UnixMilli()

	for {
		items, err := c.signedList(ctx, "/api/v1/myTrades", cursor, limit)
		if err != nil {
			return out, err
		}
		if len(items) == 0 {
			break
		}

		last := cursor
		for _, raw := range items {
			var row tradeRow
			if err := json.Unmarshal(raw, &row); err != nil {
				c.logger.Warn("skipping undecodable trade row",
					slog.String("exchange", c.name),
					slog.String("error", err.Error()),
				)
				continue
			}
			out = append(out, toRawTrade(c.name, account, row, string(raw)))
			if ts := int64(row.Timestamp); ts > last {
				last = ts
			}
		}

		if len(items) < limit {
			break
		}
		cursor = last + 1
	}
	return out, nil
}

// FetchTransfers returns deposit or withdrawal history for one currency.
// Some exchanges cannot answer asset-less transfer queries, so the caller
// probes a configured currency list and treats per-currency failures as
// non-fatal.
func (c *Client) FetchTransfers(ctx context.Context, account, currency string, kind domain.TransferKind, since time.Time, limit int) ([]domain.RawExchangeTransfer, error) {
	if limit <= 0 {
		limit = 100
	}

	path := "/api/v1/deposits"
	if kind == domain.KindWithdrawal {
		path = "/api/v1/withdrawals"
	}

	query := url.Values{}
	query.Set("currency", currency)
	query.Set("since", strconv.FormatInt(since.UnixMilli(), 10))
	query.Set("limit", strconv.Itoa(limit))

	items, err := c.signedGet(ctx, path, query.Encode())
	if err != nil {
		return nil, err
	}

	out := make([]domain.RawExchangeTransfer, 0, len(items))
	for _, raw := range items {
		var row transferRow
		if err := json.Unmarshal(raw, &row); err != nil {
			c.logger.Warn("skipping undecodable transfer row",
				slog.String("exchange", c.name),
				slog.String("currency", currency),
				slog.String("error", err.Error()),
			)
			continue
		}
		t := domain.RawExchangeTransfer{
			Exchange:   c.name,
			Account:    account,
			TransferID: row.ID,
			Timestamp:  domain.Timestamp{Unix: row.Timestamp},
			Currency:   row.Currency,
			Amount:     decimal.NewFromFloat(row.Amount),
			Address:    row.Address,
			Tag:        row.Tag,
			Status:     row.Status,
			Payload:    string(raw),
		}
		if t.Currency == "" {
			t.Currency = currency
		}
		if row.Fee != nil {
			t.FeeCurrency = row.Fee.Currency
			t.FeeAmount = decimal.NewFromFloat(row.Fee.Cost)
		}
		out = append(out, t)
	}
	return out, nil
}

func toRawTrade(exchange, account string, row tradeRow, payload string) domain.RawExchangeTrade {
	t := domain.RawExchangeTrade{
		Exchange:  exchange,
		Account:   account,
		TradeID:   row.ID,
		OrderID:   row.OrderID,
		Timestamp: domain.Timestamp{Unix: row.Timestamp},
		Symbol:    row.Symbol,
		Side:      row.Side,
		Amount:    decimal.NewFromFloat(row.Amount),
		Price:     decimal.NewFromFloat(row.Price),
		Payload:   payload,
	}
	if row.Fee != nil {
		t.FeeCurrency = row.Fee.Currency
		t.FeeAmount = decimal.NewFromFloat(row.Fee.Cost)
	}
	return t
}

func (c *Client) signedList(ctx context.Context, path string, sinceMilli int64, limit int) ([]json.RawMessage, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(sinceMilli, 10))
	query.Set("limit", strconv.Itoa(limit))
	return c.signedGet(ctx, path, query.Encode())
}

func (c *Client) signedGet(ctx context.Context, path, query string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryString(c.auth.SignQuery(query)).
		SetResult(&items).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("exchange %s: get %s: %w: %v", c.name, path, domain.ErrTransient, err)
	}
	if resp.IsError() {
		status := resp.StatusCode()
		if status == 429 || status >= 500 {
			return nil, fmt.Errorf("exchange %s: get %s: %w: http %d", c.name, path, domain.ErrTransient, status)
		}
		return nil, fmt.Errorf("exchange %s: get %s: %w: http %d", c.name, path, domain.ErrPermanent, status)
	}
	return items, nil
}
