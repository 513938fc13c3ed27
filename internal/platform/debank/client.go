// Package debank implements the on-chain activity fetch collaborator against
// a DeBank-style Cloud API (user/history_list). The client paginates
// backwards through history until it passes the requested lower bound or
// hits the page safety limit.
package debank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/crazysoldier/CryptoBookKeeper/internal/domain"
)

// DefaultBaseURL is the production pro-openapi endpoint.
const DefaultBaseURL = "https://pro-openapi.debank.com/v1"

// Client is an authenticated DeBank API client.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a client sending the AccessKey header on every request.
func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("AccessKey", apiKey).
		SetHeader("accept", "application/json")
	return &Client{http: http, logger: logger}
}

// historyResponse mirrors the user/history_list envelope. Only the fields
// the normalizer consumes are decoded; the whole item is retained verbatim
// as the raw payload.
type historyResponse struct {
	HistoryList []json.RawMessage `json:"history_list"`
}

type historyItem struct {
	ID     string  `json:"id"`
	Chain  string  `json:"chain"`
	TimeAt float64 `json:"time_at"`
	CateID string  `json:"cate_id"`
	IsScam bool    `json:"is_scam"`
	Tx     *struct {
		FromAddr  string  `json:"from_addr"`
		ToAddr    string  `json:"to_addr"`
		EthGasFee float64 `json:"eth_gas_fee"`
	} `json:"tx"`
	Sends []struct {
		Amount  float64 `json:"amount"`
		TokenID string  `json:"token_id"`
	} `json:"sends"`
	Receives []struct {
		Amount  float64 `json:"amount"`
		TokenID string  `json:"token_id"`
	} `json:"receives"`
	TokenApprove *struct {
		TokenID string  `json:"token_id"`
		Spender string  `json:"spender"`
		Value   float64 `json:"value"`
	} `json:"token_approve"`
}

// ListHistory fetches the activity history for one address on one chain,
// newest first, stopping once records older than since appear or pageLimit
// pages have been fetched. Amounts arrive pre-scaled to token units.
func (c *Client) ListHistory(ctx context.Context, address, chainID string, since time.Time, pageSize, pageLimit int) ([]domain.RawChainActivity, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageLimit <= 0 {
		pageLimit = 50
	}

	var out []domain.RawChainActivity
	seen := make(map[string]bool)
	startTime := int64(0) // 0 means "from the newest"

	for page := 0; page < pageLimit; page++ {
		var body historyResponse
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"id":         address,
				"chain_id":   chainID,
				"page_count": strconv.Itoa(pageSize),
				"start_time": strconv.FormatInt(startTime, 10),
			}).
			SetResult(&body).
			Get("/user/history_list")
		if err != nil {
			return out, fmt.Errorf("debank: history %s/%s: %w: %v", chainID, address, domain.ErrTransient, err)
		}
		if resp.IsError() {
			return out, classifyStatus(resp.StatusCode(), chainID, address)
		}

		if len(body.HistoryList) == 0 {
			break
		}

		oldest := int64(0)
		reachedSince := false
		for _, raw := range body.HistoryList {
			var item historyItem
			if err := json.Unmarshal(raw, &item); err != nil {
				c.logger.Warn("skipping undecodable history item",
					slog.String("chain", chainID),
					slog.String("error", err.Error()),
				)
				continue
			}
			ts := int64(item.TimeAt)
			if oldest == 0 || ts < oldest {
				oldest = ts
			}
			if !since.IsZero() && ts < since.Unix() {
				reachedSince = true
				continue
			}
			if seen[item.ID] {
				continue
			}
			seen[item.ID] = true
			out = append(out, toRawActivity(item, string(raw)))
		}

		if reachedSince || len(body.HistoryList) < pageSize {
			break
		}
		// Resume one second above the oldest record so records sharing that
		// second at the page boundary are not skipped under exclusive
		// start_time semantics; seen filters the re-fetched overlap.
		startTime = oldest + 1
	}

	return out, nil
}

func toRawActivity(item historyItem, payload string) domain.RawChainActivity {
	act := domain.RawChainActivity{
		Chain:        item.Chain,
		TxHash:       item.ID,
		Timestamp:    domain.Timestamp{Unix: item.TimeAt},
		CategoryHint: item.CateID,
		IsScam:       item.IsScam,
		Payload:      payload,
	}
	if item.Tx != nil {
		act.FromAddr = item.Tx.FromAddr
		act.ToAddr = item.Tx.ToAddr
		if item.Tx.EthGasFee > 0 {
			act.GasFee = decimal.NewFromFloat(item.Tx.EthGasFee)
			act.GasFeeAsset = "ETH"
		}
	}
	for i, s := range item.Sends {
		act.Sends = append(act.Sends, domain.ChainLeg{
			AssetID:  s.TokenID,
			Amount:   decimal.NewFromFloat(s.Amount),
			LogIndex: int64(i),
		})
	}
	for i, r := range item.Receives {
		act.Receives = append(act.Receives, domain.ChainLeg{
			AssetID:  r.TokenID,
			Amount:   decimal.NewFromFloat(r.Amount),
			LogIndex: int64(i),
		})
	}
	if item.TokenApprove != nil {
		act.Approval = &domain.ChainApproval{
			AssetID: item.TokenApprove.TokenID,
			Spender: item.TokenApprove.Spender,
			Amount:  decimal.NewFromFloat(item.TokenApprove.Value),
		}
	}
	return act
}

// classifyStatus separates retryable upstream conditions from permanent
// ones. Rate limiting and server errors are transient; everything else in
// the 4xx range means the request itself is wrong.
func classifyStatus(status int, chainID, address string) error {
	if status == 429 || status >= 500 {
		return fmt.Errorf("debank: history %s/%s: %w: http %d", chainID, address, domain.ErrTransient, status)
	}
	return fmt.Errorf("debank: history %s/%s: %w: http %d", chainID, address, domain.ErrPermanent, status)
}
