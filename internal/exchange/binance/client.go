// Package binance fetches reconciliation inputs from the Binance USDT-M
// futures REST API.
//
// Binance futures wallets have no internal spot transfer channel visible to
// this API; everything arrives as income records. Sessions fed from here use
// the simple-transfer principal policy.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/roi"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Credentials holds the Binance API key pair.
type Credentials struct {
	Key    string
	Secret string
}

// String returns a redacted representation suitable for logging.
func (c Credentials) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("binance.Credentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}

// Client is the REST client for Binance USDT-M futures. It implements
// feed.Source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      Credentials
	log        zerolog.Logger
	now        func() time.Time
}

func NewClient(baseURL string, creds Credentials, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		creds: creds,
		log:   log,
		now:   time.Now,
	}
}

func (c *Client) Name() string { return "binance" }

// Policy is the principal-adjustment policy appropriate for this venue.
func (c *Client) Policy() roi.Policy { return roi.PolicySimpleTransfer }

// Fetch pulls income records and the account state for the window. TRANSFER
// income splits by sign into external deposits and withdrawals; REALIZED_PNL
// and FUNDING_FEE income become futures PnL records. There are no spot fills
// on this venue.
func (c *Client) Fetch(ctx context.Context, w feed.Window) (feed.Batch, error) {
	income, err := c.fetchIncome(ctx, w)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("binance: fetch income: %w", err)
	}

	var transfers []feed.TransferRecord
	var pnl []feed.PnlRecord
	for _, inc := range income {
		amount, err := decimal.NewFromString(inc.Income)
		if err != nil {
			return feed.Batch{}, fmt.Errorf("binance: income %s: parse amount: %w", inc.TranID, err)
		}
		ts := time.UnixMilli(inc.Time)

		switch inc.IncomeType {
		case "TRANSFER":
			kind := feed.KindExternalDeposit
			if amount.IsNegative() {
				kind = feed.KindExternalWithdrawal
			}
			transfers = append(transfers, feed.TransferRecord{
				ID:        inc.TranID,
				Timestamp: ts,
				Currency:  inc.Asset,
				Kind:      kind,
				Amount:    amount.Abs(),
			})
		case "REALIZED_PNL", "FUNDING_FEE":
			pnl = append(pnl, feed.PnlRecord{
				ID:        inc.TranID,
				Timestamp: ts,
				Amount:    amount,
			})
		}
	}

	snapshot, err := c.fetchAccount(ctx, w.Currency)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("binance: fetch account: %w", err)
	}

	c.log.Info().
		Int("transfers", len(transfers)).
		Int("pnl", len(pnl)).
		Str("currency", w.Currency).
		Msg("binance fetch complete")

	return feed.Batch{
		Transfers: transfers,
		Pnl:       pnl,
		Snapshot:  snapshot,
	}, nil
}

type incomeJSON struct {
	TranID     string `json:"tranId"`
	Asset      string `json:"asset"`
	IncomeType string `json:"incomeType"`
	Income     string `json:"income"`
	Time       int64  `json:"time"`
}

func (c *Client) fetchIncome(ctx context.Context, w feed.Window) ([]incomeJSON, error) {
	q := url.Values{}
	q.Set("startTime", strconv.FormatInt(w.Start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(w.End.UnixMilli(), 10))
	q.Set("limit", "1000")

	var income []incomeJSON
	if err := c.get(ctx, "/fapi/v1/income", q, &income); err != nil {
		return nil, err
	}
	return income, nil
}

type accountJSON struct {
	TotalMarginBalance    string `json:"totalMarginBalance"`
	AvailableBalance      string `json:"availableBalance"`
	TotalUnrealizedProfit string `json:"totalUnrealizedProfit"`
	UpdateTime            int64  `json:"updateTime"`
}

func (c *Client) fetchAccount(ctx context.Context, currency string) (*feed.AccountSnapshot, error) {
	var acct accountJSON
	if err := c.get(ctx, "/fapi/v2/account", url.Values{}, &acct); err != nil {
		return nil, err
	}

	eq, err := decimal.NewFromString(acct.TotalMarginBalance)
	if err != nil {
		return nil, fmt.Errorf("parse totalMarginBalance: %w", err)
	}
	avail, err := decimal.NewFromString(acct.AvailableBalance)
	if err != nil {
		return nil, fmt.Errorf("parse availableBalance: %w", err)
	}
	upl, err := decimal.NewFromString(acct.TotalUnrealizedProfit)
	if err != nil {
		return nil, fmt.Errorf("parse totalUnrealizedProfit: %w", err)
	}

	ts := time.UnixMilli(acct.UpdateTime)
	if acct.UpdateTime == 0 {
		ts = c.now()
	}

	return &feed.AccountSnapshot{
		Timestamp:        ts,
		Currency:         currency,
		Equity:           eq,
		AvailableBalance: avail,
		UnrealizedPnl:    upl,
	}, nil
}

// get performs a signed GET request. Binance signs the query string itself:
// the hex HMAC-SHA256 of the query (including the timestamp) is appended as
// the signature parameter, and the API key travels in the X-MBX-APIKEY
// header.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("timestamp", strconv.FormatInt(c.now().UnixMilli(), 10))
	q.Set("recvWindow", "5000")

	query := q.Encode()
	query += "&signature=" + sign(c.creds.Secret, query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-MBX-APIKEY", c.creds.Key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func sign(secret, query string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	return hex.EncodeToString(mac.Sum(nil))
}
