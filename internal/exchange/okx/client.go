// Package okx fetches reconciliation inputs from the OKX v5 REST API.
//
// OKX unified accounts move collateral between spot and futures through an
// internal transfer channel, so sessions fed from here default to the
// high-water-mark principal policy.
package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"
	"RoiLedger/internal/roi"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Account bill subtypes for internal transfers.
const (
	billSubTypeTransferIn  = "11"
	billSubTypeTransferOut = "12"
)

// Credentials holds the OKX API key triple.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// String returns a redacted representation suitable for logging.
func (c Credentials) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("okx.Credentials{key=%s, secret=%s}", redact(c.Key), redact(c.Secret))
}

// Client is the REST client for OKX. It implements feed.Source.
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

func (c *Client) Name() string { return "okx" }

// Policy is the principal-adjustment policy appropriate for this venue.
func (c *Client) Policy() roi.Policy { return roi.PolicyHighWaterMark }

// Fetch pulls internal transfer bills, spot fills and the account balance for
// the window. OKX reports internal spot/futures transfers as account bills
// with subType 11 (in) and 12 (out); these map to the external
// deposit/withdrawal inputs of the futures account being reconciled.
func (c *Client) Fetch(ctx context.Context, w feed.Window) (feed.Batch, error) {
	transfers, err := c.fetchBills(ctx, w)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("okx: fetch bills: %w", err)
	}

	fills, err := c.fetchFills(ctx, w)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("okx: fetch fills: %w", err)
	}

	snapshot, err := c.fetchBalance(ctx, w.Currency)
	if err != nil {
		return feed.Batch{}, fmt.Errorf("okx: fetch balance: %w", err)
	}

	c.log.Info().
		Int("transfers", len(transfers)).
		Int("fills", len(fills)).
		Str("currency", w.Currency).
		Msg("okx fetch complete")

	return feed.Batch{
		Transfers: transfers,
		Fills:     fills,
		Snapshot:  snapshot,
	}, nil
}

type billJSON struct {
	BillID  string `json:"billId"`
	Ccy     string `json:"ccy"`
	SubType string `json:"subType"`
	Sz      string `json:"sz"`
	Ts      string `json:"ts"`
}

func (c *Client) fetchBills(ctx context.Context, w feed.Window) ([]feed.TransferRecord, error) {
	q := url.Values{}
	q.Set("ccy", w.Currency)
	q.Set("begin", strconv.FormatInt(w.Start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(w.End.UnixMilli(), 10))

	var bills []billJSON
	if err := c.get(ctx, "/api/v5/account/bills", q, &bills); err != nil {
		return nil, err
	}

	var out []feed.TransferRecord
	for _, b := range bills {
		var kind feed.TransferKind
		switch b.SubType {
		case billSubTypeTransferIn:
			kind = feed.KindExternalDeposit
		case billSubTypeTransferOut:
			kind = feed.KindExternalWithdrawal
		default:
			continue
		}

		amount, err := decimal.NewFromString(b.Sz)
		if err != nil {
			return nil, fmt.Errorf("bill %s: parse sz: %w", b.BillID, err)
		}
		ts, err := parseMillis(b.Ts)
		if err != nil {
			return nil, fmt.Errorf("bill %s: parse ts: %w", b.BillID, err)
		}

		out = append(out, feed.TransferRecord{
			ID:        b.BillID,
			Timestamp: ts,
			Currency:  b.Ccy,
			Kind:      kind,
			Amount:    amount.Abs(),
		})
	}
	return out, nil
}

type fillHistoryJSON struct {
	TradeID string `json:"tradeId"`
	InstID  string `json:"instId"`
	Side    string `json:"side"`
	FillPx  string `json:"fillPx"`
	FillSz  string `json:"fillSz"`
	FillPnl string `json:"fillPnl"`
	Ts      string `json:"ts"`
}

func (c *Client) fetchFills(ctx context.Context, w feed.Window) ([]feed.FillRecord, error) {
	q := url.Values{}
	q.Set("instType", "SPOT")
	q.Set("begin", strconv.FormatInt(w.Start.UnixMilli(), 10))
	q.Set("end", strconv.FormatInt(w.End.UnixMilli(), 10))

	var fills []fillHistoryJSON
	if err := c.get(ctx, "/api/v5/trade/fills-history", q, &fills); err != nil {
		return nil, err
	}

	var out []feed.FillRecord
	for _, f := range fills {
		var side ledger.Side
		switch f.Side {
		case "buy":
			side = ledger.SideBuy
		case "sell":
			side = ledger.SideSell
		default:
			return nil, fmt.Errorf("fill %s: unknown side %q", f.TradeID, f.Side)
		}

		price, err := decimal.NewFromString(f.FillPx)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse fillPx: %w", f.TradeID, err)
		}
		size, err := decimal.NewFromString(f.FillSz)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse fillSz: %w", f.TradeID, err)
		}
		pnl := decimal.Zero
		if f.FillPnl != "" {
			pnl, err = decimal.NewFromString(f.FillPnl)
			if err != nil {
				return nil, fmt.Errorf("fill %s: parse fillPnl: %w", f.TradeID, err)
			}
		}
		ts, err := parseMillis(f.Ts)
		if err != nil {
			return nil, fmt.Errorf("fill %s: parse ts: %w", f.TradeID, err)
		}

		out = append(out, feed.FillRecord{
			ID:          f.TradeID,
			Timestamp:   ts,
			Instrument:  f.InstID,
			Side:        side,
			Price:       price,
			Size:        size,
			RealizedPnl: pnl,
		})
	}
	return out, nil
}

type balanceJSON struct {
	UTime   string `json:"uTime"`
	Details []struct {
		Ccy      string `json:"ccy"`
		Eq       string `json:"eq"`
		AvailBal string `json:"availBal"`
		Upl      string `json:"upl"`
	} `json:"details"`
}

func (c *Client) fetchBalance(ctx context.Context, currency string) (*feed.AccountSnapshot, error) {
	q := url.Values{}
	q.Set("ccy", currency)

	var balances []balanceJSON
	if err := c.get(ctx, "/api/v5/account/balance", q, &balances); err != nil {
		return nil, err
	}

	for _, b := range balances {
		for _, d := range b.Details {
			if d.Ccy != currency {
				continue
			}
			eq, err := decimal.NewFromString(d.Eq)
			if err != nil {
				return nil, fmt.Errorf("parse eq: %w", err)
			}
			avail, err := decimal.NewFromString(d.AvailBal)
			if err != nil {
				return nil, fmt.Errorf("parse availBal: %w", err)
			}
			upl := decimal.Zero
			if d.Upl != "" {
				upl, err = decimal.NewFromString(d.Upl)
				if err != nil {
					return nil, fmt.Errorf("parse upl: %w", err)
				}
			}
			ts, err := parseMillis(b.UTime)
			if err != nil {
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
	}
	return nil, fmt.Errorf("no balance detail for %s", currency)
}

// envelope is the standard OKX v5 response wrapper.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// get performs a signed GET request and unmarshals the data array into out.
// The signature is HMAC-SHA256(secret, timestamp+method+path+query) encoded
// as base64; the query string is part of the signed request path.
func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	requestPath := path
	if len(q) > 0 {
		requestPath += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+requestPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", c.creds.Key)
	req.Header.Set("OK-ACCESS-SIGN", sign(c.creds.Secret, ts, http.MethodGet, requestPath, ""))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.creds.Passphrase)
	req.Header.Set("Content-Type", "application/json")

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

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}
	if env.Code != "0" {
		return fmt.Errorf("api error code %s: %s", env.Code, env.Msg)
	}

	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}

func sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + method + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
