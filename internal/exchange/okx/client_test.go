package okx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

func testCreds() Credentials {
	return Credentials{Key: "test-key", Secret: testSecret, Passphrase: "test-pass"}
}

// verifySignature recomputes the expected signature server-side and compares
// it with the request headers.
func verifySignature(t *testing.T, r *http.Request) {
	t.Helper()
	if got := r.Header.Get("OK-ACCESS-KEY"); got != "test-key" {
		t.Errorf("OK-ACCESS-KEY = %q", got)
	}
	if got := r.Header.Get("OK-ACCESS-PASSPHRASE"); got != "test-pass" {
		t.Errorf("OK-ACCESS-PASSPHRASE = %q", got)
	}
	ts := r.Header.Get("OK-ACCESS-TIMESTAMP")
	want := sign(testSecret, ts, r.Method, r.URL.RequestURI(), "")
	if got := r.Header.Get("OK-ACCESS-SIGN"); got != want {
		t.Errorf("OK-ACCESS-SIGN = %q, want %q", got, want)
	}
}

func TestClient_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		verifySignature(t, r)

		switch r.URL.Path {
		case "/api/v5/account/bills":
			w.Write([]byte(`{"code":"0","msg":"","data":[
				{"billId":"b1","ccy":"USDT","subType":"11","sz":"500","ts":"1700000000000"},
				{"billId":"b2","ccy":"USDT","subType":"12","sz":"-120","ts":"1700000001000"},
				{"billId":"b3","ccy":"USDT","subType":"2","sz":"9","ts":"1700000002000"}
			]}`))
		case "/api/v5/trade/fills-history":
			w.Write([]byte(`{"code":"0","msg":"","data":[
				{"tradeId":"t1","instId":"BTC-USDT","side":"sell","fillPx":"50000","fillSz":"0.001","fillPnl":"-5","ts":"1700000003000"}
			]}`))
		case "/api/v5/account/balance":
			w.Write([]byte(`{"code":"0","msg":"","data":[
				{"uTime":"1700000004000","details":[
					{"ccy":"USDT","eq":"1500.5","availBal":"900","upl":"-25"}
				]}
			]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds(), zerolog.Nop())
	c.now = func() time.Time { return time.UnixMilli(1700000005000) }

	batch, err := c.Fetch(context.Background(), feed.Window{
		Start:    time.UnixMilli(1699990000000),
		End:      time.UnixMilli(1700000010000),
		Currency: "USDT",
	})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if len(batch.Transfers) != 2 {
		t.Fatalf("transfers = %d, want 2 (subType 2 bill must be skipped)", len(batch.Transfers))
	}
	if batch.Transfers[0].Kind != feed.KindExternalDeposit || !batch.Transfers[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("transfer 0 = %+v", batch.Transfers[0])
	}
	if batch.Transfers[1].Kind != feed.KindExternalWithdrawal || !batch.Transfers[1].Amount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("transfer 1 must be a positive withdrawal, got %+v", batch.Transfers[1])
	}

	if len(batch.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(batch.Fills))
	}
	f := batch.Fills[0]
	if f.Side != ledger.SideSell || !f.Amount().Equal(decimal.NewFromInt(50)) {
		t.Errorf("fill = %+v, want sell with amount 50", f)
	}
	if !f.RealizedPnl.Equal(decimal.NewFromInt(-5)) {
		t.Errorf("fill pnl = %s, want -5", f.RealizedPnl)
	}

	if batch.Snapshot == nil {
		t.Fatal("snapshot missing")
	}
	if !batch.Snapshot.MarginUsed().Equal(decimal.RequireFromString("600.5")) {
		t.Errorf("margin used = %s, want 600.5", batch.Snapshot.MarginUsed())
	}
	if !batch.Snapshot.MarginUsedExclUpl().Equal(decimal.RequireFromString("625.5")) {
		t.Errorf("margin used excl upl = %s, want 625.5", batch.Snapshot.MarginUsedExclUpl())
	}
}

func TestClient_APIErrorCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"50111","msg":"invalid api key","data":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds(), zerolog.Nop())
	if _, err := c.Fetch(context.Background(), feed.Window{Currency: "USDT"}); err == nil {
		t.Fatal("non-zero api code must surface as an error")
	}
}

func TestClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testCreds(), zerolog.Nop())
	if _, err := c.Fetch(context.Background(), feed.Window{Currency: "USDT"}); err == nil {
		t.Fatal("non-200 status must surface as an error")
	}
}

func TestCredentials_Redacted(t *testing.T) {
	s := testCreds().String()
	if want := "test****"; !strings.Contains(s, want) {
		t.Errorf("redacted string %q missing %q", s, want)
	}
	if strings.Contains(s, testSecret) {
		t.Errorf("secret leaked into %q", s)
	}
}
