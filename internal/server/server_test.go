package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"RoiLedger/internal/feed"
	"RoiLedger/internal/ledger"
	"RoiLedger/internal/observability"
	"RoiLedger/internal/roi"
	"RoiLedger/internal/server"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubSource struct {
	batch feed.Batch
	err   error
}

func (s stubSource) Name() string { return "stub" }

func (s stubSource) Policy() roi.Policy { return roi.PolicyHighWaterMark }

func (s stubSource) Fetch(ctx context.Context, w feed.Window) (feed.Batch, error) {
	return s.batch, s.err
}

func newTestServer(t *testing.T, sources map[string]feed.Source) *httptest.Server {
	t.Helper()
	srv := server.NewServer(
		server.Config{Addr: ":0", DefaultPolicy: roi.PolicyHighWaterMark, Currency: "USDT"},
		server.NewRegistry(),
		sources,
		nil,
		observability.NewHealthChecker(),
		nil,
		zerolog.Nop(),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]json.RawMessage
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, decoded
}

func createSession(t *testing.T, base string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, base+"/api/sessions", map[string]string{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session: status %d", resp.StatusCode)
	}
	var id string
	if err := json.Unmarshal(body["session_id"], &id); err != nil {
		t.Fatalf("session_id: %v", err)
	}
	return id
}

func resultField(t *testing.T, body map[string]json.RawMessage, field string) decimal.Decimal {
	t.Helper()
	raw, ok := body[field]
	if !ok {
		t.Fatalf("field %s missing from %v", field, body)
	}
	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		t.Fatalf("unmarshal %s: %v", field, err)
	}
	return d
}

func TestServer_SessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	id := createSession(t, ts.URL)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/result", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result: status %d", resp.StatusCode)
	}
	if got := resultField(t, body, "adjusted_pnl"); !got.Equal(decimal.Zero) {
		t.Errorf("fresh session adjusted_pnl = %s, want 0", got)
	}

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/sessions/"+id+"/result", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted session result: status %d, want 404", resp.StatusCode)
	}
}

func TestServer_ReconciliationScenario(t *testing.T) {
	ts := newTestServer(t, nil)
	id := createSession(t, ts.URL)
	base := ts.URL + "/api/sessions/" + id

	for field, value := range map[string]string{
		"start_balance":    "1000",
		"end_balance":      "1200",
		"external_deposit": "300",
	} {
		resp, _ := doJSON(t, http.MethodPut, base+"/inputs/"+field, map[string]string{"value": value})
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("set %s: status %d", field, resp.StatusCode)
		}
	}

	resp, body := doJSON(t, http.MethodGet, base+"/result", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("result: status %d", resp.StatusCode)
	}
	if got := resultField(t, body, "adjusted_pnl"); !got.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("adjusted_pnl = %s, want -100", got)
	}
	if got := resultField(t, body, "roi_percent"); got.StringFixed(2) != "-7.69" {
		t.Errorf("roi_percent = %s, want -7.69", got)
	}
}

func TestServer_TransferMutations(t *testing.T) {
	ts := newTestServer(t, nil)
	id := createSession(t, ts.URL)
	base := ts.URL + "/api/sessions/" + id

	resp, body := doJSON(t, http.MethodPost, base+"/transfers", map[string]string{
		"side": "sell", "amount": "100",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add transfer: status %d", resp.StatusCode)
	}
	if got := resultField(t, body, "hwm_spot_flow"); !got.Equal(decimal.NewFromInt(100)) {
		t.Errorf("hwm_spot_flow = %s, want 100", got)
	}

	// Negative amounts are rejected and change nothing.
	resp, _ = doJSON(t, http.MethodPost, base+"/transfers", map[string]string{
		"side": "buy", "amount": "-5",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("negative transfer: status %d, want 400", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/result", nil)
	if got := resultField(t, body, "total_spot_buy"); !got.Equal(decimal.Zero) {
		t.Errorf("total_spot_buy = %s after rejected mutation, want 0", got)
	}

	resp, _ = doJSON(t, http.MethodDelete, base+"/transfers/7", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("out-of-range delete: status %d, want 404", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodDelete, base+"/transfers/0", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete transfer: status %d", resp.StatusCode)
	}
	if got := resultField(t, body, "total_spot_sell"); !got.Equal(decimal.Zero) {
		t.Errorf("total_spot_sell = %s after delete, want 0", got)
	}
}

func TestServer_PolicySwitch(t *testing.T) {
	ts := newTestServer(t, nil)
	id := createSession(t, ts.URL)
	base := ts.URL + "/api/sessions/" + id

	doJSON(t, http.MethodPost, base+"/transfers", map[string]string{"side": "sell", "amount": "100"})
	doJSON(t, http.MethodPut, base+"/inputs/external_deposit", map[string]string{"value": "10"})

	resp, body := doJSON(t, http.MethodPut, base+"/policy", map[string]string{"policy": "simple"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set policy: status %d", resp.StatusCode)
	}
	if got := resultField(t, body, "principal_adjustment"); !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("principal_adjustment = %s under simple policy, want 10", got)
	}

	resp, _ = doJSON(t, http.MethodPut, base+"/policy", map[string]string{"policy": "martingale"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown policy: status %d, want 400", resp.StatusCode)
	}
}

func TestServer_Breakdown(t *testing.T) {
	ts := newTestServer(t, nil)
	id := createSession(t, ts.URL)

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/sessions/"+id+"/breakdown", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("breakdown: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "ROI") {
		t.Errorf("breakdown missing ROI stage:\n%s", buf.String())
	}
}

func TestServer_Fetch(t *testing.T) {
	source := stubSource{batch: feed.Batch{
		Transfers: []feed.TransferRecord{
			{ID: "d1", Kind: feed.KindExternalDeposit, Amount: decimal.NewFromInt(300), Timestamp: time.Unix(1, 0)},
		},
		Fills: []feed.FillRecord{
			{ID: "f1", Side: ledger.SideSell, Price: decimal.NewFromInt(10), Size: decimal.NewFromInt(4), Timestamp: time.Unix(2, 0)},
		},
		Pnl: []feed.PnlRecord{
			{ID: "p1", Amount: decimal.NewFromInt(-3), Timestamp: time.Unix(3, 0)},
		},
	}}
	ts := newTestServer(t, map[string]feed.Source{"stub": source})
	id := createSession(t, ts.URL)
	base := ts.URL + "/api/sessions/" + id

	resp, body := doJSON(t, http.MethodPost, base+"/fetch", map[string]any{
		"venue": "stub", "start_ms": 0, "end_ms": 10_000,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("fetch: status %d", resp.StatusCode)
	}

	var applied int
	json.Unmarshal(body["transfers_applied"], &applied)
	if applied != 1 {
		t.Errorf("transfers_applied = %d, want 1", applied)
	}

	resp, body = doJSON(t, http.MethodGet, base+"/result", nil)
	if got := resultField(t, body, "external_deposit"); !got.Equal(decimal.NewFromInt(300)) {
		t.Errorf("external_deposit = %s, want 300", got)
	}
	if got := resultField(t, body, "total_spot_sell"); !got.Equal(decimal.NewFromInt(40)) {
		t.Errorf("total_spot_sell = %s, want 40", got)
	}
	if got := resultField(t, body, "futures_pnl_total"); !got.Equal(decimal.NewFromInt(-3)) {
		t.Errorf("futures_pnl_total = %s, want -3", got)
	}
}

func TestServer_FetchUnknownVenue(t *testing.T) {
	ts := newTestServer(t, nil)
	id := createSession(t, ts.URL)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/fetch", map[string]any{
		"venue": "ghost", "start_ms": 0, "end_ms": 1,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown venue: status %d, want 400", resp.StatusCode)
	}
}

func TestServer_FetchUpstreamFailure(t *testing.T) {
	source := stubSource{err: fmt.Errorf("venue down")}
	ts := newTestServer(t, map[string]feed.Source{"stub": source})
	id := createSession(t, ts.URL)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+id+"/fetch", map[string]any{
		"venue": "stub", "start_ms": 0, "end_ms": 1,
	})
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("upstream failure: status %d, want 502", resp.StatusCode)
	}
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: status %d", resp.StatusCode)
	}

	// Readiness starts false until the process marks itself ready.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/readyz", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz before ready: status %d, want 503", resp.StatusCode)
	}
}
