package session_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/internal/catalog"
	"Storefront/internal/product"
	"Storefront/internal/session"
)

const (
	jwtSecret    = "test-secret-test-secret-test-sec"
	metricsToken = "metrics-token"
)

type created struct {
	SessionID   string           `json:"session_id"`
	AccessToken string           `json:"access_token"`
	Snapshot    product.Snapshot `json:"snapshot"`
}

func newTS(t *testing.T, createLimit int) (*httptest.Server, *session.Registry) {
	t.Helper()

	reg := prometheus.NewRegistry()
	metrics := session.NewMetrics(reg)

	registry := session.NewRegistry(catalog.NewDefaultSource(), zap.NewNop())
	registry.Schedules = session.Schedules{}
	registry.Metrics = metrics
	t.Cleanup(registry.Shutdown)

	s := &session.Server{
		Registry: registry,
		Tokens:   session.NewTokenMaker(jwtSecret),
		TokenTTL: time.Hour,
		Log:      zap.NewNop(),
		Metrics:  metrics,
	}

	h := session.NewHandler(s, session.HTTPDeps{
		Log:               zap.NewNop(),
		Service:           "storefront",
		Registry:          reg,
		MetricsEnabled:    true,
		MetricsToken:      metricsToken,
		CORSOrigins:       []string{"http://localhost:5173"},
		CreateLimitPerMin: createLimit,
	})

	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, registry
}

func doJSON(t *testing.T, method, url string, body any, token string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			r = bytes.NewReader(raw)
		}
	}

	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, raw
}

func createSession(t *testing.T, baseURL string) created {
	t.Helper()

	resp, raw := doJSON(t, http.MethodPost, baseURL+"/sessions", nil, "")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status=%d body=%s", resp.StatusCode, raw)
	}

	var c created
	if err := json.Unmarshal(raw, &c); err != nil {
		t.Fatalf("decode session: %v body=%s", err, raw)
	}
	if c.SessionID == "" || c.AccessToken == "" {
		t.Fatalf("incomplete session: %s", raw)
	}
	return c
}

func decodeSnapshot(t *testing.T, raw []byte) product.Snapshot {
	t.Helper()

	var snap product.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		t.Fatalf("decode snapshot: %v body=%s", err, raw)
	}
	return snap
}

func find(t *testing.T, products []product.Product, id string) product.Product {
	t.Helper()
	for _, p := range products {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("product %s missing", id)
	return product.Product{}
}

func TestHTTP_QuantityLifecycle(t *testing.T) {
	ts, _ := newTS(t, 0)
	sess := createSession(t, ts.URL)

	if len(sess.Snapshot.Products) != 5 || sess.Snapshot.Version != 1 {
		t.Fatalf("initial snapshot=%+v", sess.Snapshot)
	}

	{
		resp, raw := doJSON(t, http.MethodGet, ts.URL+"/products", nil, sess.AccessToken)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("list status=%d body=%s", resp.StatusCode, raw)
		}
		var list []product.Product
		if err := json.Unmarshal(raw, &list); err != nil {
			t.Fatalf("decode list: %v", err)
		}
		if len(list) != 5 || list[0].ID != "p1" {
			t.Fatalf("list=%+v", list)
		}
	}

	resp, raw := doJSON(t, http.MethodPost, ts.URL+"/products/p1/increase", nil, sess.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("increase status=%d body=%s", resp.StatusCode, raw)
	}
	snap := decodeSnapshot(t, raw)
	if q := find(t, snap.Products, "p1").Quantity; q != 51 {
		t.Fatalf("after increase quantity=%d", q)
	}
	if snap.Cause != product.CauseIncrease {
		t.Fatalf("cause=%q", snap.Cause)
	}

	doJSON(t, http.MethodPost, ts.URL+"/products/p1/increase", nil, sess.AccessToken)
	_, raw = doJSON(t, http.MethodPost, ts.URL+"/products/p1/reset", nil, sess.AccessToken)
	snap = decodeSnapshot(t, raw)
	if q := find(t, snap.Products, "p1").Quantity; q != 50 {
		t.Fatalf("after reset quantity=%d", q)
	}

	_, raw = doJSON(t, http.MethodPost, ts.URL+"/products/p4/decrease", nil, sess.AccessToken)
	snap = decodeSnapshot(t, raw)
	if q := find(t, snap.Products, "p4").Quantity; q != -1 {
		t.Fatalf("decrease below zero quantity=%d", q)
	}

	before := snap.Version
	resp, raw = doJSON(t, http.MethodPost, ts.URL+"/products/missing/decrease", nil, sess.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unknown id status=%d", resp.StatusCode)
	}
	if snap = decodeSnapshot(t, raw); snap.Version != before || len(snap.Products) != 5 {
		t.Fatalf("unknown id changed the list: %+v", snap)
	}
}

func TestHTTP_LastSaleItem(t *testing.T) {
	ts, _ := newTS(t, 0)
	sess := createSession(t, ts.URL)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/last-sale", nil, sess.AccessToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("empty last sale status=%d", resp.StatusCode)
	}

	item := map[string]any{"id": "p2", "name": "Mouse", "price": 20000, "quantity": 29}
	resp, raw := doJSON(t, http.MethodPut, ts.URL+"/last-sale", item, sess.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put status=%d body=%s", resp.StatusCode, raw)
	}
	if snap := decodeSnapshot(t, raw); snap.LastSale == nil || snap.LastSale.ID != "p2" {
		t.Fatalf("snapshot last_sale=%+v", snap.LastSale)
	}

	resp, raw = doJSON(t, http.MethodGet, ts.URL+"/last-sale", nil, sess.AccessToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status=%d", resp.StatusCode)
	}
	var got product.Product
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != "p2" || got.Name != "Mouse" || got.Quantity != 29 || got.Price.IntPart() != 20000 {
		t.Fatalf("last sale=%+v", got)
	}

	cases := map[string]any{
		"bad json":      "{",
		"unknown field": map[string]any{"id": "p1", "color": "red"},
		"missing id":    map[string]any{"name": "Mouse"},
	}
	for name, body := range cases {
		resp, raw := doJSON(t, http.MethodPut, ts.URL+"/last-sale", body, sess.AccessToken)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: status=%d body=%s", name, resp.StatusCode, raw)
		}
	}
}

func TestHTTP_RequiresSessionToken(t *testing.T) {
	ts, _ := newTS(t, 0)

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/products", nil, "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token status=%d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/products", nil, "bogus")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token status=%d", resp.StatusCode)
	}

	sess := createSession(t, ts.URL)
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/session", nil, sess.AccessToken)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("close status=%d", resp.StatusCode)
	}

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/products", nil, sess.AccessToken)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("closed session status=%d body=%s", resp.StatusCode, raw)
	}
}

func TestHTTP_CreateIsRateLimited(t *testing.T) {
	ts, registry := newTS(t, 2)

	createSession(t, ts.URL)
	createSession(t, ts.URL)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/sessions", nil, "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", resp.StatusCode)
	}
	if registry.Len() != 2 {
		t.Fatalf("sessions=%d want=2", registry.Len())
	}
}

func TestHTTP_EventsStreamSnapshots(t *testing.T) {
	ts, _ := newTS(t, 0)
	sess := createSession(t, ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events?access_token="+sess.AccessToken, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type=%q", ct)
	}

	rd := bufio.NewReader(resp.Body)

	first := readEvent(t, rd)
	if first.Version != 1 || len(first.Products) != 5 {
		t.Fatalf("first event=%+v", first)
	}

	doJSON(t, http.MethodPost, ts.URL+"/products/p3/increase", nil, sess.AccessToken)

	next := readEvent(t, rd)
	if next.Version <= first.Version || next.Cause != product.CauseIncrease {
		t.Fatalf("next event=%+v", next)
	}
	if q := find(t, next.Products, "p3").Quantity; q != 21 {
		t.Fatalf("streamed quantity=%d want=21", q)
	}
}

func readEvent(t *testing.T, rd *bufio.Reader) product.Snapshot {
	t.Helper()

	var data string
	for {
		line, err := rd.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
		}
	}
	return decodeSnapshot(t, []byte(data))
}

func TestHTTP_MetricsAndProbes(t *testing.T) {
	ts, _ := newTS(t, 0)
	sess := createSession(t, ts.URL)
	doJSON(t, http.MethodPost, ts.URL+"/products/p1/increase", nil, sess.AccessToken)
	doJSON(t, http.MethodPost, ts.URL+"/products/ghost/increase", nil, sess.AccessToken)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, _ := doJSON(t, http.MethodGet, ts.URL+path, nil, "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s status=%d", path, resp.StatusCode)
		}
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, "")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("metrics without token status=%d", resp.StatusCode)
	}

	resp, raw := doJSON(t, http.MethodGet, ts.URL+"/metrics", nil, metricsToken)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status=%d", resp.StatusCode)
	}
	body := string(raw)
	for _, want := range []string{
		`storefront_quantity_ops_total{applied="true",op="increase"} 1`,
		`storefront_quantity_ops_total{applied="false",op="increase"} 1`,
		"storefront_sessions_active 1",
		"http_requests_total",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestHTTP_CORSPreflight(t *testing.T) {
	ts, _ := newTS(t, 0)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/products", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	req.Header.Set("Access-Control-Request-Headers", "Authorization")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("allow-origin=%q", got)
	}
}
