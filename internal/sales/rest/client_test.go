package rest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	ports "storico/internal/sales"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry(n int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = n
	cfg.InitialInterval = time.Millisecond
	cfg.MaxInterval = 2 * time.Millisecond
	return cfg
}

func newTestClient(t *testing.T, srv *httptest.Server, retries int) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: srv.URL + "/", Token: "secret", Retry: fastRetry(retries)}, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNew_ValidatesBaseURL(t *testing.T) {
	for _, base := range []string{"", "  ", "ftp://x", "not a url", "http://"} {
		if _, err := New(Config{BaseURL: base}); err == nil {
			t.Errorf("expected error for base URL %q", base)
		}
	}
}

func TestListClientSales_Envelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/clients/C%2F1/sales" && r.URL.RawPath != "/clients/C%2F1/sales" {
			t.Errorf("unexpected path %q (raw %q)", r.URL.Path, r.URL.RawPath)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[
			{"id":"s1","client_id":"C/1","created_at":"2025-03-02T10:00:00Z","total":"12,50",
			 "items":[{"product_id":"p1","product_name":" Coffee ","quantity":2,"unit_price":6.25},
			          {"product_id":"p2","product_name":"Tea","quantity":"1.5","unit_price":"1"}]},
			{"id":"s2","created_at":"2025-02-01","total":3},
			{"id":"","created_at":"2025-02-01","total":3},
			{"id":"s4","created_at":"yesterday","total":3},
			{"id":"s5","created_at":"2025-02-01","total":"-1"},
			{"id":"s6","client_id":"other","created_at":"2025-02-01","total":1},
			{"id":"s7","created_at":"2025-02-01","total":1,"items":[{"product_id":"p","quantity":1,"unit_price":"abc"}]}
		]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 0)
	sales, err := c.ListClientSales(context.Background(), "C/1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sales) != 2 {
		t.Fatalf("expected 2 valid sales, got %d: %+v", len(sales), sales)
	}
	s1 := sales[0]
	if s1.ID != "s1" || s1.ClientID != "C/1" || s1.Total.Cents != 1250 {
		t.Errorf("unexpected first sale: %+v", s1)
	}
	if len(s1.Items) != 2 || s1.Items[0].ProductName != "Coffee" || s1.Items[0].UnitPrice.Cents != 625 {
		t.Errorf("unexpected items: %+v", s1.Items)
	}
	if s1.Items[1].Quantity != 0 {
		t.Errorf("fractional quantity should decode as 0, got %d", s1.Items[1].Quantity)
	}
	s2 := sales[1]
	if s2.ClientID != "C/1" || !s2.CreatedAt.Equal(time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected second sale: %+v", s2)
	}
}

func TestListClientSales_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, ` [{"id":"s1","created_at":"2025-03-02 08:00:00","total":1.005}]`)
	}))
	defer srv.Close()

	sales, err := newTestClient(t, srv, 0).ListClientSales(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sales) != 1 || sales[0].Total.Cents != 101 {
		t.Fatalf("unexpected sales: %+v", sales)
	}
}

func TestListClientSales_RetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"data":[]}`)
	}))
	defer srv.Close()

	sales, err := newTestClient(t, srv, 3).ListClientSales(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sales) != 0 || calls.Load() != 3 {
		t.Fatalf("expected empty result after 3 calls, got %d sales, %d calls", len(sales), calls.Load())
	}
}

func TestListClientSales_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 2).ListClientSales(context.Background(), "c1")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected HTTPError 502, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 1 call + 2 retries, got %d", calls.Load())
	}
}

func TestListClientSales_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, 3).ListClientSales(context.Background(), "c1")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusForbidden {
		t.Fatalf("expected HTTPError 403, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d calls", calls.Load())
	}
}

func TestListClientSales_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv, 0).ListClientSales(context.Background(), "c1")
	if !errors.Is(err, ports.ErrClientNotFound) {
		t.Fatalf("expected ErrClientNotFound, got %v", err)
	}
}

func TestListClientSales_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"data":`)
	}))
	defer srv.Close()

	if _, err := newTestClient(t, srv, 0).ListClientSales(context.Background(), "c1"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestListClientSales_EmptyClientID(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	if _, err := newTestClient(t, srv, 0).ListClientSales(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty client id")
	}
}
