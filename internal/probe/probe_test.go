package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const traceBody = "fl=123\nh=speed.example\nip=203.0.113.7\nts=1700000000.1\nvisit_scheme=https\ncolo=FRA\nloc=DE\ntls=TLSv1.3\n"

func newTestServer(t *testing.T, handler http.Handler) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	pool := x509.NewCertPool()
	pool.AddCert(srv.Certificate())
	client, err := NewClient(Options{
		BaseURL:        srv.URL,
		ConnectTimeout: 2 * time.Second,
		UserAgent:      "cfspeed-test",
		TLSConfig:      &tls.Config{RootCAs: pool},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return srv, client
}

func TestParseTrace(t *testing.T) {
	tr, err := ParseTrace(strings.NewReader(traceBody))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.IP != "203.0.113.7" || tr.Country != "DE" || tr.Colo != "FRA" {
		t.Fatalf("unexpected trace: %+v", tr)
	}
	if tr.Fields["tls"] != "TLSv1.3" {
		t.Fatalf("fields = %v", tr.Fields)
	}
}

func TestParseTraceMissingLoc(t *testing.T) {
	_, err := ParseTrace(strings.NewReader("ip=1.2.3.4\n"))
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("err = %v, want ErrMissingField", err)
	}
}

func TestNewClientRejectsPlainHTTP(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "http://speed.example"}); err == nil {
		t.Fatal("expected error for http base url")
	}
}

func TestTraceSendsHeaders(t *testing.T) {
	var gotUA, gotOrigin atomic.Value
	srv, client := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != tracePath {
			http.NotFound(w, r)
			return
		}
		gotUA.Store(r.UserAgent())
		gotOrigin.Store(r.Header.Get("Origin"))
		fmt.Fprint(w, traceBody)
	}))

	tr, err := client.Trace(context.Background())
	if err != nil {
		t.Fatalf("trace: %v", err)
	}
	if tr.Country != "DE" {
		t.Fatalf("country = %q, want DE", tr.Country)
	}
	if gotUA.Load() != "cfspeed-test" {
		t.Fatalf("user agent = %v", gotUA.Load())
	}
	if gotOrigin.Load() != srv.URL {
		t.Fatalf("origin = %v, want %s", gotOrigin.Load(), srv.URL)
	}
}

func TestServerInfoCollectsEdgeHeaders(t *testing.T) {
	_, client := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != downPath || r.URL.Query().Get("bytes") != "0" || r.URL.Query().Get("measId") != "42" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("CF-Meta-Colo", "AMS")
		w.Header().Set("Cf-Meta-City", "Amsterdam")
		w.Header().Set("Server", "cloudflare")
	}))

	srv, err := client.ServerInfo(context.Background(), "42")
	if err != nil {
		t.Fatalf("server info: %v", err)
	}
	if srv.Colo != "AMS" {
		t.Fatalf("colo = %q, want AMS", srv.Colo)
	}
	if srv.Headers["cf-meta-city"] != "Amsterdam" {
		t.Fatalf("headers = %v", srv.Headers)
	}
	if _, ok := srv.Headers["server"]; ok {
		t.Fatal("non cf- header collected")
	}
	if srv.IP() != "127.0.0.1" {
		t.Fatalf("edge ip = %q, want 127.0.0.1", srv.IP())
	}
}

func TestServerInfoUnknownColo(t *testing.T) {
	_, client := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv, err := client.ServerInfo(context.Background(), "1")
	if err != nil {
		t.Fatalf("server info: %v", err)
	}
	if srv.Colo != unknownColo {
		t.Fatalf("colo = %q, want %q", srv.Colo, unknownColo)
	}
}

func TestLatencyTakesMinimum(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			time.Sleep(50 * time.Millisecond)
		}
		fmt.Fprint(w, traceBody)
	}))

	best, err := client.Latency(context.Background())
	if err != nil {
		t.Fatalf("latency: %v", err)
	}
	if calls.Load() != latencyRequests {
		t.Fatalf("requests = %d, want %d", calls.Load(), latencyRequests)
	}
	if best <= 0 || best >= 50*time.Millisecond {
		t.Fatalf("best = %v, want below the slow first request", best)
	}
}

func TestLatencyStopsEarlyOnSlowLinks(t *testing.T) {
	var calls atomic.Int64
	_, client := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(600 * time.Millisecond)
	}))

	if _, err := client.Latency(context.Background()); err != nil {
		t.Fatalf("latency: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("requests = %d, want 2", calls.Load())
	}
}

func TestLatencyReportsStatus(t *testing.T) {
	_, client := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	_, err := client.Latency(context.Background())
	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want StatusError 503", err)
	}
}
