package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	x402 "github.com/mark3labs/x402-agent"
	"github.com/mark3labs/x402-agent/encoding"
	"github.com/mark3labs/x402-agent/ratelimit"
)

func testDocument() x402.PaymentRequiredDocument {
	return x402.PaymentRequiredDocument{
		X402Version: 2,
		Resource: &x402.ResourceInfo{
			URL:         "https://gateway.example.com/api/weather-data",
			Description: "Weather data",
		},
		Accepts: []x402.PaymentRequirement{{
			Scheme:            "exact",
			Network:           "eip155:84532",
			Amount:            "1000",
			Asset:             "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
			PayTo:             "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
			MaxTimeoutSeconds: 60,
			Extra:             map[string]interface{}{"name": "USDC"},
		}},
	}
}

func TestInvoke_Delivered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"temperature": 21.5}`))
	}))
	defer server.Close()

	c, err := New(server.URL)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	outcome, err := c.Invoke(context.Background(), "/api/weather-data", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	delivered, ok := outcome.(Delivered)
	if !ok {
		t.Fatalf("expected Delivered, got %T", outcome)
	}
	if delivered.StatusCode != http.StatusOK {
		t.Errorf("status = %d", delivered.StatusCode)
	}
	if delivered.State() != StateDelivered {
		t.Errorf("state = %s", delivered.State())
	}
	m, err := delivered.JSON()
	if err != nil {
		t.Fatalf("JSON failed: %v", err)
	}
	if m["temperature"] != 21.5 {
		t.Errorf("body = %v", m)
	}
	if delivered.Settlement != nil || delivered.RawSettlement != "" {
		t.Error("settlement should be absent on an unpaid delivery")
	}
}

func TestInvoke_DeliveredWithSettlement(t *testing.T) {
	receipt := x402.SettlementReceipt{
		Success:     true,
		Transaction: "0xabc",
		Network:     "eip155:84532",
		SettledAt:   1700000000000,
	}
	header, err := encoding.EncodeSettlement(receipt)
	if err != nil {
		t.Fatalf("encode settlement: %v", err)
	}

	for _, headerName := range []string{"X-PAYMENT-RESPONSE", "PAYMENT-RESPONSE", "x-payment-response"} {
		t.Run(headerName, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(headerName, header)
				w.Write([]byte(`{"ok":true}`))
			}))
			defer server.Close()

			c, _ := New(server.URL)
			outcome, err := c.Invoke(context.Background(), "/api/paid", nil)
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}

			delivered := outcome.(Delivered)
			if delivered.Settlement == nil {
				t.Fatal("settlement not parsed")
			}
			if *delivered.Settlement != receipt {
				t.Errorf("settlement = %+v, want %+v", *delivered.Settlement, receipt)
			}
			if delivered.RawSettlement != header {
				t.Error("raw settlement not preserved verbatim")
			}
		})
	}
}

func TestInvoke_UndecodableSettlementIsNotFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PAYMENT-RESPONSE", "!!not-base64!!")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c, _ := New(server.URL)
	outcome, err := c.Invoke(context.Background(), "/api/paid", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	delivered := outcome.(Delivered)
	if delivered.Settlement != nil {
		t.Error("garbage header should not parse")
	}
	if delivered.RawSettlement != "!!not-base64!!" {
		t.Error("raw header value should be preserved")
	}
}

func TestInvoke_NeedsPayment_Header(t *testing.T) {
	doc := testDocument()
	header, err := encoding.EncodeRequirements(doc)
	if err != nil {
		t.Fatalf("encode requirements: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PAYMENT-REQUIRED", header)
		w.WriteHeader(http.StatusPaymentRequired)
		// Body deliberately disagrees with the header; the header must win.
		w.Write([]byte(`{"x402Version":2,"accepts":[{"scheme":"exact","network":"eip155:1","amount":"9"}]}`))
	}))
	defer server.Close()

	c, _ := New(server.URL)
	outcome, err := c.Invoke(context.Background(), "/api/weather-data", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	np, ok := outcome.(NeedsPayment)
	if !ok {
		t.Fatalf("expected NeedsPayment, got %T", outcome)
	}
	if np.State() != StateNeedsPayment {
		t.Errorf("state = %s", np.State())
	}
	if len(np.Document.Accepts) != 1 || np.Document.Accepts[0].Amount != "1000" {
		t.Errorf("header document should win, got %+v", np.Document)
	}

	decoded, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		t.Fatal(err)
	}
	if string(np.Raw) != string(decoded) {
		t.Error("raw document should be the decoded header bytes")
	}
}

func TestInvoke_NeedsPayment_BodyFallback(t *testing.T) {
	doc := testDocument()
	body, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name      string
		badHeader string
	}{
		{"no header", ""},
		{"undecodable header", "%%%not-base64%%%"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.badHeader != "" {
					w.Header().Set("X-PAYMENT-REQUIRED", tt.badHeader)
				}
				w.WriteHeader(http.StatusPaymentRequired)
				w.Write(body)
			}))
			defer server.Close()

			c, _ := New(server.URL)
			outcome, err := c.Invoke(context.Background(), "/api/weather-data", nil)
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}

			np := outcome.(NeedsPayment)
			if np.Document.Accepts[0].Amount != "1000" {
				t.Errorf("document = %+v", np.Document)
			}
			if string(np.Raw) != string(body) {
				t.Error("raw document should be the verbatim body")
			}
		})
	}
}

func TestInvoke_Malformed402(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"html body", "<html>payment required</html>"},
		{"empty accepts", `{"x402Version":2,"accepts":[]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusPaymentRequired)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c, _ := New(server.URL)
			_, err := c.Invoke(context.Background(), "/api/whatever", nil)
			if err == nil {
				t.Fatal("expected failure")
			}
			if x402.KindOf(err) != x402.KindMalformed402 {
				t.Errorf("kind = %s, want %s", x402.KindOf(err), x402.KindMalformed402)
			}
			if !errors.Is(err, x402.ErrMalformed402) {
				t.Errorf("expected ErrMalformed402, got %v", err)
			}
		})
	}
}

func TestInvoke_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	c, _ := New(server.URL)
	_, err := c.Invoke(context.Background(), "/api/broken", nil)
	if err == nil {
		t.Fatal("expected failure")
	}

	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
	if pe.Kind != x402.KindStatus || pe.StatusCode != http.StatusInternalServerError {
		t.Errorf("got kind=%s status=%d", pe.Kind, pe.StatusCode)
	}
}

func TestInvoke_SendsPaymentSignature(t *testing.T) {
	auth := x402.SignedPaymentAuthorization{
		Scheme:    "exact",
		Network:   "eip155:84532",
		Signature: "0xsigned",
		From:      "0x1111111111111111111111111111111111111111",
		To:        "0x209693Bc6afc0C5328bA36FaF03C514EF312287C",
		Amount:    "1000",
	}

	var gotHeader atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-PAYMENT-SIGNATURE"))
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c, _ := New(server.URL)
	if _, err := c.Invoke(context.Background(), "/api/paid", &auth); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	header, _ := gotHeader.Load().(string)
	if header == "" {
		t.Fatal("X-PAYMENT-SIGNATURE not sent")
	}
	decoded, err := encoding.DecodeAuthorization(header)
	if err != nil {
		t.Fatalf("server received undecodable authorization: %v", err)
	}
	if decoded.Signature != "0xsigned" || decoded.Amount != "1000" {
		t.Errorf("authorization = %+v", decoded)
	}
}

func TestInvoke_RateLimited(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	limiter := ratelimit.New(ratelimit.Config{RatePerSecond: 1, Burst: 1, BlockOnLimit: false})
	c, _ := New(server.URL, WithLimiter(limiter))

	if _, err := c.Invoke(context.Background(), "/api/x", nil); err != nil {
		t.Fatalf("first call should pass: %v", err)
	}

	_, err := c.Invoke(context.Background(), "/api/x", nil)
	if err == nil {
		t.Fatal("second call should be throttled")
	}
	var pe *x402.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ProtocolError, got %T", err)
	}
	if pe.Kind != x402.KindRateLimited {
		t.Errorf("kind = %s", pe.Kind)
	}
	if pe.RetryAfter <= 0 {
		t.Error("RetryAfter should be populated")
	}
	if !errors.Is(err, x402.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("throttled call must not reach the network, saw %d requests", got)
	}
}

func TestInvoke_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c, _ := New(server.URL, WithTimeout(50*time.Millisecond))
	_, err := c.Invoke(context.Background(), "/api/slow", nil)
	if err == nil {
		t.Fatal("expected timeout")
	}
	if x402.KindOf(err) != x402.KindTimeout {
		t.Errorf("kind = %s, want %s", x402.KindOf(err), x402.KindTimeout)
	}
}

func TestInvoke_Cancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	c, _ := New(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Invoke(ctx, "/api/slow", nil)
	if err == nil {
		t.Fatal("expected cancellation")
	}
	if x402.KindOf(err) != x402.KindCancelled {
		t.Errorf("kind = %s, want %s", x402.KindOf(err), x402.KindCancelled)
	}
}

func TestInvoke_TransportError(t *testing.T) {
	c, _ := New("http://127.0.0.1:1")
	_, err := c.Invoke(context.Background(), "/api/x", nil)
	if err == nil {
		t.Fatal("expected transport failure")
	}
	if x402.KindOf(err) != x402.KindTransport {
		t.Errorf("kind = %s, want %s", x402.KindOf(err), x402.KindTransport)
	}
}

func TestNew_MissingGateway(t *testing.T) {
	_, err := New("")
	if !errors.Is(err, x402.ErrMissingGateway) {
		t.Errorf("expected ErrMissingGateway, got %v", err)
	}
}

func TestPaymentHeader(t *testing.T) {
	h := http.Header{}
	h.Set("X-Payment-Response", "via-canonical")
	if got := paymentHeader(h, "X-PAYMENT-RESPONSE", "PAYMENT-RESPONSE"); got != "via-canonical" {
		t.Errorf("got %q", got)
	}

	raw := http.Header{"payment-response": {"via-raw"}}
	if got := paymentHeader(raw, "X-PAYMENT-RESPONSE", "PAYMENT-RESPONSE"); got != "via-raw" {
		t.Errorf("got %q", got)
	}

	if got := paymentHeader(http.Header{}, "X-PAYMENT-RESPONSE"); got != "" {
		t.Errorf("empty header map should yield empty, got %q", got)
	}
}
