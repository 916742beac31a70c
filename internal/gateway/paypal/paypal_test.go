package paypal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// fakePayPal serves the OAuth and orders endpoints, counting token
// requests so caching can be asserted.
type fakePayPal struct {
	tokenRequests int
	captureCalls  int
}

func (f *fakePayPal) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.tokenRequests++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "5O190127TN364715T",
			"status": StatusCreated,
			"links": []map[string]string{
				{"rel": "self", "href": "https://api-m.paypal.com/v2/checkout/orders/5O190127TN364715T"},
				{"rel": "approve", "href": "https://www.paypal.com/checkoutnow?token=5O190127TN364715T"},
			},
		})
	})
	mux.HandleFunc("POST /v2/checkout/orders/{id}/capture", func(w http.ResponseWriter, r *http.Request) {
		f.captureCalls++
		if f.captureCalls > 1 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"details": []map[string]string{{"issue": "ORDER_ALREADY_CAPTURED"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(orderBody(r.PathValue("id"), StatusCompleted))
	})
	mux.HandleFunc("GET /v2/checkout/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(orderBody(r.PathValue("id"), StatusCompleted))
	})
	return mux
}

func orderBody(id, status string) map[string]any {
	return map[string]any{
		"id":     id,
		"status": status,
		"purchase_units": []map[string]any{{
			"custom_id": "gs-1700000000000-dGVzdA==",
			"amount":    map[string]string{"currency_code": "USD", "value": "4.99"},
			"payments": map[string]any{
				"captures": []map[string]any{{
					"status": "COMPLETED",
					"amount": map[string]string{"currency_code": "USD", "value": "4.99"},
				}},
			},
		}},
	}
}

func testClient(t *testing.T) (*Client, *fakePayPal) {
	t.Helper()
	fake := &fakePayPal{}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	client, err := New(Config{
		ClientID: "client-id",
		Secret:   "client-secret",
		BaseURL:  server.URL,
	}, 5*time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return client, fake
}

func TestNew_ConfigInvalid(t *testing.T) {
	if _, err := New(Config{ClientID: "only-id"}, time.Second); err == nil {
		t.Fatal("New() with missing secret should fail")
	}
}

func TestCreateOrder(t *testing.T) {
	client, _ := testClient(t)

	result, err := client.CreateOrder(context.Background(), "gs-1700000000000-dGVzdA==", "4.99", "USD", "Maps Scraper Standard")
	if err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if result.OrderID != "5O190127TN364715T" {
		t.Errorf("OrderID = %s", result.OrderID)
	}
	if result.ApproveURL == "" {
		t.Error("ApproveURL should come from the approve link")
	}
}

func TestCaptureOrder(t *testing.T) {
	client, _ := testClient(t)

	result, err := client.CaptureOrder(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("CaptureOrder() error = %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED", result.Status)
	}
	if result.CustomID != "gs-1700000000000-dGVzdA==" {
		t.Errorf("CustomID = %s, want the internal order id", result.CustomID)
	}
	if result.Amount != "4.99" || result.Currency != "USD" {
		t.Errorf("Amount = %s %s, want 4.99 USD", result.Amount, result.Currency)
	}
}

func TestCaptureOrder_AlreadyCaptured(t *testing.T) {
	client, _ := testClient(t)

	if _, err := client.CaptureOrder(context.Background(), "5O190127TN364715T"); err != nil {
		t.Fatalf("first CaptureOrder() error = %v", err)
	}

	// The retry hits ORDER_ALREADY_CAPTURED and must still come back
	// COMPLETED instead of erroring.
	result, err := client.CaptureOrder(context.Background(), "5O190127TN364715T")
	if err != nil {
		t.Fatalf("second CaptureOrder() error = %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %s, want COMPLETED on already-captured order", result.Status)
	}
}

func TestTokenCaching(t *testing.T) {
	client, fake := testClient(t)
	ctx := context.Background()

	if _, err := client.CreateOrder(ctx, "o1", "1.00", "USD", "x"); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	if _, err := client.GetOrder(ctx, "5O190127TN364715T"); err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}

	if fake.tokenRequests != 1 {
		t.Errorf("token requests = %d, want 1 (token must be cached)", fake.tokenRequests)
	}
}

func TestAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client, err := New(Config{ClientID: "bad", Secret: "bad", BaseURL: server.URL}, time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := client.CreateOrder(context.Background(), "o1", "1.00", "USD", "x"); err == nil {
		t.Fatal("CreateOrder() should fail when auth fails")
	}
}
