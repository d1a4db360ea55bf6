package gateway

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHandler_HandleOrders(t *testing.T) {
	t.Run("proxies POST /orders with body", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders" {
				t.Errorf("expected /orders, got %s", r.URL.Path)
			}
			body, _ := io.ReadAll(r.Body)
			if string(body) != `{"buyer_id":"123"}` {
				t.Errorf("unexpected body: %s", body)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"new-id"}`))
		}))
		defer ordersServer.Close()

		handler := NewHandler(
			NewServiceProxy(ordersServer.URL, ordersServer.Client()),
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"buyer_id":"123"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusCreated {
			t.Errorf("expected status 201, got %d", rec.Code)
		}
		if rec.Body.String() != `{"id":"new-id"}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})

	t.Run("proxies cancel route untouched", func(t *testing.T) {
		ordersServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/orders/abc/cancel" {
				t.Errorf("expected /orders/abc/cancel, got %s", r.URL.Path)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer ordersServer.Close()

		handler := NewHandler(
			NewServiceProxy(ordersServer.URL, ordersServer.Client()),
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodPost, "/orders/abc/cancel", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})

	t.Run("returns 502 when orders service unavailable", func(t *testing.T) {
		handler := NewHandler(
			NewServiceProxy("http://localhost:99999", &http.Client{}),
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/orders", nil)
		rec := httptest.NewRecorder()

		handler.HandleOrders(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Errorf("expected status 502, got %d", rec.Code)
		}

		var resp map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp["error"] != "service unavailable" {
			t.Errorf("expected 'service unavailable', got %s", resp["error"])
		}
	})
}

func TestHandler_HandleCatalog(t *testing.T) {
	t.Run("strips /catalog prefix and forwards to catalog service", func(t *testing.T) {
		catalogServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/products/p-1" {
				t.Errorf("expected /products/p-1, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"id":"p-1","stock":10}`))
		}))
		defer catalogServer.Close()

		handler := NewHandler(
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy(catalogServer.URL, catalogServer.Client()),
			NewServiceProxy("http://unused", http.DefaultClient),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/catalog/products/p-1", nil)
		rec := httptest.NewRecorder()

		handler.HandleCatalog(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
		if rec.Body.String() != `{"id":"p-1","stock":10}` {
			t.Errorf("unexpected body: %s", rec.Body.String())
		}
	})
}

func TestHandler_HandleRewards(t *testing.T) {
	t.Run("forwards rewards balance lookup", func(t *testing.T) {
		rewardsServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/rewards/u-1" {
				t.Errorf("expected /rewards/u-1, got %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"user_id":"u-1","balance":40}`))
		}))
		defer rewardsServer.Close()

		handler := NewHandler(
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy("http://unused", http.DefaultClient),
			NewServiceProxy(rewardsServer.URL, rewardsServer.Client()),
			discardLogger(),
		)

		req := httptest.NewRequest(http.MethodGet, "/rewards/u-1", nil)
		rec := httptest.NewRecorder()

		handler.HandleRewards(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}
