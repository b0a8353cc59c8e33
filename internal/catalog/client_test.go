package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lamim/catalogseo/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.CatalogConfig{
		APIVersion:         "2024-01",
		PageSize:           2,
		RequestsPerSecond:  1000,
		HTTPTimeoutSeconds: 5,
		MaxRetries:         2,
		Scheme:             "http",
	}
	client := NewClient(cfg, strings.TrimPrefix(server.URL, "http://"), "shpat_test", testLogger())
	client.retryDelay = time.Millisecond
	return client, server
}

func TestListProductsFollowsLinkHeader(t *testing.T) {
	var serverURL string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			t.Errorf("Missing access token header")
		}
		if r.URL.Path != "/admin/api/2024-01/products.json" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "2" {
			t.Errorf("Expected limit=2, got %s", r.URL.Query().Get("limit"))
		}

		switch r.URL.Query().Get("page_info") {
		case "":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?limit=2&page_info=p2>; rel="next"`, serverURL))
			_, _ = w.Write([]byte(`{"products": [{"id": 1, "title": "A"}, {"id": 2, "title": "B"}]}`))
		case "p2":
			w.Header().Set("Link", fmt.Sprintf(`<%s/admin/api/2024-01/products.json?limit=2&page_info=p1>; rel="previous"`, serverURL))
			_, _ = w.Write([]byte(`{"products": [{"id": 3, "title": "C", "images": [{"id": 30, "src": "https://cdn/c.jpg", "variant_ids": [300]}]}]}`))
		default:
			t.Errorf("Unexpected page_info %q", r.URL.Query().Get("page_info"))
		}
	})
	client, server := newTestClient(t, handler)
	serverURL = server.URL

	products, err := client.ListProducts(context.Background())
	if err != nil {
		t.Fatalf("ListProducts failed: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("Expected 3 products, got %d", len(products))
	}
	for i, want := range []int64{1, 2, 3} {
		if products[i].ID != want {
			t.Errorf("Product %d: expected id %d, got %d", i, want, products[i].ID)
		}
	}
	if len(products[2].Images) != 1 || products[2].Images[0].VariantIDs[0] != 300 {
		t.Errorf("Images not decoded: %+v", products[2].Images)
	}
}

func TestNextPageURL(t *testing.T) {
	tests := []struct {
		link string
		want string
	}{
		{"", ""},
		{`<https://s/p.json?page_info=a>; rel="next"`, "https://s/p.json?page_info=a"},
		{`<https://s/p.json?page_info=a>; rel="previous", <https://s/p.json?page_info=b>; rel="next"`, "https://s/p.json?page_info=b"},
		{`<https://s/p.json?page_info=a>; rel="previous"`, ""},
	}
	for _, tt := range tests {
		if got := nextPageURL(tt.link); got != tt.want {
			t.Errorf("nextPageURL(%q) = %q, want %q", tt.link, got, tt.want)
		}
	}
}

func TestWriteOperations(t *testing.T) {
	type call struct {
		method string
		path   string
		body   map[string]any
	}
	var calls []call

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&body)
		}
		calls = append(calls, call{r.Method, r.URL.Path, body})

		switch {
		case r.Method == http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"image": {"id": 99, "src": "https://cdn/new.jpg"}}`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"product": {"id": 7, "images": [{"id": 1, "src": "s"}], "variants": [{"id": 5, "image_id": 1}, {"id": 6, "image_id": null}]}}`))
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	})
	client, _ := newTestClient(t, handler)
	ctx := context.Background()

	uploaded, err := client.UploadImage(ctx, 7, "https://cdn/old.jpg", "Red mug", "red-mug.jpg")
	if err != nil {
		t.Fatalf("UploadImage failed: %v", err)
	}
	if uploaded.ID != 99 || uploaded.Src != "https://cdn/new.jpg" {
		t.Errorf("Unexpected upload result %+v", uploaded)
	}

	detail, err := client.GetProductDetail(ctx, 7)
	if err != nil {
		t.Fatalf("GetProductDetail failed: %v", err)
	}
	if len(detail.Variants) != 2 || detail.Variants[0].ImageID == nil || *detail.Variants[0].ImageID != 1 || detail.Variants[1].ImageID != nil {
		t.Errorf("Unexpected variants %+v", detail.Variants)
	}

	if err := client.UpdateVariantImage(ctx, 7, 5, 99); err != nil {
		t.Fatalf("UpdateVariantImage failed: %v", err)
	}
	if err := client.DeleteImage(ctx, 7, 1); err != nil {
		t.Fatalf("DeleteImage failed: %v", err)
	}
	if err := client.UpdateProduct(ctx, 7, "New title", "<p>desc</p>"); err != nil {
		t.Fatalf("UpdateProduct failed: %v", err)
	}

	want := []struct{ method, path string }{
		{http.MethodPost, "/admin/api/2024-01/products/7/images.json"},
		{http.MethodGet, "/admin/api/2024-01/products/7.json"},
		{http.MethodPut, "/admin/api/2024-01/variants/5.json"},
		{http.MethodDelete, "/admin/api/2024-01/products/7/images/1.json"},
		{http.MethodPut, "/admin/api/2024-01/products/7.json"},
	}
	if len(calls) != len(want) {
		t.Fatalf("Expected %d calls, got %d", len(want), len(calls))
	}
	for i, w := range want {
		if calls[i].method != w.method || calls[i].path != w.path {
			t.Errorf("Call %d: expected %s %s, got %s %s", i, w.method, w.path, calls[i].method, calls[i].path)
		}
	}

	image := calls[0].body["image"].(map[string]any)
	if image["src"] != "https://cdn/old.jpg" || image["alt"] != "Red mug" || image["filename"] != "red-mug.jpg" {
		t.Errorf("Unexpected upload body %+v", image)
	}
	product := calls[4].body["product"].(map[string]any)
	if product["title"] != "New title" || product["body_html"] != "<p>desc</p>" {
		t.Errorf("Unexpected product body %+v", product)
	}
}

func TestRetriesThrottledRequests(t *testing.T) {
	var attempts int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0.01")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})
	client, _ := newTestClient(t, handler)

	if err := client.DeleteImage(context.Background(), 1, 2); err != nil {
		t.Fatalf("Expected success after retry, got %v", err)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantAttempts int32
		check        func(error) bool
	}{
		{"not found", http.StatusNotFound, 1, IsNotFound},
		{"unauthorized", http.StatusUnauthorized, 1, IsUnauthorized},
		{"forbidden", http.StatusForbidden, 1, IsUnauthorized},
		{"rate limited after retries", http.StatusTooManyRequests, 3, IsRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"errors": "nope"}`))
			})
			client, _ := newTestClient(t, handler)

			err := client.DeleteImage(context.Background(), 1, 2)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !tt.check(err) {
				t.Errorf("Classification failed for %v", err)
			}
			var cErr *Error
			if !errors.As(err, &cErr) || cErr.Op != "delete_image" {
				t.Errorf("Expected *Error for delete_image, got %v", err)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, got)
			}
		})
	}
}

func TestUploadRetriedOnlyWhenThrottled(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantAttempts int32
	}{
		{"server error", http.StatusBadGateway, 1},
		{"gateway timeout", http.StatusGatewayTimeout, 1},
		{"throttled", http.StatusTooManyRequests, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if atomic.AddInt32(&attempts, 1) == 1 {
					w.WriteHeader(tt.status)
					return
				}
				_, _ = w.Write([]byte(`{"image": {"id": 9, "src": "https://cdn/new.jpg"}}`))
			})
			client, _ := newTestClient(t, handler)

			_, err := client.UploadImage(context.Background(), 7, "https://cdn/old.jpg", "Red mug", "red-mug.jpg")
			if tt.wantAttempts == 1 && err == nil {
				t.Error("Expected the first failure to be returned")
			}
			if tt.wantAttempts > 1 && err != nil {
				t.Errorf("Expected success after retry, got %v", err)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("Expected %d attempts, got %d", tt.wantAttempts, got)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		method string
		status int
		want   bool
	}{
		{http.MethodGet, 0, true},
		{http.MethodGet, http.StatusServiceUnavailable, true},
		{http.MethodPut, http.StatusTooManyRequests, true},
		{http.MethodDelete, http.StatusNotFound, false},
		{http.MethodPost, 0, false},
		{http.MethodPost, http.StatusInternalServerError, false},
		{http.MethodPost, http.StatusTooManyRequests, true},
	}
	for _, tt := range tests {
		if got := retryable(tt.method, tt.status); got != tt.want {
			t.Errorf("retryable(%s, %d) = %v, want %v", tt.method, tt.status, got, tt.want)
		}
	}
}

func TestVariantErrorKeepsClassification(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	client, _ := newTestClient(t, handler)

	err := client.UpdateVariantImage(context.Background(), 1, 2, 3)
	if !IsNotFound(err) {
		t.Errorf("Wrapped variant error should still classify as not found: %v", err)
	}
}

func TestDownloader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png; charset=binary")
			_, _ = w.Write([]byte("\x89PNG fake"))
		case "/big.jpg":
			_, _ = w.Write([]byte(strings.Repeat("x", 64)))
		case "/empty.jpg":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	d := NewDownloader(time.Second, 32, testLogger())
	ctx := context.Background()

	data, mediaType, err := d.Download(ctx, server.URL+"/ok.png")
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if string(data) != "\x89PNG fake" || mediaType != "image/png" {
		t.Errorf("Unexpected result %q %q", data, mediaType)
	}

	for _, path := range []string{"/missing.jpg", "/big.jpg", "/empty.jpg"} {
		if _, _, err := d.Download(ctx, server.URL+path); !errors.Is(err, ErrDownload) {
			t.Errorf("Download(%s) expected ErrDownload, got %v", path, err)
		}
	}
	if _, _, err := d.Download(ctx, "://bad"); !errors.Is(err, ErrDownload) {
		t.Errorf("Invalid URL should wrap ErrDownload, got %v", err)
	}
}
