package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/time/rate"

	"github.com/lamim/catalogseo/internal/config"
	"github.com/lamim/catalogseo/internal/metrics"
	"github.com/lamim/catalogseo/pkg/models"
)

// maxErrorBody bounds how much of an error reply is kept in messages
const maxErrorBody = 512

var nextLinkRegex = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// Client talks to one shop's REST Admin API
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	metrics     *metrics.Collector
	logger      *slog.Logger
	baseURL     string
	accessToken string
	pageSize    int
	maxRetries  int
	retryDelay  time.Duration
}

// NewClient creates a client for shopName (a bare host such as demo.myshopify.com)
func NewClient(cfg config.CatalogConfig, shopName, accessToken string, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "https"
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 2
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		limiter:     rate.NewLimiter(rate.Limit(rps), 2),
		logger:      logger.With("component", "catalog_client", "shop", shopName),
		baseURL:     fmt.Sprintf("%s://%s/admin/api/%s", scheme, shopName, cfg.APIVersion),
		accessToken: accessToken,
		pageSize:    pageSize,
		maxRetries:  maxRetries,
		retryDelay:  500 * time.Millisecond,
	}
}

// SetMetrics attaches a metrics collector
func (c *Client) SetMetrics(m *metrics.Collector) {
	c.metrics = m
}

type productsPage struct {
	Products []models.Product `json:"products"`
}

// ListProducts walks every page of the product listing in catalog order
func (c *Client) ListProducts(ctx context.Context) ([]models.Product, error) {
	next := fmt.Sprintf("%s/products.json?limit=%d", c.baseURL, c.pageSize)
	var all []models.Product
	pages := 0

	for next != "" {
		var page productsPage
		header, err := c.do(ctx, "list_products", http.MethodGet, next, nil, &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Products...)
		pages++
		next = nextPageURL(header.Get("Link"))
	}

	c.logger.Info("Fetched products", "count", len(all), "pages", pages)
	return all, nil
}

// nextPageURL extracts the rel="next" target from a Link header
func nextPageURL(link string) string {
	if link == "" {
		return ""
	}
	m := nextLinkRegex.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}

// GetProductDetail returns the current images and variants of a product
func (c *Client) GetProductDetail(ctx context.Context, productID int64) (models.ProductDetail, error) {
	var resp struct {
		Product models.Product `json:"product"`
	}
	endpoint := fmt.Sprintf("%s/products/%d.json?fields=id,images,variants", c.baseURL, productID)
	if _, err := c.do(ctx, "get_product", http.MethodGet, endpoint, nil, &resp); err != nil {
		return models.ProductDetail{}, err
	}
	return models.ProductDetail{Images: resp.Product.Images, Variants: resp.Product.Variants}, nil
}

// UploadImage creates a product image fetched by the catalog from sourceURL
func (c *Client) UploadImage(ctx context.Context, productID int64, sourceURL, alt, filename string) (models.UploadedImage, error) {
	body := map[string]any{
		"image": map[string]any{
			"src":      sourceURL,
			"alt":      alt,
			"filename": filename,
		},
	}
	var resp struct {
		Image models.UploadedImage `json:"image"`
	}
	endpoint := fmt.Sprintf("%s/products/%d/images.json", c.baseURL, productID)
	if _, err := c.do(ctx, "upload_image", http.MethodPost, endpoint, body, &resp); err != nil {
		return models.UploadedImage{}, err
	}
	if resp.Image.ID == 0 {
		return models.UploadedImage{}, &Error{Op: "upload_image", StatusCode: http.StatusOK, Message: "response carried no image id"}
	}
	return resp.Image, nil
}

// UpdateVariantImage points a variant at imageID
func (c *Client) UpdateVariantImage(ctx context.Context, productID, variantID, imageID int64) error {
	body := map[string]any{
		"variant": map[string]any{
			"id":       variantID,
			"image_id": imageID,
		},
	}
	endpoint := fmt.Sprintf("%s/variants/%d.json", c.baseURL, variantID)
	_, err := c.do(ctx, "update_variant", http.MethodPut, endpoint, body, nil)
	if err != nil {
		return fmt.Errorf("product %d: %w", productID, err)
	}
	return nil
}

// DeleteImage removes a product image
func (c *Client) DeleteImage(ctx context.Context, productID, imageID int64) error {
	endpoint := fmt.Sprintf("%s/products/%d/images/%d.json", c.baseURL, productID, imageID)
	_, err := c.do(ctx, "delete_image", http.MethodDelete, endpoint, nil, nil)
	return err
}

// UpdateProduct replaces the title and HTML description of a product
func (c *Client) UpdateProduct(ctx context.Context, productID int64, title, descriptionHTML string) error {
	body := map[string]any{
		"product": map[string]any{
			"id":        productID,
			"title":     title,
			"body_html": descriptionHTML,
		},
	}
	endpoint := fmt.Sprintf("%s/products/%d.json", c.baseURL, productID)
	_, err := c.do(ctx, "update_product", http.MethodPut, endpoint, body, nil)
	return err
}

// do sends one request, retrying 429, 5xx and transport failures with
// exponential backoff, and decodes a 2xx body into out when out is non-nil.
// POST creates a resource, so it is retried only on 429.
func (c *Client) do(ctx context.Context, op, method, endpoint string, in, out any) (http.Header, error) {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
	}

	var header http.Header
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		h, err := c.once(ctx, op, method, endpoint, payload, out)
		if err == nil {
			header = h
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		var cErr *Error
		if !errors.As(err, &cErr) || !retryable(method, cErr.StatusCode) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("Retrying catalog request", "op", op, "error", err)
		return err
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if c.maxRetries > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = c.retryDelay
		exp.MaxElapsedTime = 0
		exp.Reset()
		policy = backoff.WithMaxRetries(exp, uint64(c.maxRetries))
	}
	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		return nil, err
	}
	return header, nil
}

func (c *Client) once(ctx context.Context, op, method, endpoint string, payload []byte, out any) (http.Header, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordCatalogCall(op, 0)
		return nil, &Error{Op: op, Message: err.Error()}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("Failed to close response body", "error", err)
		}
	}()
	c.metrics.RecordCatalogCall(op, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &Error{Op: op, StatusCode: resp.StatusCode, Message: string(msg)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
		}
	}
	return resp.Header, nil
}
