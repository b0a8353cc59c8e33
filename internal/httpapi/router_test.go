package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lamim/catalogseo/internal/jobs"
	"github.com/lamim/catalogseo/pkg/models"
)

type fakeJobs struct {
	startReq  jobs.StartRequest
	startErr  error
	stopped   []string
	stopErr   error
	status    models.JobStatus
	statusErr error
}

func (f *fakeJobs) Start(_ context.Context, req jobs.StartRequest) (string, error) {
	f.startReq = req
	if f.startErr != nil {
		return "", f.startErr
	}
	return "run-1", nil
}

func (f *fakeJobs) Stop(_ context.Context, tenantID string) error {
	f.stopped = append(f.stopped, tenantID)
	return f.stopErr
}

func (f *fakeJobs) Status(_ context.Context, tenantID string) (models.JobStatus, error) {
	if f.statusErr != nil {
		return models.JobStatus{}, f.statusErr
	}
	s := f.status
	s.TenantID = tenantID
	return s, nil
}

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, svc JobService, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var env ErrorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error
}

func TestStartForwardsRequest(t *testing.T) {
	svc := &fakeJobs{}
	body := `{"shopName":"demo.myshopify.com","catalogToken":"shpat","generatorKey":"gk",
		"startFresh":true,"startFromProductId":42,"seoTypes":["images","content"]}`

	rec := serve(t, svc, http.MethodPost, "/api/tenants/shop-a/start", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp["runId"])
	assert.Equal(t, "shop-a", resp["tenantId"])

	req := svc.startReq
	assert.Equal(t, "shop-a", req.TenantID)
	assert.Equal(t, "demo.myshopify.com", req.Credentials.ShopName)
	assert.Equal(t, "shpat", req.Credentials.CatalogToken)
	assert.Equal(t, "gk", req.Credentials.GeneratorKey)
	assert.True(t, req.StartFresh)
	require.NotNil(t, req.StartFromProductID)
	assert.Equal(t, int64(42), *req.StartFromProductID)
	assert.Equal(t, []string{"images", "content"}, req.SEOTypes)
}

func TestStartErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{"invalid argument", fmt.Errorf("%w: at least one seo type is required", jobs.ErrInvalidArgument), http.StatusBadRequest, "invalid_argument"},
		{"already running", jobs.ErrAlreadyRunning, http.StatusConflict, "already_running"},
		{"store failure", fmt.Errorf("failed to load checkpoint: disk full"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeJobs{startErr: tt.err}
			rec := serve(t, svc, http.MethodPost, "/api/tenants/shop-a/start", `{"seoTypes":["content"]}`)
			assert.Equal(t, tt.wantCode, rec.Code)
			apiErr := decodeError(t, rec)
			assert.Equal(t, tt.wantErr, apiErr.Code)
			assert.Equal(t, tt.err.Error(), apiErr.Message)
		})
	}
}

func TestStartRejectsMalformedBody(t *testing.T) {
	svc := &fakeJobs{}
	rec := serve(t, svc, http.MethodPost, "/api/tenants/shop-a/start", `{"seoTypes":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decodeError(t, rec).Code)
	assert.Empty(t, svc.startReq.TenantID, "service must not be called")
}

func TestStop(t *testing.T) {
	svc := &fakeJobs{}
	rec := serve(t, svc, http.MethodPost, "/api/tenants/shop-a/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"shop-a"}, svc.stopped)

	svc.stopErr = fmt.Errorf("%w: invalid tenant id", jobs.ErrInvalidArgument)
	rec = serve(t, svc, http.MethodPost, "/api/tenants/shop-a/stop", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	svc := &fakeJobs{status: models.JobStatus{
		Source:            models.StatusSourceLive,
		IsRunning:         true,
		TotalProducts:     4,
		CompletedProducts: 1,
		ProgressPercent:   25,
		APIErrorCount:     1,
		ProcessedImages:   []models.ImageState{},
	}}
	rec := serve(t, svc, http.MethodGet, "/api/tenants/shop-a/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "shop-a", got["tenantId"])
	assert.Equal(t, "live", got["source"])
	assert.Equal(t, true, got["isRunning"])
	assert.Equal(t, 25.0, got["progressPercent"])
	assert.Equal(t, 1.0, got["apiErrorCount"])
	assert.Equal(t, []any{}, got["processedImages"])
	assert.Nil(t, got["currentProduct"])
}

func TestStatusInternalError(t *testing.T) {
	svc := &fakeJobs{statusErr: fmt.Errorf("failed to load checkpoint: broken")}
	rec := serve(t, svc, http.MethodGet, "/api/tenants/shop-a/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	rec := serve(t, &fakeJobs{}, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	rec = serve(t, &fakeJobs{}, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "catalogseo_active_jobs")
}
