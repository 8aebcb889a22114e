package routes

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cppla/campusnews/config"
	"github.com/cppla/campusnews/content"
	"github.com/cppla/campusnews/models"
	"github.com/cppla/campusnews/repository"
	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/storage"
	"github.com/cppla/campusnews/utils"
)

func testRouter(t *testing.T) (http.Handler, config.AppConfig) {
	t.Helper()
	cfg := config.AppConfig{
		GinMode:                 "test",
		GinPath:                 filepath.Join(t.TempDir(), "gin.log"),
		LogLevel:                "info",
		JWTSecret:               "router-secret",
		RateLimitPerMinute:      600,
		AllowedOrigins:          []string{"*"},
		UploadMaxBytes:          1 << 20,
		UploadMaxFiles:          5,
		UploadRateLimit:         2,
		UploadRateWindowMinutes: 15,
		ListCacheTTLSeconds:     60,
	}
	logger := zaptest.NewLogger(t)
	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	store := storage.NewStore(backend, "/uploads/", logger)
	svc := services.NewAnnouncementService(repository.NewMemoryRepository(), content.NewGenerator(logger), store, logger)
	return SetupRouter(Deps{Config: cfg, Service: svc, Store: store, UploadRoot: backend.Root()}), cfg
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndNoRoute(t *testing.T) {
	h, _ := testRouter(t)

	w := serve(h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"status":"ok"}}`, w.Body.String())

	w = serve(h, httptest.NewRequest(http.MethodGet, "/api/nothing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, services.CodeNotFound, body.Code)
}

func TestMutationsRequireTeacher(t *testing.T) {
	h, cfg := testRouter(t)
	tok, err := utils.GenerateToken(cfg.JWTSecret, uuid.NewString(), "student", time.Hour)
	require.NoError(t, err)

	w := serve(h, httptest.NewRequest(http.MethodDelete, "/api/announcements/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodDelete, "/api/announcements/"+uuid.NewString(), nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w = serve(h, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUploadFlowServesFilesAndLimitsRate(t *testing.T) {
	h, cfg := testRouter(t)
	tok, err := utils.GenerateToken(cfg.JWTSecret, uuid.NewString(), services.RoleTeacher, time.Hour)
	require.NoError(t, err)

	body, _ := json.Marshal(map[string]any{"title": "Lab safety", "description": "Goggles are mandatory in the lab."})
	req := httptest.NewRequest(http.MethodPost, "/api/announcements", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+tok)
	w := serve(h, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data models.Announcement `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Goggles are mandatory in the lab.", created.Data.Summary)

	upload := func(name string) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = fw.Write([]byte("wear goggles at all times"))
		require.NoError(t, mw.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/announcements/"+created.Data.ID+"/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+tok)
		return serve(h, req)
	}

	w = upload("rules.txt")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var uploaded struct {
		Data services.UploadResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &uploaded))
	require.Len(t, uploaded.Data.Attachments, 1)

	w = serve(h, httptest.NewRequest(http.MethodGet, uploaded.Data.Attachments[0].FileURL, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "wear goggles at all times", w.Body.String())

	assert.Equal(t, http.StatusOK, upload("more.txt").Code)
	w = upload("third.txt")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	var limited utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &limited))
	assert.Equal(t, services.CodeRateLimitExceeded, limited.Code)
}
