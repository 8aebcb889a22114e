package middleware

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cppla/campusnews/services"
	"github.com/cppla/campusnews/storage"
	"github.com/cppla/campusnews/utils"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) utils.ErrorResponse {
	t.Helper()
	var body utils.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func bearer(t *testing.T, id, role string, ttl time.Duration) string {
	t.Helper()
	tok, err := utils.GenerateToken(secret, id, role, ttl)
	require.NoError(t, err)
	return "Bearer " + tok
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthRequired(secret), func(c *gin.Context) {
		caller, _ := CallerFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": caller.ID, "role": caller.Role})
	})
	r.POST("/teach", AuthRequired(secret), Authorize(services.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestAuthRequired(t *testing.T) {
	r := authRouter()
	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing", "", http.StatusUnauthorized, services.CodeNoToken},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, services.CodeNoToken},
		{"garbage", "Bearer not.a.jwt", http.StatusUnauthorized, services.CodeInvalidToken},
		{"expired", bearer(t, "u-1", "teacher", -time.Minute), http.StatusUnauthorized, services.CodeTokenExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, "u-1", "student", time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u-1","role":"student"}`, w.Body.String())
}

func TestAuthorize(t *testing.T) {
	r := authRouter()

	req := httptest.NewRequest(http.MethodPost, "/teach", nil)
	req.Header.Set("Authorization", bearer(t, "s-1", "student", time.Hour))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, services.CodeForbidden, decodeError(t, w).Code)

	req = httptest.NewRequest(http.MethodPost, "/teach", nil)
	req.Header.Set("Authorization", bearer(t, "t-1", "teacher", time.Hour))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(RateLimitMiddleware(4))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		statuses = append(statuses, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestUploadLimiterInMemory(t *testing.T) {
	limiter := NewUploadLimiter(nil, 5, 15*time.Minute, zaptest.NewLogger(t))
	r := gin.New()
	r.POST("/up", AuthRequired(secret), limiter.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(id string) int {
		req := httptest.NewRequest(http.MethodPost, "/up", nil)
		req.Header.Set("Authorization", bearer(t, id, "teacher", time.Hour))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusOK, send("t-1"), "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, send("t-1"))
	assert.Equal(t, http.StatusOK, send("t-2"), "callers are limited independently")
}

type part struct {
	field, name string
	body        []byte
}

func multipartRequest(t *testing.T, parts ...part) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("title", "Exam"))
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write(p.body)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func uploadRouter(t *testing.T, policy UploadPolicy) (*gin.Engine, *storage.LocalBackend, *[]storage.UploadedFile) {
	t.Helper()
	backend, err := storage.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	store := storage.NewStore(backend, "/uploads/", zaptest.NewLogger(t))
	var got []storage.UploadedFile
	r := gin.New()
	r.POST("/files", Uploads(store, policy), func(c *gin.Context) {
		got = UploadsFrom(c)
		c.JSON(http.StatusOK, gin.H{"title": c.PostForm("title")})
	})
	return r, backend, &got
}

var pdf = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n")

func TestUploadsStoresFiles(t *testing.T) {
	r, backend, got := uploadRouter(t, UploadPolicy{MaxBytes: 1 << 20, MaxFiles: 5})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t,
		part{"files", "notes.pdf", pdf},
		part{"files[]", "readme.txt", []byte("plain text attachment")},
	))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"title":"Exam"}`, w.Body.String())

	require.Len(t, *got, 2)
	first := (*got)[0]
	assert.Equal(t, "notes.pdf", first.OriginalName)
	assert.Equal(t, "application/pdf", first.MimeType)
	assert.Equal(t, int64(len(pdf)), first.Size)
	assert.True(t, storage.SafeName(first.StoredName))
	assert.True(t, strings.HasSuffix(first.StoredName, ".pdf"))
	assert.Equal(t, "text/plain", (*got)[1].MimeType)

	for _, f := range *got {
		ok, err := backend.Exists(t.Context(), f.StoredName)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestUploadsRejections(t *testing.T) {
	cases := []struct {
		name   string
		policy UploadPolicy
		parts  []part
		code   string
	}{
		{"too many", UploadPolicy{MaxBytes: 1 << 20, MaxFiles: 1}, []part{{"files", "a.pdf", pdf}, {"files", "b.pdf", pdf}}, services.CodeTooManyFiles},
		{"html", UploadPolicy{MaxBytes: 1 << 20, MaxFiles: 2}, []part{{"files", "a.pdf", pdf}, {"files", "x.html", []byte("<html><body><script>alert(1)</script></body></html>")}}, services.CodeUnsupportedFileType},
		{"too large", UploadPolicy{MaxBytes: 8, MaxFiles: 2}, []part{{"files", "a.pdf", pdf}}, services.CodeFileTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, backend, got := uploadRouter(t, tc.policy)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, multipartRequest(t, tc.parts...))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.code, decodeError(t, w).Code)
			assert.Nil(t, *got)

			entries, err := os.ReadDir(backend.Root())
			require.NoError(t, err)
			assert.Empty(t, entries, "partial uploads are discarded")
		})
	}
}

func TestUploadsIgnoresNonMultipart(t *testing.T) {
	r, _, got := uploadRouter(t, UploadPolicy{MaxBytes: 1 << 20, MaxFiles: 5})
	req := httptest.NewRequest(http.MethodPost, "/files", strings.NewReader("title=Exam"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, *got)
}
