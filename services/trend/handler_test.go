package trend

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/httpapi"
	"wavesight-core/pkg/middleware"
	"wavesight-core/pkg/minio"
	"wavesight-core/services/tier"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, f *fixture, uploader *minio.Uploader) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(middleware.Error())
	v1 := httpapi.V1{RouterGroup: r.Group("/v1", middleware.Authenticate())}
	registerRoutes(v1, NewHandler(HandlerParams{Service: f.svc, Uploader: uploader}))
	return r
}

func call(r http.Handler, method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitRoute(t *testing.T) {
	f := newFixture(t, mustTier(t, tier.Learning))
	r := newRouter(t, f, nil)

	body := `{"category":"Meme Format","description":"cats explaining taxes","evidence":{"url":"https://tiktok.example/v/1"}}`

	w := call(r, http.MethodPost, "/v1/trends", "", body)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = call(r, http.MethodPost, "/v1/trends", "alice", body, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var first Trend
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Equal(t, "alice", first.SpotterID)
	require.Equal(t, CategoryMemeFormat, first.Category)

	w = call(r, http.MethodPost, "/v1/trends", "alice", body, HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var replay Trend
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &replay))
	require.Equal(t, first.ID, replay.ID)

	w = call(r, http.MethodGet, "/v1/trends/"+first.ID, "bob", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = call(r, http.MethodPost, "/v1/trends/"+first.ID+"/cancel", "bob", "")
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, http.MethodPost, "/v1/trends", "alice", `{"category":"astrology","description":"x"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(r, http.MethodGet, "/v1/categories", "alice", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"meme_format"`)
}

func TestEvidenceUploadRoute(t *testing.T) {
	f := newFixture(t, mustTier(t, tier.Learning))

	w := call(newRouter(t, f, nil), http.MethodPost, "/v1/trends/evidence-uploads", "alice", `{"filename":"shot.png"}`)
	require.Equal(t, http.StatusNotImplemented, w.Code)

	cfg := &config.Config{}
	cfg.Minio.Endpoint = "localhost:9000"
	cfg.Minio.AccessKey = "access"
	cfg.Minio.SecretKey = "secret"
	cfg.Minio.Region = "us-east-1"
	cfg.Minio.BucketName = "evidence"
	uploader, err := minio.NewUploader(cfg)
	require.NoError(t, err)
	r := newRouter(t, f, uploader)

	w = call(r, http.MethodPost, "/v1/trends/evidence-uploads", "alice", `{"filename":"clip.exe"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = call(r, http.MethodPost, "/v1/trends/evidence-uploads", "alice", `{"filename":"shot.png"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var up minio.Upload
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &up))
	require.True(t, strings.HasPrefix(up.ObjectKey, "evidence/alice/"))
	require.True(t, strings.HasSuffix(up.ObjectKey, ".png"))
	require.Contains(t, up.UploadURL, "X-Amz-Signature=")
}
