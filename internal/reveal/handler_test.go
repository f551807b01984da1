package reveal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// revealEnvelope 对应揭晓接口响应的信封结构。
type revealEnvelope struct {
	Success          bool            `json:"success"`
	Data             json.RawMessage `json:"data"`
	Cached           bool            `json:"cached"`
	CacheHit         bool            `json:"cache_hit"`
	ProcessingTimeMs *int64          `json:"processing_time_ms"`
	AlreadyProcessed bool            `json:"already_processed"`
	ETag             string          `json:"etag"`
	RateLimit        *struct {
		Remaining int       `json:"remaining"`
		ResetTime time.Time `json:"reset_time"`
	} `json:"rate_limit"`
}

func newTestRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(svc)
	router.GET("/api/reveals/:id", handler.GetReveals)
	router.POST("/api/reveals/:id/process", handler.ProcessReveal)
	return router
}

func doRequest(router *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestGetRevealsResponseEnvelope(t *testing.T) {
	source := newFakeSource()
	source.data["sess-1"] = completedSession("sess-1")
	svc := newTestService(source)
	router := newTestRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/reveals/sess-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("ETag"))
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

	var body revealEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.False(t, body.Cached)
	assert.False(t, body.CacheHit)
	require.NotNil(t, body.ProcessingTimeMs, "响应应携带处理耗时")
	require.NotNil(t, body.RateLimit, "响应应携带限流元数据")
	assert.Equal(t, svc.cfg.RateLimitPerMinute-1, body.RateLimit.Remaining)
	assert.True(t, body.RateLimit.ResetTime.After(time.Now()))

	var payload Payload
	require.NoError(t, json.Unmarshal(body.Data, &payload))
	assert.Equal(t, "sess-1", payload.SessionID)

	// 第二次请求命中缓存
	w2 := doRequest(router, http.MethodGet, "/api/reveals/sess-1")
	require.Equal(t, http.StatusOK, w2.Code)
	assert.Equal(t, "HIT", w2.Header().Get("X-Cache"))

	var second revealEnvelope
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &second))
	assert.True(t, second.Cached)
	assert.True(t, second.CacheHit)
	assert.Equal(t, body.Data, second.Data, "缓存命中应返回相同的数据")
}

func TestGetRevealsRateLimitedResponse(t *testing.T) {
	source := newFakeSource()
	source.data["sess-1"] = completedSession("sess-1")
	svc := newTestService(source)
	svc.cfg.RateLimitPerMinute = 1
	router := newTestRouter(svc)

	require.Equal(t, http.StatusOK, doRequest(router, http.MethodGet, "/api/reveals/sess-1").Code)

	w := doRequest(router, http.MethodGet, "/api/reveals/sess-1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body revealEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.RateLimit, "429响应也应携带限流元数据")
	assert.Zero(t, body.RateLimit.Remaining)
	assert.True(t, body.RateLimit.ResetTime.After(time.Now()))
	assert.True(t, body.RateLimit.ResetTime.Before(time.Now().Add(time.Minute+time.Second)))
}

func TestGetRevealsConditionalRequest(t *testing.T) {
	source := newFakeSource()
	source.data["sess-1"] = completedSession("sess-1")
	router := newTestRouter(newTestService(source))

	first := doRequest(router, http.MethodGet, "/api/reveals/sess-1")
	etag := first.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/reveals/sess-1", nil)
	req.Header.Set("If-None-Match", etag)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotModified, w.Code)
}

func TestProcessRevealResponseEnvelope(t *testing.T) {
	source := newFakeSource()
	source.data["sess-1"] = completedSession("sess-1")
	router := newTestRouter(newTestService(source))

	w := doRequest(router, http.MethodPost, "/api/reveals/sess-1/process")
	require.Equal(t, http.StatusOK, w.Code)

	var first revealEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.True(t, first.Success)
	assert.False(t, first.AlreadyProcessed)
	assert.NotEmpty(t, first.ETag)
	assert.NotEmpty(t, first.Data)

	w2 := doRequest(router, http.MethodPost, "/api/reveals/sess-1/process")
	require.Equal(t, http.StatusOK, w2.Code)

	var second revealEnvelope
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &second))
	assert.True(t, second.AlreadyProcessed, "重复处理应被标记")
	assert.Equal(t, first.ETag, second.ETag, "重复处理应返回相同的快照")
	assert.Equal(t, first.Data, second.Data)
}
