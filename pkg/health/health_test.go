package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"carematch/services/testutil"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h HealthService, path string) (*httptest.ResponseRecorder, Health) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w, body
}

func TestLiveness(t *testing.T) {
	w, body := serve(t, ProvideHealth(HealthParams{}), "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, statusHealthy, body.Status)
}

func TestReadinessWithDatabase(t *testing.T) {
	db := testutil.NewTestDB(t)
	w, body := serve(t, ProvideHealth(HealthParams{DB: db}), "/readyz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body.Deps, 1)
	require.Equal(t, "sqlite", body.Deps[0].Name)
}

func TestReadinessUnreachableRedis(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	w, body := serve(t, ProvideHealth(HealthParams{Redis: rdb}), "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Equal(t, statusUnhealthy, body.Status)
	require.Equal(t, "redis", body.Deps[0].Name)
}
