package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/CyberwizD/account-events/pkg/rabbitmq"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ rabbitmq.Observer = (*Collector)(nil)

func TestObservePublishAndDelivery(t *testing.T) {
	c := New("test")

	c.ObservePublish("token:created", nil)
	c.ObservePublish("token:created", errors.New("down"))
	c.ObserveDelivery("token:created", rabbitmq.OutcomeAck, 10*time.Millisecond)
	c.ObserveDelivery("token:created", rabbitmq.OutcomeAck, 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.published.WithLabelValues("token:created", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.published.WithLabelValues("token:created", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.deliveries.WithLabelValues("token:created", rabbitmq.OutcomeAck)))
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New("test")

	router := gin.New()
	router.Use(c.GinMiddleware())
	router.GET("/health", func(ctx *gin.Context) { ctx.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(c.Handler()))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.httpRequests.WithLabelValues(http.MethodGet, "/health", "200")))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/health",service="test",status="200"} 1`)
}
