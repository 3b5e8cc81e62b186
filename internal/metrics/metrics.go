package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_ws_connections",
		Help: "Current number of active websocket connections",
	})
	RelayedMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_relayed_messages_total",
		Help: "Total number of messages relayed through the realtime hub",
	})
	DroppedSubscribersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_subscribers_total",
		Help: "Total number of websocket sessions dropped because their send buffer was full",
	})
	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_persisted_total",
		Help: "Total number of messages appended to the ledger",
	})
	ChatsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_chats_created_total",
		Help: "Total number of two-party chats created",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections,
		RelayedMessagesTotal,
		DroppedSubscribersTotal,
		MessagesPersisted,
		ChatsCreated,
		HttpRequestsTotal,
		HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
