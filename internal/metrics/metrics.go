package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_sent_total",
		Help: "Messages appended to a chat log.",
	})
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_notifications_sent_total",
		Help: "Out-of-room notifications delivered to online participants.",
	})
	MessagesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_messages_read_total",
		Help: "Successful mark-read operations.",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_active_connections",
		Help: "Currently open websocket connections.",
	})
)

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
