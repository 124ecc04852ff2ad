package observ

import "github.com/prometheus/client_golang/prometheus"

var (
	CalendarEventsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coachcare",
		Name:      "calendar_events_created_total",
		Help:      "Calendar events successfully booked.",
	})

	CalendarOverlapConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "coachcare",
		Name:      "calendar_overlap_conflicts_total",
		Help:      "Bookings or reschedules rejected because the coach was already booked.",
	})

	ChatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "coachcare",
		Name:      "chat_messages_sent_total",
		Help:      "Chat messages accepted, by message type.",
	}, []string{"type"})

	HubConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "coachcare",
		Name:      "chat_ws_connections",
		Help:      "Open chat websocket connections on this instance.",
	})
)

func init() {
	prometheus.MustRegister(CalendarEventsCreated, CalendarOverlapConflicts, ChatMessagesSent, HubConnections)
}
