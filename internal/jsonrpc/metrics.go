package jsonrpc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonrpc",
		Name:      "messages_received_total",
		Help:      "Inbound JSON-RPC messages by kind.",
	}, []string{"kind"})

	messagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsonrpc",
		Name:      "messages_sent_total",
		Help:      "Outbound JSON-RPC messages by kind.",
	}, []string{"kind"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "jsonrpc",
		Name:      "request_duration_seconds",
		Help:      "Request latency by method and direction (inbound handler time or outbound round trip).",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"method", "direction"})

	pendingRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "jsonrpc",
		Name:      "pending_requests",
		Help:      "Outbound requests awaiting a response.",
	})

	writeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "jsonrpc",
		Name:      "write_errors_total",
		Help:      "Failed message writes.",
	})
)

const (
	kindRequest      = "request"
	kindNotification = "notification"
	kindResponse     = "response"
	kindInvalid      = "invalid"

	directionInbound  = "inbound"
	directionOutbound = "outbound"
)
