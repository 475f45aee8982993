package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

var authRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_requests_total",
	Help: "Auth workflow outcomes by operation.",
}, []string{"operation", "result"})
