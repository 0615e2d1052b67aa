package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	storeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatmanager",
			Name:      "store_requests_total",
			Help:      "Count of backend store calls by operation and outcome.",
		},
		[]string{"op", "status"},
	)

	seatMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatmanager",
			Name:      "seat_mutations_total",
			Help:      "Count of committed seat changes by action.",
		},
		[]string{"action"},
	)

	loginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatmanager",
			Name:      "login_attempts_total",
			Help:      "Count of login attempts by result.",
		},
		[]string{"result"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatmanager",
			Name:      "cache_lookups_total",
			Help:      "Count of table collection cache lookups by result.",
		},
		[]string{"result"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "seatmanager",
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code class.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(storeRequests, seatMutations, loginAttempts, cacheLookups, httpRequests)
	})
}

func IncStoreRequest(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeRequests.WithLabelValues(strings.ReplaceAll(op, " ", "_"), status).Inc()
}

func IncSeatMutation(action string) {
	seatMutations.WithLabelValues(action).Inc()
}

func IncLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

func IncCache(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

func IncHTTP(route, code string) {
	httpRequests.WithLabelValues(route, code).Inc()
}
