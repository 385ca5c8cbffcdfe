package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordi"

// Inscription kinds of InscriptionsTotal.
const (
	KindBlessed = "blessed"
	KindCursed  = "cursed"
	KindUnbound = "unbound"
)

var (
	IndexerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexer_state",
			Help:      "Current state of the indexer, 1 for the active state",
		},
		[]string{"state"},
	)

	IndexerHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "indexer_height",
		Help:      "Height of the last committed block",
	})

	BlockProcessDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "block_process_duration_seconds",
		Help:      "Duration of applying and committing one block",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	InscriptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inscriptions_total",
			Help:      "Number of inscriptions indexed",
		},
		[]string{"kind"},
	)

	TransfersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transfers_total",
		Help:      "Number of inscription transfers indexed",
	})

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 5},
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		IndexerState,
		IndexerHeight,
		BlockProcessDuration,
		InscriptionsTotal,
		TransfersTotal,
		HTTPDuration,
	)
}

// SetState marks state as the active one among states.
func SetState(state string, states []string) {
	for _, s := range states {
		IndexerState.WithLabelValues(s).Set(0)
	}
	IndexerState.WithLabelValues(state).Set(1)
}

func ObserveBlock(started time.Time) {
	BlockProcessDuration.Observe(time.Since(started).Seconds())
}

// HTTP records the duration of every request.
func HTTP(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()
	HTTPDuration.WithLabelValues(
		c.Method(),
		c.Route().Path,
		strconv.Itoa(c.Response().StatusCode()),
	).Observe(time.Since(started).Seconds())
	return err
}

// Handler serves the default registry.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
