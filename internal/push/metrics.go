package push

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// deliveriesTotal counts per-token delivery outcomes by action and result.
var deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "attention_push_deliveries_total",
	Help: "Per-token push deliveries by action and result",
}, []string{"action", "result"})

func resultFor(err error) string {
	if errors.Is(err, ErrInvalidToken) {
		return "invalid_token"
	}
	return "error"
}
