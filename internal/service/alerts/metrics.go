package alerts

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	svcErr "github.com/oggyb/attention/internal/errors"
)

var (
	alertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attention_alerts_total",
		Help: "Alert sends by result",
	}, []string{"result"})

	readsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attention_reads_total",
		Help: "Read acknowledgements by result",
	}, []string{"result"})
)

// outcome labels a finished operation: "ok", or the lowercased error code.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(svcErr.CodeOf(err)))
}
