package guesty

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	tokenExchanges *prometheus.CounterVec
	pageFetches    prometheus.Counter
)

func registerMetrics() {
	registerOnce.Do(func() {
		tokenExchanges = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guesty_token_exchanges_total",
				Help: "Token endpoint exchange outcomes",
			},
			[]string{"result"},
		)
		pageFetches = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "guesty_page_fetches_total",
				Help: "Transaction pages fetched from the data endpoint",
			},
		)
		prometheus.MustRegister(tokenExchanges, pageFetches)
	})
}
