package app

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"bountyjackpot/chain/internal/state"
)

var (
	txAcceptedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bountyjackpot",
		Name:      "tx_accepted_total",
		Help:      "Accepted transactions by type.",
	}, []string{"type"})

	poolValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bountyjackpot",
		Name:      "pool_value",
		Help:      "Current escrowed value per bounty pool.",
	}, []string{"bounty_id"})

	poolEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "bountyjackpot",
		Name:      "pool_entries",
		Help:      "Entry count since the last reset per bounty pool.",
	}, []string{"bounty_id"})
)

// observeTx records an accepted tx and refreshes the pool gauges from the
// committed state.
func observeTx(typ string, st *state.State) {
	txAcceptedTotal.WithLabelValues(typ).Inc()
	for id, p := range st.Pools {
		label := strconv.FormatUint(uint64(id), 10)
		poolValue.WithLabelValues(label).Set(float64(p.CurrentPool))
		poolEntries.WithLabelValues(label).Set(float64(p.TotalEntries))
	}
}
