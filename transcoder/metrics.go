package transcoder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	spawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hcgopro_transcoder_spawn_total",
		Help: "Total number of transcoder process starts",
	}, []string{"kind", "result"})

	exitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hcgopro_transcoder_exit_total",
		Help: "Total number of transcoder process exits",
	}, []string{"reason"})
)
