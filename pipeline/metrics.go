/*
Copyright © 2026 Benny Powers <web@bennypowers.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the Prometheus collectors shared by builders.
type Metrics struct {
	builds   *prometheus.CounterVec
	duration prometheus.Histogram
	inFlight prometheus.Gauge
}

// NewMetrics creates and registers the build collectors on reg. A nil
// reg keeps them on a private registry. Builders of one process should
// share a single Metrics, since collectors register only once.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)
	return &Metrics{
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vulcanize_builds_total",
			Help: "Total number of node builds by outcome.",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vulcanize_build_duration_seconds",
			Help:    "Duration of node builds in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vulcanize_builds_in_flight",
			Help: "Number of node builds currently running.",
		}),
	}
}

func (m *Metrics) observe(outcome string, d time.Duration) {
	m.builds.WithLabelValues(outcome).Inc()
	m.duration.Observe(d.Seconds())
}
