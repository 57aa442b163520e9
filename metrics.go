// RTLWMBUS - An rtl-sdr receiver for Wireless M-Bus meters in the 868MHz SRD band.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"net/http"

	"github.com/bemasher/rtlwmbus/protocol"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Metrics counts receiver activity.
type Metrics struct {
	blocks    prometheus.Counter
	samples   prometheus.Counter
	telegrams *prometheus.CounterVec // mode, algorithm, crc
	stalls    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		blocks: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rtlwmbus_blocks_total",
				Help: "Sample blocks decoded",
			},
		),
		samples: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rtlwmbus_samples_total",
				Help: "Complex samples decoded at the input rate",
			},
		),
		telegrams: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rtlwmbus_telegrams_total",
				Help: "Telegrams emitted by mode, synchronizer and crc result",
			},
			[]string{"mode", "algorithm", "crc"},
		),
		stalls: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "rtlwmbus_watchdog_expirations_total",
				Help: "Input stalls detected by the watchdog",
			},
		),
	}
}

func (m *Metrics) Block(block []byte) {
	m.blocks.Inc()
	m.samples.Add(float64(len(block) >> 1))
}

func (m *Metrics) Telegram(msg protocol.Message, algorithm string) {
	crc := "0"
	if msg.ChecksumOK() {
		crc = "1"
	}
	m.telegrams.WithLabelValues(msg.MsgType(), algorithm, crc).Inc()
}

func (m *Metrics) Stall() {
	m.stalls.Inc()
}

// ServeMetrics exposes gathered metrics on addr at /metrics.
func ServeMetrics(addr string, g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	go func() {
		log.WithField("Addr", addr).Info("serving metrics")
		if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server")
		}
	}()
}
