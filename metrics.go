package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stesla/telwire/internal/event"
	"github.com/stesla/telwire/internal/telnet"
)

var (
	registerOnce sync.Once

	connections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "telwire",
			Name:      "connections",
			Help:      "Open Telnet connections.",
		},
		[]string{"role"},
	)
	dataBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telwire",
			Name:      "data_bytes_total",
			Help:      "Application data bytes received, after Telnet decoding.",
		},
		[]string{"role"},
	)
	optionChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telwire",
			Name:      "option_changes_total",
			Help:      "Option state changes by option, side and outcome.",
		},
		[]string{"role", "option", "side", "enabled", "refused"},
	)
	diagnostics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "telwire",
			Name:      "diagnostics_total",
			Help:      "Protocol problems that did not stop a session.",
		},
		[]string{"role", "option"},
	)
)

func registerMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(connections, dataBytes, optionChanges, diagnostics)
	})
}

// metricsListener counts the events of one connection.
type metricsListener struct {
	role string
}

func newMetricsListener(role string) metricsListener {
	registerMetrics()
	return metricsListener{role: role}
}

func (m metricsListener) Listen(_ context.Context, ev event.Event) error {
	switch t := ev.Data.(type) {
	case []byte:
		if ev.Name == telnet.EventData {
			dataBytes.WithLabelValues(m.role).Add(float64(len(t)))
		}
	case telnet.OptionData:
		optionChanges.WithLabelValues(m.role, telnet.OptionName(t.Opt), t.Side.String(),
			strconv.FormatBool(t.Enabled), strconv.FormatBool(t.Refused)).Inc()
	case telnet.Diagnostic:
		diagnostics.WithLabelValues(m.role, telnet.OptionName(t.Opt)).Inc()
	}
	return nil
}

func (m metricsListener) connected() func() {
	connections.WithLabelValues(m.role).Inc()
	return func() { connections.WithLabelValues(m.role).Dec() }
}

func serveMetrics(logger zerolog.Logger, addr string) {
	registerMetrics()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
