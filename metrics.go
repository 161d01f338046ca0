package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	swipesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uniroomie_swipes_total",
			Help: "Swipe decisions recorded, by kind.",
		},
		[]string{"kind"},
	)

	matchesCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uniroomie_matches_created_total",
			Help: "Mutual-like matches created.",
		},
	)

	deckBuildsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uniroomie_deck_builds_total",
			Help: "Swipe deck builds completed.",
		},
	)

	deckBuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "uniroomie_deck_build_seconds",
			Help:    "Time spent building a swipe deck.",
			Buckets: prometheus.DefBuckets,
		},
	)

	deckStaleDropsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "uniroomie_deck_stale_drops_total",
			Help: "Deck rebuilds discarded because a newer generation started.",
		},
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "uniroomie_ws_connections",
			Help: "Currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		swipesTotal,
		matchesCreatedTotal,
		deckBuildsTotal,
		deckBuildSeconds,
		deckStaleDropsTotal,
		wsConnections,
	)
}

// metricsHandler exposes the Prometheus scrape endpoint.
func metricsHandler() http.Handler {
	return promhttp.Handler()
}
