package main

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	eventsTotal        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	rtcTokensTotal     *prometheus.CounterVec
)

func registerMetrics() {
	registerOnce.Do(func() {
		eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplechat_events_total",
			Help: "Document change events received, by trigger and result.",
		}, []string{"trigger", "result"})

		notificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplechat_notifications_total",
			Help: "Push notification decisions, by kind and outcome.",
		}, []string{"kind", "outcome"})

		rtcTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "simplechat_rtc_tokens_total",
			Help: "RTC tokens minted, by source and result.",
		}, []string{"source", "result"})

		prometheus.MustRegister(eventsTotal, notificationsTotal, rtcTokensTotal)
	})
}

func countEvent(trigger, result string) {
	registerMetrics()
	eventsTotal.WithLabelValues(trigger, result).Inc()
}

func countNotification(kind string, result outcome) {
	registerMetrics()
	notificationsTotal.WithLabelValues(kind, string(result)).Inc()
}

func countRtcToken(source, result string) {
	registerMetrics()
	rtcTokensTotal.WithLabelValues(source, result).Inc()
}
