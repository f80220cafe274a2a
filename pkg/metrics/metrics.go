package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrendsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wavesight",
		Name:      "trends_submitted_total",
		Help:      "Trend submissions accepted, by category.",
	}, []string{"category"})

	VotesCast = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wavesight",
		Name:      "votes_cast_total",
		Help:      "Validation votes recorded, by direction.",
	}, []string{"vote"})

	VotesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wavesight",
		Name:      "votes_rejected_total",
		Help:      "Votes refused, by reason.",
	}, []string{"reason"})

	TrendTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wavesight",
		Name:      "trend_transitions_total",
		Help:      "Trend status transitions, by target status.",
	}, []string{"status"})

	LedgerEntries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "wavesight",
		Name:      "ledger_entries_total",
		Help:      "Earnings ledger entries appended, by type and status.",
	}, []string{"type", "status"})

	QuotaTruncations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "wavesight",
		Name:      "submission_quota_truncations_total",
		Help:      "Submission credits truncated by the daily cap.",
	})
)
