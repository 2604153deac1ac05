package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_market_operations_total",
			Help: "The total number of engine operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boost_market_operation_duration_seconds",
			Help:    "Duration of engine operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	RevertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_market_reverts_total",
			Help: "The total number of rejected operations by reason",
		},
		[]string{"reason"},
	)

	EventsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_market_events_total",
			Help: "The total number of committed engine events",
		},
		[]string{"event"},
	)

	BoostsPurchased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_market_boosts_purchased_total",
			Help: "The total number of boosts bought from offers",
		},
	)

	PledgesJoined = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_market_pledges_joined_total",
			Help: "The total number of boosts delegated to pledges",
		},
	)

	FeesCollected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_market_fees_collected_total",
			Help: "Fee tokens paid by boost buyers, in whole tokens",
		},
	)

	ReserveBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boost_market_reserve_balance",
			Help: "Fee tokens held in the reserve, in whole tokens",
		},
	)

	ListedOffers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boost_market_listed_offers",
			Help: "Number of offers currently listed",
		},
	)

	OpenPledges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boost_market_open_pledges",
			Help: "Number of pledges not yet closed",
		},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boost_market_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	OracleRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "boost_market_oracle_request_duration_seconds",
			Help:    "Duration of voting-escrow oracle requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	OracleRequestErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_market_oracle_request_errors_total",
			Help: "The total number of voting-escrow oracle request errors",
		},
	)

	OracleCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_market_oracle_cache_hits_total",
			Help: "The total number of historical balance reads served from cache",
		},
	)

	JournalWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boost_market_journal_write_errors_total",
			Help: "The total number of failed event journal writes",
		},
	)

	KeeperRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boost_market_keeper_refreshes_total",
			Help: "The total number of account checkpoint refreshes",
		},
		[]string{"status"},
	)
)

func RecordAPIRequest(endpoint, method string, status int, duration float64) {
	APIRequestDuration.WithLabelValues(endpoint, method, strconv.Itoa(status)).Observe(duration)
}

func RecordOperation(operation, outcome string, duration float64) {
	OperationsTotal.WithLabelValues(operation, outcome).Inc()
	OperationDuration.WithLabelValues(operation).Observe(duration)
}

func RecordRevert(reason string) {
	RevertsTotal.WithLabelValues(reason).Inc()
}

func RecordEvent(name string) {
	EventsEmitted.WithLabelValues(name).Inc()
}

func RecordOracleRequest(duration float64, success bool) {
	OracleRequestDuration.Observe(duration)
	if !success {
		OracleRequestErrors.Inc()
	}
}

func RecordKeeperRefresh(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	KeeperRefreshes.WithLabelValues(status).Inc()
}

func UpdateMarketGauges(offers, openPledges int) {
	ListedOffers.Set(float64(offers))
	OpenPledges.Set(float64(openPledges))
}

func UpdateReserve(reserve float64) {
	ReserveBalance.Set(reserve)
}
