package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ValidationRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receipt_validation_requests_total",
			Help: "Number of validation requests dispatched to the authority",
		},
	)

	ValidationCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receipt_validation_cache_hits_total",
			Help: "Number of validation calls answered from the response cache",
		},
	)

	ValidationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "receipt_validation_failures_total",
			Help: "Number of validations that ended unverified",
		},
	)

	VerifiedReceiptUpserts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verified_receipt_upserts_total",
			Help: "Number of verified receipts created or updated",
		},
	)
)

func Register() {
	prometheus.MustRegister(
		ValidationRequests,
		ValidationCacheHits,
		ValidationFailures,
		VerifiedReceiptUpserts,
	)
}
