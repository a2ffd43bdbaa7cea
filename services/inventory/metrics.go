package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	createdHostCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_hosts_created_total",
		Help: "Hosts created from reports with no identity match.",
	})
	updatedHostCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_hosts_updated_total",
		Help: "Host reports merged into an existing record.",
	})
	deletedHostCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_hosts_deleted_total",
		Help: "Hosts removed, by request or by the reaper.",
	})

	egressSuccessCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_egress_success_total",
		Help: "Lifecycle events acknowledged by the transport.",
	})
	egressFailureCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_egress_failure_total",
		Help: "Lifecycle events the transport failed to deliver.",
	})
	eventSerializationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "inventory_event_serialization_seconds",
		Help: "Time spent serializing outbound events.",
	})

	reaperFailCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reaper_failures_total",
		Help: "Host deletions that failed during reaper runs.",
	})

	profileUpdateFailCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_profile_update_failures_total",
		Help: "System-profile messages that could not be applied.",
	})

	ingressFailCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_ingress_failures_total",
		Help: "Bus host reports that were rejected and dropped.",
	})
)
