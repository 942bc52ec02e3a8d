package velocitylog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// FilterChecksTotal counts SSTable lookups that consulted a bloom filter
var FilterChecksTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "velocitylog_filter_checks_total",
		Help: "Total number of SSTable bloom filter checks",
	},
)

// FilterNegativesTotal counts lookups the filter answered without touching the index
var FilterNegativesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "velocitylog_filter_negatives_total",
		Help: "Total number of SSTable lookups skipped by the bloom filter",
	},
)

// FilterFalsePositivesTotal counts lookups the filter let through for keys the table does not hold
var FilterFalsePositivesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "velocitylog_filter_false_positives_total",
		Help: "Total number of bloom filter matches for keys absent from the SSTable",
	},
)

// MemtableFlushesTotal counts memtables written out as SSTables
var MemtableFlushesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "velocitylog_memtable_flushes_total",
		Help: "Total number of memtables flushed to SSTables",
	},
)

// CompactionsTotal counts compactions by source level
var CompactionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "velocitylog_compactions_total",
		Help: "Total number of level compactions",
	},
	[]string{"level"},
)
