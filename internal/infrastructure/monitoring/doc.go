/*
Package monitoring provides metrics collection for confined evaluation.

# Overview

This package implements Prometheus-based metrics for sandbox contexts,
tracking context creation, evaluation outcomes and latency, sources rejected
by the mandatory transforms, fatal scope violations and the intrinsics pool.

# Features

- Context creation by kind (root, nested)
- Evaluation counts by outcome and duration histograms
- Rejected sources by reason (html-comment, import-expression)
- Invariant violation counter
- Intrinsics pool availability

# Usage

	// Create metrics collector on a private registry
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	// Time an evaluation
	timer := monitoring.NewTimer(metrics, "root")
	// ... evaluate ...
	timer.Stop(monitoring.OutcomeOK)

A nil *Metrics is accepted everywhere and records nothing, so library code
never needs to check whether metrics are enabled.
*/
package monitoring
