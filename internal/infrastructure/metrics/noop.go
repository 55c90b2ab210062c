package metrics

import "crm-schema-migrator/internal/domain"

// NoopMetrics is a no-operation implementation of Recorder
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

func (n *NoopMetrics) RecordOutcome(objectType string, outcome domain.Outcome) {}
func (n *NoopMetrics) RecordRateLimited(objectType string)                     {}
func (n *NoopMetrics) RecordTokenRefresh(success bool)                         {}
func (n *NoopMetrics) RecordCatalogLookup(hit bool)                            {}

func (n *NoopMetrics) RecordHTTPRequest(method, route string, status int, seconds float64) {}
