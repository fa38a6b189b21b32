package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual service.
type ServiceHealth struct {
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	LatencyMs     int64   `json:"latencyMs"`
	UptimePercent float64 `json:"uptimePercent"`
	LastChecked   string  `json:"lastChecked"`
}

// OpsMetrics is returned by GET /v1/metrics/ops. Counters are read from
// the Prometheus registry at request time.
type OpsMetrics struct {
	StageTransitions  map[string]float64 `json:"stageTransitions"`
	ProposalOutcomes  map[string]float64 `json:"proposalOutcomes"`
	CalculationErrors map[string]float64 `json:"calculationErrors"`
	VersionConflicts  map[string]float64 `json:"versionConflicts"`
	ExternalErrors    map[string]float64 `json:"externalErrors"`
	CacheHitRate      float64            `json:"cacheHitRate"`
	OperationCount    uint64             `json:"operationCount"`
	AvgOperationMs    float64            `json:"avgOperationMs"`
	CollectedAt       string             `json:"collectedAt"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps paginated list results.
type ListResponse[T any] struct {
	Data     []T  `json:"data"`
	Total    int  `json:"total"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasMore  bool `json:"has_more"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
