package domain

// Dashboard is the pipeline and financial overview.
type Dashboard struct {
	Leads                     LeadStats `json:"leads"`
	OpenProposalValue         float64   `json:"openProposalValue"`
	AcceptedProposalValue     float64   `json:"acceptedProposalValue"`
	ActiveWorkOrders          int       `json:"activeWorkOrders"`
	OutstandingInvoiceBalance string    `json:"outstandingInvoiceBalance"`
	OverdueInvoices           int       `json:"overdueInvoices"`
	EquipmentNeedingReview    []string  `json:"equipmentFlaggedForReplacement"`
	GeneratedAt               string    `json:"generatedAt"`
}

// OrphanedReference is an id held by one record that points to a missing,
// archived or removed record.
type OrphanedReference struct {
	SourceKind string `json:"sourceKind"`
	SourceID   string `json:"sourceId"`
	Field      string `json:"field"`
	TargetKind string `json:"targetKind"`
	TargetID   string `json:"targetId"`
	Problem    string `json:"problem"` // missing, archived or removed
}

const (
	ReferenceMissing  = "missing"
	ReferenceArchived = "archived"
	ReferenceRemoved  = "removed"
)
