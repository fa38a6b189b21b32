package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Every enum below is closed: decoding an unknown value is a validation
// error, never a silent fallback to a default variant.

func parseEnum[T ~string](field, raw string, values []T) (T, error) {
	for _, v := range values {
		if string(v) == raw {
			return v, nil
		}
	}
	var zero T
	return zero, &ErrValidation{
		Field:   field,
		Message: fmt.Sprintf("unknown value %q (allowed: %s)", raw, joinEnum(values)),
	}
}

func joinEnum[T ~string](values []T) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = string(v)
	}
	return strings.Join(parts, ", ")
}

// ============================================================
// Workflow
// ============================================================

// WorkflowStage is one of the five lead-to-cash pipeline states.
type WorkflowStage string

const (
	StageLead      WorkflowStage = "LEAD"
	StageProposal  WorkflowStage = "PROPOSAL"
	StageWorkOrder WorkflowStage = "WORK_ORDER"
	StageInvoice   WorkflowStage = "INVOICE"
	StageCompleted WorkflowStage = "COMPLETED"
)

// WorkflowStages lists the stages in pipeline order.
var WorkflowStages = []WorkflowStage{StageLead, StageProposal, StageWorkOrder, StageInvoice, StageCompleted}

// ParseWorkflowStage rejects unknown stage names.
func ParseWorkflowStage(raw string) (WorkflowStage, error) {
	return parseEnum("stage", raw, WorkflowStages)
}

func (s *WorkflowStage) UnmarshalText(b []byte) error {
	v, err := ParseWorkflowStage(string(b))
	*s = v
	return err
}

// Next returns the single legal forward stage. COMPLETED has none.
func (s WorkflowStage) Next() (WorkflowStage, bool) {
	i := slices.Index(WorkflowStages, s)
	if i < 0 || i == len(WorkflowStages)-1 {
		return "", false
	}
	return WorkflowStages[i+1], true
}

// Order is the zero-based pipeline position, -1 when unknown.
func (s WorkflowStage) Order() int { return slices.Index(WorkflowStages, s) }

func (s WorkflowStage) DisplayName() string {
	switch s {
	case StageWorkOrder:
		return "Work Order"
	case StageLead:
		return "Lead"
	case StageProposal:
		return "Proposal"
	case StageInvoice:
		return "Invoice"
	case StageCompleted:
		return "Completed"
	}
	return string(s)
}

// TransitionKind tags each history record.
type TransitionKind string

const (
	TransitionCreated       TransitionKind = "CREATED"
	TransitionStage         TransitionKind = "STAGE_TRANSITION"
	TransitionAdminOverride TransitionKind = "ADMIN_OVERRIDE"
)

var transitionKinds = []TransitionKind{TransitionCreated, TransitionStage, TransitionAdminOverride}

func (k *TransitionKind) UnmarshalText(b []byte) error {
	v, err := parseEnum("kind", string(b), transitionKinds)
	*k = v
	return err
}

// ============================================================
// Lead attributes
// ============================================================

type ServiceType string

const (
	ServiceTreeRemoval      ServiceType = "TREE_REMOVAL"
	ServiceTreeTrimming     ServiceType = "TREE_TRIMMING"
	ServiceStumpGrinding    ServiceType = "STUMP_GRINDING"
	ServiceForestryMulching ServiceType = "FORESTRY_MULCHING"
	ServiceTreeAssessment   ServiceType = "TREE_ASSESSMENT"
	ServiceEmergency        ServiceType = "EMERGENCY_SERVICE"
)

var ServiceTypes = []ServiceType{
	ServiceTreeRemoval, ServiceTreeTrimming, ServiceStumpGrinding,
	ServiceForestryMulching, ServiceTreeAssessment, ServiceEmergency,
}

func ParseServiceType(raw string) (ServiceType, error) {
	return parseEnum("serviceType", raw, ServiceTypes)
}

func (s *ServiceType) UnmarshalText(b []byte) error {
	v, err := ParseServiceType(string(b))
	*s = v
	return err
}

type Urgency string

const (
	UrgencyLow       Urgency = "LOW"
	UrgencyMedium    Urgency = "MEDIUM"
	UrgencyHigh      Urgency = "HIGH"
	UrgencyEmergency Urgency = "EMERGENCY"
)

var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency}

func ParseUrgency(raw string) (Urgency, error) { return parseEnum("urgency", raw, Urgencies) }

func (u *Urgency) UnmarshalText(b []byte) error {
	v, err := ParseUrgency(string(b))
	*u = v
	return err
}

type LeadSource string

const (
	SourceWebsite        LeadSource = "WEBSITE"
	SourceReferral       LeadSource = "REFERRAL"
	SourceDriveBy        LeadSource = "DRIVE_BY"
	SourceRepeatCustomer LeadSource = "REPEAT_CUSTOMER"
	SourceGoogle         LeadSource = "GOOGLE"
	SourceSocialMedia    LeadSource = "SOCIAL_MEDIA"
	SourceDirectMail     LeadSource = "DIRECT_MAIL"
	SourceYardSign       LeadSource = "YARD_SIGN"
	SourceOther          LeadSource = "OTHER"
)

var LeadSources = []LeadSource{
	SourceWebsite, SourceReferral, SourceDriveBy, SourceRepeatCustomer, SourceGoogle,
	SourceSocialMedia, SourceDirectMail, SourceYardSign, SourceOther,
}

func ParseLeadSource(raw string) (LeadSource, error) { return parseEnum("source", raw, LeadSources) }

func (s *LeadSource) UnmarshalText(b []byte) error {
	v, err := ParseLeadSource(string(b))
	*s = v
	return err
}

type ContactMethod string

const (
	ContactPhone ContactMethod = "PHONE"
	ContactEmail ContactMethod = "EMAIL"
	ContactText  ContactMethod = "TEXT"
	ContactAny   ContactMethod = "ANY"
)

var ContactMethods = []ContactMethod{ContactPhone, ContactEmail, ContactText, ContactAny}

func ParseContactMethod(raw string) (ContactMethod, error) {
	return parseEnum("contactMethod", raw, ContactMethods)
}

func (m *ContactMethod) UnmarshalText(b []byte) error {
	v, err := ParseContactMethod(string(b))
	*m = v
	return err
}

// ============================================================
// Proposal / work order / invoice
// ============================================================

type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "Draft"
	ProposalSent     ProposalStatus = "Sent"
	ProposalViewed   ProposalStatus = "Viewed"
	ProposalAccepted ProposalStatus = "Accepted"
	ProposalDeclined ProposalStatus = "Declined"
	ProposalExpired  ProposalStatus = "Expired"
)

var ProposalStatuses = []ProposalStatus{
	ProposalDraft, ProposalSent, ProposalViewed, ProposalAccepted, ProposalDeclined, ProposalExpired,
}

func (s *ProposalStatus) UnmarshalText(b []byte) error {
	v, err := parseEnum("status", string(b), ProposalStatuses)
	*s = v
	return err
}

type WorkOrderStatus string

const (
	WorkOrderScheduled  WorkOrderStatus = "Scheduled"
	WorkOrderInProgress WorkOrderStatus = "In Progress"
	WorkOrderCompleted  WorkOrderStatus = "Completed"
	WorkOrderOnHold     WorkOrderStatus = "On Hold"
	WorkOrderCancelled  WorkOrderStatus = "Cancelled"
)

var WorkOrderStatuses = []WorkOrderStatus{
	WorkOrderScheduled, WorkOrderInProgress, WorkOrderCompleted, WorkOrderOnHold, WorkOrderCancelled,
}

func (s *WorkOrderStatus) UnmarshalText(b []byte) error {
	v, err := parseEnum("status", string(b), WorkOrderStatuses)
	*s = v
	return err
}

type LineItemStatus string

const (
	LineItemPending    LineItemStatus = "Pending"
	LineItemInProgress LineItemStatus = "In Progress"
	LineItemCompleted  LineItemStatus = "Completed"
)

var LineItemStatuses = []LineItemStatus{LineItemPending, LineItemInProgress, LineItemCompleted}

func (s *LineItemStatus) UnmarshalText(b []byte) error {
	v, err := parseEnum("status", string(b), LineItemStatuses)
	*s = v
	return err
}

type Priority string

const (
	PriorityLow       Priority = "Low"
	PriorityMedium    Priority = "Medium"
	PriorityHigh      Priority = "High"
	PriorityEmergency Priority = "Emergency"
)

var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityEmergency}

// PriorityForUrgency maps a lead's urgency onto job priority.
func PriorityForUrgency(u Urgency) Priority {
	switch u {
	case UrgencyLow:
		return PriorityLow
	case UrgencyHigh:
		return PriorityHigh
	case UrgencyEmergency:
		return PriorityEmergency
	}
	return PriorityMedium
}

func ParsePriority(raw string) (Priority, error) { return parseEnum("priority", raw, Priorities) }

func (p *Priority) UnmarshalText(b []byte) error {
	v, err := ParsePriority(string(b))
	*p = v
	return err
}

type JournalEntryType string

const (
	JournalChallenge JournalEntryType = "Challenge"
	JournalSolution  JournalEntryType = "Solution"
	JournalLesson    JournalEntryType = "Lesson"
	JournalNote      JournalEntryType = "Note"
	JournalIncident  JournalEntryType = "Incident"
)

var JournalEntryTypes = []JournalEntryType{JournalChallenge, JournalSolution, JournalLesson, JournalNote, JournalIncident}

func ParseJournalEntryType(raw string) (JournalEntryType, error) {
	return parseEnum("type", raw, JournalEntryTypes)
}

func (t *JournalEntryType) UnmarshalText(b []byte) error {
	v, err := ParseJournalEntryType(string(b))
	*t = v
	return err
}

type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "Draft"
	InvoiceSent          InvoiceStatus = "Sent"
	InvoicePartiallyPaid InvoiceStatus = "Partially Paid"
	InvoicePaid          InvoiceStatus = "Paid"
	InvoiceOverdue       InvoiceStatus = "Overdue"
	InvoiceVoid          InvoiceStatus = "Void"
)

var InvoiceStatuses = []InvoiceStatus{
	InvoiceDraft, InvoiceSent, InvoicePartiallyPaid, InvoicePaid, InvoiceOverdue, InvoiceVoid,
}

func (s *InvoiceStatus) UnmarshalText(b []byte) error {
	v, err := parseEnum("status", string(b), InvoiceStatuses)
	*s = v
	return err
}

// ============================================================
// Customers, properties, trees
// ============================================================

type CustomerType string

const (
	CustomerResidential        CustomerType = "Residential"
	CustomerCommercial         CustomerType = "Commercial"
	CustomerMunicipal          CustomerType = "Municipal"
	CustomerHOA                CustomerType = "HOA"
	CustomerPropertyManagement CustomerType = "Property Management"
)

var CustomerTypes = []CustomerType{
	CustomerResidential, CustomerCommercial, CustomerMunicipal, CustomerHOA, CustomerPropertyManagement,
}

func ParseCustomerType(raw string) (CustomerType, error) {
	return parseEnum("customerType", raw, CustomerTypes)
}

func (c *CustomerType) UnmarshalText(b []byte) error {
	v, err := ParseCustomerType(string(b))
	*c = v
	return err
}

type TreeHealth string

const (
	HealthHealthy        TreeHealth = "Healthy"
	HealthNeedsAttention TreeHealth = "Needs Attention"
	HealthDeclining      TreeHealth = "Declining"
	HealthHazard         TreeHealth = "Hazard"
	HealthRemoved        TreeHealth = "Removed"
)

var TreeHealths = []TreeHealth{HealthHealthy, HealthNeedsAttention, HealthDeclining, HealthHazard, HealthRemoved}

func ParseTreeHealth(raw string) (TreeHealth, error) { return parseEnum("healthStatus", raw, TreeHealths) }

func (h *TreeHealth) UnmarshalText(b []byte) error {
	v, err := ParseTreeHealth(string(b))
	*h = v
	return err
}

type TreeStatus string

const (
	TreeActive            TreeStatus = "Active"
	TreeRemoved           TreeStatus = "Removed"
	TreePlannedForRemoval TreeStatus = "Planned for Removal"
	TreeMonitored         TreeStatus = "Monitored"
)

var TreeStatuses = []TreeStatus{TreeActive, TreeRemoved, TreePlannedForRemoval, TreeMonitored}

func ParseTreeStatus(raw string) (TreeStatus, error) { return parseEnum("status", raw, TreeStatuses) }

func (s *TreeStatus) UnmarshalText(b []byte) error {
	v, err := ParseTreeStatus(string(b))
	*s = v
	return err
}

type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskExtreme RiskLevel = "Extreme"
)

var RiskLevels = []RiskLevel{RiskLow, RiskMedium, RiskHigh, RiskExtreme}

func ParseRiskLevel(raw string) (RiskLevel, error) { return parseEnum("riskLevel", raw, RiskLevels) }

func (r *RiskLevel) UnmarshalText(b []byte) error {
	v, err := ParseRiskLevel(string(b))
	*r = v
	return err
}

// ============================================================
// People and machines
// ============================================================

type EmploymentStatus string

const (
	EmploymentActive     EmploymentStatus = "Active"
	EmploymentInactive   EmploymentStatus = "Inactive"
	EmploymentOnLeave    EmploymentStatus = "On Leave"
	EmploymentTerminated EmploymentStatus = "Terminated"
)

var EmploymentStatuses = []EmploymentStatus{EmploymentActive, EmploymentInactive, EmploymentOnLeave, EmploymentTerminated}

func ParseEmploymentStatus(raw string) (EmploymentStatus, error) {
	return parseEnum("employmentStatus", raw, EmploymentStatuses)
}

func (s *EmploymentStatus) UnmarshalText(b []byte) error {
	v, err := ParseEmploymentStatus(string(b))
	*s = v
	return err
}

type EquipmentType string

const (
	EquipmentTruck        EquipmentType = "Truck"
	EquipmentChipper      EquipmentType = "Chipper"
	EquipmentStumpGrinder EquipmentType = "Stump Grinder"
	EquipmentCrane        EquipmentType = "Crane"
	EquipmentBucketTruck  EquipmentType = "Bucket Truck"
	EquipmentLoader       EquipmentType = "Loader"
	EquipmentSkidSteer    EquipmentType = "Skid Steer"
	EquipmentTrailer      EquipmentType = "Trailer"
	EquipmentChainsaw     EquipmentType = "Chainsaw"
	EquipmentMulcher      EquipmentType = "Mulcher"
	EquipmentOther        EquipmentType = "Other"
)

var EquipmentTypes = []EquipmentType{
	EquipmentTruck, EquipmentChipper, EquipmentStumpGrinder, EquipmentCrane, EquipmentBucketTruck,
	EquipmentLoader, EquipmentSkidSteer, EquipmentTrailer, EquipmentChainsaw, EquipmentMulcher, EquipmentOther,
}

func ParseEquipmentType(raw string) (EquipmentType, error) {
	return parseEnum("equipmentType", raw, EquipmentTypes)
}

func (t *EquipmentType) UnmarshalText(b []byte) error {
	v, err := ParseEquipmentType(string(b))
	*t = v
	return err
}

type EquipmentStatus string

const (
	EquipmentStatusActive       EquipmentStatus = "Active"
	EquipmentStatusMaintenance  EquipmentStatus = "In Maintenance"
	EquipmentStatusOutOfService EquipmentStatus = "Out of Service"
	EquipmentStatusSold         EquipmentStatus = "Sold"
	EquipmentStatusRetired      EquipmentStatus = "Retired"
)

var EquipmentStatuses = []EquipmentStatus{
	EquipmentStatusActive, EquipmentStatusMaintenance, EquipmentStatusOutOfService,
	EquipmentStatusSold, EquipmentStatusRetired,
}

func ParseEquipmentStatus(raw string) (EquipmentStatus, error) {
	return parseEnum("status", raw, EquipmentStatuses)
}

func (s *EquipmentStatus) UnmarshalText(b []byte) error {
	v, err := ParseEquipmentStatus(string(b))
	*s = v
	return err
}

// ============================================================
// Time tracking and scheduling
// ============================================================

type TaskType string

const (
	TaskSupport  TaskType = "Support"
	TaskLineItem TaskType = "Line Item"
)

var TaskTypes = []TaskType{TaskSupport, TaskLineItem}

func ParseTaskType(raw string) (TaskType, error) { return parseEnum("taskType", raw, TaskTypes) }

func (t *TaskType) UnmarshalText(b []byte) error {
	v, err := ParseTaskType(string(b))
	*t = v
	return err
}

type SupportTask string

const (
	SupportFuelUp          SupportTask = "Fuel Up"
	SupportTransport       SupportTask = "Transport"
	SupportMaintenance     SupportTask = "Maintenance"
	SupportSafetyMeeting   SupportTask = "Safety Meeting"
	SupportSiteWalkthrough SupportTask = "Site Walkthrough"
	SupportTraining        SupportTask = "Training"
	SupportStopWorkAndPlan SupportTask = "Stop Work and Plan"
)

var SupportTasks = []SupportTask{
	SupportFuelUp, SupportTransport, SupportMaintenance, SupportSafetyMeeting,
	SupportSiteWalkthrough, SupportTraining, SupportStopWorkAndPlan,
}

func ParseSupportTask(raw string) (SupportTask, error) {
	return parseEnum("taskCategory", raw, SupportTasks)
}

type JobStatus string

const (
	JobScheduled   JobStatus = "Scheduled"
	JobInProgress  JobStatus = "In Progress"
	JobCompleted   JobStatus = "Completed"
	JobCancelled   JobStatus = "Cancelled"
	JobRescheduled JobStatus = "Rescheduled"
)

var JobStatuses = []JobStatus{JobScheduled, JobInProgress, JobCompleted, JobCancelled, JobRescheduled}

func (s *JobStatus) UnmarshalText(b []byte) error {
	v, err := parseEnum("status", string(b), JobStatuses)
	*s = v
	return err
}

type JobType string

const (
	JobTypeSiteVisit JobType = "Site Visit"
	JobTypeWork      JobType = "Job"
)

var JobTypes = []JobType{JobTypeSiteVisit, JobTypeWork}

func ParseJobType(raw string) (JobType, error) { return parseEnum("jobType", raw, JobTypes) }

func (t *JobType) UnmarshalText(b []byte) error {
	v, err := ParseJobType(string(b))
	*t = v
	return err
}
