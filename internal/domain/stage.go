// Workflow stage and job status enums, the legal transition edges, and the
// stage -> status derivation. Everything that reasons about "where is this
// job" goes through this file; collaborators never recompute progress from
// raw appointment fields.
package domain

// WorkflowStage is the fine-grained position of an appointment in the
// multi-party workflow.
type WorkflowStage string

// Workflow stages in forward order. cancelled is reachable from every
// non-terminal stage.
const (
	StageNew                  WorkflowStage = "new"
	StageShopSelection        WorkflowStage = "shop_selection"
	StageAwaitingShopResponse WorkflowStage = "awaiting_shop_response"
	StageCustomerHandover     WorkflowStage = "customer_handover"
	StageDamageReport         WorkflowStage = "damage_report"
	StageCostApproval         WorkflowStage = "cost_approval"
	StageScheduled            WorkflowStage = "scheduled"
	StageInProgress           WorkflowStage = "in_progress"
	StageCompleted            WorkflowStage = "completed"
	StageCancelled            WorkflowStage = "cancelled"
)

// JobStatus is the coarse status derived from the workflow stage. It is never
// stored or written independently.
type JobStatus string

// Derived job statuses.
const (
	StatusPending    JobStatus = "pending"
	StatusScheduled  JobStatus = "scheduled"
	StatusInProgress JobStatus = "in_progress"
	StatusCompleted  JobStatus = "completed"
	StatusCancelled  JobStatus = "cancelled"
)

// StageStatus derives the coarse job status for a stage. Stages before
// scheduled map to pending.
func StageStatus(s WorkflowStage) JobStatus {
	switch s {
	case StageScheduled:
		return StatusScheduled
	case StageInProgress:
		return StatusInProgress
	case StageCompleted:
		return StatusCompleted
	case StageCancelled:
		return StatusCancelled
	default:
		return StatusPending
	}
}

// Terminal reports whether no further transitions are possible from s.
func (s WorkflowStage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled
}

// Cancellable reports whether the job may still be cancelled from s.
// Completed work cannot be cancelled; cancelling twice is a conflict handled
// by the engine's conditional update.
func (s WorkflowStage) Cancellable() bool {
	return s != StageCompleted && s != StageCancelled
}

// forwardEdges holds the legal forward transitions of the workflow. Cancel
// edges are implied by Cancellable and are not listed.
var forwardEdges = map[WorkflowStage][]WorkflowStage{
	StageNew:                  {StageShopSelection},
	StageShopSelection:        {StageAwaitingShopResponse},
	// shop_selection reappears as a target: a declined offer reroutes the
	// appointment back so the customer can pick another shop.
	StageAwaitingShopResponse: {StageCustomerHandover, StageDamageReport, StageShopSelection},
	StageCustomerHandover:     {StageDamageReport},
	StageDamageReport:         {StageCostApproval, StageCustomerHandover},
	StageCostApproval:         {StageScheduled},
	StageScheduled:            {StageInProgress},
	StageInProgress:           {StageCompleted},
}

// CanTransition reports whether from -> to is a legal workflow edge,
// including the cancel edge from any non-terminal stage.
func CanTransition(from, to WorkflowStage) bool {
	if to == StageCancelled {
		return from.Cancellable()
	}
	for _, next := range forwardEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidStage reports whether s is one of the known workflow stages.
func ValidStage(s WorkflowStage) bool {
	switch s {
	case StageNew, StageShopSelection, StageAwaitingShopResponse,
		StageCustomerHandover, StageDamageReport, StageCostApproval,
		StageScheduled, StageInProgress, StageCompleted, StageCancelled:
		return true
	default:
		return false
	}
}
