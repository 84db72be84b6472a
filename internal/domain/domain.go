package domain

// Collection names in the backing record store.
const (
	CollectionProjects   = "Projects"
	CollectionWorkOrders = "WorkOrders"
	CollectionEvents     = "Events"
)

type ProjectStatus string

const (
	ProjectActive   ProjectStatus = "Active"
	ProjectFinished ProjectStatus = "Finished"
)

type WorkOrderStatus string

const (
	WorkOrderOpen       WorkOrderStatus = "Open"
	WorkOrderInProgress WorkOrderStatus = "InProgress"
	WorkOrderInQA       WorkOrderStatus = "InQA"
	WorkOrderApproved   WorkOrderStatus = "Approved"
	WorkOrderRework     WorkOrderStatus = "Rework"
	WorkOrderCancelled  WorkOrderStatus = "Cancelled"
)

// Terminal reports whether no lifecycle operation may leave s.
func (s WorkOrderStatus) Terminal() bool {
	return s == WorkOrderApproved || s == WorkOrderCancelled
}

// Startable reports whether a work order in s accepts Start.
func (s WorkOrderStatus) Startable() bool {
	return s == WorkOrderOpen || s == WorkOrderRework
}

func ValidWorkOrderStatus(s string) bool {
	switch WorkOrderStatus(s) {
	case WorkOrderOpen, WorkOrderInProgress, WorkOrderInQA, WorkOrderApproved, WorkOrderRework, WorkOrderCancelled:
		return true
	}
	return false
}

type Project struct {
	ID                 string        `json:"id"`
	ChannelRef         string        `json:"channel_ref"`
	Status             ProjectStatus `json:"status" enum:"Active,Finished"`
	Title              string        `json:"title"`
	Deliverables       string        `json:"deliverables,omitempty"`
	KPI                *string       `json:"kpi,omitempty"`
	DueDate            string        `json:"due_date"`
	AccountableActorID string        `json:"accountable_actor_id"`
	FolderRef          *string       `json:"folder_ref,omitempty"`
	FolderURL          *string       `json:"folder_url,omitempty"`
	FinishedDate       *string       `json:"finished_date,omitempty"`
	CreatedAt          string        `json:"created_at" format:"date-time"`
}

type WorkOrder struct {
	ID                   string          `json:"id"`
	ProjectID            string          `json:"project_id"`
	ThreadRef            string          `json:"thread_ref"`
	Status               WorkOrderStatus `json:"status" enum:"Open,InProgress,InQA,Approved,Rework,Cancelled"`
	Title                string          `json:"title"`
	Deliverables         string          `json:"deliverables,omitempty"`
	PushedToActorID      *string         `json:"pushed_to_actor_id,omitempty"`
	InProgressActorID    *string         `json:"in_progress_actor_id,omitempty"`
	QASubmittedByActorID *string         `json:"qa_submitted_by_actor_id,omitempty"`
	CurrentStartTime     *string         `json:"current_start_time,omitempty" format:"date-time"`
	TotalTimeSeconds     int64           `json:"total_time_seconds"`
	FolderURL            *string         `json:"folder_url,omitempty"`
	CreatedAt            string          `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         string `json:"id"`
	Seq        int64  `json:"seq"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
