package server

import (
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/timeclock"
)

// Request payloads

type CreateProjectRequest struct {
	ChannelRef         string `json:"channel_ref"`
	Title              string `json:"title"`
	Deliverables       string `json:"deliverables,omitempty"`
	KPI                string `json:"kpi,omitempty"`
	DueDate            string `json:"due_date,omitempty"`
	AccountableActorID string `json:"accountable_actor_id"`
}

type UpdateProjectRequest struct {
	Title              *string `json:"title,omitempty"`
	Deliverables       *string `json:"deliverables,omitempty"`
	KPI                *string `json:"kpi,omitempty"`
	DueDate            *string `json:"due_date,omitempty"`
	AccountableActorID *string `json:"accountable_actor_id,omitempty"`
}

type CreateWorkOrderRequest struct {
	ThreadRef       string `json:"thread_ref"`
	Title           string `json:"title"`
	Deliverables    string `json:"deliverables,omitempty"`
	PushedToActorID string `json:"pushed_to_actor_id,omitempty"`
}

type UpdateWorkOrderRequest struct {
	Title           *string `json:"title,omitempty"`
	Deliverables    *string `json:"deliverables,omitempty"`
	PushedToActorID *string `json:"pushed_to_actor_id,omitempty"`
}

// Response payloads

type ProjectResponse struct {
	ID                 string  `json:"id"`
	ChannelRef         string  `json:"channel_ref"`
	Status             string  `json:"status" enum:"Active,Finished"`
	Title              string  `json:"title"`
	Deliverables       string  `json:"deliverables,omitempty"`
	KPI                *string `json:"kpi,omitempty"`
	DueDate            string  `json:"due_date,omitempty"`
	AccountableActorID string  `json:"accountable_actor_id"`
	FolderURL          *string `json:"folder_url,omitempty"`
	FinishedDate       *string `json:"finished_date,omitempty"`
	CreatedAt          string  `json:"created_at" format:"date-time"`
}

type WorkOrderResponse struct {
	ID                   string  `json:"id"`
	ProjectID            string  `json:"project_id"`
	ThreadRef            string  `json:"thread_ref"`
	Status               string  `json:"status" enum:"Open,InProgress,InQA,Approved,Rework,Cancelled"`
	Title                string  `json:"title"`
	Deliverables         string  `json:"deliverables,omitempty"`
	PushedToActorID      *string `json:"pushed_to_actor_id,omitempty"`
	InProgressActorID    *string `json:"in_progress_actor_id,omitempty"`
	QASubmittedByActorID *string `json:"qa_submitted_by_actor_id,omitempty"`
	TotalTimeSeconds     int64   `json:"total_time_seconds"`
	DisplayedSeconds     int64   `json:"displayed_seconds"`
	DisplayedHours       string  `json:"displayed_hours" example:"02:05"`
	FolderURL            *string `json:"folder_url,omitempty"`
	CreatedAt            string  `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:                 p.ID,
		ChannelRef:         p.ChannelRef,
		Status:             string(p.Status),
		Title:              p.Title,
		Deliverables:       p.Deliverables,
		KPI:                p.KPI,
		DueDate:            p.DueDate,
		AccountableActorID: p.AccountableActorID,
		FolderURL:          p.FolderURL,
		FinishedDate:       p.FinishedDate,
		CreatedAt:          p.CreatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

// workOrderResponse includes the display-only elapsed total so callers never
// need to reconstruct the running stretch themselves.
func workOrderResponse(e engine.Engine, w domain.WorkOrder) WorkOrderResponse {
	displayed := e.DisplayedSeconds(w)
	return WorkOrderResponse{
		ID:                   w.ID,
		ProjectID:            w.ProjectID,
		ThreadRef:            w.ThreadRef,
		Status:               string(w.Status),
		Title:                w.Title,
		Deliverables:         w.Deliverables,
		PushedToActorID:      w.PushedToActorID,
		InProgressActorID:    w.InProgressActorID,
		QASubmittedByActorID: w.QASubmittedByActorID,
		TotalTimeSeconds:     w.TotalTimeSeconds,
		DisplayedSeconds:     displayed,
		DisplayedHours:       timeclock.FormatHoursMinutes(displayed),
		FolderURL:            w.FolderURL,
		CreatedAt:            w.CreatedAt,
	}
}

func mapWorkOrders(e engine.Engine, items []domain.WorkOrder) []WorkOrderResponse {
	out := make([]WorkOrderResponse, 0, len(items))
	for _, w := range items {
		out = append(out, workOrderResponse(e, w))
	}
	return out
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		Seq:        evt.Seq,
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    evt.Payload,
	}
}
