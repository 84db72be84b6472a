package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Record-store field names. The store is a flat record store keyed by these
// header names; an empty string on the wire means "unset" and is converted to
// a nil pointer here, never exposed to callers.
const (
	FieldProjectID            = "ProjectID"
	FieldWorkOrderID          = "WorkOrderID"
	FieldChannelRef           = "ChannelRef"
	FieldThreadRef            = "ThreadRef"
	FieldStatus               = "Status"
	FieldTitle                = "Title"
	FieldDeliverables         = "Deliverables"
	FieldKPI                  = "KPI"
	FieldDueDate              = "DueDate"
	FieldAccountableActorID   = "AccountableActorID"
	FieldFolderRef            = "FolderRef"
	FieldFolderURL            = "FolderURL"
	FieldFinishedDate         = "FinishedDate"
	FieldPushedToActorID      = "PushedToActorID"
	FieldInProgressActorID    = "InProgressActorID"
	FieldQASubmittedByActorID = "QASubmittedByActorID"
	FieldCurrentStartTime     = "CurrentStartTime"
	FieldTotalTimeSeconds     = "TotalTimeSeconds"
	FieldCreatedAt            = "CreatedAt"

	FieldEventID    = "EventID"
	FieldSeq        = "Seq"
	FieldTS         = "TS"
	FieldType       = "Type"
	FieldEntityKind = "EntityKind"
	FieldEntityID   = "EntityID"
	FieldActorID    = "ActorID"
	FieldPayload    = "PayloadJSON"
)

// ProjectFields is the full column set of the Projects collection.
var ProjectFields = []string{
	FieldProjectID, FieldChannelRef, FieldStatus, FieldTitle, FieldDeliverables,
	FieldKPI, FieldDueDate, FieldAccountableActorID, FieldFolderRef,
	FieldFolderURL, FieldFinishedDate, FieldCreatedAt,
}

// WorkOrderFields is the full column set of the WorkOrders collection.
var WorkOrderFields = []string{
	FieldWorkOrderID, FieldProjectID, FieldThreadRef, FieldStatus, FieldTitle,
	FieldDeliverables, FieldPushedToActorID, FieldInProgressActorID,
	FieldQASubmittedByActorID, FieldCurrentStartTime, FieldTotalTimeSeconds,
	FieldFolderURL, FieldCreatedAt,
}

// EventFields is the full column set of the Events collection.
var EventFields = []string{
	FieldEventID, FieldSeq, FieldTS, FieldType, FieldEntityKind, FieldEntityID,
	FieldActorID, FieldPayload,
}

func ProjectFromRow(r map[string]string) (Project, error) {
	p := Project{
		ID:                 r[FieldProjectID],
		ChannelRef:         r[FieldChannelRef],
		Status:             ProjectStatus(r[FieldStatus]),
		Title:              r[FieldTitle],
		Deliverables:       r[FieldDeliverables],
		KPI:                optional(r[FieldKPI]),
		DueDate:            r[FieldDueDate],
		AccountableActorID: r[FieldAccountableActorID],
		FolderRef:          optional(r[FieldFolderRef]),
		FolderURL:          optional(r[FieldFolderURL]),
		FinishedDate:       optional(r[FieldFinishedDate]),
		CreatedAt:          r[FieldCreatedAt],
	}
	if p.ID == "" {
		return p, fmt.Errorf("project row missing %s", FieldProjectID)
	}
	switch p.Status {
	case ProjectActive, ProjectFinished:
	default:
		return p, fmt.Errorf("project %s has unknown status %q", p.ID, r[FieldStatus])
	}
	return p, nil
}

func (p Project) Row() map[string]string {
	return map[string]string{
		FieldProjectID:          p.ID,
		FieldChannelRef:         p.ChannelRef,
		FieldStatus:             string(p.Status),
		FieldTitle:              p.Title,
		FieldDeliverables:       p.Deliverables,
		FieldKPI:                deref(p.KPI),
		FieldDueDate:            p.DueDate,
		FieldAccountableActorID: p.AccountableActorID,
		FieldFolderRef:          deref(p.FolderRef),
		FieldFolderURL:          deref(p.FolderURL),
		FieldFinishedDate:       deref(p.FinishedDate),
		FieldCreatedAt:          p.CreatedAt,
	}
}

func WorkOrderFromRow(r map[string]string) (WorkOrder, error) {
	w := WorkOrder{
		ID:                   r[FieldWorkOrderID],
		ProjectID:            r[FieldProjectID],
		ThreadRef:            r[FieldThreadRef],
		Status:               WorkOrderStatus(r[FieldStatus]),
		Title:                r[FieldTitle],
		Deliverables:         r[FieldDeliverables],
		PushedToActorID:      optional(r[FieldPushedToActorID]),
		InProgressActorID:    optional(r[FieldInProgressActorID]),
		QASubmittedByActorID: optional(r[FieldQASubmittedByActorID]),
		CurrentStartTime:     optional(r[FieldCurrentStartTime]),
		FolderURL:            optional(r[FieldFolderURL]),
		CreatedAt:            r[FieldCreatedAt],
	}
	if w.ID == "" {
		return w, fmt.Errorf("work order row missing %s", FieldWorkOrderID)
	}
	if !ValidWorkOrderStatus(r[FieldStatus]) {
		return w, fmt.Errorf("work order %s has unknown status %q", w.ID, r[FieldStatus])
	}
	if raw := r[FieldTotalTimeSeconds]; raw != "" {
		// Tolerate "125.0": rows written by earlier spreadsheet tooling
		// stored the total as a float.
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return w, fmt.Errorf("work order %s has invalid %s %q", w.ID, FieldTotalTimeSeconds, raw)
		}
		w.TotalTimeSeconds = int64(math.Round(f))
	}
	if w.TotalTimeSeconds < 0 {
		return w, fmt.Errorf("work order %s has negative %s", w.ID, FieldTotalTimeSeconds)
	}
	return w, nil
}

func (w WorkOrder) Row() map[string]string {
	return map[string]string{
		FieldWorkOrderID:          w.ID,
		FieldProjectID:            w.ProjectID,
		FieldThreadRef:            w.ThreadRef,
		FieldStatus:               string(w.Status),
		FieldTitle:                w.Title,
		FieldDeliverables:         w.Deliverables,
		FieldPushedToActorID:      deref(w.PushedToActorID),
		FieldInProgressActorID:    deref(w.InProgressActorID),
		FieldQASubmittedByActorID: deref(w.QASubmittedByActorID),
		FieldCurrentStartTime:     deref(w.CurrentStartTime),
		FieldTotalTimeSeconds:     strconv.FormatInt(w.TotalTimeSeconds, 10),
		FieldFolderURL:            deref(w.FolderURL),
		FieldCreatedAt:            w.CreatedAt,
	}
}

func EventFromRow(r map[string]string) (Event, error) {
	e := Event{
		ID:         r[FieldEventID],
		TS:         r[FieldTS],
		Type:       r[FieldType],
		EntityKind: r[FieldEntityKind],
		EntityID:   r[FieldEntityID],
		ActorID:    r[FieldActorID],
		Payload:    r[FieldPayload],
	}
	if raw := r[FieldSeq]; raw != "" {
		seq, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return e, fmt.Errorf("event %s has invalid %s %q", e.ID, FieldSeq, raw)
		}
		e.Seq = seq
	}
	return e, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
