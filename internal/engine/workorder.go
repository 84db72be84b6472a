package engine

import (
	"context"
	"log"
	"time"

	"orderflow/internal/domain"
	"orderflow/internal/engine/fault"
	"orderflow/internal/timeclock"
)

type WorkOrderCreateOptions struct {
	ActorID         string
	ProjectID       string
	ThreadRef       string
	Title           string
	Deliverables    string
	PushedToActorID string
}

type WorkOrderUpdateOptions struct {
	ActorID      string
	Title        *string
	Deliverables *string

	// PushedToActorID set to the empty string clears the assignment;
	// nil leaves it untouched.
	PushedToActorID *string
}

// CreateWorkOrder opens a new work order under an active project. A subfolder
// under the project folder is provisioned best-effort.
func (e Engine) CreateWorkOrder(ctx context.Context, opts WorkOrderCreateOptions) (domain.WorkOrder, error) {
	if opts.Title == "" {
		return domain.WorkOrder{}, fault.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if opts.ThreadRef == "" {
		return domain.WorkOrder{}, fault.ValidationError{Field: "thread_ref", Reason: "must not be empty"}
	}

	p, _, err := e.getProjectRow(ctx, opts.ProjectID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if p.Status != domain.ProjectActive {
		return domain.WorkOrder{}, fault.InvalidTransitionError{Op: "create work order", From: string(p.Status)}
	}

	id, err := e.newWorkOrderID(ctx, opts.ProjectID)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	w := domain.WorkOrder{
		ID:              id,
		ProjectID:       opts.ProjectID,
		ThreadRef:       opts.ThreadRef,
		Status:          domain.WorkOrderOpen,
		Title:           opts.Title,
		Deliverables:    opts.Deliverables,
		PushedToActorID: optionalString(opts.PushedToActorID),
		CreatedAt:       e.now().UTC().Format(time.RFC3339),
	}

	if p.FolderRef != nil {
		_, url, ferr := e.Folders.Create(ctx, id+" "+opts.Title, *p.FolderRef)
		if ferr != nil {
			log.Printf("folders: create for %s failed: %v", id, ferr)
		} else {
			w.FolderURL = optionalString(url)
		}
	}

	if err := e.Store.Append(ctx, domain.CollectionWorkOrders, w.Row()); err != nil {
		return domain.WorkOrder{}, fault.UpstreamError{System: "record store", Err: err}
	}

	e.Events.Append(ctx, "workorder.created", "workorder", id, opts.ActorID, map[string]any{
		"project_id": opts.ProjectID,
		"title":      opts.Title,
		"pushed_to":  opts.PushedToActorID,
	})
	return w, nil
}

func (e Engine) GetWorkOrder(ctx context.Context, id string) (domain.WorkOrder, error) {
	w, _, err := e.getWorkOrderRow(ctx, id)
	return w, err
}

// DisplayedSeconds reports the work order's total time including the running
// stretch when it is in progress, without writing anything back.
func (e Engine) DisplayedSeconds(w domain.WorkOrder) int64 {
	return timeclock.Displayed(w.TotalTimeSeconds, w.CurrentStartTime, e.now())
}

// UpdateWorkOrder applies a partial edit to a work order's header fields.
func (e Engine) UpdateWorkOrder(ctx context.Context, id string, opts WorkOrderUpdateOptions) (domain.WorkOrder, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	w, pos, err := e.getWorkOrderRow(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}

	fields := map[string]string{}
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.WorkOrder{}, fault.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		w.Title = *opts.Title
		fields[domain.FieldTitle] = *opts.Title
	}
	if opts.Deliverables != nil {
		w.Deliverables = *opts.Deliverables
		fields[domain.FieldDeliverables] = *opts.Deliverables
	}
	if opts.PushedToActorID != nil {
		w.PushedToActorID = optionalString(*opts.PushedToActorID)
		fields[domain.FieldPushedToActorID] = *opts.PushedToActorID
	}
	if len(fields) == 0 {
		return w, nil
	}

	if err := e.Store.Update(ctx, domain.CollectionWorkOrders, pos, fields); err != nil {
		return domain.WorkOrder{}, storeErr(domain.CollectionWorkOrders, id, err)
	}

	e.Events.Append(ctx, "workorder.updated", "workorder", id, opts.ActorID, map[string]any{
		"fields": fieldNames(fields),
	})
	return w, nil
}

// ListInProgressWorkOrders returns every work order currently being worked on.
func (e Engine) ListInProgressWorkOrders(ctx context.Context) ([]domain.WorkOrder, error) {
	rows, err := e.Store.List(ctx, domain.CollectionWorkOrders)
	if err != nil {
		return nil, fault.UpstreamError{System: "record store", Err: err}
	}
	var out []domain.WorkOrder
	for _, row := range rows {
		w, err := domain.WorkOrderFromRow(row)
		if err != nil {
			return nil, fault.UpstreamError{System: "record store", Err: err}
		}
		if w.Status == domain.WorkOrderInProgress {
			out = append(out, w)
		}
	}
	return out, nil
}

// StartWorkOrder begins a working stretch. Only orders that are Open or sent
// back for rework can be started; when the order was pushed to a specific
// actor, nobody else may pick it up.
func (e Engine) StartWorkOrder(ctx context.Context, id, actorID string) (domain.WorkOrder, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	w, pos, err := e.getWorkOrderRow(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if !w.Status.Startable() {
		return domain.WorkOrder{}, fault.InvalidTransitionError{Op: "start work order", From: string(w.Status)}
	}
	if w.PushedToActorID != nil && *w.PushedToActorID != actorID {
		return domain.WorkOrder{}, fault.ForbiddenError{Op: "start work order", ActorID: actorID, Reason: "work order is pushed to another actor"}
	}

	start := e.now().UTC().Format(time.RFC3339)
	fields := map[string]string{
		domain.FieldStatus:            string(domain.WorkOrderInProgress),
		domain.FieldInProgressActorID: actorID,
		domain.FieldCurrentStartTime:  start,
	}
	if err := e.Store.Update(ctx, domain.CollectionWorkOrders, pos, fields); err != nil {
		return domain.WorkOrder{}, storeErr(domain.CollectionWorkOrders, id, err)
	}
	w.Status = domain.WorkOrderInProgress
	w.InProgressActorID = optionalString(actorID)
	w.CurrentStartTime = optionalString(start)

	e.Events.Append(ctx, "workorder.started", "workorder", id, actorID, nil)
	return w, nil
}

// PauseWorkOrder stops the running stretch, folds the elapsed time into the
// total, and returns the order to Open.
func (e Engine) PauseWorkOrder(ctx context.Context, id, actorID string) (domain.WorkOrder, error) {
	return e.stopWork(ctx, id, actorID, "pause work order", domain.WorkOrderOpen, "workorder.paused")
}

// FinishWorkOrder stops the running stretch like Pause but hands the order to
// QA, recording who submitted it.
func (e Engine) FinishWorkOrder(ctx context.Context, id, actorID string) (domain.WorkOrder, error) {
	return e.stopWork(ctx, id, actorID, "finish work order", domain.WorkOrderInQA, "workorder.finished")
}

func (e Engine) stopWork(ctx context.Context, id, actorID, op string, next domain.WorkOrderStatus, evtType string) (domain.WorkOrder, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	w, pos, err := e.getWorkOrderRow(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if w.Status != domain.WorkOrderInProgress {
		return domain.WorkOrder{}, fault.InvalidTransitionError{Op: op, From: string(w.Status)}
	}
	if w.InProgressActorID == nil || *w.InProgressActorID != actorID {
		return domain.WorkOrder{}, fault.ForbiddenError{Op: op, ActorID: actorID, Reason: "only the actor who started the work order may stop it"}
	}

	total, _, err := timeclock.Flush(w.TotalTimeSeconds, w.CurrentStartTime, e.now())
	if err != nil {
		return domain.WorkOrder{}, fault.UpstreamError{System: "record data", Err: err}
	}

	fields := map[string]string{
		domain.FieldStatus:            string(next),
		domain.FieldTotalTimeSeconds:  formatSeconds(total),
		domain.FieldCurrentStartTime:  "",
		domain.FieldInProgressActorID: "",
	}
	if next == domain.WorkOrderInQA {
		fields[domain.FieldQASubmittedByActorID] = actorID
	}
	if err := e.Store.Update(ctx, domain.CollectionWorkOrders, pos, fields); err != nil {
		return domain.WorkOrder{}, storeErr(domain.CollectionWorkOrders, id, err)
	}
	w.Status = next
	w.TotalTimeSeconds = total
	w.CurrentStartTime = nil
	w.InProgressActorID = nil
	if next == domain.WorkOrderInQA {
		w.QASubmittedByActorID = optionalString(actorID)
	}

	e.Events.Append(ctx, evtType, "workorder", id, actorID, map[string]any{
		"total_seconds": total,
	})
	return w, nil
}

// ApproveWorkOrder accepts a QA submission. Only the accountable actor of the
// parent project may judge it.
func (e Engine) ApproveWorkOrder(ctx context.Context, id, actorID string) (domain.WorkOrder, error) {
	return e.judgeQA(ctx, id, actorID, "approve work order", domain.WorkOrderApproved, "workorder.approved")
}

// ReworkWorkOrder rejects a QA submission, returning the order to Open so
// it can be picked up again.
func (e Engine) ReworkWorkOrder(ctx context.Context, id, actorID string) (domain.WorkOrder, error) {
	return e.judgeQA(ctx, id, actorID, "rework work order", domain.WorkOrderOpen, "workorder.reworked")
}

func (e Engine) judgeQA(ctx context.Context, id, actorID, op string, next domain.WorkOrderStatus, evtType string) (domain.WorkOrder, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	w, pos, err := e.getWorkOrderRow(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if w.Status != domain.WorkOrderInQA {
		return domain.WorkOrder{}, fault.InvalidTransitionError{Op: op, From: string(w.Status)}
	}
	p, _, err := e.getProjectRow(ctx, w.ProjectID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if actorID != p.AccountableActorID {
		return domain.WorkOrder{}, fault.ForbiddenError{Op: op, ActorID: actorID, Reason: "only the project's accountable actor may judge QA"}
	}

	fields := map[string]string{
		domain.FieldStatus:               string(next),
		domain.FieldInProgressActorID:    "",
		domain.FieldCurrentStartTime:     "",
		domain.FieldQASubmittedByActorID: "",
	}
	if err := e.Store.Update(ctx, domain.CollectionWorkOrders, pos, fields); err != nil {
		return domain.WorkOrder{}, storeErr(domain.CollectionWorkOrders, id, err)
	}
	w.Status = next
	w.InProgressActorID = nil
	w.CurrentStartTime = nil
	w.QASubmittedByActorID = nil

	e.Events.Append(ctx, evtType, "workorder", id, actorID, nil)
	return w, nil
}

// CancelWorkOrder closes an order from any non-terminal state. The project's
// accountable actor may always cancel; the pushed-to actor may cancel their
// own assignment. A running stretch is flushed first so no worked time is
// lost.
func (e Engine) CancelWorkOrder(ctx context.Context, id, actorID string) (domain.WorkOrder, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	w, pos, err := e.getWorkOrderRow(ctx, id)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	if w.Status.Terminal() {
		return domain.WorkOrder{}, fault.InvalidTransitionError{Op: "cancel work order", From: string(w.Status)}
	}
	p, _, err := e.getProjectRow(ctx, w.ProjectID)
	if err != nil {
		return domain.WorkOrder{}, err
	}
	allowed := actorID == p.AccountableActorID ||
		(w.PushedToActorID != nil && *w.PushedToActorID == actorID)
	if !allowed {
		return domain.WorkOrder{}, fault.ForbiddenError{Op: "cancel work order", ActorID: actorID, Reason: "only the accountable or pushed-to actor may cancel"}
	}

	total, _, err := timeclock.Flush(w.TotalTimeSeconds, w.CurrentStartTime, e.now())
	if err != nil {
		return domain.WorkOrder{}, fault.UpstreamError{System: "record data", Err: err}
	}

	fields := map[string]string{
		domain.FieldStatus:               string(domain.WorkOrderCancelled),
		domain.FieldTotalTimeSeconds:     formatSeconds(total),
		domain.FieldCurrentStartTime:     "",
		domain.FieldInProgressActorID:    "",
		domain.FieldQASubmittedByActorID: "",
	}
	if err := e.Store.Update(ctx, domain.CollectionWorkOrders, pos, fields); err != nil {
		return domain.WorkOrder{}, storeErr(domain.CollectionWorkOrders, id, err)
	}
	w.Status = domain.WorkOrderCancelled
	w.TotalTimeSeconds = total
	w.CurrentStartTime = nil
	w.InProgressActorID = nil
	w.QASubmittedByActorID = nil

	e.Events.Append(ctx, "workorder.cancelled", "workorder", id, actorID, map[string]any{
		"total_seconds": total,
	})
	return w, nil
}
