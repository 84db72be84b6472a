package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/engine/fault"
	"orderflow/internal/events"
	"orderflow/internal/folders"
	"orderflow/internal/store"
)

type testEnv struct {
	Engine engine.Engine
	Store  *store.Memory
	Ctx    context.Context
	now    time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	env := &testEnv{
		Store: mem,
		Ctx:   context.Background(),
		now:   time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
	eng := engine.New(mem, folders.Disabled{}, config.Default())
	eng.Now = func() time.Time { return env.now }
	eng.Events.Now = eng.Now
	env.Engine = eng
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.now = env.now.Add(d)
}

func (env *testEnv) createProject(t *testing.T, accountable string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ActorID:            accountable,
		ChannelRef:         "chan-100",
		Title:              "Launch campaign",
		Deliverables:       "Landing page",
		DueDate:            "2024-06-01",
		AccountableActorID: accountable,
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (env *testEnv) createWorkOrder(t *testing.T, projectID, pushTo string) domain.WorkOrder {
	t.Helper()
	w, err := env.Engine.CreateWorkOrder(env.Ctx, engine.WorkOrderCreateOptions{
		ActorID:         "lead",
		ProjectID:       projectID,
		ThreadRef:       "thread-1",
		Title:           "Build page",
		PushedToActorID: pushTo,
	})
	if err != nil {
		t.Fatalf("create work order: %v", err)
	}
	return w
}

func ptr(s string) *string { return &s }

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ActorID:            "lead",
		ChannelRef:         "chan-1",
		AccountableActorID: "lead",
	})
	var ve fault.ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Fatalf("expected title validation error, got %v", err)
	}

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ActorID:            "lead",
		ChannelRef:         "chan-1",
		Title:              "Launch",
		AccountableActorID: "lead",
		DueDate:            "June 1st",
	})
	if !errors.As(err, &ve) || ve.Field != "due_date" {
		t.Fatalf("expected due_date validation error, got %v", err)
	}
}

func TestCreateProjectAssignsID(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	if !strings.HasPrefix(p.ID, "proj-") || len(p.ID) != len("proj-0000") {
		t.Fatalf("unexpected project id %q", p.ID)
	}
	if p.Status != domain.ProjectActive {
		t.Fatalf("new project must be Active, got %s", p.Status)
	}

	got, err := env.Engine.GetProject(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if got.Title != "Launch campaign" || got.DueDate != "2024-06-01" {
		t.Fatalf("stored project mismatch: %+v", got)
	}
}

func TestWorkOrderLifecycleTimeAccounting(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	w, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if w.Status != domain.WorkOrderInProgress || w.CurrentStartTime == nil {
		t.Fatalf("start did not open a stretch: %+v", w)
	}

	env.advance(125 * time.Second)
	w, err = env.Engine.PauseWorkOrder(env.Ctx, w.ID, "worker")
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if w.TotalTimeSeconds != 125 {
		t.Fatalf("expected 125 banked seconds, got %d", w.TotalTimeSeconds)
	}
	if w.Status != domain.WorkOrderOpen || w.CurrentStartTime != nil || w.InProgressActorID != nil {
		t.Fatalf("pause must return to idle Open: %+v", w)
	}

	w, err = env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker")
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	env.advance(40 * time.Second)
	w, err = env.Engine.FinishWorkOrder(env.Ctx, w.ID, "worker")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if w.TotalTimeSeconds != 165 {
		t.Fatalf("expected 165 total seconds, got %d", w.TotalTimeSeconds)
	}
	if w.Status != domain.WorkOrderInQA {
		t.Fatalf("finish must hand off to QA, got %s", w.Status)
	}
	if w.QASubmittedByActorID == nil || *w.QASubmittedByActorID != "worker" {
		t.Fatalf("finish must record the submitter: %+v", w)
	}

	w, err = env.Engine.ApproveWorkOrder(env.Ctx, w.ID, "lead")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if w.Status != domain.WorkOrderApproved {
		t.Fatalf("expected Approved, got %s", w.Status)
	}
	if w.InProgressActorID != nil || w.CurrentStartTime != nil || w.QASubmittedByActorID != nil {
		t.Fatalf("approve must clear working fields: %+v", w)
	}
	if w.TotalTimeSeconds != 165 {
		t.Fatalf("approve must not change banked time, got %d", w.TotalTimeSeconds)
	}
}

func TestDisplayedSecondsDoesNotWrite(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	w, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	env.advance(90 * time.Second)
	if got := env.Engine.DisplayedSeconds(w); got != 90 {
		t.Fatalf("expected displayed 90, got %d", got)
	}

	stored, err := env.Engine.GetWorkOrder(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.TotalTimeSeconds != 0 {
		t.Fatalf("display must not persist time, stored %d", stored.TotalTimeSeconds)
	}
}

func TestStartRespectsPushedTo(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "alice")

	_, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "bob")
	var fe fault.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-assignee, got %v", err)
	}

	got, err := env.Engine.GetWorkOrder(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.WorkOrderOpen {
		t.Fatalf("rejected start must leave the row unchanged, got %s", got.Status)
	}

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "alice"); err != nil {
		t.Fatalf("assignee start: %v", err)
	}
}

func TestStopRequiresWorker(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, err := env.Engine.PauseWorkOrder(env.Ctx, w.ID, "other")
	var fe fault.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-worker pause, got %v", err)
	}
	_, err = env.Engine.FinishWorkOrder(env.Ctx, w.ID, "other")
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-worker finish, got %v", err)
	}
}

func TestQAJudgementAuthorization(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Engine.FinishWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	_, err := env.Engine.ApproveWorkOrder(env.Ctx, w.ID, "worker")
	var fe fault.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-accountable approve, got %v", err)
	}
	_, err = env.Engine.ReworkWorkOrder(env.Ctx, w.ID, "worker")
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-accountable rework, got %v", err)
	}

	// The rejected judgements must not have touched the row.
	got, err := env.Engine.GetWorkOrder(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.WorkOrderInQA {
		t.Fatalf("forbidden judgement must leave the row unchanged, got %s", got.Status)
	}
	if got.QASubmittedByActorID == nil || *got.QASubmittedByActorID != "worker" {
		t.Fatalf("forbidden judgement must keep the QA submitter: %+v", got)
	}

	w, err = env.Engine.ReworkWorkOrder(env.Ctx, w.ID, "lead")
	if err != nil {
		t.Fatalf("rework: %v", err)
	}
	if w.Status != domain.WorkOrderOpen {
		t.Fatalf("rework must return the order to Open, got %s", w.Status)
	}
	if w.QASubmittedByActorID != nil {
		t.Fatalf("rework must clear the QA submitter")
	}

	stored, err := env.Engine.GetWorkOrder(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("re-get: %v", err)
	}
	if stored.Status != domain.WorkOrderOpen {
		t.Fatalf("rework must persist Open, stored %s", stored.Status)
	}

	// An order sent back for rework can be started again.
	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("restart after rework: %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	var it fault.InvalidTransitionError
	if _, err := env.Engine.PauseWorkOrder(env.Ctx, w.ID, "worker"); !errors.As(err, &it) {
		t.Fatalf("pause from Open must be rejected, got %v", err)
	}
	if _, err := env.Engine.ApproveWorkOrder(env.Ctx, w.ID, "lead"); !errors.As(err, &it) {
		t.Fatalf("approve from Open must be rejected, got %v", err)
	}

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); !errors.As(err, &it) {
		t.Fatalf("double start must be rejected, got %v", err)
	}

	got, err := env.Engine.GetWorkOrder(env.Ctx, w.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.WorkOrderInProgress {
		t.Fatalf("rejected transition must leave the row unchanged, got %s", got.Status)
	}
}

func TestMalformedStartTimeIsReportedAsRecordData(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	_, pos, err := env.Store.Find(env.Ctx, domain.CollectionWorkOrders, domain.FieldWorkOrderID, w.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	err = env.Store.Update(env.Ctx, domain.CollectionWorkOrders, pos, map[string]string{
		domain.FieldCurrentStartTime: "not-a-timestamp",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err = env.Engine.PauseWorkOrder(env.Ctx, w.ID, "worker")
	var ue fault.UpstreamError
	if !errors.As(err, &ue) {
		t.Fatalf("expected upstream error for corrupt row, got %v", err)
	}
	if ue.System != "record data" {
		t.Fatalf("corrupt row must not be attributed to the store, got %q", ue.System)
	}

	_, err = env.Engine.CancelWorkOrder(env.Ctx, w.ID, "lead")
	if !errors.As(err, &ue) || ue.System != "record data" {
		t.Fatalf("cancel on corrupt row: %v", err)
	}
}

func TestCancelFlushesRunningTime(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.advance(60 * time.Second)

	_, err := env.Engine.CancelWorkOrder(env.Ctx, w.ID, "stranger")
	var fe fault.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden cancel for stranger, got %v", err)
	}

	w, err = env.Engine.CancelWorkOrder(env.Ctx, w.ID, "lead")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if w.Status != domain.WorkOrderCancelled {
		t.Fatalf("expected Cancelled, got %s", w.Status)
	}
	if w.TotalTimeSeconds != 60 {
		t.Fatalf("cancel must bank the running stretch, got %d", w.TotalTimeSeconds)
	}
	if w.CurrentStartTime != nil || w.InProgressActorID != nil {
		t.Fatalf("cancel must clear working fields: %+v", w)
	}

	var it fault.InvalidTransitionError
	if _, err := env.Engine.CancelWorkOrder(env.Ctx, w.ID, "lead"); !errors.As(err, &it) {
		t.Fatalf("cancel of a terminal order must be rejected, got %v", err)
	}
}

func TestCancelByPushedToActor(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "alice")

	w, err := env.Engine.CancelWorkOrder(env.Ctx, w.ID, "alice")
	if err != nil {
		t.Fatalf("pushed-to cancel: %v", err)
	}
	if w.Status != domain.WorkOrderCancelled {
		t.Fatalf("expected Cancelled, got %s", w.Status)
	}
}

func TestUpdateWorkOrderFields(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "alice")

	w, err := env.Engine.UpdateWorkOrder(env.Ctx, w.ID, engine.WorkOrderUpdateOptions{
		ActorID:         "lead",
		Title:           ptr("Build page v2"),
		PushedToActorID: ptr(""),
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if w.Title != "Build page v2" {
		t.Fatalf("title not updated: %q", w.Title)
	}
	if w.PushedToActorID != nil {
		t.Fatalf("empty push-to must clear the assignment")
	}

	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "anyone"); err != nil {
		t.Fatalf("start after clearing push-to: %v", err)
	}
}

func TestFinishProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")

	_, err := env.Engine.FinishProject(env.Ctx, p.ID, "stranger")
	var fe fault.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden finish, got %v", err)
	}

	p, err = env.Engine.FinishProject(env.Ctx, p.ID, "lead")
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if p.Status != domain.ProjectFinished {
		t.Fatalf("expected Finished, got %s", p.Status)
	}
	if p.DueDate != "2024-06-01" {
		t.Fatalf("finish must not overwrite the due date, got %q", p.DueDate)
	}
	if p.FinishedDate == nil || *p.FinishedDate != "2024-05-01" {
		t.Fatalf("expected finished date 2024-05-01, got %v", p.FinishedDate)
	}

	var it fault.InvalidTransitionError
	if _, err := env.Engine.FinishProject(env.Ctx, p.ID, "lead"); !errors.As(err, &it) {
		t.Fatalf("double finish must be rejected, got %v", err)
	}
	if _, err := env.Engine.UpdateProject(env.Ctx, p.ID, engine.ProjectUpdateOptions{
		ActorID: "lead",
		Title:   ptr("Renamed"),
	}); !errors.As(err, &it) {
		t.Fatalf("edit of a finished project must be rejected, got %v", err)
	}
	if _, err := env.Engine.CreateWorkOrder(env.Ctx, engine.WorkOrderCreateOptions{
		ActorID:   "lead",
		ProjectID: p.ID,
		ThreadRef: "thread-9",
		Title:     "Too late",
	}); !errors.As(err, &it) {
		t.Fatalf("work order under a finished project must be rejected, got %v", err)
	}
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t)
	p1 := env.createProject(t, "lead")
	p2 := env.createProject(t, "lead")
	if _, err := env.Engine.FinishProject(env.Ctx, p2.ID, "lead"); err != nil {
		t.Fatalf("finish: %v", err)
	}

	active, err := env.Engine.ListActiveProjects(env.Ctx)
	if err != nil {
		t.Fatalf("list projects: %v", err)
	}
	if len(active) != 1 || active[0].ID != p1.ID {
		t.Fatalf("expected only %s active, got %+v", p1.ID, active)
	}

	w1 := env.createWorkOrder(t, p1.ID, "")
	env.createWorkOrder(t, p1.ID, "")
	if _, err := env.Engine.StartWorkOrder(env.Ctx, w1.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}

	running, err := env.Engine.ListInProgressWorkOrders(env.Ctx)
	if err != nil {
		t.Fatalf("list work orders: %v", err)
	}
	if len(running) != 1 || running[0].ID != w1.ID {
		t.Fatalf("expected only %s in progress, got %+v", w1.ID, running)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)
	var nf fault.NotFoundError
	if _, err := env.Engine.GetProject(env.Ctx, "proj-0000"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.StartWorkOrder(env.Ctx, "wo-0000-000", "worker"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.CreateWorkOrder(env.Ctx, engine.WorkOrderCreateOptions{
		ActorID:   "lead",
		ProjectID: "proj-0000",
		ThreadRef: "thread-1",
		Title:     "Orphan",
	}); !errors.As(err, &nf) {
		t.Fatalf("expected not found for missing parent, got %v", err)
	}
}

func TestTransitionsEmitEvents(t *testing.T) {
	env := newTestEnv(t)
	p := env.createProject(t, "lead")
	w := env.createWorkOrder(t, p.ID, "")
	if _, err := env.Engine.StartWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("start: %v", err)
	}
	env.advance(10 * time.Second)
	if _, err := env.Engine.PauseWorkOrder(env.Ctx, w.ID, "worker"); err != nil {
		t.Fatalf("pause: %v", err)
	}

	evts, err := events.After(env.Ctx, env.Store, 0, 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	want := []string{"project.created", "workorder.created", "workorder.started", "workorder.paused"}
	if len(evts) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(evts))
	}
	for i, evt := range evts {
		if evt.Type != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], evt.Type)
		}
		if evt.Seq != int64(i+1) {
			t.Fatalf("event %d: expected seq %d, got %d", i, i+1, evt.Seq)
		}
	}
}
