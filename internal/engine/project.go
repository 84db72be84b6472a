package engine

import (
	"context"
	"log"
	"time"

	"orderflow/internal/domain"
	"orderflow/internal/engine/fault"
)

const dateLayout = "2006-01-02"

type ProjectCreateOptions struct {
	ActorID            string
	ChannelRef         string
	Title              string
	Deliverables       string
	KPI                string
	DueDate            string
	AccountableActorID string
}

type ProjectUpdateOptions struct {
	ActorID            string
	Title              *string
	Deliverables       *string
	KPI                *string
	DueDate            *string
	AccountableActorID *string
}

// CreateProject registers a new active project and, when a folder service is
// configured, provisions its working folder. Folder failures do not fail the
// create; the project simply carries no folder reference.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Title == "" {
		return domain.Project{}, fault.ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if opts.ChannelRef == "" {
		return domain.Project{}, fault.ValidationError{Field: "channel_ref", Reason: "must not be empty"}
	}
	if opts.AccountableActorID == "" {
		return domain.Project{}, fault.ValidationError{Field: "accountable_actor_id", Reason: "must not be empty"}
	}
	if opts.DueDate != "" {
		if _, err := time.Parse(dateLayout, opts.DueDate); err != nil {
			return domain.Project{}, fault.ValidationError{Field: "due_date", Reason: "must be YYYY-MM-DD"}
		}
	}

	id, err := e.newProjectID(ctx)
	if err != nil {
		return domain.Project{}, err
	}

	p := domain.Project{
		ID:                 id,
		ChannelRef:         opts.ChannelRef,
		Status:             domain.ProjectActive,
		Title:              opts.Title,
		Deliverables:       opts.Deliverables,
		KPI:                optionalString(opts.KPI),
		DueDate:            opts.DueDate,
		AccountableActorID: opts.AccountableActorID,
		CreatedAt:          e.now().UTC().Format(time.RFC3339),
	}

	if parent := e.activeFolderParent(); parent != "" {
		ref, url, ferr := e.Folders.Create(ctx, id+" "+opts.Title, parent)
		if ferr != nil {
			log.Printf("folders: create for %s failed: %v", id, ferr)
		} else {
			p.FolderRef = optionalString(ref)
			p.FolderURL = optionalString(url)
		}
	}

	if err := e.Store.Append(ctx, domain.CollectionProjects, p.Row()); err != nil {
		return domain.Project{}, fault.UpstreamError{System: "record store", Err: err}
	}

	e.Events.Append(ctx, "project.created", "project", id, opts.ActorID, map[string]any{
		"title":    opts.Title,
		"due_date": opts.DueDate,
		"channel":  opts.ChannelRef,
		"assignee": opts.AccountableActorID,
	})
	return p, nil
}

func (e Engine) GetProject(ctx context.Context, id string) (domain.Project, error) {
	p, _, err := e.getProjectRow(ctx, id)
	return p, err
}

// UpdateProject applies a partial edit to an active project. Only the
// editable header set may change; finished projects are immutable.
func (e Engine) UpdateProject(ctx context.Context, id string, opts ProjectUpdateOptions) (domain.Project, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	p, pos, err := e.getProjectRow(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status == domain.ProjectFinished {
		return domain.Project{}, fault.InvalidTransitionError{Op: "update project", From: string(p.Status)}
	}

	fields := map[string]string{}
	if opts.Title != nil {
		if *opts.Title == "" {
			return domain.Project{}, fault.ValidationError{Field: "title", Reason: "must not be empty"}
		}
		p.Title = *opts.Title
		fields[domain.FieldTitle] = *opts.Title
	}
	if opts.Deliverables != nil {
		p.Deliverables = *opts.Deliverables
		fields[domain.FieldDeliverables] = *opts.Deliverables
	}
	if opts.KPI != nil {
		p.KPI = optionalString(*opts.KPI)
		fields[domain.FieldKPI] = *opts.KPI
	}
	if opts.DueDate != nil {
		if *opts.DueDate != "" {
			if _, perr := time.Parse(dateLayout, *opts.DueDate); perr != nil {
				return domain.Project{}, fault.ValidationError{Field: "due_date", Reason: "must be YYYY-MM-DD"}
			}
		}
		p.DueDate = *opts.DueDate
		fields[domain.FieldDueDate] = *opts.DueDate
	}
	if opts.AccountableActorID != nil {
		if *opts.AccountableActorID == "" {
			return domain.Project{}, fault.ValidationError{Field: "accountable_actor_id", Reason: "must not be empty"}
		}
		p.AccountableActorID = *opts.AccountableActorID
		fields[domain.FieldAccountableActorID] = *opts.AccountableActorID
	}
	if len(fields) == 0 {
		return p, nil
	}

	if err := e.Store.Update(ctx, domain.CollectionProjects, pos, fields); err != nil {
		return domain.Project{}, storeErr(domain.CollectionProjects, id, err)
	}

	e.Events.Append(ctx, "project.updated", "project", id, opts.ActorID, map[string]any{
		"fields": fieldNames(fields),
	})
	return p, nil
}

// FinishProject closes out a project. Only the accountable actor may finish;
// the due date is left untouched and the finish date recorded separately.
// The folder move to the finished area is best-effort.
func (e Engine) FinishProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	unlock := e.locks.lock(id)
	defer unlock()

	p, pos, err := e.getProjectRow(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if p.Status == domain.ProjectFinished {
		return domain.Project{}, fault.InvalidTransitionError{Op: "finish project", From: string(p.Status)}
	}
	if actorID != p.AccountableActorID {
		return domain.Project{}, fault.ForbiddenError{Op: "finish project", ActorID: actorID, Reason: "only the accountable actor may finish a project"}
	}

	finished := e.now().UTC().Format(dateLayout)
	fields := map[string]string{
		domain.FieldStatus:       string(domain.ProjectFinished),
		domain.FieldFinishedDate: finished,
	}
	if err := e.Store.Update(ctx, domain.CollectionProjects, pos, fields); err != nil {
		return domain.Project{}, storeErr(domain.CollectionProjects, id, err)
	}
	p.Status = domain.ProjectFinished
	p.FinishedDate = &finished

	if p.FolderRef != nil {
		active, done := e.activeFolderParent(), e.finishedFolderParent()
		if done != "" {
			if ferr := e.Folders.Move(ctx, *p.FolderRef, done, active); ferr != nil {
				log.Printf("folders: move for %s failed: %v", id, ferr)
			}
		}
	}

	e.Events.Append(ctx, "project.finished", "project", id, actorID, map[string]any{
		"finished_date": finished,
	})
	return p, nil
}

// ListActiveProjects returns all projects still in the Active status.
func (e Engine) ListActiveProjects(ctx context.Context) ([]domain.Project, error) {
	rows, err := e.Store.List(ctx, domain.CollectionProjects)
	if err != nil {
		return nil, fault.UpstreamError{System: "record store", Err: err}
	}
	var out []domain.Project
	for _, row := range rows {
		p, err := domain.ProjectFromRow(row)
		if err != nil {
			return nil, fault.UpstreamError{System: "record store", Err: err}
		}
		if p.Status == domain.ProjectActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (e Engine) activeFolderParent() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Folders.ActiveParent
}

func (e Engine) finishedFolderParent() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Folders.FinishedParent
}

func fieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	return names
}
