package domain

import "testing"

func workOrderRow() map[string]string {
	return map[string]string{
		FieldWorkOrderID:      "wo-1001-001",
		FieldProjectID:        "proj-1001",
		FieldThreadRef:        "thread-1",
		FieldStatus:           string(WorkOrderOpen),
		FieldTitle:            "Build page",
		FieldTotalTimeSeconds: "125",
		FieldCreatedAt:        "2024-05-01T09:00:00Z",
	}
}

func TestWorkOrderFromRow(t *testing.T) {
	w, err := WorkOrderFromRow(workOrderRow())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if w.TotalTimeSeconds != 125 {
		t.Fatalf("expected 125 seconds, got %d", w.TotalTimeSeconds)
	}
	if w.PushedToActorID != nil || w.CurrentStartTime != nil {
		t.Fatalf("empty fields must decode to nil: %+v", w)
	}
}

func TestWorkOrderFromRowToleratesFloatTotal(t *testing.T) {
	cases := []struct {
		raw  string
		want int64
	}{
		{"125.0", 125},
		{"125.9", 126},
		{"125.5", 126},
	}
	for _, tc := range cases {
		r := workOrderRow()
		r[FieldTotalTimeSeconds] = tc.raw
		w, err := WorkOrderFromRow(r)
		if err != nil {
			t.Fatalf("decode %q: %v", tc.raw, err)
		}
		if w.TotalTimeSeconds != tc.want {
			t.Errorf("total %q: expected %d seconds, got %d", tc.raw, tc.want, w.TotalTimeSeconds)
		}
	}
}

func TestWorkOrderFromRowRejectsBadRows(t *testing.T) {
	r := workOrderRow()
	r[FieldTotalTimeSeconds] = "-5"
	if _, err := WorkOrderFromRow(r); err == nil {
		t.Fatalf("expected rejection of negative total")
	}

	r = workOrderRow()
	r[FieldStatus] = "Paused"
	if _, err := WorkOrderFromRow(r); err == nil {
		t.Fatalf("expected rejection of unknown status")
	}

	r = workOrderRow()
	delete(r, FieldWorkOrderID)
	if _, err := WorkOrderFromRow(r); err == nil {
		t.Fatalf("expected rejection of missing id")
	}
}

func TestProjectRowRoundtrip(t *testing.T) {
	kpi := "CTR > 2%"
	p := Project{
		ID:                 "proj-1001",
		ChannelRef:         "chan-1",
		Status:             ProjectActive,
		Title:              "Launch",
		KPI:                &kpi,
		DueDate:            "2024-06-01",
		AccountableActorID: "lead",
		CreatedAt:          "2024-05-01T09:00:00Z",
	}
	got, err := ProjectFromRow(p.Row())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != p.ID || got.Status != p.Status || got.DueDate != p.DueDate {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
	if got.KPI == nil || *got.KPI != kpi {
		t.Fatalf("kpi lost in roundtrip: %v", got.KPI)
	}
	if got.FinishedDate != nil {
		t.Fatalf("unset finished date must stay nil")
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, s := range []WorkOrderStatus{WorkOrderApproved, WorkOrderCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
	for _, s := range []WorkOrderStatus{WorkOrderOpen, WorkOrderInProgress, WorkOrderInQA, WorkOrderRework} {
		if s.Terminal() {
			t.Errorf("%s must not be terminal", s)
		}
	}
	for _, s := range []WorkOrderStatus{WorkOrderOpen, WorkOrderRework} {
		if !s.Startable() {
			t.Errorf("%s must be startable", s)
		}
	}
	for _, s := range []WorkOrderStatus{WorkOrderInProgress, WorkOrderInQA, WorkOrderApproved, WorkOrderCancelled} {
		if s.Startable() {
			t.Errorf("%s must not be startable", s)
		}
	}
}
