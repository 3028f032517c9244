package tests

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
)

var staffActor = reports.Actor{UserID: 1, Username: "staff", DisplayName: "LGU Staff"}

func TestCapabilityProbeMatchesSchema(t *testing.T) {
	env := setupEnv(t)
	if env.caps.HasEstimation(store.DomainTransport) {
		t.Fatalf("transport table should not report an estimation column")
	}
	if !env.caps.HasEstimation(store.DomainMaintenance) {
		t.Fatalf("maintenance table should have estimation after migrations")
	}
	if !env.caps.HasEstimation(store.DomainDamage) {
		t.Fatalf("damage table should have estimation")
	}
}

func TestEstimationDroppedOnTableWithoutColumn(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainTransport, &store.Report{
		Title:      "Potholes on the national highway",
		Severity:   "medium",
		Estimation: 25000,
	})
	got, err := env.reports.GetReport(ctx, store.DomainTransport, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Estimation != 0 {
		t.Fatalf("estimation should read back as 0, got %v", got.Estimation)
	}
	view, err := env.svc.Get(ctx, reports.Ref{Domain: store.DomainTransport, ID: r.ID})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if view.EstimationSupported {
		t.Fatalf("view should report estimation as unsupported")
	}
}

func TestEstimationStoredWhereColumnExists(t *testing.T) {
	env := setupEnv(t)
	r := mustCreate(t, env, store.DomainDamage, &store.Report{
		Title:      "Collapsed culvert",
		Severity:   "high",
		Estimation: 180000.50,
	})
	got, err := env.reports.GetReport(context.Background(), store.DomainDamage, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Estimation != 180000.50 {
		t.Fatalf("estimation = %v, want 180000.50", got.Estimation)
	}
}

func TestApproveCompletesPendingAndAudits(t *testing.T) {
	// Concrete end-to-end check: pending transport report with no
	// estimation column, approved, reads back completed with estimation 0.
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainTransport, &store.Report{
		Title:    "Blocked drainage near market",
		Severity: "medium",
	})
	if !strings.HasPrefix(r.ReportID, "RTR-") {
		t.Fatalf("unexpected business key %q", r.ReportID)
	}
	if r.Status != store.StatusPending {
		t.Fatalf("new report status = %q, want pending", r.Status)
	}

	updated, err := env.svc.Transition(ctx, staffActor, reports.Ref{Domain: store.DomainTransport, ID: r.ID},
		reports.ActionApprove, reports.Payload{})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if updated.Status != store.StatusCompleted {
		t.Fatalf("status = %q, want completed", updated.Status)
	}
	if updated.Estimation != 0 {
		t.Fatalf("estimation = %v, want 0", updated.Estimation)
	}
	if updated.Version != r.Version+1 {
		t.Fatalf("version = %d, want %d", updated.Version, r.Version+1)
	}

	entries, err := env.audits.List(ctx, store.AuditFilter{Status: "approved"})
	if err != nil {
		t.Fatalf("audit list: %v", err)
	}
	found := 0
	for _, e := range entries {
		if strings.Contains(e.Title, r.ReportID) {
			found++
			if e.Actor != staffActor.DisplayName {
				t.Fatalf("audit actor = %q, want %q", e.Actor, staffActor.DisplayName)
			}
		}
	}
	if found != 1 {
		t.Fatalf("want exactly one approval audit entry for %s, got %d", r.ReportID, found)
	}
}

func TestTransitionAuditCorrespondence(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	cases := []struct {
		action  reports.Action
		outcome string
	}{
		{reports.ActionReview, store.StatusPending},
		{reports.ActionApprove, "approved"},
		{reports.ActionReject, "rejected"},
	}
	for _, tc := range cases {
		r := mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "audit case " + string(tc.action)})
		before := auditCount(t, env)
		if _, err := env.svc.Transition(ctx, staffActor,
			reports.Ref{Domain: store.DomainMaintenance, ID: r.ID}, tc.action, reports.Payload{}); err != nil {
			t.Fatalf("%s: %v", tc.action, err)
		}
		after := auditCount(t, env)
		if after != before+1 {
			t.Fatalf("%s: audit count %d -> %d, want exactly one new entry", tc.action, before, after)
		}
		entries, err := env.audits.List(ctx, store.AuditFilter{Limit: 1})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 1 || entries[0].Status != tc.outcome {
			t.Fatalf("%s: latest audit status = %q, want %q", tc.action, entries[0].Status, tc.outcome)
		}
	}
}

func TestUndefinedTransitionRejected(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainTransport, &store.Report{Title: "terminal case"})
	ref := reports.Ref{Domain: store.DomainTransport, ID: r.ID}
	if _, err := env.svc.Transition(ctx, staffActor, ref, reports.ActionApprove, reports.Payload{}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	before := auditCount(t, env)
	for _, action := range []reports.Action{reports.ActionApprove, reports.ActionReject, reports.ActionReview, reports.ActionUpdate} {
		_, err := env.svc.Transition(ctx, staffActor, ref, action, reports.Payload{})
		if !errors.Is(err, reports.ErrInvalidTransition) {
			t.Fatalf("%s from completed: err = %v, want ErrInvalidTransition", action, err)
		}
	}
	if got := auditCount(t, env); got != before {
		t.Fatalf("rejected transitions must not write audit entries: %d -> %d", before, got)
	}

	got, err := env.reports.GetReport(ctx, store.DomainTransport, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != store.StatusCompleted {
		t.Fatalf("status changed by rejected transition: %q", got.Status)
	}
}

func TestTransitionNotFound(t *testing.T) {
	env := setupEnv(t)
	_, err := env.svc.Transition(context.Background(), staffActor,
		reports.Ref{Domain: store.DomainDamage, ID: 9999}, reports.ActionApprove, reports.Payload{})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestConcurrentTransitionConflicts(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "race case"})

	eff := store.TransitionEffect{Mutation: store.ReportMutation{Status: store.StatusInProgress}}
	if _, err := env.reports.ApplyTransition(ctx, store.DomainMaintenance, r.ID, r.Version, eff); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	_, err := env.reports.ApplyTransition(ctx, store.DomainMaintenance, r.ID, r.Version, eff)
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("stale version: err = %v, want ErrConflict", err)
	}
}

func TestApproveDamageReportSpawnsInspection(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainDamage, &store.Report{
		Title:    "Washed out shoulder",
		Severity: "high",
		Location: "Brgy. San Isidro",
	})
	if _, err := env.svc.Transition(ctx, staffActor,
		reports.Ref{Domain: store.DomainDamage, ID: r.ID}, reports.ActionApprove, reports.Payload{}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	inspections, err := env.inspections.List(ctx, store.InspectionFilter{})
	if err != nil {
		t.Fatalf("list inspections: %v", err)
	}
	if len(inspections) != 1 {
		t.Fatalf("want exactly one inspection, got %d", len(inspections))
	}
	insp := inspections[0]
	if insp.SourceReportID != r.ReportID {
		t.Fatalf("inspection source = %q, want %q", insp.SourceReportID, r.ReportID)
	}
	if insp.Status != store.StatusPending {
		t.Fatalf("inspection status = %q, want pending", insp.Status)
	}
	if !strings.HasPrefix(insp.RegNo, "LGU-INSP-") {
		t.Fatalf("inspection reg no = %q", insp.RegNo)
	}
}

func TestApproveTransportReportDoesNotSpawnInspection(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainTransport, &store.Report{Title: "No inspection expected"})
	if _, err := env.svc.Transition(ctx, staffActor,
		reports.Ref{Domain: store.DomainTransport, ID: r.ID}, reports.ActionApprove, reports.Payload{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	inspections, err := env.inspections.List(ctx, store.InspectionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(inspections) != 0 {
		t.Fatalf("transport approvals must not create inspections, got %d", len(inspections))
	}
}

func TestEngineerApprovalSpawnsRepairTask(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "Cracked bridge deck", Severity: "critical"})
	if _, err := env.svc.Transition(ctx, staffActor,
		reports.Ref{Domain: store.DomainDamage, ID: r.ID}, reports.ActionApprove, reports.Payload{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	inspections, _ := env.inspections.List(ctx, store.InspectionFilter{})
	if len(inspections) != 1 {
		t.Fatalf("want one inspection, got %d", len(inspections))
	}

	engineer := reports.Actor{UserID: 7, Username: "engineer"}
	assignee := "road crew 2"
	insp, err := env.svc.DecideInspection(ctx, engineer, inspections[0].ID, true, reports.Payload{AssignedTo: &assignee})
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if insp.Status != "approved" {
		t.Fatalf("inspection status = %q, want approved", insp.Status)
	}

	tasks, err := env.inspections.ListRepairTasks(ctx, store.RepairTaskFilter{InspectionID: insp.ID})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("want one repair task, got %d", len(tasks))
	}
	task := tasks[0]
	if !strings.HasPrefix(task.TaskID, "RT-") {
		t.Fatalf("task id = %q", task.TaskID)
	}
	if task.InspectionRegNo != insp.RegNo {
		t.Fatalf("task inspection ref = %q, want %q", task.InspectionRegNo, insp.RegNo)
	}
	if task.Status != store.StatusPending {
		t.Fatalf("task status = %q, want pending", task.Status)
	}

	// A decided inspection takes no further verdicts.
	if _, err := env.svc.DecideInspection(ctx, engineer, insp.ID, false, reports.Payload{}); !errors.Is(err, reports.ErrInvalidTransition) {
		t.Fatalf("second decision: err = %v, want ErrInvalidTransition", err)
	}
}

func TestBusinessKeyImmutableAcrossTransitions(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "Key stability"})
	key := r.ReportID
	ref := reports.Ref{Domain: store.DomainMaintenance, ID: r.ID}

	notes := "crew dispatched"
	steps := []struct {
		action  reports.Action
		payload reports.Payload
	}{
		{reports.ActionReview, reports.Payload{}},
		{reports.ActionUpdate, reports.Payload{Priority: "high", Notes: &notes}},
		{reports.ActionUpdate, reports.Payload{Status: "completed"}},
	}
	for _, st := range steps {
		updated, err := env.svc.Transition(ctx, staffActor, ref, st.action, st.payload)
		if err != nil {
			t.Fatalf("%s: %v", st.action, err)
		}
		if updated.ReportID != key {
			t.Fatalf("%s changed business key %q -> %q", st.action, key, updated.ReportID)
		}
	}
}

func TestSequentialBusinessKeys(t *testing.T) {
	env := setupEnv(t)
	first := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "first"})
	second := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "second"})
	if first.ReportID == second.ReportID {
		t.Fatalf("duplicate business keys: %q", first.ReportID)
	}
	if !strings.HasPrefix(first.ReportID, "DR-") || !strings.HasPrefix(second.ReportID, "DR-") {
		t.Fatalf("unexpected keys %q %q", first.ReportID, second.ReportID)
	}
}

func TestDeleteAlwaysAudits(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainTransport, &store.Report{Title: "to be removed"})
	ref := reports.Ref{Domain: store.DomainTransport, ID: r.ID}
	before := auditCount(t, env)

	if _, err := env.svc.Transition(ctx, staffActor, ref, reports.ActionDelete, reports.Payload{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := auditCount(t, env); got != before+1 {
		t.Fatalf("delete must audit: %d -> %d", before, got)
	}
	if _, err := env.reports.GetReport(ctx, store.DomainTransport, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("report should be gone, err = %v", err)
	}

	entries, _ := env.audits.List(ctx, store.AuditFilter{Limit: 1})
	if len(entries) != 1 || entries[0].Status != "deleted" {
		t.Fatalf("latest audit status = %q, want deleted", entries[0].Status)
	}
}

func TestDeleteDoesNotCascadeToInspections(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "linked by reference"})
	ref := reports.Ref{Domain: store.DomainDamage, ID: r.ID}
	if _, err := env.svc.Transition(ctx, staffActor, ref, reports.ActionApprove, reports.Payload{}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	// Approve is terminal; hard delete bypasses the machine.
	if _, err := env.svc.Transition(ctx, staffActor, ref, reports.ActionDelete, reports.Payload{}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	inspections, err := env.inspections.List(ctx, store.InspectionFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(inspections) != 1 {
		t.Fatalf("inspection should survive report deletion, got %d", len(inspections))
	}
}

func TestUpdateRejectsNegativeEstimation(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainDamage, &store.Report{
		Title:      "Sinkhole on provincial road",
		Severity:   "high",
		Estimation: 75000,
	})
	bad := -500.0
	_, err := env.svc.Transition(ctx, staffActor,
		reports.Ref{Domain: store.DomainDamage, ID: r.ID},
		reports.ActionUpdate, reports.Payload{Estimation: &bad})
	if !errors.Is(err, reports.ErrValidation) {
		t.Fatalf("negative estimation: err = %v, want ErrValidation", err)
	}
	got, err := env.reports.GetReport(ctx, store.DomainDamage, r.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Estimation != 75000 {
		t.Fatalf("estimation = %v, want 75000 untouched", got.Estimation)
	}
	if got.Version != r.Version {
		t.Fatalf("rejected update bumped version %d -> %d", r.Version, got.Version)
	}
}

func TestCreateRejectsInspectionSource(t *testing.T) {
	env := setupEnv(t)
	_, err := env.svc.Create(context.Background(), staffActor, reports.CreateInput{
		Domain: "inspection",
		Title:  "should not be created directly",
	})
	if !errors.Is(err, reports.ErrValidation) {
		t.Fatalf("inspection source: err = %v, want ErrValidation", err)
	}
}

func TestGetLeavesReportUntouched(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainMaintenance, &store.Report{
		Title:      "Repeated reads",
		Severity:   "low",
		Estimation: 1200,
	})
	ref := reports.Ref{Domain: store.DomainMaintenance, ID: r.ID}
	first, err := env.svc.Get(ctx, ref)
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	second, err := env.svc.Get(ctx, ref)
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("consecutive reads differ:\n%+v\n%+v", first, second)
	}
	if second.Version != r.Version {
		t.Fatalf("read changed version %d -> %d", r.Version, second.Version)
	}
}

func TestUpdateWithoutStatusChangeDoesNotAudit(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r := mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "quiet update"})
	before := auditCount(t, env)
	assignee := "maintenance crew"
	updated, err := env.svc.Transition(ctx, staffActor,
		reports.Ref{Domain: store.DomainMaintenance, ID: r.ID},
		reports.ActionUpdate, reports.Payload{AssignedTo: &assignee, Priority: "high"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.AssignedTo != assignee || updated.Severity != "high" {
		t.Fatalf("update not applied: %+v", updated)
	}
	if got := auditCount(t, env); got != before {
		t.Fatalf("field-only update should not audit: %d -> %d", before, got)
	}
}
