package tests

import (
	"context"
	"testing"
	"time"

	"lungsod-rms/config"
	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
)

func TestSweeperEscalatesStalePending(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	stale := mustCreate(t, env, store.DomainTransport, &store.Report{Title: "stale", Severity: "medium"})
	setCreatedAt(t, env.db, store.DomainTransport, stale.ID, time.Now().UTC().Add(-100*time.Hour))
	fresh := mustCreate(t, env, store.DomainTransport, &store.Report{Title: "fresh", Severity: "medium"})

	sweeper := reports.NewSweeper(env.reports, env.cfg.Reports, config.SchedulerConfig{}, env.logger)
	before := auditCount(t, env)
	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	got, err := env.reports.GetReport(ctx, store.DomainTransport, stale.ID)
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if got.Severity != "high" {
		t.Fatalf("stale severity = %q, want high", got.Severity)
	}
	if got.Status != store.StatusPending {
		t.Fatalf("escalation must not change status, got %q", got.Status)
	}

	untouched, err := env.reports.GetReport(ctx, store.DomainTransport, fresh.ID)
	if err != nil {
		t.Fatalf("get fresh: %v", err)
	}
	if untouched.Severity != "medium" {
		t.Fatalf("fresh report escalated: %q", untouched.Severity)
	}
	if got := auditCount(t, env); got != before+1 {
		t.Fatalf("escalation must audit once: %d -> %d", before, got)
	}
}

func TestSweeperSkipsCriticalAndNonPending(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	critical := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "already critical", Severity: "critical"})
	setCreatedAt(t, env.db, store.DomainDamage, critical.ID, time.Now().UTC().Add(-200*time.Hour))

	done := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "already handled", Severity: "low"})
	setCreatedAt(t, env.db, store.DomainDamage, done.ID, time.Now().UTC().Add(-200*time.Hour))
	eff := store.TransitionEffect{Mutation: store.ReportMutation{Status: store.StatusCompleted}}
	if _, err := env.reports.ApplyTransition(ctx, store.DomainDamage, done.ID, done.Version, eff); err != nil {
		t.Fatalf("complete: %v", err)
	}

	sweeper := reports.NewSweeper(env.reports, env.cfg.Reports, config.SchedulerConfig{}, env.logger)
	if err := sweeper.RunOnce(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	gotCritical, _ := env.reports.GetReport(ctx, store.DomainDamage, critical.ID)
	if gotCritical.Severity != "critical" {
		t.Fatalf("critical severity changed: %q", gotCritical.Severity)
	}
	gotDone, _ := env.reports.GetReport(ctx, store.DomainDamage, done.ID)
	if gotDone.Severity != "low" {
		t.Fatalf("completed report escalated: %q", gotDone.Severity)
	}
}
