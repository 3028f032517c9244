package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lungsod-rms/core/store"
)

func TestFeedMergesAllSources(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	mustCreate(t, env, store.DomainTransport, &store.Report{Title: "transport item"})
	mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "maintenance item"})
	mustCreate(t, env, store.DomainDamage, &store.Report{Title: "damage item"})

	items, total, err := env.feed.Feed(ctx, store.FeedFilter{})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("total=%d len=%d, want 3/3", total, len(items))
	}
	seen := map[store.Domain]bool{}
	for _, r := range items {
		seen[r.Source] = true
	}
	for _, d := range store.ReportDomains {
		if !seen[d] {
			t.Fatalf("source %s missing from feed", d)
		}
	}
}

// seedInterleaved creates n reports spread round-robin across the three
// tables with strictly decreasing timestamps, so the expected global order is
// exactly creation order.
func seedInterleaved(t *testing.T, env *testEnv, n int) []string {
	t.Helper()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	keys := make([]string, 0, n)
	for i := 0; i < n; i++ {
		d := store.ReportDomains[i%len(store.ReportDomains)]
		r := mustCreate(t, env, d, &store.Report{Title: fmt.Sprintf("row %02d", i)})
		setCreatedAt(t, env.db, d, r.ID, base.Add(-time.Duration(i)*time.Minute))
		keys = append(keys, r.ReportID)
	}
	return keys
}

func TestFeedPaginatesAfterMerge(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	keys := seedInterleaved(t, env, 25)

	items, total, err := env.feed.Feed(ctx, store.FeedFilter{Sort: "latest", Limit: 20, Offset: 10})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if total != 25 {
		t.Fatalf("total = %d, want 25", total)
	}
	// Offset crosses into the tail: only 15 rows remain past position 10.
	if len(items) != 15 {
		t.Fatalf("len = %d, want 15", len(items))
	}
	for i, r := range items {
		if r.ReportID != keys[10+i] {
			t.Fatalf("position %d: got %s, want %s (pagination must follow the merged order)", i, r.ReportID, keys[10+i])
		}
	}
}

func TestFeedOffsetPastEnd(t *testing.T) {
	env := setupEnv(t)
	seedInterleaved(t, env, 5)
	items, total, err := env.feed.Feed(context.Background(), store.FeedFilter{Limit: 10, Offset: 50})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(items) != 0 {
		t.Fatalf("len = %d, want 0", len(items))
	}
}

func TestFeedOldestSort(t *testing.T) {
	env := setupEnv(t)
	keys := seedInterleaved(t, env, 6)
	items, _, err := env.feed.Feed(context.Background(), store.FeedFilter{Sort: "oldest"})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("len = %d, want 6", len(items))
	}
	for i, r := range items {
		if r.ReportID != keys[len(keys)-1-i] {
			t.Fatalf("position %d: got %s, want %s", i, r.ReportID, keys[len(keys)-1-i])
		}
	}
}

func TestFeedSeveritySort(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	mustCreate(t, env, store.DomainTransport, &store.Report{Title: "low", Severity: "low"})
	mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "critical", Severity: "critical"})
	mustCreate(t, env, store.DomainDamage, &store.Report{Title: "medium", Severity: "medium"})

	items, _, err := env.feed.Feed(ctx, store.FeedFilter{Sort: "severity_high"})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	want := []string{"critical", "medium", "low"}
	for i, r := range items {
		if r.Severity != want[i] {
			t.Fatalf("position %d: severity %s, want %s", i, r.Severity, want[i])
		}
	}
}

func TestFeedStatusFilterAcrossSources(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	r1 := mustCreate(t, env, store.DomainTransport, &store.Report{Title: "stays pending"})
	_ = r1
	r2 := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "gets completed"})
	eff := store.TransitionEffect{Mutation: store.ReportMutation{Status: store.StatusCompleted}}
	if _, err := env.reports.ApplyTransition(ctx, store.DomainDamage, r2.ID, r2.Version, eff); err != nil {
		t.Fatalf("transition: %v", err)
	}

	items, total, err := env.feed.Feed(ctx, store.FeedFilter{Status: store.StatusCompleted})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ReportID != r2.ReportID {
		t.Fatalf("completed filter: total=%d len=%d", total, len(items))
	}
}

func TestFeedSearchMatchesBusinessKey(t *testing.T) {
	env := setupEnv(t)
	r := mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "searchable"})
	items, _, err := env.feed.Feed(context.Background(), store.FeedFilter{Search: r.ReportID})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(items) != 1 || items[0].ReportID != r.ReportID {
		t.Fatalf("search by key failed: %d results", len(items))
	}
}

func TestFeedSearchMatchesDescription(t *testing.T) {
	env := setupEnv(t)
	r := mustCreate(t, env, store.DomainTransport, &store.Report{
		Title:       "Blocked lane",
		Description: "fallen acacia tree across both lanes",
	})
	mustCreate(t, env, store.DomainDamage, &store.Report{Title: "unrelated", Description: "cracked pavement"})

	items, total, err := env.feed.Feed(context.Background(), store.FeedFilter{Search: "acacia"})
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ReportID != r.ReportID {
		t.Fatalf("description search: total=%d len=%d", total, len(items))
	}
}

func TestFeedStatsAggregateAcrossSources(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	mustCreate(t, env, store.DomainTransport, &store.Report{Title: "a"})
	mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "b"})
	r := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "c"})
	eff := store.TransitionEffect{Mutation: store.ReportMutation{Status: store.StatusCancelled}}
	if _, err := env.reports.ApplyTransition(ctx, store.DomainDamage, r.ID, r.Version, eff); err != nil {
		t.Fatalf("transition: %v", err)
	}

	stats, err := env.feed.Stats(ctx, store.FeedFilter{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3", stats.Total)
	}
	if stats.ByStatus[store.StatusPending] != 2 || stats.ByStatus[store.StatusCancelled] != 1 {
		t.Fatalf("by_status = %v", stats.ByStatus)
	}
	if stats.BySource[string(store.DomainDamage)] != 1 {
		t.Fatalf("by_source = %v", stats.BySource)
	}
}

func TestFeedStatsFollowFilterIgnoringStatus(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	mustCreate(t, env, store.DomainTransport, &store.Report{Title: "flooded underpass", Severity: "high"})
	mustCreate(t, env, store.DomainMaintenance, &store.Report{Title: "flooded canal", Severity: "low"})
	r := mustCreate(t, env, store.DomainDamage, &store.Report{Title: "flooded barangay road", Severity: "high"})
	mustCreate(t, env, store.DomainDamage, &store.Report{Title: "loose gravel", Severity: "high"})
	eff := store.TransitionEffect{Mutation: store.ReportMutation{Status: store.StatusInProgress}}
	if _, err := env.reports.ApplyTransition(ctx, store.DomainDamage, r.ID, r.Version, eff); err != nil {
		t.Fatalf("transition: %v", err)
	}

	// Search narrows the slice; the status filter must not, so every
	// per-status bucket stays visible.
	stats, err := env.svc.Stats(ctx, store.FeedFilter{Search: "flooded", Status: store.StatusPending})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d, want 3 matching search", stats.Total)
	}
	if stats.ByStatus[store.StatusPending] != 2 || stats.ByStatus[store.StatusInProgress] != 1 {
		t.Fatalf("by_status = %v", stats.ByStatus)
	}
	if stats.BySeverity["high"] != 2 || stats.BySeverity["low"] != 1 {
		t.Fatalf("by_severity = %v", stats.BySeverity)
	}
	if stats.BySource[string(store.DomainDamage)] != 1 {
		t.Fatalf("by_source = %v", stats.BySource)
	}
}
