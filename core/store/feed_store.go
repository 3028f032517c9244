package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// FeedFilter narrows the unified report view. Filters apply inside each
// source branch so pagination always operates on the merged result.
type FeedFilter struct {
	Status   string // canonical
	Type     string // report_type
	Severity string
	Search   string
	Sort     string // latest, oldest, severity_high, severity_low
	Limit    int
	Offset   int
}

// FeedStats aggregates counts across all report sources keyed by
// canonical status.
type FeedStats struct {
	Total      int64            `json:"total"`
	ByStatus   map[string]int64 `json:"by_status"`
	BySource   map[string]int64 `json:"by_source"`
	BySeverity map[string]int64 `json:"by_severity"`
}

type FeedStore interface {
	Feed(ctx context.Context, f FeedFilter) ([]Report, int64, error)
	Stats(ctx context.Context, f FeedFilter) (*FeedStats, error)
}

type feedStore struct {
	db   *sql.DB
	caps *Capabilities
}

func NewFeedStore(db *sql.DB, caps *Capabilities) FeedStore {
	return &feedStore{db: db, caps: caps}
}

// branch builds one UNION ALL arm. Tables missing the estimation column
// project a literal zero so every branch has an identical shape.
func (s *feedStore) branch(d Domain, f FeedFilter, args *[]any) string {
	est := "0 AS estimation"
	if s.caps.HasEstimation(d) {
		est = "estimation"
	}
	q := fmt.Sprintf(`SELECT id, report_id, '%s' AS source, report_type, department, severity, status, title,
		description, location, latitude, longitude, attachments, created_by, reporter_name, reporter_email,
		assigned_to, notes, version, created_at, updated_at, %s FROM %s WHERE 1=1`,
		string(d), est, d.Table())
	if f.Status != "" {
		q += " AND status=?"
		*args = append(*args, f.Status)
	}
	q += feedPredicate(f, args)
	return q
}

// feedPredicate renders the status-independent filters. Stats reuses it so
// the aggregate counts describe the same slice the feed is showing.
func feedPredicate(f FeedFilter, args *[]any) string {
	var q string
	if f.Type != "" {
		q += " AND report_type=?"
		*args = append(*args, f.Type)
	}
	if f.Severity != "" {
		q += " AND severity=?"
		*args = append(*args, strings.ToLower(f.Severity))
	}
	if f.Search != "" {
		q += " AND (title LIKE ? OR description LIKE ? OR report_id LIKE ? OR location LIKE ?)"
		like := "%" + f.Search + "%"
		*args = append(*args, like, like, like, like)
	}
	return q
}

// severityRankExpr orders mixed severity labels consistently across sources.
const severityRankExpr = `CASE severity
	WHEN 'critical' THEN 4 WHEN 'urgent' THEN 4
	WHEN 'high' THEN 3
	WHEN 'medium' THEN 2
	WHEN 'low' THEN 1
	ELSE 0 END`

func feedOrderBy(sort string) string {
	switch sort {
	case "oldest":
		return "ORDER BY created_at ASC, id ASC"
	case "severity_high":
		return fmt.Sprintf("ORDER BY %s DESC, created_at DESC, id DESC", severityRankExpr)
	case "severity_low":
		return fmt.Sprintf("ORDER BY %s ASC, created_at DESC, id DESC", severityRankExpr)
	default:
		return "ORDER BY created_at DESC, id DESC"
	}
}

func (s *feedStore) Feed(ctx context.Context, f FeedFilter) ([]Report, int64, error) {
	var args []any
	branches := make([]string, 0, len(ReportDomains))
	for _, d := range ReportDomains {
		branches = append(branches, s.branch(d, f, &args))
	}
	union := strings.Join(branches, "\nUNION ALL\n")

	// Count the merged set before pagination so offsets past the end
	// still report the true total.
	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS merged", union)
	if err := s.db.QueryRowContext(ctx, rebind(countQuery), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT * FROM (%s) AS merged %s", union, feedOrderBy(f.Sort))
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	} else if f.Offset > 0 {
		if postgresDialect.Load() {
			query += fmt.Sprintf(" OFFSET %d", f.Offset)
		} else {
			query += fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
		}
	}
	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var res []Report
	for rows.Next() {
		r, err := scanFeedRow(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *r)
	}
	return res, total, rows.Err()
}

func scanFeedRow(rows *sql.Rows) (*Report, error) {
	var r Report
	var source string
	var lat, lng sql.NullFloat64
	var attachments sql.NullString
	var createdBy sql.NullInt64
	err := rows.Scan(&r.ID, &r.ReportID, &source, &r.ReportType, &r.Department, &r.Severity, &r.Status,
		&r.Title, &r.Description, &r.Location, &lat, &lng, &attachments, &createdBy,
		&r.ReporterName, &r.ReporterEmail, &r.AssignedTo, &r.Notes, &r.Version,
		&r.CreatedAt, &r.UpdatedAt, &r.Estimation)
	if err != nil {
		return nil, err
	}
	r.Source = Domain(source)
	if lat.Valid {
		r.Latitude = &lat.Float64
	}
	if lng.Valid {
		r.Longitude = &lng.Float64
	}
	if createdBy.Valid {
		r.CreatedBy = &createdBy.Int64
	}
	if attachments.Valid {
		r.Attachments = parseAttachments(attachments.String)
	}
	return &r, nil
}

// Stats aggregates over the same slice as Feed except status, which stays
// unfiltered so the per-status breakdown covers every bucket.
func (s *feedStore) Stats(ctx context.Context, f FeedFilter) (*FeedStats, error) {
	stats := &FeedStats{
		ByStatus:   map[string]int64{},
		BySource:   map[string]int64{},
		BySeverity: map[string]int64{},
	}
	for _, d := range ReportDomains {
		var args []any
		query := fmt.Sprintf(`SELECT status, severity, COUNT(*) FROM %s WHERE 1=1`, d.Table()) +
			feedPredicate(f, &args) + " GROUP BY status, severity"
		rows, err := s.db.QueryContext(ctx, rebind(query), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var status, severity string
			var n int64
			if err := rows.Scan(&status, &severity, &n); err != nil {
				rows.Close()
				return nil, err
			}
			stats.Total += n
			stats.ByStatus[CanonicalStatus(status)] += n
			stats.BySource[string(d)] += n
			stats.BySeverity[strings.ToLower(severity)] += n
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return stats, nil
}
