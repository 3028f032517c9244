package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"lungsod-rms/core/utils"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// RegFormats are the business key templates per domain. {year} and
// {seq[:width]} tokens are substituted from the per-(domain, year) counter.
type RegFormats struct {
	Transport   string
	Maintenance string
	Damage      string
	Inspection  string
	RepairTask  string
}

func (f RegFormats) For(d Domain) string {
	switch d {
	case DomainTransport:
		return f.Transport
	case DomainMaintenance:
		return f.Maintenance
	case DomainDamage:
		return f.Damage
	case DomainInspection:
		return f.Inspection
	}
	return ""
}

// ReportMutation describes the field changes a lifecycle transition applies.
// Nil pointers leave the column untouched; an empty Status keeps the current
// one. The business key and created_at are never mutable.
type ReportMutation struct {
	Status     string
	Severity   *string
	AssignedTo *string
	Estimation *float64
	Notes      *string
}

// TransitionEffect is everything a single transition does, applied in one
// transaction: the row mutation (or removal), at most one derived inspection
// and exactly one audit entry.
type TransitionEffect struct {
	Mutation   ReportMutation
	Delete     bool
	Inspection *Inspection
	Audit      *AuditEntry
}

type ReportsStore interface {
	CreateReport(ctx context.Context, d Domain, r *Report) (int64, error)
	GetReport(ctx context.Context, d Domain, id int64) (*Report, error)
	ApplyTransition(ctx context.Context, d Domain, id int64, expectedVersion int, eff TransitionEffect) (*Report, error)
	// ListStalePending returns pending reports created before the cutoff,
	// oldest first, for the escalation sweeper.
	ListStalePending(ctx context.Context, d Domain, cutoff time.Time, limit int) ([]Report, error)
}

type reportsStore struct {
	db      *sql.DB
	caps    *Capabilities
	formats RegFormats
	logger  *utils.Logger
}

func NewReportsStore(db *sql.DB, caps *Capabilities, formats RegFormats, logger *utils.Logger) ReportsStore {
	return &reportsStore{db: db, caps: caps, formats: formats, logger: logger}
}

const reportScanColumns = `id, report_id, report_type, department, severity, status, title, description, location,
	latitude, longitude, attachments, created_by, reporter_name, reporter_email, assigned_to, notes, version,
	created_at, updated_at`

// estimationExpr keeps reads absent-safe: tables without the column project a
// literal zero instead of failing.
func (s *reportsStore) estimationExpr(d Domain) string {
	if s.caps.HasEstimation(d) {
		return "estimation"
	}
	return "0 AS estimation"
}

func (s *reportsStore) CreateReport(ctx context.Context, d Domain, r *Report) (int64, error) {
	if d == DomainInspection {
		return 0, fmt.Errorf("inspections are created by report transitions, not directly")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	now := utils.NowUTC()
	if strings.TrimSpace(r.ReportID) == "" {
		seq, err := nextSeqTx(ctx, tx, string(d), now.Year())
		if err != nil {
			tx.Rollback()
			return 0, err
		}
		r.ReportID = buildRegNo(s.formats.For(d), now.Year(), seq)
	}
	if strings.TrimSpace(r.Severity) == "" {
		r.Severity = "medium"
	}
	if strings.TrimSpace(r.Status) == "" {
		r.Status = StatusPending
	}
	if strings.TrimSpace(r.ReportType) == "" {
		r.ReportType = d.DefaultReportType()
	}
	if strings.TrimSpace(r.Department) == "" {
		r.Department = d.DefaultDepartment()
	}
	if r.Version <= 0 {
		r.Version = 1
	}
	cols := `report_id, report_type, department, severity, status, title, description, location,
		latitude, longitude, attachments, created_by, reporter_name, reporter_email, assigned_to, notes, version,
		created_at, updated_at`
	marks := "?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?"
	args := []any{
		r.ReportID, r.ReportType, r.Department, strings.ToLower(r.Severity), r.Status,
		strings.TrimSpace(r.Title), r.Description, r.Location,
		nullableFloat(r.Latitude), nullableFloat(r.Longitude), attachmentsToJSON(r.Attachments),
		nullableID(r.CreatedBy), r.ReporterName, r.ReporterEmail, r.AssignedTo, r.Notes, r.Version,
		now, now,
	}
	if s.caps.HasEstimation(d) {
		cols += ", estimation"
		marks += ",?"
		args = append(args, r.Estimation)
	} else if r.Estimation != 0 {
		// Degraded write: the value cannot be stored on this deployment.
		if s.logger != nil {
			s.logger.Printf("reports: dropping estimation %.2f, %s has no estimation column", r.Estimation, d.Table())
		}
		r.Estimation = 0
	}
	var id int64
	err = tx.QueryRowContext(ctx, rebind(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES(%s) RETURNING id`, d.Table(), cols, marks)), args...).Scan(&id)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	r.ID = id
	r.Source = d
	r.CreatedAt = now
	r.UpdatedAt = now
	return id, nil
}

func (s *reportsStore) GetReport(ctx context.Context, d Domain, id int64) (*Report, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE id=?`, reportScanColumns, s.estimationExpr(d), d.Table())
	row := s.db.QueryRowContext(ctx, rebind(query), id)
	r, err := scanReport(row.Scan)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	r.Source = d
	return r, nil
}

func (s *reportsStore) ApplyTransition(ctx context.Context, d Domain, id int64, expectedVersion int, eff TransitionEffect) (*Report, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	if eff.Delete {
		res, err := tx.ExecContext(ctx, rebind(fmt.Sprintf(
			`DELETE FROM %s WHERE id=? AND version=?`, d.Table())), id, expectedVersion)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			tx.Rollback()
			return nil, s.missOrConflict(ctx, d, id)
		}
	} else {
		set := []string{"updated_at=?", "version=version+1"}
		args := []any{now}
		if eff.Mutation.Status != "" {
			set = append(set, "status=?")
			args = append(args, eff.Mutation.Status)
		}
		if eff.Mutation.Severity != nil {
			set = append(set, "severity=?")
			args = append(args, strings.ToLower(*eff.Mutation.Severity))
		}
		if eff.Mutation.AssignedTo != nil {
			set = append(set, "assigned_to=?")
			args = append(args, *eff.Mutation.AssignedTo)
		}
		if eff.Mutation.Notes != nil {
			set = append(set, "notes=?")
			args = append(args, *eff.Mutation.Notes)
		}
		if eff.Mutation.Estimation != nil {
			if s.caps.HasEstimation(d) {
				set = append(set, "estimation=?")
				args = append(args, *eff.Mutation.Estimation)
			} else if s.logger != nil {
				s.logger.Printf("reports: dropping estimation update, %s has no estimation column", d.Table())
			}
		}
		args = append(args, id, expectedVersion)
		res, err := tx.ExecContext(ctx, rebind(fmt.Sprintf(
			`UPDATE %s SET %s WHERE id=? AND version=?`, d.Table(), strings.Join(set, ", "))), args...)
		if err != nil {
			tx.Rollback()
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			tx.Rollback()
			return nil, s.missOrConflict(ctx, d, id)
		}
	}
	if eff.Inspection != nil {
		if err := s.insertInspectionTx(ctx, tx, eff.Inspection, now); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if eff.Audit != nil {
		if err := insertAudit(ctx, tx, eff.Audit); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if eff.Delete {
		return nil, nil
	}
	return s.GetReport(ctx, d, id)
}

func (s *reportsStore) missOrConflict(ctx context.Context, d Domain, id int64) error {
	var n int
	if err := s.db.QueryRowContext(ctx, rebind(fmt.Sprintf(
		`SELECT COUNT(*) FROM %s WHERE id=?`, d.Table())), id).Scan(&n); err == nil && n > 0 {
		return ErrConflict
	}
	return ErrNotFound
}

func (s *reportsStore) insertInspectionTx(ctx context.Context, tx *sql.Tx, insp *Inspection, now time.Time) error {
	if strings.TrimSpace(insp.RegNo) == "" {
		seq, err := nextSeqTx(ctx, tx, string(DomainInspection), now.Year())
		if err != nil {
			return err
		}
		insp.RegNo = buildRegNo(s.formats.Inspection, now.Year(), seq)
	}
	if strings.TrimSpace(insp.Status) == "" {
		insp.Status = StatusPending
	}
	if insp.Version <= 0 {
		insp.Version = 1
	}
	var id int64
	err := tx.QueryRowContext(ctx, rebind(`
		INSERT INTO lgu_inspections(report_id, source_report_id, source_domain, severity, status, title, description, location, assigned_to, notes, version, created_at, updated_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`),
		insp.RegNo, insp.SourceReportID, string(insp.SourceDomain), insp.Severity, insp.Status,
		insp.Title, insp.Description, insp.Location, insp.AssignedTo, insp.Notes, insp.Version, now, now).Scan(&id)
	if err != nil {
		return fmt.Errorf("create inspection: %w", err)
	}
	insp.ID = id
	insp.CreatedAt = now
	insp.UpdatedAt = now
	return nil
}

func (s *reportsStore) ListStalePending(ctx context.Context, d Domain, cutoff time.Time, limit int) ([]Report, error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM %s WHERE status=? AND created_at < ? AND severity <> 'critical'
		ORDER BY created_at ASC`, reportScanColumns, s.estimationExpr(d), d.Table())
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, rebind(query), StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Report
	for rows.Next() {
		r, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		r.Source = d
		res = append(res, *r)
	}
	return res, rows.Err()
}

// scanReport scans the reportScanColumns projection plus the trailing
// estimation expression.
func scanReport(scan func(dest ...any) error) (*Report, error) {
	var r Report
	var lat, lng sql.NullFloat64
	var attachments sql.NullString
	var createdBy sql.NullInt64
	err := scan(&r.ID, &r.ReportID, &r.ReportType, &r.Department, &r.Severity, &r.Status, &r.Title,
		&r.Description, &r.Location, &lat, &lng, &attachments, &createdBy, &r.ReporterName,
		&r.ReporterEmail, &r.AssignedTo, &r.Notes, &r.Version, &r.CreatedAt, &r.UpdatedAt, &r.Estimation)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
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

// counterRepairTask namespaces repair task sequences in report_reg_counters
// alongside the report domains.
const counterRepairTask = "repair_task"

func nextSeqTx(ctx context.Context, tx *sql.Tx, key string, year int) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, rebind(`
		INSERT INTO report_reg_counters(domain, year, seq)
		VALUES(?,?,1)
		ON CONFLICT (domain, year)
		DO UPDATE SET seq = report_reg_counters.seq + 1
		RETURNING seq
	`), key, year).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

var seqToken = regexp.MustCompile(`\{seq(?::(\d+))?\}`)

func buildRegNo(format string, year int, seq int64) string {
	if strings.TrimSpace(format) == "" {
		format = "RPT-{year}-{seq:04}"
	}
	out := strings.ReplaceAll(format, "{year}", fmt.Sprintf("%d", year))
	out = seqToken.ReplaceAllStringFunc(out, func(token string) string {
		m := seqToken.FindStringSubmatch(token)
		if len(m) == 2 && m[1] != "" {
			width := 0
			_, _ = fmt.Sscanf(m[1], "%d", &width)
			if width > 0 {
				return fmt.Sprintf("%0*d", width, seq)
			}
		}
		return fmt.Sprintf("%d", seq)
	})
	return out
}

func nullableID(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
