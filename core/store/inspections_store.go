package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"lungsod-rms/core/utils"
)

// InspectionDecision is the engineer verdict applied to an inspection.
// An approval spawns a repair task in the same transaction.
type InspectionDecision struct {
	Status     string // approved or rejected
	AssignedTo *string
	Notes      *string
	RepairTask *RepairTask
	Audit      *AuditEntry
}

type InspectionFilter struct {
	Status string
	Search string
	Limit  int
	Offset int
}

type RepairTaskFilter struct {
	Status       string
	InspectionID int64
	Limit        int
	Offset       int
}

type InspectionsStore interface {
	Get(ctx context.Context, id int64) (*Inspection, error)
	List(ctx context.Context, f InspectionFilter) ([]Inspection, error)
	Decide(ctx context.Context, id int64, expectedVersion int, dec InspectionDecision) (*Inspection, error)
	GetRepairTask(ctx context.Context, id int64) (*RepairTask, error)
	ListRepairTasks(ctx context.Context, f RepairTaskFilter) ([]RepairTask, error)
}

type inspectionsStore struct {
	db      *sql.DB
	formats RegFormats
	logger  *utils.Logger
}

func NewInspectionsStore(db *sql.DB, formats RegFormats, logger *utils.Logger) InspectionsStore {
	return &inspectionsStore{db: db, formats: formats, logger: logger}
}

const inspectionScanColumns = `id, report_id, source_report_id, source_domain, severity, status, title, description,
	location, assigned_to, notes, version, created_at, updated_at`

func scanInspection(scan func(dest ...any) error) (*Inspection, error) {
	var insp Inspection
	var sourceDomain string
	err := scan(&insp.ID, &insp.RegNo, &insp.SourceReportID, &sourceDomain, &insp.Severity, &insp.Status,
		&insp.Title, &insp.Description, &insp.Location, &insp.AssignedTo, &insp.Notes, &insp.Version,
		&insp.CreatedAt, &insp.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	insp.SourceDomain = Domain(sourceDomain)
	return &insp, nil
}

func (s *inspectionsStore) Get(ctx context.Context, id int64) (*Inspection, error) {
	row := s.db.QueryRowContext(ctx, rebind(fmt.Sprintf(
		`SELECT %s FROM lgu_inspections WHERE id=?`, inspectionScanColumns)), id)
	insp, err := scanInspection(row.Scan)
	if err != nil {
		return nil, err
	}
	if insp == nil {
		return nil, ErrNotFound
	}
	return insp, nil
}

func (s *inspectionsStore) List(ctx context.Context, f InspectionFilter) ([]Inspection, error) {
	query := fmt.Sprintf(`SELECT %s FROM lgu_inspections WHERE 1=1`, inspectionScanColumns)
	var args []any
	if f.Status != "" {
		query += " AND status=?"
		args = append(args, f.Status)
	}
	if f.Search != "" {
		query += " AND (title LIKE ? OR report_id LIKE ? OR location LIKE ?)"
		like := "%" + f.Search + "%"
		args = append(args, like, like, like)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Inspection
	for rows.Next() {
		insp, err := scanInspection(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, *insp)
	}
	return res, rows.Err()
}

func (s *inspectionsStore) Decide(ctx context.Context, id int64, expectedVersion int, dec InspectionDecision) (*Inspection, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := utils.NowUTC()
	set := []string{"status=?", "updated_at=?", "version=version+1"}
	args := []any{dec.Status, now}
	if dec.AssignedTo != nil {
		set = append(set, "assigned_to=?")
		args = append(args, *dec.AssignedTo)
	}
	if dec.Notes != nil {
		set = append(set, "notes=?")
		args = append(args, *dec.Notes)
	}
	args = append(args, id, expectedVersion)
	res, err := tx.ExecContext(ctx, rebind(fmt.Sprintf(
		`UPDATE lgu_inspections SET %s WHERE id=? AND version=?`, strings.Join(set, ", "))), args...)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		tx.Rollback()
		var n int
		if err := s.db.QueryRowContext(ctx, rebind(
			`SELECT COUNT(*) FROM lgu_inspections WHERE id=?`), id).Scan(&n); err == nil && n > 0 {
			return nil, ErrConflict
		}
		return nil, ErrNotFound
	}
	if dec.RepairTask != nil {
		task := dec.RepairTask
		if strings.TrimSpace(task.TaskID) == "" {
			seq, err := nextSeqTx(ctx, tx, counterRepairTask, now.Year())
			if err != nil {
				tx.Rollback()
				return nil, err
			}
			task.TaskID = buildRegNo(s.formats.RepairTask, now.Year(), seq)
		}
		if strings.TrimSpace(task.Status) == "" {
			task.Status = StatusPending
		}
		var taskID int64
		err := tx.QueryRowContext(ctx, rebind(`
			INSERT INTO repair_tasks(task_id, inspection_id, inspection_reg_no, title, status, assigned_to, notes, created_at, updated_at)
			VALUES(?,?,?,?,?,?,?,?,?) RETURNING id`),
			task.TaskID, task.InspectionID, task.InspectionRegNo, task.Title, task.Status,
			task.AssignedTo, task.Notes, now, now).Scan(&taskID)
		if err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("create repair task: %w", err)
		}
		task.ID = taskID
		task.CreatedAt = now
		task.UpdatedAt = now
	}
	if dec.Audit != nil {
		if err := insertAudit(ctx, tx, dec.Audit); err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *inspectionsStore) GetRepairTask(ctx context.Context, id int64) (*RepairTask, error) {
	row := s.db.QueryRowContext(ctx, rebind(`
		SELECT id, task_id, inspection_id, inspection_reg_no, title, status, assigned_to, notes, created_at, updated_at
		FROM repair_tasks WHERE id=?`), id)
	var t RepairTask
	err := row.Scan(&t.ID, &t.TaskID, &t.InspectionID, &t.InspectionRegNo, &t.Title, &t.Status,
		&t.AssignedTo, &t.Notes, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (s *inspectionsStore) ListRepairTasks(ctx context.Context, f RepairTaskFilter) ([]RepairTask, error) {
	query := `SELECT id, task_id, inspection_id, inspection_reg_no, title, status, assigned_to, notes, created_at, updated_at
		FROM repair_tasks WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += " AND status=?"
		args = append(args, f.Status)
	}
	if f.InspectionID > 0 {
		query += " AND inspection_id=?"
		args = append(args, f.InspectionID)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []RepairTask
	for rows.Next() {
		var t RepairTask
		if err := rows.Scan(&t.ID, &t.TaskID, &t.InspectionID, &t.InspectionRegNo, &t.Title, &t.Status,
			&t.AssignedTo, &t.Notes, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
