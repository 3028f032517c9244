package reports

import (
	"context"
	"fmt"
	"strings"

	"lungsod-rms/config"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

// Actor is the request-scoped identity every transition is attributed to.
// Handlers build it from the session; nothing below the service layer reads
// ambient state.
type Actor struct {
	UserID      int64
	Username    string
	DisplayName string
	Roles       []string
}

func (a Actor) Name() string {
	if strings.TrimSpace(a.DisplayName) != "" {
		return a.DisplayName
	}
	if strings.TrimSpace(a.Username) != "" {
		return a.Username
	}
	return "system"
}

// Ref addresses one report row: the domain selects the table.
type Ref struct {
	Domain store.Domain
	ID     int64
}

type Service struct {
	reports     store.ReportsStore
	inspections store.InspectionsStore
	feed        store.FeedStore
	audit       store.AuditStore
	caps        *store.Capabilities
	cfg         config.ReportsConfig
	logger      *utils.Logger
}

func NewService(reports store.ReportsStore, inspections store.InspectionsStore, feed store.FeedStore,
	audit store.AuditStore, caps *store.Capabilities, cfg config.ReportsConfig, logger *utils.Logger) *Service {
	return &Service{
		reports:     reports,
		inspections: inspections,
		feed:        feed,
		audit:       audit,
		caps:        caps,
		cfg:         cfg,
		logger:      logger,
	}
}

// CreateInput is the submission surface for new reports.
type CreateInput struct {
	Domain        string             `json:"source"`
	ReportType    string             `json:"report_type"`
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	Location      string             `json:"location"`
	Latitude      *float64           `json:"latitude"`
	Longitude     *float64           `json:"longitude"`
	Severity      string             `json:"severity"`
	Estimation    float64            `json:"estimation"`
	ReporterName  string             `json:"reporter_name"`
	ReporterEmail string             `json:"reporter_email"`
	Attachments   []store.Attachment `json:"attachments"`
}

func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*store.Report, error) {
	domain, err := store.ParseDomain(in.Domain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if domain == store.DomainInspection {
		return nil, fmt.Errorf("%w: inspections are created by report transitions, not directly", ErrValidation)
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if in.Severity != "" && !store.ValidSeverity(in.Severity) {
		return nil, fmt.Errorf("%w: unknown severity %q", ErrValidation, in.Severity)
	}
	if in.Estimation < 0 {
		return nil, fmt.Errorf("%w: estimation cannot be negative", ErrValidation)
	}
	r := &store.Report{
		ReportType:    in.ReportType,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		Location:      in.Location,
		Latitude:      in.Latitude,
		Longitude:     in.Longitude,
		Severity:      in.Severity,
		Estimation:    in.Estimation,
		ReporterName:  in.ReporterName,
		ReporterEmail: in.ReporterEmail,
		Attachments:   in.Attachments,
	}
	if actor.UserID > 0 {
		uid := actor.UserID
		r.CreatedBy = &uid
		if r.ReporterName == "" {
			r.ReporterName = actor.Name()
		}
	}
	if _, err := s.reports.CreateReport(ctx, domain, r); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, actor.Name(),
		fmt.Sprintf("Report %s submitted", r.ReportID),
		store.StatusPending,
		fmt.Sprintf("created %s report #%d (%s)", domain, r.ID, r.ReportID))
	return r, nil
}

// ReportView is the normalized projection: EstimationSupported tells readers
// whether the zero value is stored or synthesized.
type ReportView struct {
	*store.Report
	EstimationSupported bool `json:"estimation_column_exists"`
}

func (s *Service) Get(ctx context.Context, ref Ref) (*ReportView, error) {
	r, err := s.reports.GetReport(ctx, ref.Domain, ref.ID)
	if err != nil {
		return nil, err
	}
	return &ReportView{Report: r, EstimationSupported: s.caps.HasEstimation(ref.Domain)}, nil
}

// Transition validates the action against the state machine and applies it
// atomically: row mutation, derived inspection when approval calls for one,
// and the audit entry all commit together or not at all.
func (s *Service) Transition(ctx context.Context, actor Actor, ref Ref, action Action, p Payload) (*store.Report, error) {
	current, err := s.reports.GetReport(ctx, ref.Domain, ref.ID)
	if err != nil {
		return nil, err
	}
	eff, err := buildEffect(current, action, actor, p)
	if err != nil {
		return nil, err
	}
	updated, err := s.reports.ApplyTransition(ctx, ref.Domain, ref.ID, current.Version, eff)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Printf("reports: %s %s on %s #%d by %s", action, current.ReportID, ref.Domain, ref.ID, actor.Name())
	}
	return updated, nil
}

func (s *Service) Feed(ctx context.Context, f store.FeedFilter) ([]store.Report, int64, error) {
	if f.Status != "" {
		canonical := store.CanonicalStatus(f.Status)
		if canonical == "" {
			return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
		}
		f.Status = canonical
	}
	return s.feed.Feed(ctx, f)
}

// Stats drops the status filter so the breakdown always spans every bucket.
func (s *Service) Stats(ctx context.Context, f store.FeedFilter) (*store.FeedStats, error) {
	f.Status = ""
	return s.feed.Stats(ctx, f)
}

func (s *Service) GetInspection(ctx context.Context, id int64) (*store.Inspection, error) {
	return s.inspections.Get(ctx, id)
}

func (s *Service) ListInspections(ctx context.Context, f store.InspectionFilter) ([]store.Inspection, error) {
	return s.inspections.List(ctx, f)
}

// DecideInspection records the engineer verdict. Approval spawns a repair
// task in the same transaction as the status change and audit entry.
func (s *Service) DecideInspection(ctx context.Context, actor Actor, id int64, approve bool, p Payload) (*store.Inspection, error) {
	insp, err := s.inspections.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if store.TerminalStatus(store.CanonicalStatus(insp.Status)) {
		return nil, fmt.Errorf("%w: inspection %s already decided (%s)", ErrInvalidTransition, insp.RegNo, insp.Status)
	}
	dec := store.InspectionDecision{
		AssignedTo: p.AssignedTo,
		Notes:      p.Notes,
	}
	outcome := "rejected"
	if approve {
		outcome = "approved"
		dec.RepairTask = &store.RepairTask{
			InspectionID:    insp.ID,
			InspectionRegNo: insp.RegNo,
			Title:           "Repair for " + insp.RegNo,
		}
		if p.AssignedTo != nil {
			dec.RepairTask.AssignedTo = *p.AssignedTo
		}
	}
	dec.Status = outcome
	dec.Audit = &store.AuditEntry{
		Title:   fmt.Sprintf("Inspection %s %s", insp.RegNo, outcome),
		Status:  outcome,
		Actor:   actor.Name(),
		Details: fmt.Sprintf("engineer review of inspection #%d (%s) by %s", insp.ID, insp.RegNo, actor.Name()),
	}
	return s.inspections.Decide(ctx, id, insp.Version, dec)
}

func (s *Service) ListRepairTasks(ctx context.Context, f store.RepairTaskFilter) ([]store.RepairTask, error) {
	return s.inspections.ListRepairTasks(ctx, f)
}
