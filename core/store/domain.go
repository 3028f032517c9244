package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Domain identifies one physical report table. The four tables share a
// conceptual shape but not an exact schema; the stores normalize the
// differences.
type Domain string

const (
	DomainTransport   Domain = "transportation"
	DomainMaintenance Domain = "maintenance"
	DomainDamage      Domain = "damage"
	DomainInspection  Domain = "inspection"
)

// ReportDomains are the citizen/staff-facing report tables fed into the
// unified view. Inspections are derived records and live outside the feed.
var ReportDomains = []Domain{DomainTransport, DomainMaintenance, DomainDamage}

func (d Domain) Table() string {
	switch d {
	case DomainTransport:
		return "road_transportation_reports"
	case DomainMaintenance:
		return "road_maintenance_reports"
	case DomainDamage:
		return "damage_reports"
	case DomainInspection:
		return "lgu_inspections"
	}
	return ""
}

func (d Domain) DefaultDepartment() string {
	switch d {
	case DomainTransport:
		return "Traffic Management Office"
	case DomainMaintenance:
		return "City Engineering Office"
	case DomainDamage:
		return "City Engineering Office"
	case DomainInspection:
		return "City Engineering Office"
	}
	return ""
}

func (d Domain) DefaultReportType() string {
	switch d {
	case DomainTransport:
		return "traffic"
	case DomainMaintenance:
		return "infrastructure_issue"
	case DomainDamage:
		return "road_damage"
	case DomainInspection:
		return "inspection"
	}
	return ""
}

// ParseDomain accepts the domain name, its table name and the historical
// aliases that appear in form payloads.
func ParseDomain(raw string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "transportation", "transport", "road_transportation_reports", "rtr":
		return DomainTransport, nil
	case "maintenance", "road_maintenance_reports", "mnt":
		return DomainMaintenance, nil
	case "damage", "damage_reports", "dr":
		return DomainDamage, nil
	case "inspection", "inspections", "lgu_inspections":
		return DomainInspection, nil
	}
	return "", fmt.Errorf("unknown report domain %q", raw)
}

// Canonical report statuses. Per-table historical labels are display synonyms
// of these four states.
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

var statusSynonyms = map[string]string{
	"pending":      StatusPending,
	"in_progress":  StatusInProgress,
	"in-progress":  StatusInProgress,
	"under_review": StatusInProgress,
	"completed":    StatusCompleted,
	"approved":     StatusCompleted,
	"fixed":        StatusCompleted,
	"cancelled":    StatusCancelled,
	"canceled":     StatusCancelled,
	"rejected":     StatusCancelled,
}

// CanonicalStatus maps any known label variant to the canonical state, or ""
// when the label is unknown.
func CanonicalStatus(raw string) string {
	return statusSynonyms[strings.ToLower(strings.TrimSpace(raw))]
}

// StatusLabels returns the labels a canonical state is persisted under in the
// given domain. Inspections keep their decision vocabulary in the database.
func StatusLabels(d Domain, canonical string) []string {
	if d == DomainInspection {
		switch canonical {
		case StatusCompleted:
			return []string{"approved"}
		case StatusCancelled:
			return []string{"rejected"}
		}
	}
	switch canonical {
	case StatusPending, StatusInProgress, StatusCompleted, StatusCancelled:
		return []string{canonical}
	}
	return nil
}

// TerminalStatus reports whether the canonical state admits no further
// lifecycle transition.
func TerminalStatus(canonical string) bool {
	return canonical == StatusCompleted || canonical == StatusCancelled
}

var severityRank = map[string]int{
	"low":      1,
	"medium":   2,
	"high":     3,
	"urgent":   4,
	"critical": 4,
}

func ValidSeverity(s string) bool {
	_, ok := severityRank[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func SeverityRank(s string) int {
	return severityRank[strings.ToLower(strings.TrimSpace(s))]
}

// EscalateSeverity returns the next step up, or the same value when already
// at the top.
func EscalateSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return "medium"
	case "medium":
		return "high"
	case "high":
		return "critical"
	}
	return s
}

type Attachment struct {
	Type       string `json:"type"`
	Filename   string `json:"filename"`
	FilePath   string `json:"file_path"`
	UploadedAt string `json:"uploaded_at"`
}

// Report is the normalized projection shared by all report tables. Columns a
// table lacks read back as their zero value (estimation 0, nil coordinates).
type Report struct {
	ID            int64        `json:"id"`
	ReportID      string       `json:"report_id"`
	Source        Domain       `json:"source"`
	ReportType    string       `json:"report_type"`
	Department    string       `json:"department"`
	Severity      string       `json:"severity"`
	Status        string       `json:"status"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Location      string       `json:"location"`
	Latitude      *float64     `json:"latitude,omitempty"`
	Longitude     *float64     `json:"longitude,omitempty"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Estimation    float64      `json:"estimation"`
	CreatedBy     *int64       `json:"created_by,omitempty"`
	ReporterName  string       `json:"reporter_name,omitempty"`
	ReporterEmail string       `json:"reporter_email,omitempty"`
	AssignedTo    string       `json:"assigned_to,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	Version       int          `json:"version"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func attachmentsToJSON(list []Attachment) any {
	if len(list) == 0 {
		return nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil
	}
	return string(b)
}

func parseAttachments(raw string) []Attachment {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var list []Attachment
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}

type Inspection struct {
	ID             int64     `json:"id"`
	RegNo          string    `json:"report_id"`
	SourceReportID string    `json:"source_report_id"`
	SourceDomain   Domain    `json:"source_domain"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	AssignedTo     string    `json:"assigned_to,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	Version        int       `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type RepairTask struct {
	ID              int64     `json:"id"`
	TaskID          string    `json:"task_id"`
	InspectionID    int64     `json:"inspection_id"`
	InspectionRegNo string    `json:"inspection_reg_no"`
	Title           string    `json:"title"`
	Status          string    `json:"status"`
	AssignedTo      string    `json:"assigned_to,omitempty"`
	Notes           string    `json:"notes,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
