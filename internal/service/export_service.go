package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rahull-prog/iiitnrattendence/internal/models"
	appErrors "github.com/rahull-prog/iiitnrattendence/pkg/errors"
	"github.com/rahull-prog/iiitnrattendence/pkg/export"
)

// ExportFormat selects the rendered artifact for a report download.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

type exportCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type exportRosterReader interface {
	Roster(ctx context.Context, sessionID string) ([]models.RosterEntry, error)
}

// ExportService renders a session's roster as a downloadable report for the
// owning faculty member.
type ExportService struct {
	sessions exportSessionReader
	courses  exportCourseReader
	roster   exportRosterReader
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(sessions exportSessionReader, courses exportCourseReader, roster exportRosterReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		sessions: sessions,
		courses:  courses,
		roster:   roster,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ExportArtifact is a rendered report ready to stream to the client.
type ExportArtifact struct {
	FileName    string
	ContentType string
	Body        []byte
}

// SessionReport renders the session roster in the requested format.
func (s *ExportService) SessionReport(ctx context.Context, facultyID, sessionID string, format ExportFormat) (*ExportArtifact, error) {
	format = ExportFormat(strings.ToLower(string(format)))
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return nil, storageErr(err, "session not found")
	}
	if session.FacultyID != facultyID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session owner can export its report")
	}
	course, err := s.courses.FindByID(ctx, session.CourseID)
	if err != nil {
		return nil, storageErr(err, "course not found")
	}
	roster, err := s.roster.Roster(ctx, sessionID)
	if err != nil {
		return nil, unavailable(err)
	}

	dataset := rosterDataset(roster)
	stamp := session.StartedAt.Format("2006-01-02")
	name := fmt.Sprintf("attendance_%s_%s", course.Code, stamp)

	switch format {
	case ExportFormatPDF:
		title := fmt.Sprintf("%s %s attendance %s", course.Code, course.Name, stamp)
		body, err := s.pdf.Render(dataset, title)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render PDF report")
		}
		return &ExportArtifact{FileName: name + ".pdf", ContentType: "application/pdf", Body: body}, nil
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render CSV report")
		}
		return &ExportArtifact{FileName: name + ".csv", ContentType: "text/csv", Body: body}, nil
	}
}

func rosterDataset(roster []models.RosterEntry) export.Dataset {
	headers := []string{"Roll No", "Name", "Status"}
	rows := make([]map[string]string, 0, len(roster))
	for _, entry := range roster {
		roll := ""
		if entry.StudentRoll != nil {
			roll = *entry.StudentRoll
		}
		status := string(models.AttendanceStatusAbsent)
		if entry.Status != nil {
			status = string(*entry.Status)
		}
		rows = append(rows, map[string]string{
			"Roll No": roll,
			"Name":    entry.StudentName,
			"Status":  status,
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
