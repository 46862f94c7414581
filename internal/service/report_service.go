package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyspot/checkin-api/internal/models"
	appErrors "github.com/studyspot/checkin-api/pkg/errors"
	"github.com/studyspot/checkin-api/pkg/export"
)

type reportVisitRepository interface {
	List(ctx context.Context, filter models.VisitFilter) ([]models.Visit, int, error)
}

// ReportFormat selects the export encoding.
type ReportFormat string

const (
	FormatCSV ReportFormat = "csv"
	FormatPDF ReportFormat = "pdf"
)

// ReportFile is a rendered export ready to stream to the client.
type ReportFile struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ReportService renders visit history exports for staff.
type ReportService struct {
	visits reportVisitRepository
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

// NewReportService constructs the report service.
func NewReportService(visits reportVisitRepository, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		visits: visits,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// VisitReport renders the visits matching the filter as CSV or PDF.
func (s *ReportService) VisitReport(ctx context.Context, filter models.VisitFilter, format ReportFormat) (*ReportFile, error) {
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	visits, _, err := s.visits.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load visits")
	}

	dataset := export.Dataset{
		Headers: []string{"access_code", "checked_in_at", "checked_out_at", "minutes"},
		Rows:    make([]map[string]string, 0, len(visits)),
	}
	for _, v := range visits {
		checkedOut := ""
		minutes := ""
		if v.CheckedOutAt != nil {
			checkedOut = v.CheckedOutAt.Format(time.RFC3339)
			minutes = fmt.Sprintf("%d", int(v.Duration(*v.CheckedOutAt)/time.Minute))
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"access_code":    v.AccessCode,
			"checked_in_at":  v.CheckedInAt.Format(time.RFC3339),
			"checked_out_at": checkedOut,
			"minutes":        minutes,
		})
	}

	stamp := time.Now().UTC().Format("20060102")
	switch format {
	case FormatPDF:
		body, err := s.pdf.Render(dataset, "Visit report")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ReportFile{
			Filename:    fmt.Sprintf("visits-%s.pdf", stamp),
			ContentType: "application/pdf",
			Body:        body,
		}, nil
	default:
		body, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ReportFile{
			Filename:    fmt.Sprintf("visits-%s.csv", stamp),
			ContentType: "text/csv",
			Body:        body,
		}, nil
	}
}
