package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/repense-api/internal/models"
	appErrors "github.com/noah-isme/repense-api/pkg/errors"
	"github.com/noah-isme/repense-api/pkg/export"
)

// ExportFormat selects the rendered file type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type exportClassStore interface {
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
}

type exportAttendanceStore interface {
	ExportRows(ctx context.Context, classID string) ([]models.AttendanceExportRow, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportFile is a rendered attachment ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders class attendance sheets.
type ExportService struct {
	classes    exportClassStore
	attendance exportAttendanceStore
	csv        datasetRenderer
	pdf        datasetRenderer
	logger     *zap.Logger
	now        func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(classes exportClassStore, attendance exportAttendanceStore, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		classes:    classes,
		attendance: attendance,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		now:        time.Now,
	}
}

// ClassAttendance renders the attendance grid of a class's ativo students.
// Students without any check-in still get a row.
func (s *ExportService) ClassAttendance(ctx context.Context, classID string, format ExportFormat) (*ExportFile, error) {
	var (
		renderer    datasetRenderer
		contentType string
	)
	switch ExportFormat(strings.ToLower(string(format))) {
	case ExportFormatCSV, "":
		format, renderer, contentType = ExportFormatCSV, s.csv, "text/csv; charset=utf-8"
	case ExportFormatPDF:
		format, renderer, contentType = ExportFormatPDF, s.pdf, "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	class, err := s.classes.FindDetailByID(ctx, classID)
	if err != nil {
		return nil, lookupError(err, "class")
	}
	roster, err := s.classes.Roster(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to load roster")
	}
	rows, err := s.attendance.ExportRows(ctx, classID)
	if err != nil {
		return nil, internalError(err, "failed to load attendance")
	}

	dataset := s.buildDataset(class, roster, rows)
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}
	s.logger.Info("attendance exported",
		zap.String("class_id", classID),
		zap.String("format", string(format)),
		zap.Int("students", len(dataset.Rows)),
	)
	return &ExportFile{
		Filename:    fmt.Sprintf("presencas-%s-%s.%s", slug(class.Name), s.now().UTC().Format("20060102"), format),
		ContentType: contentType,
		Data:        payload,
	}, nil
}

func (s *ExportService) buildDataset(class *models.ClassDetail, roster []models.RosterEntry, rows []models.AttendanceExportRow) export.Dataset {
	sessions := class.ClosedSessions
	if class.HasOpenSession {
		sessions++
	}
	marks := map[string]map[int]bool{}
	for _, row := range rows {
		if marks[row.StudentID] == nil {
			marks[row.StudentID] = map[int]bool{}
		}
		marks[row.StudentID][row.SessionNumber] = row.Present
		if row.SessionNumber > sessions {
			sessions = row.SessionNumber
		}
	}

	headers := []string{"Aluno", "Telefone"}
	for n := 1; n <= sessions; n++ {
		headers = append(headers, "Encontro "+strconv.Itoa(n))
	}
	headers = append(headers, "Presenças", "Faltas")

	dataset := export.Dataset{
		Title:   class.Name,
		Meta:    []string{"Grupo: " + string(class.Grupo), fmt.Sprintf("Inscritos: %d/%d", class.NumeroInscritos, class.Capacidade)},
		Headers: headers,
		Rows:    make([]map[string]string, 0, len(roster)),
	}
	if class.TeacherName != nil {
		dataset.Meta = append(dataset.Meta, "Facilitador: "+*class.TeacherName)
	}
	for _, entry := range roster {
		line := map[string]string{"Aluno": entry.StudentName, "Telefone": entry.Phone}
		presences, absences := 0, 0
		for n, present := range marks[entry.StudentID] {
			mark := "F"
			if present {
				mark = "P"
				presences++
			} else {
				absences++
			}
			line["Encontro "+strconv.Itoa(n)] = mark
		}
		line["Presenças"] = strconv.Itoa(presences)
		line["Faltas"] = strconv.Itoa(absences)
		dataset.Rows = append(dataset.Rows, line)
	}
	return dataset
}

func slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	if len(fields) == 0 {
		return "turma"
	}
	return strings.Join(fields, "-")
}
