package service

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/skillswap-api/pkg/export"
)

// ExportFile is a rendered document ready to be streamed to the client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders datasets in the requested format.
type ExportService struct {
	renderers map[export.Format]export.Renderer
	logger    *zap.Logger
	now       Clock
}

// NewExportService constructs an ExportService with CSV and PDF renderers.
func NewExportService(logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		renderers: map[export.Format]export.Renderer{
			export.FormatCSV: export.NewCSVExporter(),
			export.FormatPDF: export.NewPDFExporter(),
		},
		logger: logger,
		now:    defaultClock,
	}
}

// Render produces a named document for the dataset.
func (s *ExportService) Render(format export.Format, baseName string, data export.Dataset) (*ExportFile, error) {
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, validationError(fmt.Errorf("format %s", format), "unsupported export format")
	}
	payload, err := renderer.Render(data)
	if err != nil {
		return nil, internalError(err, "failed to render export")
	}
	filename := fmt.Sprintf("%s_%s.%s", sanitizeFilename(baseName), s.now().Format("20060102_150405"), format)
	s.logger.Debug("export rendered", zap.String("file", filename), zap.Int("rows", len(data.Rows)))
	return &ExportFile{Filename: filename, ContentType: format.ContentType(), Data: payload}, nil
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "export"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := strings.ToLower(replacer.Replace(raw))
	if len(result) > 60 {
		return result[:60]
	}
	return result
}

func formatSlotTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}
