package export

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"mentor-insights-go/internal/types"
)

const sheetName = "Evaluations"

var header = []any{
	"timestamp", "topic", "overall_score",
	"vision_score", "vision_status",
	"prosody_score", "prosody_status",
	"content_score", "content_status",
	"transcript_chars",
}

// History persists one row per evaluation in a workbook. Best-effort
// telemetry: callers log append failures instead of failing the request.
// The mutex serializes workbook access across concurrent requests.
type History struct {
	path string
	mu   sync.Mutex
}

func NewHistory(path string) *History {
	return &History{path: path}
}

// Entry is one recorded evaluation as read back from the workbook.
type Entry struct {
	Timestamp    string  `json:"timestamp"`
	Topic        string  `json:"topic"`
	OverallScore float64 `json:"overall_score"`
	VisionScore  float64 `json:"vision_score"`
	ProsodyScore float64 `json:"prosody_score"`
	ContentScore float64 `json:"content_score"`
}

// Append records one evaluation. The workbook is created on first use.
func (h *History) Append(topic string, report types.EvaluationReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, created, err := h.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	next := len(rows) + 1
	if created {
		if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		next = 2
	}

	row := []any{
		time.Now().UTC().Format(time.RFC3339),
		topic,
		report.OverallScore,
		report.Pipelines.Vision.Score, string(report.Pipelines.Vision.Status),
		report.Pipelines.Prosody.Score, string(report.Pipelines.Prosody.Status),
		report.Pipelines.Content.Score, string(report.Pipelines.Content.Status),
		len(report.Transcript),
	}
	cell, _ := excelize.CoordinatesToCellName(1, next)
	if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	if err := f.SaveAs(h.path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// Recent returns the newest n entries, newest first.
func (h *History) Recent(n int) ([]Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := excelize.OpenFile(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	var out []Entry
	for i := len(rows) - 1; i >= 1 && len(out) < n; i-- {
		r := rows[i]
		e := Entry{}
		if len(r) > 0 {
			e.Timestamp = r[0]
		}
		if len(r) > 1 {
			e.Topic = r[1]
		}
		e.OverallScore = cellFloat(r, 2)
		e.VisionScore = cellFloat(r, 3)
		e.ProsodyScore = cellFloat(r, 5)
		e.ContentScore = cellFloat(r, 7)
		out = append(out, e)
	}
	if out == nil {
		out = []Entry{}
	}
	return out, nil
}

func (h *History) open() (*excelize.File, bool, error) {
	f, err := excelize.OpenFile(h.path)
	if err == nil {
		if idx, _ := f.GetSheetIndex(sheetName); idx < 0 {
			if _, err := f.NewSheet(sheetName); err != nil {
				f.Close()
				return nil, false, fmt.Errorf("create sheet: %w", err)
			}
			return f, true, nil
		}
		return f, false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("open workbook: %w", err)
	}
	f = excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		f.Close()
		return nil, false, fmt.Errorf("create sheet: %w", err)
	}
	return f, true, nil
}

func cellFloat(row []string, idx int) float64 {
	if idx >= len(row) {
		return 0
	}
	v, _ := strconv.ParseFloat(row[idx], 64)
	return v
}
