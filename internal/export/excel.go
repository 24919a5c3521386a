// Package export 风险登记册、许可证登记册 Excel 导出
package export

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"saffy-workflow/internal/domain"
	"saffy-workflow/internal/risk"
)

// 工作表名
const (
	RiskSheet    = "Risk Register"
	SummarySheet = "Summary"
	PermitSheet  = "Permit Register"
)

// RiskRegisterHeader 风险登记册表头
var RiskRegisterHeader = []string{
	"Item ID", "Process", "Hazard", "Hazard Type",
	"Before F", "Before S", "Before Level", "Before Grade",
	"Engineering Controls", "Administrative Controls", "PPE",
	"After F", "After S", "After Level", "After Grade",
	"Responsible", "Target Date", "Status",
}

// PermitRegisterHeader 许可证登记册表头
var PermitRegisterHeader = []string{
	"Permit Number", "Type", "Title", "Location", "Priority", "Status",
	"Planned Start", "Planned End", "Requester", "Current Stage", "Conditions",
}

type sheet struct {
	f      *excelize.File
	name   string
	header int
}

func newWorkbook(sheetName string, headers []string, widths []float64) (*sheet, error) {
	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	s := &sheet{f: f, name: sheetName}
	if err := s.writeHeader(headers, widths); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *sheet) headerStyle() (int, error) {
	if s.header != 0 {
		return s.header, nil
	}
	id, err := s.f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}
	s.header = id
	return id, nil
}

func (s *sheet) writeHeader(headers []string, widths []float64) error {
	style, err := s.headerStyle()
	if err != nil {
		return err
	}
	for i, h := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := s.f.SetCellValue(s.name, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := s.f.SetCellStyle(s.name, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		if i < len(widths) {
			col, err := excelize.ColumnNumberToName(i + 1)
			if err != nil {
				return fmt.Errorf("failed to convert column number: %w", err)
			}
			if err := s.f.SetColWidth(s.name, col, col, widths[i]); err != nil {
				return fmt.Errorf("failed to set column width: %w", err)
			}
		}
	}
	return nil
}

func (s *sheet) writeRow(row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := s.f.SetSheetRow(s.name, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func (s *sheet) bytes() ([]byte, error) {
	defer s.f.Close()
	var buf bytes.Buffer
	if err := s.f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// RiskRegister 生成风险登记册（含等级汇总表），矩阵等级按输入重新计算
func RiskRegister(items []*domain.RiskAssessmentItem) ([]byte, error) {
	widths := []float64{20, 30, 40, 14, 10, 10, 12, 12, 30, 30, 24, 10, 10, 12, 12, 18, 14, 12}
	s, err := newWorkbook(RiskSheet, RiskRegisterHeader, widths)
	if err != nil {
		return nil, err
	}

	for i, it := range items {
		before, err := it.Before.Score()
		if err != nil {
			s.f.Close()
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		after, err := it.After.Score()
		if err != nil {
			s.f.Close()
			return nil, fmt.Errorf("item %s: %w", it.ID, err)
		}
		target := ""
		if it.TargetDate != nil {
			target = it.TargetDate.Format("2006-01-02")
		}
		row := []any{
			it.ID, it.Process, it.HazardDescription, string(it.HazardType),
			it.Before.Frequency, it.Before.Severity, before.Level, string(before.Grade),
			strings.Join(it.Controls.Engineering, "; "),
			strings.Join(it.Controls.Administrative, "; "),
			strings.Join(it.Controls.PPE, "; "),
			it.After.Frequency, it.After.Severity, after.Level, string(after.Grade),
			it.ResponsiblePerson, target, string(it.Status),
		}
		if err := s.writeRow(i+2, row); err != nil {
			s.f.Close()
			return nil, err
		}
	}

	summary, err := domain.SummarizeRiskItems(items)
	if err != nil {
		s.f.Close()
		return nil, err
	}
	if _, err := s.f.NewSheet(SummarySheet); err != nil {
		s.f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	sum := &sheet{f: s.f, name: SummarySheet, header: s.header}
	if err := sum.writeHeader([]string{"Grade", "Count"}, []float64{14, 10}); err != nil {
		s.f.Close()
		return nil, err
	}
	row := 2
	for _, g := range []risk.Grade{risk.GradeCritical, risk.GradeHigh, risk.GradeMedium, risk.GradeLow} {
		if err := sum.writeRow(row, []any{string(g), summary.ByGrade[g]}); err != nil {
			s.f.Close()
			return nil, err
		}
		row++
	}
	for _, r := range [][]any{{"total", summary.Total}, {"completed", summary.Completed}} {
		if err := sum.writeRow(row, r); err != nil {
			s.f.Close()
			return nil, err
		}
		row++
	}
	return s.bytes()
}

// PermitRegister 生成许可证登记册；状态按 now 投影（expired）
func PermitRegister(permits []*domain.WorkPermit, now time.Time) ([]byte, error) {
	widths := []float64{16, 18, 36, 24, 10, 14, 20, 20, 20, 20, 40}
	s, err := newWorkbook(PermitSheet, PermitRegisterHeader, widths)
	if err != nil {
		return nil, err
	}
	for i, p := range permits {
		stage := ""
		if idx := domain.CurrentStageIndex(p.Approvals); idx >= 0 {
			stage = p.Approvals[idx].Stage
		}
		requester := p.Requester.Name
		if requester == "" {
			requester = p.Requester.ID
		}
		row := []any{
			p.PermitNumber, string(p.Type), p.Title, p.Location, string(p.Priority),
			string(p.EffectiveStatus(now)),
			p.PlannedStart.Format(time.RFC3339), p.PlannedEnd.Format(time.RFC3339),
			requester, stage, strings.Join(p.ApprovedConditions(), "; "),
		}
		if err := s.writeRow(i+2, row); err != nil {
			s.f.Close()
			return nil, err
		}
	}
	return s.bytes()
}
