package history

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Maryclair03/Latest-LittleWatch/internal/models"
	"github.com/Maryclair03/Latest-LittleWatch/internal/vitals"

	"github.com/xuri/excelize/v2"
)

const (
	readingsSheet = "Readings"
	summarySheet  = "Summary"
)

// ReadingsHeader 读数表头
var ReadingsHeader = []string{
	"Timestamp",
	"Heart Rate (BPM)",
	"Heart Rate Status",
	"Temperature (°C)",
	"Temperature Status",
	"SpO2 (%)",
	"SpO2 Status",
	"Movement",
	"Alert",
}

var readingsColumnWidths = []float64{
	22, // Timestamp
	16, // Heart Rate
	18, // Heart Rate Status
	16, // Temperature
	18, // Temperature Status
	12, // SpO2
	14, // SpO2 Status
	16, // Movement
	8,  // Alert
}

// ExportXLSX 把历史读数和汇总写成 xlsx
func ExportXLSX(w io.Writer, period models.HistoryPeriod, summary *models.HistorySummary, readings []models.HistoryReading) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(readingsSheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	// 表头
	for col, header := range ReadingsHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(readingsSheet, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(readingsSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	for i, width := range readingsColumnWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(readingsSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 数据从第 2 行开始
	for i, r := range readings {
		row := i + 2
		values := []any{
			formatTimestamp(r.Timestamp),
			numberOrBlank(r.HeartRate),
			string(vitals.ClassifyHeartRate(r.HeartRate).Status),
			numberOrBlank(r.Temperature),
			string(vitals.ClassifyTemperature(r.Temperature).Status),
			numberOrBlank(r.OxygenSaturation),
			string(vitals.ClassifyOxygen(r.OxygenSaturation).Status),
			stringOrBlank(r.MovementStatus),
			yesNo(r.IsAlert),
		}
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(readingsSheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(readingsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze panes: %w", err)
	}

	if err := writeSummary(f, period, summary, len(readings), headerStyle); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSummary(f *excelize.File, period models.HistoryPeriod, summary *models.HistorySummary, exported int, headerStyle int) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Period", string(period)},
		{"Exported Readings", exported},
	}
	if summary != nil {
		rows = append(rows,
			[]any{"Avg Heart Rate (BPM)", numberOrBlank(summary.AvgHeartRate)},
			[]any{"Avg Temperature (°C)", numberOrBlank(summary.AvgTemperature)},
			[]any{"Avg SpO2 (%)", numberOrBlank(summary.AvgOxygenSaturation)},
			[]any{"Total Readings", summary.TotalReadings},
		)
	}

	for i, values := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &values); err != nil {
			return fmt.Errorf("failed to write summary row %d: %w", i+1, err)
		}
	}
	if err := f.SetCellStyle(summarySheet, "A1", "B1", headerStyle); err != nil {
		return fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 24); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(summarySheet, "B", "B", 16)
}

func formatTimestamp(ts models.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.Local().Format("2006-01-02 15:04:05")
}

func numberOrBlank(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func stringOrBlank(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// FormatAverage 汇总均值展示，缺失时显示 "--"
func FormatAverage(v *float64, decimals int) string {
	if v == nil {
		return vitals.Placeholder
	}
	return strconv.FormatFloat(*v, 'f', decimals, 64)
}
