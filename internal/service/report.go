package service

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"hotel-sync/internal/domain"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// occupancyReportHeader 入住报表表头
var occupancyReportHeader = []string{
	"Room Number",
	"Type",
	"Status",
	"Price Per Night",
	"Max Guests",
	"Current Guests",
	"Occupants",
	"Earliest Check-In",
}

// OccupancyReport 导出入住情况 Excel
func (h *Handler) OccupancyReport(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.engine.Rooms(r.Context())
	if err != nil {
		h.logger.Error("failed to build occupancy report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	data, err := generateOccupancyExcel(rooms)
	if err != nil {
		h.logger.Error("failed to render occupancy report", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to build report")
		return
	}

	filename := fmt.Sprintf("occupancy_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(data)
}

// generateOccupancyExcel 生成入住报表 Excel 文件
func generateOccupancyExcel(rooms []*domain.Room) ([]byte, error) {
	f := excelize.NewFile()

	sheetName := "Occupancy"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range occupancyReportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}

	columnWidths := []float64{15, 12, 12, 16, 12, 15, 40, 22}
	for i := range occupancyReportHeader {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, col, col, columnWidths[i]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	for rowIdx, room := range rooms {
		row := rowIdx + 2
		occupants := ""
		var earliest *time.Time
		for i, g := range room.Guests {
			if i > 0 {
				occupants += ", "
			}
			occupants += g.FirstName + " " + g.LastName
			if g.CheckInDate != nil && (earliest == nil || g.CheckInDate.Before(*earliest)) {
				earliest = g.CheckInDate
			}
		}
		checkIn := ""
		if earliest != nil {
			checkIn = earliest.Format("2006-01-02 15:04")
		}

		values := []any{
			room.RoomNumber,
			string(room.RoomType),
			string(room.Status),
			room.PricePerNight,
			room.MaxGuests,
			room.CurrentGuestsCount,
			occupants,
			checkIn,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to convert coordinates: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell %s: %w", cell, err)
			}
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
