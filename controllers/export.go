package controllers

import (
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/cppla/deptcms/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// buildSheet writes a header row and the rows into a new workbook.
func buildSheet(sheet string, header []string, rows [][]interface{}) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, err
	}
	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &headerRow); err != nil {
		_ = f.Close()
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		r := row
		if err := f.SetSheetRow(sheet, cell, &r); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	if len(header) > 0 {
		last, _ := excelize.ColumnNumberToName(len(header))
		_ = f.SetColWidth(sheet, "A", last, 20)
		_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
	return f, nil
}

// writeXLSX streams a single sheet workbook as a download.
func writeXLSX(ctx *gin.Context, filename, sheet string, header []string, rows [][]interface{}) {
	f, err := buildSheet(sheet, header, rows)
	if err != nil {
		utils.Sugar.Errorw("build spreadsheet failed", "file", filename, "error", err)
		utils.Error(ctx, http.StatusInternalServerError, 50080, "failed to build export")
		return
	}
	defer f.Close()

	ctx.Header("Content-Type", xlsxContentType)
	ctx.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	ctx.Status(http.StatusOK)
	if _, err := f.WriteTo(ctx.Writer); err != nil {
		utils.Sugar.Warnw("write spreadsheet failed", "file", filename, "error", err)
	}
}
