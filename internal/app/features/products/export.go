// internal/app/features/products/export.go
package products

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dalemusser/productcatalog/httputil"
	"github.com/dalemusser/productcatalog/internal/domain/models"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	exportSheet = "Products"
	xlsxType    = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeaders = []string{"ID", "Name", "Position", "Type", "Description", "Selling price"}

func exportRow(p models.Product) []any {
	return []any{p.ID.Hex(), p.Name, p.Position, string(p.Type), p.Description, p.SellingPrice}
}

func (h *Handler) exportXLSX(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.All(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	f, err := buildWorkbook(items)
	if err != nil {
		h.logger.Error("build products workbook", zap.Error(err))
		httputil.JSONError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}
	defer f.Close()

	setAttachment(w, xlsxType, exportFilename("xlsx"))
	if err := f.Write(w); err != nil {
		h.logger.Warn("write products workbook", zap.Error(err))
	}
}

func (h *Handler) exportCSV(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.All(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}

	setAttachment(w, "text/csv; charset=utf-8", exportFilename("csv"))
	if err := writeCSV(w, items); err != nil {
		h.logger.Warn("write products csv", zap.Error(err))
	}
}

// buildWorkbook lays out one sheet: a bold, frozen header row, then one row
// per product with the price formatted to two decimals.
func buildWorkbook(items []models.Product) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, err
	}

	for i, hdr := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, hdr); err != nil {
			f.Close()
			return nil, err
		}
	}
	for r, p := range items {
		for c, v := range exportRow(p) {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(exportSheet, cell, v); err != nil {
				f.Close()
				return nil, err
			}
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "#000000", Style: 1},
		},
	})
	if err != nil {
		f.Close()
		return nil, err
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(exportHeaders), 1)
	_ = f.SetCellStyle(exportSheet, "A1", lastHeader, headerStyle)

	if len(items) > 0 {
		priceFmt := "0.00"
		priceStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &priceFmt})
		if err == nil {
			end, _ := excelize.CoordinatesToCellName(len(exportHeaders), len(items)+1)
			_ = f.SetCellStyle(exportSheet, "F2", end, priceStyle)
		}
	}

	_ = f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	for col, width := range map[string]float64{"A": 26, "B": 30, "C": 20, "D": 12, "E": 50, "F": 14} {
		_ = f.SetColWidth(exportSheet, col, col, width)
	}
	return f, nil
}

// writeCSV writes the header and one record per product.
func writeCSV(w io.Writer, items []models.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeaders); err != nil {
		return err
	}
	for _, p := range items {
		rec := []string{
			p.ID.Hex(), p.Name, p.Position, string(p.Type), p.Description,
			strconv.FormatFloat(p.SellingPrice, 'f', 2, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func setAttachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
}

func exportFilename(ext string) string {
	return "products-" + time.Now().UTC().Format("20060102") + "." + ext
}
