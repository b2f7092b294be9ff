// internal/export/export.go

// Package export writes result-store snapshots to disk so a watch session
// can be inspected outside the running process.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/leader001a/ro-market-crawler-sub002/internal/monitor"
	"github.com/leader001a/ro-market-crawler-sub002/internal/utils"
)

var listingHeaders = []string{
	"Item", "Server", "Refine", "Grade", "Slots", "Quantity",
	"Price", "Shop", "Map", "Yesterday Avg", "Week Avg", "Refreshed",
}

// Exporter writes snapshots into a target directory.
type Exporter struct {
	dir    string
	logger utils.Logger
	now    func() time.Time
}

// NewExporter creates an exporter rooted at dir.
func NewExporter(dir string, logger utils.Logger) *Exporter {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Exporter{dir: dir, logger: logger, now: time.Now}
}

// ExportXLSX writes the snapshot as a spreadsheet and returns the file path.
func (e *Exporter) ExportXLSX(results map[monitor.Key]monitor.MonitorResult) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Listings"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create header style: %w", err)
	}

	for i, h := range listingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return "", fmt.Errorf("failed to write header: %w", err)
		}
	}
	lastCol, _ := excelize.ColumnNumberToName(len(listingHeaders))
	if err := f.SetCellStyle(sheet, "A1", lastCol+"1", headerStyle); err != nil {
		return "", fmt.Errorf("failed to style header: %w", err)
	}

	row := 2
	for _, key := range sortedKeys(results) {
		res := results[key]
		for _, l := range res.Listings {
			values := []interface{}{
				l.DisplayName,
				l.ServerName,
				l.Refine,
				string(l.Grade),
				l.SlotCount,
				l.Quantity,
				l.Price,
				l.ShopName,
				l.MapName,
				yesterdayAvg(l),
				weekAvg(l),
				res.RefreshedAt.Format("2006-01-02 15:04:05"),
			}
			for i, v := range values {
				cell, _ := excelize.CoordinatesToCellName(i+1, row)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return "", fmt.Errorf("failed to write row %d: %w", row, err)
				}
			}
			row++
		}
	}

	if row > 2 {
		if err := f.AutoFilter(sheet, fmt.Sprintf("A1:%s%d", lastCol, row-1), nil); err != nil {
			e.logger.Warnf("auto filter failed: %v", err)
		}
	}

	path := filepath.Join(e.dir, e.now().Format("listings_20060102_150405")+".xlsx")
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	e.logger.Infof("exported %d listing rows to %s", row-2, path)
	return path, nil
}

type jsonSnapshot struct {
	ExportedAt time.Time      `json:"exportedAt"`
	Items      []jsonItemView `json:"items"`
}

type jsonItemView struct {
	Name        string                  `json:"name"`
	Server      int                     `json:"server"`
	RefreshedAt time.Time               `json:"refreshedAt"`
	Error       string                  `json:"error,omitempty"`
	Listings    []monitor.ResultListing `json:"listings"`
}

// ExportJSON writes the snapshot as pretty-printed JSON and returns the
// file path.
func (e *Exporter) ExportJSON(results map[monitor.Key]monitor.MonitorResult) (string, error) {
	if err := os.MkdirAll(e.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	snap := jsonSnapshot{ExportedAt: e.now()}
	for _, key := range sortedKeys(results) {
		res := results[key]
		snap.Items = append(snap.Items, jsonItemView{
			Name:        key.Name,
			Server:      int(key.Server),
			RefreshedAt: res.RefreshedAt,
			Error:       res.Error,
			Listings:    res.Listings,
		})
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := filepath.Join(e.dir, e.now().Format("listings_20060102_150405")+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	e.logger.Infof("exported %d items to %s", len(snap.Items), path)
	return path, nil
}

func sortedKeys(results map[monitor.Key]monitor.MonitorResult) []monitor.Key {
	keys := make([]monitor.Key, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Server < keys[j].Server
	})
	return keys
}

func yesterdayAvg(l monitor.ResultListing) interface{} {
	if l.Stats == nil {
		return ""
	}
	return l.Stats.YesterdayAvg
}

func weekAvg(l monitor.ResultListing) interface{} {
	if l.Stats == nil {
		return ""
	}
	return l.Stats.WeekAvg
}
