// Package report renders outcome and drift findings as CSV files. The
// engines never format their own results; they hand records to this sink.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/zbxops/zbxtool/internal/drift"
	"github.com/zbxops/zbxtool/internal/outcome"
)

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\s]+`)

// SanitizeFilename strips characters unsafe in report filenames and caps
// the length so group names can be embedded directly.
func SanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "_")
	if len(cleaned) > 100 {
		cleaned = cleaned[:100]
	}
	return cleaned
}

// OutcomesCSV renders an outcome report.
func OutcomesCSV(title string, rep *outcome.Report) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	summary := rep.Summary()
	header := [][]string{
		{"# " + title},
		{"# Generated:", time.Now().Format(time.RFC3339)},
		{"# Succeeded:", fmt.Sprintf("%d", summary.Succeeded)},
		{"# Failed:", fmt.Sprintf("%d", summary.Failed)},
		{""},
		{"entity", "action", "status", "detail", "time"},
	}
	for _, row := range header {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
	}

	for _, rec := range rep.Records() {
		row := []string{rec.EntityKey, rec.Action, string(rec.Status), rec.Detail, rec.Time.Format(time.RFC3339)}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV write error: %w", err)
	}
	return buf.Bytes(), nil
}

// DriftCSV renders host-authored rule findings, one row per rule.
func DriftCSV(rules []drift.Rule) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := [][]string{
		{"# Host-authored alert rules"},
		{"# Generated:", time.Now().Format(time.RFC3339)},
		{"# Rules:", fmt.Sprintf("%d", len(rules))},
		{""},
		{"host", "host_id", "rule_id", "description", "expression", "priority", "enabled", "item_name", "item_key"},
	}
	for _, row := range header {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV header: %w", err)
		}
	}

	for _, r := range rules {
		enabled := "no"
		if r.Enabled {
			enabled = "yes"
		}
		row := []string{r.HostName, r.HostID, r.RuleID, r.Description, r.Expression, r.Priority, enabled, r.ItemName, r.ItemKey}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write CSV row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("CSV write error: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile writes rendered report bytes into dir under a timestamped name
// built from the given stem, and returns the path.
func WriteFile(dir, stem string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.csv", SanitizeFilename(stem), time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
