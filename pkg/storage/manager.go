package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	errs "xscraper/pkg/errors"
	"xscraper/pkg/logger"
	"xscraper/pkg/timeline"
)

// MIME types attached to export payloads.
const (
	MimeJSON = "application/json"
	MimeCSV  = "text/csv"
)

// DefaultFileNamePattern names artifacts like kepler_tweets_2024-06-01.json.
const DefaultFileNamePattern = "{username}_tweets_{date}.{format}"

const fileDateLayout = "2006-01-02"

// csvColumns is the stable CSV header. Column order is part of the artifact
// contract, new columns go at the end.
var csvColumns = []string{
	"id",
	"type",
	"created_at",
	"text",
	"lang",
	"source",
	"author_id",
	"author_username",
	"author_name",
	"reply_count",
	"retweet_count",
	"like_count",
	"quote_count",
	"view_count",
	"bookmark_count",
}

// RenderRows serializes rows in the given format ("json" or "csv") and
// returns the payload together with its MIME type. A nil slice renders as an
// empty artifact rather than an error.
func RenderRows(rows []timeline.Item, format string) ([]byte, string, error) {
	if rows == nil {
		rows = []timeline.Item{}
	}
	switch format {
	case "json":
		data, err := renderJSON(rows)
		if err != nil {
			return nil, "", errs.NewStorage("failed to render JSON export", err)
		}
		return data, MimeJSON, nil
	case "csv":
		data, err := renderCSV(rows)
		if err != nil {
			return nil, "", errs.NewStorage("failed to render CSV export", err)
		}
		return data, MimeCSV, nil
	default:
		return nil, "", errs.New(errs.ErrorTypeConfig, fmt.Sprintf("unsupported export format: %s", format))
	}
}

// FileName renders the artifact name for a user, format and date. An empty
// pattern falls back to DefaultFileNamePattern. Patterns may contain path
// separators to shard artifacts into subdirectories.
func FileName(pattern, username, format string, now time.Time) string {
	if pattern == "" {
		pattern = DefaultFileNamePattern
	}
	return strings.NewReplacer(
		"{username}", username,
		"{date}", now.Format(fileDateLayout),
		"{format}", format,
	).Replace(pattern)
}

// SummaryName derives the run summary artifact name from an export artifact
// name, kepler_tweets_2024-06-01.json becomes
// kepler_tweets_2024-06-01_summary.json.
func SummaryName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + "_summary.json"
}

// Manager writes export artifacts beneath a base directory.
type Manager struct {
	outputDir string
	logger    logger.Logger
}

// NewManager creates a Manager rooted at outputDir, creating the directory
// if needed. An empty outputDir defaults to ./exports.
func NewManager(outputDir string) (*Manager, error) {
	if outputDir == "" {
		outputDir = "./exports"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, errs.NewStorage("failed to create output directory", err)
	}
	return &Manager{
		outputDir: outputDir,
		logger:    logger.GetLogger(),
	}, nil
}

// OutputDir returns the base directory artifacts are written under.
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Write stores one export payload under the manager's base directory and
// returns the full path. The write is atomic, content lands under a
// temporary name first and is renamed into place.
func (m *Manager) Write(filename string, data []byte, mime string) (string, error) {
	if filename == "" {
		return "", errs.New(errs.ErrorTypeConfig, "export filename must not be empty")
	}
	path := filepath.Join(m.outputDir, filename)
	if err := writeAtomic(path, data); err != nil {
		return "", errs.NewStorage(fmt.Sprintf("failed to write export artifact %s", filename), err)
	}
	m.logger.InfoWithFields("Export artifact written", map[string]interface{}{
		"path":  path,
		"bytes": len(data),
		"mime":  mime,
	})
	return path, nil
}

// WriteSummary stores a run summary as pretty JSON next to the artifact the
// summary describes.
func (m *Manager) WriteSummary(filename string, summary interface{}) (string, error) {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", errs.NewStorage("failed to render run summary", err)
	}
	name := SummaryName(filename)
	path := filepath.Join(m.outputDir, name)
	if err := writeAtomic(path, data); err != nil {
		return "", errs.NewStorage(fmt.Sprintf("failed to write run summary %s", name), err)
	}
	m.logger.DebugWithFields("Run summary written", map[string]interface{}{
		"path": path,
	})
	return path, nil
}

func renderJSON(rows []timeline.Item) ([]byte, error) {
	return json.MarshalIndent(rows, "", "  ")
}

func renderCSV(rows []timeline.Item) ([]byte, error) {
	var buf strings.Builder
	w := csv.NewWriter(&buf)
	if err := w.Write(csvColumns); err != nil {
		return nil, err
	}
	record := make([]string, len(csvColumns))
	for _, row := range rows {
		for i, column := range csvColumns {
			record[i] = cellString(columnValue(row, column))
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// columnValue maps a CSV column to the row field backing it. A few columns
// rename payload fields, like_count is favorite_count on the wire and
// view_count arrives as the views string.
func columnValue(row timeline.Item, column string) any {
	switch column {
	case "author_id":
		return authorField(row, "id")
	case "author_username":
		return authorField(row, "username")
	case "author_name":
		return authorField(row, "name")
	case "like_count":
		return row["favorite_count"]
	case "view_count":
		return row["views"]
	default:
		return row[column]
	}
}

func authorField(row timeline.Item, field string) any {
	author, ok := row["author"].(map[string]any)
	if !ok {
		return nil
	}
	return author[field]
}

// cellString renders one CSV cell. Counts restored from a resume snapshot
// arrive as float64 after the JSON round trip and must still print as
// integers.
func cellString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatInt(int64(value), 10)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}

// writeAtomic writes data to path via a temporary file and rename. Name
// patterns may shard artifacts into subdirectories, so the parent is created
// first.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
