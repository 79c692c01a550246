package storage

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xscraper/pkg/timeline"
)

var exportDay = time.Date(2024, 6, 1, 15, 30, 0, 0, time.UTC)

func sampleRow() timeline.Item {
	return timeline.Item{
		"id":              "1790000000000000001",
		"type":            "tweet",
		"created_at":      "Sat Jun 01 12:04:05 +0000 2024",
		"text":            "shipping soon, maybe\nwith a newline",
		"lang":            "en",
		"conversation_id": "1790000000000000001",
		"retweet_count":   42,
		"favorite_count":  120,
		"reply_count":     9,
		"quote_count":     3,
		"bookmark_count":  7,
		"views":           "15023",
		"source":          "X Web App",
		"author": map[string]any{
			"id":       "99887766",
			"username": "kepler",
			"name":     "Johannes K.",
		},
	}
}

func TestRenderRowsJSON(t *testing.T) {
	data, mime, err := RenderRows([]timeline.Item{sampleRow()}, "json")
	if err != nil {
		t.Fatalf("RenderRows failed: %v", err)
	}
	if mime != MimeJSON {
		t.Errorf("expected mime %q, got %q", MimeJSON, mime)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("artifact is not valid JSON: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("expected 1 row, got %d", len(decoded))
	}
	if decoded[0]["id"] != "1790000000000000001" {
		t.Errorf("unexpected id: %v", decoded[0]["id"])
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("expected indented JSON output")
	}
}

func TestRenderRowsCSV(t *testing.T) {
	data, mime, err := RenderRows([]timeline.Item{sampleRow()}, "csv")
	if err != nil {
		t.Fatalf("RenderRows failed: %v", err)
	}
	if mime != MimeCSV {
		t.Errorf("expected mime %q, got %q", MimeCSV, mime)
	}

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("artifact is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected header plus 1 row, got %d records", len(records))
	}

	wantHeader := "id,type,created_at,text,lang,source,author_id,author_username,author_name,reply_count,retweet_count,like_count,quote_count,view_count,bookmark_count"
	if got := strings.Join(records[0], ","); got != wantHeader {
		t.Errorf("unexpected header:\n got %s\nwant %s", got, wantHeader)
	}

	wantCells := map[int]string{
		0:  "1790000000000000001",
		1:  "tweet",
		2:  "Sat Jun 01 12:04:05 +0000 2024",
		3:  "shipping soon, maybe\nwith a newline",
		4:  "en",
		5:  "X Web App",
		6:  "99887766",
		7:  "kepler",
		8:  "Johannes K.",
		9:  "9",
		10: "42",
		11: "120",
		12: "3",
		13: "15023",
		14: "7",
	}
	for idx, want := range wantCells {
		if got := records[1][idx]; got != want {
			t.Errorf("column %s: expected %q, got %q", csvColumns[idx], want, got)
		}
	}
}

func TestRenderRowsCSVAfterResumeRoundTrip(t *testing.T) {
	// Rows restored from a resume snapshot went through JSON, so numeric
	// counts come back as float64 and must still render as integers.
	raw, err := json.Marshal([]timeline.Item{sampleRow()})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var restored []timeline.Item
	if err := json.Unmarshal(raw, &restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	data, _, err := RenderRows(restored, "csv")
	if err != nil {
		t.Fatalf("RenderRows failed: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("artifact is not valid CSV: %v", err)
	}
	if got := records[1][10]; got != "42" {
		t.Errorf("retweet_count after round trip: expected 42, got %q", got)
	}
	if got := records[1][11]; got != "120" {
		t.Errorf("like_count after round trip: expected 120, got %q", got)
	}
}

func TestRenderRowsEmpty(t *testing.T) {
	data, _, err := RenderRows(nil, "json")
	if err != nil {
		t.Fatalf("RenderRows failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected empty JSON array, got %q", string(data))
	}

	data, _, err = RenderRows(nil, "csv")
	if err != nil {
		t.Fatalf("RenderRows failed: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("artifact is not valid CSV: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected header only, got %d records", len(records))
	}
}

func TestRenderRowsRejectsBadFormat(t *testing.T) {
	if _, _, err := RenderRows(nil, "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestFileName(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		username string
		format   string
		want     string
	}{
		{"empty pattern uses default", "", "kepler", "json", "kepler_tweets_2024-06-01.json"},
		{"default pattern", DefaultFileNamePattern, "kepler", "csv", "kepler_tweets_2024-06-01.csv"},
		{"sharded pattern", "{date}/{username}.{format}", "kepler", "json", "2024-06-01/kepler.json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FileName(tt.pattern, tt.username, tt.format, exportDay); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestSummaryName(t *testing.T) {
	if got := SummaryName("kepler_tweets_2024-06-01.json"); got != "kepler_tweets_2024-06-01_summary.json" {
		t.Errorf("unexpected summary name: %q", got)
	}
	if got := SummaryName("kepler.csv"); got != "kepler_summary.json" {
		t.Errorf("unexpected summary name: %q", got)
	}
}

func TestManagerWrite(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	data, mime, err := RenderRows([]timeline.Item{sampleRow()}, "json")
	if err != nil {
		t.Fatalf("RenderRows failed: %v", err)
	}
	path, err := m.Write("kepler_tweets_2024-06-01.json", data, mime)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if path != filepath.Join(dir, "kepler_tweets_2024-06-01.json") {
		t.Errorf("unexpected artifact path: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact failed: %v", err)
	}
	if string(content) != string(data) {
		t.Error("artifact content does not match rendered payload")
	}
}

func TestManagerWriteSharded(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	path, err := m.Write("2024-06-01/kepler.json", []byte("[]"), MimeJSON)
	if err != nil {
		t.Fatalf("Write into subdirectory failed: %v", err)
	}
	if path != filepath.Join(dir, "2024-06-01", "kepler.json") {
		t.Errorf("unexpected artifact path: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
}

func TestManagerWriteSummary(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	summary := map[string]any{"rows": 12, "status": "completed"}
	path, err := m.WriteSummary("kepler_tweets_2024-06-01.json", summary)
	if err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}
	if filepath.Base(path) != "kepler_tweets_2024-06-01_summary.json" {
		t.Errorf("unexpected summary path: %s", path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading summary failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(content, &decoded); err != nil {
		t.Fatalf("summary is not valid JSON: %v", err)
	}
	if decoded["status"] != "completed" {
		t.Errorf("unexpected summary content: %v", decoded)
	}
}

func TestManagerWriteEmptyFilename(t *testing.T) {
	m, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := m.Write("", []byte("[]"), MimeJSON); err == nil {
		t.Fatal("expected error for empty filename")
	}
}

func TestNoTempFilesLeftBehind(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if _, err := m.Write("a.json", []byte("[]"), MimeJSON); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := m.WriteSummary("a.json", map[string]int{"rows": 1}); err != nil {
		t.Fatalf("WriteSummary failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("reading output directory failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", entry.Name())
		}
	}
}
