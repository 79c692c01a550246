package merge

import (
	"testing"
	"time"

	"xscraper/pkg/timeline"
)

func row(id, createdAt string, extra ...string) timeline.Item {
	item := timeline.Item{}
	if id != "" {
		item["id"] = id
	}
	if createdAt != "" {
		item["created_at"] = createdAt
	}
	for _, key := range extra {
		item[key] = "x"
	}
	return item
}

const (
	june1 = "Sat Jun 01 09:00:00 +0000 2024"
	june2 = "Sun Jun 02 09:00:00 +0000 2024"
	june3 = "Mon Jun 03 09:00:00 +0000 2024"
)

func TestMergeEmptyPreviousSkipsStats(t *testing.T) {
	merged, info := Merge([]timeline.Item{row("2", june2), row("3", june3)}, nil)

	if info != nil {
		t.Errorf("expected nil info when nothing was merged, got %+v", info)
	}
	if len(merged) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(merged))
	}
	if merged[0].ID() != "3" || merged[1].ID() != "2" {
		t.Errorf("rows not sorted newest first: %s, %s", merged[0].ID(), merged[1].ID())
	}
}

func TestMergeDisjointSets(t *testing.T) {
	newItems := []timeline.Item{row("3", june3), row("2", june2)}
	previous := []timeline.Item{row("1", june1)}

	merged, info := Merge(newItems, previous)

	if info == nil {
		t.Fatal("expected merge stats")
	}
	if info.DuplicatesRemoved != 0 {
		t.Errorf("disjoint sets produced %d duplicates", info.DuplicatesRemoved)
	}
	if info.FinalCount != info.PreviousCount+info.NewCount {
		t.Errorf("final %d != previous %d + new %d", info.FinalCount, info.PreviousCount, info.NewCount)
	}
	if len(merged) != 3 {
		t.Errorf("expected 3 rows, got %d", len(merged))
	}
}

func TestMergeCountsOverlap(t *testing.T) {
	newItems := []timeline.Item{row("1", june1), row("2", june2), row("3", june3)}
	previous := []timeline.Item{row("2", june2), row("3", june3), row("4", june1)}

	merged, info := Merge(newItems, previous)

	if info.DuplicatesRemoved != 2 {
		t.Errorf("expected 2 duplicates, got %d", info.DuplicatesRemoved)
	}
	if info.FinalCount != 4 {
		t.Errorf("expected 4 final rows, got %d", info.FinalCount)
	}
	if got := info.PreviousCount + info.NewCount - info.DuplicatesRemoved; got != info.FinalCount {
		t.Errorf("count arithmetic broken: %d != %d", got, info.FinalCount)
	}
	if len(merged) != info.FinalCount {
		t.Errorf("slice length %d disagrees with FinalCount %d", len(merged), info.FinalCount)
	}
}

func TestMergeRicherDuplicateWins(t *testing.T) {
	t.Run("previous side richer", func(t *testing.T) {
		newItems := []timeline.Item{row("1", june1)}
		previous := []timeline.Item{row("1", june1, "text", "lang")}

		merged, info := Merge(newItems, previous)

		if info.DuplicatesRemoved != 1 {
			t.Fatalf("expected 1 duplicate, got %d", info.DuplicatesRemoved)
		}
		if _, ok := merged[0]["lang"]; !ok {
			t.Error("richer previous row was discarded")
		}
	})

	t.Run("new side richer", func(t *testing.T) {
		newItems := []timeline.Item{row("1", june1, "text", "lang", "views")}
		previous := []timeline.Item{row("1", june1)}

		merged, _ := Merge(newItems, previous)

		if _, ok := merged[0]["views"]; !ok {
			t.Error("richer new row was discarded")
		}
	})

	t.Run("tie keeps new side", func(t *testing.T) {
		newItems := []timeline.Item{row("1", june1, "views")}
		previous := []timeline.Item{row("1", june1, "lang")}

		merged, _ := Merge(newItems, previous)

		if _, ok := merged[0]["views"]; !ok {
			t.Error("tie did not keep the new-side row")
		}
	})
}

func TestMergeSortsNewestFirst(t *testing.T) {
	newItems := []timeline.Item{row("1", june1), row("3", june3)}
	previous := []timeline.Item{row("2", june2)}

	merged, _ := Merge(newItems, previous)

	for i := 1; i < len(merged); i++ {
		prev := ParseCreatedAt(merged[i-1].CreatedAt())
		cur := ParseCreatedAt(merged[i].CreatedAt())
		if cur.After(prev) {
			t.Errorf("rows out of order at %d: %s before %s", i, merged[i-1].ID(), merged[i].ID())
		}
	}
}

func TestMergeUnparsableDatesSortOldest(t *testing.T) {
	newItems := []timeline.Item{row("bad", "not a date"), row("good", june1)}

	merged, _ := Merge(newItems, []timeline.Item{row("old", june2)})

	if merged[len(merged)-1].ID() != "bad" {
		t.Errorf("unparsable date should sort last, got order ending in %s", merged[len(merged)-1].ID())
	}
}

func TestMergeFallbackKeysDoNotCollide(t *testing.T) {
	// Distinct id-less rows must all survive.
	newItems := []timeline.Item{
		{"text": "first", "created_at": june1},
		{"text": "second", "created_at": june1},
	}
	previous := []timeline.Item{
		{"text": "third", "created_at": june2},
	}

	merged, info := Merge(newItems, previous)

	if info.DuplicatesRemoved != 0 {
		t.Errorf("id-less rows collided: %d duplicates", info.DuplicatesRemoved)
	}
	if len(merged) != 3 {
		t.Errorf("expected 3 rows, got %d", len(merged))
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	newItems := []timeline.Item{row("2", june2), row("1", june1)}
	previous := []timeline.Item{row("1", june1, "lang")}

	Merge(newItems, previous)

	if newItems[0].ID() != "2" || newItems[1].ID() != "1" {
		t.Error("new input slice was reordered")
	}
	if len(newItems[1]) != 2 {
		t.Errorf("new input row was modified: %v", newItems[1])
	}
	if len(previous[0]) != 3 {
		t.Errorf("previous input row was modified: %v", previous[0])
	}
}

func TestSortByDateReturnsFreshSlice(t *testing.T) {
	items := []timeline.Item{row("1", june1), row("2", june2)}

	sorted := SortByDate(items)

	if sorted[0].ID() != "2" {
		t.Errorf("expected newest first, got %s", sorted[0].ID())
	}
	if items[0].ID() != "1" {
		t.Error("input slice was reordered")
	}
}

func TestParseCreatedAt(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{
			name:  "provider format",
			input: "Mon Jun 03 10:00:00 +0000 2024",
			want:  time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "rfc3339",
			input: "2024-06-03T10:00:00Z",
			want:  time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		},
		{
			name:  "garbage",
			input: "yesterday-ish",
			want:  time.Unix(0, 0).UTC(),
		},
		{
			name:  "empty",
			input: "",
			want:  time.Unix(0, 0).UTC(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCreatedAt(tt.input); !got.Equal(tt.want) {
				t.Errorf("ParseCreatedAt(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
