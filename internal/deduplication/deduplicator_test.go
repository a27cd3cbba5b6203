package deduplication

import (
	"testing"

	"github.com/steveyegge/dedup/internal/cluster"
	"github.com/steveyegge/dedup/internal/linededup"
)

func validNearResult() *NearResult {
	return &NearResult{
		Kept:        []string{"a.txt", "c.txt"},
		DuplicateOf: map[string]string{"b.txt": "a.txt"},
		Similarity:  map[string]float64{"b.txt": 0.97},
		Pairs:       []cluster.Pair{{First: "a.txt", Second: "b.txt", Similarity: 0.97}},
		Outputs:     []string{"/out/a.txt", "/out/c.txt"},
		Stats: NearStats{
			TotalDocuments: 3,
			KeptCount:      2,
			DuplicateCount: 1,
			VerifiedPairs:  1,
		},
	}
}

func TestNearResultValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(r *NearResult)
		wantErr bool
	}{
		{"valid result", func(r *NearResult) {}, false},
		{"kept count mismatch", func(r *NearResult) { r.Stats.KeptCount = 3 }, true},
		{"duplicate count mismatch", func(r *NearResult) { r.Stats.DuplicateCount = 0 }, true},
		{"total mismatch", func(r *NearResult) { r.Stats.TotalDocuments = 4 }, true},
		{"outputs mismatch", func(r *NearResult) { r.Outputs = r.Outputs[:1] }, true},
		{"pairs mismatch", func(r *NearResult) { r.Stats.VerifiedPairs = 2 }, true},
		{"too many empty documents", func(r *NearResult) { r.Stats.EmptyDocuments = 3 }, true},
		{
			name: "kept twice",
			mutate: func(r *NearResult) {
				r.Kept = []string{"a.txt", "a.txt"}
			},
			wantErr: true,
		},
		{
			name: "duplicate of dropped document",
			mutate: func(r *NearResult) {
				r.DuplicateOf["b.txt"] = "z.txt"
			},
			wantErr: true,
		},
		{
			name: "document both kept and dropped",
			mutate: func(r *NearResult) {
				r.DuplicateOf = map[string]string{"c.txt": "a.txt"}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := validNearResult()
			tt.mutate(r)
			err := r.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNearResultKeptSet(t *testing.T) {
	set := validNearResult().KeptSet()
	if len(set) != 2 {
		t.Fatalf("KeptSet() has %d entries, want 2", len(set))
	}
	if _, ok := set["c.txt"]; !ok {
		t.Error("KeptSet() missing c.txt")
	}
	if _, ok := set["b.txt"]; ok {
		t.Error("KeptSet() contains dropped b.txt")
	}
}

func TestLineResultValidation(t *testing.T) {
	valid := func() *LineResult {
		return &LineResult{
			Files: []linededup.FileStats{
				{Input: "x.txt", Lines: 4, NonEmpty: 3, KeptLines: 1},
				{Input: "y.txt", Lines: 2, NonEmpty: 2, KeptLines: 2},
			},
			Stats: LineStats{TotalFiles: 2, TotalLines: 6, KeptLines: 3, RemovedLines: 3},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	r := valid()
	r.Stats.TotalFiles = 1
	if err := r.Validate(); err == nil {
		t.Error("expected error for file count mismatch")
	}

	r = valid()
	r.Stats.KeptLines = 4
	if err := r.Validate(); err == nil {
		t.Error("expected error for kept lines mismatch")
	}

	r = valid()
	r.Stats.RemovedLines = 0
	if err := r.Validate(); err == nil {
		t.Error("expected error for removed lines mismatch")
	}
}
