package deduplication

import (
	"fmt"

	"github.com/steveyegge/dedup/internal/cluster"
	"github.com/steveyegge/dedup/internal/linededup"
)

// NearResult represents the result of near-duplicate document detection
type NearResult struct {
	// Kept lists retained document names in input order, each once.
	// One output file was written per entry.
	Kept []string `json:"kept"`

	// DuplicateOf maps each dropped document to the kept document it was
	// judged a near-duplicate of.
	DuplicateOf map[string]string `json:"duplicate_of"`

	// Similarity holds, for each dropped document, the estimated similarity
	// of the verified pair that absorbed it. With union-find clustering the
	// other member of that pair may not be the DuplicateOf target, but the
	// value always exceeds the threshold.
	Similarity map[string]float64 `json:"similarity"`

	// Pairs lists every verified near-duplicate pair.
	Pairs []cluster.Pair `json:"pairs,omitempty"`

	// Outputs lists the written files, parallel to Kept.
	Outputs []string `json:"outputs"`

	// Statistics about the run
	Stats NearStats `json:"stats"`
}

// NearStats provides metrics about a near-duplicate run
type NearStats struct {
	// TotalDocuments is the number of input documents
	TotalDocuments int `json:"total_documents"`

	// KeptCount is the number of retained documents
	KeptCount int `json:"kept_count"`

	// DuplicateCount is the number of dropped documents
	DuplicateCount int `json:"duplicate_count"`

	// EmptyDocuments counts documents too short to form a single shingle.
	// They are never indexed and always kept.
	EmptyDocuments int `json:"empty_documents"`

	// CandidatesCompared is the number of LSH candidate similarity estimates
	CandidatesCompared int `json:"candidates_compared"`

	// VerifiedPairs is the number of candidates above the threshold
	VerifiedPairs int `json:"verified_pairs"`

	// Buckets is the number of non-empty LSH buckets across all bands
	Buckets int `json:"buckets"`

	// ProcessingTimeMs is the wall time of the run in milliseconds
	ProcessingTimeMs int64 `json:"processing_time_ms"`
}

// KeptSet returns the retained document names as a set.
func (r *NearResult) KeptSet() map[string]struct{} {
	set := make(map[string]struct{}, len(r.Kept))
	for _, name := range r.Kept {
		set[name] = struct{}{}
	}
	return set
}

// Validate checks if the near-duplicate result has valid values
func (r *NearResult) Validate() error {
	if r.Stats.KeptCount != len(r.Kept) {
		return fmt.Errorf("stats.kept_count (%d) does not match kept length (%d)",
			r.Stats.KeptCount, len(r.Kept))
	}
	if r.Stats.DuplicateCount != len(r.DuplicateOf) {
		return fmt.Errorf("stats.duplicate_count (%d) does not match duplicate_of length (%d)",
			r.Stats.DuplicateCount, len(r.DuplicateOf))
	}
	if total := len(r.Kept) + len(r.DuplicateOf); r.Stats.TotalDocuments != total {
		return fmt.Errorf("stats.total_documents (%d) does not match kept + duplicates (%d)",
			r.Stats.TotalDocuments, total)
	}
	if len(r.Outputs) != len(r.Kept) {
		return fmt.Errorf("outputs length (%d) does not match kept length (%d)", len(r.Outputs), len(r.Kept))
	}
	if r.Stats.EmptyDocuments > r.Stats.KeptCount {
		return fmt.Errorf("stats.empty_documents (%d) exceeds kept_count (%d)", r.Stats.EmptyDocuments, r.Stats.KeptCount)
	}
	if r.Stats.VerifiedPairs != len(r.Pairs) {
		return fmt.Errorf("stats.verified_pairs (%d) does not match pairs length (%d)",
			r.Stats.VerifiedPairs, len(r.Pairs))
	}

	kept := make(map[string]bool, len(r.Kept))
	for _, name := range r.Kept {
		if kept[name] {
			return fmt.Errorf("document %s kept twice", name)
		}
		kept[name] = true
	}
	for dup, target := range r.DuplicateOf {
		if kept[dup] {
			return fmt.Errorf("document %s is both kept and a duplicate", dup)
		}
		if !kept[target] {
			return fmt.Errorf("document %s is a duplicate of %s, which was not kept", dup, target)
		}
	}
	return nil
}

// LineResult represents the result of exact-line deduplication
type LineResult struct {
	// Files lists per-file counts in input order.
	Files []linededup.FileStats `json:"files"`

	// Statistics about the run
	Stats LineStats `json:"stats"`
}

// LineStats provides metrics about an exact-line run
type LineStats struct {
	TotalFiles            int    `json:"total_files"`
	TotalLines            int    `json:"total_lines"`
	KeptLines             int    `json:"kept_lines"`
	RemovedLines          int    `json:"removed_lines"`
	DuplicateFingerprints int    `json:"duplicate_fingerprints"`
	Counter               string `json:"counter"`
	ProcessingTimeMs      int64  `json:"processing_time_ms"`
}

// Validate checks if the line result has valid values
func (r *LineResult) Validate() error {
	if r.Stats.TotalFiles != len(r.Files) {
		return fmt.Errorf("stats.total_files (%d) does not match files length (%d)",
			r.Stats.TotalFiles, len(r.Files))
	}
	lines, kept := 0, 0
	for _, f := range r.Files {
		lines += f.Lines
		kept += f.KeptLines
	}
	if r.Stats.TotalLines != lines {
		return fmt.Errorf("stats.total_lines (%d) does not match sum over files (%d)", r.Stats.TotalLines, lines)
	}
	if r.Stats.KeptLines != kept {
		return fmt.Errorf("stats.kept_lines (%d) does not match sum over files (%d)", r.Stats.KeptLines, kept)
	}
	if r.Stats.RemovedLines != lines-kept {
		return fmt.Errorf("stats.removed_lines (%d) does not match total - kept (%d)", r.Stats.RemovedLines, lines-kept)
	}
	return nil
}
