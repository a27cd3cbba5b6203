// Package deduplication orchestrates document- and line-level deduplication
// of a text corpus.
//
// # Overview
//
// Two independent algorithms are offered:
//
//  1. Near-duplicate detection (DeduplicateNearDuplicates): documents whose
//     estimated Jaccard similarity exceeds a threshold are collapsed to one
//     retained copy, written unmodified to the output directory.
//  2. Exact-line deduplication (DeduplicateExactLines): every non-empty line
//     whose stripped content occurs more than once anywhere in the corpus is
//     removed from every file, including its first occurrence.
//
// # Near-duplicate pipeline
//
// Documents flow through these stages:
//
//	read -> shingle -> MinHash sign -> LSH insert (build phase)
//	     -> Seal -> LSH query (per document) -> verify -> cluster -> copy
//
// Shingling and signing run on a bounded worker pool. Signatures land in
// index-addressed slots and are inserted into the LSH index in input order,
// so results do not depend on worker scheduling. Documents too short to form
// one shingle are never indexed and always retained.
//
// A candidate is a duplicate when its signature similarity is strictly
// greater than JaccardThreshold. The cluster mode decides what happens next:
//   - greedy: a document is dropped if an earlier retained document matched
//     it directly (not transitive)
//   - union-find: each connected component of verified pairs keeps its
//     earliest document
//
// # Configuration
//
// The defaults match the usual LSH operating point:
//   - NumHashes: 100, NumBands: 10 (10 rows per band)
//   - NgramSize: 5 tokens
//   - JaccardThreshold: 0.8
//   - ClusterMode: greedy
//   - LineCounter: exact (bloom trades a small false-removal rate for memory)
//
// Configuration can be loaded from YAML (LoadConfigFile) and overlaid with
// DEDUP_* environment variables (ApplyEnv, ConfigFromEnv). Every
// configuration error wraps ErrInvalidConfig and is reported by NewPipeline
// before any input is read.
//
// # Reports
//
// With WithStore, each completed run is appended to a storage.Store (the
// SQLite report database in practice): one row per run plus one row per
// document decision or per file. Reports are an audit trail; nothing is read
// back into later runs.
//
// # Output directory
//
// Both operations hold corpus.LockOutputDir on the output directory for the
// whole run, so a second run into the same directory fails with
// corpus.ErrLocked instead of interleaving files. Output files are written to
// a temp name and renamed into place.
//
// # Usage
//
//	cfg, err := deduplication.LoadConfigFile("dedup.yaml")
//	if err != nil {
//	    return err
//	}
//	p, err := deduplication.NewPipeline(cfg, deduplication.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	res, err := p.DeduplicateNearDuplicates(ctx, inputs, outDir)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("kept %d of %d\n", res.Stats.KeptCount, res.Stats.TotalDocuments)
package deduplication
