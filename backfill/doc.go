// Package backfill computes embedding vectors for notes stored without one.
//
// The pipeline drains the pending-embedding index in batches: each batch is
// embedded with one bulk call, falling back to per-item retries over a worker
// pool when the bulk call fails. Vectors are normalized to unit length before
// persisting so cosine similarity reduces to a dot product. Items that keep
// failing are skipped for the run and remain pending for the next one.
package backfill
