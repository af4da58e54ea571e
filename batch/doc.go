// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package batch implements the update lists that carry tile loads,
// evictions and packed-mip requests from the producer to the upload
// pipeline, and the fixed pool they are allocated from.
//
// An UpdateList moves through
//
//	Free -> Allocated -> Submitted -> PackedMapping -> Uploading -> CopyPending -> Free
//
// skipping PackedMapping for standard loads and going straight from
// Submitted to CopyPending for eviction-only lists. Each state has exactly
// one owning goroutine: the producer owns Allocated, the submit goroutine
// owns Submitted and the fence monitor owns everything after it. The state
// is stored atomically, so publishing a new state hands over every other
// field of the list.
package batch
