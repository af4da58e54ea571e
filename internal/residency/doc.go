// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package residency tracks per-tile reference counts, heap slots and
// residency for one streamed texture, together with the queues that feed
// loads and delayed evictions to the upload pipeline.
package residency
