// Package parallel provides the worker pool that backends use to read and
// copy tile data, and the dirty-range tracker for the shared residency map.
package parallel
