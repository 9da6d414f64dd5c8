// Package cache provides a byte-bounded LRU for whole collection blobs.
//
// Keys are blob names. Capacity is counted in bytes of cached values, and
// when a resource.Controller is supplied every cached byte is also reserved
// against its memory budget, so several caches can share one limit.
package cache
