// Package resource bounds the work a database may push at its storage backend.
//
// A Controller accounts three budgets:
//
//   - cache memory: bytes held by the blob read cache, tracked with a
//     weighted semaphore so a full cache rejects instead of growing.
//   - in-flight requests: a cap on concurrent backend calls.
//   - throughput: a token bucket in bytes per second shared by reads and
//     writes.
//
// A nil *Controller is valid and imposes no limits.
package resource
