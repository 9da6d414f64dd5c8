// Package fs abstracts the filesystem calls made by the local blob store so
// that tests can inject failures.
//
//   - [LocalFS] forwards to the os package and is the production default.
//   - [FaultyFS] wraps another FileSystem and fails writes, syncs, closes,
//     renames or removes for files whose path contains a configured pattern.
//
// The interface has no context parameters: local file operations are not
// interruptible at the syscall level.
package fs
