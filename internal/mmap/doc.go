// Package mmap maps collection files read-only into memory.
//
// The local blob store maps a file, copies its bytes into a caller-owned
// slice and unmaps it again, so mappings never outlive a single Get.
//
//	m, err := mmap.Open(path)
//	if err != nil { ... }
//	defer m.Close()
//	data := m.Bytes()
//
// Unix uses mmap(2) through golang.org/x/sys/unix; Windows uses
// CreateFileMapping/MapViewOfFile. Empty files are never mapped.
package mmap
