// Package hash provides the checksum used by the collection file format.
//
// Every stored collection payload carries a CRC32-Castagnoli checksum in its
// header. A mismatch on load is reported as corrupt data rather than being
// decoded.
//
// One-shot:
//
//	sum := hash.CRC32C(payload)
//
// Streaming:
//
//	h := hash.NewCRC32C()
//	h.Write(header)
//	h.Write(body)
//	sum := h.Sum32()
package hash
