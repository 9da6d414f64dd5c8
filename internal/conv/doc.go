// Package conv provides bounds-checked integer conversions.
//
// The collection file format stores counts and sizes as fixed-width unsigned
// integers. Values coming from callers are converted with these helpers on the
// write path, and values read back from disk are converted on the read path so
// that a corrupted header yields an error instead of a panic or a huge
// allocation.
package conv
