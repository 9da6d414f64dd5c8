package vecdir

import (
	"fmt"
	"reflect"
)

// Identifier is the set of types usable as record IDs. IDs are stored with a
// fixed width, so only integer kinds are allowed.
type Identifier interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Record is an identifier plus a vector. IDs need not be unique.
type Record[ID Identifier] struct {
	ID     ID
	Vector []float32
}

// Result is a single search hit.
type Result[ID Identifier] struct {
	ID       ID
	Distance float32
	// Handle is the entry's insertion position within the collection.
	Handle int
}

// Shape fixes the vector dimension and the quantized code width of a
// collection. CodeSize*8/Dimension is the number of bits per component.
type Shape struct {
	Dimension int
	CodeSize  int
}

// BitsPerComponent returns CodeSize*8/Dimension, or 0 if the shape does not
// divide evenly.
func (s Shape) BitsPerComponent() int {
	if s.Dimension <= 0 || s.CodeSize <= 0 || (s.CodeSize*8)%s.Dimension != 0 {
		return 0
	}
	return s.CodeSize * 8 / s.Dimension
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dB", s.Dimension, s.CodeSize)
}

// idLayout describes how an ID type is stored.
type idLayout struct {
	kind   reflect.Kind
	width  int
	signed bool
}

func layoutOf[ID Identifier]() idLayout {
	t := reflect.TypeFor[ID]()
	l := idLayout{kind: t.Kind(), width: int(t.Size())}

	switch l.kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		l.signed = true
	}
	// Platform-sized integers are always stored as 8 bytes.
	if l.kind == reflect.Int || l.kind == reflect.Uint {
		l.width = 8
	}
	return l
}

func putID[ID Identifier](dst []byte, id ID, width int) {
	v := uint64(id)
	for i := 0; i < width; i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

func readID[ID Identifier](src []byte, l idLayout) ID {
	var v uint64
	for i := 0; i < l.width; i++ {
		v |= uint64(src[i]) << (8 * i)
	}
	if l.signed {
		shift := 64 - 8*l.width
		return ID(int64(v<<shift) >> shift)
	}
	return ID(v)
}
