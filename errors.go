package vecdir

import (
	"errors"
	"fmt"

	"github.com/hupe1980/vecdir/blobstore"
	"github.com/hupe1980/vecdir/quantization"
)

var (
	// ErrCollectionExists is returned when creating a collection whose name
	// is already registered.
	ErrCollectionExists = errors.New("vecdir: collection already exists")

	// ErrCollectionNotFound is returned for names that are not registered.
	ErrCollectionNotFound = errors.New("vecdir: collection not found")

	// ErrCorruptData is returned when a blob cannot be decoded as a
	// collection.
	ErrCorruptData = errors.New("vecdir: corrupt collection data")

	// ErrTypeMismatch is returned when a persisted collection has a different
	// ID type or shape than requested. See TypeMismatchError.
	ErrTypeMismatch = errors.New("vecdir: collection type mismatch")

	// ErrQuantizationConfig is returned when a Shape cannot be quantized.
	ErrQuantizationConfig = errors.New("vecdir: invalid quantization config")

	// ErrStorage wraps errors from the blob store.
	ErrStorage = errors.New("vecdir: storage error")

	// ErrInvalidConfig is returned by Config.Validate.
	ErrInvalidConfig = errors.New("vecdir: invalid config")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("vecdir: k must be positive")

	// ErrInvalidName is returned for empty or overlong collection names.
	ErrInvalidName = errors.New("vecdir: invalid collection name")

	// ErrInvalidVector is returned for vectors containing NaN or an infinity.
	ErrInvalidVector = errors.New("vecdir: vector contains a non-finite component")

	// ErrClosed is returned by every Database operation after Close.
	ErrClosed = errors.New("vecdir: database closed")

	// ErrCollectionFull is returned when an insert would exceed 2^32-1 entries.
	ErrCollectionFull = errors.New("vecdir: collection is full")

	// ErrOutOfRange is returned for handles outside the collection.
	ErrOutOfRange = errors.New("vecdir: handle out of range")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vecdir: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// TypeMismatchError reports which persisted property differs from the
// requested one. It matches ErrTypeMismatch with errors.Is.
type TypeMismatchError struct {
	Field string
	Want  string
	Got   string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("vecdir: collection type mismatch: %s is %s, requested %s", e.Field, e.Got, e.Want)
}

// Is reports whether target is ErrTypeMismatch.
func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

func mismatch(field string, want, got any) error {
	return &TypeMismatchError{Field: field, Want: fmt.Sprint(want), Got: fmt.Sprint(got)}
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptData, fmt.Sprintf(format, args...))
}

// translateError maps package-level errors to the vecdir kinds.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, quantization.ErrInvalidCodeSize):
		return fmt.Errorf("%w: %w", ErrQuantizationConfig, err)
	case errors.Is(err, quantization.ErrNonFinite):
		return fmt.Errorf("%w: %w", ErrInvalidVector, err)
	}
	return err
}

func storageError(op, name string, err error) error {
	if errors.Is(err, blobstore.ErrNotFound) {
		return fmt.Errorf("%w: %q: %w", ErrCollectionNotFound, name, err)
	}
	return fmt.Errorf("%w: %s %q: %w", ErrStorage, op, name, err)
}
