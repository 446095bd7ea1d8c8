package exception

import (
	"errors"
	"fmt"
)

// ErrorKind classifies where in the chunk pipeline a failure happened.
type ErrorKind string

const (
	// KindSourceRead is a failure while reading items from the source.
	KindSourceRead ErrorKind = "SourceReadError"
	// KindTransform is a failure while transforming an item.
	KindTransform ErrorKind = "TransformError"
	// KindSinkWrite is a failure while writing a chunk to the sink.
	KindSinkWrite ErrorKind = "SinkWriteError"
)

// Sentinels matched with errors.Is against a ChunkError of the same kind.
var (
	ErrSourceRead = errors.New("source read error")
	ErrTransform  = errors.New("transform error")
	ErrSinkWrite  = errors.New("sink write error")
)

// ChunkError reports a failure inside a chunk. ItemIndex is -1 when the failure
// concerns the whole chunk rather than a single item.
type ChunkError struct {
	Kind       ErrorKind
	StepName   string
	ChunkIndex int
	ItemIndex  int
	ItemKey    string
	Cause      error
}

// NewSourceReadError wraps a read failure.
func NewSourceReadError(stepName string, chunkIndex, itemIndex int, cause error) *ChunkError {
	return &ChunkError{Kind: KindSourceRead, StepName: stepName, ChunkIndex: chunkIndex, ItemIndex: itemIndex, Cause: cause}
}

// NewTransformError wraps a transform failure for a single item.
func NewTransformError(stepName string, chunkIndex, itemIndex int, itemKey string, cause error) *ChunkError {
	return &ChunkError{Kind: KindTransform, StepName: stepName, ChunkIndex: chunkIndex, ItemIndex: itemIndex, ItemKey: itemKey, Cause: cause}
}

// NewSinkWriteError wraps a write failure for a whole chunk.
func NewSinkWriteError(stepName string, chunkIndex int, cause error) *ChunkError {
	return &ChunkError{Kind: KindSinkWrite, StepName: stepName, ChunkIndex: chunkIndex, ItemIndex: -1, Cause: cause}
}

// Error implements the error interface.
func (e *ChunkError) Error() string {
	loc := fmt.Sprintf("step '%s' chunk %d", e.StepName, e.ChunkIndex)
	if e.ItemIndex >= 0 {
		loc += fmt.Sprintf(" item %d", e.ItemIndex)
	}
	if e.ItemKey != "" {
		loc += fmt.Sprintf(" (key=%s)", e.ItemKey)
	}
	return fmt.Sprintf("%s in %s: %v", e.Kind, loc, e.Cause)
}

// Unwrap returns the cause.
func (e *ChunkError) Unwrap() error {
	return e.Cause
}

// Is matches the kind sentinel so callers can write errors.Is(err, ErrTransform).
func (e *ChunkError) Is(target error) bool {
	switch target {
	case ErrSourceRead:
		return e.Kind == KindSourceRead
	case ErrTransform:
		return e.Kind == KindTransform
	case ErrSinkWrite:
		return e.Kind == KindSinkWrite
	}
	return false
}

// KindOf returns the ErrorKind of the first ChunkError in err's chain, or "" if there is none.
func KindOf(err error) ErrorKind {
	var ce *ChunkError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}
