package ingest

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/zxspring21/AISEMITEST/internal/stdf"
)

// Kind classifies ingestion failures. SourceNotFound and Decode abort a load;
// the others are recovered and counted as warnings.
type Kind int

const (
	KindSourceNotFound Kind = iota + 1
	KindDecode
	KindOrphanedBuffer
	KindMissingContext
	KindInvalidTimestamp
)

var (
	ErrSourceNotFound   = errors.New("source not found")
	ErrDecode           = errors.New("decode error")
	ErrOrphanedBuffer   = errors.New("orphaned buffer")
	ErrMissingContext   = errors.New("missing context")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

func (k Kind) String() string {
	switch k {
	case KindSourceNotFound:
		return "source_not_found"
	case KindDecode:
		return "decode_error"
	case KindOrphanedBuffer:
		return "orphaned_buffer"
	case KindMissingContext:
		return "missing_context"
	case KindInvalidTimestamp:
		return "invalid_timestamp"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for c := KindSourceNotFound; c <= KindInvalidTimestamp; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return errors.Errorf("unknown error kind %q", b)
}

func (k Kind) sentinel() error {
	switch k {
	case KindSourceNotFound:
		return ErrSourceNotFound
	case KindDecode:
		return ErrDecode
	case KindOrphanedBuffer:
		return ErrOrphanedBuffer
	case KindMissingContext:
		return ErrMissingContext
	case KindInvalidTimestamp:
		return ErrInvalidTimestamp
	}
	return nil
}

// Error ties a failure to its kind and, when known, the record being processed.
// errors.Is matches both the kind's sentinel and the wrapped cause.
type Error struct {
	Kind   Kind
	Record stdf.Kind
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.sentinel().Error()
	if e.Record != 0 {
		msg += " in " + e.Record.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// NewError wraps err with a kind. A nil err is allowed for pure conditions.
func NewError(kind Kind, record stdf.Kind, err error) *Error {
	return &Error{Kind: kind, Record: record, Err: err}
}
