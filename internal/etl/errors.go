package etl

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories a stage can report.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	NetworkError
	HTTPStatusError
	PayloadParseError
	FieldResolutionError
	StorageReadError
	StorageWriteError
	SchemaMismatchError
)

func (k ErrorKind) String() string {
	switch k {
	case NetworkError:
		return "network"
	case HTTPStatusError:
		return "http status"
	case PayloadParseError:
		return "payload parse"
	case FieldResolutionError:
		return "field resolution"
	case StorageReadError:
		return "storage read"
	case StorageWriteError:
		return "storage write"
	case SchemaMismatchError:
		return "schema mismatch"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step an error came from.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageTransform Stage = "transform"
	StageLoad      Stage = "load"
)

// Error is the error type returned by every stage.
type Error struct {
	Kind       ErrorKind
	Stage      Stage
	Op         string // short verb, e.g. "fetch", "read raw", "rewrite table"
	Path       string // file path or URL involved, if any
	StatusCode int    // HTTPStatusError only
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Stage, e.Op)
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func stageErr(stage Stage, kind ErrorKind, op, path string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Op: op, Path: path, Err: err}
}

// LoadError wraps a failure from a Destination outside this package.
func LoadError(kind ErrorKind, op, target string, err error) *Error {
	return stageErr(StageLoad, kind, op, target, err)
}

// KindOf returns the kind of the first *Error in err's chain.
// Errors that did not originate in a stage report KindUnknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StageOf returns the stage that produced err, or "" when unknown.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}
