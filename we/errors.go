package we

import (
	"fmt"

	"github.com/pkg/errors"
)

type ErrorKind string

const (
	KindSerialization  ErrorKind = "serialization-failed"
	KindStorage        ErrorKind = "storage-failed"
	KindVersion        ErrorKind = "version-conflict"
	KindInitialization ErrorKind = "initialization-failed"
	KindValidation     ErrorKind = "validation-failed"
)

var (
	ErrSerializationFailed  = errors.New(string(KindSerialization))
	ErrStorageFailed        = errors.New(string(KindStorage))
	ErrVersionConflict      = errors.New(string(KindVersion))
	ErrInitializationFailed = errors.New(string(KindInitialization))
	ErrValidationFailed     = errors.New(string(KindValidation))
)

var sentinels = map[ErrorKind]error{
	KindSerialization:  ErrSerializationFailed,
	KindStorage:        ErrStorageFailed,
	KindVersion:        ErrVersionConflict,
	KindInitialization: ErrInitializationFailed,
	KindValidation:     ErrValidationFailed,
}

// StoreError is returned by every storage operation. Match it with errors.Is against the
// Err* sentinels; the underlying cause stays reachable through Unwrap.
type StoreError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}

	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func SerializationFailed(op string, err error) error {
	return &StoreError{Kind: KindSerialization, Op: op, Err: errors.WithStack(err)}
}

func StorageFailed(op string, err error) error {
	return &StoreError{Kind: KindStorage, Op: op, Err: errors.WithStack(err)}
}

func InitializationFailed(op string, err error) error {
	return &StoreError{Kind: KindInitialization, Op: op, Err: errors.WithStack(err)}
}

func ValidationFailed(op string, message string) error {
	return &StoreError{Kind: KindValidation, Op: op, Err: errors.New(message)}
}

// VersionConflictError reports an append whose expected version did not match.
type VersionConflictError struct {
	Aggregate AggregateId
	Expected  ExpectedVersion
	Actual    Version
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on %s: expected %s, actual %d", e.Aggregate, e.Expected, e.Actual)
}

func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

func VersionConflict(id AggregateId, expected ExpectedVersion, actual Version) error {
	return &VersionConflictError{Aggregate: id, Expected: expected, Actual: actual}
}

// IsStoreError reports whether err already belongs to the storage taxonomy.
func IsStoreError(err error) bool {
	var store *StoreError
	var conflict *VersionConflictError
	return errors.As(err, &store) || errors.As(err, &conflict)
}

func UnexpectedCommand(command Command) error {
	return fmt.Errorf("unexpected command %s", CommandNameOf(command))
}
