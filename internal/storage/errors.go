package storage

import "fmt"

// ValidationError reports malformed input. It is never worth retrying;
// the caller must fix the input.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// ErrEmptyChannelID is returned by Connect when the channel id is empty.
var ErrEmptyChannelID = &ValidationError{msg: "channel id must not be empty"}

// SchemaError reports a failure creating or validating the storage relations.
// It is fatal to startup and is not retried automatically.
type SchemaError struct {
	Relation string
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("schema: relation %s: %v", e.Relation, e.Err)
	}
	return fmt.Sprintf("schema: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// TransactionError reports a read, commit, or rollback failure during a
// state operation. The operation has been rolled back; retrying is the
// caller's decision.
type TransactionError struct {
	Op  string
	Err error
}

func (e *TransactionError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *TransactionError) Unwrap() error { return e.Err }
