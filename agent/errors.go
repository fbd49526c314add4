package agent

import "fmt"

// InvalidRecordError reports a patient record field outside its known
// domain. It is user-correctable and surfaces to the caller with the
// offending field name; the HTTP boundary maps it to a client error.
type InvalidRecordError struct {
	Field  string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid patient record: field %q: %s", e.Field, e.Reason)
}

// ModelNotLoadedError is returned by prediction when no checkpoint has
// been loaded. Operator-correctable; the HTTP boundary maps it to a
// service-unavailable error.
type ModelNotLoadedError struct{}

func (e *ModelNotLoadedError) Error() string {
	return "no model checkpoint loaded"
}

// CheckpointCorruptionError reports a checkpoint that cannot be loaded:
// unreadable file, unknown format version, or parameter shapes that do
// not match the configured network architecture. The load attempt fails
// fast; previously saved checkpoints are unaffected.
type CheckpointCorruptionError struct {
	Path   string
	Reason string
}

func (e *CheckpointCorruptionError) Error() string {
	return fmt.Sprintf("corrupt checkpoint %s: %s", e.Path, e.Reason)
}
