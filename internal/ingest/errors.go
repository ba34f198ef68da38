package ingest

import "fmt"

// ConfigurationError reports a run that could not start: the sink could not
// be constructed, the index could not be recreated, or the transform rules or
// reference table are invalid. No document has been submitted when it occurs.
type ConfigurationError struct {
	Op  string
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %v", e.Op, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// FileError is a fatal failure while ingesting one file. Documents from
// batches acknowledged before the failure stay in the index.
type FileError struct {
	File  string
	Index string
	Err   error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("ingest file=%s index=%s: %v", e.File, e.Index, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }
