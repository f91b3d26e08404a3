package wiki

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrPageNotFound       = errors.New("page not found")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrNamespaceNotFound  = errors.New("namespace not found")
	// ErrProtected is returned when deleting the protected page.
	ErrProtected = errors.New("page is protected")
	// ErrIntegrity marks a write that refers to state that does not exist,
	// such as saving with the id of a missing page.
	ErrIntegrity = errors.New("integrity violation")
)

// ValidationError collects messages per input field. Nothing has been
// written when it is returned.
type ValidationError struct {
	Fields map[string][]string `json:"fields"`
}

func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], message)
}

func (e *ValidationError) HasErrors() bool {
	return len(e.Fields) > 0
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, strings.Join(e.Fields[name], ", ")))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// StoreError wraps a failure of the underlying storage. The mutation it
// belongs to has not been applied.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
