// Package verrors defines the closed error taxonomy shared by every decoder
// in this module: container, Dex, instruction, quickening and verifier-deps
// layers all fail through the same Kind set so the driver can decide
// continue-vs-skip-vs-abort without inspecting decoder-specific types.
package verrors

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind enumerates the defined failure categories. Lower layers return a
// *VdexError, never print, never os.Exit; the driver is the single printer.
type Kind string

const (
	UnsupportedContainer Kind = "UnsupportedContainer"
	MalformedContainer   Kind = "MalformedContainer"
	MalformedDex         Kind = "MalformedDex"
	UnknownOpcode        Kind = "UnknownOpcode"
	FormatMismatch       Kind = "FormatMismatch"
	HintAlignmentError   Kind = "HintAlignmentError"
	HintResidueError     Kind = "HintResidueError"
	HintExhausted        Kind = "HintExhausted"
	VerifierDepsOverflow Kind = "VerifierDepsOverflow"
	ChecksumMismatch     Kind = "ChecksumMismatch"
	IOError              Kind = "IOError"
)

// VdexError carries the propagation context every error needs: input file
// name, the Dex index within its container, and (where applicable) the
// method offset at which decoding failed.
type VdexError struct {
	Kind         Kind
	Message      string
	File         string
	DexIndex     int
	HasDexIndex  bool
	MethodOffset uint32
	HasMethodOff bool
	cause        error
}

// New starts a fluent VdexError. Chain With* calls to attach context.
func New(kind Kind, message string) *VdexError {
	return &VdexError{Kind: kind, Message: message}
}

// Wrap attaches a Kind and message to an existing error, preserving it as
// the cause so errors.Is/As and errors.Cause keep working.
func Wrap(cause error, kind Kind, message string) *VdexError {
	return &VdexError{Kind: kind, Message: message, cause: errors.WithStack(cause)}
}

func (e *VdexError) WithFile(file string) *VdexError {
	e.File = file
	return e
}

func (e *VdexError) WithDex(index int) *VdexError {
	e.DexIndex = index
	e.HasDexIndex = true
	return e
}

func (e *VdexError) WithMethodOffset(offset uint32) *VdexError {
	e.MethodOffset = offset
	e.HasMethodOff = true
	return e
}

// Error implements the error interface.
func (e *VdexError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Kind, e.Message))
	if e.File != "" {
		sb.WriteString(fmt.Sprintf(" (file=%s", e.File))
		if e.HasDexIndex {
			sb.WriteString(fmt.Sprintf(", dex=%d", e.DexIndex))
		}
		if e.HasMethodOff {
			sb.WriteString(fmt.Sprintf(", methodOff=0x%x", e.MethodOffset))
		}
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap lets errors.Is/errors.As see through to the wrapped cause.
func (e *VdexError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a *VdexError with the same Kind, so callers
// can write errors.Is(err, verrors.New(verrors.MalformedDex, "")).
func (e *VdexError) Is(target error) bool {
	t, ok := target.(*VdexError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind from err if it is (or wraps) a *VdexError.
func KindOf(err error) (Kind, bool) {
	var ve *VdexError
	if errors.As(err, &ve) {
		return ve.Kind, true
	}
	return "", false
}
