// Package interp defines the boundary to the external G-code interpreter: the
// canonical callback surface it drives and the status it reports.
package interp

import (
	"context"
	"fmt"

	"github.com/backplot/backplot/pkg/canon"
)

// Interpreter status codes.
const (
	StatusOK            = 0
	StatusExit          = 1
	StatusExecuteFinish = 2
	StatusEndFile       = 3
	StatusFileNotOpen   = 4
	StatusError         = 5
)

// MinError is the threshold above which a status is a parse failure.
const MinError = StatusEndFile

var statusText = map[int]string{
	StatusOK:            "ok",
	StatusExit:          "program exit",
	StatusExecuteFinish: "execute finish",
	StatusEndFile:       "end of file",
	StatusFileNotOpen:   "file not open",
	StatusError:         "interpreter error",
}

// Strerror returns a human-readable description of a status code.
func Strerror(status int) string {
	if s, ok := statusText[status]; ok {
		return s
	}
	return fmt.Sprintf("unknown status %d", status)
}

// Canon receives canonical callbacks in program order. Calls are never concurrent.
type Canon interface {
	NextLine(line int)

	StraightTraverse(start, end canon.Position)
	StraightFeed(start, end canon.Position)
	ArcFeed(start, end canon.Position)
	UserDefined(start, end canon.Position)
	Dwell()

	SelectCoordinateSystem(index int)
	SetFixtureOffset(index int, offset canon.Position)
	SetSecondaryOffset(offset canon.Position)
	SetRotation(angle float64)

	Comment(text string)
}

// Options are forwarded to the interpreter for each parse pass.
type Options struct {
	// UnitCode is executed before the program, e.g. "G21".
	UnitCode string
	// InitCode is the configured startup code.
	InitCode string
	// ParameterFile is the variable file the interpreter may read and write.
	ParameterFile string
}

// Result is the outcome of a parse pass.
type Result struct {
	Status int
	// Line is the 1-based line the interpreter stopped at.
	Line int
	// Message carries interpreter detail for failures.
	Message string
}

// Failed reports whether the status is above MinError.
func (r Result) Failed() bool {
	return r.Status > MinError
}

// Err converts a failed result into a *ParseFailure. It returns nil otherwise.
func (r Result) Err() error {
	if !r.Failed() {
		return nil
	}
	msg := Strerror(r.Status)
	if r.Message != "" {
		msg = msg + ": " + r.Message
	}
	return &ParseFailure{Line: r.Line, Status: r.Status, Message: msg}
}

// Interpreter parses a program and drives the canon with its motion.
// A returned error means the pass could not run at all (cancelled, unreadable input);
// interpreter-level failures are reported through Result.
type Interpreter interface {
	Parse(ctx context.Context, program string, c Canon, opts Options) (Result, error)
}

// InterpreterFunc adapts a function to the Interpreter interface.
type InterpreterFunc func(ctx context.Context, program string, c Canon, opts Options) (Result, error)

// Parse calls f.
func (f InterpreterFunc) Parse(ctx context.Context, program string, c Canon, opts Options) (Result, error) {
	return f(ctx, program, c, opts)
}

// ParseFailure is reported when the interpreter rejects a program.
type ParseFailure struct {
	Line    int
	Status  int
	Message string
}

func (e *ParseFailure) Error() string {
	return fmt.Sprintf("parse failed at line %d: %s", e.Line, e.Message)
}
