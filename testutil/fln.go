package testutil

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// FileLineNumber marks an entry in a table of test cases, so a failure can be traced back
// to the entry rather than to the loop that ran it.
type FileLineNumber struct {
	File string
	Line int
}

func (fln FileLineNumber) String() string {
	if fln.File == "" || fln.Line == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d: ", filepath.Base(fln.File), fln.Line)
}

// Caller returns the location skip frames above the function calling Caller.
func Caller(skip int) FileLineNumber {
	_, fn, ln, ok := runtime.Caller(skip + 1)
	if !ok {
		return FileLineNumber{}
	}
	return FileLineNumber{fn, ln}
}

// MakeFileLineNumber is meant to be wrapped by a test's fln() helper; it returns the
// location of the call to that helper.
func MakeFileLineNumber() FileLineNumber {
	return Caller(2)
}
