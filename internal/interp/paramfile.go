package interp

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ParameterFile shields the machine's live variable file from a preview parse.
// The interpreter works on a temporary copy which is removed afterwards.
type ParameterFile struct {
	Path string
}

// TempPath is the copy handed to the interpreter.
func (p ParameterFile) TempPath() string {
	return p.Path + ".temp"
}

// Prepare copies the variable file to TempPath. A missing source is not an error;
// the interpreter then starts from its defaults.
func (p ParameterFile) Prepare() (string, error) {
	if p.Path == "" {
		return "", nil
	}
	src, err := os.Open(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return p.TempPath(), nil
	}
	if err != nil {
		return "", fmt.Errorf("opening parameter file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(p.TempPath())
	if err != nil {
		return "", fmt.Errorf("creating temp parameter file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return "", fmt.Errorf("copying parameter file: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("closing temp parameter file: %w", err)
	}
	return p.TempPath(), nil
}

// Cleanup removes the temporary copy and the backup the interpreter leaves next to it.
func (p ParameterFile) Cleanup() error {
	if p.Path == "" {
		return nil
	}
	var errs []error
	for _, path := range []string{p.TempPath(), p.TempPath() + ".bak"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
