package compose

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceImageLoad matches every SourceImageLoadError.
	ErrSourceImageLoad = errors.New("compose: prescription image could not be loaded")
	// ErrLogoLoad matches every LogoLoadError.
	ErrLogoLoad = errors.New("compose: logo could not be loaded")
	// ErrMissingSource is wrapped when an artifact has no image reference.
	ErrMissingSource = errors.New("compose: prescription has no image")
)

// SourceImageLoadError is fatal: no document is produced without its content.
type SourceImageLoadError struct {
	Ref string
	Err error
}

func (e *SourceImageLoadError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrSourceImageLoad, shortRef(e.Ref), e.Err)
}

func (e *SourceImageLoadError) Unwrap() error { return e.Err }

func (e *SourceImageLoadError) Is(target error) bool { return target == ErrSourceImageLoad }

// LogoLoadError is non-fatal: the composition continues without the logo.
type LogoLoadError struct {
	Ref string
	Err error
}

func (e *LogoLoadError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrLogoLoad, shortRef(e.Ref), e.Err)
}

func (e *LogoLoadError) Unwrap() error { return e.Err }

func (e *LogoLoadError) Is(target error) bool { return target == ErrLogoLoad }

// shortRef keeps inline data URLs out of error messages and logs.
func shortRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
