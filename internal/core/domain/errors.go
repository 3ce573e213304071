package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrCorpusNotReady   = errors.New("corpus not ready")
	ErrBuildInProgress  = errors.New("corpus build in progress")
	ErrSnapshotNotFound = errors.New("index snapshot not found")
	ErrSessionNotFound  = errors.New("session not found")
	ErrFlowFinished     = errors.New("question flow finished")
	ErrStepInProgress   = errors.New("question flow step in progress")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
