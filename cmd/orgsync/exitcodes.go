package main

import (
	"errors"

	"github.com/bizdash/orgsync/modules/org/services"
)

type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string {
	return e.err.Error()
}

func (e *cliError) Unwrap() error {
	return e.err
}

// silentError carries an exit code for a failure already reported on stdout.
type silentError struct {
	code int
}

func (e *silentError) Error() string {
	return "exit status"
}

const (
	exitOK           = 0
	exitValidation   = 2
	exitInconsistent = 2
	exitUsage        = 3
	exitDB           = 4
	exitConflict     = 5
	exitNotFound     = 6
)

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &cliError{code: code, err: err}
}

// serviceExit assigns an exit code from the service error kind.
func serviceExit(err error) error {
	switch {
	case err == nil:
		return nil
	case services.IsValidation(err):
		return withCode(exitValidation, err)
	case services.IsNotFound(err):
		return withCode(exitNotFound, err)
	case services.IsConcurrency(err):
		return withCode(exitConflict, err)
	default:
		return withCode(exitDB, err)
	}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var silent *silentError
	if errors.As(err, &silent) {
		return silent.code
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	return 1
}
