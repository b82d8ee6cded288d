// Package instructions loads and runs the install script embedded in a
// package. Scripts are POSIX shell, interpreted in-process.
package instructions

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/teamcutter/nest/internal/lock"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// ErrParse is returned by Load when the script is not valid shell.
var ErrParse = errors.New("unable to parse instructions")

// ExitError reports a script that ran to completion with a non-zero status.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("instructions exited with status %d", e.Code)
}

// Executor is a parsed script, ready to run.
type Executor struct {
	name   string
	digest string
	prog   *syntax.File
}

// Load reads r to the end and parses it. The executor keeps no reference to
// r, so it stays valid after the source is closed.
func Load(r io.Reader, name string) (*Executor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}

	prog, err := syntax.NewParser().Parse(bytes.NewReader(data), name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, name, err)
	}

	sum := sha256.Sum256(data)
	return &Executor{
		name:   name,
		digest: hex.EncodeToString(sum[:]),
		prog:   prog,
	}, nil
}

func (e *Executor) Name() string {
	return e.name
}

// Digest is the hex SHA-256 of the script bytes the executor was built from.
func (e *Executor) Digest() string {
	return e.digest
}

type RunOptions struct {
	// Dir is the working directory of the script.
	Dir string
	// Env is appended to the inherited environment, KEY=VALUE.
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Run interprets the script. It requires the package store lock because
// scripts install files on the system.
func (e *Executor) Run(ctx context.Context, own *lock.Ownership, opts RunOptions) error {
	if err := own.Check(); err != nil {
		return err
	}

	stdout, stderr := opts.Stdout, opts.Stderr
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	env := append(os.Environ(), opts.Env...)
	runnerOpts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(env...)),
		interp.StdIO(nil, stdout, stderr),
	}
	if opts.Dir != "" {
		runnerOpts = append(runnerOpts, interp.Dir(opts.Dir))
	}

	runner, err := interp.New(runnerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	if err := runner.Run(ctx, e.prog); err != nil {
		var status interp.ExitStatus
		if errors.As(err, &status) {
			return &ExitError{Code: int(status)}
		}
		return fmt.Errorf("%s: %w", e.name, err)
	}
	return nil
}
