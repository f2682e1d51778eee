package panel

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
)

// Opener opens a repository file for the user.
type Opener interface {
	Open(ctx context.Context, path string) error
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) error

func (f OpenerFunc) Open(ctx context.Context, path string) error {
	return f(ctx, path)
}

var errNoEditor = errors.New("no editor configured")

// EditorOpener launches an editor command with the file as last argument.
// The command is taken from Command, then $VISUAL, then $EDITOR, then "code".
type EditorOpener struct {
	Command string

	start func(cmd *exec.Cmd) error
}

func (o EditorOpener) resolveCommand() []string {
	candidates := []string{o.Command, os.Getenv("VISUAL"), os.Getenv("EDITOR"), "code"}
	for _, candidate := range candidates {
		if fields := strings.Fields(candidate); len(fields) > 0 {
			return fields
		}
	}
	return nil
}

func (o EditorOpener) Open(_ context.Context, path string) error {
	argv := o.resolveCommand()
	if len(argv) == 0 {
		return errNoEditor
	}

	// The editor outlives the request that opened it.
	cmd := exec.Command(argv[0], append(argv[1:], path)...)
	start := o.start
	if start == nil {
		start = startDetached
	}
	if err := start(cmd); err != nil {
		return fmt.Errorf("open %s with %s: %w", path, argv[0], err)
	}
	return nil
}

func startDetached(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[CommitKit][Panel] Editor exited with error: %v", err)
		}
	}()
	return nil
}
