// Package deploy publishes persisted records through a git working copy.
package deploy

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Git runs git subcommands against one working copy and returns stdout.
type Git interface {
	Run(ctx context.Context, args ...string) (string, error)
}

// CLI is a Git backed by the git binary.
type CLI struct {
	Dir    string
	Binary string
}

var _ Git = (*CLI)(nil)

// NewCLI returns a runner rooted at dir.
func NewCLI(dir string) *CLI {
	return &CLI{Dir: dir, Binary: "git"}
}

// Run executes git with args in the working copy.
func (c *CLI) Run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.Binary, args...)
	cmd.Dir = c.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		return stdout.String(), fmt.Errorf("git %s: %w: %s", firstArg(args), err, msg)
	}
	return stdout.String(), nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
