package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/hyperjump/kura/pkg/utils"
)

// gitCLI clones with the git binary: git clone --depth 1 [--branch b] url dest.
type gitCLI struct {
	url    string
	branch string
	binary string
}

func (g *gitCLI) Method() string { return "git" }

func (g *gitCLI) Fetch(ctx context.Context, dest string) error {
	binary := g.binary
	if binary == "" {
		binary = "git"
	}
	args := []string{"clone", "--depth", "1"}
	if g.branch != "" {
		args = append(args, "--branch", g.branch)
	}
	args = append(args, "--", g.url, dest)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(cmd.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git clone: %w: %s", err, utils.Truncate(string(bytes.TrimSpace(stderr.Bytes())), 500))
	}
	return nil
}
