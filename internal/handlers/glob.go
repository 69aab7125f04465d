package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/dohr-michael/taskd/internal/tasks"
)

var errInvalidPattern = errors.New("invalid glob pattern")

// GlobInput is a doublestar pattern and an optional root directory.
type GlobInput struct {
	Pattern string `json:"pattern" validate:"required"`
	Root    string `json:"root,omitempty"`
}

// GlobResult reports how many paths matched.
type GlobResult struct {
	Root    string `json:"root"`
	Pattern string `json:"pattern"`
	Matches int    `json:"matches"`
}

// Glob walks a directory tree and streams every path matching a pattern.
// Supports ** for recursive matching (e.g. "**/*.go").
type Glob struct {
	root string
}

// NewGlob creates a glob handler; root defaults to the current directory.
func NewGlob(root string) *Glob {
	if root == "" {
		root = "."
	}
	return &Glob{root: root}
}

func (g *Glob) Type() string { return "glob" }

func (g *Glob) Validate(input json.RawMessage) error {
	in, err := decodeInput[GlobInput](input)
	if err != nil {
		return err
	}
	if !doublestar.ValidatePattern(in.Pattern) {
		return fmt.Errorf("%w: %q", errInvalidPattern, in.Pattern)
	}
	return nil
}

func (g *Glob) Execute(ctx context.Context, input json.RawMessage, _ tasks.ProgressReporter, stream tasks.StreamReporter) (any, error) {
	in, err := decodeInput[GlobInput](input)
	if err != nil {
		return nil, err
	}
	root := in.Root
	if root == "" {
		root = g.root
	}

	matches := 0
	err = doublestar.GlobWalk(os.DirFS(root), in.Pattern, func(path string, _ fs.DirEntry) error {
		if ctx.Err() != nil {
			return context.Cause(ctx)
		}
		matches++
		stream.Emit(path)
		return nil
	})
	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("glob %q in %s: %w", in.Pattern, root, err)
	}
	return GlobResult{Root: root, Pattern: in.Pattern, Matches: matches}, nil
}
