// Package scan discovers task files under a workspace root.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/nibzard/ralphban-go/internal/parallel"
	"github.com/nibzard/ralphban-go/internal/task"
)

// DefaultPatterns are the glob patterns used when none are configured.
var DefaultPatterns = []string{"**/*.prd.json", "**/prd.json", "**/tasks.json"}

// DefaultExcludes are directory names never descended into.
var DefaultExcludes = []string{"node_modules", ".git", ".vscode", "out", "dist"}

// DefaultMaxResults caps the matches kept per pattern.
const DefaultMaxResults = 100

// Options controls discovery.
type Options struct {
	Patterns   []string
	Excludes   []string
	MaxResults int
	Workers    int
	Validator  *task.Validator
}

func (o Options) withDefaults() Options {
	if len(o.Patterns) == 0 {
		o.Patterns = DefaultPatterns
	}
	if o.Excludes == nil {
		o.Excludes = DefaultExcludes
	}
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Validator == nil {
		o.Validator = task.DefaultValidator()
	}
	return o
}

// Board is one discovered task file.
type Board struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URI  string `json:"uri"`

	// Abs is the absolute filesystem path.
	Abs string `json:"-"`
}

// NewBoard builds the listing entry for a file under root.
func NewBoard(root, abs string) (Board, error) {
	rel, err := RelPath(root, abs)
	if err != nil {
		return Board{}, err
	}
	return Board{
		Name: filepath.Base(abs),
		Path: rel,
		URI:  FileURI(abs),
		Abs:  abs,
	}, nil
}

// FileURI returns the file:// URI for an absolute path.
func FileURI(abs string) string {
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}

// ErrOutsideRoot is returned for paths that escape the workspace root.
var ErrOutsideRoot = errors.New("path is outside the workspace root")

// RelPath returns the slash-separated path of target relative to root.
func RelPath(root, target string) (string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	targetAbs, err := filepath.Abs(target)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(rootAbs, targetAbs)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, target)
	}
	return filepath.ToSlash(rel), nil
}

// Resolve turns a root-relative path into an absolute path, rejecting
// anything that escapes root.
func Resolve(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	target := filepath.FromSlash(rel)
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	if _, err := RelPath(rootAbs, target); err != nil {
		return "", err
	}
	return filepath.Clean(target), nil
}

// Candidates expands the glob patterns under root without validating the
// matches. Paths are absolute and de-duplicated, in walk order.
func Candidates(ctx context.Context, root string, opts Options) ([]string, error) {
	opts = opts.withDefaults()
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	excluded := make(map[string]bool, len(opts.Excludes))
	for _, name := range opts.Excludes {
		excluded[name] = true
	}
	for _, pattern := range opts.Patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid file pattern %q", pattern)
		}
	}

	counts := make([]int, len(opts.Patterns))
	var found []string
	err = filepath.WalkDir(rootAbs, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped, the root itself is fatal.
			if path == rootAbs {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != rootAbs && excluded[d.Name()] {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(rootAbs, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		matched := false
		for i, pattern := range opts.Patterns {
			if counts[i] >= opts.MaxResults {
				continue
			}
			if ok, _ := doublestar.Match(pattern, rel); ok {
				counts[i]++
				matched = true
			}
		}
		if matched {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", rootAbs, err)
	}
	return found, nil
}

// Report is the validation outcome for one candidate file.
type Report struct {
	Board Board
	Err   error
}

// Inspect validates every candidate and reports each outcome, sorted by
// relative path.
func Inspect(ctx context.Context, root string, opts Options) ([]Report, error) {
	opts = opts.withDefaults()
	paths, err := Candidates(ctx, root, opts)
	if err != nil {
		return nil, err
	}

	results := parallel.Run(ctx, opts.Workers, paths, func(ctx context.Context, path string) error {
		_, err := task.Load(path, opts.Validator)
		return err
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reports := make([]Report, 0, len(results))
	for _, r := range results {
		b, err := NewBoard(root, r.ID)
		if err != nil {
			continue
		}
		reports = append(reports, Report{Board: b, Err: r.Err})
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Board.Path < reports[j].Board.Path
	})
	return reports, nil
}

// Find returns the task files under root that parse and validate. Files that
// fail are silently skipped.
func Find(ctx context.Context, root string, opts Options) ([]Board, error) {
	reports, err := Inspect(ctx, root, opts)
	if err != nil {
		return nil, err
	}
	boards := make([]Board, 0, len(reports))
	for _, r := range reports {
		if r.Err == nil {
			boards = append(boards, r.Board)
		}
	}
	return boards, nil
}

// FindByName returns the first valid task file whose path ends with name
// (prd.json when empty), else the first valid file. ok is false when
// nothing was found.
func FindByName(ctx context.Context, root, name string, opts Options) (Board, bool, error) {
	if name == "" {
		name = "prd.json"
	}
	boards, err := Find(ctx, root, opts)
	if err != nil {
		return Board{}, false, err
	}
	for _, b := range boards {
		if strings.HasSuffix(b.Path, name) {
			return b, true, nil
		}
	}
	if len(boards) > 0 {
		return boards[0], true, nil
	}
	return Board{}, false, nil
}

// IsTaskFile reports whether path, taken relative to root, matches any of
// the patterns. Dot files and directories are matched like any other.
func IsTaskFile(root, path string, patterns []string) bool {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	rel, err := RelPath(root, path)
	if err != nil {
		return false
	}
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Exists reports whether path names a regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
