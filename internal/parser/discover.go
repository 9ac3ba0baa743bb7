package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSuffix is the file suffix of Claude Code usage logs
const DefaultSuffix = ".jsonl"

// ErrNotDirectory is returned when the usage root exists but is not a directory
var ErrNotDirectory = errors.New("usage root is not a directory")

// Discovery is the result of walking a usage root. Files is sorted by full path.
// Irregular counts suffix matches that are not regular files (FIFOs, sockets,
// devices); they are never listed, as opening a FIFO blocks until a writer appears.
type Discovery struct {
	Files          []string
	UnreadableDirs int
	Irregular      int
}

// Discover finds all files under root whose name ends with suffix (case-sensitive).
// A missing root yields an empty Discovery. Each directory is listed at most once,
// keyed by its resolved path, so symlink cycles terminate.
func Discover(root, suffix string) (Discovery, error) {
	var d Discovery

	info, err := os.Stat(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return d, nil
		}
		d.UnreadableDirs++
		return d, nil
	}
	if !info.IsDir() {
		return d, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	visited := make(map[string]bool)
	stack := []string{root}

	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		canonical, err := filepath.EvalSymlinks(dir)
		if err != nil {
			d.UnreadableDirs++
			continue
		}
		if visited[canonical] {
			continue
		}
		visited[canonical] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			d.UnreadableDirs++
			continue
		}

		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			mode := e.Type()

			if mode&fs.ModeSymlink != 0 {
				target, err := os.Stat(path)
				if err != nil {
					// Dangling links that look like logs are kept so the open failure gets counted.
					mode = 0
				} else {
					mode = target.Mode().Type()
				}
			}

			if mode.IsDir() {
				stack = append(stack, path)
				continue
			}
			if !strings.HasSuffix(e.Name(), suffix) {
				continue
			}
			if !mode.IsRegular() {
				d.Irregular++
				continue
			}
			d.Files = append(d.Files, path)
		}
	}

	sort.Strings(d.Files)
	return d, nil
}
