package reply

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

// MaxFileSize bounds a single attached file.
const MaxFileSize = 1 << 20

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

// walkRoot is the longest leading directory of pattern without glob characters.
func walkRoot(pattern string) string {
	parts := strings.Split(pattern, "/")
	root := []string{}
	for _, p := range parts[:len(parts)-1] {
		if hasMeta(p) {
			break
		}
		root = append(root, p)
	}
	if len(root) == 0 {
		return "."
	}
	ret := strings.Join(root, "/")
	if ret == "" {
		return "/"
	}
	return ret
}

// LoadFiles reads the files named by patterns. Plain paths must exist; glob patterns
// may match nothing. Each file is returned once, in the order first matched.
func LoadFiles(patterns []string) ([]File, error) {
	seen := map[string]struct{}{}
	ret := []File{}

	add := func(path string) error {
		if _, ok := seen[path]; ok {
			return nil
		}
		info, err := os.Stat(path)
		if err != nil {
			return errors.Wrapf(err, "stat %s", path)
		}
		if info.Size() > MaxFileSize {
			return errors.Errorf("%s is larger than %d bytes", path, MaxFileSize)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		seen[path] = struct{}{}
		ret = append(ret, File{Path: path, Content: string(data)})
		return nil
	}

	for _, pattern := range patterns {
		pattern = filepath.ToSlash(filepath.Clean(pattern))
		if !hasMeta(pattern) {
			if err := add(filepath.FromSlash(pattern)); err != nil {
				return nil, err
			}
			continue
		}

		root := walkRoot(pattern)
		err := filepath.WalkDir(filepath.FromSlash(root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			matched, err := glob.Match(pattern, filepath.ToSlash(path))
			if err != nil {
				return errors.Wrapf(err, "invalid pattern %q", pattern)
			}
			if !matched {
				return nil
			}
			return add(path)
		})
		if err != nil {
			return nil, err
		}
	}
	return ret, nil
}
