// Package files implements the small filesystem commands the frontend calls
// through the host API.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var (
	// ErrNotFound is returned when a path does not exist.
	ErrNotFound = errors.New("path does not exist")
	// ErrNotDirectory is returned when a directory was expected.
	ErrNotDirectory = errors.New("not a directory")
	// ErrEmptyPath is returned for an empty path argument.
	ErrEmptyPath = errors.New("path is empty")
)

// PathInfo describes what a path points at.
type PathInfo struct {
	IsFile      bool   `json:"isFile" doc:"Path is a regular file"`
	IsDirectory bool   `json:"isDirectory" doc:"Path is a directory"`
	Path        string `json:"path" doc:"Inspected path"`
}

// Greet returns the greeting shown by the frontend's smoke test.
func Greet(name string) string {
	return fmt.Sprintf("Hello, %s! You've been greeted from Go!", name)
}

// Scan returns every file below dir whose extension matches ext,
// ignoring case. ext may be given with or without the leading dot.
// Unreadable subdirectories are skipped and symlinked directories are not
// followed. Results are sorted.
func Scan(dir, ext string) ([]string, error) {
	if dir == "" {
		return nil, ErrEmptyPath
	}
	fi, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, dir)
		}
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	want := "." + strings.TrimPrefix(strings.ToLower(ext), ".")
	found := []string{}
	stack := []string{dir}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(current)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			path := filepath.Join(current, entry.Name())
			switch {
			case entry.IsDir():
				stack = append(stack, path)
			case entry.Type().IsRegular() && strings.ToLower(filepath.Ext(entry.Name())) == want:
				found = append(found, path)
			}
		}
	}

	slices.Sort(found)
	return found, nil
}

// Inspect reports whether path is a file or a directory.
func Inspect(path string) (PathInfo, error) {
	if path == "" {
		return PathInfo{}, ErrEmptyPath
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return PathInfo{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return PathInfo{}, err
	}
	return PathInfo{
		IsFile:      fi.Mode().IsRegular(),
		IsDirectory: fi.IsDir(),
		Path:        path,
	}, nil
}

// Read returns the content of a text file.
func Read(path string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write replaces the content of path, creating missing parent directories.
func Write(path, content string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Join appends file to dir. An absolute file replaces dir.
func Join(dir, file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(dir, file)
}
