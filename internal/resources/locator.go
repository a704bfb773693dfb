package resources

import (
	"log/slog"
	"os"
	"path/filepath"
)

// HostContext is the part of the host application the locator queries.
type HostContext interface {
	// Executable returns the path of the running host binary.
	Executable() (string, error)
	// ResourceDir returns the platform's resource directory for the app.
	ResourceDir() (string, error)
}

// Strategy names, reported with every located root.
const (
	StrategyConfigured = "configured"
	StrategyExecutable = "executable"
	StrategyPlatform   = "platform"
	StrategyProject    = "project"
	StrategyWorkingDir = "working_dir"
)

// Candidate is one resource root considered by Locate.
type Candidate struct {
	Strategy string `json:"strategy"`
	Root     string `json:"root"`
	Valid    bool   `json:"valid"`
}

// Result is the outcome of a Locate call.
type Result struct {
	Candidate
	Tried []Candidate `json:"tried"`
}

// Options configures a Locator.
type Options struct {
	// Dir, when set, is tried before every other strategy.
	Dir string
	// MarkerDir identifies the project root when walking up from the
	// working directory. Defaults to DefaultMarker.
	MarkerDir string
	// Getwd returns the working directory. Defaults to os.Getwd.
	Getwd  func() (string, error)
	Logger *slog.Logger
}

// Locator resolves the backend resource directory.
type Locator struct {
	host   HostContext
	opts   Options
	logger *slog.Logger
}

// NewLocator creates a Locator for host.
func NewLocator(host HostContext, opts Options) *Locator {
	if opts.MarkerDir == "" {
		opts.MarkerDir = DefaultMarker
	}
	if opts.Getwd == nil {
		opts.Getwd = os.Getwd
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{host: host, opts: opts, logger: logger}
}

// Locate returns the first candidate that validates. When none does, the
// last computed candidate is returned with Valid=false so that starting the
// backend fails with a precise error naming the missing files.
func (l *Locator) Locate() Result {
	var result Result

	for _, strategy := range l.strategies() {
		root, ok := strategy.compute()
		if !ok {
			continue
		}
		c := Candidate{Strategy: strategy.name, Root: root, Valid: Validate(root)}
		result.Tried = append(result.Tried, c)
		result.Candidate = c
		if c.Valid {
			l.logger.Debug("Resource directory located", "strategy", c.Strategy, "root", c.Root)
			return result
		}
	}

	l.logger.Warn("No valid resource directory found", "fallback", result.Root, "tried", len(result.Tried))
	return result
}

type strategy struct {
	name    string
	compute func() (string, bool)
}

func (l *Locator) strategies() []strategy {
	return []strategy{
		{StrategyConfigured, l.configured},
		{StrategyExecutable, l.besideExecutable},
		{StrategyPlatform, l.platformDir},
		{StrategyProject, l.projectDir},
		{StrategyWorkingDir, l.workingDir},
	}
}

func (l *Locator) configured() (string, bool) {
	if l.opts.Dir == "" {
		return "", false
	}
	return absolute(l.opts.Dir), true
}

func (l *Locator) besideExecutable() (string, bool) {
	exe, err := l.host.Executable()
	if err != nil || exe == "" {
		return "", false
	}
	return filepath.Join(filepath.Dir(absolute(exe)), DirName), true
}

func (l *Locator) platformDir() (string, bool) {
	dir, err := l.host.ResourceDir()
	if err != nil || dir == "" {
		return "", false
	}
	return absolute(dir), true
}

// projectDir walks from the working directory towards the filesystem root
// and stops at the first directory containing the marker directory.
func (l *Locator) projectDir() (string, bool) {
	wd, err := l.opts.Getwd()
	if err != nil {
		return "", false
	}
	dir := absolute(wd)
	for {
		if isDir(filepath.Join(dir, l.opts.MarkerDir)) {
			return filepath.Join(dir, DirName), true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (l *Locator) workingDir() (string, bool) {
	wd, err := l.opts.Getwd()
	if err != nil {
		return "", false
	}
	return filepath.Join(absolute(wd), DirName), true
}

func absolute(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}
