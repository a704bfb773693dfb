package resources

import (
	"os"
	"path/filepath"
	"runtime"
)

// Directory and file names of the deployment contract.
const (
	DirName       = "resources"
	PythonDir     = "python"
	BackendDir    = "backend"
	DefaultEntry  = "main.py"
	DefaultMarker = "src-tauri"
	windowsPython = "python.exe"
	unixPython    = "python3"
)

// Paths are the absolute locations needed to launch the backend.
type Paths struct {
	Root        string `json:"root"`
	Interpreter string `json:"interpreter"`
	EntryScript string `json:"entry_script"`
	WorkingDir  string `json:"working_dir"`
}

// InterpreterName returns the interpreter binary name for goos.
func InterpreterName(goos string) string {
	if goos == "windows" {
		return windowsPython
	}
	return unixPython
}

// DefaultInterpreterName is InterpreterName for the running platform.
func DefaultInterpreterName() string {
	return InterpreterName(runtime.GOOS)
}

// PathsFor derives the launch paths from a resource root.
func PathsFor(root, interpreter, entryScript string) Paths {
	backend := filepath.Join(root, BackendDir)
	return Paths{
		Root:        root,
		Interpreter: filepath.Join(root, PythonDir, interpreter),
		EntryScript: filepath.Join(backend, entryScript),
		WorkingDir:  backend,
	}
}

// Missing returns the launch paths that do not exist, in the order
// interpreter, entry script, working directory.
func (p Paths) Missing() []string {
	var missing []string
	for _, path := range []string{p.Interpreter, p.EntryScript, p.WorkingDir} {
		if !exists(path) {
			missing = append(missing, path)
		}
	}
	return missing
}

// Validate reports whether root looks like a resource directory.
func Validate(root string) bool {
	return root != "" &&
		exists(root) &&
		exists(filepath.Join(root, PythonDir)) &&
		exists(filepath.Join(root, BackendDir))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}
