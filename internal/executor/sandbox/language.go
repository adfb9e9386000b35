package sandbox

import (
	"path/filepath"
	"sort"
)

// Language identifies a supported runtime. The set is closed: anything not
// in the registry below is rejected before a workspace is created.
type Language string

const LanguagePython Language = "python"

// CompileStep describes an optional build phase run before the program.
// No registered language uses one yet.
type CompileStep struct {
	Executable string
	Args       []string
}

// Descriptor is everything the runner needs to launch one language.
type Descriptor struct {
	Name        Language
	DisplayName string // used in user-facing diagnostics
	Executable  string
	SourceFile  string
	Args        []string // SourceFile is appended after these
	Env         []string
	Compile     *CompileStep
}

// Extension returns the source file extension including the dot.
func (d Descriptor) Extension() string {
	return filepath.Ext(d.SourceFile)
}

// Argv returns the full argument list passed to Executable.
func (d Descriptor) Argv() []string {
	argv := make([]string, 0, len(d.Args)+1)
	argv = append(argv, d.Args...)
	return append(argv, d.SourceFile)
}

var registry = map[Language]Descriptor{
	LanguagePython: {
		Name:        LanguagePython,
		DisplayName: "Python",
		Executable:  "python3",
		SourceFile:  "main.py",
		// -B: no .pyc files in the workspace. -u: unbuffered, so output
		// written before a crash is not lost in a stdio buffer.
		Args: []string{"-B", "-u"},
		Env:  []string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"},
	},
}

// Lookup returns the descriptor for name. Matching is exact and
// case-sensitive.
func Lookup(name string) (Descriptor, bool) {
	d, ok := registry[Language(name)]
	return d, ok
}

// Supported lists the registered language names in sorted order.
func Supported() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return names
}
