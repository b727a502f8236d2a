package lgpo

import (
	"os"
	"path/filepath"
)

// Paths locates the local Group Policy directory tree. Everything hangs
// off %SystemRoot%\System32\GroupPolicy.
type Paths struct {
	Root string
}

// DefaultPaths builds the path set from the SystemRoot environment
// variable, falling back to the conventional location.
func DefaultPaths() Paths {
	systemRoot := os.Getenv("SystemRoot")
	if systemRoot == "" {
		systemRoot = `C:\Windows`
	}
	return Paths{Root: filepath.Join(systemRoot, "System32", "GroupPolicy")}
}

func (p Paths) classDir(machine bool) string {
	if machine {
		return filepath.Join(p.Root, "Machine")
	}
	return filepath.Join(p.Root, "User")
}

// PolFile returns the Registry.pol path for a class.
func (p Paths) PolFile(machine bool) string {
	return filepath.Join(p.classDir(machine), "Registry.pol")
}

// GptIni returns the gpt.ini path shared by both classes.
func (p Paths) GptIni() string {
	return filepath.Join(p.Root, "gpt.ini")
}

// ScriptsFile resolves a script ini path relative to a class directory.
func (p Paths) ScriptsFile(machine bool, rel string) string {
	return filepath.Join(p.classDir(machine), rel)
}
