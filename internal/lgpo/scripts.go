package lgpo

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// The Group Policy scripts ini files (scripts.ini, psscripts.ini) are tiny
// section/key files rewritten whole on every change, CRLF line endings,
// matching what the policy editor itself produces.

func readScriptSetting(fs afero.Fs, path, section, setting string) (string, bool, error) {
	ok, _ := afero.Exists(fs, path)
	if !ok {
		return "", false, nil
	}
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", false, errors.Wrapf(err, "read %s", path)
	}

	inSection := false
	for _, line := range splitIniLines(string(raw)) {
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inSection = strings.EqualFold(line[1:len(line)-1], section)
			continue
		}
		if !inSection {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			if strings.EqualFold(strings.TrimSpace(line[:i]), setting) {
				return strings.TrimSpace(line[i+1:]), true, nil
			}
		}
	}
	return "", false, nil
}

func writeScriptSetting(fs afero.Fs, path, section, setting, value string) error {
	var lines []string
	if ok, _ := afero.Exists(fs, path); ok {
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		lines = splitIniLines(string(raw))
	}

	var out []string
	inSection := false
	placed := false
	for _, line := range lines {
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if inSection && !placed {
				out = append(out, setting+"="+value)
				placed = true
			}
			inSection = strings.EqualFold(line[1:len(line)-1], section)
			out = append(out, line)
			continue
		}
		if inSection {
			if i := strings.IndexByte(line, '='); i >= 0 &&
				strings.EqualFold(strings.TrimSpace(line[:i]), setting) {
				if !placed {
					out = append(out, setting+"="+value)
					placed = true
				}
				continue
			}
		}
		out = append(out, line)
	}
	if !placed {
		if !inSection {
			out = append(out, "["+section+"]")
		}
		out = append(out, setting+"="+value)
	}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	content := strings.Join(out, "\r\n") + "\r\n"
	return errors.Wrapf(afero.WriteFile(fs, path, []byte(content), 0o644), "write %s", path)
}

func splitIniLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
