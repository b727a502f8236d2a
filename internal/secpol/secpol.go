// Package secpol drives the security policy database through secedit. The
// settings it covers (password policy values secedit owns, audit policy,
// privilege rights, the security-options registry values) are exported and
// imported as INF security templates.
package secpol

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"

	"github.com/winops/lgpo/internal/winsys"
)

// Section names of a security template, in the order secedit writes them.
const (
	SystemAccess    = "System Access"
	EventAudit      = "Event Audit"
	RegistryValues  = "Registry Values"
	PrivilegeRights = "Privilege Rights"
)

var sectionOrder = []string{SystemAccess, EventAudit, RegistryValues, PrivilegeRights}

// Setting is one "name = value" line of a template section.
type Setting struct {
	Name  string
	Value string
}

// Template collects the settings to import, grouped by section. Sections
// with no settings are omitted from the INF.
type Template struct {
	sections map[string][]Setting
}

// NewTemplate returns an empty template.
func NewTemplate() *Template {
	return &Template{sections: make(map[string][]Setting)}
}

// Add appends a setting to a section.
func (t *Template) Add(section, name, value string) {
	t.sections[section] = append(t.sections[section], Setting{Name: name, Value: value})
}

// Empty reports whether the template has no settings at all.
func (t *Template) Empty() bool {
	for _, settings := range t.sections {
		if len(settings) > 0 {
			return false
		}
	}
	return true
}

// Render produces the INF text secedit imports: a [Unicode] header, the
// populated sections in canonical order, and the $CHICAGO$ version trailer.
func (t *Template) Render() string {
	var sb strings.Builder
	sb.WriteString("[Unicode]\r\nUnicode=yes\r\n")
	for _, section := range sectionOrder {
		settings := t.sections[section]
		if len(settings) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "[%s]\r\n", section)
		for _, s := range settings {
			fmt.Fprintf(&sb, "%s = %s\r\n", s.Name, s.Value)
		}
	}
	sb.WriteString("[Version]\r\nsignature=\"$CHICAGO$\"\r\nRevision=1\r\n")
	return sb.String()
}

// Export is a parsed secedit export, sections mapped to their settings.
type Export struct {
	sections map[string]map[string]string
}

// Get returns the raw value of a setting, reporting whether the export
// defines it. Lookup is case-insensitive on both names.
func (e *Export) Get(section, name string) (string, bool) {
	settings, ok := e.sections[strings.ToLower(section)]
	if !ok {
		return "", false
	}
	v, ok := settings[strings.ToLower(name)]
	return v, ok
}

// ParseExport decodes the INF text secedit wrote. Exports are UTF-16LE
// with a BOM; plain text is accepted too for exports produced elsewhere.
func ParseExport(data []byte) (*Export, error) {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		decoded, err := decoder.Bytes(data)
		if err != nil {
			return nil, errors.Wrap(err, "decode secedit export")
		}
		data = decoded
	}

	export := &Export{sections: make(map[string]map[string]string)}
	var current map[string]string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.ToLower(line[1 : len(line)-1])
			current = make(map[string]string)
			export.sections[name] = current
			continue
		}
		if current == nil {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		current[strings.ToLower(strings.TrimSpace(parts[0]))] = strings.TrimSpace(parts[1])
	}
	return export, nil
}

// SplitPrivilegeHolders splits a Privilege Rights value ("*S-1-5-32-544,
// *S-1-5-19") into bare SIDs.
func SplitPrivilegeHolders(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	var sids []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "*"))
		if part != "" {
			sids = append(sids, part)
		}
	}
	return sids
}

// Manager shells out to secedit for exports and imports. The filesystem is
// injected so tests can intercept the temp files.
type Manager struct {
	fs      afero.Fs
	runner  winsys.CommandRunner
	workDir string
}

// NewManager returns a manager writing its temp files under workDir.
func NewManager(fs afero.Fs, runner winsys.CommandRunner, workDir string) *Manager {
	return &Manager{fs: fs, runner: runner, workDir: workDir}
}

// DumpExport exports the current security database and parses it.
func (m *Manager) DumpExport(ctx context.Context) (*Export, error) {
	cfg := filepath.Join(m.workDir, "secpol-export.inf")
	defer m.fs.Remove(cfg)

	if _, err := m.runner.Run(ctx, "secedit", "/export", "/cfg", cfg); err != nil {
		return nil, errors.Wrap(err, "secedit export")
	}
	data, err := afero.ReadFile(m.fs, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "read secedit export")
	}
	return ParseExport(data)
}

// Import renders the template and configures the security database from it
// in a single secedit run. A template with no settings is a no-op.
func (m *Manager) Import(ctx context.Context, tmpl *Template) error {
	if tmpl.Empty() {
		return nil
	}

	cfg := filepath.Join(m.workDir, "secpol-import.inf")
	db := filepath.Join(m.workDir, "secpol-import.sdb")
	defer m.fs.Remove(cfg)
	defer m.fs.Remove(db)

	content := tmpl.Render()
	log.Debug().Int("bytes", len(content)).Msg("importing security template")
	if err := afero.WriteFile(m.fs, cfg, []byte(content), 0o600); err != nil {
		return errors.Wrap(err, "write security template")
	}

	if out, err := m.runner.Run(ctx, "secedit", "/configure", "/db", db, "/cfg", cfg); err != nil {
		return errors.Wrapf(err, "secedit configure: %s", out)
	}
	return nil
}
