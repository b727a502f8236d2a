// Package gptini maintains the gpt.ini file that tells the Group Policy
// client which client-side extensions must reprocess local policy. The file
// is a tiny INI with a [General] section holding two GUID-pair lists and a
// packed version counter. Windows is strict about this file, so it is
// rewritten field by field with CRLF line endings rather than through a
// generic INI library.
package gptini

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// Class selects which half of the version counter a write bumps and which
// extension list it belongs to.
type Class int

const (
	Machine Class = iota
	User
)

const (
	sectionHeader = "[General]"
	machineKey    = "gPCMachineExtensionNames"
	userKey       = "gPCUserExtensionNames"
	versionKey    = "Version"

	// RegistryCSE is the registry-extension GUID pair recorded after a
	// Registry.pol write. Order inside the pair is the tool GUID first.
	RegistryCSE = "[{35378EAC-683F-11D2-A89A-00C04FBBCFA2}{D02B1F72-3407-48AE-BA88-E8213C6761F1}]"
	// ScriptsCSE is the scripts-extension GUID pair for scripts.ini writes.
	ScriptsCSE = "[{42B5FAAE-6536-11D2-AE5A-0000F87571E3}{40B6664F-4972-11D1-A7CA-0000F87571E3}]"
)

// Update records that an extension touched policy of the given class:
// the GUID pair is merged into the class's extension list and the matching
// half of the version counter is incremented. A missing gpt.ini is created.
func Update(fs afero.Fs, path, extensionPair string, class Class) error {
	lines := []string{sectionHeader}
	if ok, _ := afero.Exists(fs, path); ok {
		raw, err := afero.ReadFile(fs, path)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		lines = splitLines(string(raw))
	}

	listKey := machineKey
	if class == User {
		listKey = userKey
	}

	var out []string
	sawSection := false
	sawList := false
	sawVersion := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.EqualFold(trimmed, sectionHeader):
			sawSection = true
			out = append(out, sectionHeader)
		case hasKey(trimmed, listKey):
			sawList = true
			out = append(out, listKey+"="+mergePairs(valueOf(trimmed), extensionPair))
		case hasKey(trimmed, versionKey):
			sawVersion = true
			ver, err := bumpVersion(valueOf(trimmed), class)
			if err != nil {
				return err
			}
			out = append(out, versionKey+"="+ver)
		case trimmed == "":
			// drop blank lines, the file is rewritten compact
		default:
			out = append(out, trimmed)
		}
	}

	if !sawSection {
		out = append([]string{sectionHeader}, out...)
	}
	if !sawList {
		out = append(out, listKey+"="+extensionPair)
	}
	if !sawVersion {
		ver, err := bumpVersion("0", class)
		if err != nil {
			return err
		}
		out = append(out, versionKey+"="+ver)
	}

	content := strings.Join(out, "\r\n") + "\r\n"
	if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func splitLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	return strings.Split(strings.TrimRight(raw, "\n"), "\n")
}

func hasKey(line, key string) bool {
	i := strings.IndexByte(line, '=')
	return i >= 0 && strings.EqualFold(strings.TrimSpace(line[:i]), key)
}

func valueOf(line string) string {
	i := strings.IndexByte(line, '=')
	return strings.TrimSpace(line[i+1:])
}

// mergePairs inserts pair into the bracket-group list if absent and returns
// the groups sorted, the order the Group Policy client itself keeps them in.
func mergePairs(existing, pair string) string {
	groups := splitPairs(existing)
	for _, g := range groups {
		if strings.EqualFold(g, pair) {
			return joinSorted(groups)
		}
	}
	return joinSorted(append(groups, pair))
}

func splitPairs(list string) []string {
	var groups []string
	depth := 0
	start := 0
	for i, r := range list {
		switch r {
		case '[':
			if depth == 0 {
				start = i
			}
			depth++
		case ']':
			depth--
			if depth == 0 {
				groups = append(groups, list[start:i+1])
			}
		}
	}
	return groups
}

func joinSorted(groups []string) string {
	sort.Slice(groups, func(i, j int) bool {
		return strings.ToLower(groups[i]) < strings.ToLower(groups[j])
	})
	return strings.Join(groups, "")
}

// bumpVersion increments the class's half of the packed counter: machine
// policy lives in the low 16 bits, user policy in the high 16 bits.
func bumpVersion(current string, class Class) (string, error) {
	v, err := strconv.ParseUint(current, 10, 32)
	if err != nil {
		return "", errors.Wrapf(err, "parse gpt.ini version %q", current)
	}
	if class == Machine {
		v += 1
	} else {
		v += 65536
	}
	return strconv.FormatUint(v&0xFFFFFFFF, 10), nil
}
