// Package winsystest provides in-memory implementations of the winsys
// backends for tests that must run on any platform.
package winsystest

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/winops/lgpo/internal/winsys"
)

// FakeRegistry stores values in a map keyed by hive, key path and value
// name, all case-insensitive like the real registry.
type FakeRegistry struct {
	Values map[string]winsys.RegValue
	Writes int
}

func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{Values: make(map[string]winsys.RegValue)}
}

func regKey(hive winsys.Hive, key, valueName string) string {
	h := "machine"
	if hive == winsys.CurrentUser {
		h = "user"
	}
	return h + "|" + strings.ToLower(key) + "|" + strings.ToLower(valueName)
}

func (f *FakeRegistry) GetValue(hive winsys.Hive, key, valueName string) (winsys.RegValue, error) {
	if v, ok := f.Values[regKey(hive, key, valueName)]; ok {
		// the live registry reports every integer value as uint64,
		// whatever width it was written with
		switch n := v.Data.(type) {
		case uint32:
			v.Data = uint64(n)
		case int:
			v.Data = uint64(n)
		case int64:
			v.Data = uint64(n)
		}
		return v, nil
	}
	return winsys.RegValue{Type: 1, Data: winsys.ValueNotSet}, nil
}

func (f *FakeRegistry) SetValue(hive winsys.Hive, key, valueName string, value winsys.RegValue) error {
	f.Values[regKey(hive, key, valueName)] = value
	f.Writes++
	return nil
}

func (f *FakeRegistry) DeleteValue(hive winsys.Hive, key, valueName string) error {
	if _, ok := f.Values[regKey(hive, key, valueName)]; ok {
		delete(f.Values, regKey(hive, key, valueName))
		f.Writes++
	}
	return nil
}

// FakeRights tracks right assignments per privilege name.
type FakeRights struct {
	Grants  map[string][]string
	Granted []string
	Revoked []string
}

func NewFakeRights() *FakeRights {
	return &FakeRights{Grants: make(map[string][]string)}
}

func (f *FakeRights) Holders(right string) ([]string, error) {
	out := append([]string(nil), f.Grants[right]...)
	sort.Strings(out)
	return out, nil
}

func (f *FakeRights) Grant(right string, sid string) error {
	for _, existing := range f.Grants[right] {
		if strings.EqualFold(existing, sid) {
			return nil
		}
	}
	f.Grants[right] = append(f.Grants[right], sid)
	f.Granted = append(f.Granted, right+":"+sid)
	return nil
}

func (f *FakeRights) Revoke(right string, sid string) error {
	kept := f.Grants[right][:0]
	for _, existing := range f.Grants[right] {
		if !strings.EqualFold(existing, sid) {
			kept = append(kept, existing)
		}
	}
	f.Grants[right] = kept
	f.Revoked = append(f.Revoked, right+":"+sid)
	return nil
}

// FakeModals keeps modal fields per level and counts writes.
type FakeModals struct {
	Levels map[int]map[string]uint64
	Writes int
}

func NewFakeModals() *FakeModals {
	return &FakeModals{Levels: map[int]map[string]uint64{
		0: {
			"min_passwd_len":    0,
			"max_passwd_age":    3600000,
			"min_passwd_age":    0,
			"force_logoff":      4294967295,
			"password_hist_len": 0,
		},
		3: {
			"lockout_duration":           1800,
			"lockout_observation_window": 1800,
			"lockout_threshold":          0,
		},
	}}
}

func (f *FakeModals) Get(level int) (map[string]uint64, error) {
	fields, ok := f.Levels[level]
	if !ok {
		return nil, errors.Newf("unsupported modal level %d", level)
	}
	out := make(map[string]uint64, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}

func (f *FakeModals) Set(level int, fields map[string]uint64) error {
	current, ok := f.Levels[level]
	if !ok {
		return errors.Newf("unsupported modal level %d", level)
	}
	for k, v := range fields {
		if _, known := current[k]; !known {
			return errors.Newf("unknown modal field %s for level %d", k, level)
		}
		current[k] = v
	}
	f.Writes++
	return nil
}

// FakeAccounts resolves from fixed tables.
type FakeAccounts struct {
	BySid  map[string]string
	ByName map[string]string
}

func NewFakeAccounts() *FakeAccounts {
	return &FakeAccounts{
		BySid: map[string]string{
			"S-1-5-32-544": `BUILTIN\Administrators`,
			"S-1-5-32-545": `BUILTIN\Users`,
			"S-1-5-19":     `NT AUTHORITY\LOCAL SERVICE`,
			"S-1-5-20":     `NT AUTHORITY\NETWORK SERVICE`,
		},
		ByName: map[string]string{
			`builtin\administrators`:       "S-1-5-32-544",
			`administrators`:               "S-1-5-32-544",
			`builtin\users`:                "S-1-5-32-545",
			`users`:                        "S-1-5-32-545",
			`nt authority\local service`:   "S-1-5-19",
			`local service`:                "S-1-5-19",
			`nt authority\network service`: "S-1-5-20",
			`network service`:              "S-1-5-20",
		},
	}
}

func (f *FakeAccounts) NameFromSid(sid string) (string, error) {
	if name, ok := f.BySid[sid]; ok {
		return name, nil
	}
	return "", errors.Newf("no account for sid %s", sid)
}

func (f *FakeAccounts) SidFromName(name string) (string, error) {
	if sid, ok := f.ByName[strings.ToLower(name)]; ok {
		return sid, nil
	}
	return "", errors.Newf("no such account: %s", name)
}

// FakeNotifier records policy refresh requests.
type FakeNotifier struct {
	Refreshes []bool
}

func (f *FakeNotifier) Refresh(machine bool) error {
	f.Refreshes = append(f.Refreshes, machine)
	return nil
}

// FakeRunner records commands and returns canned output per command name.
type FakeRunner struct {
	Commands [][]string
	Output   map[string][]byte
	Err      error
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{Output: make(map[string][]byte)}
}

func (f *FakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.Commands = append(f.Commands, append([]string{name}, args...))
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Output[name], nil
}
