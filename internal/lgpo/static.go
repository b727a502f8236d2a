package lgpo

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/winops/lgpo/internal/catalog"
	"github.com/winops/lgpo/internal/secpol"
	"github.com/winops/lgpo/internal/transform"
	"github.com/winops/lgpo/internal/winsys"
)

// readStatic reads the raw stored value behind a catalog entry, before the
// read-side transform runs. A nil return means the value is not set.
func (e *Engine) readStatic(ctx context.Context, p *catalog.Policy, machine bool, export *secpol.Export) (interface{}, error) {
	switch p.Mechanism {
	case catalog.Registry:
		rv, err := e.reg.GetValue(p.Registry.Hive, p.Registry.Path, p.Registry.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s\\%s", p.Registry.Path, p.Registry.Value)
		}
		if s, ok := rv.Data.(string); ok && s == winsys.ValueNotSet {
			return nil, nil
		}
		return rv.Data, nil

	case catalog.Secedit:
		if export == nil {
			var err error
			export, err = e.sec.DumpExport(ctx)
			if err != nil {
				return nil, err
			}
		}
		raw, ok := export.Get(p.Secedit.Section, p.Secedit.Option)
		if !ok {
			return nil, nil
		}
		// Registry Values entries stay in their "type,value" wire form so
		// the transforms can pick them apart.
		if p.Secedit.Section == secpol.RegistryValues {
			return raw, nil
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		return raw, nil

	case catalog.NetUserModal:
		fields, err := e.modals.Get(p.Modal.Level)
		if err != nil {
			return nil, errors.Wrapf(err, "read account modals level %d", p.Modal.Level)
		}
		n, ok := fields[p.Modal.Field]
		if !ok {
			return nil, errors.Newf("account modals level %d has no field %s", p.Modal.Level, p.Modal.Field)
		}
		return int64(n), nil

	case catalog.LsaRights:
		sids, err := e.rights.Holders(p.Rights.Right)
		if err != nil {
			return nil, errors.Wrapf(err, "enumerate holders of %s", p.Rights.Right)
		}
		return transform.SidsToNames(e.accounts, sids), nil

	case catalog.ScriptIni:
		path := e.paths.ScriptsFile(machine, p.Script.File)
		value, ok, err := readScriptSetting(e.fs, path, p.Script.Section, p.Script.Setting)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return value, nil

	default:
		return nil, errors.Newf("unhandled mechanism %s", p.Mechanism)
	}
}

// staticWrite is one pending catalog-policy assignment with its write-side
// transform already applied.
type staticWrite struct {
	policy *catalog.Policy
	raw    interface{}
}

// applyRegistry writes a direct registry policy, skipping the write when
// the stored value already matches.
func (e *Engine) applyRegistry(w staticWrite) error {
	p := w.policy.Registry

	if w.raw == nil || transform.IsNotDefined(w.raw) {
		if err := e.reg.DeleteValue(p.Hive, p.Path, p.Value); err != nil {
			return errors.Wrapf(err, "delete %s\\%s", p.Path, p.Value)
		}
		return nil
	}

	desired, err := registryValue(p.Type, w.raw)
	if err != nil {
		return errors.Wrapf(err, "%s", w.policy.Name)
	}
	current, err := e.reg.GetValue(p.Hive, p.Path, p.Value)
	if err == nil && current.Type == desired.Type && regDataEqual(current.Data, desired.Data) {
		return nil
	}
	if err := e.reg.SetValue(p.Hive, p.Path, p.Value, desired); err != nil {
		return errors.Wrapf(err, "write %s\\%s", p.Path, p.Value)
	}
	return nil
}

// regDataEqual compares registry payloads across the representations the
// live registry reads back: integer values always come back as uint64
// whatever width they were written with.
func regDataEqual(current, desired interface{}) bool {
	if cb, ok := current.([]byte); ok {
		db, ok := desired.([]byte)
		return ok && bytes.Equal(cb, db)
	}
	return looseMatch(desired, current)
}

func registryValue(regType uint32, raw interface{}) (winsys.RegValue, error) {
	switch regType {
	case winsys.RegDword:
		n, err := coerceUint64(raw)
		if err != nil {
			return winsys.RegValue{}, err
		}
		return winsys.RegValue{Type: winsys.RegDword, Data: uint32(n)}, nil
	case winsys.RegQword:
		n, err := coerceUint64(raw)
		if err != nil {
			return winsys.RegValue{}, err
		}
		return winsys.RegValue{Type: winsys.RegQword, Data: n}, nil
	case winsys.RegMultiSz:
		items, err := coerceStringSlice(raw)
		if err != nil {
			return winsys.RegValue{}, err
		}
		return winsys.RegValue{Type: winsys.RegMultiSz, Data: items}, nil
	case winsys.RegBinary:
		data, ok := raw.([]byte)
		if !ok {
			return winsys.RegValue{}, errors.Newf("expected binary data, got %T", raw)
		}
		return winsys.RegValue{Type: winsys.RegBinary, Data: data}, nil
	default:
		s, ok := raw.(string)
		if !ok {
			return winsys.RegValue{}, errors.Newf("expected string, got %T", raw)
		}
		return winsys.RegValue{Type: regType, Data: s}, nil
	}
}

// addSeceditWrite folds an assignment into the pending security template,
// unless the exported value already matches.
func addSeceditWrite(tmpl *secpol.Template, export *secpol.Export, w staticWrite) error {
	p := w.policy.Secedit

	value, err := seceditText(w.raw)
	if err != nil {
		return errors.Wrapf(err, "%s", w.policy.Name)
	}
	if current, ok := export.Get(p.Section, p.Option); ok && current == value {
		return nil
	}
	tmpl.Add(p.Section, p.Option, value)
	return nil
}

func seceditText(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case bool:
		if v {
			return "1", nil
		}
		return "0", nil
	default:
		return "", errors.Newf("cannot render %T as a security template value", raw)
	}
}

// applyModals batches account-modal assignments into one NetUserModalsSet
// call per information level.
func (e *Engine) applyModals(writes []staticWrite) error {
	levels := make(map[int]map[string]uint64)
	for _, w := range writes {
		p := w.policy.Modal
		n, err := coerceUint64(w.raw)
		if err != nil {
			return errors.Wrapf(err, "%s", w.policy.Name)
		}
		if levels[p.Level] == nil {
			levels[p.Level] = make(map[string]uint64)
		}
		levels[p.Level][p.Field] = n
	}

	for level, fields := range levels {
		current, err := e.modals.Get(level)
		if err != nil {
			return errors.Wrapf(err, "read account modals level %d", level)
		}
		dirty := false
		for field, want := range fields {
			if current[field] != want {
				dirty = true
				break
			}
		}
		if !dirty {
			continue
		}
		if err := e.modals.Set(level, fields); err != nil {
			return errors.Wrapf(err, "write account modals level %d", level)
		}
	}
	return nil
}

// applyRights reconciles one privilege's holder set. Grants happen before
// revocations so the right never goes momentarily unheld. When cumulative
// assignment is on, current holders are kept.
func (e *Engine) applyRights(w staticWrite) error {
	right := w.policy.Rights.Right

	names, err := coerceStringSlice(w.raw)
	if err != nil {
		return errors.Wrapf(err, "%s", w.policy.Name)
	}
	desired, err := transform.NamesToSids(e.accounts, names)
	if err != nil {
		return errors.Wrapf(err, "%s", w.policy.Name)
	}
	current, err := e.rights.Holders(right)
	if err != nil {
		return errors.Wrapf(err, "enumerate holders of %s", right)
	}

	have := make(map[string]bool, len(current))
	for _, sid := range current {
		have[strings.ToLower(sid)] = true
	}
	want := make(map[string]bool, len(desired))
	for _, sid := range desired {
		want[strings.ToLower(sid)] = true
	}

	for _, sid := range desired {
		if !have[strings.ToLower(sid)] {
			if err := e.rights.Grant(right, sid); err != nil {
				return errors.Wrapf(err, "grant %s", right)
			}
		}
	}
	if !e.CumulativeRights {
		for _, sid := range current {
			if !want[strings.ToLower(sid)] {
				if err := e.rights.Revoke(right, sid); err != nil {
					return errors.Wrapf(err, "revoke %s", right)
				}
			}
		}
	}
	return nil
}

// applyScript writes a Group Policy scripts ini setting. Returns whether
// the file actually changed so the caller can bump gpt.ini.
func (e *Engine) applyScript(machine bool, w staticWrite) (bool, error) {
	p := w.policy.Script

	value, ok := w.raw.(string)
	if !ok {
		return false, errors.Newf("%s: expected string, got %T", w.policy.Name, w.raw)
	}
	path := e.paths.ScriptsFile(machine, p.File)
	current, exists, err := readScriptSetting(e.fs, path, p.Section, p.Setting)
	if err != nil {
		return false, err
	}
	if exists && current == value {
		return false, nil
	}
	if err := writeScriptSetting(e.fs, path, p.Section, p.Setting, value); err != nil {
		return false, err
	}
	return true, nil
}
