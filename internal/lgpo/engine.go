// Package lgpo edits Windows local Group Policy: Administrative Template
// policies through Registry.pol, and the built-in security policies
// through secedit templates, net account modals, LSA right assignments,
// direct registry values and the Group Policy script ini files.
package lgpo

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"

	"github.com/winops/lgpo/internal/admx"
	"github.com/winops/lgpo/internal/catalog"
	"github.com/winops/lgpo/internal/gptini"
	"github.com/winops/lgpo/internal/pol"
	"github.com/winops/lgpo/internal/secpol"
	"github.com/winops/lgpo/internal/transform"
	"github.com/winops/lgpo/internal/winsys"
)

// Config wires an Engine to its operating system surfaces. Zero fields get
// sensible defaults; tests inject fakes.
type Config struct {
	Fs       afero.Fs
	Registry winsys.Registry
	Rights   winsys.RightsManager
	Modals   winsys.ModalStore
	Accounts winsys.AccountResolver
	Runner   winsys.CommandRunner
	Notifier winsys.PolicyNotifier

	// Paths locate the local Group Policy directory tree.
	Paths Paths
	// DefinitionsDir holds the .admx files and their language subfolders.
	DefinitionsDir string
	// Language picks the .adml translation, en-US when empty.
	Language string
	// WorkDir is where secedit scratch files go.
	WorkDir string

	// CumulativeRights keeps existing holders when assigning user rights
	// instead of replacing the holder set.
	CumulativeRights bool
}

// Engine applies and reports local Group Policy settings.
type Engine struct {
	fs       afero.Fs
	reg      winsys.Registry
	rights   winsys.RightsManager
	modals   winsys.ModalStore
	accounts winsys.AccountResolver
	notifier winsys.PolicyNotifier
	sec      *secpol.Manager
	cache    *admx.Cache

	paths    Paths
	defsDir  string
	language string

	CumulativeRights bool
}

// New builds an Engine from the config, filling in defaults.
func New(cfg Config) *Engine {
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	paths := cfg.Paths
	if paths.Root == "" {
		paths = DefaultPaths()
	}
	defsDir := cfg.DefinitionsDir
	if defsDir == "" {
		defsDir = filepath.Join(systemRoot(), "PolicyDefinitions")
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}
	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Engine{
		fs:               fs,
		reg:              cfg.Registry,
		rights:           cfg.Rights,
		modals:           cfg.Modals,
		accounts:         cfg.Accounts,
		notifier:         cfg.Notifier,
		sec:              secpol.NewManager(fs, cfg.Runner, workDir),
		cache:            admx.NewCache(fs),
		paths:            paths,
		defsDir:          defsDir,
		language:         language,
		CumulativeRights: cfg.CumulativeRights,
	}
}

// bundle returns the Administrative Template bundle, or nil when the
// definitions folder cannot be read. Individual file failures are logged
// and tolerated.
func (e *Engine) bundle() *admx.Bundle {
	b, failures, err := e.cache.Get(e.defsDir, e.language)
	if err != nil {
		log.Debug().Err(err).Str("dir", e.defsDir).Msg("admx definitions unavailable")
		return nil
	}
	for _, failure := range failures {
		log.Debug().Str("file", failure.AdmxPath).Msg(failure.Error())
	}
	return b
}

// RefreshCache drops the compiled template bundle so the next operation
// re-reads the definitions folder. Call it after staging new .admx or
// .adml files.
func (e *Engine) RefreshCache() {
	e.cache.Invalidate(e.defsDir, e.language)
}

func classSection(machine bool) admx.Section {
	if machine {
		return admx.Machine
	}
	return admx.User
}

func classGpt(machine bool) gptini.Class {
	if machine {
		return gptini.Machine
	}
	return gptini.User
}

// GetPolicy returns the current value of one policy. Administrative
// Template policies come back as a state string, or the element value map
// when enabled with options. Built-in policies come back in display units.
func (e *Engine) GetPolicy(ctx context.Context, name string, machine bool) (interface{}, error) {
	res, err := resolvePolicy(catalog.Builtin().ForClass(machine), e.bundle(), classSection(machine), name)
	if err != nil {
		return nil, err
	}
	if res.Static != nil {
		raw, err := e.readStatic(ctx, res.Static, machine, nil)
		if err != nil {
			return nil, err
		}
		v := res.Static.Transform.Get.Apply(raw)
		if v == nil {
			v = transform.NotDefined
		}
		return v, nil
	}
	return e.admxValue(machine, res.Admx)
}

func (e *Engine) admxValue(machine bool, policy *admx.Policy) (interface{}, error) {
	pf, err := pol.Load(e.fs, e.paths.PolFile(machine))
	if err != nil {
		return nil, err
	}
	state, options := admxPolicyState(e.bundle(), pf, policy)
	if state == StateEnabled && len(options) > 0 {
		return options, nil
	}
	return state, nil
}

// ElementInfo describes one configurable input of a template policy.
type ElementInfo struct {
	ID    string
	Label string
	Kind  string
}

// PolicyInfo is the metadata behind a policy name.
type PolicyInfo struct {
	Name      string
	Mechanism string
	Aliases   []string

	// Options is the accepted value list for built-in policies with a
	// fixed choice set.
	Options []interface{}

	// Path, Explanation and Elements are set for template policies.
	Path        []string
	Explanation string
	Elements    []ElementInfo
}

// GetPolicyInfo describes a policy without reading its current value.
func (e *Engine) GetPolicyInfo(name string, machine bool) (*PolicyInfo, error) {
	bundle := e.bundle()
	res, err := resolvePolicy(catalog.Builtin().ForClass(machine), bundle, classSection(machine), name)
	if err != nil {
		return nil, err
	}
	if res.Static != nil {
		info := &PolicyInfo{
			Name:      res.Static.Name,
			Mechanism: res.Static.Mechanism.String(),
			Aliases:   res.Aliases,
		}
		if res.Static.Settings != nil {
			info.Options = res.Static.Settings.Options
		}
		return info, nil
	}

	p := res.Admx
	info := &PolicyInfo{
		Name:        p.DisplayName,
		Mechanism:   "AdministrativeTemplate",
		Aliases:     res.Aliases,
		Path:        bundle.Breadcrumb(p),
		Explanation: p.Explanation,
	}
	for _, element := range p.Raw.Elements {
		info.Elements = append(info.Elements, ElementInfo{
			ID:    element.GetID(),
			Label: bundle.ElementLabel(p, element.GetID()),
			Kind:  element.GetKind(),
		})
	}
	return info, nil
}

// Get reads every built-in policy plus every configured template policy
// for the class. Template policies are keyed by their full category path.
func (e *Engine) Get(ctx context.Context, machine bool) (map[string]interface{}, error) {
	out, err := e.readBuiltin(ctx, machine)
	if err != nil {
		return nil, err
	}
	entries, err := e.configuredTemplates(machine)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		out[strings.Join(entry.path, `\`)] = entry.value
	}
	return out, nil
}

// GetTree is Get with configured template policies nested under their
// category path instead of flattened into a single backslash key.
func (e *Engine) GetTree(ctx context.Context, machine bool) (map[string]interface{}, error) {
	out, err := e.readBuiltin(ctx, machine)
	if err != nil {
		return nil, err
	}
	entries, err := e.configuredTemplates(machine)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		node := out
		for _, category := range entry.path[:len(entry.path)-1] {
			child, ok := node[category].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[category] = child
			}
			node = child
		}
		node[entry.path[len(entry.path)-1]] = entry.value
	}
	return out, nil
}

func (e *Engine) readBuiltin(ctx context.Context, machine bool) (map[string]interface{}, error) {
	out := make(map[string]interface{})

	var export *secpol.Export
	policies := catalog.Builtin().ForClass(machine)
	if hasMechanism(policies, catalog.Secedit) {
		var err error
		export, err = e.sec.DumpExport(ctx)
		if err != nil {
			return nil, err
		}
	}
	for _, p := range policies {
		raw, err := e.readStatic(ctx, p, machine, export)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p.Name)
		}
		v := p.Transform.Get.Apply(raw)
		if v == nil {
			v = transform.NotDefined
		}
		out[p.Name] = v
	}
	return out, nil
}

// templateEntry is one configured template policy with its category path.
type templateEntry struct {
	path  []string
	value interface{}
}

func (e *Engine) configuredTemplates(machine bool) ([]templateEntry, error) {
	bundle := e.bundle()
	if bundle == nil {
		return nil, nil
	}
	pf, err := pol.Load(e.fs, e.paths.PolFile(machine))
	if err != nil {
		return nil, err
	}
	class := classSection(machine)
	var entries []templateEntry
	for _, p := range bundle.Policies {
		if !p.Raw.Section.AppliesTo(class) {
			continue
		}
		state, options := admxPolicyState(bundle, pf, p)
		if state == StateNotConfigured {
			continue
		}
		entry := templateEntry{path: bundle.Breadcrumb(p)}
		if state == StateEnabled && len(options) > 0 {
			entry.value = options
		} else {
			entry.value = state
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func hasMechanism(policies map[string]*catalog.Policy, m catalog.Mechanism) bool {
	for _, p := range policies {
		if p.Mechanism == m {
			return true
		}
	}
	return false
}

// ListConfigurablePolicies returns every name Set accepts for the class,
// sorted. Template policies are listed by full category path.
func (e *Engine) ListConfigurablePolicies(machine bool, includeTemplates bool) []string {
	var names []string
	for _, p := range catalog.Builtin().ForClass(machine) {
		names = append(names, p.Name)
	}
	if includeTemplates {
		if bundle := e.bundle(); bundle != nil {
			class := classSection(machine)
			for _, p := range bundle.Policies {
				if p.Raw.Section.AppliesTo(class) {
					names = append(names, strings.Join(bundle.Breadcrumb(p), `\`))
				}
			}
		}
	}
	sort.Strings(names)
	return names
}

// SetComputerPolicy applies a batch of machine-class settings.
func (e *Engine) SetComputerPolicy(ctx context.Context, settings map[string]interface{}) error {
	return e.Set(ctx, true, settings)
}

// SetUserPolicy applies a batch of user-class settings.
func (e *Engine) SetUserPolicy(ctx context.Context, settings map[string]interface{}) error {
	return e.Set(ctx, false, settings)
}

// pending is one resolved assignment from a Set batch.
type pending struct {
	requested string
	value     interface{}
	res       *Resolved

	// static
	raw interface{}

	// template
	state   string
	options map[string]interface{}
}

// Set validates a whole batch of assignments, then applies them grouped by
// mechanism: one secedit import, one account-modal write per level, one
// Registry.pol rewrite. Nothing is written until every assignment has
// passed validation, and every written value is read back and checked.
func (e *Engine) Set(ctx context.Context, machine bool, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	policies := catalog.Builtin().ForClass(machine)
	bundle := e.bundle()
	class := classSection(machine)

	var batch []pending
	seen := make(map[string]string)
	for name, value := range settings {
		res, err := resolvePolicy(policies, bundle, class, name)
		if err != nil {
			return err
		}
		if prior, dup := seen[strings.ToLower(res.Name())]; dup {
			return errors.Newf("%q and %q name the same policy", prior, name)
		}
		seen[strings.ToLower(res.Name())] = name

		item := pending{requested: name, value: value, res: res}
		if res.Static != nil {
			if err := validateStatic(res.Static, value); err != nil {
				return err
			}
			if res.Static.Mechanism == catalog.Registry && transform.IsNotDefined(value) {
				// skips the write transform; the value is deleted
				item.raw = nil
			} else {
				item.raw = res.Static.Transform.Put.Apply(value)
				if s, ok := item.raw.(string); ok && s == transform.InvalidValue {
					return errors.Newf("%s: %v is not a valid value", res.Static.Name, value)
				}
			}
		} else {
			state, options, err := desiredAdmxState(value)
			if err != nil {
				return errors.Wrapf(err, "%s", res.Admx.UniqueID)
			}
			if state == StateEnabled {
				if err := validateElements(bundle, res.Admx, options); err != nil {
					return err
				}
			}
			item.state, item.options = state, options
		}
		batch = append(batch, item)
	}

	if err := e.applyBatch(ctx, machine, bundle, batch); err != nil {
		return err
	}
	return e.verifyBatch(ctx, machine, bundle, batch)
}

func validateStatic(p *catalog.Policy, value interface{}) error {
	if p.Settings == nil || p.Settings.Accepts(value) {
		return nil
	}
	if len(p.Settings.Options) > 0 {
		return errors.Newf("%s: %v is not one of the accepted values %v", p.Name, value, p.Settings.Options)
	}
	return errors.Newf("%s: %v is not a valid value", p.Name, value)
}

// desiredAdmxState interprets a requested template policy value: a state
// string, or an element value map which implies Enabled.
func desiredAdmxState(value interface{}) (string, map[string]interface{}, error) {
	switch v := value.(type) {
	case string:
		for _, state := range []string{StateNotConfigured, StateDisabled, StateEnabled} {
			if strings.EqualFold(v, state) {
				return state, nil, nil
			}
		}
		return "", nil, errors.Newf("%q is not a state; expected %s, %s, %s or an element value map",
			v, StateEnabled, StateDisabled, StateNotConfigured)
	case map[string]interface{}:
		return StateEnabled, v, nil
	default:
		return "", nil, errors.Newf("expected a state string or element value map, got %T", value)
	}
}

func (e *Engine) applyBatch(ctx context.Context, machine bool, bundle *admx.Bundle, batch []pending) error {
	var secWrites, modalWrites []staticWrite
	var admxPending []pending

	scriptsDirty := false
	for _, item := range batch {
		if item.res.Admx != nil {
			admxPending = append(admxPending, item)
			continue
		}
		w := staticWrite{policy: item.res.Static, raw: item.raw}
		switch item.res.Static.Mechanism {
		case catalog.Secedit:
			secWrites = append(secWrites, w)
		case catalog.NetUserModal:
			modalWrites = append(modalWrites, w)
		case catalog.LsaRights:
			if err := e.applyRights(w); err != nil {
				return err
			}
		case catalog.Registry:
			if err := e.applyRegistry(w); err != nil {
				return err
			}
		case catalog.ScriptIni:
			changed, err := e.applyScript(machine, w)
			if err != nil {
				return err
			}
			scriptsDirty = scriptsDirty || changed
		}
	}

	if len(secWrites) > 0 {
		export, err := e.sec.DumpExport(ctx)
		if err != nil {
			return err
		}
		tmpl := secpol.NewTemplate()
		for _, w := range secWrites {
			if err := addSeceditWrite(tmpl, export, w); err != nil {
				return err
			}
		}
		if err := e.sec.Import(ctx, tmpl); err != nil {
			return err
		}
	}
	if len(modalWrites) > 0 {
		if err := e.applyModals(modalWrites); err != nil {
			return err
		}
	}

	if scriptsDirty {
		if err := gptini.Update(e.fs, e.paths.GptIni(), gptini.ScriptsCSE, classGpt(machine)); err != nil {
			return err
		}
	}

	if len(admxPending) > 0 {
		if err := e.applyAdmxBatch(machine, bundle, admxPending); err != nil {
			return err
		}
	}

	log.Debug().Int("count", len(batch)).Bool("machine", machine).Msg("policy batch applied")
	return nil
}

func (e *Engine) applyAdmxBatch(machine bool, bundle *admx.Bundle, batch []pending) error {
	path := e.paths.PolFile(machine)
	pf, err := pol.Load(e.fs, path)
	if err != nil {
		return err
	}
	before := polSnapshot(pf)

	for _, item := range batch {
		if err := applyAdmxState(bundle, pf, item.res.Admx, item.state, item.options); err != nil {
			return err
		}
	}

	if bytes.Equal(before, polSnapshot(pf)) {
		return nil
	}
	if err := e.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create %s", filepath.Dir(path))
	}
	if err := pf.Save(e.fs, path); err != nil {
		return err
	}
	if err := gptini.Update(e.fs, e.paths.GptIni(), gptini.RegistryCSE, classGpt(machine)); err != nil {
		return err
	}
	if e.notifier != nil {
		// best effort; policy lands on the next periodic refresh anyway
		if err := e.notifier.Refresh(machine); err != nil {
			log.Debug().Err(err).Msg("policy refresh notification failed")
		}
	}
	return nil
}

func polSnapshot(pf *pol.File) []byte {
	var buf bytes.Buffer
	if err := pf.SaveToWriter(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

// verifyBatch reads every assignment back and compares against what was
// requested.
func (e *Engine) verifyBatch(ctx context.Context, machine bool, bundle *admx.Bundle, batch []pending) error {
	var export *secpol.Export
	var pf *pol.File

	for _, item := range batch {
		if item.res.Static != nil {
			p := item.res.Static
			if p.Mechanism == catalog.Secedit && export == nil {
				var err error
				export, err = e.sec.DumpExport(ctx)
				if err != nil {
					return err
				}
			}
			raw, err := e.readStatic(ctx, p, machine, export)
			if err != nil {
				return errors.Wrapf(err, "verify %s", p.Name)
			}
			got := p.Transform.Get.Apply(raw)
			if got == nil {
				got = transform.NotDefined
			}
			if !e.staticMatches(p, item.value, got) {
				return errors.Newf("verification failed for %s: set %v, read back %v", p.Name, item.value, got)
			}
			continue
		}

		if pf == nil {
			var err error
			pf, err = pol.Load(e.fs, e.paths.PolFile(machine))
			if err != nil {
				return err
			}
		}
		state, options := admxPolicyState(bundle, pf, item.res.Admx)
		if state != item.state {
			return errors.Newf("verification failed for %s: set %s, read back %s",
				item.res.Admx.UniqueID, item.state, state)
		}
		for id, want := range item.options {
			if !looseMatch(want, options[id]) {
				return errors.Newf("verification failed for %s: element %s set %v, read back %v",
					item.res.Admx.UniqueID, id, want, options[id])
			}
		}
	}
	return nil
}

func (e *Engine) staticMatches(p *catalog.Policy, want, got interface{}) bool {
	if p.Mechanism == catalog.LsaRights {
		// compare as SIDs so short names match their qualified forms
		wantNames, err := coerceStringSlice(want)
		if err != nil {
			return false
		}
		gotNames, err := coerceStringSlice(got)
		if err != nil {
			return false
		}
		wantSids, err := transform.NamesToSids(e.accounts, wantNames)
		if err != nil {
			return false
		}
		gotSids, err := transform.NamesToSids(e.accounts, gotNames)
		if err != nil {
			return false
		}
		if !e.CumulativeRights && len(gotSids) != len(wantSids) {
			return false
		}
		held := make(map[string]bool, len(gotSids))
		for _, sid := range gotSids {
			held[strings.ToLower(sid)] = true
		}
		for _, sid := range wantSids {
			if !held[strings.ToLower(sid)] {
				return false
			}
		}
		return true
	}
	return looseMatch(want, got)
}

func looseMatch(want, got interface{}) bool {
	if ws, ok := want.(string); ok {
		if gs, ok := got.(string); ok {
			return strings.EqualFold(strings.TrimSpace(ws), strings.TrimSpace(gs))
		}
	}
	if wantItems, err := coerceStringSlice(want); err == nil {
		gotItems, err := coerceStringSlice(got)
		if err != nil || len(wantItems) != len(gotItems) {
			return false
		}
		for i := range wantItems {
			if wantItems[i] != gotItems[i] {
				return false
			}
		}
		return true
	}
	if wm, err := coerceStringMap(want); err == nil {
		gm, err := coerceStringMap(got)
		if err != nil || len(wm) != len(gm) {
			return false
		}
		for k, v := range wm {
			if gm[k] != v {
				return false
			}
		}
		return true
	}
	if wb, ok := want.(bool); ok {
		gb, ok := got.(bool)
		return ok && wb == gb
	}
	if wn, ok := numeric(want); ok {
		gn, gok := numeric(got)
		return gok && wn == gn
	}
	return want == got
}

func numeric(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case float64:
		if n == float64(int64(n)) {
			return int64(n), true
		}
	}
	return 0, false
}

func systemRoot() string {
	if root := os.Getenv("SystemRoot"); root != "" {
		return root
	}
	return `C:\Windows`
}
