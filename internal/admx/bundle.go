package admx

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Bundle is a compiled set of definition files with their localizations.
type Bundle struct {
	files      map[*DefinitionFile]*ResourceFile
	namespaces map[string]*DefinitionFile

	// Policies and Categories are keyed by namespace-qualified ID.
	Policies   map[string]*Policy
	Categories map[string]*Category
}

// Policy is a definition joined with its localized strings.
type Policy struct {
	UniqueID     string
	DisplayName  string
	Explanation  string
	Category     *Category
	Presentation *Presentation
	Raw          *PolicyDef
}

// Category is a compiled category node.
type Category struct {
	UniqueID    string
	DisplayName string
	Parent      *Category
	Children    []*Category
	Policies    []*Policy
	Raw         *CategoryDef
}

// LoadFailType classifies why a definition file was rejected.
type LoadFailType int

const (
	BadAdmxParse LoadFailType = iota
	NoAdml
	BadAdmlParse
	DuplicateNamespace
)

// LoadFailure describes one rejected .admx file.
type LoadFailure struct {
	FailType LoadFailType
	AdmxPath string
	Info     string
}

func (f *LoadFailure) Error() string {
	msg := fmt.Sprintf("'%s' failed to load: ", f.AdmxPath)
	switch f.FailType {
	case BadAdmxParse:
		msg += "ADMX XML could not be parsed: " + f.Info
	case NoAdml:
		msg += "ADML file not found"
	case BadAdmlParse:
		msg += "ADML XML could not be parsed: " + f.Info
	case DuplicateNamespace:
		msg += f.Info + " namespace already in use"
	default:
		msg += "unknown error"
	}
	return msg
}

// NewBundle returns an empty bundle.
func NewBundle() *Bundle {
	return &Bundle{
		files:      make(map[*DefinitionFile]*ResourceFile),
		namespaces: make(map[string]*DefinitionFile),
		Policies:   make(map[string]*Policy),
		Categories: make(map[string]*Category),
	}
}

// LoadFolder loads every .admx under dir with localizations for
// languageCode, then compiles the bundle. Individual file failures are
// collected and reported, they do not abort the rest of the folder.
func (b *Bundle) LoadFolder(fs afero.Fs, dir, languageCode string) ([]*LoadFailure, error) {
	var failures []*LoadFailure

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".admx") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if fail := b.addFile(fs, path, languageCode); fail != nil {
			log.Debug().Str("admx", path).Str("reason", fail.Error()).Msg("skipping template file")
			failures = append(failures, fail)
		}
	}

	b.compile()
	return failures, nil
}

func (b *Bundle) addFile(fs afero.Fs, admxPath, languageCode string) *LoadFailure {
	df, err := LoadDefinitionFile(fs, admxPath)
	if err != nil {
		return &LoadFailure{FailType: BadAdmxParse, AdmxPath: admxPath, Info: err.Error()}
	}

	if _, exists := b.namespaces[df.Namespace]; exists {
		return &LoadFailure{FailType: DuplicateNamespace, AdmxPath: admxPath, Info: df.Namespace}
	}

	admlPath, ok := findResourceFile(fs, admxPath, languageCode)
	if !ok {
		return &LoadFailure{FailType: NoAdml, AdmxPath: admxPath}
	}
	rf, err := LoadResourceFile(fs, admlPath)
	if err != nil {
		return &LoadFailure{FailType: BadAdmlParse, AdmxPath: admxPath, Info: err.Error()}
	}

	b.files[df] = rf
	b.namespaces[df.Namespace] = df
	return nil
}

// findResourceFile locates the .adml for an .admx: the requested language
// directory first, then any directory sharing the primary language tag,
// then en-US.
func findResourceFile(fs afero.Fs, admxPath, languageCode string) (string, bool) {
	dir := filepath.Dir(admxPath)
	title := strings.TrimSuffix(filepath.Base(admxPath), filepath.Ext(admxPath)) + ".adml"

	candidate := filepath.Join(dir, languageCode, title)
	if ok, _ := afero.Exists(fs, candidate); ok {
		return candidate, true
	}

	primary := strings.Split(languageCode, "-")[0]
	entries, _ := afero.ReadDir(fs, dir)
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(strings.ToLower(entry.Name()), strings.ToLower(primary)+"-") {
			candidate = filepath.Join(dir, entry.Name(), title)
			if ok, _ := afero.Exists(fs, candidate); ok {
				return candidate, true
			}
		}
	}

	candidate = filepath.Join(dir, "en-US", title)
	if ok, _ := afero.Exists(fs, candidate); ok {
		return candidate, true
	}
	return "", false
}

func (b *Bundle) compile() {
	for df := range b.files {
		for _, rawCat := range df.Categories {
			id := b.qualify(rawCat.ID, df)
			if _, exists := b.Categories[id]; exists {
				continue
			}
			b.Categories[id] = &Category{
				UniqueID:    id,
				DisplayName: b.ResolveString(rawCat.DisplayCode, df),
				Raw:         rawCat,
			}
		}
	}

	for df := range b.files {
		for _, rawCat := range df.Categories {
			cat := b.Categories[b.qualify(rawCat.ID, df)]
			if cat.Parent != nil || rawCat.ParentRef == "" {
				continue
			}
			if parent, ok := b.Categories[b.resolveRef(rawCat.ParentRef, df)]; ok {
				cat.Parent = parent
				parent.Children = append(parent.Children, cat)
			}
		}
	}

	for df := range b.files {
		for _, rawPol := range df.Policies {
			id := b.qualify(rawPol.ID, df)
			if _, exists := b.Policies[id]; exists {
				continue
			}
			pol := &Policy{
				UniqueID:    id,
				DisplayName: b.ResolveString(rawPol.DisplayCode, df),
				Explanation: b.ResolveString(rawPol.ExplainCode, df),
				Raw:         rawPol,
			}
			if rawPol.PresentationID != "" {
				pol.Presentation = b.resolvePresentation(rawPol.PresentationID, df)
			}
			if cat, ok := b.Categories[b.resolveRef(rawPol.CategoryRef, df)]; ok {
				pol.Category = cat
				cat.Policies = append(cat.Policies, pol)
			}
			b.Policies[id] = pol
		}
	}
}

// ResolveString expands a $(string.id) code through the owning file's
// string table. Plain text passes through unchanged.
func (b *Bundle) ResolveString(displayCode string, df *DefinitionFile) string {
	if !strings.HasPrefix(displayCode, "$(string.") || !strings.HasSuffix(displayCode, ")") {
		return displayCode
	}
	stringID := displayCode[len("$(string.") : len(displayCode)-1]
	if rf, ok := b.files[df]; ok {
		if str, ok := rf.Strings[stringID]; ok {
			return str
		}
	}
	return displayCode
}

func (b *Bundle) resolvePresentation(displayCode string, df *DefinitionFile) *Presentation {
	if !strings.HasPrefix(displayCode, "$(presentation.") || !strings.HasSuffix(displayCode, ")") {
		return nil
	}
	presID := displayCode[len("$(presentation.") : len(displayCode)-1]
	if rf, ok := b.files[df]; ok {
		return rf.Presentations[presID]
	}
	return nil
}

func (b *Bundle) qualify(id string, df *DefinitionFile) string {
	return df.Namespace + ":" + id
}

// resolveRef expands a possibly prefixed reference into a qualified ID
// using the referring file's prefix imports.
func (b *Bundle) resolveRef(ref string, df *DefinitionFile) string {
	if strings.Contains(ref, ":") {
		parts := strings.SplitN(ref, ":", 2)
		if ns, ok := df.Prefixes[parts[0]]; ok {
			return ns + ":" + parts[1]
		}
		return ref
	}
	return b.qualify(ref, df)
}

// FindByID returns the policies whose definition ID matches id for the
// given class. A qualified "namespace:id" matches exactly; a bare ID
// matches across every namespace and can return several policies.
func (b *Bundle) FindByID(id string, class Section) []*Policy {
	var out []*Policy
	if strings.Contains(id, ":") {
		if pol, ok := b.Policies[id]; ok && pol.Raw.Section.AppliesTo(class) {
			out = append(out, pol)
		}
		return out
	}
	for _, pol := range b.Policies {
		if strings.EqualFold(pol.Raw.ID, id) && pol.Raw.Section.AppliesTo(class) {
			out = append(out, pol)
		}
	}
	return out
}

// FindByDisplayText returns the policies whose localized display name
// matches text, case-insensitively, for the given class.
func (b *Bundle) FindByDisplayText(text string, class Section) []*Policy {
	var out []*Policy
	for _, pol := range b.Policies {
		if strings.EqualFold(pol.DisplayName, text) && pol.Raw.Section.AppliesTo(class) {
			out = append(out, pol)
		}
	}
	return out
}

// Breadcrumb returns the policy's category path, root category first,
// ending with the policy's display name.
func (b *Bundle) Breadcrumb(pol *Policy) []string {
	var path []string
	for cat := pol.Category; cat != nil; cat = cat.Parent {
		path = append([]string{cat.DisplayName}, path...)
	}
	return append(path, pol.DisplayName)
}

// ElementLabel returns the localized label shown next to an element in the
// policy's presentation, or "" when it has none.
func (b *Bundle) ElementLabel(pol *Policy, refID string) string {
	if pol.Presentation == nil {
		return ""
	}
	for _, label := range pol.Presentation.Labels {
		if strings.EqualFold(label.RefID, refID) {
			return strings.TrimSpace(label.Text)
		}
	}
	return ""
}

// ElementByLabel matches an element of the policy by its ID or by its
// presentation label, the two names admins see in the editor UI.
func (b *Bundle) ElementByLabel(pol *Policy, name string) (Element, bool) {
	for _, elem := range pol.Raw.Elements {
		if strings.EqualFold(elem.GetID(), name) {
			return elem, true
		}
	}
	for _, elem := range pol.Raw.Elements {
		if label := b.ElementLabel(pol, elem.GetID()); label != "" && strings.EqualFold(label, name) {
			return elem, true
		}
	}
	return nil, false
}
