package lgpo

import (
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/winops/lgpo/internal/admx"
	"github.com/winops/lgpo/internal/catalog"
)

// Resolved is the outcome of looking up a policy name: either a built-in
// catalog entry or an Administrative Template policy, never both.
type Resolved struct {
	Static *catalog.Policy
	Admx   *admx.Policy

	// Aliases are the other names the same policy answers to.
	Aliases []string
}

// Name returns the canonical name of the resolved policy.
func (r *Resolved) Name() string {
	if r.Static != nil {
		return r.Static.Name
	}
	return r.Admx.DisplayName
}

// resolvePolicy maps a requested policy name onto a concrete policy. The
// lookup tries, in order: built-in short name, built-in display name,
// template ID (optionally namespace qualified), then template display
// text. A display-text request may carry a backslash category path to
// disambiguate policies that share a caption.
func resolvePolicy(policies map[string]*catalog.Policy, bundle *admx.Bundle, class admx.Section, name string) (*Resolved, error) {
	if p, ok := catalog.FindByName(policies, name); ok {
		return &Resolved{Static: p, Aliases: []string{p.Name, p.DisplayName}}, nil
	}
	if p, ok := catalog.FindByDisplayName(policies, name); ok {
		return &Resolved{Static: p, Aliases: []string{p.Name, p.DisplayName}}, nil
	}
	if bundle == nil {
		return nil, errors.Newf("policy %q not found", name)
	}

	if matches := bundle.FindByID(name, class); len(matches) > 0 {
		if len(matches) > 1 {
			return nil, ambiguityError(bundle, name, matches)
		}
		return admxResolved(bundle, matches[0]), nil
	}

	leaf := name
	var wantPath []string
	if strings.Contains(name, `\`) {
		parts := strings.Split(name, `\`)
		leaf = parts[len(parts)-1]
		wantPath = parts[:len(parts)-1]
	}
	matches := bundle.FindByDisplayText(leaf, class)
	if len(wantPath) > 0 {
		matches = filterByPath(bundle, matches, wantPath)
	}
	switch len(matches) {
	case 0:
		return nil, errors.Newf("policy %q not found", name)
	case 1:
		return admxResolved(bundle, matches[0]), nil
	default:
		return nil, ambiguityError(bundle, name, matches)
	}
}

func admxResolved(bundle *admx.Bundle, p *admx.Policy) *Resolved {
	return &Resolved{
		Admx: p,
		Aliases: []string{
			p.DisplayName,
			p.UniqueID,
			strings.Join(bundle.Breadcrumb(p), `\`),
		},
	}
}

// filterByPath keeps policies whose category breadcrumb ends with the
// requested path segments. A path that names the whole breadcrumb wins
// over policies it merely suffixes, so a full path always picks exactly
// the policy it spells out.
func filterByPath(bundle *admx.Bundle, matches []*admx.Policy, wantPath []string) []*admx.Policy {
	var exact, suffix []*admx.Policy
	for _, p := range matches {
		crumbs := bundle.Breadcrumb(p)
		categories := crumbs[:len(crumbs)-1]
		if !pathSuffixMatches(categories, wantPath) {
			continue
		}
		if len(wantPath) == len(categories) {
			exact = append(exact, p)
		} else {
			suffix = append(suffix, p)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return suffix
}

func pathSuffixMatches(categories, want []string) bool {
	if len(want) > len(categories) {
		return false
	}
	offset := len(categories) - len(want)
	for i, segment := range want {
		if !strings.EqualFold(categories[offset+i], segment) {
			return false
		}
	}
	return true
}

func ambiguityError(bundle *admx.Bundle, name string, matches []*admx.Policy) error {
	paths := make([]string, 0, len(matches))
	for _, p := range matches {
		paths = append(paths, strings.Join(bundle.Breadcrumb(p), `\`))
	}
	return errors.Newf("policy name %q matches multiple policies; use the full path to pick one:\n  %s",
		name, strings.Join(paths, "\n  "))
}
