// Package catalog declares the built-in policies that are not defined by
// Administrative Template files: password and lockout policy, audit
// policy, user right assignments, security options and logon script
// settings. Each entry names the mechanism that stores it and the
// conversions between stored and reported values.
package catalog

import (
	"strings"

	"github.com/winops/lgpo/internal/transform"
	"github.com/winops/lgpo/internal/winsys"
)

// Mechanism identifies the store a policy is written through.
type Mechanism int

const (
	// Registry writes a machine registry value directly.
	Registry Mechanism = iota
	// Secedit imports the setting via a security template.
	Secedit
	// NetUserModal writes a net account modal field.
	NetUserModal
	// LsaRights grants and revokes a privilege.
	LsaRights
	// ScriptIni edits a Group Policy scripts ini file.
	ScriptIni
)

func (m Mechanism) String() string {
	switch m {
	case Registry:
		return "Registry"
	case Secedit:
		return "Secedit"
	case NetUserModal:
		return "NetUserModal"
	case LsaRights:
		return "LsaRights"
	case ScriptIni:
		return "ScriptIni"
	default:
		return "Unknown"
	}
}

// RegistryParams locate a direct registry policy.
type RegistryParams struct {
	Hive  winsys.Hive
	Path  string
	Value string
	Type  uint32
}

// SeceditParams locate a security template setting.
type SeceditParams struct {
	Section string
	Option  string
}

// ModalParams locate a net account modal field.
type ModalParams struct {
	Level int
	Field string
}

// RightsParams name an LSA privilege. Cumulative rights only ever add
// holders; non-cumulative assignment replaces the holder set.
type RightsParams struct {
	Right string
}

// ScriptParams locate a setting in a Group Policy scripts ini file.
type ScriptParams struct {
	File    string
	Section string
	Setting string
}

// Settings constrains the values a policy accepts: either a fixed option
// list or a validator, never both.
type Settings struct {
	Options  []interface{}
	Validate transform.Validator
}

// Accepts reports whether v is a legal assignment for the policy.
func (s *Settings) Accepts(v interface{}) bool {
	if s == nil {
		return true
	}
	if s.Validate != nil {
		return s.Validate(v)
	}
	for _, opt := range s.Options {
		if looseEqual(opt, v) {
			return true
		}
	}
	return false
}

func looseEqual(a, b interface{}) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
	}
	return a == b
}

// Policy is one catalog entry.
type Policy struct {
	// Name is the stable short identifier callers use.
	Name string
	// DisplayName is the text shown in the policy editor UI.
	DisplayName string

	Mechanism Mechanism
	Registry  *RegistryParams
	Secedit   *SeceditParams
	Modal     *ModalParams
	Rights    *RightsParams
	Script    *ScriptParams

	Settings  *Settings
	Transform transform.Pair
}

// Catalog holds the built-in policies per class. Policy names and display
// names are unique within a class.
type Catalog struct {
	Machine map[string]*Policy
	User    map[string]*Policy
}

var builtin *Catalog

// Builtin returns the static catalog, built once.
func Builtin() *Catalog {
	if builtin == nil {
		builtin = &Catalog{
			Machine: buildMachinePolicies(),
			User:    map[string]*Policy{},
		}
	}
	return builtin
}

// ForClass returns the policy map for a class name ("machine" or "user").
func (c *Catalog) ForClass(machine bool) map[string]*Policy {
	if machine {
		return c.Machine
	}
	return c.User
}

// FindByName returns the entry whose short name matches, case-insensitive.
func FindByName(policies map[string]*Policy, name string) (*Policy, bool) {
	if p, ok := policies[name]; ok {
		return p, true
	}
	for _, p := range policies {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// FindByDisplayName returns the entry whose display name matches,
// case-insensitive.
func FindByDisplayName(policies map[string]*Policy, displayName string) (*Policy, bool) {
	for _, p := range policies {
		if strings.EqualFold(p.DisplayName, displayName) {
			return p, true
		}
	}
	return nil, false
}
