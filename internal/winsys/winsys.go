// Package winsys defines the operating system surfaces the policy engine
// writes through: the registry, LSA account rights, net account modals,
// account name lookup and external commands. Each surface is an interface
// with a real implementation on Windows and an in-memory fake under
// winsystest for everything else.
package winsys

import "context"

// ValueNotSet is returned by Registry reads when the value does not exist,
// mirroring what the registry editor displays for absent values.
const ValueNotSet = "(value not set)"

// Hive selects the registry root for an operation.
type Hive int

const (
	LocalMachine Hive = iota
	CurrentUser
)

// Registry value types, matching the REG_* wire constants.
const (
	RegSz       uint32 = 1
	RegExpandSz uint32 = 2
	RegBinary   uint32 = 3
	RegDword    uint32 = 4
	RegMultiSz  uint32 = 7
	RegQword    uint32 = 11
)

// RegValue is a typed registry value as read from or written to a key.
type RegValue struct {
	Type uint32
	Data interface{}
}

// Registry reads and writes machine registry values directly, for the
// policies that live outside Registry.pol.
type Registry interface {
	// GetValue returns the value, or a string RegValue holding ValueNotSet
	// when the key exists but the value does not.
	GetValue(hive Hive, key, valueName string) (RegValue, error)
	SetValue(hive Hive, key, valueName string, value RegValue) error
	DeleteValue(hive Hive, key, valueName string) error
}

// RightsManager manages LSA user right assignments by SID.
type RightsManager interface {
	// Holders returns the SIDs currently granted the named privilege.
	Holders(right string) ([]string, error)
	Grant(right string, sid string) error
	Revoke(right string, sid string) error
}

// ModalStore reads and writes net account modal levels. Level 0 carries
// password and lockout ages, level 3 the lockout counters.
type ModalStore interface {
	Get(level int) (map[string]uint64, error)
	Set(level int, fields map[string]uint64) error
}

// AccountResolver translates between account names and SIDs.
type AccountResolver interface {
	NameFromSid(sid string) (string, error)
	SidFromName(name string) (string, error)
}

// CommandRunner executes an external tool and returns its combined output.
// secedit import/export goes through here.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// PolicyNotifier tells the OS that local policy changed so it re-reads the
// policy files without waiting for the periodic refresh.
type PolicyNotifier interface {
	Refresh(machine bool) error
}

// Backends bundles one implementation of every surface.
type Backends struct {
	Registry Registry
	Rights   RightsManager
	Modals   ModalStore
	Accounts AccountResolver
	Runner   CommandRunner
	Notifier PolicyNotifier
}
