// Package transform converts between the values stored by a policy
// mechanism (registry words, secedit fields, account modal counters) and
// the human-readable values reported to and accepted from callers. Every
// read-side conversion maps an absent value to NotDefined and an
// unrecognized one to InvalidValue instead of failing, so a single broken
// setting never poisons a full policy listing.
package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	// NotDefined is reported when the mechanism has no value stored.
	NotDefined = "Not Defined"
	// InvalidValue is reported when a stored value falls outside the
	// policy's known encodings.
	InvalidValue = "Invalid Value"
)

// Func converts a single value. nil input means the mechanism had nothing
// stored.
type Func func(v interface{}) interface{}

// Pair couples the read-side (Get) and write-side (Put) conversions of a
// policy. Either side may be nil when the raw value passes through.
type Pair struct {
	Get Func
	Put Func
}

// Apply runs f when non-nil, otherwise passes v through.
func (f Func) Apply(v interface{}) interface{} {
	if f == nil {
		return v
	}
	return f(v)
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// IsNotDefined reports whether v is the absent-value sentinel, in any case.
func IsNotDefined(v interface{}) bool {
	s, ok := v.(string)
	return ok && strings.EqualFold(s, NotDefined)
}

func scaled(divisor int64) Func {
	return func(v interface{}) interface{} {
		if v == nil {
			return NotDefined
		}
		n, ok := asInt64(v)
		if !ok {
			return InvalidValue
		}
		if n == -1 {
			return n
		}
		return n / divisor
	}
}

func scaledUp(factor int64) Func {
	return func(v interface{}) interface{} {
		n, ok := asInt64(v)
		if !ok {
			return InvalidValue
		}
		if n == -1 {
			return n
		}
		return n * factor
	}
}

// SecondsToMinutes and friends convert the durations security policy keeps
// in seconds into the units the Windows UI shows.
var (
	SecondsToMinutes Func = scaled(60)
	MinutesToSeconds Func = scaledUp(60)
	SecondsToDays    Func = scaled(86400)
	DaysToSeconds    Func = scaledUp(86400)
)

// EnabledOnOff maps 1/0 to Enabled/Disabled.
func EnabledOnOff(v interface{}) interface{} {
	if v == nil {
		return NotDefined
	}
	n, ok := asInt64(v)
	if !ok {
		return InvalidValue
	}
	switch n {
	case 0:
		return "Disabled"
	case 1:
		return "Enabled"
	default:
		return InvalidValue
	}
}

// EnabledOnOffReverse maps Enabled/Disabled back to 1/0.
func EnabledOnOffReverse(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return InvalidValue
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return int64(0)
	case "enabled":
		return int64(1)
	default:
		return InvalidValue
	}
}

// BinaryEnabled maps a one-byte registry binary flag to Enabled/Disabled.
func BinaryEnabled(v interface{}) interface{} {
	if v == nil {
		return NotDefined
	}
	data, ok := v.([]byte)
	if !ok || len(data) == 0 {
		return InvalidValue
	}
	switch data[0] {
	case 0:
		return "Disabled"
	case 1:
		return "Enabled"
	default:
		// name the stray byte so malformed values can be tracked down
		return fmt.Sprintf("%s: 0x%02x", InvalidValue, data[0])
	}
}

// BinaryEnabledReverse maps Enabled/Disabled to a one-byte binary flag.
func BinaryEnabledReverse(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return InvalidValue
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled":
		return []byte{0}
	case "enabled":
		return []byte{1}
	default:
		return InvalidValue
	}
}

var eventAuditStates = []string{
	"No auditing",
	"Success",
	"Failure",
	"Success and Failure",
}

// EventAudit maps an audit flag 0..3 to its description.
func EventAudit(v interface{}) interface{} {
	if v == nil {
		return NotDefined
	}
	n, ok := asInt64(v)
	if !ok || n < 0 || n >= int64(len(eventAuditStates)) {
		return InvalidValue
	}
	return eventAuditStates[n]
}

// EventAuditReverse maps an audit description back to its flag value.
func EventAuditReverse(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return InvalidValue
	}
	for i, state := range eventAuditStates {
		if strings.EqualFold(state, strings.TrimSpace(s)) {
			return int64(i)
		}
	}
	return InvalidValue
}

// StripQuotes removes the quotes secedit wraps REG_SZ values in.
func StripQuotes(v interface{}) interface{} {
	if v == nil {
		return NotDefined
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	return strings.Trim(s, `"`)
}

// AddQuotes wraps a value in the quotes secedit expects.
func AddQuotes(v interface{}) interface{} {
	return fmt.Sprintf(`"%v"`, v)
}

// DictLookup builds a bidirectional table transform. The Get side maps the
// stored value to its label; the Put side (reverse=true) maps a label back
// to the stored value. Lookups are case-insensitive on string keys.
func DictLookup(table map[interface{}]interface{}, reverse bool) Func {
	return func(v interface{}) interface{} {
		if v == nil {
			return NotDefined
		}
		if IsNotDefined(v) {
			return NotDefined
		}
		for key, label := range table {
			from, to := key, label
			if reverse {
				from, to = label, key
			}
			if looseEqual(from, v) {
				return to
			}
		}
		return InvalidValue
	}
}

func looseEqual(a, b interface{}) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.EqualFold(strings.TrimSpace(as), strings.TrimSpace(bs))
		}
	}
	an, aok := asInt64(a)
	bn, bok := asInt64(b)
	if aok && bok {
		return an == bn
	}
	return a == b
}

var driverSigningStates = map[interface{}]interface{}{
	"0": "Silently Succeed",
	"1": "Warn but allow installation",
	"2": "Do not allow installation",
}

// DriverSigning decodes the "3,N" policy string for unsigned driver
// installation behavior.
func DriverSigning(v interface{}) interface{} {
	if v == nil {
		return NotDefined
	}
	s, ok := v.(string)
	if !ok {
		return InvalidValue
	}
	parts := strings.Split(s, ",")
	return DictLookup(driverSigningStates, false)(parts[len(parts)-1])
}

// DriverSigningReverse encodes a behavior description back to "3,N".
func DriverSigningReverse(v interface{}) interface{} {
	encoded := DictLookup(driverSigningStates, true)(v)
	if encoded == NotDefined || encoded == InvalidValue {
		return encoded
	}
	return fmt.Sprintf("3,%v", encoded)
}

// PowershellScriptOrder decodes the script execution order setting.
var powershellOrderStates = map[interface{}]interface{}{
	int64(0): "Not Configured",
	int64(1): "Run Windows PowerShell scripts first",
	int64(2): "Run Windows PowerShell scripts last",
}

func PowershellScriptOrder(v interface{}) interface{} {
	return DictLookup(powershellOrderStates, false)(v)
}

func PowershellScriptOrderReverse(v interface{}) interface{} {
	return DictLookup(powershellOrderStates, true)(v)
}

// AccountResolver translates between security identifiers and account
// names. The windows backend wraps LookupAccountSid/LookupAccountName.
type AccountResolver interface {
	NameFromSid(sid string) (string, error)
	SidFromName(name string) (string, error)
}

// SidsToNames resolves each SID to an account name. SIDs with no local
// account keep their string form, matching what the security editor shows.
func SidsToNames(resolver AccountResolver, sids []string) []string {
	names := make([]string, 0, len(sids))
	for _, sid := range sids {
		name, err := resolver.NameFromSid(sid)
		if err != nil {
			names = append(names, sid)
			continue
		}
		names = append(names, name)
	}
	return names
}

// NamesToSids resolves each account name to a SID. Unlike the read side
// this fails hard: assigning a right to a nonexistent account must never
// silently drop it.
func NamesToSids(resolver AccountResolver, names []string) ([]string, error) {
	sids := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, "S-1-") {
			sids = append(sids, name)
			continue
		}
		sid, err := resolver.SidFromName(name)
		if err != nil {
			return nil, errors.Wrapf(err,
				"unable to resolve account %q; the account must exist before the policy can reference it", name)
		}
		sids = append(sids, sid)
	}
	return sids, nil
}
