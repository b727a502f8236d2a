//go:build windows

package winsys

import (
	"context"
	"os/exec"
	"unsafe"

	"github.com/cockroachdb/errors"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

var (
	advapi32 = windows.NewLazySystemDLL("advapi32.dll")
	netapi32 = windows.NewLazySystemDLL("netapi32.dll")

	procLsaOpenPolicy                       = advapi32.NewProc("LsaOpenPolicy")
	procLsaClose                            = advapi32.NewProc("LsaClose")
	procLsaFreeMemory                       = advapi32.NewProc("LsaFreeMemory")
	procLsaAddAccountRights                 = advapi32.NewProc("LsaAddAccountRights")
	procLsaRemoveAccountRights              = advapi32.NewProc("LsaRemoveAccountRights")
	procLsaEnumerateAccountsWithUserRight   = advapi32.NewProc("LsaEnumerateAccountsWithUserRight")
	procLsaNtStatusToWinError               = advapi32.NewProc("LsaNtStatusToWinError")
	procNetUserModalsGet                    = netapi32.NewProc("NetUserModalsGet")
	procNetUserModalsSet                    = netapi32.NewProc("NetUserModalsSet")
	procNetApiBufferFree                    = netapi32.NewProc("NetApiBufferFree")
)

// SystemRegistry is the live registry on the local machine.
type SystemRegistry struct{}

func rootKey(hive Hive) registry.Key {
	if hive == CurrentUser {
		return registry.CURRENT_USER
	}
	return registry.LOCAL_MACHINE
}

func (SystemRegistry) GetValue(hive Hive, key, valueName string) (RegValue, error) {
	k, err := registry.OpenKey(rootKey(hive), key, registry.QUERY_VALUE)
	if err != nil {
		if err == registry.ErrNotExist {
			return RegValue{Type: registry.SZ, Data: ValueNotSet}, nil
		}
		return RegValue{}, errors.Wrapf(err, "open %s", key)
	}
	defer k.Close()

	_, valType, err := k.GetValue(valueName, nil)
	if err != nil {
		if err == registry.ErrNotExist {
			return RegValue{Type: registry.SZ, Data: ValueNotSet}, nil
		}
		return RegValue{}, errors.Wrapf(err, "query %s\\%s", key, valueName)
	}

	switch valType {
	case registry.SZ, registry.EXPAND_SZ:
		str, _, err := k.GetStringValue(valueName)
		return RegValue{Type: valType, Data: str}, err
	case registry.DWORD, registry.QWORD:
		n, _, err := k.GetIntegerValue(valueName)
		return RegValue{Type: valType, Data: n}, err
	case registry.MULTI_SZ:
		strs, _, err := k.GetStringsValue(valueName)
		return RegValue{Type: valType, Data: strs}, err
	default:
		raw, _, err := k.GetBinaryValue(valueName)
		return RegValue{Type: valType, Data: raw}, err
	}
}

func (SystemRegistry) SetValue(hive Hive, key, valueName string, value RegValue) error {
	k, _, err := registry.CreateKey(rootKey(hive), key, registry.SET_VALUE)
	if err != nil {
		return errors.Wrapf(err, "create %s", key)
	}
	defer k.Close()

	switch value.Type {
	case registry.SZ:
		return k.SetStringValue(valueName, value.Data.(string))
	case registry.EXPAND_SZ:
		return k.SetExpandStringValue(valueName, value.Data.(string))
	case registry.DWORD:
		n, err := toUint64(value.Data)
		if err != nil {
			return err
		}
		return k.SetDWordValue(valueName, uint32(n))
	case registry.QWORD:
		n, err := toUint64(value.Data)
		if err != nil {
			return err
		}
		return k.SetQWordValue(valueName, n)
	case registry.MULTI_SZ:
		return k.SetStringsValue(valueName, value.Data.([]string))
	case registry.BINARY:
		return k.SetBinaryValue(valueName, value.Data.([]byte))
	default:
		return errors.Newf("unsupported registry type %d", value.Type)
	}
}

func (SystemRegistry) DeleteValue(hive Hive, key, valueName string) error {
	k, err := registry.OpenKey(rootKey(hive), key, registry.SET_VALUE)
	if err != nil {
		if err == registry.ErrNotExist {
			return nil
		}
		return errors.Wrapf(err, "open %s", key)
	}
	defer k.Close()

	if err := k.DeleteValue(valueName); err != nil && err != registry.ErrNotExist {
		return errors.Wrapf(err, "delete %s\\%s", key, valueName)
	}
	return nil
}

func toUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case int64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	default:
		return 0, errors.Newf("numeric registry payload must be an integer, got %T", v)
	}
}

type lsaUnicodeString struct {
	Length        uint16
	MaximumLength uint16
	Buffer        *uint16
}

type lsaObjectAttributes struct {
	Length                   uint32
	RootDirectory            windows.Handle
	ObjectName               *lsaUnicodeString
	Attributes               uint32
	SecurityDescriptor       uintptr
	SecurityQualityOfService uintptr
}

type lsaEnumerationInformation struct {
	Sid *windows.SID
}

const policyAllAccess = 0x00F0FFF

func lsaString(s string) (lsaUnicodeString, error) {
	buf, err := windows.UTF16FromString(s)
	if err != nil {
		return lsaUnicodeString{}, err
	}
	byteLen := uint16((len(buf) - 1) * 2)
	return lsaUnicodeString{
		Length:        byteLen,
		MaximumLength: byteLen + 2,
		Buffer:        &buf[0],
	}, nil
}

func lsaError(status uintptr) error {
	if status == 0 {
		return nil
	}
	code, _, _ := procLsaNtStatusToWinError.Call(status)
	return windows.Errno(code)
}

func openLsaPolicy() (windows.Handle, error) {
	var attrs lsaObjectAttributes
	attrs.Length = uint32(unsafe.Sizeof(attrs))
	var handle windows.Handle
	status, _, _ := procLsaOpenPolicy.Call(
		0,
		uintptr(unsafe.Pointer(&attrs)),
		policyAllAccess,
		uintptr(unsafe.Pointer(&handle)),
	)
	if err := lsaError(status); err != nil {
		return 0, errors.Wrap(err, "LsaOpenPolicy")
	}
	return handle, nil
}

// LsaRights manages user right assignments through the LSA policy API.
type LsaRights struct{}

func (LsaRights) Holders(right string) ([]string, error) {
	policy, err := openLsaPolicy()
	if err != nil {
		return nil, err
	}
	defer procLsaClose.Call(uintptr(policy))

	rightStr, err := lsaString(right)
	if err != nil {
		return nil, err
	}

	var buffer uintptr
	var count uint32
	status, _, _ := procLsaEnumerateAccountsWithUserRight.Call(
		uintptr(policy),
		uintptr(unsafe.Pointer(&rightStr)),
		uintptr(unsafe.Pointer(&buffer)),
		uintptr(unsafe.Pointer(&count)),
	)
	// STATUS_NO_MORE_ENTRIES: nobody holds the right
	if status == 0x8000001A || status == 0xC0000060 {
		return nil, nil
	}
	if err := lsaError(status); err != nil {
		return nil, errors.Wrapf(err, "enumerate accounts with right %s", right)
	}
	defer procLsaFreeMemory.Call(buffer)

	entries := unsafe.Slice((*lsaEnumerationInformation)(unsafe.Pointer(buffer)), count)
	sids := make([]string, 0, count)
	for _, entry := range entries {
		sids = append(sids, entry.Sid.String())
	}
	return sids, nil
}

func (LsaRights) Grant(right string, sid string) error {
	return changeAccountRight(right, sid, true)
}

func (LsaRights) Revoke(right string, sid string) error {
	return changeAccountRight(right, sid, false)
}

func changeAccountRight(right, sidStr string, grant bool) error {
	policy, err := openLsaPolicy()
	if err != nil {
		return err
	}
	defer procLsaClose.Call(uintptr(policy))

	sid, err := windows.StringToSid(sidStr)
	if err != nil {
		return errors.Wrapf(err, "parse sid %s", sidStr)
	}
	rightStr, err := lsaString(right)
	if err != nil {
		return err
	}

	var status uintptr
	if grant {
		status, _, _ = procLsaAddAccountRights.Call(
			uintptr(policy),
			uintptr(unsafe.Pointer(sid)),
			uintptr(unsafe.Pointer(&rightStr)),
			1,
		)
	} else {
		status, _, _ = procLsaRemoveAccountRights.Call(
			uintptr(policy),
			uintptr(unsafe.Pointer(sid)),
			0,
			uintptr(unsafe.Pointer(&rightStr)),
			1,
		)
	}
	if err := lsaError(status); err != nil {
		return errors.Wrapf(err, "change right %s for %s", right, sidStr)
	}
	return nil
}

type userModalsInfo0 struct {
	MinPasswdLen    uint32
	MaxPasswdAge    uint32
	MinPasswdAge    uint32
	ForceLogoff     uint32
	PasswordHistLen uint32
}

type userModalsInfo3 struct {
	LockoutDuration          uint32
	LockoutObservationWindow uint32
	LockoutThreshold         uint32
}

// NetModals reads and writes account policy through NetUserModalsGet/Set.
type NetModals struct{}

func (NetModals) Get(level int) (map[string]uint64, error) {
	var buffer uintptr
	status, _, _ := procNetUserModalsGet.Call(0, uintptr(level), uintptr(unsafe.Pointer(&buffer)))
	if status != 0 {
		return nil, errors.Newf("NetUserModalsGet level %d failed: status %d", level, status)
	}
	defer procNetApiBufferFree.Call(buffer)

	switch level {
	case 0:
		info := (*userModalsInfo0)(unsafe.Pointer(buffer))
		return map[string]uint64{
			"min_passwd_len":    uint64(info.MinPasswdLen),
			"max_passwd_age":    uint64(info.MaxPasswdAge),
			"min_passwd_age":    uint64(info.MinPasswdAge),
			"force_logoff":      uint64(info.ForceLogoff),
			"password_hist_len": uint64(info.PasswordHistLen),
		}, nil
	case 3:
		info := (*userModalsInfo3)(unsafe.Pointer(buffer))
		return map[string]uint64{
			"lockout_duration":           uint64(info.LockoutDuration),
			"lockout_observation_window": uint64(info.LockoutObservationWindow),
			"lockout_threshold":          uint64(info.LockoutThreshold),
		}, nil
	default:
		return nil, errors.Newf("unsupported modal level %d", level)
	}
}

func (m NetModals) Set(level int, fields map[string]uint64) error {
	current, err := m.Get(level)
	if err != nil {
		return err
	}
	for k, v := range fields {
		if _, ok := current[k]; !ok {
			return errors.Newf("unknown modal field %s for level %d", k, level)
		}
		current[k] = v
	}

	var buffer unsafe.Pointer
	switch level {
	case 0:
		info := userModalsInfo0{
			MinPasswdLen:    uint32(current["min_passwd_len"]),
			MaxPasswdAge:    uint32(current["max_passwd_age"]),
			MinPasswdAge:    uint32(current["min_passwd_age"]),
			ForceLogoff:     uint32(current["force_logoff"]),
			PasswordHistLen: uint32(current["password_hist_len"]),
		}
		buffer = unsafe.Pointer(&info)
	case 3:
		info := userModalsInfo3{
			LockoutDuration:          uint32(current["lockout_duration"]),
			LockoutObservationWindow: uint32(current["lockout_observation_window"]),
			LockoutThreshold:         uint32(current["lockout_threshold"]),
		}
		buffer = unsafe.Pointer(&info)
	default:
		return errors.Newf("unsupported modal level %d", level)
	}

	var paramErr uint32
	status, _, _ := procNetUserModalsSet.Call(
		0,
		uintptr(level),
		uintptr(buffer),
		uintptr(unsafe.Pointer(&paramErr)),
	)
	if status != 0 {
		return errors.Newf("NetUserModalsSet level %d failed: status %d (param %d)", level, status, paramErr)
	}
	return nil
}

// LocalAccounts resolves SIDs and account names against the local machine.
type LocalAccounts struct{}

func (LocalAccounts) NameFromSid(sidStr string) (string, error) {
	sid, err := windows.StringToSid(sidStr)
	if err != nil {
		return "", errors.Wrapf(err, "parse sid %s", sidStr)
	}
	account, domain, _, err := sid.LookupAccount("")
	if err != nil {
		return "", errors.Wrapf(err, "lookup sid %s", sidStr)
	}
	if domain != "" {
		return domain + "\\" + account, nil
	}
	return account, nil
}

func (LocalAccounts) SidFromName(name string) (string, error) {
	sid, _, _, err := windows.LookupSID("", name)
	if err != nil {
		return "", errors.Wrapf(err, "lookup account %s", name)
	}
	return sid.String(), nil
}

// ExecRunner runs external commands with the caller's context.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, errors.Wrapf(err, "%s %v: %s", name, args, out)
	}
	return out, nil
}
