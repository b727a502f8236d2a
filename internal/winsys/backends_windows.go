//go:build windows

package winsys

import "golang.org/x/sys/windows"

// SystemBackends returns the live OS implementations.
func SystemBackends() (Backends, error) {
	return Backends{
		Registry: SystemRegistry{},
		Rights:   LsaRights{},
		Modals:   NetModals{},
		Accounts: LocalAccounts{},
		Runner:   ExecRunner{},
		Notifier: PolicyRefresher{},
	}, nil
}

var (
	modUserenv          = windows.NewLazySystemDLL("userenv.dll")
	procRefreshPolicyEx = modUserenv.NewProc("RefreshPolicyEx")
)

// RP_FORCE reapplies every setting instead of only the changed ones.
const rpForce = 0x1

// PolicyRefresher triggers a Group Policy refresh through RefreshPolicyEx.
type PolicyRefresher struct{}

func (PolicyRefresher) Refresh(machine bool) error {
	var bMachine uintptr
	if machine {
		bMachine = 1
	}
	ret, _, err := procRefreshPolicyEx.Call(bMachine, rpForce)
	if ret == 0 {
		return err
	}
	return nil
}
