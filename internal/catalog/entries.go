package catalog

import (
	"github.com/winops/lgpo/internal/secpol"
	"github.com/winops/lgpo/internal/transform"
	"github.com/winops/lgpo/internal/winsys"
)

const (
	regSZ     = winsys.RegSz
	regBINARY = winsys.RegBinary
	regDWORD  = winsys.RegDword
)

var enabledDisabled = &Settings{Options: []interface{}{
	"Enabled", "Disabled", transform.NotDefined,
}}

var enabledPair = transform.Pair{
	Get: transform.EnabledOnOff,
	Put: transform.EnabledOnOffReverse,
}

func add(m map[string]*Policy, p *Policy) {
	m[p.Name] = p
}

func sysAccess(name, display, option string, settings *Settings, pair transform.Pair) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   Secedit,
		Secedit:     &SeceditParams{Section: secpol.SystemAccess, Option: option},
		Settings:    settings,
		Transform:   pair,
	}
}

func auditPolicy(name, display, option string) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   Secedit,
		Secedit:     &SeceditParams{Section: secpol.EventAudit, Option: option},
		Settings: &Settings{Options: []interface{}{
			"No auditing", "Success", "Failure", "Success and Failure", transform.NotDefined,
		}},
		Transform: transform.Pair{Get: transform.EventAudit, Put: transform.EventAuditReverse},
	}
}

func rightPolicy(name, display, right string) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   LsaRights,
		Rights:      &RightsParams{Right: right},
	}
}

func modalPolicy(name, display string, level int, field string, settings *Settings, pair transform.Pair) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   NetUserModal,
		Modal:       &ModalParams{Level: level, Field: field},
		Settings:    settings,
		Transform:   pair,
	}
}

func regDwordPolicy(name, display, path, value string, settings *Settings, pair transform.Pair) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   Registry,
		Registry:    &RegistryParams{Hive: winsys.LocalMachine, Path: path, Value: value, Type: regDWORD},
		Settings:    settings,
		Transform:   pair,
	}
}

func regStringPolicy(name, display, path, value string, settings *Settings, pair transform.Pair) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   Registry,
		Registry:    &RegistryParams{Hive: winsys.LocalMachine, Path: path, Value: value, Type: regSZ},
		Settings:    settings,
		Transform:   pair,
	}
}

func regBinaryPolicy(name, display, path, value string, settings *Settings, pair transform.Pair) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   Registry,
		Registry:    &RegistryParams{Hive: winsys.LocalMachine, Path: path, Value: value, Type: regBINARY},
		Settings:    settings,
		Transform:   pair,
	}
}

func scriptPolicy(name, display, file, section, setting string, settings *Settings, pair transform.Pair) *Policy {
	return &Policy{
		Name:        name,
		DisplayName: display,
		Mechanism:   ScriptIni,
		Script:      &ScriptParams{File: file, Section: section, Setting: setting},
		Settings:    settings,
		Transform:   pair,
	}
}

func dictPair(table map[interface{}]interface{}) transform.Pair {
	return transform.Pair{
		Get: transform.DictLookup(table, false),
		Put: transform.DictLookup(table, true),
	}
}

func dictOptions(table map[interface{}]interface{}) *Settings {
	opts := make([]interface{}, 0, len(table)+1)
	for _, label := range table {
		opts = append(opts, label)
	}
	return &Settings{Options: append(opts, transform.NotDefined)}
}

const (
	lsaKey        = `System\CurrentControlSet\Control\Lsa`
	uacKey        = `Software\Microsoft\Windows\CurrentVersion\Policies\System`
	winlogonKey   = `Software\Microsoft\Windows NT\CurrentVersion\Winlogon`
	sessionMgrKey = `System\CurrentControlSet\Control\Session Manager\Memory Management`
	lanmanKey     = `System\CurrentControlSet\Services\LanManServer\Parameters`
	recoveryKey   = `Software\Microsoft\Windows NT\CurrentVersion\Setup\RecoveryConsole`
)

func buildMachinePolicies() map[string]*Policy {
	m := make(map[string]*Policy)

	// account policy held by the net account modals
	durationMinutes := transform.Pair{Get: transform.SecondsToMinutes, Put: transform.MinutesToSeconds}
	durationDays := transform.Pair{Get: transform.SecondsToDays, Put: transform.DaysToSeconds}

	add(m, modalPolicy("MaxPasswordAge", "Maximum password age", 0, "max_passwd_age",
		&Settings{Validate: transform.InRangeInclusive(0, 86313600)}, durationDays))
	add(m, modalPolicy("MinPasswordAge", "Minimum password age", 0, "min_passwd_age",
		&Settings{Validate: transform.InRangeInclusive(0, 86313600)}, durationDays))
	add(m, modalPolicy("MinPasswordLen", "Minimum password length", 0, "min_passwd_len",
		&Settings{Validate: transform.InRangeInclusive(0, 14)}, transform.Pair{}))
	add(m, modalPolicy("PasswordHistory", "Enforce password history", 0, "password_hist_len",
		&Settings{Validate: transform.InRangeInclusive(0, 24)}, transform.Pair{}))
	add(m, modalPolicy("LockoutDuration", "Account lockout duration", 3, "lockout_duration",
		&Settings{Validate: transform.InRangeInclusive(0, 6000000)}, durationMinutes))
	add(m, modalPolicy("LockoutThreshold", "Account lockout threshold", 3, "lockout_threshold",
		&Settings{Validate: transform.InRangeInclusive(0, 1000)}, transform.Pair{}))
	add(m, modalPolicy("LockoutWindow", "Reset account lockout counter after", 3, "lockout_observation_window",
		&Settings{Validate: transform.InRangeInclusive(0, 6000000)}, durationMinutes))

	// password settings secedit owns
	add(m, sysAccess("PasswordComplexity",
		"Password must meet complexity requirements",
		"PasswordComplexity", enabledDisabled, enabledPair))
	add(m, sysAccess("ClearTextPasswords",
		"Store passwords using reversible encryption",
		"ClearTextPassword", enabledDisabled, enabledPair))
	add(m, sysAccess("AdminAccountStatus",
		"Accounts: Administrator account status",
		"EnableAdminAccount", enabledDisabled, enabledPair))
	add(m, sysAccess("GuestAccountStatus",
		"Accounts: Guest account status",
		"EnableGuestAccount", enabledDisabled, enabledPair))
	add(m, sysAccess("LSAAnonymousNameLookup",
		"Network access: Allow anonymous SID/Name translation",
		"LSAAnonymousNameLookup", enabledDisabled, enabledPair))
	add(m, sysAccess("ForceLogoffWhenHourExpire",
		"Network security: Force logoff when logon hours expire",
		"ForceLogoffWhenHourExpire", enabledDisabled, enabledPair))
	add(m, sysAccess("NewAdministratorName",
		"Accounts: Rename administrator account",
		"NewAdministratorName",
		&Settings{Validate: transform.NotEmpty},
		transform.Pair{Get: transform.StripQuotes, Put: transform.AddQuotes}))
	add(m, sysAccess("NewGuestName",
		"Accounts: Rename guest account",
		"NewGuestName",
		&Settings{Validate: transform.NotEmpty},
		transform.Pair{Get: transform.StripQuotes, Put: transform.AddQuotes}))

	// audit policy
	add(m, auditPolicy("AuditAccountLogon", "Audit account logon events", "AuditAccountLogon"))
	add(m, auditPolicy("AuditAccountManage", "Audit account management", "AuditAccountManage"))
	add(m, auditPolicy("AuditDSAccess", "Audit directory service access", "AuditDSAccess"))
	add(m, auditPolicy("AuditLogonEvents", "Audit logon events", "AuditLogonEvents"))
	add(m, auditPolicy("AuditObjectAccess", "Audit object access", "AuditObjectAccess"))
	add(m, auditPolicy("AuditPolicyChange", "Audit policy change", "AuditPolicyChange"))
	add(m, auditPolicy("AuditPrivilegeUse", "Audit privilege use", "AuditPrivilegeUse"))
	add(m, auditPolicy("AuditProcessTracking", "Audit process tracking", "AuditProcessTracking"))
	add(m, auditPolicy("AuditSystemEvents", "Audit system events", "AuditSystemEvents"))

	// user rights assignment
	add(m, rightPolicy("AccessCredentialManagerAsTrustedCaller", "Access Credential Manager as a trusted caller", "SeTrustedCredManAccessPrivilege"))
	add(m, rightPolicy("NetworkLogonRight", "Access this computer from the network", "SeNetworkLogonRight"))
	add(m, rightPolicy("ActAsPartOfTheOperatingSystem", "Act as part of the operating system", "SeTcbPrivilege"))
	add(m, rightPolicy("AddWorkstationsToDomain", "Add workstations to domain", "SeMachineAccountPrivilege"))
	add(m, rightPolicy("AdjustMemoryQuotasForProcess", "Adjust memory quotas for a process", "SeIncreaseQuotaPrivilege"))
	add(m, rightPolicy("AllowLogonLocally", "Allow log on locally", "SeInteractiveLogonRight"))
	add(m, rightPolicy("AllowLogonThroughRemoteDesktop", "Allow log on through Remote Desktop Services", "SeRemoteInteractiveLogonRight"))
	add(m, rightPolicy("BackupFilesAndDirectories", "Back up files and directories", "SeBackupPrivilege"))
	add(m, rightPolicy("BypassTraverseChecking", "Bypass traverse checking", "SeChangeNotifyPrivilege"))
	add(m, rightPolicy("ChangeSystemTime", "Change the system time", "SeSystemtimePrivilege"))
	add(m, rightPolicy("ChangeTimeZone", "Change the time zone", "SeTimeZonePrivilege"))
	add(m, rightPolicy("CreatePagefile", "Create a pagefile", "SeCreatePagefilePrivilege"))
	add(m, rightPolicy("CreateTokenObject", "Create a token object", "SeCreateTokenPrivilege"))
	add(m, rightPolicy("CreateGlobalObjects", "Create global objects", "SeCreateGlobalPrivilege"))
	add(m, rightPolicy("CreatePermanentSharedObjects", "Create permanent shared objects", "SeCreatePermanentPrivilege"))
	add(m, rightPolicy("CreateSymbolicLinks", "Create symbolic links", "SeCreateSymbolicLinkPrivilege"))
	add(m, rightPolicy("DebugPrograms", "Debug programs", "SeDebugPrivilege"))
	add(m, rightPolicy("DenyAccessToComputerFromNetwork", "Deny access to this computer from the network", "SeDenyNetworkLogonRight"))
	add(m, rightPolicy("DenyLogonAsBatchJob", "Deny log on as a batch job", "SeDenyBatchLogonRight"))
	add(m, rightPolicy("DenyLogonAsService", "Deny log on as a service", "SeDenyServiceLogonRight"))
	add(m, rightPolicy("DenyLogonLocally", "Deny log on locally", "SeDenyInteractiveLogonRight"))
	add(m, rightPolicy("DenyLogonThroughRemoteDesktop", "Deny log on through Remote Desktop Services", "SeDenyRemoteInteractiveLogonRight"))
	add(m, rightPolicy("EnableDelegation", "Enable computer and user accounts to be trusted for delegation", "SeEnableDelegationPrivilege"))
	add(m, rightPolicy("ForceShutdownFromRemoteSystem", "Force shutdown from a remote system", "SeRemoteShutdownPrivilege"))
	add(m, rightPolicy("GenerateSecurityAudits", "Generate security audits", "SeAuditPrivilege"))
	add(m, rightPolicy("ImpersonateClientAfterAuthentication", "Impersonate a client after authentication", "SeImpersonatePrivilege"))
	add(m, rightPolicy("IncreaseSchedulingPriority", "Increase scheduling priority", "SeIncreaseBasePriorityPrivilege"))
	add(m, rightPolicy("IncreaseWorkingSet", "Increase a process working set", "SeIncreaseWorkingSetPrivilege"))
	add(m, rightPolicy("LoadAndUnloadDeviceDrivers", "Load and unload device drivers", "SeLoadDriverPrivilege"))
	add(m, rightPolicy("LockPagesInMemory", "Lock pages in memory", "SeLockMemoryPrivilege"))
	add(m, rightPolicy("LogonAsBatchJob", "Log on as a batch job", "SeBatchLogonRight"))
	add(m, rightPolicy("LogonAsService", "Log on as a service", "SeServiceLogonRight"))
	add(m, rightPolicy("ManageAuditingAndSecurityLog", "Manage auditing and security log", "SeSecurityPrivilege"))
	add(m, rightPolicy("ModifyObjectLabel", "Modify an object label", "SeRelabelPrivilege"))
	add(m, rightPolicy("ModifyFirmwareEnvironmentValues", "Modify firmware environment values", "SeSystemEnvironmentPrivilege"))
	add(m, rightPolicy("PerformVolumeMaintenanceTasks", "Perform volume maintenance tasks", "SeManageVolumePrivilege"))
	add(m, rightPolicy("ProfileSingleProcess", "Profile single process", "SeProfileSingleProcessPrivilege"))
	add(m, rightPolicy("ProfileSystemPerformance", "Profile system performance", "SeSystemProfilePrivilege"))
	add(m, rightPolicy("RemoveComputerFromDockingStation", "Remove computer from docking station", "SeUndockPrivilege"))
	add(m, rightPolicy("ReplaceProcessLevelToken", "Replace a process level token", "SeAssignPrimaryTokenPrivilege"))
	add(m, rightPolicy("RestoreFilesAndDirectories", "Restore files and directories", "SeRestorePrivilege"))
	add(m, rightPolicy("ShutdownTheSystem", "Shut down the system", "SeShutdownPrivilege"))
	add(m, rightPolicy("SynchronizeDirectoryServiceData", "Synchronize directory service data", "SeSyncAgentPrivilege"))
	add(m, rightPolicy("TakeOwnershipOfFilesOrOtherObjects", "Take ownership of files or other objects", "SeTakeOwnershipPrivilege"))

	// security options stored as plain registry values
	add(m, regDwordPolicy("RestrictAnonymousSam",
		"Network access: Do not allow anonymous enumeration of SAM accounts",
		lsaKey, "RestrictAnonymousSAM", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("RestrictAnonymous",
		"Network access: Do not allow anonymous enumeration of SAM accounts and shares",
		lsaKey, "RestrictAnonymous", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("DisableDomainCreds",
		"Network access: Do not allow storage of passwords and credentials for network authentication",
		lsaKey, "DisableDomainCreds", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("EveryoneIncludesAnonymous",
		"Network access: Let Everyone permissions apply to anonymous users",
		lsaKey, "EveryoneIncludesAnonymous", enabledDisabled, enabledPair))

	forceGuest := map[interface{}]interface{}{
		int64(0): "Classic - local users authenticate as themselves",
		int64(1): "Guest only - local users authenticate as Guest",
	}
	add(m, regDwordPolicy("ForceGuest",
		"Network access: Sharing and security model for local accounts",
		lsaKey, "ForceGuest", dictOptions(forceGuest), dictPair(forceGuest)))

	add(m, regDwordPolicy("EnableLUA",
		"User Account Control: Run all administrators in Admin Approval Mode",
		uacKey, "EnableLUA", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("FilterAdministratorToken",
		"User Account Control: Admin Approval Mode for the Built-in Administrator account",
		uacKey, "FilterAdministratorToken", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("EnableInstallerDetection",
		"User Account Control: Detect application installations and prompt for elevation",
		uacKey, "EnableInstallerDetection", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("EnableSecureUIAPaths",
		"User Account Control: Only elevate UIAccess applications that are installed in secure locations",
		uacKey, "EnableSecureUIAPaths", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("EnableVirtualization",
		"User Account Control: Virtualize file and registry write failures to per-user locations",
		uacKey, "EnableVirtualization", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("PromptOnSecureDesktop",
		"User Account Control: Switch to the secure desktop when prompting for elevation",
		uacKey, "PromptOnSecureDesktop", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("ValidateAdminCodeSignatures",
		"User Account Control: Only elevate executables that are signed and validated",
		uacKey, "ValidateAdminCodeSignatures", enabledDisabled, enabledPair))

	consentAdmin := map[interface{}]interface{}{
		int64(0): "Elevate without prompting",
		int64(1): "Prompt for credentials on the secure desktop",
		int64(2): "Prompt for consent on the secure desktop",
		int64(3): "Prompt for credentials",
		int64(4): "Prompt for consent",
		int64(5): "Prompt for consent for non-Windows binaries",
	}
	add(m, regDwordPolicy("ConsentPromptBehaviorAdmin",
		"User Account Control: Behavior of the elevation prompt for administrators in Admin Approval Mode",
		uacKey, "ConsentPromptBehaviorAdmin", dictOptions(consentAdmin), dictPair(consentAdmin)))

	consentUser := map[interface{}]interface{}{
		int64(0): "Automatically deny elevation requests",
		int64(1): "Prompt for credentials on the secure desktop",
		int64(3): "Prompt for credentials",
	}
	add(m, regDwordPolicy("ConsentPromptBehaviorUser",
		"User Account Control: Behavior of the elevation prompt for standard users",
		uacKey, "ConsentPromptBehaviorUser", dictOptions(consentUser), dictPair(consentUser)))

	add(m, regDwordPolicy("DontDisplayLastUserName",
		"Interactive logon: Do not display last user name",
		uacKey, "DontDisplayLastUserName", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("DisableCAD",
		"Interactive logon: Do not require CTRL+ALT+DEL",
		uacKey, "DisableCAD", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("ShutdownWithoutLogon",
		"Shutdown: Allow system to be shut down without having to log on",
		uacKey, "ShutdownWithoutLogon", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("UndockWithoutLogon",
		"Devices: Allow undock without having to log on",
		uacKey, "UndockWithoutLogon", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("InactivityTimeoutSecs",
		"Interactive logon: Machine inactivity limit",
		uacKey, "InactivityTimeoutSecs",
		&Settings{Validate: transform.InRangeInclusive(0, 599940)}, transform.Pair{}))
	add(m, regDwordPolicy("ScForceOption",
		"Interactive logon: Require smart card",
		uacKey, "ScForceOption", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("ClearPageFileAtShutdown",
		"Shutdown: Clear virtual memory pagefile",
		sessionMgrKey, "ClearPageFileAtShutdown", enabledDisabled, enabledPair))

	add(m, regDwordPolicy("NoLMHash",
		"Network security: Do not store LAN Manager hash value on next password change",
		lsaKey, "NoLMHash", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("RestrictNullSessAccess",
		"Network access: Restrict anonymous access to Named Pipes and Shares",
		lanmanKey, "RestrictNullSessAccess", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("RecoveryConsoleSecurityLevel",
		"Recovery console: Allow automatic administrative logon",
		recoveryKey, "SecurityLevel", enabledDisabled, enabledPair))
	add(m, regDwordPolicy("RecoveryConsoleSetCommand",
		"Recovery console: Allow floppy copy and access to all drives and all folders",
		recoveryKey, "SetCommand", enabledDisabled, enabledPair))

	lmAuthLevels := map[interface{}]interface{}{
		int64(0): "Send LM & NTLM responses",
		int64(1): "Send LM & NTLM - use NTLMv2 session security if negotiated",
		int64(2): "Send NTLM response only",
		int64(3): "Send NTLMv2 response only",
		int64(4): "Send NTLMv2 response only. Refuse LM",
		int64(5): "Send NTLMv2 response only. Refuse LM & NTLM",
	}
	add(m, regDwordPolicy("LmCompatibilityLevel",
		"Network security: LAN Manager authentication level",
		lsaKey, "LmCompatibilityLevel", dictOptions(lmAuthLevels), dictPair(lmAuthLevels)))

	add(m, regBinaryPolicy("FullPrivilegeAuditing",
		"Audit: Audit the use of Backup and Restore privilege",
		lsaKey, "FullPrivilegeAuditing", enabledDisabled,
		transform.Pair{Get: transform.BinaryEnabled, Put: transform.BinaryEnabledReverse}))

	scRemove := map[interface{}]interface{}{
		"0": "No Action",
		"1": "Lock Workstation",
		"2": "Force Logoff",
		"3": "Disconnect if a Remote Desktop Services session",
	}
	add(m, regStringPolicy("ScRemoveOption",
		"Interactive logon: Smart card removal behavior",
		winlogonKey, "ScRemoveOption", dictOptions(scRemove), dictPair(scRemove)))

	add(m, regStringPolicy("LegalNoticeCaption",
		"Interactive logon: Message title for users attempting to log on",
		uacKey, "LegalNoticeCaption", nil, transform.Pair{}))
	add(m, regStringPolicy("LegalNoticeText",
		"Interactive logon: Message text for users attempting to log on",
		uacKey, "LegalNoticeText", nil, transform.Pair{}))
	add(m, regStringPolicy("CachedLogonsCount",
		"Interactive logon: Number of previous logons to cache (in case domain controller is not available)",
		winlogonKey, "CachedLogonsCount",
		&Settings{Validate: transform.InRangeInclusive(0, 50)}, transform.Pair{}))

	dasd := map[interface{}]interface{}{
		"0": "Administrators",
		"1": "Administrators and Power Users",
		"2": "Administrators and Interactive Users",
	}
	add(m, regStringPolicy("AllocateDASD",
		"Devices: Allowed to format and eject removable media",
		winlogonKey, "AllocateDASD", dictOptions(dasd), dictPair(dasd)))

	// unsigned driver behavior travels through the template's registry
	// values section as a typed "3,N" string
	add(m, &Policy{
		Name:        "DriverSigningPolicy",
		DisplayName: "Devices: Unsigned driver installation behavior",
		Mechanism:   Secedit,
		Secedit: &SeceditParams{
			Section: secpol.RegistryValues,
			Option:  `MACHINE\Software\Microsoft\Driver Signing\Policy`,
		},
		Settings: &Settings{Options: []interface{}{
			"Silently Succeed", "Warn but allow installation", "Do not allow installation", transform.NotDefined,
		}},
		Transform: transform.Pair{Get: transform.DriverSigning, Put: transform.DriverSigningReverse},
	})

	// logon/logoff script wiring kept in the Group Policy scripts ini files
	psOrder := map[interface{}]interface{}{
		"true":  "Run Windows PowerShell scripts first",
		"false": "Run Windows PowerShell scripts last",
	}
	add(m, scriptPolicy("StartupScript", "Startup script command line",
		`Scripts\scripts.ini`, "Startup", "0CmdLine",
		&Settings{Validate: transform.NotEmpty}, transform.Pair{}))
	add(m, scriptPolicy("StartupScriptParameters", "Startup script parameters",
		`Scripts\scripts.ini`, "Startup", "0Parameters", nil, transform.Pair{}))
	add(m, scriptPolicy("ShutdownScript", "Shutdown script command line",
		`Scripts\scripts.ini`, "Shutdown", "0CmdLine",
		&Settings{Validate: transform.NotEmpty}, transform.Pair{}))
	add(m, scriptPolicy("ShutdownScriptParameters", "Shutdown script parameters",
		`Scripts\scripts.ini`, "Shutdown", "0Parameters", nil, transform.Pair{}))
	add(m, scriptPolicy("StartupPowershellScript", "Startup PowerShell script command line",
		`Scripts\psscripts.ini`, "Startup", "0CmdLine",
		&Settings{Validate: transform.NotEmpty}, transform.Pair{}))
	add(m, scriptPolicy("ShutdownPowershellScript", "Shutdown PowerShell script command line",
		`Scripts\psscripts.ini`, "Shutdown", "0CmdLine",
		&Settings{Validate: transform.NotEmpty}, transform.Pair{}))
	add(m, scriptPolicy("StartupPowershellScriptOrder", "Run startup PowerShell scripts first",
		`Scripts\psscripts.ini`, "ScriptsConfig", "StartExecutePSFirst",
		dictOptions(psOrder), dictPair(psOrder)))
	add(m, scriptPolicy("ShutdownPowershellScriptOrder", "Run shutdown PowerShell scripts first",
		`Scripts\psscripts.ini`, "ScriptsConfig", "EndExecutePSFirst",
		dictOptions(psOrder), dictPair(psOrder)))

	return m
}
