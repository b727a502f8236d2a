package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winops/lgpo/internal/transform"
)

func TestBuiltinCatalogIntegrity(t *testing.T) {
	c := Builtin()
	require.NotEmpty(t, c.Machine)

	displayNames := make(map[string]string)
	for name, p := range c.Machine {
		assert.Equal(t, name, p.Name)
		require.NotEmpty(t, p.DisplayName, "policy %s", name)

		// display names double as lookup aliases, they must be unique
		prev, dup := displayNames[p.DisplayName]
		require.False(t, dup, "display name %q used by %s and %s", p.DisplayName, prev, name)
		displayNames[p.DisplayName] = name

		switch p.Mechanism {
		case Registry:
			assert.NotNil(t, p.Registry, "policy %s", name)
		case Secedit:
			assert.NotNil(t, p.Secedit, "policy %s", name)
		case NetUserModal:
			assert.NotNil(t, p.Modal, "policy %s", name)
		case LsaRights:
			assert.NotNil(t, p.Rights, "policy %s", name)
		case ScriptIni:
			assert.NotNil(t, p.Script, "policy %s", name)
		}
	}
}

func TestFindByNameAndDisplayName(t *testing.T) {
	c := Builtin()

	p, ok := FindByName(c.Machine, "lockoutduration")
	require.True(t, ok)
	assert.Equal(t, "LockoutDuration", p.Name)
	assert.Equal(t, NetUserModal, p.Mechanism)
	assert.Equal(t, 3, p.Modal.Level)

	p, ok = FindByDisplayName(c.Machine, "account lockout duration")
	require.True(t, ok)
	assert.Equal(t, "LockoutDuration", p.Name)

	_, ok = FindByName(c.Machine, "NoSuchPolicy")
	assert.False(t, ok)
}

func TestSettingsAccept(t *testing.T) {
	c := Builtin()

	lockout, _ := FindByName(c.Machine, "LockoutDuration")
	assert.True(t, lockout.Settings.Accepts(1440))
	assert.True(t, lockout.Settings.Accepts(transform.NotDefined))
	assert.False(t, lockout.Settings.Accepts(6000001))

	complexity, _ := FindByName(c.Machine, "PasswordComplexity")
	assert.True(t, complexity.Settings.Accepts("enabled"))
	assert.False(t, complexity.Settings.Accepts("Maybe"))

	rename, _ := FindByName(c.Machine, "NewAdministratorName")
	assert.True(t, rename.Settings.Accepts("root"))
	assert.False(t, rename.Settings.Accepts("  "))
}

func TestTransformRoundTrips(t *testing.T) {
	c := Builtin()

	lockout, _ := FindByName(c.Machine, "LockoutDuration")
	// stored seconds become reported minutes and back
	assert.Equal(t, int64(30), lockout.Transform.Get.Apply(uint64(1800)))
	assert.Equal(t, int64(86400), lockout.Transform.Put.Apply(1440))

	maxAge, _ := FindByName(c.Machine, "MaxPasswordAge")
	assert.Equal(t, int64(42), maxAge.Transform.Get.Apply(uint64(3628800)))

	uac, _ := FindByName(c.Machine, "ConsentPromptBehaviorAdmin")
	assert.Equal(t, "Prompt for consent", uac.Transform.Get.Apply(uint64(4)))
	assert.Equal(t, int64(2), uac.Transform.Put.Apply("Prompt for consent on the secure desktop"))

	driver, _ := FindByName(c.Machine, "DriverSigningPolicy")
	assert.Equal(t, "Warn but allow installation", driver.Transform.Get.Apply("3,1"))
	assert.Equal(t, "3,0", driver.Transform.Put.Apply("Silently Succeed"))

	lm, _ := FindByName(c.Machine, "LmCompatibilityLevel")
	assert.Equal(t, "Send NTLMv2 response only. Refuse LM & NTLM", lm.Transform.Get.Apply(uint64(5)))
	assert.Equal(t, int64(3), lm.Transform.Put.Apply("Send NTLMv2 response only"))

	audit, _ := FindByName(c.Machine, "FullPrivilegeAuditing")
	assert.Equal(t, "Enabled", audit.Transform.Get.Apply([]byte{1}))
	assert.Equal(t, []byte{0}, audit.Transform.Put.Apply("Disabled"))
}

func TestAuditPoliciesCoverAllEvents(t *testing.T) {
	c := Builtin()
	audits := 0
	for _, p := range c.Machine {
		if p.Mechanism == Secedit && p.Secedit.Section == "Event Audit" {
			audits++
			assert.True(t, p.Settings.Accepts("Success and Failure"), "policy %s", p.Name)
		}
	}
	assert.Equal(t, 9, audits)
}
