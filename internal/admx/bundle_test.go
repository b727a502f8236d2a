package admx

import (
	"encoding/binary"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const firewallAdmx = `<?xml version="1.0" encoding="utf-8"?>
<policyDefinitions revision="1.0" schemaVersion="1.0">
  <policyNamespaces>
    <target prefix="fw" namespace="Vendor.Policies.Firewall" />
  </policyNamespaces>
  <categories>
    <category name="Network" displayName="$(string.Network)" />
    <category name="Firewall" displayName="$(string.Firewall)">
      <parentCategory ref="Network" />
    </category>
  </categories>
  <policies>
    <policy name="DisableFirewall" class="Machine" displayName="$(string.DisableFirewall)"
        explainText="$(string.DisableFirewall_Help)"
        key="Software\Policies\Vendor\Firewall" valueName="Disabled"
        presentation="$(presentation.DisableFirewall)">
      <parentCategory ref="Firewall" />
      <enabledValue><decimal value="1" /></enabledValue>
      <disabledValue><decimal value="0" /></disabledValue>
      <elements>
        <decimal id="GracePeriod" valueName="GracePeriod" minValue="0" maxValue="120" />
        <enum id="Profile" valueName="Profile" required="true">
          <item displayName="$(string.ProfileDomain)"><value><decimal value="0" /></value></item>
          <item displayName="$(string.ProfilePublic)"><value><decimal value="2" /></value></item>
        </enum>
        <list id="Exceptions" key="Software\Policies\Vendor\Firewall\Exceptions" additive="true" />
      </elements>
    </policy>
  </policies>
</policyDefinitions>`

const firewallAdml = `<?xml version="1.0" encoding="utf-8"?>
<policyDefinitionResources revision="1.0" schemaVersion="1.0">
  <resources>
    <stringTable>
      <string id="Network">Network</string>
      <string id="Firewall">Firewall Settings</string>
      <string id="DisableFirewall">Turn off the host firewall</string>
      <string id="DisableFirewall_Help">Disables the firewall service.</string>
      <string id="ProfileDomain">Domain profile</string>
      <string id="ProfilePublic">Public profile</string>
    </stringTable>
    <presentationTable>
      <presentation id="DisableFirewall">
        <decimalTextBox refId="GracePeriod">Grace period (minutes)</decimalTextBox>
        <dropdownList refId="Profile">Firewall profile</dropdownList>
        <listBox refId="Exceptions">Port exceptions</listBox>
      </presentation>
    </presentationTable>
  </resources>
</policyDefinitionResources>`

const auditAdmx = `<?xml version="1.0" encoding="utf-8"?>
<policyDefinitions revision="1.0" schemaVersion="1.0">
  <policyNamespaces>
    <target prefix="audit" namespace="Vendor.Policies.Audit" />
    <using prefix="fw" namespace="Vendor.Policies.Firewall" />
  </policyNamespaces>
  <policies>
    <policy name="DisableFirewall" class="Machine" displayName="$(string.SameName)"
        key="Software\Policies\Vendor\Audit" valueName="FirewallAudit">
      <parentCategory ref="fw:Firewall" />
      <enabledValue><decimal value="1" /></enabledValue>
      <disabledValue><decimal value="0" /></disabledValue>
    </policy>
  </policies>
</policyDefinitions>`

const auditAdml = `<?xml version="1.0" encoding="utf-8"?>
<policyDefinitionResources revision="1.0" schemaVersion="1.0">
  <resources>
    <stringTable>
      <string id="SameName">Turn off the host firewall</string>
    </stringTable>
  </resources>
</policyDefinitionResources>`

func writeTemplates(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "firewall.admx"), []byte(firewallAdmx), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "en-US", "firewall.adml"), []byte(firewallAdml), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "audit.admx"), []byte(auditAdmx), 0o644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(dir, "en-US", "audit.adml"), []byte(auditAdml), 0o644))
}

func loadTestBundle(t *testing.T, languageCode string) *Bundle {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeTemplates(t, fs, "defs")
	bundle := NewBundle()
	failures, err := bundle.LoadFolder(fs, "defs", languageCode)
	require.NoError(t, err)
	require.Empty(t, failures)
	return bundle
}

func TestBundleCompilesQualifiedIDs(t *testing.T) {
	bundle := loadTestBundle(t, "en-US")

	pol, ok := bundle.Policies["Vendor.Policies.Firewall:DisableFirewall"]
	require.True(t, ok)
	assert.Equal(t, "Turn off the host firewall", pol.DisplayName)
	assert.Equal(t, "Disables the firewall service.", pol.Explanation)
	assert.Equal(t, Machine, pol.Raw.Section)

	// both files define a policy named DisableFirewall; they stay distinct
	_, ok = bundle.Policies["Vendor.Policies.Audit:DisableFirewall"]
	assert.True(t, ok)
}

func TestFindByBareIDMatchesAcrossNamespaces(t *testing.T) {
	bundle := loadTestBundle(t, "en-US")

	matches := bundle.FindByID("DisableFirewall", Machine)
	assert.Len(t, matches, 2)

	matches = bundle.FindByID("Vendor.Policies.Audit:DisableFirewall", Machine)
	require.Len(t, matches, 1)
	assert.Equal(t, "FirewallAudit", matches[0].Raw.RegistryValue)

	assert.Empty(t, bundle.FindByID("DisableFirewall", User))
}

func TestFindByDisplayTextAndBreadcrumb(t *testing.T) {
	bundle := loadTestBundle(t, "en-US")

	matches := bundle.FindByDisplayText("turn off the host firewall", Machine)
	assert.Len(t, matches, 2)

	pol := bundle.Policies["Vendor.Policies.Firewall:DisableFirewall"]
	assert.Equal(t,
		[]string{"Network", "Firewall Settings", "Turn off the host firewall"},
		bundle.Breadcrumb(pol))

	// cross-namespace parentCategory ref lands in the firewall tree
	audit := bundle.Policies["Vendor.Policies.Audit:DisableFirewall"]
	assert.Equal(t,
		[]string{"Network", "Firewall Settings", "Turn off the host firewall"},
		bundle.Breadcrumb(audit))
}

func TestElementKeyInheritanceAndLabels(t *testing.T) {
	bundle := loadTestBundle(t, "en-US")
	pol := bundle.Policies["Vendor.Policies.Firewall:DisableFirewall"]
	require.Len(t, pol.Raw.Elements, 3)

	grace, ok := bundle.ElementByLabel(pol, "GracePeriod")
	require.True(t, ok)
	assert.Equal(t, `Software\Policies\Vendor\Firewall`, grace.GetRegistryKey())
	dec := grace.(*DecimalElement)
	assert.Equal(t, uint32(120), dec.Maximum)

	// lookup by presentation label instead of element ID
	byLabel, ok := bundle.ElementByLabel(pol, "Grace period (minutes)")
	require.True(t, ok)
	assert.Equal(t, "GracePeriod", byLabel.GetID())

	list, ok := bundle.ElementByLabel(pol, "Port exceptions")
	require.True(t, ok)
	assert.Equal(t, `Software\Policies\Vendor\Firewall\Exceptions`, list.GetRegistryKey())
	assert.True(t, list.(*ListElement).Additive)

	enum, ok := bundle.ElementByLabel(pol, "Profile")
	require.True(t, ok)
	items := enum.(*EnumElement).Items
	require.Len(t, items, 2)
	assert.Equal(t, "Domain profile", bundle.ResolveString(items[0].DisplayCode, pol.Raw.DefinedIn))
}

func TestLanguageFallbackToEnUS(t *testing.T) {
	// fr-FR has no resources, en-US serves as the fallback
	bundle := loadTestBundle(t, "fr-FR")
	pol := bundle.Policies["Vendor.Policies.Firewall:DisableFirewall"]
	assert.Equal(t, "Turn off the host firewall", pol.DisplayName)
}

func TestLanguageFallbackToSamePrimaryLanguage(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "defs/firewall.admx", []byte(firewallAdmx), 0o644))
	require.NoError(t, afero.WriteFile(fs, "defs/de-DE/firewall.adml", []byte(firewallAdml), 0o644))

	bundle := NewBundle()
	failures, err := bundle.LoadFolder(fs, "defs", "de-AT")
	require.NoError(t, err)
	require.Empty(t, failures)
	assert.Len(t, bundle.Policies, 1)
}

func TestMissingAdmlReportsFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "defs/firewall.admx", []byte(firewallAdmx), 0o644))

	bundle := NewBundle()
	failures, err := bundle.LoadFolder(fs, "defs", "en-US")
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, NoAdml, failures[0].FailType)
	assert.Empty(t, bundle.Policies)
}

func TestUnicodeEncodingDeclRecovery(t *testing.T) {
	fs := afero.NewMemMapFs()
	broken := `<?xml version="1.0" encoding="unicode"?>` + firewallAdmx[len(`<?xml version="1.0" encoding="utf-8"?>`):]
	require.NoError(t, afero.WriteFile(fs, "defs/firewall.admx", encodeUTF16LE(broken), 0o644))
	require.NoError(t, afero.WriteFile(fs, "defs/en-US/firewall.adml", []byte(firewallAdml), 0o644))

	bundle := NewBundle()
	failures, err := bundle.LoadFolder(fs, "defs", "en-US")
	require.NoError(t, err)
	require.Empty(t, failures)
	assert.Contains(t, bundle.Policies, "Vendor.Policies.Firewall:DisableFirewall")
}

func encodeUTF16LE(s string) []byte {
	chars := utf16.Encode([]rune(s))
	out := make([]byte, 2+len(chars)*2)
	out[0], out[1] = 0xFF, 0xFE
	for i, c := range chars {
		binary.LittleEndian.PutUint16(out[2+i*2:], c)
	}
	return out
}

func TestCacheReusesBundle(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTemplates(t, fs, "defs")

	cache := NewCache(fs)
	first, _, err := cache.Get("defs", "en-US")
	require.NoError(t, err)
	second, _, err := cache.Get("defs", "en-US")
	require.NoError(t, err)
	assert.Same(t, first, second)

	cache.Invalidate("defs", "en-US")
	third, _, err := cache.Get("defs", "en-US")
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}
