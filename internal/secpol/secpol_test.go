package secpol

import (
	"context"
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winops/lgpo/internal/winsys/winsystest"
)

func TestTemplateRenderOrderAndTrailer(t *testing.T) {
	tmpl := NewTemplate()
	tmpl.Add(PrivilegeRights, "SeNetworkLogonRight", "*S-1-5-32-544,*S-1-5-32-545")
	tmpl.Add(SystemAccess, "MinimumPasswordLength", "8")
	tmpl.Add(EventAudit, "AuditLogonEvents", "3")
	tmpl.Add(RegistryValues, `MACHINE\System\CurrentControlSet\Control\Lsa\RestrictAnonymous`, "4,1")

	assert.Equal(t,
		"[Unicode]\r\nUnicode=yes\r\n"+
			"[System Access]\r\nMinimumPasswordLength = 8\r\n"+
			"[Event Audit]\r\nAuditLogonEvents = 3\r\n"+
			"[Registry Values]\r\nMACHINE\\System\\CurrentControlSet\\Control\\Lsa\\RestrictAnonymous = 4,1\r\n"+
			"[Privilege Rights]\r\nSeNetworkLogonRight = *S-1-5-32-544,*S-1-5-32-545\r\n"+
			"[Version]\r\nsignature=\"$CHICAGO$\"\r\nRevision=1\r\n",
		tmpl.Render())
}

func TestTemplateSkipsEmptySections(t *testing.T) {
	tmpl := NewTemplate()
	tmpl.Add(SystemAccess, "LockoutBadCount", "5")
	rendered := tmpl.Render()
	assert.NotContains(t, rendered, "[Event Audit]")
	assert.NotContains(t, rendered, "[Privilege Rights]")

	assert.True(t, NewTemplate().Empty())
	assert.False(t, tmpl.Empty())
}

const exportText = "[Unicode]\r\nUnicode=yes\r\n" +
	"[System Access]\r\nMinimumPasswordAge = 0\r\nMaximumPasswordAge = 42\r\n" +
	"[Event Audit]\r\nAuditLogonEvents = 1\r\n" +
	"[Privilege Rights]\r\nSeNetworkLogonRight = *S-1-5-32-544,*S-1-5-32-545\r\n" +
	"[Version]\r\nsignature=\"$CHICAGO$\"\r\nRevision=1\r\n"

func utf16leBOM(s string) []byte {
	chars := utf16.Encode([]rune(s))
	out := make([]byte, 2+len(chars)*2)
	out[0], out[1] = 0xFF, 0xFE
	for i, c := range chars {
		binary.LittleEndian.PutUint16(out[2+i*2:], c)
	}
	return out
}

func TestParseExportUTF16(t *testing.T) {
	export, err := ParseExport(utf16leBOM(exportText))
	require.NoError(t, err)

	v, ok := export.Get(SystemAccess, "maximumpasswordage")
	require.True(t, ok)
	assert.Equal(t, "42", v)

	v, ok = export.Get(EventAudit, "AuditLogonEvents")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	_, ok = export.Get(SystemAccess, "LockoutBadCount")
	assert.False(t, ok)
	_, ok = export.Get("No Such Section", "anything")
	assert.False(t, ok)
}

func TestSplitPrivilegeHolders(t *testing.T) {
	export, err := ParseExport([]byte(exportText))
	require.NoError(t, err)
	v, ok := export.Get(PrivilegeRights, "SeNetworkLogonRight")
	require.True(t, ok)
	assert.Equal(t, []string{"S-1-5-32-544", "S-1-5-32-545"}, SplitPrivilegeHolders(v))
	assert.Nil(t, SplitPrivilegeHolders("  "))
}

// exportingRunner mimics secedit /export by writing a canned file to the
// path named by the /cfg argument.
type exportingRunner struct {
	fs   afero.Fs
	data []byte
}

func (r *exportingRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	for i, arg := range args {
		if arg == "/cfg" && i+1 < len(args) {
			return nil, afero.WriteFile(r.fs, args[i+1], r.data, 0o600)
		}
	}
	return nil, nil
}

func TestManagerDumpExport(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := NewManager(fs, &exportingRunner{fs: fs, data: utf16leBOM(exportText)}, "tmp")

	export, err := m.DumpExport(context.Background())
	require.NoError(t, err)
	v, ok := export.Get(SystemAccess, "MaximumPasswordAge")
	require.True(t, ok)
	assert.Equal(t, "42", v)

	// the temp file is cleaned up after parsing
	exists, _ := afero.Exists(fs, "tmp/secpol-export.inf")
	assert.False(t, exists)
}

func TestManagerImport(t *testing.T) {
	fs := afero.NewMemMapFs()
	runner := winsystest.NewFakeRunner()
	m := NewManager(fs, runner, "tmp")

	tmpl := NewTemplate()
	tmpl.Add(SystemAccess, "LockoutBadCount", "5")
	require.NoError(t, m.Import(context.Background(), tmpl))

	require.Len(t, runner.Commands, 1)
	assert.Equal(t, "secedit", runner.Commands[0][0])
	assert.Contains(t, runner.Commands[0], "/configure")
	assert.Contains(t, runner.Commands[0], "/db")

	// empty template does not shell out
	require.NoError(t, m.Import(context.Background(), NewTemplate()))
	assert.Len(t, runner.Commands, 1)
}
