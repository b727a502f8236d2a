package gptini

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const path = `C:/Windows/System32/GroupPolicy/gpt.ini`

func TestMachineUpdateNormalizesToCRLF(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path,
		[]byte("[General]\ngPCMachineExtensionNames=\nVersion=8\n"), 0o644))

	require.NoError(t, Update(fs, path, RegistryCSE, Machine))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t,
		"[General]\r\ngPCMachineExtensionNames="+RegistryCSE+"\r\nVersion=9\r\n",
		string(raw))
}

func TestUserUpdateBumpsHighWord(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path,
		[]byte("[General]\r\ngPCUserExtensionNames=\r\nVersion=3\r\n"), 0o644))

	require.NoError(t, Update(fs, path, RegistryCSE, User))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Version=65539\r\n")
	assert.Contains(t, string(raw), "gPCUserExtensionNames="+RegistryCSE)
}

func TestUpdateCreatesMissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Update(fs, path, RegistryCSE, Machine))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Equal(t,
		"[General]\r\ngPCMachineExtensionNames="+RegistryCSE+"\r\nVersion=1\r\n",
		string(raw))
}

func TestUpdateIsIdempotentOnExtensionList(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Update(fs, path, RegistryCSE, Machine))
	require.NoError(t, Update(fs, path, RegistryCSE, Machine))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	// the GUID pair appears once, only the version keeps counting
	assert.Equal(t,
		"[General]\r\ngPCMachineExtensionNames="+RegistryCSE+"\r\nVersion=2\r\n",
		string(raw))
}

func TestUpdateMergesSecondExtensionSorted(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, Update(fs, path, ScriptsCSE, Machine))
	require.NoError(t, Update(fs, path, RegistryCSE, Machine))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	// {353...} sorts before {42B...}
	assert.Contains(t, string(raw),
		"gPCMachineExtensionNames="+RegistryCSE+ScriptsCSE)
}

func TestUpdatePreservesOtherClassList(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, path,
		[]byte("[General]\r\ngPCUserExtensionNames="+ScriptsCSE+"\r\nVersion=0\r\n"), 0o644))

	require.NoError(t, Update(fs, path, RegistryCSE, Machine))

	raw, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "gPCUserExtensionNames="+ScriptsCSE)
	assert.Contains(t, string(raw), "gPCMachineExtensionNames="+RegistryCSE)
	assert.Contains(t, string(raw), "Version=1\r\n")
}
