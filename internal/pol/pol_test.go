package pol

import (
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, pf *File) *File {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, pf.SaveToWriter(&buf))
	out, err := LoadFromReader(&buf)
	require.NoError(t, err)
	return out
}

func TestRoundTripValueTypes(t *testing.T) {
	pf := New()
	key := `Software\Policies\Microsoft\Windows\Test`
	require.NoError(t, pf.SetValue(key, "StringVal", "hello", SZ))
	require.NoError(t, pf.SetValue(key, "ExpandVal", `%SystemRoot%\notepad.exe`, ExpandSZ))
	require.NoError(t, pf.SetValue(key, "DwordVal", uint32(42), DWord))
	require.NoError(t, pf.SetValue(key, "QwordVal", uint64(1<<40), QWord))
	require.NoError(t, pf.SetValue(key, "MultiVal", []string{"one", "two"}, MultiSZ))
	require.NoError(t, pf.SetValue(key, "BinVal", []byte{0xde, 0xad, 0xbe, 0xef}, Binary))

	out := roundTrip(t, pf)
	require.Equal(t, 6, out.Len())

	v, vt, err := out.GetValue(key, "stringval")
	require.NoError(t, err)
	assert.Equal(t, SZ, vt)
	assert.Equal(t, "hello", v)

	v, _, err = out.GetValue(key, "ExpandVal")
	require.NoError(t, err)
	assert.Equal(t, `%SystemRoot%\notepad.exe`, v)

	v, _, err = out.GetValue(key, "DwordVal")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	v, _, err = out.GetValue(key, "QwordVal")
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), v)

	v, _, err = out.GetValue(key, "MultiVal")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, v)

	v, _, err = out.GetValue(key, "BinVal")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, v)
}

func TestHeaderBytes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New().SaveToWriter(&buf))
	assert.Equal(t, []byte{'P', 'R', 'e', 'g', 1, 0, 0, 0}, buf.Bytes())
}

func TestReplaceInPlacePreservesOrder(t *testing.T) {
	pf := New()
	key := `Software\Policies\A`
	require.NoError(t, pf.SetValue(key, "First", uint32(1), DWord))
	require.NoError(t, pf.SetValue(key, "Second", uint32(2), DWord))
	require.NoError(t, pf.SetValue(key, "Third", uint32(3), DWord))

	// update the middle record, case differing
	require.NoError(t, pf.SetValue(key, "SECOND", uint32(20), DWord))
	require.Equal(t, 3, pf.Len())

	recs := pf.Records()
	assert.Equal(t, "First", recs[0].ValueName)
	assert.Equal(t, "SECOND", recs[1].ValueName)
	assert.Equal(t, "Third", recs[2].ValueName)

	v, _, err := pf.GetValue(key, "second")
	require.NoError(t, err)
	assert.Equal(t, uint32(20), v)
}

func TestDeleteValueMarker(t *testing.T) {
	pf := New()
	key := `Software\Policies\A`
	require.NoError(t, pf.SetValue(key, "Gone", uint32(1), DWord))
	pf.DeleteValue(key, "Gone")

	require.Equal(t, 1, pf.Len())
	assert.False(t, pf.ContainsValue(key, "Gone"))
	assert.True(t, pf.WillDeleteValue(key, "Gone"))

	rec := pf.Records()[0]
	assert.Equal(t, "**del.Gone", rec.ValueName)
	assert.Equal(t, SZ, rec.Type)
	assert.Equal(t, []byte{0x20, 0x00, 0x00, 0x00}, rec.Data)

	// setting the value again displaces the marker
	require.NoError(t, pf.SetValue(key, "Gone", uint32(2), DWord))
	require.Equal(t, 1, pf.Len())
	assert.True(t, pf.ContainsValue(key, "Gone"))
	assert.False(t, pf.WillDeleteValue(key, "Gone"))
}

func TestClearKey(t *testing.T) {
	pf := New()
	keyA := `Software\Policies\A`
	keyB := `Software\Policies\B`
	require.NoError(t, pf.SetValue(keyA, "One", uint32(1), DWord))
	require.NoError(t, pf.SetValue(keyA, "Two", uint32(2), DWord))
	require.NoError(t, pf.SetValue(keyB, "Keep", uint32(3), DWord))

	pf.ClearKey(keyA)

	out := roundTrip(t, pf)
	assert.True(t, out.WillDeleteValue(keyA, "One"))
	assert.True(t, out.WillDeleteValue(keyA, "AnythingElse"))
	assert.True(t, out.ContainsValue(keyB, "Keep"))
	assert.Empty(t, out.ValueNames(keyA))

	out.ForgetKeyClearance(keyA)
	assert.False(t, out.WillDeleteValue(keyA, "One"))
}

func TestLoadMissingFileYieldsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	pf, err := Load(fs, `C:\Windows\System32\GroupPolicy\Machine\Registry.pol`)
	require.NoError(t, err)
	assert.Equal(t, 0, pf.Len())
}

func TestSaveAndLoadViaFs(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := `machine/Registry.pol`

	pf := New()
	require.NoError(t, pf.SetValue(`Software\X`, "V", "data", SZ))
	require.NoError(t, pf.Save(fs, path))

	out, err := Load(fs, path)
	require.NoError(t, err)
	v, _, err := out.GetValue(`software\x`, "v")
	require.NoError(t, err)
	assert.Equal(t, "data", v)
}

func TestAppendRecordAdditive(t *testing.T) {
	pf := New()
	key := `Software\Policies\List`
	pf.AppendRecord(&Record{Key: key, ValueName: "1", Type: SZ, Data: encodeString("a")})
	pf.AppendRecord(&Record{Key: key, ValueName: "2", Type: SZ, Data: encodeString("b")})
	assert.Equal(t, []string{"1", "2"}, pf.ValueNames(key))
}
