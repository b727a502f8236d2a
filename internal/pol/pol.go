// Package pol reads and writes the Registry.pol (PReg) policy file format.
//
// A .pol file is a fixed 8-byte header followed by a stream of bracketed
// records: [key;valueName;type;size;data]. The bracket and semicolon
// delimiters are single UTF-16LE code units, key and valueName are
// NUL-terminated UTF-16LE strings, type and size are little-endian DWORDs
// and data is size raw bytes. Records are order-significant: updating an
// existing (key, valueName) pair replaces the record in place so unrelated
// policies keep their position in the file.
package pol

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

const (
	// "PReg" signature followed by version 1
	polSignature = 0x67655250
	polVersion   = 1

	// DeletePrefix marks a single-value deletion record.
	DeletePrefix = "**del."
	// DeleteAllPrefix marks a whole-key value purge record.
	DeleteAllPrefix = "**delvals."
)

// ValueType is a Windows registry value type code as stored in a .pol record.
type ValueType uint32

const (
	None     ValueType = 0
	SZ       ValueType = 1
	ExpandSZ ValueType = 2
	Binary   ValueType = 3
	DWord    ValueType = 4
	MultiSZ  ValueType = 7
	QWord    ValueType = 11
)

// Record is one [key;valueName;type;size;data] entry.
type Record struct {
	Key       string
	ValueName string
	Type      ValueType
	Data      []byte
}

// deleteMarkerData is the data field Windows tooling writes for **del. and
// **delvals. records: a single space, NUL-terminated, UTF-16LE.
var deleteMarkerData = []byte{0x20, 0x00, 0x00, 0x00}

// File is an in-memory .pol file. Records keep file order; lookups are
// case-insensitive on (key, valueName) with delete prefixes stripped, so a
// normal record and its **del. counterpart occupy the same slot.
type File struct {
	records []*Record
	index   map[string]int
}

// New returns an empty policy file.
func New() *File {
	return &File{index: make(map[string]int)}
}

// Load reads a .pol file from fs. A missing file yields an empty File so
// callers can treat "no policy file yet" as "nothing configured".
func Load(fs afero.Fs, path string) (*File, error) {
	f, err := fs.Open(path)
	if err != nil {
		if ok, _ := afero.Exists(fs, path); !ok {
			return New(), nil
		}
		return nil, errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes a .pol record stream.
func LoadFromReader(reader io.Reader) (*File, error) {
	pf := New()

	var sig uint32
	if err := binary.Read(reader, binary.LittleEndian, &sig); err != nil {
		return nil, errors.Wrap(err, "read signature")
	}
	if sig != polSignature {
		return nil, errors.Newf("invalid pol signature: %08x", sig)
	}

	var ver uint32
	if err := binary.Read(reader, binary.LittleEndian, &ver); err != nil {
		return nil, errors.Wrap(err, "read version")
	}
	if ver != polVersion {
		return nil, errors.Newf("unsupported pol version: %d", ver)
	}

	for {
		rec, err := readRecord(reader)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		pf.put(rec)
	}
	return pf, nil
}

func readRecord(reader io.Reader) (*Record, error) {
	var bracket uint16
	if err := binary.Read(reader, binary.LittleEndian, &bracket); err != nil {
		return nil, err
	}
	if bracket != '[' {
		return nil, errors.Newf("expected '[', got %q", rune(bracket))
	}

	key, err := readNullTerminatedUTF16(reader)
	if err != nil {
		return nil, err
	}
	if err := expectChar(reader, ';'); err != nil {
		return nil, err
	}

	valueName, err := readNullTerminatedUTF16(reader)
	if err != nil {
		return nil, err
	}

	// some writers emit an extra NUL before this delimiter
	var semi uint16
	if err := binary.Read(reader, binary.LittleEndian, &semi); err != nil {
		return nil, err
	}
	if semi == 0 {
		if err := binary.Read(reader, binary.LittleEndian, &semi); err != nil {
			return nil, err
		}
	}
	if semi != ';' {
		return nil, errors.Newf("expected ';', got %q", rune(semi))
	}

	var regType uint32
	if err := binary.Read(reader, binary.LittleEndian, &regType); err != nil {
		return nil, err
	}
	if err := expectChar(reader, ';'); err != nil {
		return nil, err
	}

	var length uint32
	if err := binary.Read(reader, binary.LittleEndian, &length); err != nil {
		return nil, err
	}
	if err := expectChar(reader, ';'); err != nil {
		return nil, err
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(reader, data); err != nil {
		return nil, err
	}
	if err := expectChar(reader, ']'); err != nil {
		return nil, err
	}

	return &Record{
		Key:       key,
		ValueName: valueName,
		Type:      ValueType(regType),
		Data:      data,
	}, nil
}

func readNullTerminatedUTF16(reader io.Reader) (string, error) {
	var chars []uint16
	for {
		var c uint16
		if err := binary.Read(reader, binary.LittleEndian, &c); err != nil {
			return "", err
		}
		if c == 0 {
			break
		}
		chars = append(chars, c)
	}
	return string(utf16.Decode(chars)), nil
}

func expectChar(reader io.Reader, expected rune) error {
	var c uint16
	if err := binary.Read(reader, binary.LittleEndian, &c); err != nil {
		return err
	}
	if rune(c) != expected {
		return errors.Newf("expected %q, got %q", expected, rune(c))
	}
	return nil
}

// Save writes the file to fs, creating parent state as the caller arranged.
func (p *File) Save(fs afero.Fs, path string) error {
	f, err := fs.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	return p.SaveToWriter(f)
}

// SaveToWriter encodes the header and every record in file order.
func (p *File) SaveToWriter(writer io.Writer) error {
	if err := binary.Write(writer, binary.LittleEndian, uint32(polSignature)); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint32(polVersion)); err != nil {
		return err
	}
	for _, rec := range p.records {
		if err := writeRecord(writer, rec); err != nil {
			return err
		}
	}
	return nil
}

func writeRecord(writer io.Writer, rec *Record) error {
	if err := binary.Write(writer, binary.LittleEndian, uint16('[')); err != nil {
		return err
	}
	if err := writeNullTerminatedUTF16(writer, rec.Key); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint16(';')); err != nil {
		return err
	}
	if err := writeNullTerminatedUTF16(writer, rec.ValueName); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint16(';')); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint32(rec.Type)); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint16(';')); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint32(len(rec.Data))); err != nil {
		return err
	}
	if err := binary.Write(writer, binary.LittleEndian, uint16(';')); err != nil {
		return err
	}
	if _, err := writer.Write(rec.Data); err != nil {
		return err
	}
	return binary.Write(writer, binary.LittleEndian, uint16(']'))
}

func writeNullTerminatedUTF16(writer io.Writer, str string) error {
	for _, c := range utf16.Encode([]rune(str)) {
		if err := binary.Write(writer, binary.LittleEndian, c); err != nil {
			return err
		}
	}
	return binary.Write(writer, binary.LittleEndian, uint16(0))
}

// stripDeletePrefix returns the plain value name behind a **del. or
// **delvals. marker, unchanged if the name carries neither.
func stripDeletePrefix(valueName string) string {
	lower := strings.ToLower(valueName)
	if strings.HasPrefix(lower, DeleteAllPrefix) {
		return valueName[len(DeleteAllPrefix):]
	}
	if strings.HasPrefix(lower, DeletePrefix) {
		return valueName[len(DeletePrefix):]
	}
	return valueName
}

func slotKey(key, valueName string) string {
	return strings.ToLower(key) + "\\\\" + strings.ToLower(stripDeletePrefix(valueName))
}

// put replaces the record occupying the same (key, valueName) slot or
// appends a new one, keeping file order for everything else.
func (p *File) put(rec *Record) {
	slot := slotKey(rec.Key, rec.ValueName)
	if i, ok := p.index[slot]; ok {
		p.records[i] = rec
		return
	}
	p.index[slot] = len(p.records)
	p.records = append(p.records, rec)
}

func (p *File) get(key, valueName string) (*Record, bool) {
	i, ok := p.index[slotKey(key, valueName)]
	if !ok {
		return nil, false
	}
	return p.records[i], true
}

func (p *File) remove(key, valueName string) {
	slot := slotKey(key, valueName)
	i, ok := p.index[slot]
	if !ok {
		return
	}
	p.records = append(p.records[:i], p.records[i+1:]...)
	delete(p.index, slot)
	for s, j := range p.index {
		if j > i {
			p.index[s] = j - 1
		}
	}
}

// SetRecord folds a prebuilt record into the file, replacing any record for
// the same (key, valueName) regardless of delete prefixes.
func (p *File) SetRecord(rec *Record) {
	p.put(rec)
}

// AppendRecord adds a record without the replace lookup. Used for additive
// list elements whose value names are generated and must not collapse into
// existing slots.
func (p *File) AppendRecord(rec *Record) {
	p.index[slotKey(rec.Key, rec.ValueName)] = len(p.records)
	p.records = append(p.records, rec)
}

// Records returns the records in file order.
func (p *File) Records() []*Record {
	out := make([]*Record, len(p.records))
	copy(out, p.records)
	return out
}

// Len returns the record count.
func (p *File) Len() int { return len(p.records) }

// SetValue encodes data and replaces-or-appends the record for
// (key, valueName). A pending **del. marker for the same value is displaced.
func (p *File) SetValue(key, valueName string, data interface{}, vt ValueType) error {
	payload, err := Encode(data, vt)
	if err != nil {
		return err
	}
	p.put(&Record{Key: key, ValueName: valueName, Type: vt, Data: payload})
	return nil
}

// GetValue decodes the record for (key, valueName).
func (p *File) GetValue(key, valueName string) (interface{}, ValueType, error) {
	rec, ok := p.get(key, valueName)
	if !ok || strings.HasPrefix(strings.ToLower(rec.ValueName), "**") {
		return nil, 0, errors.Newf("value %s\\%s not found", key, valueName)
	}
	v, err := rec.Decode()
	return v, rec.Type, err
}

// ContainsValue reports whether a concrete (non-deletion) record exists.
func (p *File) ContainsValue(key, valueName string) bool {
	rec, ok := p.get(key, valueName)
	return ok && !strings.HasPrefix(strings.ToLower(rec.ValueName), "**")
}

// WillDeleteValue reports whether the file carries a deletion marker for
// the value, either its own **del. record or a **delvals. purge of its key.
func (p *File) WillDeleteValue(key, valueName string) bool {
	if rec, ok := p.get(key, valueName); ok {
		if strings.HasPrefix(strings.ToLower(rec.ValueName), strings.ToLower(DeletePrefix)) {
			return true
		}
	}
	if rec, ok := p.get(key, ""); ok {
		if strings.HasPrefix(strings.ToLower(rec.ValueName), strings.ToLower(DeleteAllPrefix)) {
			return true
		}
	}
	return false
}

// DeleteValue replaces the value's record with a **del. marker.
func (p *File) DeleteValue(key, valueName string) {
	p.put(&Record{
		Key:       key,
		ValueName: DeletePrefix + valueName,
		Type:      SZ,
		Data:      append([]byte(nil), deleteMarkerData...),
	})
}

// ForgetValue removes any record, concrete or marker, for the value.
func (p *File) ForgetValue(key, valueName string) {
	p.remove(key, valueName)
}

// ClearKey drops every record under key and adds a **delvals. purge marker.
func (p *File) ClearKey(key string) {
	lowerKey := strings.ToLower(key)
	kept := p.records[:0]
	for _, rec := range p.records {
		if strings.ToLower(rec.Key) != lowerKey {
			kept = append(kept, rec)
		}
	}
	p.records = kept
	p.reindex()
	p.put(&Record{
		Key:       key,
		ValueName: DeleteAllPrefix,
		Type:      SZ,
		Data:      append([]byte(nil), deleteMarkerData...),
	})
}

// ForgetKeyClearance removes a **delvals. marker for key, if present.
func (p *File) ForgetKeyClearance(key string) {
	p.remove(key, "")
}

func (p *File) reindex() {
	p.index = make(map[string]int, len(p.records))
	for i, rec := range p.records {
		p.index[slotKey(rec.Key, rec.ValueName)] = i
	}
}

// ValueNames lists the concrete value names stored under key.
func (p *File) ValueNames(key string) []string {
	var names []string
	for _, rec := range p.records {
		if strings.EqualFold(rec.Key, key) && !strings.HasPrefix(rec.ValueName, "**") {
			names = append(names, rec.ValueName)
		}
	}
	return names
}

// Decode interprets the record's data per its type code. DWORD/QWORD come
// back as uint32/uint64, strings with the trailing NUL stripped, MULTI_SZ
// split on NUL with trailing empties dropped, everything else raw bytes.
func (e *Record) Decode() (interface{}, error) {
	switch e.Type {
	case SZ, ExpandSZ:
		return e.asString(), nil
	case DWord:
		return e.asDword(), nil
	case QWord:
		return e.asQword(), nil
	case MultiSZ:
		return e.asMultiString(), nil
	default:
		return e.Data, nil
	}
}

func (e *Record) asString() string {
	if len(e.Data) < 2 {
		return ""
	}
	chars := make([]uint16, len(e.Data)/2)
	binary.Read(bytes.NewReader(e.Data), binary.LittleEndian, &chars)
	for i, c := range chars {
		if c == 0 {
			chars = chars[:i]
			break
		}
	}
	return string(utf16.Decode(chars))
}

func (e *Record) asDword() uint32 {
	if len(e.Data) < 4 {
		return 0
	}
	return binary.LittleEndian.Uint32(e.Data[:4])
}

func (e *Record) asQword() uint64 {
	if len(e.Data) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(e.Data[:8])
}

func (e *Record) asMultiString() []string {
	if len(e.Data) < 2 {
		return []string{}
	}
	chars := make([]uint16, len(e.Data)/2)
	binary.Read(bytes.NewReader(e.Data), binary.LittleEndian, &chars)

	var out []string
	var current []uint16
	for _, c := range chars {
		if c == 0 {
			if len(current) == 0 {
				break
			}
			out = append(out, string(utf16.Decode(current)))
			current = nil
		} else {
			current = append(current, c)
		}
	}
	return out
}

// Encode builds the data field for a value of the given type. The DWORD and
// QWORD layouts are plain little-endian words, which is byte-for-byte what
// the UTF-16 code-unit packing used by secedit/LGPO.exe produces.
func Encode(data interface{}, vt ValueType) ([]byte, error) {
	switch vt {
	case SZ, ExpandSZ:
		s, ok := data.(string)
		if !ok {
			return nil, errors.Newf("REG_SZ payload must be a string, got %T", data)
		}
		return encodeString(s), nil
	case DWord:
		v, err := toUint64(data)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v))
		return buf, nil
	case QWord:
		v, err := toUint64(data)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, v)
		return buf, nil
	case MultiSZ:
		list, ok := data.([]string)
		if !ok {
			return nil, errors.Newf("REG_MULTI_SZ payload must be []string, got %T", data)
		}
		return encodeMultiString(list), nil
	default:
		raw, ok := data.([]byte)
		if !ok {
			return nil, errors.Newf("binary payload must be []byte, got %T", data)
		}
		return raw, nil
	}
}

func encodeString(text string) []byte {
	chars := utf16.Encode([]rune(text))
	data := make([]byte, (len(chars)+1)*2)
	for i, c := range chars {
		binary.LittleEndian.PutUint16(data[i*2:], c)
	}
	return data
}

func encodeMultiString(list []string) []byte {
	total := 1
	for _, s := range list {
		total += len(utf16.Encode([]rune(s))) + 1
	}
	data := make([]byte, total*2)
	pos := 0
	for _, s := range list {
		for _, c := range utf16.Encode([]rune(s)) {
			binary.LittleEndian.PutUint16(data[pos:], c)
			pos += 2
		}
		pos += 2
	}
	return data
}

func toUint64(data interface{}) (uint64, error) {
	switch v := data.(type) {
	case uint64:
		return v, nil
	case uint32:
		return uint64(v), nil
	case uint:
		return uint64(v), nil
	case int:
		return uint64(v), nil
	case int32:
		return uint64(v), nil
	case int64:
		return uint64(v), nil
	default:
		return 0, errors.Newf("numeric payload must be an integer, got %T", data)
	}
}
