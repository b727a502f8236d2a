package admx

// Section tells which registry hive class a policy configures.
type Section int

const (
	Machine Section = 1
	User    Section = 2
	Both    Section = 3
)

// AppliesTo reports whether the section covers the given class.
func (s Section) AppliesTo(class Section) bool {
	return s == Both || s == class
}

// DefinitionFile is one parsed .admx file.
type DefinitionFile struct {
	SourceFile string
	Namespace  string
	Prefixes   map[string]string
	Categories []*CategoryDef
	Policies   []*PolicyDef
}

// CategoryDef category as declared in a definition file
type CategoryDef struct {
	ID          string
	DisplayCode string
	ParentRef   string
	DefinedIn   *DefinitionFile
}

// PolicyDef policy as declared in a definition file
type PolicyDef struct {
	ID             string
	Section        Section
	CategoryRef    string
	DisplayCode    string
	ExplainCode    string
	PresentationID string
	RegistryKey    string
	RegistryValue  string
	StateValues    *StateValues
	Elements       []Element
	DefinedIn      *DefinitionFile
}

// StateValues are the registry writes tied to the policy's Enabled and
// Disabled states, outside of any element.
type StateValues struct {
	OnValue      *Value
	OnValueList  *ValueList
	OffValue     *Value
	OffValueList *ValueList
}

// ValueKind discriminates the admx value union.
type ValueKind int

const (
	DeleteValue ValueKind = iota
	NumericValue
	TextValue
)

// Value is a literal registry value from enabledValue/disabledValue,
// element true/false values or enum items.
type Value struct {
	Kind   ValueKind
	Number uint64
	Text   string
}

// ValueList is a group of registry writes applied together.
type ValueList struct {
	DefaultKey string
	Items      []*ValueListItem
}

// ValueListItem one write in a value list
type ValueListItem struct {
	Key       string
	ValueName string
	Value     *Value
}

// Element is a configurable input of a policy.
type Element interface {
	GetID() string
	GetRegistryKey() string
	GetRegistryValue() string
	GetKind() string
	setRegistryKey(key string)
}

// BaseElement carries the fields every element kind shares.
type BaseElement struct {
	ID            string
	RegistryKey   string
	RegistryValue string
	Kind          string
}

func (b *BaseElement) GetID() string            { return b.ID }
func (b *BaseElement) GetRegistryKey() string   { return b.RegistryKey }
func (b *BaseElement) GetRegistryValue() string { return b.RegistryValue }
func (b *BaseElement) GetKind() string          { return b.Kind }

func (b *BaseElement) setRegistryKey(key string) {
	if b.RegistryKey == "" {
		b.RegistryKey = key
	}
}

// DecimalElement numeric input, REG_DWORD (or REG_SZ when StoreAsText)
type DecimalElement struct {
	BaseElement
	Required    bool
	Minimum     uint32
	Maximum     uint32
	StoreAsText bool
}

// LongDecimalElement 64-bit numeric input, REG_QWORD
type LongDecimalElement struct {
	BaseElement
	Required    bool
	Minimum     uint64
	Maximum     uint64
	StoreAsText bool
}

// BooleanElement checkbox; without explicit values it writes REG_DWORD 1
// when checked and a deletion when cleared
type BooleanElement struct {
	BaseElement
	States *StateValues
}

// TextElement free text input
type TextElement struct {
	BaseElement
	Required   bool
	MaxLength  int
	Expandable bool
}

// MultiTextElement multi-line text, REG_MULTI_SZ
type MultiTextElement struct {
	BaseElement
}

// ListElement name/value or prefixed list of strings
type ListElement struct {
	BaseElement
	ValuePrefix   string
	Additive      bool
	Expandable    bool
	ExplicitValue bool
}

// EnumElement fixed set of choices
type EnumElement struct {
	BaseElement
	Required bool
	Items    []*EnumItem
}

// EnumItem one enum choice
type EnumItem struct {
	DisplayCode string
	Value       *Value
	ValueList   *ValueList
}
