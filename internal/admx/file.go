// Package admx loads Administrative Template definitions (.admx) together
// with their localization files (.adml) and compiles them into a bundle
// queryable by ID or display text. IDs are qualified with the defining
// file's namespace so same-named policies from different template files
// never collide.
package admx

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
)

type xmlPolicyDefinitions struct {
	XMLName          xml.Name       `xml:"policyDefinitions"`
	PolicyNamespaces *xmlNamespaces `xml:"policyNamespaces"`
	Categories       *xmlCategories `xml:"categories"`
	Policies         *xmlPolicies   `xml:"policies"`
}

type xmlNamespaces struct {
	Target xmlNamespace   `xml:"target"`
	Usings []xmlNamespace `xml:"using"`
}

type xmlNamespace struct {
	Prefix    string `xml:"prefix,attr"`
	Namespace string `xml:"namespace,attr"`
}

type xmlCategories struct {
	Categories []xmlCategory `xml:"category"`
}

type xmlCategory struct {
	Name           string  `xml:"name,attr"`
	DisplayName    string  `xml:"displayName,attr"`
	ParentCategory *xmlRef `xml:"parentCategory"`
}

type xmlRef struct {
	Ref string `xml:"ref,attr"`
}

type xmlPolicies struct {
	Policies []xmlPolicy `xml:"policy"`
}

type xmlPolicy struct {
	Name           string        `xml:"name,attr"`
	Class          string        `xml:"class,attr"`
	DisplayName    string        `xml:"displayName,attr"`
	ExplainText    string        `xml:"explainText,attr"`
	Key            string        `xml:"key,attr"`
	ValueName      string        `xml:"valueName,attr"`
	Presentation   string        `xml:"presentation,attr"`
	ParentCategory xmlRef        `xml:"parentCategory"`
	EnabledValue   *xmlValue     `xml:"enabledValue"`
	DisabledValue  *xmlValue     `xml:"disabledValue"`
	EnabledList    *xmlValueList `xml:"enabledList"`
	DisabledList   *xmlValueList `xml:"disabledList"`
	Elements       *xmlElements  `xml:"elements"`
}

type xmlValue struct {
	Decimal     *xmlAttrValue `xml:"decimal"`
	LongDecimal *xmlAttrValue `xml:"longDecimal"`
	String      *xmlCharValue `xml:"string"`
	Delete      *struct{}     `xml:"delete"`
}

type xmlAttrValue struct {
	Value string `xml:"value,attr"`
}

type xmlCharValue struct {
	Value string `xml:",chardata"`
}

type xmlValueList struct {
	DefaultKey string         `xml:"defaultKey,attr"`
	Items      []xmlValueItem `xml:"item"`
}

type xmlValueItem struct {
	Key       string    `xml:"key,attr"`
	ValueName string    `xml:"valueName,attr"`
	Value     *xmlValue `xml:"value"`
}

type xmlElements struct {
	Decimals     []xmlDecimal   `xml:"decimal"`
	LongDecimals []xmlDecimal   `xml:"longDecimal"`
	Booleans     []xmlBoolean   `xml:"boolean"`
	Texts        []xmlText      `xml:"text"`
	MultiTexts   []xmlMultiText `xml:"multiText"`
	Lists        []xmlList      `xml:"list"`
	Enums        []xmlEnum      `xml:"enum"`
}

type xmlDecimal struct {
	ID          string `xml:"id,attr"`
	Key         string `xml:"key,attr"`
	ValueName   string `xml:"valueName,attr"`
	Required    string `xml:"required,attr"`
	MinValue    string `xml:"minValue,attr"`
	MaxValue    string `xml:"maxValue,attr"`
	StoreAsText string `xml:"storeAsText,attr"`
}

type xmlBoolean struct {
	ID         string        `xml:"id,attr"`
	Key        string        `xml:"key,attr"`
	ValueName  string        `xml:"valueName,attr"`
	TrueValue  *xmlValue     `xml:"trueValue"`
	FalseValue *xmlValue     `xml:"falseValue"`
	TrueList   *xmlValueList `xml:"trueList"`
	FalseList  *xmlValueList `xml:"falseList"`
}

type xmlText struct {
	ID         string `xml:"id,attr"`
	Key        string `xml:"key,attr"`
	ValueName  string `xml:"valueName,attr"`
	Required   string `xml:"required,attr"`
	MaxLength  string `xml:"maxLength,attr"`
	Expandable string `xml:"expandable,attr"`
}

type xmlMultiText struct {
	ID        string `xml:"id,attr"`
	Key       string `xml:"key,attr"`
	ValueName string `xml:"valueName,attr"`
}

type xmlList struct {
	ID            string `xml:"id,attr"`
	Key           string `xml:"key,attr"`
	ValuePrefix   string `xml:"valuePrefix,attr"`
	Additive      string `xml:"additive,attr"`
	Expandable    string `xml:"expandable,attr"`
	ExplicitValue string `xml:"explicitValue,attr"`
}

type xmlEnum struct {
	ID        string        `xml:"id,attr"`
	Key       string        `xml:"key,attr"`
	ValueName string        `xml:"valueName,attr"`
	Required  string        `xml:"required,attr"`
	Items     []xmlEnumItem `xml:"item"`
}

type xmlEnumItem struct {
	DisplayName string        `xml:"displayName,attr"`
	Value       *xmlValue     `xml:"value"`
	ValueList   *xmlValueList `xml:"valueList"`
}

// badEncodingDecl matches the encoding="unicode" declaration some vendor
// templates ship with. Go's XML decoder rejects the name, so the bytes are
// transcoded from UTF-16 and the declaration dropped before a second parse.
var badEncodingDecl = regexp.MustCompile(`(?i)\s+encoding=["']unicode["']`)

func decodeXML(data []byte, v interface{}) error {
	err := xml.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	fixed, fixErr := recoverUnicodeDecl(data)
	if fixErr != nil {
		return err
	}
	return xml.Unmarshal(fixed, v)
}

func recoverUnicodeDecl(data []byte) ([]byte, error) {
	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	text, err := decoder.Bytes(data)
	if err != nil {
		return nil, err
	}
	if !bytes.Contains(bytes.ToLower(text[:min(len(text), 200)]), []byte("unicode")) {
		return nil, errors.New("not a unicode-declared document")
	}
	return badEncodingDecl.ReplaceAll(text, nil), nil
}

// LoadDefinitionFile parses a single .admx file into its raw model.
// Element entries that do not name their own registry key inherit the
// policy's key, so later processing never needs the fallback.
func LoadDefinitionFile(fs afero.Fs, path string) (*DefinitionFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var defs xmlPolicyDefinitions
	if err := decodeXML(data, &defs); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	df := &DefinitionFile{
		SourceFile: path,
		Prefixes:   make(map[string]string),
	}
	if defs.PolicyNamespaces != nil {
		df.Namespace = defs.PolicyNamespaces.Target.Namespace
		df.Prefixes[defs.PolicyNamespaces.Target.Prefix] = defs.PolicyNamespaces.Target.Namespace
		for _, using := range defs.PolicyNamespaces.Usings {
			df.Prefixes[using.Prefix] = using.Namespace
		}
	}
	if df.Namespace == "" {
		return nil, errors.Newf("%s: missing target namespace", path)
	}

	if defs.Categories != nil {
		for _, cat := range defs.Categories.Categories {
			c := &CategoryDef{
				ID:          cat.Name,
				DisplayCode: cat.DisplayName,
				DefinedIn:   df,
			}
			if cat.ParentCategory != nil {
				c.ParentRef = cat.ParentCategory.Ref
			}
			df.Categories = append(df.Categories, c)
		}
	}

	if defs.Policies != nil {
		for _, polDef := range defs.Policies.Policies {
			pol := &PolicyDef{
				ID:             polDef.Name,
				CategoryRef:    polDef.ParentCategory.Ref,
				DisplayCode:    polDef.DisplayName,
				ExplainCode:    polDef.ExplainText,
				PresentationID: polDef.Presentation,
				RegistryKey:    polDef.Key,
				RegistryValue:  polDef.ValueName,
				DefinedIn:      df,
			}
			switch strings.ToLower(polDef.Class) {
			case "machine":
				pol.Section = Machine
			case "user":
				pol.Section = User
			default:
				pol.Section = Both
			}
			pol.StateValues = parseStateValues(
				polDef.EnabledValue, polDef.DisabledValue,
				polDef.EnabledList, polDef.DisabledList)
			if polDef.Elements != nil {
				pol.Elements = parseElements(polDef.Elements)
				for _, elem := range pol.Elements {
					elem.setRegistryKey(pol.RegistryKey)
				}
			}
			df.Policies = append(df.Policies, pol)
		}
	}

	return df, nil
}

func parseStateValues(onVal, offVal *xmlValue, onList, offList *xmlValueList) *StateValues {
	if onVal == nil && offVal == nil && onList == nil && offList == nil {
		return nil
	}
	sv := &StateValues{}
	if onVal != nil {
		sv.OnValue = parseValue(onVal)
	}
	if offVal != nil {
		sv.OffValue = parseValue(offVal)
	}
	if onList != nil {
		sv.OnValueList = parseValueList(onList)
	}
	if offList != nil {
		sv.OffValueList = parseValueList(offList)
	}
	return sv
}

func parseValue(val *xmlValue) *Value {
	switch {
	case val.Delete != nil:
		return &Value{Kind: DeleteValue}
	case val.Decimal != nil:
		num, _ := strconv.ParseUint(val.Decimal.Value, 10, 32)
		return &Value{Kind: NumericValue, Number: num}
	case val.LongDecimal != nil:
		num, _ := strconv.ParseUint(val.LongDecimal.Value, 10, 64)
		return &Value{Kind: NumericValue, Number: num}
	case val.String != nil:
		return &Value{Kind: TextValue, Text: val.String.Value}
	}
	return nil
}

func parseValueList(list *xmlValueList) *ValueList {
	result := &ValueList{DefaultKey: list.DefaultKey}
	for _, item := range list.Items {
		entry := &ValueListItem{
			Key:       item.Key,
			ValueName: item.ValueName,
		}
		if item.Value != nil {
			entry.Value = parseValue(item.Value)
		}
		result.Items = append(result.Items, entry)
	}
	return result
}

func parseElements(elements *xmlElements) []Element {
	var result []Element

	for _, dec := range elements.Decimals {
		elem := &DecimalElement{
			BaseElement: BaseElement{
				ID:            dec.ID,
				RegistryKey:   dec.Key,
				RegistryValue: dec.ValueName,
				Kind:          "decimal",
			},
			Required: dec.Required == "true",
			Maximum:  ^uint32(0),
		}
		if dec.MinValue != "" {
			v, _ := strconv.ParseUint(dec.MinValue, 10, 32)
			elem.Minimum = uint32(v)
		}
		if dec.MaxValue != "" {
			v, _ := strconv.ParseUint(dec.MaxValue, 10, 32)
			elem.Maximum = uint32(v)
		}
		elem.StoreAsText = dec.StoreAsText == "true"
		result = append(result, elem)
	}

	for _, dec := range elements.LongDecimals {
		elem := &LongDecimalElement{
			BaseElement: BaseElement{
				ID:            dec.ID,
				RegistryKey:   dec.Key,
				RegistryValue: dec.ValueName,
				Kind:          "longDecimal",
			},
			Required: dec.Required == "true",
			Maximum:  ^uint64(0),
		}
		if dec.MinValue != "" {
			elem.Minimum, _ = strconv.ParseUint(dec.MinValue, 10, 64)
		}
		if dec.MaxValue != "" {
			elem.Maximum, _ = strconv.ParseUint(dec.MaxValue, 10, 64)
		}
		elem.StoreAsText = dec.StoreAsText == "true"
		result = append(result, elem)
	}

	for _, boo := range elements.Booleans {
		elem := &BooleanElement{
			BaseElement: BaseElement{
				ID:            boo.ID,
				RegistryKey:   boo.Key,
				RegistryValue: boo.ValueName,
				Kind:          "boolean",
			},
			States: parseStateValues(boo.TrueValue, boo.FalseValue, boo.TrueList, boo.FalseList),
		}
		result = append(result, elem)
	}

	for _, txt := range elements.Texts {
		elem := &TextElement{
			BaseElement: BaseElement{
				ID:            txt.ID,
				RegistryKey:   txt.Key,
				RegistryValue: txt.ValueName,
				Kind:          "text",
			},
			MaxLength: 255,
		}
		if txt.MaxLength != "" {
			elem.MaxLength, _ = strconv.Atoi(txt.MaxLength)
		}
		elem.Required = txt.Required == "true"
		elem.Expandable = txt.Expandable == "true"
		result = append(result, elem)
	}

	for _, mt := range elements.MultiTexts {
		result = append(result, &MultiTextElement{
			BaseElement: BaseElement{
				ID:            mt.ID,
				RegistryKey:   mt.Key,
				RegistryValue: mt.ValueName,
				Kind:          "multiText",
			},
		})
	}

	for _, lst := range elements.Lists {
		result = append(result, &ListElement{
			BaseElement: BaseElement{
				ID:          lst.ID,
				RegistryKey: lst.Key,
				Kind:        "list",
			},
			ValuePrefix:   lst.ValuePrefix,
			Additive:      lst.Additive == "true",
			Expandable:    lst.Expandable == "true",
			ExplicitValue: lst.ExplicitValue == "true",
		})
	}

	for _, enm := range elements.Enums {
		elem := &EnumElement{
			BaseElement: BaseElement{
				ID:            enm.ID,
				RegistryKey:   enm.Key,
				RegistryValue: enm.ValueName,
				Kind:          "enum",
			},
			Required: enm.Required == "true",
		}
		for _, item := range enm.Items {
			enumItem := &EnumItem{DisplayCode: item.DisplayName}
			if item.Value != nil {
				enumItem.Value = parseValue(item.Value)
			}
			if item.ValueList != nil {
				enumItem.ValueList = parseValueList(item.ValueList)
			}
			elem.Items = append(elem.Items, enumItem)
		}
		result = append(result, elem)
	}

	return result
}
