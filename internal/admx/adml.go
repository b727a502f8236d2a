package admx

import (
	"encoding/xml"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"
)

// ResourceFile is one parsed .adml localization file.
type ResourceFile struct {
	SourceFile    string
	Strings       map[string]string
	Presentations map[string]*Presentation
}

// Presentation holds the display labels attached to a policy's elements.
type Presentation struct {
	ID     string
	Labels []ElementLabel
}

// ElementLabel ties an element's refId to the text shown next to it.
type ElementLabel struct {
	RefID string
	Text  string
}

type xmlResources struct {
	XMLName           xml.Name              `xml:"policyDefinitionResources"`
	StringTable       *xmlStringTable       `xml:"resources>stringTable"`
	PresentationTable *xmlPresentationTable `xml:"resources>presentationTable"`
}

type xmlStringTable struct {
	Strings []xmlString `xml:"string"`
}

type xmlString struct {
	ID    string `xml:"id,attr"`
	Value string `xml:",chardata"`
}

type xmlPresentationTable struct {
	Presentations []xmlPresentation `xml:"presentation"`
}

type xmlPresentation struct {
	ID               string          `xml:"id,attr"`
	DecimalTextBoxes []xmlLabeledBox `xml:"decimalTextBox"`
	LongDecimalBoxes []xmlLabeledBox `xml:"longDecimalTextBox"`
	TextBoxes        []xmlTextBox    `xml:"textBox"`
	CheckBoxes       []xmlLabeledBox `xml:"checkBox"`
	ComboBoxes       []xmlTextBox    `xml:"comboBox"`
	DropdownLists    []xmlLabeledBox `xml:"dropdownList"`
	ListBoxes        []xmlLabeledBox `xml:"listBox"`
	MultiTextBoxes   []xmlLabeledBox `xml:"multiTextBox"`
}

type xmlLabeledBox struct {
	RefID string `xml:"refId,attr"`
	Text  string `xml:",chardata"`
}

type xmlTextBox struct {
	RefID string `xml:"refId,attr"`
	Label string `xml:"label"`
}

// LoadResourceFile parses an .adml file, applying the same broken-encoding
// recovery as the .admx loader.
func LoadResourceFile(fs afero.Fs, path string) (*ResourceFile, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}

	var resources xmlResources
	if err := decodeXML(data, &resources); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	rf := &ResourceFile{
		SourceFile:    path,
		Strings:       make(map[string]string),
		Presentations: make(map[string]*Presentation),
	}

	if resources.StringTable != nil {
		for _, str := range resources.StringTable.Strings {
			rf.Strings[str.ID] = str.Value
		}
	}

	if resources.PresentationTable != nil {
		for _, pres := range resources.PresentationTable.Presentations {
			p := &Presentation{ID: pres.ID}
			for _, box := range pres.DecimalTextBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Text})
			}
			for _, box := range pres.LongDecimalBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Text})
			}
			for _, box := range pres.TextBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Label})
			}
			for _, box := range pres.CheckBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Text})
			}
			for _, box := range pres.ComboBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Label})
			}
			for _, box := range pres.DropdownLists {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Text})
			}
			for _, box := range pres.ListBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Text})
			}
			for _, box := range pres.MultiTextBoxes {
				p.Labels = append(p.Labels, ElementLabel{RefID: box.RefID, Text: box.Text})
			}
			rf.Presentations[p.ID] = p
		}
	}

	return rf, nil
}
