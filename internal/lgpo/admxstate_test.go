package lgpo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winops/lgpo/internal/admx"
	"github.com/winops/lgpo/internal/pol"
)

const widgetKey = `Software\Policies\Contoso\Widgets`

func widgetPolicy() *admx.Policy {
	raw := &admx.PolicyDef{
		ID:            "ConfigureWidgets",
		Section:       admx.Machine,
		RegistryKey:   widgetKey,
		RegistryValue: "Enabled",
		Elements: []admx.Element{
			&admx.BooleanElement{
				BaseElement: admx.BaseElement{
					ID: "Verbose", RegistryKey: widgetKey, RegistryValue: "Verbose", Kind: "boolean",
				},
				States: &admx.StateValues{
					OnValue:  &admx.Value{Kind: admx.TextValue, Text: "yes"},
					OffValue: &admx.Value{Kind: admx.TextValue, Text: "no"},
				},
			},
			&admx.TextElement{
				BaseElement: admx.BaseElement{
					ID: "Server", RegistryKey: widgetKey, RegistryValue: "Server", Kind: "text",
				},
				Expandable: true,
				MaxLength:  32,
			},
			&admx.MultiTextElement{
				BaseElement: admx.BaseElement{
					ID: "Tags", RegistryKey: widgetKey, RegistryValue: "Tags", Kind: "multiText",
				},
			},
			&admx.ListElement{
				BaseElement: admx.BaseElement{
					ID: "Mappings", RegistryKey: widgetKey + `\Mappings`, Kind: "list",
				},
				ExplicitValue: true,
			},
		},
	}
	return &admx.Policy{UniqueID: "contoso:ConfigureWidgets", DisplayName: "Configure widgets", Raw: raw}
}

func TestApplyEnabledWritesElementKinds(t *testing.T) {
	p := widgetPolicy()
	pf := pol.New()

	err := applyAdmxState(nil, pf, p, StateEnabled, map[string]interface{}{
		"Verbose": true,
		"Server":  `%ProgramData%\widgets`,
		"Tags":    []string{"blue", "green"},
		"Mappings": map[string]string{
			"alpha": "one",
		},
	})
	require.NoError(t, err)

	v, _, err := pf.GetValue(widgetKey, "Enabled")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)

	v, _, err = pf.GetValue(widgetKey, "Verbose")
	require.NoError(t, err)
	assert.Equal(t, "yes", v)

	v, vt, err := pf.GetValue(widgetKey, "Server")
	require.NoError(t, err)
	assert.Equal(t, `%ProgramData%\widgets`, v)
	assert.Equal(t, pol.ExpandSZ, vt)

	v, vt, err = pf.GetValue(widgetKey, "Tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"blue", "green"}, v)
	assert.Equal(t, pol.MultiSZ, vt)

	// explicit-value lists store name/data pairs under their own key
	v, _, err = pf.GetValue(widgetKey+`\Mappings`, "alpha")
	require.NoError(t, err)
	assert.Equal(t, "one", v)
	assert.True(t, pf.WillDeleteValue(widgetKey+`\Mappings`, "anything-else"))
}

func TestApplyEnabledRejectsOverlongText(t *testing.T) {
	p := widgetPolicy()
	pf := pol.New()

	err := applyAdmxState(nil, pf, p, StateEnabled, map[string]interface{}{
		"Server": "this server name runs well past the allowed length",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "longer than 32")
	assert.Zero(t, pf.Len())
}

func TestApplyDisabledUsesOffStates(t *testing.T) {
	p := widgetPolicy()
	pf := pol.New()
	require.NoError(t, applyAdmxState(nil, pf, p, StateEnabled, map[string]interface{}{
		"Verbose": true,
		"Server":  "widgets01",
	}))

	require.NoError(t, applyAdmxState(nil, pf, p, StateDisabled, nil))

	// no explicit off value on the policy itself, so the main value gets a
	// deletion marker; the boolean flips to its off text
	assert.True(t, pf.WillDeleteValue(widgetKey, "Enabled"))
	v, _, err := pf.GetValue(widgetKey, "Verbose")
	require.NoError(t, err)
	assert.Equal(t, "no", v)
	assert.True(t, pf.WillDeleteValue(widgetKey, "Server"))
	assert.True(t, pf.WillDeleteValue(widgetKey+`\Mappings`, "alpha"))

	state, _ := admxPolicyState(nil, pf, p)
	assert.Equal(t, StateDisabled, state)
}

func TestApplyNotConfiguredLeavesNoTrace(t *testing.T) {
	p := widgetPolicy()
	pf := pol.New()
	require.NoError(t, pf.SetValue(`Software\Policies\Other`, "Keep", uint32(7), pol.DWord))
	require.NoError(t, applyAdmxState(nil, pf, p, StateEnabled, map[string]interface{}{
		"Verbose":  false,
		"Mappings": map[string]string{"alpha": "one"},
	}))

	require.NoError(t, applyAdmxState(nil, pf, p, StateNotConfigured, nil))

	// only the unrelated record survives
	require.Equal(t, 1, pf.Len())
	v, _, err := pf.GetValue(`Software\Policies\Other`, "Keep")
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)

	state, _ := admxPolicyState(nil, pf, p)
	assert.Equal(t, StateNotConfigured, state)
}

func TestStateReadsBooleanOnEvidence(t *testing.T) {
	p := widgetPolicy()
	pf := pol.New()
	require.NoError(t, pf.SetValue(widgetKey, "Enabled", uint32(1), pol.DWord))
	require.NoError(t, pf.SetValue(widgetKey, "Verbose", "yes", pol.SZ))

	state, options := admxPolicyState(nil, pf, p)
	assert.Equal(t, StateEnabled, state)
	assert.Equal(t, true, options["Verbose"])
}
