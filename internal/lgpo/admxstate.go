package lgpo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/winops/lgpo/internal/admx"
	"github.com/winops/lgpo/internal/pol"
)

// Administrative Template policy states as reported and accepted.
const (
	StateNotConfigured = "Not Configured"
	StateDisabled      = "Disabled"
	StateEnabled       = "Enabled"
)

// admxPolicyState reads a template policy's state out of a Registry.pol
// file. Enabled states with elements come back as the element value map.
func admxPolicyState(bundle *admx.Bundle, pf *pol.File, policy *admx.Policy) (string, map[string]interface{}) {
	raw := policy.Raw

	if raw.StateValues != nil {
		if on := raw.StateValues.OnValue; on != nil {
			if polValueMatches(pf, on, raw.RegistryKey, raw.RegistryValue) {
				return StateEnabled, readElements(bundle, pf, policy)
			}
		}
		if list := raw.StateValues.OnValueList; list != nil {
			if polListMatches(pf, list, raw.RegistryKey) {
				return StateEnabled, readElements(bundle, pf, policy)
			}
		}
		if off := raw.StateValues.OffValue; off != nil {
			if polValueMatches(pf, off, raw.RegistryKey, raw.RegistryValue) {
				return StateDisabled, nil
			}
		}
		if list := raw.StateValues.OffValueList; list != nil {
			if polListMatches(pf, list, raw.RegistryKey) {
				return StateDisabled, nil
			}
		}
		return StateNotConfigured, nil
	}

	if raw.RegistryValue != "" {
		if pf.WillDeleteValue(raw.RegistryKey, raw.RegistryValue) {
			return StateDisabled, nil
		}
		v, _, err := pf.GetValue(raw.RegistryKey, raw.RegistryValue)
		if err != nil {
			return StateNotConfigured, nil
		}
		if dw, ok := v.(uint32); ok && dw == 0 {
			return StateDisabled, nil
		}
		return StateEnabled, readElements(bundle, pf, policy)
	}

	// pure element policies count as enabled once any element is stored
	if len(raw.Elements) > 0 {
		opts := readElements(bundle, pf, policy)
		if len(opts) > 0 {
			return StateEnabled, opts
		}
	}
	return StateNotConfigured, nil
}

func polValueMatches(pf *pol.File, want *admx.Value, key, valueName string) bool {
	switch want.Kind {
	case admx.DeleteValue:
		return pf.WillDeleteValue(key, valueName)
	case admx.NumericValue:
		v, _, err := pf.GetValue(key, valueName)
		if err != nil {
			return false
		}
		switch n := v.(type) {
		case uint32:
			return uint64(n) == want.Number
		case uint64:
			return n == want.Number
		}
		return false
	default:
		v, _, err := pf.GetValue(key, valueName)
		if err != nil {
			return false
		}
		s, ok := v.(string)
		return ok && s == want.Text
	}
}

func polListMatches(pf *pol.File, list *admx.ValueList, defaultKey string) bool {
	for _, item := range list.Items {
		key := defaultKey
		if list.DefaultKey != "" {
			key = list.DefaultKey
		}
		if item.Key != "" {
			key = item.Key
		}
		if item.Value == nil || !polValueMatches(pf, item.Value, key, item.ValueName) {
			return false
		}
	}
	return len(list.Items) > 0
}

func readElements(bundle *admx.Bundle, pf *pol.File, policy *admx.Policy) map[string]interface{} {
	options := make(map[string]interface{})
	for _, element := range policy.Raw.Elements {
		key := element.GetRegistryKey()
		switch e := element.(type) {
		case *admx.DecimalElement:
			if v, _, err := pf.GetValue(key, e.RegistryValue); err == nil {
				options[e.ID] = v
			}
		case *admx.LongDecimalElement:
			if v, _, err := pf.GetValue(key, e.RegistryValue); err == nil {
				options[e.ID] = v
			}
		case *admx.TextElement:
			if v, _, err := pf.GetValue(key, e.RegistryValue); err == nil {
				options[e.ID] = v
			}
		case *admx.MultiTextElement:
			if v, _, err := pf.GetValue(key, e.RegistryValue); err == nil {
				options[e.ID] = v
			}
		case *admx.BooleanElement:
			options[e.ID] = booleanElementState(pf, e)
		case *admx.EnumElement:
			for _, item := range e.Items {
				if item.Value != nil && polValueMatches(pf, item.Value, key, e.RegistryValue) {
					options[e.ID] = bundle.ResolveString(item.DisplayCode, policy.Raw.DefinedIn)
					break
				}
			}
		case *admx.ListElement:
			names := pf.ValueNames(key)
			if len(names) == 0 {
				continue
			}
			if e.ExplicitValue {
				dict := make(map[string]string)
				for _, name := range names {
					if v, _, err := pf.GetValue(key, name); err == nil {
						if s, ok := v.(string); ok {
							dict[name] = s
						}
					}
				}
				options[e.ID] = dict
			} else {
				var items []string
				for _, name := range names {
					if v, _, err := pf.GetValue(key, name); err == nil {
						if s, ok := v.(string); ok {
							items = append(items, s)
						}
					}
				}
				options[e.ID] = items
			}
		}
	}
	return options
}

func booleanElementState(pf *pol.File, e *admx.BooleanElement) bool {
	if e.States != nil && e.States.OnValue != nil {
		return polValueMatches(pf, e.States.OnValue, e.RegistryKey, e.RegistryValue)
	}
	v, _, err := pf.GetValue(e.RegistryKey, e.RegistryValue)
	if err != nil {
		return false
	}
	dw, ok := v.(uint32)
	return ok && dw == 1
}

// applyAdmxState folds the desired state of a template policy into the
// Registry.pol file. Element values are validated before the first write.
func applyAdmxState(bundle *admx.Bundle, pf *pol.File, policy *admx.Policy, state string, options map[string]interface{}) error {
	switch state {
	case StateEnabled:
		return applyEnabled(bundle, pf, policy, options)
	case StateDisabled:
		applyDisabled(pf, policy)
		return nil
	case StateNotConfigured:
		forgetPolicy(pf, policy)
		return nil
	default:
		return errors.Newf("invalid state %q for %s", state, policy.UniqueID)
	}
}

func applyEnabled(bundle *admx.Bundle, pf *pol.File, policy *admx.Policy, options map[string]interface{}) error {
	raw := policy.Raw

	if err := validateElements(bundle, policy, options); err != nil {
		return err
	}

	hasOnValue := raw.StateValues != nil && (raw.StateValues.OnValue != nil || raw.StateValues.OnValueList != nil)
	if !hasOnValue && raw.RegistryValue != "" {
		pf.SetValue(raw.RegistryKey, raw.RegistryValue, uint32(1), pol.DWord)
	}
	if raw.StateValues != nil {
		if raw.StateValues.OnValue != nil {
			writePolValue(pf, raw.StateValues.OnValue, raw.RegistryKey, raw.RegistryValue)
		}
		if raw.StateValues.OnValueList != nil {
			writePolValueList(pf, raw.StateValues.OnValueList, raw.RegistryKey)
		}
	}

	for _, element := range raw.Elements {
		value, ok := options[element.GetID()]
		if !ok {
			continue
		}
		if err := writeElement(bundle, pf, policy, element, value); err != nil {
			return err
		}
	}
	return nil
}

func validateElements(bundle *admx.Bundle, policy *admx.Policy, options map[string]interface{}) error {
	for _, element := range policy.Raw.Elements {
		value, ok := options[element.GetID()]
		if !ok {
			if required(element) {
				return errors.Newf("%s: element %s is required", policy.UniqueID, element.GetID())
			}
			continue
		}
		switch e := element.(type) {
		case *admx.DecimalElement:
			n, err := coerceUint64(value)
			if err != nil {
				return errors.Wrapf(err, "%s: element %s", policy.UniqueID, e.ID)
			}
			if n < uint64(e.Minimum) || n > uint64(e.Maximum) {
				return errors.Newf("%s: element %s: %d out of range [%d, %d]",
					policy.UniqueID, e.ID, n, e.Minimum, e.Maximum)
			}
		case *admx.LongDecimalElement:
			n, err := coerceUint64(value)
			if err != nil {
				return errors.Wrapf(err, "%s: element %s", policy.UniqueID, e.ID)
			}
			if n < e.Minimum || n > e.Maximum {
				return errors.Newf("%s: element %s: %d out of range [%d, %d]",
					policy.UniqueID, e.ID, n, e.Minimum, e.Maximum)
			}
		case *admx.TextElement:
			s, ok := value.(string)
			if !ok {
				return errors.Newf("%s: element %s: expected string, got %T", policy.UniqueID, e.ID, value)
			}
			if e.MaxLength > 0 && len(s) > e.MaxLength {
				return errors.Newf("%s: element %s: text longer than %d characters", policy.UniqueID, e.ID, e.MaxLength)
			}
		case *admx.BooleanElement:
			if _, ok := value.(bool); !ok {
				return errors.Newf("%s: element %s: expected bool, got %T", policy.UniqueID, e.ID, value)
			}
		case *admx.MultiTextElement:
			if _, err := coerceStringSlice(value); err != nil {
				return errors.Wrapf(err, "%s: element %s", policy.UniqueID, e.ID)
			}
		case *admx.ListElement:
			if e.ExplicitValue {
				if _, err := coerceStringMap(value); err != nil {
					return errors.Wrapf(err, "%s: element %s", policy.UniqueID, e.ID)
				}
			} else if _, err := coerceStringSlice(value); err != nil {
				return errors.Wrapf(err, "%s: element %s", policy.UniqueID, e.ID)
			}
		case *admx.EnumElement:
			if _, err := pickEnumItem(bundle, policy, e, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func required(element admx.Element) bool {
	switch e := element.(type) {
	case *admx.DecimalElement:
		return e.Required
	case *admx.LongDecimalElement:
		return e.Required
	case *admx.TextElement:
		return e.Required
	case *admx.EnumElement:
		return e.Required
	default:
		return false
	}
}

func writeElement(bundle *admx.Bundle, pf *pol.File, policy *admx.Policy, element admx.Element, value interface{}) error {
	key := element.GetRegistryKey()

	switch e := element.(type) {
	case *admx.DecimalElement:
		n, _ := coerceUint64(value)
		if e.StoreAsText {
			pf.SetValue(key, e.RegistryValue, strconv.FormatUint(n, 10), pol.SZ)
		} else {
			pf.SetValue(key, e.RegistryValue, uint32(n), pol.DWord)
		}
	case *admx.LongDecimalElement:
		n, _ := coerceUint64(value)
		if e.StoreAsText {
			pf.SetValue(key, e.RegistryValue, strconv.FormatUint(n, 10), pol.SZ)
		} else {
			pf.SetValue(key, e.RegistryValue, n, pol.QWord)
		}
	case *admx.TextElement:
		vt := pol.SZ
		if e.Expandable {
			vt = pol.ExpandSZ
		}
		pf.SetValue(key, e.RegistryValue, value.(string), vt)
	case *admx.MultiTextElement:
		items, _ := coerceStringSlice(value)
		pf.SetValue(key, e.RegistryValue, items, pol.MultiSZ)
	case *admx.BooleanElement:
		checked := value.(bool)
		switch {
		case e.States == nil:
			if checked {
				pf.SetValue(key, e.RegistryValue, uint32(1), pol.DWord)
			} else {
				pf.DeleteValue(key, e.RegistryValue)
			}
		case checked:
			if e.States.OnValue != nil {
				writePolValue(pf, e.States.OnValue, key, e.RegistryValue)
			}
			if e.States.OnValueList != nil {
				writePolValueList(pf, e.States.OnValueList, key)
			}
		default:
			if e.States.OffValue != nil {
				writePolValue(pf, e.States.OffValue, key, e.RegistryValue)
			} else {
				pf.DeleteValue(key, e.RegistryValue)
			}
			if e.States.OffValueList != nil {
				writePolValueList(pf, e.States.OffValueList, key)
			}
		}
	case *admx.ListElement:
		vt := pol.SZ
		if e.Expandable {
			vt = pol.ExpandSZ
		}
		if !e.Additive {
			pf.ClearKey(key)
		}
		if e.ExplicitValue {
			entries, _ := coerceStringMap(value)
			for name, data := range entries {
				pf.SetValue(key, name, data, vt)
			}
		} else {
			items, _ := coerceStringSlice(value)
			for i, item := range items {
				name := item
				if e.ValuePrefix != "" {
					name = fmt.Sprintf("%s%d", e.ValuePrefix, i+1)
				}
				pf.SetValue(key, name, item, vt)
			}
		}
	case *admx.EnumElement:
		item, err := pickEnumItem(bundle, policy, e, value)
		if err != nil {
			return err
		}
		if item.Value != nil {
			writePolValue(pf, item.Value, key, e.RegistryValue)
		}
		if item.ValueList != nil {
			writePolValueList(pf, item.ValueList, key)
		}
	}
	return nil
}

// pickEnumItem matches an enum choice by localized display text or by the
// item's position.
func pickEnumItem(bundle *admx.Bundle, policy *admx.Policy, e *admx.EnumElement, value interface{}) (*admx.EnumItem, error) {
	if idx, ok := value.(int); ok {
		if idx < 0 || idx >= len(e.Items) {
			return nil, errors.Newf("%s: element %s: choice index %d out of range", policy.UniqueID, e.ID, idx)
		}
		return e.Items[idx], nil
	}
	text, ok := value.(string)
	if !ok {
		return nil, errors.Newf("%s: element %s: expected choice text or index, got %T", policy.UniqueID, e.ID, value)
	}
	var labels []string
	for _, item := range e.Items {
		label := bundle.ResolveString(item.DisplayCode, policy.Raw.DefinedIn)
		if strings.EqualFold(label, text) {
			return item, nil
		}
		labels = append(labels, label)
	}
	return nil, errors.Newf("%s: element %s: %q is not one of: %s",
		policy.UniqueID, e.ID, text, strings.Join(labels, ", "))
}

func applyDisabled(pf *pol.File, policy *admx.Policy) {
	raw := policy.Raw

	wroteOff := false
	if raw.StateValues != nil {
		if raw.StateValues.OffValue != nil {
			writePolValue(pf, raw.StateValues.OffValue, raw.RegistryKey, raw.RegistryValue)
			wroteOff = true
		}
		if raw.StateValues.OffValueList != nil {
			writePolValueList(pf, raw.StateValues.OffValueList, raw.RegistryKey)
			wroteOff = true
		}
	}
	if !wroteOff && raw.RegistryValue != "" {
		pf.DeleteValue(raw.RegistryKey, raw.RegistryValue)
	}

	for _, element := range raw.Elements {
		key := element.GetRegistryKey()
		switch e := element.(type) {
		case *admx.ListElement:
			pf.ClearKey(key)
		case *admx.BooleanElement:
			if e.States != nil && (e.States.OffValue != nil || e.States.OffValueList != nil) {
				if e.States.OffValue != nil {
					writePolValue(pf, e.States.OffValue, key, e.RegistryValue)
				}
				if e.States.OffValueList != nil {
					writePolValueList(pf, e.States.OffValueList, key)
				}
			} else {
				pf.DeleteValue(key, e.RegistryValue)
			}
		default:
			pf.DeleteValue(key, element.GetRegistryValue())
		}
	}
}

// forgetPolicy removes every record the policy could have written, leaving
// no trace rather than delete markers.
func forgetPolicy(pf *pol.File, policy *admx.Policy) {
	raw := policy.Raw

	if raw.RegistryValue != "" {
		pf.ForgetValue(raw.RegistryKey, raw.RegistryValue)
	}
	if raw.StateValues != nil {
		forgetStateValues(pf, raw.StateValues, raw.RegistryKey, raw.RegistryValue)
	}

	for _, element := range raw.Elements {
		key := element.GetRegistryKey()
		switch e := element.(type) {
		case *admx.ListElement:
			for _, rec := range pf.Records() {
				if strings.EqualFold(rec.Key, key) {
					pf.ForgetValue(rec.Key, rec.ValueName)
				}
			}
			pf.ForgetKeyClearance(key)
		case *admx.BooleanElement:
			pf.ForgetValue(key, e.RegistryValue)
			if e.States != nil {
				forgetStateValues(pf, e.States, key, e.RegistryValue)
			}
		case *admx.EnumElement:
			pf.ForgetValue(key, e.RegistryValue)
			for _, item := range e.Items {
				if item.ValueList != nil {
					forgetValueList(pf, item.ValueList, key)
				}
			}
		default:
			pf.ForgetValue(key, element.GetRegistryValue())
		}
	}
}

func forgetStateValues(pf *pol.File, sv *admx.StateValues, key, valueName string) {
	if sv.OnValueList != nil {
		forgetValueList(pf, sv.OnValueList, key)
	}
	if sv.OffValueList != nil {
		forgetValueList(pf, sv.OffValueList, key)
	}
}

func forgetValueList(pf *pol.File, list *admx.ValueList, defaultKey string) {
	for _, item := range list.Items {
		key := defaultKey
		if list.DefaultKey != "" {
			key = list.DefaultKey
		}
		if item.Key != "" {
			key = item.Key
		}
		pf.ForgetValue(key, item.ValueName)
	}
}

func writePolValue(pf *pol.File, value *admx.Value, key, valueName string) {
	switch value.Kind {
	case admx.DeleteValue:
		pf.DeleteValue(key, valueName)
	case admx.NumericValue:
		if value.Number > uint64(^uint32(0)) {
			pf.SetValue(key, valueName, value.Number, pol.QWord)
		} else {
			pf.SetValue(key, valueName, uint32(value.Number), pol.DWord)
		}
	default:
		pf.SetValue(key, valueName, value.Text, pol.SZ)
	}
}

func writePolValueList(pf *pol.File, list *admx.ValueList, defaultKey string) {
	for _, item := range list.Items {
		key := defaultKey
		if list.DefaultKey != "" {
			key = list.DefaultKey
		}
		if item.Key != "" {
			key = item.Key
		}
		if item.Value != nil {
			writePolValue(pf, item.Value, key, item.ValueName)
		}
	}
}

func coerceUint64(v interface{}) (uint64, error) {
	switch n := v.(type) {
	case uint64:
		return n, nil
	case uint32:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, errors.Newf("negative value %d", n)
		}
		return uint64(n), nil
	case int64:
		if n < 0 {
			return 0, errors.Newf("negative value %d", n)
		}
		return uint64(n), nil
	case float64:
		if n < 0 || n != float64(uint64(n)) {
			return 0, errors.Newf("expected a whole number, got %v", n)
		}
		return uint64(n), nil
	case string:
		parsed, err := strconv.ParseUint(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, errors.Newf("expected a number, got %q", n)
		}
		return parsed, nil
	default:
		return 0, errors.Newf("expected a number, got %T", v)
	}
}

func coerceStringMap(v interface{}) (map[string]string, error) {
	switch entries := v.(type) {
	case map[string]string:
		return entries, nil
	case map[string]interface{}:
		out := make(map[string]string, len(entries))
		for name, data := range entries {
			s, ok := data.(string)
			if !ok {
				return nil, errors.Newf("expected string values, got %T", data)
			}
			out[name] = s
		}
		return out, nil
	default:
		return nil, errors.Newf("expected a name/value map, got %T", v)
	}
}

func coerceStringSlice(v interface{}) ([]string, error) {
	switch items := v.(type) {
	case []string:
		return items, nil
	case []interface{}:
		out := make([]string, 0, len(items))
		for _, item := range items {
			s, ok := item.(string)
			if !ok {
				return nil, errors.Newf("expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.Newf("expected a string list, got %T", v)
	}
}
