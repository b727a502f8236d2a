package transform

import "strings"

// Validator checks a caller-supplied value before any write happens.
type Validator func(v interface{}) bool

// InRangeInclusive accepts integers within [min, max] and the NotDefined
// sentinel, which clears the setting instead of assigning it.
func InRangeInclusive(min, max int64) Validator {
	return func(v interface{}) bool {
		if IsNotDefined(v) {
			return true
		}
		n, ok := asInt64(v)
		return ok && n >= min && n <= max
	}
}

// OneOf accepts any of the listed values, compared loosely so "1" and 1
// are the same answer.
func OneOf(allowed ...interface{}) Validator {
	return func(v interface{}) bool {
		for _, a := range allowed {
			if looseEqual(a, v) {
				return true
			}
		}
		return false
	}
}

// NotEmpty accepts any non-blank string or non-empty list.
func NotEmpty(v interface{}) bool {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s) != ""
	case []string:
		return len(s) > 0
	case nil:
		return false
	default:
		return true
	}
}
