package tool

import "fmt"

// RequireField returns an error if the string value is empty.
func RequireField(name, value string) error {
	if value == "" {
		return fmt.Errorf("'%s' is required", name)
	}
	return nil
}

// ValidateEnum checks that value is one of the allowed values.
// An empty value is allowed (treated as "not set").
func ValidateEnum(name, value string, allowed []string) error {
	if value == "" {
		return nil
	}
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q (want: %s)", name, value, joinComma(allowed))
}

// ValidateEnumList applies ValidateEnum to every element.
func ValidateEnumList(name string, values, allowed []string) error {
	for _, v := range values {
		if err := ValidateEnum(name, v, allowed); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRating checks that a rating pointer, if set, is within 0-10.
func ValidateRating(name string, value *float64) error {
	if value == nil {
		return nil
	}
	if *value < 0 || *value > 10 {
		return fmt.Errorf("%s must be 0-10", name)
	}
	return nil
}

// ValidateAll returns the first non-nil error from the given list.
func ValidateAll(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// clampLimit applies a default and an upper bound to a result limit.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
