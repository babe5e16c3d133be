package recording

import (
	"strings"

	"github.com/audiolibrelab/sleepstage/internal/errs"
)

// Metadata carries optional static subject information. A nil field means
// the value is absent and no column is produced for it.
type Metadata struct {
	Age  *float64
	Male *bool
}

// NewMetadata validates the age (0 < age < 120) and coerces a boolean-like
// sex value. Nil arguments leave the corresponding field empty.
func NewMetadata(age *float64, male any) (*Metadata, error) {
	md := &Metadata{}
	if age != nil {
		a := *age
		md.Age = &a
	}
	if male != nil {
		m, err := ParseMale(male)
		if err != nil {
			return nil, err
		}
		md.Male = &m
	}
	if err := md.Validate(); err != nil {
		return nil, err
	}
	return md, nil
}

// Validate checks field ranges on metadata built without NewMetadata.
func (m *Metadata) Validate() error {
	if m == nil || m.Age == nil {
		return nil
	}
	if a := *m.Age; !(a > 0 && a < 120) {
		return errs.Invalid("age", a, "must be strictly between 0 and 120")
	}
	return nil
}

// Empty reports whether no metadata field is set.
func (m *Metadata) Empty() bool {
	return m == nil || (m.Age == nil && m.Male == nil)
}

// ParseMale accepts booleans, 0/1 numbers and the strings true/false,
// 1/0, male/female, m/f and yes/no.
func ParseMale(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case *bool:
		if x != nil {
			return *x, nil
		}
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case int64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "true", "male", "m", "yes":
			return true, nil
		case "0", "false", "female", "f", "no":
			return false, nil
		}
	}
	return false, errs.Invalid("male", v, "must be boolean-like (0/1, true/false, male/female)")
}
