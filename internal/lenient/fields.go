// Package lenient decodes loosely typed JSON documents member by member.
// A member with the wrong type is dropped and reported instead of failing
// the whole document.
package lenient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// Fields holds the members of one JSON object and the issues found while
// reading them.
type Fields struct {
	members map[string]json.RawMessage
	prefix  string
	Issues  []string
}

// Parse splits data into its members. ok is false when data is not a JSON object.
// prefix is prepended to member names in issues, e.g. "shifts[0].".
func Parse(data []byte, prefix string) (*Fields, bool) {
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil || members == nil {
		return &Fields{prefix: prefix}, false
	}
	return &Fields{members: members, prefix: prefix}, true
}

// Raw returns the member undecoded. A null member counts as absent.
func (f *Fields) Raw(key string) (json.RawMessage, bool) {
	raw, ok := f.members[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

// String reads a string member. Numbers and booleans are converted.
func (f *Fields) String(key string) string {
	v, ok := f.scalar(key)
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		f.issue(key, "is not a string")
		return ""
	}
	return s
}

// Int reads an integer member. Numeric strings are accepted.
func (f *Fields) Int(key string) int {
	v, ok := f.scalar(key)
	if !ok {
		return 0
	}
	if _, isBool := v.(bool); isBool {
		f.issue(key, "is not a number")
		return 0
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		f.issue(key, "is not a number")
		return 0
	}
	return n
}

// Bool reads a boolean member; nil means absent or malformed. "true" and
// "false" strings are accepted.
func (f *Fields) Bool(key string) *bool {
	v, ok := f.scalar(key)
	if !ok {
		return nil
	}
	if _, isNum := v.(float64); isNum {
		f.issue(key, "is not a boolean")
		return nil
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		f.issue(key, "is not a boolean")
		return nil
	}
	return &b
}

// List reads an array member.
func (f *Fields) List(key string) []json.RawMessage {
	raw, ok := f.Raw(key)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		f.issue(key, "is not a list")
		return nil
	}
	return items
}

// Objects reads an array of objects, calling fn with the members of each one.
// Elements that are not objects are skipped and reported.
func (f *Fields) Objects(key string, fn func(item *Fields)) {
	for i, raw := range f.List(key) {
		item, ok := Parse(raw, fmt.Sprintf("%s%s[%d].", f.prefix, key, i))
		if !ok {
			f.Issues = append(f.Issues, fmt.Sprintf("%s%s[%d] is not an object", f.prefix, key, i))
			continue
		}
		fn(item)
		f.Issues = append(f.Issues, item.Issues...)
	}
}

// Issue records a problem with a member found by the caller, e.g.
// Issue("start_time", "is not a time, session dropped").
func (f *Fields) Issue(key, problem string) {
	f.Issues = append(f.Issues, fmt.Sprintf("%s%s %s", f.prefix, key, problem))
}

func (f *Fields) scalar(key string) (any, bool) {
	raw, ok := f.Raw(key)
	if !ok {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		f.issue(key, "is malformed")
		return nil, false
	}
	switch v.(type) {
	case string, float64, bool:
		return v, true
	}
	f.issue(key, "is not a scalar")
	return nil, false
}

func (f *Fields) issue(key, problem string) {
	f.Issue(key, problem+", ignored")
}
