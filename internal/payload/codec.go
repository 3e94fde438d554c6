// Package payload encodes token identity fields into the text carried by a
// scannable code and decodes presented text back into those fields.
//
// Wire format:
//
//	MTK|id=<ID>|user=<NAME>|type=<TYPE>|allow=<INT>|start=<YYYY-MM-DD>|end=<YYYY-MM-DD>
package payload

import (
	"strconv"
	"strings"
)

const (
	// Magic is the first segment of every payload.
	Magic = "MTK"
	// Separator joins segments.
	Separator = "|"

	keyID    = "id"
	keyUser  = "user"
	keyType  = "type"
	keyAllow = "allow"
	keyStart = "start"
	keyEnd   = "end"
)

// Fields are the identity fields a payload carries. Counters, status and
// issuance time live only in the store.
type Fields struct {
	ID        string
	User      string
	Type      string
	Allowance int
	Start     string
	End       string
}

// Encode renders f canonically. Equal fields always produce equal text.
func Encode(f Fields) string {
	var b strings.Builder
	b.WriteString(Magic)
	writeField(&b, keyID, f.ID)
	writeField(&b, keyUser, f.User)
	writeField(&b, keyType, f.Type)
	writeField(&b, keyAllow, strconv.Itoa(f.Allowance))
	writeField(&b, keyStart, f.Start)
	writeField(&b, keyEnd, f.End)
	return b.String()
}

func writeField(b *strings.Builder, key, value string) {
	b.WriteString(Separator)
	b.WriteString(key)
	b.WriteByte('=')
	b.WriteString(value)
}

// Decode parses text produced by Encode. It returns false for empty text,
// a missing magic prefix, any missing required key, or a non-integer allow.
// Key order is free, unknown keys are ignored and the first occurrence of a
// repeated key wins.
func Decode(text string) (Fields, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Fields{}, false
	}

	segments := strings.Split(text, Separator)
	if segments[0] != Magic {
		return Fields{}, false
	}

	values := make(map[string]string, len(segments)-1)
	for _, seg := range segments[1:] {
		key, value, ok := strings.Cut(seg, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := values[key]; seen {
			continue
		}
		values[key] = value
	}

	for _, k := range []string{keyID, keyUser, keyType, keyAllow, keyStart, keyEnd} {
		if _, ok := values[k]; !ok {
			return Fields{}, false
		}
	}

	allow, err := strconv.Atoi(strings.TrimSpace(values[keyAllow]))
	if err != nil {
		return Fields{}, false
	}

	return Fields{
		ID:        values[keyID],
		User:      values[keyUser],
		Type:      values[keyType],
		Allowance: allow,
		Start:     values[keyStart],
		End:       values[keyEnd],
	}, true
}

// Matches reports whether f and other describe the same token. Ids compare
// case-insensitively.
func (f Fields) Matches(other Fields) bool {
	return strings.EqualFold(f.ID, other.ID) &&
		f.User == other.User &&
		f.Type == other.Type &&
		f.Allowance == other.Allowance &&
		f.Start == other.Start &&
		f.End == other.End
}
