package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"
)

// IRValue is the value model behind every snapshot section and rule base
// fingerprint. The set is closed: string, int, bool, array and object.
// Floats and null have no place in a byte-stable snapshot.
type IRValue interface {
	irValue()
}

// IRString represents a string value in the IR.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value in the IR.
type IRInt int64

func (IRInt) irValue() {}

// IRBool represents a boolean value in the IR.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 which produces a different order.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings by UTF-16 code units.
func compareKeysRFC8785(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}

// UnmarshalIRValue decodes JSON into an IRValue. Floats and null are
// rejected; the error names the offending location as a JSON pointer, e.g.
// "/facts/0/payload/ts".
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return fromJSON(raw, "")
}

func fromJSON(v any, at string) (IRValue, error) {
	switch val := v.(type) {
	case bool:
		return IRBool(val), nil
	case string:
		return IRString(val), nil
	case json.Number:
		return intFromNumber(val, at)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			conv, err := fromJSON(elem, at+"/"+strconv.Itoa(i))
			if err != nil {
				return nil, err
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			conv, err := fromJSON(elem, at+"/"+pointerEscaper.Replace(k))
			if err != nil {
				return nil, err
			}
			obj[k] = conv
		}
		return obj, nil
	case nil:
		return nil, fmt.Errorf("%s: null is forbidden in IR", location(at))
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", location(at), v)
	}
}

func intFromNumber(n json.Number, at string) (IRValue, error) {
	if strings.ContainsAny(string(n), ".eE") {
		return nil, fmt.Errorf("%s: floats are forbidden in IR: %s", location(at), n)
	}
	i, err := n.Int64()
	if err != nil {
		return nil, fmt.Errorf("%s: number out of int64 range: %s", location(at), n)
	}
	return IRInt(i), nil
}

// pointerEscaper escapes object keys per RFC 6901.
var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func location(at string) string {
	if at == "" {
		return "/"
	}
	return at
}
