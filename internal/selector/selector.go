// Package selector implements a compact path language for picking values
// out of decoded JSON trees (the map[string]any / []any values produced by
// encoding/json).
//
// A path is a sequence of selectors:
//
//	.name    object field (case sensitive)
//	[index]  array element
//	:type    assert the type of the current node: s(tring), n(umber),
//	         o(bject), a(rray), b(oolean) or ! / null
//
// Inside field and index selectors a '*' is replaced by the next argument,
// which must be a Key for fields and an Index for array positions:
//
//	Select(root, ".screens[*].width", Index(4))
//	Select(root, ".prices.price_*", Key("eur"))
//
// Paths are interpreted on every call; nothing is cached.
package selector

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// maxTokenLen bounds a single selector token after substitution.
const maxTokenLen = 256

type tokenKind int

const (
	tokenInvalid tokenKind = iota
	tokenField
	tokenIndex
	tokenType
)

// Arg is a positional argument substituted for a '*' in a path.
type Arg struct {
	key   string
	index int
	isKey bool
}

// Key returns an argument substituted into a field selector.
func Key(name string) Arg {
	return Arg{key: name, isKey: true}
}

// Index returns an argument substituted into an index selector.
func Index(i int) Arg {
	return Arg{index: i}
}

// Select walks root along path and returns the selected node.
// The boolean is false when any step cannot be resolved; no partial
// result is ever returned.
func Select(root any, path string, args ...Arg) (any, bool) {
	var (
		node  = root
		kind  = tokenInvalid
		token strings.Builder
	)

	for i := 0; ; {
		atEnd := i >= len(path)
		delim := !atEnd && strings.IndexByte(".[]:", path[i]) >= 0
		if token.Len() > 0 && (atEnd || delim) {
			var ok bool
			if node, ok = resolve(node, kind, token.String()); !ok {
				return nil, false
			}
		} else if !atEnd && !delim && kind != tokenInvalid {
			if path[i] != '*' {
				token.WriteByte(path[i])
				i++
				if token.Len() > maxTokenLen {
					return nil, false
				}
				continue
			}

			if len(args) == 0 {
				return nil, false
			}
			arg := args[0]
			args = args[1:]

			var s string
			switch {
			case kind == tokenIndex && !arg.isKey:
				s = strconv.Itoa(arg.index)
			case kind == tokenField && arg.isKey:
				s = arg.key
			default:
				return nil, false
			}
			if token.Len()+len(s) > maxTokenLen {
				return nil, false
			}
			token.WriteString(s)
			i++
			continue
		}

		if i < len(path) && path[i] == ']' {
			i++
		}
		if i >= len(path) {
			break
		}
		switch path[i] {
		case '.':
			kind = tokenField
		case '[':
			kind = tokenIndex
		case ':':
			kind = tokenType
		default:
			return nil, false
		}
		token.Reset()
		i++
	}

	return node, true
}

func resolve(node any, kind tokenKind, token string) (any, bool) {
	switch kind {
	case tokenField:
		obj, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		child, ok := obj[token]
		return child, ok
	case tokenIndex:
		arr, ok := node.([]any)
		if !ok {
			return nil, false
		}
		idx, err := strconv.Atoi(token)
		if err != nil || idx < 0 || idx >= len(arr) {
			return nil, false
		}
		return arr[idx], true
	case tokenType:
		if !hasType(node, token) {
			return nil, false
		}
		return node, true
	default:
		return nil, false
	}
}

func hasType(node any, name string) bool {
	switch name {
	case "s", "string":
		_, ok := node.(string)
		return ok
	case "n", "number":
		return isNumber(node)
	case "o", "object":
		_, ok := node.(map[string]any)
		return ok
	case "a", "array":
		_, ok := node.([]any)
		return ok
	case "b", "bool", "boolean":
		_, ok := node.(bool)
		return ok
	case "!", "null":
		return node == nil
	default:
		return false
	}
}

func isNumber(node any) bool {
	switch node.(type) {
	case float64, json.Number, int, int64:
		return true
	default:
		return false
	}
}

// String selects a string node.
func String(root any, path string, args ...Arg) (string, bool) {
	node, ok := Select(root, path, args...)
	if !ok {
		return "", false
	}
	s, ok := node.(string)
	return s, ok
}

// Int selects a number node and returns it truncated to an integer.
func Int(root any, path string, args ...Arg) (int64, bool) {
	node, ok := Select(root, path, args...)
	if !ok {
		return 0, false
	}
	return toInt(node)
}

// Array selects an array node.
func Array(root any, path string, args ...Arg) ([]any, bool) {
	node, ok := Select(root, path, args...)
	if !ok {
		return nil, false
	}
	arr, ok := node.([]any)
	return arr, ok
}

func toInt(node any) (int64, bool) {
	switch v := node.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}
