package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf16"
	"unicode/utf8"
)

// Manifest is the opaque, user-supplied description of the child
// environment's dependencies and metadata (the package.json "dependencies"
// block plus whatever other fields the caller wants installed).
type Manifest map[string]any

// Signature returns the hex digest identifying this manifest. Two
// manifests with the same content, regardless of key ordering, produce the
// same signature: canonicalize first (sorted keys, ASCII-escaped strings),
// then hash.
func (m Manifest) Signature() (string, error) {
	canon, err := canonicalJSON(m)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// canonicalJSON renders v as JSON with map keys sorted and non-ASCII
// characters escaped, so that byte-identical output follows from
// value-identical input regardless of map iteration order.
func canonicalJSON(v any) ([]byte, error) {
	normalized, err := normalize(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(true)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	// encoding/json emits non-ASCII as raw UTF-8; such bytes only occur
	// inside strings, so each rune is rewritten as \uXXXX (a surrogate
	// pair above U+FFFF).
	var out bytes.Buffer
	for _, r := range string(bytes.TrimRight(buf.Bytes(), "\n")) {
		switch {
		case r < utf8.RuneSelf:
			out.WriteByte(byte(r))
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&out, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&out, `\u%04x`, r)
		}
	}
	return out.Bytes(), nil
}

// normalize walks a decoded-JSON-shaped value and replaces every map with
// an orderedMap so that json.Marshal emits keys in sorted order.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]pair, 0, len(keys))
		for _, k := range keys {
			nv, err := normalize(val[k])
			if err != nil {
				return nil, err
			}
			pairs = append(pairs, pair{key: k, value: nv})
		}
		return orderedMap(pairs), nil
	case Manifest:
		return normalize(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			nv, err := normalize(item)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return val, nil
	}
}

type pair struct {
	key   string
	value any
}

// orderedMap marshals as a JSON object preserving the slice's order.
type orderedMap []pair

func (m orderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyJSON, err := json.Marshal(p.key)
		if err != nil {
			return nil, err
		}
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := json.Marshal(p.value)
		if err != nil {
			return nil, err
		}
		buf.Write(valJSON)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
