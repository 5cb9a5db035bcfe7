package document

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FrontmatterFormat identifies the header syntax
type FrontmatterFormat string

const (
	FormatNone FrontmatterFormat = ""
	FormatYAML FrontmatterFormat = "yaml"
	FormatTOML FrontmatterFormat = "toml"
)

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// ErrUnterminatedFrontmatter is returned when an opening fence has no close
var ErrUnterminatedFrontmatter = errors.New("frontmatter block is not terminated")

// SplitFrontmatter separates a leading YAML (---) or TOML (+++) block from
// the body. On a malformed block the error is returned together with the
// body that follows the block, so callers can keep going.
func SplitFrontmatter(raw []byte) (map[string]any, []byte, FrontmatterFormat, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	var fence string
	var format FrontmatterFormat
	switch {
	case hasFence(raw, "---"):
		fence, format = "---", FormatYAML
	case hasFence(raw, "+++"):
		fence, format = "+++", FormatTOML
	default:
		return map[string]any{}, raw, FormatNone, nil
	}

	header, body, ok := cutBlock(raw, fence)
	if !ok {
		return map[string]any{}, raw, format, ErrUnterminatedFrontmatter
	}

	fm := map[string]any{}
	if len(bytes.TrimSpace(header)) == 0 {
		return fm, body, format, nil
	}

	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(header, &fm)
	case FormatTOML:
		err = toml.Unmarshal(header, &fm)
	}
	if err != nil {
		return map[string]any{}, body, format, fmt.Errorf("parse %s frontmatter: %w", format, err)
	}
	if fm == nil {
		fm = map[string]any{}
	}
	return normalizeMap(fm), body, format, nil
}

func hasFence(raw []byte, fence string) bool {
	if !bytes.HasPrefix(raw, []byte(fence)) {
		return false
	}
	rest := raw[len(fence):]
	rest = bytes.TrimLeft(rest, " \t")
	return len(rest) == 0 || rest[0] == '\n' || rest[0] == '\r'
}

// cutBlock returns the text between the opening fence line and the next line
// consisting only of the fence.
func cutBlock(raw []byte, fence string) (header, body []byte, ok bool) {
	nl := bytes.IndexByte(raw, '\n')
	if nl < 0 {
		return nil, nil, false
	}
	start := nl + 1
	pos := start
	for pos <= len(raw) {
		end := bytes.IndexByte(raw[pos:], '\n')
		var line []byte
		next := len(raw) + 1
		if end < 0 {
			line = raw[pos:]
		} else {
			line = raw[pos : pos+end]
			next = pos + end + 1
		}
		if string(bytes.TrimRight(line, " \t\r")) == fence {
			header = raw[start:pos]
			if next > len(raw) {
				return header, nil, true
			}
			return header, raw[next:], true
		}
		if end < 0 {
			break
		}
		pos = next
	}
	return nil, nil, false
}

// normalizeMap converts nested map[any]any values into map[string]any so the
// frontmatter always serializes to JSON.
func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = normalizeValue(v)
	}
	return m
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return normalizeMap(t)
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeValue(val)
		}
		return out
	case []any:
		for i := range t {
			t[i] = normalizeValue(t[i])
		}
		return t
	default:
		return v
	}
}

// ReplaceNonFinite rewrites NaN and infinite numbers in fm as the strings
// "NaN", "+Inf" and "-Inf", since JSON has no encoding for them. It returns
// the dotted keys it rewrote, sorted.
func ReplaceNonFinite(fm map[string]any) []string {
	var keys []string
	replaceNonFinite(fm, "", &keys)
	sort.Strings(keys)
	return keys
}

func replaceNonFinite(v any, key string, keys *[]string) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			*keys = append(*keys, key)
			return strconv.FormatFloat(t, 'g', -1, 64)
		}
	case float32:
		if f := float64(t); math.IsNaN(f) || math.IsInf(f, 0) {
			*keys = append(*keys, key)
			return strconv.FormatFloat(f, 'g', -1, 32)
		}
	case map[string]any:
		for k, val := range t {
			sub := k
			if key != "" {
				sub = key + "." + k
			}
			t[k] = replaceNonFinite(val, sub, keys)
		}
	case []any:
		for i := range t {
			t[i] = replaceNonFinite(t[i], key+"["+strconv.Itoa(i)+"]", keys)
		}
	}
	return v
}
