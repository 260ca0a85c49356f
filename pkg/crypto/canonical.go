package crypto

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// CanonicalString renders v as a canonical, key-sorted, whitespace-free
// JSON-like string. This is the consensus-critical textual encoding that
// CanonicalHash hashes — divergence from this exact rendering breaks
// consensus between nodes (spec.md §4.1), so it is intentionally hand
// written rather than delegated to encoding/json (whose float formatting
// is locale/precision dependent and whose map ordering, while sorted, does
// not control nested struct field order or float rendering the way
// consensus needs).
func CanonicalString(v any) string {
	var b strings.Builder
	writeCanonical(&b, reflect.ValueOf(v))
	return b.String()
}

func writeCanonical(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("null")
		return
	}

	// Unwrap interfaces and pointers.
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		if v.IsNil() {
			b.WriteString("null")
			return
		}
		v = v.Elem()
	}

	// Types implementing Stringer (Hash, Address, MicroAmount, ...) are
	// rendered as their string form.
	if s, ok := v.Interface().(fmt.Stringer); ok {
		writeCanonicalString(b, s.String())
		return
	}

	switch v.Kind() {
	case reflect.String:
		writeCanonicalString(b, v.String())
	case reflect.Bool:
		if v.Bool() {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		// Fixed four-fraction-digit format to avoid locale/precision
		// drift across implementations (spec.md §4.1).
		b.WriteString(strconv.FormatFloat(v.Float(), 'f', 4, 64))
	case reflect.Slice, reflect.Array:
		writeCanonicalArray(b, v)
	case reflect.Map:
		writeCanonicalMap(b, v)
	case reflect.Struct:
		writeCanonicalStruct(b, v)
	default:
		b.WriteString("null")
	}
}

func writeCanonicalString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
}

func writeCanonicalArray(b *strings.Builder, v reflect.Value) {
	if v.Kind() == reflect.Slice && v.IsNil() {
		b.WriteString("[]")
		return
	}
	b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonical(b, v.Index(i))
	}
	b.WriteByte(']')
}

func writeCanonicalMap(b *strings.Builder, v reflect.Value) {
	keys := v.MapKeys()
	type kv struct {
		key string
		val reflect.Value
	}
	pairs := make([]kv, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, kv{key: fmt.Sprint(k.Interface()), val: v.MapIndex(k)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	b.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(b, p.key)
		b.WriteByte(':')
		writeCanonical(b, p.val)
	}
	b.WriteByte('}')
}

func writeCanonicalStruct(b *strings.Builder, v reflect.Value) {
	t := v.Type()
	type kv struct {
		key string
		val reflect.Value
	}
	pairs := make([]kv, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		tag := f.Tag.Get("canonical")
		if tag == "" {
			tag = f.Tag.Get("json")
		}
		if tag != "" {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
		}
		pairs = append(pairs, kv{key: name, val: v.Field(i)})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	b.WriteByte('{')
	for i, p := range pairs {
		if i > 0 {
			b.WriteByte(',')
		}
		writeCanonicalString(b, p.key)
		b.WriteByte(':')
		writeCanonical(b, p.val)
	}
	b.WriteByte('}')
}
