package calllog

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strings"
)

const (
	FunctionMarker = "[Function]"
	CircularMarker = "[Circular]"
)

// Serialize renders a handler result as JSON text. Functions and cycles are
// replaced by markers and errors by "[Error: message]"; it does not fail on
// any Go value.
func Serialize(result any) string {
	b, err := json.Marshal(Normalize(result))
	if err != nil {
		b, _ = json.Marshal(fmt.Sprintf("[Unserializable: %T]", result))
	}
	return string(b)
}

// Normalize returns a copy of v that encoding/json can always encode.
func Normalize(v any) any {
	w := walker{active: make(map[visit]bool)}
	return w.walk(v)
}

type visit struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type walker struct {
	// active holds the containers on the current path; a container seen
	// again below itself is a cycle.
	active map[visit]bool
}

func (w walker) walk(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case error:
		return fmt.Sprintf("[Error: %s]", x.Error())
	case json.Marshaler:
		return x
	case encoding.TextMarshaler:
		return x
	case string, bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return x
	case float64:
		return finite(x)
	case float32:
		return finite(float64(x))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return FunctionMarker
	case reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return fmt.Sprintf("[%s]", rv.Type())
	case reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return w.enter(visit{ptr: rv.Pointer(), typ: rv.Type()}, func() any {
			return w.walk(rv.Elem().Interface())
		})
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		return w.enter(visit{ptr: rv.Pointer(), typ: rv.Type()}, func() any {
			out := make(map[string]any, rv.Len())
			iter := rv.MapRange()
			for iter.Next() {
				out[fmt.Sprint(iter.Key().Interface())] = w.walk(iter.Value().Interface())
			}
			return out
		})
	case reflect.Slice:
		if rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return rv.Bytes()
		}
		return w.enter(visit{ptr: rv.Pointer(), typ: rv.Type(), n: rv.Len()}, func() any {
			return w.list(rv)
		})
	case reflect.Array:
		return w.list(rv)
	case reflect.Struct:
		out := make(map[string]any, rv.NumField())
		w.fields(rv, out)
		return out
	}
	return rv.Interface()
}

// finite maps NaN and infinities to null, which is what JSON can carry.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

func (w walker) enter(key visit, fn func() any) any {
	if w.active[key] {
		return CircularMarker
	}
	w.active[key] = true
	defer delete(w.active, key)
	return fn()
}

func (w walker) list(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = w.walk(rv.Index(i).Interface())
	}
	return out
}

// fields copies the exported fields of a struct into out under their JSON
// names. Tag names, "-" and omitempty are honoured and untagged exported
// embedded structs are flattened. Field values are walked, so cycles through
// struct pointers become markers.
func (w walker) fields(rv reflect.Value, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && name == "" {
			inner := fv
			if inner.Kind() == reflect.Pointer {
				if inner.IsNil() {
					continue
				}
				inner = inner.Elem()
			}
			if inner.Kind() == reflect.Struct {
				w.fields(inner, out)
				continue
			}
		}
		if name == "" {
			name = f.Name
		}
		if hasOption(opts, "omitempty") && isEmptyValue(fv) {
			continue
		}
		out[name] = w.walk(fv.Interface())
	}
}

func hasOption(opts, want string) bool {
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		if opt == want {
			return true
		}
	}
	return false
}

// isEmptyValue matches encoding/json's omitempty rule.
func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Interface, reflect.Pointer:
		return v.IsZero()
	}
	return false
}

// Deserialize decodes stored result text. Integral numbers come back as
// int64, other numbers as float64. Text that is not valid JSON is returned
// unchanged.
func Deserialize(text string) any {
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return text
	}
	if dec.More() {
		return text
	}
	return fromJSONNumbers(v)
}

func fromJSONNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		for i := range x {
			x[i] = fromJSONNumbers(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromJSONNumbers(x[k])
		}
		return x
	}
	return v
}
