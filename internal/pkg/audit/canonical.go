package audit

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
)

// CircularMarker 替换循环引用的字面量
const CircularMarker = "[Circular]"

// Canonicalize 生成稳定的 JSON 文本：对象键递归排序，数组保持原序，
// 循环引用替换为 CircularMarker。任何输入都不会 panic
func Canonicalize(v any) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = quote(fmt.Sprintf("[Unserializable: %v]", r))
		}
	}()
	var b strings.Builder
	w := &canonicalWriter{b: &b, path: map[uintptr]bool{}}
	w.write(reflect.ValueOf(v))
	return b.String()
}

type canonicalWriter struct {
	b    *strings.Builder
	path map[uintptr]bool
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	marshalType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
)

func (w *canonicalWriter) write(v reflect.Value) {
	if !v.IsValid() {
		w.b.WriteString("null")
		return
	}

	if v.Type() == timeType {
		w.b.WriteString(quote(v.Interface().(time.Time).UTC().Format(time.RFC3339Nano)))
		return
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		w.write(v.Elem())
	case reflect.Pointer:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		if w.enter(v.Pointer()) {
			defer w.leave(v.Pointer())
			w.write(v.Elem())
		}
	case reflect.Map:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		if w.enter(v.Pointer()) {
			defer w.leave(v.Pointer())
			w.writeMap(v)
		}
	case reflect.Slice:
		if v.IsNil() {
			w.b.WriteString("null")
			return
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			w.scalar(v.Interface())
			return
		}
		if v.Len() > 0 && w.enter(v.Pointer()) {
			defer w.leave(v.Pointer())
			w.writeList(v)
			return
		}
		if v.Len() == 0 {
			w.b.WriteString("[]")
		}
	case reflect.Array:
		w.writeList(v)
	case reflect.Struct:
		if v.Type().Implements(marshalType) && v.CanInterface() {
			w.scalar(v.Interface())
			return
		}
		w.writeStruct(v)
	case reflect.Func, reflect.Chan, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		w.b.WriteString("null")
	default:
		w.scalar(v.Interface())
	}
}

// enter 返回 false 表示检测到循环，已写入标记
func (w *canonicalWriter) enter(ptr uintptr) bool {
	if ptr != 0 && w.path[ptr] {
		w.b.WriteString(quote(CircularMarker))
		return false
	}
	w.path[ptr] = true
	return true
}

func (w *canonicalWriter) leave(ptr uintptr) {
	delete(w.path, ptr)
}

func (w *canonicalWriter) writeMap(v reflect.Value) {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{key: fmt.Sprint(iter.Key().Interface()), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	w.b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.b.WriteString(quote(e.key))
		w.b.WriteByte(':')
		w.write(e.val)
	}
	w.b.WriteByte('}')
}

func (w *canonicalWriter) writeList(v reflect.Value) {
	w.b.WriteByte('[')
	for i := 0; i < v.Len(); i++ {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.write(v.Index(i))
	}
	w.b.WriteByte(']')
}

// writeStruct 按 json 标签取导出字段，再按键排序
func (w *canonicalWriter) writeStruct(v reflect.Value) {
	t := v.Type()
	type field struct {
		name string
		val  reflect.Value
	}
	fields := make([]field, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := sf.Name
		omitEmpty := false
		if tag, ok := sf.Tag.Lookup("json"); ok {
			parts := strings.Split(tag, ",")
			if parts[0] == "-" {
				continue
			}
			if parts[0] != "" {
				name = parts[0]
			}
			for _, opt := range parts[1:] {
				if opt == "omitempty" {
					omitEmpty = true
				}
			}
		}
		fv := v.Field(i)
		if omitEmpty && fv.IsZero() {
			continue
		}
		fields = append(fields, field{name: name, val: fv})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].name < fields[j].name })

	w.b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			w.b.WriteByte(',')
		}
		w.b.WriteString(quote(f.name))
		w.b.WriteByte(':')
		w.write(f.val)
	}
	w.b.WriteByte('}')
}

func (w *canonicalWriter) scalar(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.b.WriteString("null")
		return
	}
	w.b.Write(data)
}

func quote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}
