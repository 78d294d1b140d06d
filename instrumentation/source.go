package instrumentation

import (
	"reflect"
	"strconv"
	"strings"
)

// Source identifies the component an operation or exception is attributed
// to. It wraps the component's Go type.
type Source struct {
	typ reflect.Type
}

// SourceOf returns the Source for type T.
func SourceOf[T any]() Source {
	return Source{typ: reflect.TypeFor[T]()}
}

// SourceFromType returns the Source for t.
func SourceFromType(t reflect.Type) Source {
	return Source{typ: t}
}

// Type returns the wrapped type.
func (s Source) Type() reflect.Type {
	return s.typ
}

// Tag returns the source tag: the package path and type name joined by a
// dot, without type arguments. Pointers to named types are tagged as the
// named type; predeclared types use their bare name. Slices, arrays, maps,
// channels and pointers nested inside them are spelled in Go syntax around
// the tags of their element types, so []Cache[int] and []Cache[string]
// share a tag. Other unnamed types (funcs, struct and interface literals)
// use reflect's spelling.
func (s Source) Tag() string {
	t := s.typ
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
	}
	return typeTag(t)
}

func typeTag(t reflect.Type) string {
	name := t.Name()
	if name == "" {
		switch t.Kind() {
		case reflect.Pointer:
			return "*" + typeTag(t.Elem())
		case reflect.Slice:
			return "[]" + typeTag(t.Elem())
		case reflect.Array:
			return "[" + strconv.Itoa(t.Len()) + "]" + typeTag(t.Elem())
		case reflect.Map:
			return "map[" + typeTag(t.Key()) + "]" + typeTag(t.Elem())
		case reflect.Chan:
			switch t.ChanDir() {
			case reflect.RecvDir:
				return "<-chan " + typeTag(t.Elem())
			case reflect.SendDir:
				return "chan<- " + typeTag(t.Elem())
			}
			return "chan " + typeTag(t.Elem())
		}
		return t.String()
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	if pkg := t.PkgPath(); pkg != "" {
		return pkg + "." + name
	}
	return name
}

func (s Source) String() string {
	return s.Tag()
}

// TagOf returns the source tag of T.
func TagOf[T any]() string {
	return SourceOf[T]().Tag()
}
