/*
package dep provides utilities for dependency injection.

okay, just the one.
*/
package dep

import (
	"fmt"
	"reflect"
	"runtime"
)

func isMissing(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		// A typed nil in an interface is just as missing.
		return v.IsNil()
	}
	return false
}

// Required returns t, or panics naming the caller if t is nil.
func Required[T any](t T) T {
	if !isMissing(reflect.ValueOf(t)) {
		return t
	}
	where := "unknown caller"
	if pc, file, line, ok := runtime.Caller(1); ok {
		where = fmt.Sprintf("%s:%d", file, line)
		if fn := runtime.FuncForPC(pc); fn != nil {
			where = fmt.Sprintf("%s (%s)", fn.Name(), where)
		}
	}
	panic(fmt.Sprintf("missing required dependency of type %s in %s", reflect.TypeFor[T](), where))
}
