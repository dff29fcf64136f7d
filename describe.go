package spanz

import (
	"reflect"
	"runtime"
	"strings"
	"sync"
	"unsafe"
)

// wrappers maps the identity of each function built by Instrument to the
// description of the function it wraps. Every function made by
// reflect.MakeFunc shares one code pointer, so the func value itself is the key.
var wrappers sync.Map

// Describe returns the fully-qualified name of fn, such as
// "github.com/acme/billing.Charge" or "github.com/acme/billing.(*Ledger).Post".
// A function returned by Instrument is described by the function it wraps.
// When fn carries no symbol information the best available name is used:
// its type, or "<nil>".
func Describe(fn any) string {
	if fn == nil {
		return "<nil>"
	}

	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return v.Type().String()
	}
	if v.IsNil() {
		return "<nil>"
	}

	if name, ok := wrappers.Load(funcIdentity(fn)); ok {
		return name.(string)
	}

	if f := runtime.FuncForPC(v.Pointer()); f != nil {
		if name := f.Name(); name != "" {
			// Method values are compiled as wrappers named "T.M-fm".
			return strings.TrimSuffix(name, "-fm")
		}
	}

	return v.Type().String()
}

// remember records description as the name of the wrapper fn.
// Entries live for the life of the process.
func remember(fn any, description string) {
	wrappers.Store(funcIdentity(fn), description)
}

// funcIdentity returns the func value held by fn. An interface holding a
// func stores the func value directly in its data word.
func funcIdentity(fn any) unsafe.Pointer {
	return (*[2]unsafe.Pointer)(unsafe.Pointer(&fn))[1]
}
