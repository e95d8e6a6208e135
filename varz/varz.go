/*
varz provides helpers to create expvar variables with package-qualified names,
so "hits" declared in dbcache shows up as "github.com/ts4z/rungs/dbcache.hits".

Everything lands in the expvar registry, which webapp serves at /debug/vars.
*/
package varz

import (
	"expvar"
	"runtime"
	"strings"
)

// callerPackage is the import path of whoever called our caller.  Package
// level vars are initialized from a function named "init" (or "init.0"),
// so everything after the last slash's first dot goes.
func callerPackage() string {
	pc, _, _, ok := runtime.Caller(2)
	if !ok {
		return "varz.unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "varz.unknown"
	}
	return packageOf(fn.Name())
}

// packageOf trims a function name, as runtime reports it, to its package.
func packageOf(fn string) string {
	slash := strings.LastIndex(fn, "/")
	if dot := strings.Index(fn[slash+1:], "."); dot != -1 {
		return fn[:slash+1+dot]
	}
	return fn
}

func NewInt(name string) *expvar.Int {
	return expvar.NewInt(callerPackage() + "." + name)
}

func NewFloat(name string) *expvar.Float {
	return expvar.NewFloat(callerPackage() + "." + name)
}

// NewMap is for counters keyed by something only known at run time, such
// as a game name.
func NewMap(name string) *expvar.Map {
	return expvar.NewMap(callerPackage() + "." + name)
}
