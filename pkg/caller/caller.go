// Package caller recovers the name of a calling function, for use as a
// span name when callers don't want to hand-write one at every call site.
package caller

import (
	"runtime"
	"strings"
)

// Name returns the name of the function/method that calls Name.
//
//	func Bar() {
//		name := caller.Name()
//		fmt.Println(name) // Bar
//	}
//
// An optional offset skips additional frames, for helpers that call Name
// on behalf of their own caller.
func Name(offsetOpt ...int) string {
	offset := 1
	if len(offsetOpt) > 0 {
		offset += offsetOpt[0]
	}

	pc, _, _, ok := runtime.Caller(offset)
	details := runtime.FuncForPC(pc)

	if !ok || details == nil {
		return ""
	}

	parts := strings.Split(details.Name(), ".")
	if len(parts) == 0 {
		return ""
	}

	// strip a trailing closure suffix ("func1", "func2", ...)
	if strings.HasPrefix(parts[len(parts)-1], "func") {
		parts = parts[:len(parts)-1]
	}
	if len(parts) == 0 {
		return ""
	}

	if len(parts) > 2 {
		// method call, e.g. [".../flow", "(*Scheduler)", "dispatch"]
		typeName := cleanTypeName(parts[len(parts)-2])
		methodName := parts[len(parts)-1]
		return strings.Join([]string{typeName, methodName}, ".")
	}

	return parts[len(parts)-1]
}

func cleanTypeName(name string) string {
	return strings.Trim(name, "(*)")
}
