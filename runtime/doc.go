// Package runtime resolves entrypoint signatures from a component's WIT
// text, independent of any compiled bytecode or engine.
//
// # Quick Start
//
//	witText := `export add: func(a: s32, b: s32) -> s32;`
//	mod := runtime.NewModule(witText)
//
//	if !mod.HasFunction("add") {
//	    log.Fatal("entrypoint not found")
//	}
//	params, results, err := mod.GetFunctionTypes("add")
//
// # WIT Parsing
//
// GetFunctionTypes and HasFunction parse witText lazily on first call and
// cache the result: `[export] name: func(params) -> result;` entries are
// matched and each parameter/result type string is resolved through
// go.bytecodealliance.org/wit. A component's real WIT document has more
// structure than this pattern covers; Module only needs the exported
// function signatures, not the rest of the interface.
//
// # Thread Safety
//
// Module is safe for concurrent use.
package runtime
