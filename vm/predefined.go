package vm

// Predefined well-known symbols. Their raw IDs are process-constant and
// known to the bytecode compiler: a KindPredefined string-table entry
// carries one of these values in its translation slot, and the runtime
// maps it without a symbol-table lookup. The order here is wire format;
// append only.
const (
	SymEmpty SymbolID = iota // the empty string, index 0 everywhere
	SymLength
	SymPrototype
	SymConstructor
	SymProto // __proto__
	SymName
	SymMessage
	SymToString
	SymValueOf
	SymApply
	SymCall
	SymBind
	SymArguments
	SymCaller
	SymGet
	SymSet
	SymValue
	SymWritable
	SymEnumerable
	SymConfigurable
	SymDone
	SymNext
	SymKey
	SymIndex
	SymInput
	SymGlobal
	SymSource
	SymFlags
	SymLastIndex
	SymExports
	SymModule
	SymRequire

	numPredefined // must stay last
)

// NumPredefined is the size of the predefined symbol space; every
// SymbolID below it is fixed.
const NumPredefined = uint32(numPredefined)

var predefinedNames = [numPredefined]string{
	SymEmpty:        "",
	SymLength:       "length",
	SymPrototype:    "prototype",
	SymConstructor:  "constructor",
	SymProto:        "__proto__",
	SymName:         "name",
	SymMessage:      "message",
	SymToString:     "toString",
	SymValueOf:      "valueOf",
	SymApply:        "apply",
	SymCall:         "call",
	SymBind:         "bind",
	SymArguments:    "arguments",
	SymCaller:       "caller",
	SymGet:          "get",
	SymSet:          "set",
	SymValue:        "value",
	SymWritable:     "writable",
	SymEnumerable:   "enumerable",
	SymConfigurable: "configurable",
	SymDone:         "done",
	SymNext:         "next",
	SymKey:          "key",
	SymIndex:        "index",
	SymInput:        "input",
	SymGlobal:       "global",
	SymSource:       "source",
	SymFlags:        "flags",
	SymLastIndex:    "lastIndex",
	SymExports:      "exports",
	SymModule:       "module",
	SymRequire:      "require",
}

// PredefinedName returns the display form of a predefined symbol.
func PredefinedName(id SymbolID) string {
	if !IsPredefined(id) {
		panic("vm: not a predefined symbol")
	}
	return predefinedNames[id]
}
