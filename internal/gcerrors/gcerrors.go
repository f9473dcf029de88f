// Package gcerrors provides standardized error and fatal-condition reporting
// for the remembered-set and refinement subsystem.
package gcerrors

import (
	"fmt"
	"runtime"
)

// Category classifies a condition raised by the card-set, refinement, or
// merge-and-scan machinery, per the error taxonomy.
type Category string

const (
	CategoryCapacity    Category = "CAPACITY"    // heap too large for card-index representation
	CategoryArenaOOM    Category = "ARENA_OOM"   // arena exhausted
	CategoryUnparsable  Category = "UNPARSABLE"  // a card's object could not be parsed
	CategoryEvacFailure Category = "EVAC_FAILED" // evacuation failure of a CS region
	CategoryAssertion   Category = "ASSERTION"   // programming-error invariant violation
)

// fatal reports whether a category is always unrecoverable.
func (c Category) fatal() bool {
	switch c {
	case CategoryCapacity, CategoryArenaOOM, CategoryAssertion:
		return true
	default:
		return false
	}
}

// StandardError is a consistently formatted, categorized error.
type StandardError struct {
	Category Category
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("[%s:%s] %s (caller: %s)", e.Category, e.Code, e.Message, e.Caller)
}

// New creates a categorized error, capturing the caller for diagnostics.
func New(category Category, code, message string, context map[string]interface{}) *StandardError {
	pc, _, _, ok := runtime.Caller(1)

	caller := "unknown"
	if ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			caller = fn.Name()
		}
	}

	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller,
	}
}

// Recoverable condition constructors (§7: return a status value, never unwind).

func UnparsableCard(cardIdx uint32, reason string) *StandardError {
	return New(CategoryUnparsable, "UNPARSABLE_CARD",
		fmt.Sprintf("card %d could not be parsed: %s", cardIdx, reason),
		map[string]interface{}{"card": cardIdx, "reason": reason})
}

func EvacuationFailed(regionIdx uint32) *StandardError {
	return New(CategoryEvacFailure, "EVAC_FAILED",
		fmt.Sprintf("evacuation failed for region %d", regionIdx),
		map[string]interface{}{"region": regionIdx})
}

// FatalHandler receives a fatal condition. The default aborts the process;
// tests inject a handler that instead records the call, since recoverable
// test binaries must not exit.
type FatalHandler func(err *StandardError)

var currentFatalHandler FatalHandler = defaultFatalHandler

func defaultFatalHandler(err *StandardError) {
	panic(err)
}

// SetFatalHandler overrides how Fatal conditions are reported. Returns the
// previous handler so callers (tests) can restore it.
func SetFatalHandler(h FatalHandler) FatalHandler {
	prev := currentFatalHandler
	currentFatalHandler = h

	return prev
}

// Fatal reports an unrecoverable condition (§7: capacity exhaustion, arena
// OOM, assertion failure) through the configured handler. It does not
// return in production use; in tests the injected handler may.
func Fatal(category Category, code, message string, context map[string]interface{}) {
	if !category.fatal() {
		category = CategoryAssertion
	}

	currentFatalHandler(New(category, code, message, context))
}

// Assertf raises a fatal assertion if cond is false.
func Assertf(cond bool, format string, args ...interface{}) {
	if cond {
		return
	}

	Fatal(CategoryAssertion, "ASSERTION_FAILED", fmt.Sprintf(format, args...), nil)
}

func CapacityExceeded(heapCards, maxCards uint64) *StandardError {
	return New(CategoryCapacity, "CAPACITY_EXCEEDED",
		fmt.Sprintf("heap has %d cards, exceeds %d-card container budget", heapCards, maxCards),
		map[string]interface{}{"heap_cards": heapCards, "max_cards": maxCards})
}

func ArenaExhausted(arenaName string, requested uintptr) *StandardError {
	return New(CategoryArenaOOM, "ARENA_EXHAUSTED",
		fmt.Sprintf("arena %q could not satisfy allocation of %d bytes", arenaName, requested),
		map[string]interface{}{"arena": arenaName, "requested": requested})
}
