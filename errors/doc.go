// Package errors provides structured error types for the bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the native type's display name, the managed type name and a
// cause chain, so multi-type failures stay diagnosable.
//
// Two tiers exist. KindInvariant errors report corrupted bookkeeping and are raised
// through the bridge's fatal handler; every other kind is recoverable and returned to
// the caller:
//
//	err := errors.New(errors.PhaseWrap, errors.KindNoConversion).
//		TypeName("geo::Point").
//		Detail("no existing instance and policy forbids creating one").
//		Build()
//
//	if errors.IsFatal(err) {
//		// bug in calling code or in the bridge itself
//	}
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
