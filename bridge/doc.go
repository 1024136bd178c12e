// Package bridge implements the wrapper engine: type registration,
// instance lifecycle, and the policies that decide how native values cross
// into the managed environment and back.
//
// # Types
//
// RegisterType turns a TypeSpec into a type object whose metatype is
// created by the bridge. Metatypes are cached per supplement size, so all
// bridge types share a handful of them:
//
//	nativebridge.meta           metatype of the metatypes
//	nativebridge.type_0         types without supplemental data
//	nativebridge.type_16        types with 16 bytes of supplemental data
//
// Types subclassed from the managed side (host.Env.DefineClass) inherit the
// descriptor of their base and are marked managed-derived.
//
// # Instances
//
// A wrapper either embeds its payload or refers to native memory. External
// payloads are reached directly when the distance from the wrapper fits in
// an int32, and through a pointer slot after the header otherwise:
//
//	embedded   [header 24B][pad][payload ...]
//	direct     [header 24B]          offset -> payload
//	indirect   [header 24B][ptr 8B]  offset -> ptr -> payload
//
// Every wrapper is registered in the address map under its payload address.
//
// # Policies
//
//	PolicyTakeOwnership      wrap, destruct and free on deallocation
//	PolicyCopy / PolicyMove  construct a new embedded payload
//	PolicyReference          wrap without owning
//	PolicyReferenceInternal  wrap and keep the cleanup list's self alive
//	PolicyNone               only return an existing wrapper
//
// Unless the policy is PolicyCopy, Wrap returns the existing wrapper of the
// same or a derived type when there is one.
//
// # Errors
//
// Recoverable failures return *errors.Error. Invariant violations go
// through Options.OnFatal, which panics by default.
package bridge
