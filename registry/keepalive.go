package registry

import (
	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/host"
)

// Dependent is something a wrapper keeps alive: either a managed object
// holding one reference, or an opaque native payload with a release callback.
type Dependent struct {
	Patient host.Object
	Release func(nb.Addr)
	Payload nb.Addr
}

// Drop releases the dependent.
func (d Dependent) Drop(e *host.Env) {
	if d.Release != nil {
		d.Release(d.Payload)
		return
	}
	e.DecRef(d.Patient)
}

// KeepAliveTable maps wrappers to their dependents.
type KeepAliveTable struct {
	entries map[host.Object][]Dependent
}

// NewKeepAliveTable creates an empty table.
func NewKeepAliveTable() *KeepAliveTable {
	return &KeepAliveTable{entries: make(map[host.Object][]Dependent)}
}

// AddPatient appends patient to the dependents of nurse. It returns false,
// leaving the table unchanged, when nurse already holds patient. The caller
// is responsible for taking the reference.
func (k *KeepAliveTable) AddPatient(nurse, patient host.Object) bool {
	deps := k.entries[nurse]
	for _, d := range deps {
		if d.Patient == patient && d.Release == nil {
			return false
		}
	}
	k.entries[nurse] = append(deps, Dependent{Patient: patient})
	return true
}

// AddRelease prepends an opaque payload to the dependents of nurse.
func (k *KeepAliveTable) AddRelease(nurse host.Object, payload nb.Addr, release func(nb.Addr)) {
	deps := k.entries[nurse]
	k.entries[nurse] = append([]Dependent{{Payload: payload, Release: release}}, deps...)
}

// Take removes and returns the dependents of nurse.
func (k *KeepAliveTable) Take(nurse host.Object) ([]Dependent, bool) {
	deps, ok := k.entries[nurse]
	if ok {
		delete(k.entries, nurse)
	}
	return deps, ok
}

// Dependents returns the dependents of nurse without removing them.
func (k *KeepAliveTable) Dependents(nurse host.Object) []Dependent {
	return k.entries[nurse]
}

// Each calls fn for every nurse until fn returns false.
func (k *KeepAliveTable) Each(fn func(nurse host.Object, deps []Dependent) bool) {
	for n, deps := range k.entries {
		if !fn(n, deps) {
			return
		}
	}
}

// Len returns the number of nurses with dependents.
func (k *KeepAliveTable) Len() int {
	return len(k.entries)
}
