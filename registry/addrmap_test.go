package registry

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

type fakeObj struct {
	host.Header
	name string
}

type testObserver struct {
	events []string
}

func (o *testObserver) OnRegistryEvent(e Event) {
	kind := "insert"
	if e.Type == EventRemoved {
		kind = "remove"
	}
	o.events = append(o.events, kind+":"+e.Value.(*fakeObj).name)
}

func names(e Entry) []string {
	var out []string
	for i := range e.Len() {
		out = append(out, e.At(i).(*fakeObj).name)
	}
	return out
}

func TestAddrMap_Basic(t *testing.T) {
	m := NewAddrMap()
	w := &fakeObj{name: "w"}

	if err := m.Insert(0x1000, w); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	e, ok := m.Lookup(0x1000)
	if !ok {
		t.Fatal("Lookup failed")
	}
	if _, single := e.(Single); !single {
		t.Fatalf("expected Single entry, got %T", e)
	}

	if err := m.Insert(0x1000, w); !errors.HasKind(err, errors.KindDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	if m.Remove(0x2000, w) {
		t.Fatal("Remove at wrong address should fail")
	}
	if !m.Remove(0x1000, w) {
		t.Fatal("Remove failed")
	}
	if m.Len() != 0 || m.Count() != 0 {
		t.Fatalf("expected empty map, got Len=%d Count=%d", m.Len(), m.Count())
	}
	if m.Remove(0x1000, w) {
		t.Fatal("second Remove should fail")
	}
}

func TestAddrMap_AliasingChain(t *testing.T) {
	m := NewAddrMap()
	w1, w2, w3 := &fakeObj{name: "w1"}, &fakeObj{name: "w2"}, &fakeObj{name: "w3"}

	for _, w := range []*fakeObj{w1, w2, w3} {
		if err := m.Insert(0x1000, w); err != nil {
			t.Fatalf("Insert %s failed: %v", w.name, err)
		}
	}
	if m.Len() != 1 || m.Count() != 3 {
		t.Fatalf("expected 1 address / 3 wrappers, got %d / %d", m.Len(), m.Count())
	}
	if err := m.Insert(0x1000, w2); err == nil {
		t.Fatal("duplicate in chain should fail")
	}

	if !m.Remove(0x1000, w2) {
		t.Fatal("Remove of middle element failed")
	}

	e, _ := m.Lookup(0x1000)
	if diff := cmp.Diff([]string{"w1", "w3"}, names(e)); diff != "" {
		t.Errorf("chain mismatch (-want +got):\n%s", diff)
	}

	got, ok := m.Find(0x1000, func(o host.Object) bool { return o.(*fakeObj).name == "w3" })
	if !ok || got != w3 {
		t.Fatalf("Find(w3) = %v, %v", got, ok)
	}
	got, ok = m.Find(0x1000, func(o host.Object) bool { return o.(*fakeObj).name == "w1" })
	if !ok || got != w1 {
		t.Fatalf("Find(w1) = %v, %v", got, ok)
	}

	if !m.Remove(0x1000, w1) {
		t.Fatal("Remove of head failed")
	}
	e, _ = m.Lookup(0x1000)
	if s, ok := e.(Single); !ok || s.Inst != w3 {
		t.Fatalf("chain of one must collapse to Single(w3), got %#v", e)
	}
}

func TestAddrMap_Observer(t *testing.T) {
	m := NewAddrMap()
	obs := &testObserver{}
	m.Subscribe(obs)

	a, b := &fakeObj{name: "a"}, &fakeObj{name: "b"}
	_ = m.Insert(0x10, a)
	_ = m.Insert(0x10, b)
	_ = m.Insert(0x10, a) // rejected, no event
	m.Remove(0x10, a)

	m.Unsubscribe(obs)
	m.Remove(0x10, b)

	want := []string{"insert:a", "insert:b", "remove:a"}
	if diff := cmp.Diff(want, obs.events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestAddrMap_Each(t *testing.T) {
	m := NewAddrMap()
	_ = m.Insert(0x10, &fakeObj{name: "a"})
	_ = m.Insert(0x10, &fakeObj{name: "b"})
	_ = m.Insert(0x20, &fakeObj{name: "c"})

	seen := map[nb.Addr]int{}
	m.Each(func(addr nb.Addr, _ host.Object) bool {
		seen[addr]++
		return true
	})
	if seen[0x10] != 2 || seen[0x20] != 1 {
		t.Fatalf("unexpected iteration result: %v", seen)
	}

	count := 0
	m.Each(func(nb.Addr, host.Object) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("Each should stop early, visited %d", count)
	}
}
