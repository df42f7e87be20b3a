package pluginapi

import "testing"

func TestJobTargets(t *testing.T) {
	j := &Job{PluginOpts: []string{"malloc", "free", "malloc"}}
	targets := j.Targets()
	if len(targets) != 2 {
		t.Fatalf("Targets() = %v, want 2 unique entries", targets)
	}
	if !targets["malloc"] || !targets["free"] {
		t.Errorf("Targets() = %v, want malloc and free", targets)
	}
}

func TestAdapterClaimFileDefault(t *testing.T) {
	a := NewAdapter()
	a.Xwrap[XwrapKey{"a.o", 0}] = map[string]bool{"malloc": true}

	claimed, err := a.ClaimFile(Input{Name: "a.o", Offset: 0})
	if err != nil {
		t.Fatalf("ClaimFile: %v", err)
	}
	if !claimed {
		t.Errorf("ClaimFile = false, want true (in xwrap map)")
	}
	if len(a.Claims()) != 1 {
		t.Fatalf("Claims() = %v, want 1", a.Claims())
	}

	claimed, err = a.ClaimFile(Input{Name: "b.o", Offset: 0})
	if err != nil {
		t.Fatalf("ClaimFile: %v", err)
	}
	if claimed {
		t.Errorf("ClaimFile(b.o) = true, want false (not in xwrap map)")
	}
}

func TestAdapterAllSymbolsReadDefault(t *testing.T) {
	a := NewAdapter()
	a.Xwrap[XwrapKey{"a.o", 0}] = map[string]bool{"malloc": true}
	if _, err := a.ClaimFile(Input{Name: "a.o", Offset: 0}); err != nil {
		t.Fatalf("ClaimFile: %v", err)
	}
	a.Claims()[0].Surrogate = "/tmp/surrogate.o"

	var added []string
	a.Ops.AddInputFile = func(path string) error {
		added = append(added, path)
		return nil
	}
	if err := a.AllSymbolsRead(); err != nil {
		t.Fatalf("AllSymbolsRead: %v", err)
	}
	if len(added) != 1 || added[0] != "/tmp/surrogate.o" {
		t.Errorf("added = %v, want [/tmp/surrogate.o]", added)
	}
}

func TestAdapterCleanupRunsInReverseOrder(t *testing.T) {
	a := NewAdapter()
	var order []int
	a.RegisterCleanup(func() { order = append(order, 1) })
	a.RegisterCleanup(func() { order = append(order, 2) })
	a.Cleanup()
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("cleanup order = %v, want [2 1]", order)
	}
}
