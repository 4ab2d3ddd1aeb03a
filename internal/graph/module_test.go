package graph

import (
	"sync"
	"testing"
)

func TestModuleMarkUsedReportsNewInformation(t *testing.T) {
	m := &Module{Id: "a"}
	if !m.MarkUsed("foo") {
		t.Fatalf("first MarkUsed(foo) should report added=true")
	}
	if m.MarkUsed("foo") {
		t.Fatalf("second MarkUsed(foo) should report added=false")
	}
	if !m.MarkUsed("bar") {
		t.Fatalf("MarkUsed(bar) should report added=true")
	}
	if !m.IsUsed("foo") || !m.IsUsed("bar") {
		t.Fatalf("expected both foo and bar to be used")
	}
	if m.IsUsed("baz") {
		t.Fatalf("baz was never marked used")
	}
}

func TestModuleMarkUsedConcurrentSafe(t *testing.T) {
	m := &Module{Id: "a"}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.MarkUsed("shared")
		}()
	}
	wg.Wait()
	if !m.IsUsed("shared") {
		t.Fatalf("expected shared to be marked used after concurrent MarkUsed calls")
	}
}
