package policy

import "testing"

func TestResourceCountingPolicyAdmitsUpToCap(t *testing.T) {
	p := NewResourceCountingPolicy(2)

	if !p.CanRun(nil) {
		t.Fatal("first CanRun should admit")
	}
	if !p.CanRun(nil) {
		t.Fatal("second CanRun should admit")
	}
	if p.CanRun(nil) {
		t.Fatal("third CanRun should be refused while two holders are outstanding")
	}

	p.Release(nil)
	if !p.CanRun(nil) {
		t.Fatal("CanRun should admit again after a Release frees a slot")
	}
}

func TestResourceCountingPolicyFreeIsNoop(t *testing.T) {
	p := NewResourceCountingPolicy(1)
	p.Free(nil) // must not panic or consume a slot
	if !p.CanRun(nil) {
		t.Fatal("Free must not affect the semaphore")
	}
}
