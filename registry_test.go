package shmqueue

import "testing"

func TestOpenSharedReturnsSameHandle(t *testing.T) {
	name := "test_registry_shared"
	defer Remove(name)

	b := NewBuilder(name).Variant(VariantBroadcast).Capacity(4)

	q1, err := OpenShared[int](b)
	if err != nil {
		t.Fatalf("OpenShared first call: %v", err)
	}
	defer q1.Close()

	q2, err := OpenShared[int](b)
	if err != nil {
		t.Fatalf("OpenShared second call: %v", err)
	}

	if q1 != q2 {
		t.Fatal("OpenShared returned distinct handles for the same name")
	}
}

func TestOpenSharedRejectsTypeMismatch(t *testing.T) {
	name := "test_registry_type_mismatch"
	defer Remove(name)

	b := NewBuilder(name).Variant(VariantBroadcast).Capacity(4)

	q1, err := OpenShared[int](b)
	if err != nil {
		t.Fatalf("OpenShared[int]: %v", err)
	}
	defer q1.Close()

	_, err = OpenShared[string](b)
	if err == nil {
		t.Fatal("OpenShared[string] on an int-typed channel should have failed")
	}
}

func TestReleaseQueueAllowsReopen(t *testing.T) {
	name := "test_registry_reopen"
	defer Remove(name)

	b := NewBuilder(name).Variant(VariantBroadcast).Capacity(4)

	q1, err := OpenShared[int](b)
	if err != nil {
		t.Fatalf("OpenShared first call: %v", err)
	}
	if err := q1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	q2, err := OpenShared[int](b)
	if err != nil {
		t.Fatalf("OpenShared after Close: %v", err)
	}
	defer q2.Close()

	if q1 == q2 {
		t.Fatal("OpenShared returned the same handle after it was closed and released")
	}
}
