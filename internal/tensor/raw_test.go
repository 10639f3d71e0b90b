package tensor

import (
	"testing"
)

// RawTensor Tests

func TestRawTensorNew(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}

	if !raw.Shape().Equal(Shape{3, 2}) {
		t.Errorf("Shape = %v, want [3 2]", raw.Shape())
	}
	if raw.DType() != Float32 {
		t.Errorf("DType = %v, want Float32", raw.DType())
	}
	if raw.NumElements() != 6 {
		t.Errorf("NumElements = %d, want 6", raw.NumElements())
	}
	if raw.ByteSize() != 24 {
		t.Errorf("ByteSize = %d, want 24", raw.ByteSize())
	}

	// Zero-initialized
	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Fatalf("element %d not zero-initialized: %v", i, v)
		}
	}
}

func TestRawTensorNewInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, -1}, Float32, CPU); err == nil {
		t.Error("NewRaw with negative dimension should fail")
	}
}

func TestRawTensorAsFloat32(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Float32, CPU)
	data := raw.AsFloat32()

	if len(data) != 6 {
		t.Errorf("AsFloat32 length = %d, want 6", len(data))
	}

	// Modify and verify zero-copy
	data[0] = 42
	if raw.AsFloat32()[0] != 42 {
		t.Error("AsFloat32 should return zero-copy slice")
	}
}

func TestRawTensorAsFloat64(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float64, CPU)
	data := raw.AsFloat64()

	if len(data) != 4 {
		t.Errorf("AsFloat64 length = %d, want 4", len(data))
	}

	data[3] = -1.5
	if raw.AsFloat64()[3] != -1.5 {
		t.Error("AsFloat64 should return zero-copy slice")
	}
}

func TestRawTensorAsFloat32WrongDType(t *testing.T) {
	raw, _ := NewRaw(Shape{2}, Float64, CPU)

	defer func() {
		if recover() == nil {
			t.Error("AsFloat32 on a Float64 tensor should panic")
		}
	}()
	raw.AsFloat32()
}

func TestRawTensorCloneIsShared(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	raw.AsFloat32()[0] = 1.0

	clone := raw.Clone()

	// Both should share the buffer
	if clone.AsFloat32()[0] != 1.0 {
		t.Error("Clone should share the buffer")
	}

	clone.AsFloat32()[1] = 2.0
	if raw.AsFloat32()[1] != 2.0 {
		t.Error("writes through the clone should be visible in the original")
	}

	if raw.IsUnique() || clone.IsUnique() {
		t.Error("neither handle should be unique after Clone")
	}
}

func TestRawTensorDeepCloneIsIndependent(t *testing.T) {
	raw, _ := NewRaw(Shape{2}, Float32, CPU)
	raw.AsFloat32()[0] = 1.0

	snapshot := raw.DeepClone()
	raw.AsFloat32()[0] = 99

	if snapshot.AsFloat32()[0] != 1.0 {
		t.Error("DeepClone must not observe later writes")
	}
	if !snapshot.IsUnique() {
		t.Error("DeepClone should own its buffer")
	}
}

func TestRawTensorRelease(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)
	clone := raw.Clone()

	clone.Release()

	if !raw.IsUnique() {
		t.Error("original should be unique again after releasing the clone")
	}
}

func TestRawTensorForceNonUnique(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 2}, Float32, CPU)

	if !raw.IsUnique() {
		t.Error("New RawTensor should be unique initially")
	}

	restore := raw.ForceNonUnique()

	if raw.IsUnique() {
		t.Error("After ForceNonUnique(), IsUnique() should return false")
	}

	restore()

	if !raw.IsUnique() {
		t.Error("restore func should undo the pin")
	}
}

func TestRawTensorVersionTracking(t *testing.T) {
	raw, _ := NewRaw(Shape{2}, Float32, CPU)
	src, _ := NewRaw(Shape{2}, Float32, CPU)
	src.AsFloat32()[0] = 7

	v0 := raw.Version()

	raw.StoreInplace(src)

	if raw.Version() != v0+1 {
		t.Errorf("Version after StoreInplace = %d, want %d", raw.Version(), v0+1)
	}
	if raw.AsFloat32()[0] != 7 {
		t.Errorf("StoreInplace did not copy data: %v", raw.AsFloat32())
	}

	// Clones see the same version counter.
	clone := raw.Clone()
	raw.StoreInplace(src)
	if clone.Version() != v0+2 {
		t.Errorf("clone Version = %d, want %d", clone.Version(), v0+2)
	}
}

func TestRawTensorStoreInplaceShapeMismatch(t *testing.T) {
	raw, _ := NewRaw(Shape{2}, Float32, CPU)
	src, _ := NewRaw(Shape{3}, Float32, CPU)

	defer func() {
		if recover() == nil {
			t.Error("StoreInplace with mismatched shapes should panic")
		}
	}()
	raw.StoreInplace(src)
}
