package tensor

import "testing"

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1}, // scalar
		{Shape{5}, 5},
		{Shape{2, 3}, 6},
		{Shape{2, 3, 4}, 24},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("NumElements(%v) = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 3}).Validate(); err != nil {
		t.Errorf("Validate(2,3) = %v, want nil", err)
	}
	if err := (Shape{}).Validate(); err != nil {
		t.Errorf("Validate(scalar) = %v, want nil", err)
	}
	if err := (Shape{2, 0}).Validate(); err == nil {
		t.Error("Validate with zero dimension should fail")
	}
	if err := (Shape{-1}).Validate(); err == nil {
		t.Error("Validate with negative dimension should fail")
	}
}

func TestShapeComputeStrides(t *testing.T) {
	strides := Shape{2, 3, 4}.ComputeStrides()
	want := []int{12, 4, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Fatalf("ComputeStrides = %v, want %v", strides, want)
		}
	}
}

func TestShapeNormalizeDim(t *testing.T) {
	s := Shape{2, 3, 4}

	if got := s.NormalizeDim(1); got != 1 {
		t.Errorf("NormalizeDim(1) = %d, want 1", got)
	}
	if got := s.NormalizeDim(-1); got != 2 {
		t.Errorf("NormalizeDim(-1) = %d, want 2", got)
	}
	if got := s.NormalizeDim(-3); got != 0 {
		t.Errorf("NormalizeDim(-3) = %d, want 0", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("NormalizeDim out of range should panic")
		}
	}()
	s.NormalizeDim(3)
}

func TestShapeInsertRemove(t *testing.T) {
	s := Shape{2, 3}

	if got := s.Insert(1); !got.Equal(Shape{2, 1, 3}) {
		t.Errorf("Insert(1) = %v, want [2 1 3]", got)
	}
	if got := s.Insert(-1); !got.Equal(Shape{2, 3, 1}) {
		t.Errorf("Insert(-1) = %v, want [2 3 1]", got)
	}

	if got := (Shape{2, 1, 3}).Remove(1); !got.Equal(Shape{2, 3}) {
		t.Errorf("Remove(1) = %v, want [2 3]", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("Remove of a non-1 dimension should panic")
		}
	}()
	(Shape{2, 3}).Remove(1)
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		a, b  Shape
		want  Shape
		needs bool
	}{
		{Shape{2, 3}, Shape{2, 3}, Shape{2, 3}, false},
		{Shape{2, 1}, Shape{1, 3}, Shape{2, 3}, true},
		{Shape{3}, Shape{2, 3}, Shape{2, 3}, true},
		{Shape{}, Shape{2, 3}, Shape{2, 3}, true},
		{Shape{4, 1, 5}, Shape{3, 1}, Shape{4, 3, 5}, true},
	}
	for _, tt := range tests {
		got, needs, err := BroadcastShapes(tt.a, tt.b)
		if err != nil {
			t.Errorf("BroadcastShapes(%v, %v) error: %v", tt.a, tt.b, err)
			continue
		}
		if !got.Equal(tt.want) || needs != tt.needs {
			t.Errorf("BroadcastShapes(%v, %v) = %v/%v, want %v/%v",
				tt.a, tt.b, got, needs, tt.want, tt.needs)
		}
	}

	if _, _, err := BroadcastShapes(Shape{2}, Shape{3}); err == nil {
		t.Error("BroadcastShapes(2, 3) should fail")
	}
}
