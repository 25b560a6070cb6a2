package embed

import (
	"context"
	"math"
	"reflect"
	"testing"
)

func TestFakeDeterministic(t *testing.T) {
	f := Fake{Dim: 8}
	a, _ := f.Embed(context.Background(), "m", "senior data engineer")
	b, _ := f.Embed(context.Background(), "m", "senior data engineer")
	if !reflect.DeepEqual(a, b) {
		t.Error("equal texts must embed identically")
	}
	c, _ := f.Embed(context.Background(), "m", "junior accountant")
	if reflect.DeepEqual(a, c) {
		t.Error("distinct texts should differ")
	}
	if len(a) != 8 {
		t.Errorf("dim = %d, want 8", len(a))
	}
}

func TestL2Norm(t *testing.T) {
	got := L2Norm([]float32{3, 4})
	if math.Abs(got-5) > 1e-6 {
		t.Errorf("got %v, want 5", got)
	}
	if L2Norm(nil) <= 0 {
		t.Error("norm must stay positive for safe division")
	}
}
