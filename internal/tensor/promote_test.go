package tensor

import "testing"

func TestPromoteTypesTable(t *testing.T) {
	tests := []struct {
		a, b, want DataType
	}{
		{Bool, Float32, Float32},
		{Bool, Int8, Int8},
		{Uint8, Int8, Int16},
		{Int8, Int32, Int32},
		{Int32, Int64, Int64},
		{Float16, BFloat16, Float32},
		{Float16, Float64, Float64},
		{Int8, Float16, Float16},
		{Int16, Float16, Float32},
		{Int32, Float32, Float64},
		{Int64, BFloat16, Float64},
		{Uint8, Float32, Float32},
	}

	for _, tt := range tests {
		if got := PromoteTypes(tt.a, tt.b); got != tt.want {
			t.Errorf("PromoteTypes(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestPromoteTypesCommutativeAndIdempotent(t *testing.T) {
	for _, a := range AllDataTypes {
		if got := PromoteTypes(a, a); got != a {
			t.Errorf("PromoteTypes(%s, %s) = %s, want %s", a, a, got, a)
		}
		for _, b := range AllDataTypes {
			ab, ba := PromoteTypes(a, b), PromoteTypes(b, a)
			if ab != ba {
				t.Errorf("PromoteTypes(%s, %s) = %s but PromoteTypes(%s, %s) = %s", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestPromoteTypesNeverNarrows(t *testing.T) {
	for _, a := range AllDataTypes {
		for _, b := range AllDataTypes {
			got := PromoteTypes(a, b)
			if got.Size() < a.Size() || got.Size() < b.Size() {
				t.Errorf("PromoteTypes(%s, %s) = %s narrows", a, b, got)
			}
			if (a.IsFloat() || b.IsFloat()) && !got.IsFloat() {
				t.Errorf("PromoteTypes(%s, %s) = %s drops float kind", a, b, got)
			}
		}
	}
}

func TestResultType(t *testing.T) {
	if got := ResultType(Bool, Int8, Uint8); got != Int16 {
		t.Errorf("ResultType(bool, int8, uint8) = %s, want int16", got)
	}
	if got := ResultType(Float32); got != Float32 {
		t.Errorf("ResultType(float32) = %s", got)
	}
	if got := ResultType(Float16, Uint8, Int8); got != Float32 {
		t.Errorf("ResultType(float16, uint8, int8) = %s, want float32", got)
	}
}

func TestResultTypeIgnoresOrder(t *testing.T) {
	for _, a := range AllDataTypes {
		for _, b := range AllDataTypes {
			for _, c := range AllDataTypes {
				want := ResultType(a, b, c)
				for _, p := range [][]DataType{{a, c, b}, {b, a, c}, {b, c, a}, {c, a, b}, {c, b, a}} {
					if got := ResultType(p...); got != want {
						t.Errorf("ResultType%v = %s, ResultType(%s, %s, %s) = %s", p, got, a, b, c, want)
					}
				}
			}
		}
	}
}

func TestParseDataType(t *testing.T) {
	for _, dt := range AllDataTypes {
		got, err := ParseDataType(dt.String())
		if err != nil || got != dt {
			t.Errorf("ParseDataType(%q) = %v, %v", dt.String(), got, err)
		}
	}
	if _, err := ParseDataType("complex64"); err == nil {
		t.Error("ParseDataType(complex64) should fail")
	}
}
