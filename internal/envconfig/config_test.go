package envconfig

import (
	"log/slog"
	"runtime"
	"testing"

	"github.com/born-ml/unitensor/internal/tensor"
)

func TestBackend(t *testing.T) {
	cases := map[string]string{
		"":          "cpu",
		"gonum":     "gonum",
		" GONUM ":   "gonum",
		"\"torch\"": "torch",
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("UNITENSOR_BACKEND", k)
			if b := Backend(); b != v {
				t.Errorf("%s: expected %s, got %s", k, v, b)
			}
		})
	}
}

func TestBool(t *testing.T) {
	cases := map[string]bool{
		"":       false,
		"true":   true,
		"false":  false,
		"1":      true,
		"0":      false,
		"random": true,
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("UNITENSOR_BOOL", k)
			if b := Bool("UNITENSOR_BOOL")(); b != v {
				t.Errorf("%s: expected %t, got %t", k, v, b)
			}
		})
	}
}

func TestDefaultDTypes(t *testing.T) {
	t.Setenv("UNITENSOR_DEFAULT_FLOAT", "")
	t.Setenv("UNITENSOR_DEFAULT_INT", "")
	if DefaultFloat() != tensor.Float32 || DefaultInt() != tensor.Int64 {
		t.Errorf("defaults = %s, %s", DefaultFloat(), DefaultInt())
	}

	t.Setenv("UNITENSOR_DEFAULT_FLOAT", "float64")
	t.Setenv("UNITENSOR_DEFAULT_INT", "not-a-type")
	if DefaultFloat() != tensor.Float64 {
		t.Errorf("DefaultFloat = %s, want float64", DefaultFloat())
	}
	if DefaultInt() != tensor.Int64 {
		t.Errorf("DefaultInt = %s, want int64 fallback", DefaultInt())
	}
}

func TestNumThreads(t *testing.T) {
	t.Setenv("UNITENSOR_NUM_THREADS", "")
	if n := NumThreads(); n != runtime.NumCPU() {
		t.Errorf("NumThreads = %d, want %d", n, runtime.NumCPU())
	}
	t.Setenv("UNITENSOR_NUM_THREADS", "3")
	if n := NumThreads(); n != 3 {
		t.Errorf("NumThreads = %d, want 3", n)
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"t":     slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
	}

	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv("UNITENSOR_DEBUG", k)
			if i := LogLevel(); i != v {
				t.Errorf("%s: expected %d, got %d", k, v, i)
			}
		})
	}
}

func TestAsMap(t *testing.T) {
	m := AsMap()
	for _, key := range []string{"UNITENSOR_BACKEND", "UNITENSOR_DEBUG", "UNITENSOR_DYNAMIC_BACKEND"} {
		if _, ok := m[key]; !ok {
			t.Errorf("AsMap missing %s", key)
		}
	}
	if len(Values()) != len(m) {
		t.Errorf("Values has %d entries, want %d", len(Values()), len(m))
	}
}
