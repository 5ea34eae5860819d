// Package envconfig reads unitensor settings from the environment.
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/born-ml/unitensor/internal/tensor"
)

// Var returns an environment variable stripped of whitespace and quotes.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// BoolWithDefault returns a reader for a boolean variable with a default.
// Set but unparsable values read as true.
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool returns a reader for a boolean variable defaulting to false.
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// Uint returns a reader for an unsigned variable with a default.
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

func dataType(key string, defaultValue tensor.DataType) func() tensor.DataType {
	return func() tensor.DataType {
		if s := Var(key); s != "" {
			dt, err := tensor.ParseDataType(s)
			if err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
				return defaultValue
			}
			return dt
		}
		return defaultValue
	}
}

var (
	// DynamicBackend makes new arrays migrate to the current backend on use.
	// Set UNITENSOR_DYNAMIC_BACKEND=1 to enable.
	DynamicBackend = Bool("UNITENSOR_DYNAMIC_BACKEND")
	// DefaultFloat is the dtype for Go float literals (UNITENSOR_DEFAULT_FLOAT).
	DefaultFloat = dataType("UNITENSOR_DEFAULT_FLOAT", tensor.Float32)
	// DefaultInt is the dtype for Go integer literals (UNITENSOR_DEFAULT_INT).
	DefaultInt = dataType("UNITENSOR_DEFAULT_INT", tensor.Int64)
)

// Backend returns the name of the default backend.
// Configurable via UNITENSOR_BACKEND. Default: cpu.
func Backend() string {
	if s := Var("UNITENSOR_BACKEND"); s != "" {
		return strings.ToLower(s)
	}
	return "cpu"
}

// NumThreads returns the number of cpu kernel workers.
// Configurable via UNITENSOR_NUM_THREADS. 0 or unset means one per CPU.
func NumThreads() int {
	n := int(Uint("UNITENSOR_NUM_THREADS", 0)())
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// LogLevel returns the log level.
// Configurable via UNITENSOR_DEBUG: 0/false = INFO (default), 1/true = DEBUG,
// other integers n map to slog.Level(-4n).
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("UNITENSOR_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// EnvVar describes one environment variable.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every setting with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"UNITENSOR_BACKEND":         {"UNITENSOR_BACKEND", Backend(), "Default backend when none is set (default \"cpu\")"},
		"UNITENSOR_DEBUG":           {"UNITENSOR_DEBUG", LogLevel(), "Show additional debug information (e.g. UNITENSOR_DEBUG=1)"},
		"UNITENSOR_DEFAULT_FLOAT":   {"UNITENSOR_DEFAULT_FLOAT", DefaultFloat(), "Dtype of float literals (default float32)"},
		"UNITENSOR_DEFAULT_INT":     {"UNITENSOR_DEFAULT_INT", DefaultInt(), "Dtype of integer literals (default int64)"},
		"UNITENSOR_DYNAMIC_BACKEND": {"UNITENSOR_DYNAMIC_BACKEND", DynamicBackend(), "Let new arrays follow the current backend"},
		"UNITENSOR_NUM_THREADS":     {"UNITENSOR_NUM_THREADS", NumThreads(), "Worker goroutines for cpu kernels (default: number of CPUs)"},
	}
}

// Values returns every setting formatted as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
