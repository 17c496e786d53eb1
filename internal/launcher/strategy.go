package launcher

import (
	"os/exec"
	"runtime"
)

// Strategy names one way of invoking the engine executable.
type Strategy string

const (
	// StrategyDirect runs the configured binary as is.
	StrategyDirect Strategy = "direct"
	// StrategyWSL runs the binary inside the Windows Subsystem for Linux.
	StrategyWSL Strategy = "wsl"
	// StrategyFallback runs the binary if it resolves, else FallbackPath.
	StrategyFallback Strategy = "fallback"
)

// FallbackPath is the well-known install location tried when the configured
// binary cannot be found under StrategyFallback.
const FallbackPath = "/usr/local/bin/nvim"

// wslWrapper is the compatibility-layer launcher for StrategyWSL.
const wslWrapper = "wsl"

// platformPolicy maps an OS to the strategy used without --wsl, and whether
// --wsl is honoured there.
var platformPolicy = map[string]struct {
	base       Strategy
	acceptsWSL bool
}{
	"windows": {base: StrategyDirect, acceptsWSL: true},
	"darwin":  {base: StrategyFallback},
}

// SelectStrategy picks the launch strategy for goos. An empty goos means
// the running platform.
func SelectStrategy(goos string, wsl bool) Strategy {
	if goos == "" {
		goos = runtime.GOOS
	}
	policy, ok := platformPolicy[goos]
	if !ok {
		return StrategyDirect
	}
	if wsl && policy.acceptsWSL {
		return StrategyWSL
	}
	return policy.base
}

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyDirect, StrategyWSL, StrategyFallback:
		return true
	}
	return false
}

// resolve returns the executable and leading arguments for bin.
// exists reports whether a binary can be found.
func (s Strategy) resolve(bin string, exists func(string) bool) (string, []string) {
	switch s {
	case StrategyWSL:
		return wslWrapper, []string{bin}
	case StrategyFallback:
		if exists(bin) {
			return bin, nil
		}
		return FallbackPath, nil
	default:
		return bin, nil
	}
}

func binaryExists(bin string) bool {
	_, err := exec.LookPath(bin)
	return err == nil
}
