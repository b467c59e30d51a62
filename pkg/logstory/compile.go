package logstory

import (
	"regexp"

	"github.com/logstory/logstory-go/internal/cache"
	"github.com/logstory/logstory-go/pkg/logstory/rules"
)

// Compiler turns a pattern source into a compiled expression.
// Implementations must be safe for concurrent use.
type Compiler interface {
	Compile(pattern string) (*regexp.Regexp, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(pattern string) (*regexp.Regexp, error)

// Compile calls f(pattern).
func (f CompilerFunc) Compile(pattern string) (*regexp.Regexp, error) {
	return f(pattern)
}

var defaultCompiler = NewCachedCompiler(DefaultCompileCacheSize)

// compiled holds both outcomes so invalid patterns are not recompiled on
// every line.
type compiled struct {
	re  *regexp.Regexp
	err error
}

type cachedCompiler struct {
	cache *cache.LRU[string, compiled]
}

// NewCachedCompiler returns a Compiler that keeps the size most recently
// used patterns, keyed on the pattern source. Patterns longer than
// rules.MaxPatternLength are rejected without compiling.
func NewCachedCompiler(size int) Compiler {
	return &cachedCompiler{cache: cache.New[string, compiled](size)}
}

func (c *cachedCompiler) Compile(pattern string) (*regexp.Regexp, error) {
	if len(pattern) > rules.MaxPatternLength {
		return nil, errPatternTooLong
	}
	v, _ := c.cache.GetOrLoad(pattern, func() (compiled, error) {
		re, err := regexp.Compile(pattern)
		return compiled{re: re, err: err}, nil
	})
	return v.re, v.err
}
