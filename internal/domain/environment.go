package domain

import (
	"maps"
	"slices"
)

// Environment is the immutable set of variables handed to one child
// process, together with the command prefix chosen for the host.
type Environment struct {
	vars   map[string]string
	prefix []string
}

// NewEnvironment copies vars and prefix so later changes by the caller do
// not leak into the value.
func NewEnvironment(vars map[string]string, prefix []string) Environment {
	return Environment{
		vars:   maps.Clone(vars),
		prefix: slices.Clone(prefix),
	}
}

func (e Environment) Get(name string) string {
	return e.vars[name]
}

func (e Environment) Lookup(name string) (string, bool) {
	v, ok := e.vars[name]
	return v, ok
}

func (e Environment) Len() int {
	return len(e.vars)
}

// Slice returns the variables as sorted NAME=value pairs, the form
// expected by exec.Cmd.Env.
func (e Environment) Slice() []string {
	out := make([]string, 0, len(e.vars))
	for _, k := range slices.Sorted(maps.Keys(e.vars)) {
		out = append(out, k+"="+e.vars[k])
	}
	return out
}

func (e Environment) CommandPrefix() []string {
	return slices.Clone(e.prefix)
}
