package cli

import "strings"

// valued lists the global flags that take a separate value argument.
var valued = map[string]bool{"a": true, "i": true, "t": true, "c": true, "config": true}

// positional drops global flags (and their values) from args.
func positional(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
			continue
		}
		name, _, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !hasValue && valued[name] && i+1 < len(args) {
			i++
		}
	}
	return out
}
