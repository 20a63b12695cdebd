// Package bpath canonicalizes named-port names (spec §6: names are
// dot-separated service paths like "svc.time.get"), the same role
// bpath.Canonicalize plays for biscuit's file paths.
package bpath

import "ustr"

// Canonicalize collapses repeated '.' separators and strips any leading or
// trailing separator, the dotted-name analogue of path canonicalization.
func Canonicalize(name ustr.Ustr) ustr.Ustr {
	out := make(ustr.Ustr, 0, len(name))
	lastDot := true // treat the start as "just saw a separator" to strip a leading one
	for _, b := range name {
		if b == '.' {
			if lastDot {
				continue
			}
			lastDot = true
			out = append(out, b)
			continue
		}
		lastDot = false
		out = append(out, b)
	}
	for len(out) > 0 && out[len(out)-1] == '.' {
		out = out[:len(out)-1]
	}
	return out
}

// Split breaks a canonicalized dotted name into its components.
func Split(name ustr.Ustr) []ustr.Ustr {
	name = Canonicalize(name)
	if len(name) == 0 {
		return nil
	}
	var parts []ustr.Ustr
	start := 0
	for i, b := range name {
		if b == '.' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	parts = append(parts, name[start:])
	return parts
}
