package effect

import (
	"strings"
)

// declaration is one property in an inline style attribute.
type declaration struct {
	prop string
	val  string
}

// parseStyle parses an inline style attribute into an ordered declaration
// list. strict mode rejects the whole attribute on any malformed declaration;
// lenient mode drops malformed declarations and keeps the rest.
func parseStyle(style string, strict bool) ([]declaration, bool) {
	var decls []declaration
	for _, part := range strings.Split(style, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.IndexByte(part, ':')
		if idx <= 0 {
			if strict {
				return nil, false
			}
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(part[:idx]))
		val := strings.TrimSpace(part[idx+1:])
		if prop == "" || val == "" {
			if strict {
				return nil, false
			}
			continue
		}
		decls = append(decls, declaration{prop: prop, val: val})
	}
	return decls, true
}

// renderStyle serialises a declaration list back to attribute form.
func renderStyle(decls []declaration) string {
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		parts = append(parts, d.prop+": "+d.val)
	}
	return strings.Join(parts, "; ")
}

// setDecl replaces or appends a property, preserving declaration order.
func setDecl(decls []declaration, prop, val string) []declaration {
	for i := range decls {
		if decls[i].prop == prop {
			decls[i].val = val
			return decls
		}
	}
	return append(decls, declaration{prop: prop, val: val})
}

// dropDecl removes every declaration of the named property.
func dropDecl(decls []declaration, prop string) []declaration {
	kept := decls[:0]
	for _, d := range decls {
		if d.prop != prop {
			kept = append(kept, d)
		}
	}
	return kept
}

// getDecl returns the last value of the named property, or "".
func getDecl(decls []declaration, prop string) string {
	val := ""
	for _, d := range decls {
		if d.prop == prop {
			val = d.val
		}
	}
	return val
}
