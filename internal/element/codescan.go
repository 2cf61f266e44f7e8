package element

import (
	"regexp"
	"strings"
)

// Best-effort selector mining from generated code. This is a heuristic
// enrichment source with low trust: it scans for ad-hoc DOM-query calls in JS
// and for #id/.class tokens in CSS. It is never a source of truth.
var (
	queryCallPattern = regexp.MustCompile(`(?:querySelector(?:All)?|closest)\(\s*['"` + "`" + `]([^'"` + "`" + `]+)['"` + "`" + `]`)
	byIDPattern      = regexp.MustCompile(`getElementById\(\s*['"]([^'"]+)['"]`)
	byClassPattern   = regexp.MustCompile(`getElementsByClassName\(\s*['"]([^'"]+)['"]`)
	idTokenPattern   = regexp.MustCompile(`#([A-Za-z_][A-Za-z0-9_-]*)`)
	clsTokenPattern  = regexp.MustCompile(`\.([A-Za-z_][A-Za-z0-9_-]*)`)
	hexColorPattern  = regexp.MustCompile(`^(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// ScanGeneratedCode extracts element references from a generated code
// artifact. Duplicate selectors within this source fold by keeping the last
// occurrence. Unscannable input yields an empty slice, never an error.
func ScanGeneratedCode(code *GeneratedCode) []Descriptor {
	if code == nil {
		return nil
	}

	order := make([]string, 0, 8)
	found := make(map[string]Descriptor)
	record := func(d Descriptor) {
		if d.Selector == "" {
			return
		}
		d.Source = SourceGeneratedCode
		if _, ok := found[d.Selector]; !ok {
			order = append(order, d.Selector)
		}
		// Last occurrence wins.
		found[d.Selector] = d
	}

	for _, v := range code.Variations {
		scanJS(v.JS, record)
		scanCSS(v.CSS, record)
	}

	out := make([]Descriptor, 0, len(order))
	for _, sel := range order {
		out = append(out, found[sel])
	}
	return out
}

func scanJS(js string, record func(Descriptor)) {
	for _, m := range queryCallPattern.FindAllStringSubmatch(js, -1) {
		record(tokenDescriptor(strings.TrimSpace(m[1])))
	}
	for _, m := range byIDPattern.FindAllStringSubmatch(js, -1) {
		record(Descriptor{Selector: "#" + m[1], Role: RoleUnique, Name: m[1]})
	}
	for _, m := range byClassPattern.FindAllStringSubmatch(js, -1) {
		record(Descriptor{Selector: "." + m[1], Role: RoleGeneric, Name: m[1]})
	}
}

func scanCSS(css string, record func(Descriptor)) {
	for _, m := range idTokenPattern.FindAllStringSubmatch(css, -1) {
		// #fff and friends are colors, not selectors.
		if hexColorPattern.MatchString(m[1]) {
			continue
		}
		record(Descriptor{Selector: "#" + m[1], Role: RoleUnique, Name: m[1]})
	}
	for _, m := range clsTokenPattern.FindAllStringSubmatch(css, -1) {
		record(Descriptor{Selector: "." + m[1], Role: RoleGeneric, Name: m[1]})
	}
}

// tokenDescriptor classifies a selector string pulled out of a DOM-query call.
func tokenDescriptor(sel string) Descriptor {
	switch {
	case sel == "":
		return Descriptor{}
	case strings.HasPrefix(sel, "#"):
		return Descriptor{Selector: sel, Role: RoleUnique, Name: strings.TrimPrefix(sel, "#")}
	case strings.HasPrefix(sel, "."):
		return Descriptor{Selector: sel, Role: RoleGeneric, Name: strings.TrimPrefix(sel, ".")}
	default:
		return Descriptor{Selector: sel, Role: RoleGeneric, Name: sel}
	}
}
