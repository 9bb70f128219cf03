// Package expand materializes parameterized prompt templates into concrete
// prompt corpora. Templates carry slots of the form {gender} or {gender1};
// the bare form means "one value, used consistently", numbered forms mean
// "distinct values, ordered". Expansion over a single slot family yields
// permutations; mixed slot families yield the Cartesian product.
package expand

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var slotPattern = regexp.MustCompile(`\{([a-zA-Z_]+?)([0-9])?\}`)

// ConfigError reports a slot that has no dictionary entry for the domain.
type ConfigError struct {
	Slot   string
	Domain string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("unknown slot %q for domain %q", e.Slot, e.Domain)
}

// ExpansionError reports a template that demands more distinct values than
// the slot dictionary provides.
type ExpansionError struct {
	Slot string
	Need int
	Have int
}

func (e *ExpansionError) Error() string {
	return fmt.Sprintf("slot %q needs %d distinct values but dictionary has %d", e.Slot, e.Need, e.Have)
}

// Dictionaries maps domain -> slot name -> ordered value list.
type Dictionaries map[string]map[string][]string

// Expander resolves template slots against per-domain dictionaries.
type Expander struct {
	dicts Dictionaries
}

// New creates an expander over the given dictionaries.
func New(dicts Dictionaries) *Expander {
	return &Expander{dicts: dicts}
}

// occurrence is one {slot} token found in the template, in document order.
type occurrence struct {
	token    string // full placeholder text, e.g. "{gender1}"
	base     string // slot name, e.g. "gender"
	position int    // 0 for the bare form, 1..9 for numbered forms
}

// Expand instantiates every slot combination for the template.
// A template with no recognized slots expands to itself.
func (e *Expander) Expand(template, domain, risk string) ([]string, error) {
	occs, err := e.scan(template, domain)
	if err != nil {
		return nil, err
	}
	if len(occs) == 0 {
		return []string{template}, nil
	}

	groups, order := groupByBase(occs)

	// Per slot family: assignments of position -> value. A family with one
	// position gets one assignment per value; a family with k positions gets
	// ordered permutations of length k.
	perGroup := make([][]map[int]string, 0, len(order))
	for _, base := range order {
		values := e.dicts[domain][base]
		positions := groupPositions(groups[base])
		if len(positions) > len(values) {
			return nil, &ExpansionError{Slot: base, Need: len(positions), Have: len(values)}
		}
		var assignments []map[int]string
		if len(positions) == 1 {
			for _, v := range values {
				assignments = append(assignments, map[int]string{positions[0]: v})
			}
		} else {
			for _, perm := range permutations(values, len(positions)) {
				a := make(map[int]string, len(positions))
				for i, pos := range positions {
					a[pos] = perm[i]
				}
				assignments = append(assignments, a)
			}
		}
		perGroup = append(perGroup, assignments)
	}

	// Cartesian product across slot families.
	var out []string
	combo := make([]map[int]string, len(perGroup))
	var walk func(depth int)
	walk = func(depth int) {
		if depth == len(perGroup) {
			out = append(out, substitute(template, occs, order, combo))
			return
		}
		for _, a := range perGroup[depth] {
			combo[depth] = a
			walk(depth + 1)
		}
	}
	walk(0)
	return out, nil
}

// Count returns the number of prompts Expand would yield, without building them.
func (e *Expander) Count(template, domain string) (int, error) {
	occs, err := e.scan(template, domain)
	if err != nil {
		return 0, err
	}
	if len(occs) == 0 {
		return 1, nil
	}
	groups, order := groupByBase(occs)
	total := 1
	for _, base := range order {
		values := e.dicts[domain][base]
		k := len(groupPositions(groups[base]))
		if k > len(values) {
			return 0, &ExpansionError{Slot: base, Need: k, Have: len(values)}
		}
		n := 1
		for i := 0; i < k; i++ {
			n *= len(values) - i
		}
		total *= n
	}
	return total, nil
}

func (e *Expander) scan(template, domain string) ([]occurrence, error) {
	dict := e.dicts[domain]
	matches := slotPattern.FindAllStringSubmatch(template, -1)
	var occs []occurrence
	for _, m := range matches {
		base := m[1]
		if _, ok := dict[base]; !ok {
			return nil, &ConfigError{Slot: base, Domain: domain}
		}
		pos := 0
		if m[2] != "" {
			pos = int(m[2][0] - '0')
		}
		occs = append(occs, occurrence{token: m[0], base: base, position: pos})
	}
	return occs, nil
}

func groupByBase(occs []occurrence) (map[string][]occurrence, []string) {
	groups := make(map[string][]occurrence)
	var order []string
	for _, o := range occs {
		if _, seen := groups[o.base]; !seen {
			order = append(order, o.base)
		}
		groups[o.base] = append(groups[o.base], o)
	}
	return groups, order
}

// groupPositions returns the sorted distinct positions used by one slot family.
// The bare form is position 0, so a template mixing {gender} with {gender1}
// treats the bare slot as the first member of the ordered set.
func groupPositions(occs []occurrence) []int {
	seen := make(map[int]bool)
	var positions []int
	for _, o := range occs {
		if !seen[o.position] {
			seen[o.position] = true
			positions = append(positions, o.position)
		}
	}
	sort.Ints(positions)
	return positions
}

func substitute(template string, occs []occurrence, order []string, combo []map[int]string) string {
	byBase := make(map[string]map[int]string, len(order))
	for i, base := range order {
		byBase[base] = combo[i]
	}
	out := template
	for _, o := range occs {
		out = strings.Replace(out, o.token, byBase[o.base][o.position], 1)
	}
	return out
}

// permutations returns ordered arrangements of k distinct values drawn from vs.
func permutations(vs []string, k int) [][]string {
	var out [][]string
	used := make([]bool, len(vs))
	current := make([]string, 0, k)
	var walk func()
	walk = func() {
		if len(current) == k {
			perm := make([]string, k)
			copy(perm, current)
			out = append(out, perm)
			return
		}
		for i, v := range vs {
			if used[i] {
				continue
			}
			used[i] = true
			current = append(current, v)
			walk()
			current = current[:len(current)-1]
			used[i] = false
		}
	}
	walk()
	return out
}
