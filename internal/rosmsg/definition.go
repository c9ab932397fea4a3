package rosmsg

import "strings"

const definitionSeparator = "================================================================================"

// Definition builds the full message definition text used in the
// TCPROS handshake's message_definition field, per spec.md §3: the
// descriptor's own source, followed by each transitively reachable
// dependency in breadth-first order (direct before indirect),
// deduplicated by first occurrence, each preceded by an 80-'='
// separator line and a "MSG: package/name" line. registry resolves a
// Path to its Msg descriptor.
func Definition(m Msg, registry map[Path]Msg) string {
	var out []string
	out = append(out, m.Source)

	seen := map[Path]bool{m.Path: true}
	queue := m.Dependencies()

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]

		if seen[next] {
			continue
		}
		seen[next] = true

		dep, ok := registry[next]
		if !ok {
			continue // unresolved dependency; definition is best-effort text
		}

		out = append(out, definitionSeparator)
		out = append(out, "MSG: "+next.String())
		out = append(out, dep.Source)

		queue = append(queue, dep.Dependencies()...)
	}

	return strings.Join(out, "\n")
}

// DefinitionSections splits a full definition blob (as received over
// TCPROS) into the primary message source and the secondary
// "pkg/name -> source" sections, per spec.md §4.1's dynamic message
// view.
func DefinitionSections(blob string) (primary string, secondary map[Path]string) {
	secondary = make(map[Path]string)

	lines := strings.Split(blob, "\n")

	var sections [][]string
	var current []string
	for _, line := range lines {
		if isSeparatorLine(line) {
			sections = append(sections, current)
			current = nil
			continue
		}
		current = append(current, line)
	}
	sections = append(sections, current)

	if len(sections) == 0 {
		return "", secondary
	}

	primary = strings.TrimSpace(strings.Join(sections[0], "\n"))

	// secondary sections come in pairs of "MSG: pkg/name" (first line)
	// followed by body; actual formatting emitted by Definition puts
	// the MSG line as the first line immediately after the separator.
	for _, sec := range sections[1:] {
		if len(sec) == 0 {
			continue
		}
		header := strings.TrimSpace(sec[0])
		const prefix = "MSG: "
		if !strings.HasPrefix(header, prefix) {
			continue
		}
		name := strings.TrimPrefix(header, prefix)
		body := strings.TrimSpace(strings.Join(sec[1:], "\n"))

		parts := splitSlash(name)
		if len(parts) != 2 {
			continue
		}
		p, err := NewPath(parts[0], parts[1])
		if err != nil {
			continue
		}
		secondary[p] = body
	}

	return primary, secondary
}

func isSeparatorLine(line string) bool {
	t := strings.TrimRight(line, "\r")
	if len(t) == 0 {
		return false
	}
	for _, c := range t {
		if c != '=' {
			return false
		}
	}
	return true
}
