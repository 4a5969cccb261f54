// Package notebook turns a Dockerfile into the ordered cells a session
// executes one after another.
package notebook

import (
	"strings"
)

const (
	blockStart      = "#cellStart"
	blockEnd        = "#cellEnd"
	markdownComment = "#md "
	commandComment  = "#mg "
)

// CellKind tells executable cells from prose
type CellKind string

const (
	KindCode     CellKind = "code"
	KindMarkdown CellKind = "markdown"
)

// Cell is one unit of a split Dockerfile
type Cell struct {
	Kind   CellKind
	Source string
}

// Executable reports whether the cell is sent to a kernel
func (c Cell) Executable() bool {
	return c.Kind == KindCode
}

// Split cuts a Dockerfile into cells. Lines between #cellStart and #cellEnd
// form one cell even across blank lines; elsewhere a blank line ends a cell.
// A "#md " line marks its cell as markdown and a "#mg " line is a command
// stored as a comment; both prefixes are removed.
func Split(dockerfile string) []Cell {
	dockerfile = strings.ReplaceAll(dockerfile, "\r\n", "\n")

	var (
		cells   []Cell
		current []string
		inBlock bool
	)
	flush := func() {
		if cell, ok := newCell(current); ok {
			cells = append(cells, cell)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(dockerfile, "\n") {
		switch trimmed := strings.TrimSpace(line); {
		case trimmed == blockStart:
			flush()
			inBlock = true
		case trimmed == blockEnd && inBlock:
			flush()
			inBlock = false
		case trimmed == "" && !inBlock:
			flush()
		default:
			current = append(current, line)
		}
	}
	flush()

	return cells
}

// Code returns the sources of the executable cells in order
func Code(cells []Cell) []string {
	var sources []string
	for _, c := range cells {
		if c.Executable() {
			sources = append(sources, c.Source)
		}
	}
	return sources
}

func newCell(lines []string) (Cell, bool) {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	if start == end {
		return Cell{}, false
	}

	kind := KindCode
	out := make([]string, 0, end-start)
	for _, line := range lines[start:end] {
		switch {
		case strings.HasPrefix(line, markdownComment):
			line = strings.TrimPrefix(line, markdownComment)
			kind = KindMarkdown
		case strings.HasPrefix(line, commandComment):
			line = strings.TrimPrefix(line, commandComment)
		}
		out = append(out, line)
	}
	return Cell{Kind: kind, Source: strings.Join(out, "\n")}, true
}
