package core

import (
	"fmt"
	"strings"
)

// blockMarker is the first cell of the row that starts a block.
const blockMarker = "Object type"

type fileRow struct {
	line  int
	cells []string
}

// rawBlock is a block as found in the file, before its header is checked.
type rawBlock struct {
	name   string
	line   int
	header []string
	rows   []fileRow
}

// splitBlocks groups file rows into blocks. Rows that belong to no block
// produce a warning.
func splitBlocks(rows [][]string) ([]*rawBlock, []Diagnostic) {
	var (
		blocks       []*rawBlock
		warnings     []Diagnostic
		cur          *rawBlock
		expectHeader bool
	)

	for i, row := range rows {
		line := i + 1
		if isBlankRow(row) {
			continue
		}
		first := CleanCell(row[0])
		switch {
		case strings.EqualFold(first, blockMarker):
			expectHeader = true
			cur = nil
		case expectHeader:
			cur = &rawBlock{name: strings.TrimSuffix(first, "*"), line: line, header: row}
			blocks = append(blocks, cur)
			expectHeader = false
		case first == "" && cur != nil:
			cur.rows = append(cur.rows, fileRow{line: line, cells: row})
		default:
			warnings = append(warnings, Warnf(CodeIgnoredRow, line, ""))
		}
	}
	return blocks, warnings
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// block is a block whose header matched an object definition.
type block struct {
	def      ObjectDefinition
	line     int
	columns  []string // header cell index to column key; "" for ignored cells
	handlers []ColumnHandler
	seen     map[string]int // lowercased code to the line that first used it
	errors   []Diagnostic
	warnings []Diagnostic
}

// newBlock checks the header of rb against def. Unknown columns are warned
// about and skipped; duplicate and missing mandatory columns are errors that
// reject the whole block.
func newBlock(def ObjectDefinition, rb *rawBlock) (*block, error) {
	b := &block{
		def:     def,
		line:    rb.line,
		columns: make([]string, len(rb.header)),
		seen:    make(map[string]int),
	}

	present := make(map[string]bool)
	var hs []ColumnHandler
	for i := 1; i < len(rb.header); i++ {
		name := CleanCell(rb.header[i])
		if name == "" {
			continue
		}
		col, ok := def.MatchColumn(name)
		if !ok {
			b.warnings = append(b.warnings, Warnf(CodeUnknownColumn, rb.line, "", name))
			continue
		}
		if present[col.Key] {
			b.errors = append(b.errors, Errorf(CodeDuplicateColumn, rb.line, col.Key, name))
			continue
		}
		h, ok := HandlerFor(def.TypeName, col)
		if !ok {
			b.warnings = append(b.warnings, Warnf(CodeUnknownColumn, rb.line, col.Key, name))
			continue
		}
		present[col.Key] = true
		b.columns[i] = col.Key
		hs = append(hs, h)
	}

	for _, col := range def.MandatoryColumns() {
		if !present[col.Key] {
			b.errors = append(b.errors, Errorf(CodeMissingColumn, rb.line, col.Key, col.DisplayName))
		}
	}

	ordered, err := orderHandlers(hs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", def.Name, err)
	}
	b.handlers = ordered
	return b, nil
}

// cells maps a data row onto column keys. Short rows are padded with empty
// cells.
func (b *block) cells(row fileRow) map[string]string {
	m := make(map[string]string, len(b.handlers))
	for i, key := range b.columns {
		if key == "" {
			continue
		}
		v := ""
		if i < len(row.cells) {
			v = row.cells[i]
		}
		m[key] = v
	}
	return m
}
