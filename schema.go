package epsilon

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// SchemaRow locates one value, or one run of alignment padding, in a
// serialized stream.
type SchemaRow struct {
	Field  string `yaml:"field"`
	Type   string `yaml:"type"`
	Offset int    `yaml:"offset"`
	Size   int    `yaml:"size"`
	Align  int    `yaml:"align"`
}

// Schema is the layout recorded by SerializeWithSchema, in the order the
// values were visited. Offsets count from the first header byte.
type Schema struct {
	Rows []SchemaRow `yaml:"rows"`
}

// CSV renders the schema with a header line.
func (s *Schema) CSV() string {
	lines := lo.Map(s.Rows, func(r SchemaRow, _ int) string {
		return strings.Join([]string{
			r.Field, r.Type, strconv.Itoa(r.Offset), strconv.Itoa(r.Size), strconv.Itoa(r.Align),
		}, ",")
	})
	return "field,type,offset,size,align\n" + strings.Join(lines, "\n") + "\n"
}

// YAML renders the schema as a YAML document.
func (s *Schema) YAML() ([]byte, error) {
	return yaml.Marshal(s)
}

// Debug pairs every row with the bytes it covers in data, sorted by
// offset. At most 16 bytes per row are shown.
func (s *Schema) Debug(data []byte) string {
	rows := slices.Clone(s.Rows)
	slices.SortStableFunc(rows, func(a, b SchemaRow) int { return a.Offset - b.Offset })
	var sb strings.Builder
	for _, r := range rows {
		end := min(r.Offset+r.Size, len(data), r.Offset+16)
		var raw string
		if r.Offset < end {
			raw = hex.EncodeToString(data[r.Offset:end])
		}
		fmt.Fprintf(&sb, "%8d %6d %3d  %-32s %-24s %s\n", r.Offset, r.Size, r.Align, r.Field, r.Type, raw)
	}
	return sb.String()
}

// Fields returns the rows that describe values, leaving out padding.
func (s *Schema) Fields() []SchemaRow {
	return lo.Filter(s.Rows, func(r SchemaRow, _ int) bool { return r.Field != "PADDING" })
}
