// Package catalog encodes part records the way the content repository stores them.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Focerqc/CLONEpubparts.xyz/internal/models"
)

const indent = "  "

// ErrMarkerNotFound is returned when the closing array delimiter cannot be located
var ErrMarkerNotFound = errors.New("closing array marker not found")

// EncodePart serializes one record as a standalone JSON document.
// HTML characters are not escaped so multi-byte and markup text stays readable in diffs.
func EncodePart(part models.PartRecord) ([]byte, error) {
	return encode(part, "")
}

// EncodeVocabulary serializes the category vocabulary file
func EncodeVocabulary(categories []string) ([]byte, error) {
	if categories == nil {
		categories = []string{}
	}
	return encode(categories, "")
}

// ParseVocabulary decodes the category vocabulary file
func ParseVocabulary(content []byte) ([]string, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	var categories []string
	if err := json.Unmarshal(content, &categories); err != nil {
		return nil, fmt.Errorf("invalid category vocabulary: %w", err)
	}
	return categories, nil
}

// ParsePart decodes a single record file
func ParsePart(content []byte) (models.PartRecord, error) {
	var part models.PartRecord
	if err := json.Unmarshal(content, &part); err != nil {
		return part, fmt.Errorf("invalid part record: %w", err)
	}
	return part, nil
}

// ParseArray decodes the catalog array. The file may wrap the array in source
// text (for example a TypeScript `const parts = [...] as ItemData[]`); the array
// is the span that closes at the last match of marker. Empty content is an empty catalog.
func ParseArray(content []byte, marker *regexp.Regexp) ([]models.PartRecord, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, nil
	}
	start, end, err := locateArray(content, marker)
	if err != nil {
		return nil, err
	}
	var parts []models.PartRecord
	if err := json.Unmarshal(content[start:end], &parts); err != nil {
		return nil, fmt.Errorf("invalid catalog array: %w", err)
	}
	return parts, nil
}

// EncodeArray serializes a whole catalog array as a standalone JSON document
func EncodeArray(parts []models.PartRecord) ([]byte, error) {
	if parts == nil {
		parts = []models.PartRecord{}
	}
	out, err := encode(parts, "")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// ReplaceArray re-encodes the array inside content with parts, keeping the text
// around it. Used when records are removed, since removal cannot be done by insertion alone.
func ReplaceArray(content []byte, marker *regexp.Regexp, parts []models.PartRecord) ([]byte, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return EncodeArray(parts)
	}
	start, end, err := locateArray(content, marker)
	if err != nil {
		return nil, err
	}
	if parts == nil {
		parts = []models.PartRecord{}
	}
	encoded, err := encode(parts, "")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(start + len(encoded) + len(content) - end)
	buf.Write(content[:start])
	buf.Write(encoded)
	buf.Write(content[end:])
	return buf.Bytes(), nil
}

// InsertIntoArray textually inserts parts right before the last match of marker,
// leaving every byte of the existing records untouched. Absent content starts a new array.
func InsertIntoArray(content []byte, marker *regexp.Regexp, parts []models.PartRecord) ([]byte, error) {
	if len(parts) == 0 {
		return content, nil
	}
	if len(bytes.TrimSpace(content)) == 0 {
		content = []byte("[]\n")
	}

	matches := marker.FindAllIndex(content, -1)
	if len(matches) == 0 {
		return nil, ErrMarkerNotFound
	}
	at := matches[len(matches)-1][0]

	head := bytes.TrimRight(content[:at], " \t\r\n")
	tail := content[at:]

	entries := make([][]byte, 0, len(parts))
	for _, part := range parts {
		encoded, err := encode(part, indent)
		if err != nil {
			return nil, err
		}
		entries = append(entries, append([]byte(indent), encoded...))
	}

	var buf bytes.Buffer
	buf.Grow(len(content) + len(parts)*512)
	buf.Write(head)
	if !bytes.HasSuffix(head, []byte("[")) {
		buf.WriteByte(',')
	}
	buf.WriteByte('\n')
	buf.Write(bytes.Join(entries, []byte(",\n")))
	buf.WriteByte('\n')
	buf.Write(tail)

	// A plain JSON file must stay one. Wrapped files are only checked through
	// the inserted entries, which the encoder already guarantees.
	out := buf.Bytes()
	if json.Valid(content) && !json.Valid(out) {
		return nil, fmt.Errorf("catalog is not a JSON array after insertion")
	}
	return out, nil
}

// locateArray returns the bounds of the JSON array closed by the last marker match.
// The closing bracket is the first ']' inside the match, or the last one before it.
// The opening bracket is the earliest '[' that makes the span valid JSON.
func locateArray(content []byte, marker *regexp.Regexp) (int, int, error) {
	matches := marker.FindAllIndex(content, -1)
	if len(matches) == 0 {
		return 0, 0, ErrMarkerNotFound
	}
	m := matches[len(matches)-1]

	closing := bytes.IndexByte(content[m[0]:m[1]], ']')
	if closing >= 0 {
		closing += m[0]
	} else {
		closing = bytes.LastIndexByte(content[:m[0]], ']')
	}
	if closing < 0 {
		return 0, 0, ErrMarkerNotFound
	}

	end := closing + 1
	for i := 0; i < closing; i++ {
		if content[i] == '[' && json.Valid(content[i:end]) {
			return i, end, nil
		}
	}
	return 0, 0, errors.New("invalid catalog array: no JSON array closes at the marker")
}

func encode(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Naming assigns fixed-width sequential file names such as part-0001.json
type Naming struct {
	Dir    string
	Prefix string
	Width  int

	pattern *regexp.Regexp
}

// NewNaming builds a Naming for files in dir
func NewNaming(dir, prefix string, width int) *Naming {
	if width < 1 {
		width = 4
	}
	return &Naming{
		Dir:     strings.TrimRight(dir, "/"),
		Prefix:  prefix,
		Width:   width,
		pattern: regexp.MustCompile(`^` + regexp.QuoteMeta(prefix) + `(\d+)\.json$`),
	}
}

// FileName returns the zero-padded name for id
func (n *Naming) FileName(id int) string {
	return fmt.Sprintf("%s%0*d.json", n.Prefix, n.Width, id)
}

// Path returns the repository path of the file for id
func (n *Naming) Path(id int) string {
	if n.Dir == "" {
		return n.FileName(id)
	}
	return n.Dir + "/" + n.FileName(id)
}

// PathOf joins a bare file name onto the content directory
func (n *Naming) PathOf(name string) string {
	if n.Dir == "" {
		return name
	}
	return n.Dir + "/" + name
}

// ParseID extracts the sequence number from a file name
func (n *Naming) ParseID(name string) (int, bool) {
	m := n.pattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// Matches reports whether name is a record file
func (n *Naming) Matches(name string) bool {
	_, ok := n.ParseID(name)
	return ok
}

// NextID returns one past the highest sequence number among names, 1 when there is none
func (n *Naming) NextID(names []string) int {
	highest := 0
	for _, name := range names {
		if id, ok := n.ParseID(name); ok && id > highest {
			highest = id
		}
	}
	return highest + 1
}

// ResolveName maps an admin-supplied identifier to a record file name.
// Accepted forms are a file name ("part-0012.json") or a bare number ("12", "0012").
func (n *Naming) ResolveName(identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", errors.New("empty identifier")
	}
	if strings.ContainsAny(identifier, `/\`) || strings.Contains(identifier, "..") {
		return "", fmt.Errorf("identifier %q must not contain a path", identifier)
	}
	if n.Matches(identifier) {
		return identifier, nil
	}
	if id, err := strconv.Atoi(identifier); err == nil && id > 0 {
		return n.FileName(id), nil
	}
	return "", fmt.Errorf("identifier %q is not a record file name or number", identifier)
}

// SortNames orders record file names by sequence number
func (n *Naming) SortNames(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		a, _ := n.ParseID(names[i])
		b, _ := n.ParseID(names[j])
		return a < b
	})
}
