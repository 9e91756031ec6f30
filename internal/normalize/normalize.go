// Package normalize turns an arbitrary serialized payload into canonical
// rows plus a column schema. The fallback chain has a fixed priority and
// stops at the first decoder that succeeds; a payload that no decoder accepts
// is a FormatError, never a partial result.
package normalize

import (
	"bytes"
	"encoding/base64"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// FormatError means the payload could not be interpreted as tabular data.
// It is fatal for the upload and surfaced synchronously at submit time.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "unrecognized payload format: " + e.Reason
}

func formatErrorf(format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...)}
}

// Table is the canonical result of normalization: the fixed column schema
// plus one map per input row. Unresolved columns hold empty strings, never
// null.
type Table struct {
	Columns []string
	Rows    []map[string]string
}

// Normalize runs the fallback chain over an opaque payload:
//
//	[]byte  -> spreadsheet, then delimited text
//	map     -> its "data" list if present, else generic coercion
//	[]any   -> list of row objects
//	string  -> JSON, then base64, then delimited text
//
// Anything else is a FormatError.
func Normalize(payload any) (*Table, error) {
	switch v := payload.(type) {
	case []byte:
		return fromBytes(v)
	case map[string]any:
		return fromMapping(v)
	case []any:
		return fromList(v)
	case string:
		return fromString(v)
	default:
		return nil, formatErrorf("unsupported payload type %T", payload)
	}
}

func fromBytes(b []byte) (*Table, error) {
	if len(b) == 0 {
		return nil, formatErrorf("empty payload")
	}
	if t, err := decodeSpreadsheet(b); err == nil {
		return t, nil
	}
	if t, err := decodeDelimited(b); err == nil {
		return t, nil
	}
	return nil, formatErrorf("bytes are neither a spreadsheet nor delimited text")
}

func fromMapping(m map[string]any) (*Table, error) {
	if d, ok := m["data"]; ok {
		if list, ok := d.([]any); ok {
			return fromList(list)
		}
	}
	return coerceMapping(m)
}

func fromString(s string) (*Table, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, formatErrorf("empty payload")
	}

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			switch parsed := v.(type) {
			case map[string]any:
				return fromMapping(parsed)
			case []any:
				return fromList(parsed)
			case string:
				return fromString(parsed)
			}
			return nil, formatErrorf("JSON payload is not an object or array")
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil {
		if t, err := fromBytes(decoded); err == nil {
			return t, nil
		}
	}

	if t, err := decodeDelimitedString(trimmed); err == nil {
		return t, nil
	}
	return nil, formatErrorf("string is not JSON, base64 or delimited text")
}

// fromList accepts a list of row objects. Header order is the sorted union of
// keys, which keeps the result deterministic regardless of map iteration.
func fromList(list []any) (*Table, error) {
	if len(list) == 0 {
		return nil, formatErrorf("row list is empty")
	}
	keySet := make(map[string]bool)
	rawRows := make([]map[string]string, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, formatErrorf("row %d is not an object", i)
		}
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			keySet[k] = true
			row[k] = stringify(v)
		}
		rawRows = append(rawRows, row)
	}
	headers := make([]string, 0, len(keySet))
	for k := range keySet {
		headers = append(headers, k)
	}
	sort.Strings(headers)
	return mapColumns(headers, rawRows)
}

// coerceMapping handles mappings without a "data" list: a mapping of equal
// shape lists is treated as column-oriented data, anything else as a single
// row. Keys are sorted for determinism.
func coerceMapping(m map[string]any) (*Table, error) {
	if len(m) == 0 {
		return nil, formatErrorf("mapping is empty")
	}
	headers := make([]string, 0, len(m))
	for k := range m {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	columnar := true
	rowCount := -1
	for _, k := range headers {
		list, ok := m[k].([]any)
		if !ok {
			columnar = false
			break
		}
		if rowCount == -1 {
			rowCount = len(list)
		} else if len(list) != rowCount {
			columnar = false
			break
		}
	}

	if columnar && rowCount > 0 {
		rawRows := make([]map[string]string, rowCount)
		for i := range rawRows {
			row := make(map[string]string, len(headers))
			for _, k := range headers {
				row[k] = stringify(m[k].([]any)[i])
			}
			rawRows[i] = row
		}
		return mapColumns(headers, rawRows)
	}

	// Single-record mapping.
	row := make(map[string]string, len(headers))
	for _, k := range headers {
		row[k] = stringify(m[k])
	}
	return mapColumns(headers, []map[string]string{row})
}

func decodeSpreadsheet(b []byte) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, err
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet has no data rows")
	}
	headers := rows[0]
	rawRows := make([]map[string]string, 0, len(rows)-1)
	for _, cells := range rows[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rawRows = append(rawRows, row)
	}
	return mapColumns(headers, rawRows)
}

func decodeDelimited(b []byte) (*Table, error) {
	if !utf8.Valid(b) {
		return nil, fmt.Errorf("payload is not valid text")
	}
	return decodeDelimitedString(string(b))
}

var delimiters = []rune{',', '\t', ';', '|'}

func sniffDelimiter(line string) (rune, error) {
	best := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		if n := strings.Count(line, string(d)); n > bestCount {
			best, bestCount = d, n
		}
	}
	if bestCount == 0 {
		return 0, fmt.Errorf("no delimiter found in header line")
	}
	return best, nil
}

func decodeDelimitedString(s string) (*Table, error) {
	s = strings.TrimSpace(s)
	firstLine := s
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		firstLine = s[:i]
	}
	delim, err := sniffDelimiter(firstLine)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(s))
	r.Comma = delim
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("delimited text has no data rows")
	}
	headers := records[0]
	rawRows := make([]map[string]string, 0, len(records)-1)
	for _, cells := range records[1:] {
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(cells) {
				row[h] = cells[i]
			} else {
				row[h] = ""
			}
		}
		rawRows = append(rawRows, row)
	}
	return mapColumns(headers, rawRows)
}

// mapColumns projects raw rows onto the canonical schema.
func mapColumns(headers []string, rawRows []map[string]string) (*Table, error) {
	if len(rawRows) == 0 {
		return nil, formatErrorf("payload has no rows")
	}
	resolved := resolveColumns(headers)
	rows := make([]map[string]string, 0, len(rawRows))
	for _, raw := range rawRows {
		row := make(map[string]string, len(Columns))
		for _, col := range Columns {
			h := resolved[col]
			if h == "" {
				row[col] = ""
			} else {
				row[col] = strings.TrimSpace(raw[h])
			}
		}
		rows = append(rows, row)
	}
	cols := make([]string, len(Columns))
	copy(cols, Columns)
	return &Table{Columns: cols, Rows: rows}, nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
