/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

package sqlgen

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/syntrodata/batchstore/errors"
)

// Quoter renders identifiers and scalar values safely for the active SQL
// dialect. The batch layer never owns dialect-specific escaping; providers
// supply their own Quoter and AnsiQuoter is the portable default.
type Quoter interface {
	QuoteIdentifier(name string) string
	QuoteValue(v any) (string, error)
}

// AnsiQuoter quotes per the SQL standard: double-quoted identifiers with
// embedded quotes doubled, single-quoted literals with embedded quotes
// doubled and backslashes escaped.
type AnsiQuoter struct{}

func (AnsiQuoter) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (AnsiQuoter) QuoteValue(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return quoteString(tv), nil
	case bool:
		if tv {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", tv), nil
	case float32, float64:
		return fmt.Sprintf("%v", tv), nil
	case time.Time:
		return quoteString(tv.UTC().Format(time.RFC3339Nano)), nil
	case map[string]any, []any:
		data, err := json.Marshal(tv)
		if err != nil {
			return "", fmt.Errorf("failed to serialize JSON value: %w", err)
		}
		return quoteString(string(data)), nil
	default:
		data, err := json.Marshal(tv)
		if err != nil {
			return "", fmt.Errorf("unsupported value type %T", v)
		}
		return quoteString(string(data)), nil
	}
}

func quoteString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `''`)
	return "'" + s + "'"
}

// RowPatch is one row's key plus its changed columns.
type RowPatch struct {
	Key    any
	Fields map[string]any
}

// BuildCaseUpdate generates a single conditional UPDATE applying per-row
// differing values in one round trip:
//
//	UPDATE "users" SET
//	  "age" = CASE "id" WHEN 1 THEN 30 WHEN 2 THEN 41 ELSE "age" END
//	WHERE "id" IN (1, 2)
//
// Rows missing a column fall through to the ELSE branch and keep their
// current value. Column order is sorted for deterministic output.
func BuildCaseUpdate(q Quoter, table, keyColumn string, patches []RowPatch) (string, error) {
	if table == "" {
		return "", errors.NewInvalidArgumentError("table", "must not be empty")
	}
	if keyColumn == "" {
		return "", errors.NewInvalidArgumentError("keyColumn", "must not be empty")
	}
	if len(patches) == 0 {
		return "", errors.NewInvalidArgumentError("patches", "must not be empty")
	}

	columns := map[string]struct{}{}
	for _, p := range patches {
		if p.Key == nil {
			return "", errors.NewInvalidArgumentError("patches", "row patch missing key")
		}
		for col := range p.Fields {
			columns[col] = struct{}{}
		}
	}
	if len(columns) == 0 {
		return "", errors.NewInvalidArgumentError("patches", "no changed columns")
	}
	sorted := make([]string, 0, len(columns))
	for col := range columns {
		sorted = append(sorted, col)
	}
	sort.Strings(sorted)

	key := q.QuoteIdentifier(keyColumn)

	var sets []string
	for _, col := range sorted {
		ident := q.QuoteIdentifier(col)
		var b strings.Builder
		b.WriteString(ident)
		b.WriteString(" = CASE ")
		b.WriteString(key)
		for _, p := range patches {
			val, present := p.Fields[col]
			if !present {
				continue
			}
			quotedKey, err := q.QuoteValue(p.Key)
			if err != nil {
				return "", fmt.Errorf("failed to quote key %v: %w", p.Key, err)
			}
			quotedVal, err := q.QuoteValue(val)
			if err != nil {
				return "", fmt.Errorf("failed to quote value for column %q: %w", col, err)
			}
			b.WriteString(" WHEN ")
			b.WriteString(quotedKey)
			b.WriteString(" THEN ")
			b.WriteString(quotedVal)
		}
		b.WriteString(" ELSE ")
		b.WriteString(ident)
		b.WriteString(" END")
		sets = append(sets, b.String())
	}

	keys := make([]string, 0, len(patches))
	for _, p := range patches {
		quoted, err := q.QuoteValue(p.Key)
		if err != nil {
			return "", fmt.Errorf("failed to quote key %v: %w", p.Key, err)
		}
		keys = append(keys, quoted)
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s IN (%s)",
		q.QuoteIdentifier(table),
		strings.Join(sets, ", "),
		key,
		strings.Join(keys, ", "),
	)
	return stmt, nil
}
