package catalog

import (
	"sort"
	"strconv"
)

// Canonical leading columns for symbol records. Catalog extras follow in
// sorted order so every batch produced from the same catalog shares one
// column layout.
var canonicalColumns = []string{"symbol", "description", "exchange", "securityType"}

// Record is one symbol entry as returned by the catalog, flattened to
// string fields.
type Record map[string]string

// Symbol returns the identity key of the record.
func (r Record) Symbol() string {
	return r["symbol"]
}

// Page is one response of the paginated symbol search.
type Page struct {
	// Records in catalog order.
	Records []Record

	// Columns is the deterministic column layout covering every field
	// present in Records.
	Columns []string

	// NextKey is the opaque continuation cursor. Empty means the catalog
	// is exhausted.
	NextKey string

	// HasMore mirrors the catalog's own continuation flag.
	HasMore bool

	// TotalFound is the catalog-reported total symbol count. Only the
	// first page is guaranteed to carry it.
	TotalFound int
}

// Empty reports whether the page carries no records.
func (p *Page) Empty() bool {
	return len(p.Records) == 0
}

// Done reports whether pagination is exhausted after this page.
func (p *Page) Done() bool {
	return !p.HasMore || p.NextKey == ""
}

// Rows projects the page's records onto its column layout, one CSV row per
// record. Missing fields become empty cells.
func (p *Page) Rows() [][]string {
	rows := make([][]string, len(p.Records))
	for i, rec := range p.Records {
		row := make([]string, len(p.Columns))
		for j, col := range p.Columns {
			row[j] = rec[col]
		}
		rows[i] = row
	}
	return rows
}

// Categories lists the exchange and security type dimensions the catalog
// can filter on.
type Categories struct {
	Exchanges     []string
	SecurityTypes []string
}

// columnsFor computes the deterministic column layout for a set of records:
// canonical columns first (when present), then remaining fields sorted.
func columnsFor(records []Record) []string {
	seen := make(map[string]bool)
	for _, rec := range records {
		for k := range rec {
			seen[k] = true
		}
	}

	columns := make([]string, 0, len(seen))
	for _, col := range canonicalColumns {
		if seen[col] {
			columns = append(columns, col)
			delete(seen, col)
		}
	}

	extras := make([]string, 0, len(seen))
	for k := range seen {
		extras = append(extras, k)
	}
	sort.Strings(extras)

	return append(columns, extras...)
}

// stringify converts a decoded JSON value to its string field form.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		// JSON numbers decode as float64; keep integers free of a
		// trailing ".0" so symbol metadata round-trips through CSV.
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
