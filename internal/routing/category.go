// Package routing maps a record's declared type to the archive category it is stored under.
package routing

// Fixed categories for records that carry no type tag of their own
const (
	CategoryNotifications = "notifications"
	CategoryActions       = "actions"
)

// Table is an immutable type tag to category lookup, safe for concurrent reads
type Table struct {
	categories map[string]string
}

// NewTable copies mapping into a new Table. Later changes to mapping are not observed
func NewTable(mapping map[string]string) Table {
	categories := make(map[string]string, len(mapping))
	for tag, category := range mapping {
		categories[tag] = category
	}
	return Table{categories: categories}
}

// DefaultTable holds the form types the archive accepts
func DefaultTable() Table {
	return NewTable(map[string]string{
		"formr-a": "part-a",
		"formr-b": "part-b",
		"ltft":    "ltft",
	})
}

// Resolve returns the category for typeTag. ok is false for unsupported tags,
// which callers treat as "skip this record" rather than an error
func (t Table) Resolve(typeTag string) (category string, ok bool) {
	category, ok = t.categories[typeTag]
	return category, ok
}
