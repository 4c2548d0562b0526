// Package catalog holds the reference list of official product names that raw
// listing names are resolved against.
package catalog

import "strings"

// defaultEntries is the built-in catalog. Each product appears in a single size so
// that size variants never score as two distinct matches for one listing.
var defaultEntries = []string{
	// Làm sạch
	"Nước tẩy trang sen Hậu Giang 140ml",
	"Nước tẩy trang bí đao 500ml",
	"Gel rửa mặt bí đao 140ml",
	"Sữa rửa mặt nghệ Hưng Yên 140ml",
	"Tẩy da chết mặt cà phê Đắk Lắk 150ml",
	// Dưỡng da
	"Nước bí đao cân bằng da 310ml",
	"Nước hoa hồng Cocoon 140ml",
	"Serum bí đao 70ml",
	"Tinh chất nghệ Hưng Yên 30ml",
	"Gel bí đao giảm mụn 30ml",
	"Mặt nạ nghệ Hưng Yên 30ml",
	"Kem chống nắng bí đao 50ml",
	// Tóc
	"Dầu gội bưởi 310ml",
	"Dầu xả bưởi 310ml",
	"Nước dưỡng tóc tinh dầu bưởi 140ml",
	// Cơ thể
	"Tẩy da chết cơ thể cà phê Đắk Lắk 200ml",
	"Sữa tắm cà phê Đắk Lắk 500ml",
	"Son dưỡng dầu dừa Bến Tre 5g",
}

// Catalog is an ordered, de-duplicated list of canonical product names
type Catalog struct {
	entries []string
	index   map[string]bool
}

// New builds a catalog from the given names, trimming blanks and dropping duplicates.
// An empty list yields the built-in catalog.
func New(entries []string) *Catalog {
	c := &Catalog{index: make(map[string]bool)}
	for _, e := range entries {
		c.add(e)
	}
	if len(c.entries) == 0 {
		for _, e := range defaultEntries {
			c.add(e)
		}
	}
	return c
}

// Default returns the built-in catalog
func Default() *Catalog {
	return New(nil)
}

func (c *Catalog) add(name string) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" || c.index[name] {
		return
	}
	c.index[name] = true
	c.entries = append(c.entries, name)
}

// Entries returns a copy of the catalog names in their configured order
func (c *Catalog) Entries() []string {
	out := make([]string, len(c.entries))
	copy(out, c.entries)
	return out
}

// Contains reports whether name is an exact catalog entry
func (c *Catalog) Contains(name string) bool {
	return c.index[name]
}

// Len returns the number of entries
func (c *Catalog) Len() int {
	return len(c.entries)
}
