package prober

import (
	"fmt"
	"strings"
)

const maxSlugLen = 80

// Slug turns a page path into a file-name-safe name:
// "/admin/staff-unified" becomes "admin-staff-unified" and "/" becomes
// "root". The mapping is deterministic.
func Slug(path string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(path) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}

	s := b.String()
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		return "root"
	}
	return s
}

// shotNames hands out distinct screenshot names within one run.
type shotNames map[string]bool

// reserve returns slug, or slug-2, slug-3... if it was already taken.
func (n shotNames) reserve(slug string) string {
	name := slug
	for i := 2; n[name]; i++ {
		name = fmt.Sprintf("%s-%d", slug, i)
	}
	n[name] = true
	return name
}
