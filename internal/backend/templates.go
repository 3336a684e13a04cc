package backend

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// compiledTemplate is a message template split on its "{}" positional
// placeholders, computed once per distinct raw format string and
// reused on every subsequent record that shares it — the cached-split
// half of SPEC_FULL §5.12's named-args formatting rule, generalized to
// quillgo's positional placeholder syntax.
type compiledTemplate struct {
	segments []string // len(segments) == placeholderCount+1
}

func compileTemplate(format string) compiledTemplate {
	return compiledTemplate{segments: strings.Split(format, "{}")}
}

func (t compiledTemplate) render(args []any) string {
	var b strings.Builder
	for i, seg := range t.segments {
		b.WriteString(seg)
		if i < len(args) {
			fmt.Fprint(&b, args[i])
		}
	}
	return b.String()
}

// templateCache memoizes compileTemplate by the xxhash of the raw
// format string, so a call site logged millions of times only ever
// pays for one strings.Split.
type templateCache struct {
	mu    sync.Mutex
	byKey map[uint64]compiledTemplate
}

func newTemplateCache() *templateCache {
	return &templateCache{byKey: make(map[uint64]compiledTemplate)}
}

func (c *templateCache) render(format string, args []any) string {
	key := xxhash.Sum64String(format)

	c.mu.Lock()
	tmpl, ok := c.byKey[key]
	if !ok {
		tmpl = compileTemplate(format)
		c.byKey[key] = tmpl
	}
	c.mu.Unlock()

	return tmpl.render(args)
}

// sanitizeNonPrintable replaces any rune below 0x20 (other than space)
// and 0x7f with its escaped form, applied to message text only when a
// string argument was present and the option is enabled (SPEC_FULL
// §5.12, "non-printable sanitization").
func sanitizeNonPrintable(s string) string {
	var b strings.Builder
	dirty := false
	for _, r := range s {
		if (r < 0x20 && r != ' ') || r == 0x7f {
			dirty = true
			break
		}
	}
	if !dirty {
		return s
	}
	for _, r := range s {
		if (r < 0x20 && r != ' ') || r == 0x7f {
			fmt.Fprintf(&b, "\\x%02x", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
