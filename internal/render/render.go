package render

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/wdalert/alertd/internal/types"
)

// DefaultTag is the leading bracket of every rendered header
const DefaultTag = "RustWatchdog"

// IdentityField is the alert field shown in the header when identity is enabled
const IdentityField = "identity"

var redactedKeyParts = []string{"password", "token"}

// Options configures a Renderer
type Options struct {
	Tag             string
	Hostname        string
	IncludeHost     bool
	IncludeIdentity bool
}

// Renderer turns alerts into plain text messages
type Renderer struct {
	opts Options
}

// New creates a renderer. An empty hostname is resolved from the OS once.
func New(opts Options) *Renderer {
	if opts.Tag == "" {
		opts.Tag = DefaultTag
	}
	if opts.IncludeHost && opts.Hostname == "" {
		if host, err := os.Hostname(); err == nil {
			opts.Hostname = host
		}
	}
	return &Renderer{opts: opts}
}

// Render formats an alert. Output is deterministic for a given alert and options.
func (r *Renderer) Render(a types.Alert) string {
	var head strings.Builder
	head.WriteString("[" + r.opts.Tag + "]")

	if r.opts.IncludeIdentity {
		if v, ok := a.Field(IdentityField); ok && v != nil {
			if id := fmt.Sprint(v); id != "" {
				head.WriteString("[" + id + "]")
			}
		}
	}
	if r.opts.IncludeHost && r.opts.Hostname != "" {
		head.WriteString("[" + r.opts.Hostname + "]")
	}
	fmt.Fprintf(&head, " %s: %s", a.Level, a.Title)

	lines := []string{head.String(), a.Text}
	if fl := fieldsLine(a.Fields()); fl != "" {
		lines = append(lines, fl)
	}
	return strings.Join(lines, "\n")
}

func fieldsLine(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == nil || Redacted(k) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + formatValue(fields[k])
	}
	return "fields: " + strings.Join(parts, " ")
}

// formatValue prints scalars in the watchdog's established field format:
// booleans as True/False, integral floats with a trailing ".0".
func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(x, 64)
	case float32:
		return formatFloat(float64(x), 32)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func formatFloat(f float64, bits int) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e16 {
		return strconv.FormatFloat(f, 'f', -1, bits) + ".0"
	}
	return strconv.FormatFloat(f, 'g', -1, bits)
}

// Redacted reports whether a field key must never be rendered
func Redacted(key string) bool {
	lower := strings.ToLower(key)
	for _, part := range redactedKeyParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}
