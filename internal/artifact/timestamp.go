package artifact

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/sells-group/workbench/internal/model"
)

// Agents have written timestamps in a few shapes over time. Every shape is
// zero-padded so that, within one shape, string order equals time order.
var compactLayouts = []string{
	"20060102T150405Z",
	"20060102T150405",
	"20060102",
	"2006-01-02",
}

var (
	isoDashed  = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})T(\d{2})-(\d{2})-(\d{2})(?:-(\d{3}))?Z$`)
	dateMillis = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}-(\d{13})$`)
)

// ParseTimestamp parses the embedded timestamp portion of an artifact filename.
func ParseTimestamp(ts string) (time.Time, bool) {
	for _, layout := range compactLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t.UTC(), true
		}
	}
	if m := isoDashed.FindStringSubmatch(ts); m != nil {
		frac := m[5]
		if frac == "" {
			frac = "000"
		}
		t, err := time.Parse(time.RFC3339Nano, m[1]+"T"+m[2]+":"+m[3]+":"+m[4]+"."+frac+"Z")
		if err == nil {
			return t.UTC(), true
		}
	}
	if m := dateMillis.FindStringSubmatch(ts); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// FormatTimestamp renders t in the canonical filename layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

// Filename builds the canonical filename for a new artifact of category c.
func Filename(c model.Category, t time.Time) string {
	return c.Prefix + "-" + FormatTimestamp(t) + c.Ext
}

// timestampPart extracts <ts> from "<prefix>-<ts><ext>". The second result is
// false when the name does not belong to the category.
func timestampPart(c model.Category, name string) (string, bool) {
	head := c.Prefix + "-"
	if !strings.HasPrefix(name, head) || !strings.HasSuffix(name, c.Ext) {
		return "", false
	}
	ts := strings.TrimSuffix(strings.TrimPrefix(name, head), c.Ext)
	if ts == "" {
		return "", false
	}
	return ts, true
}
