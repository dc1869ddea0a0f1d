package routing

import (
	"fmt"
	"regexp"
	"strings"
)

// SegmentType distinguishes literal segments from placeholders
type SegmentType int

const (
	StaticSegment SegmentType = iota
	ParameterSegment
)

// Segment is one '/'-separated path segment or one legacy key=value query pair
type Segment struct {
	Type  SegmentType
	Key   string // query pairs only: the literal key
	Value string // literal text, or the placeholder name
}

// Template is a parsed path template such as /posts/{id}/comments
type Template struct {
	Raw          string
	Path         []Segment
	Query        []Segment // present only for legacy templates with a literal '?'
	Placeholders []string  // names in template order
	Legacy       bool
}

var placeholderPattern = regexp.MustCompile(`^\{(\w+)\}$`)

// segmentMatcher accepts exactly one path segment or query value
const segmentMatcher = `[^/?&]+`

// ParseTemplate splits a template into segments and validates its placeholders
func ParseTemplate(raw string) (Template, error) {
	t := Template{Raw: raw}

	path, query, legacy := strings.Cut(raw, "?")
	t.Legacy = legacy

	for _, part := range splitPath(path) {
		seg, err := parseSegment(part)
		if err != nil {
			return Template{}, fmt.Errorf("template '%s': %w", raw, err)
		}
		if seg.Type == ParameterSegment {
			t.Placeholders = append(t.Placeholders, seg.Value)
		}
		t.Path = append(t.Path, seg)
	}

	if legacy {
		for _, token := range strings.Split(query, "&") {
			key, value, _ := strings.Cut(token, "=")
			if strings.ContainsAny(key, "{}") {
				return Template{}, fmt.Errorf("template '%s': query key '%s' cannot be a placeholder", raw, key)
			}
			seg, err := parseSegment(value)
			if err != nil {
				return Template{}, fmt.Errorf("template '%s': %w", raw, err)
			}
			seg.Key = key
			if seg.Type == ParameterSegment {
				t.Placeholders = append(t.Placeholders, seg.Value)
			}
			t.Query = append(t.Query, seg)
		}
	}

	return t, nil
}

func parseSegment(part string) (Segment, error) {
	if m := placeholderPattern.FindStringSubmatch(part); m != nil {
		return Segment{Type: ParameterSegment, Value: m[1]}, nil
	}
	if strings.ContainsAny(part, "{}") {
		return Segment{}, fmt.Errorf("placeholder in '%s' must occupy the whole segment", part)
	}
	return Segment{Type: StaticSegment, Value: part}, nil
}

// splitPath drops the leading slash and splits on '/'
func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// IsPattern reports whether the template has placeholders
func (t Template) IsPattern() bool {
	return len(t.Placeholders) > 0
}

// Compile builds the anchored matcher for verb+template
func (t Template) Compile(verb string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString("^")
	b.WriteString(regexp.QuoteMeta(verb))
	if len(t.Path) == 0 {
		b.WriteString("/")
	}
	for _, seg := range t.Path {
		b.WriteString("/")
		writeSegment(&b, seg)
	}
	if t.Legacy {
		b.WriteString(regexp.QuoteMeta("?"))
		for i, seg := range t.Query {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString(regexp.QuoteMeta(seg.Key))
			b.WriteString("=")
			writeSegment(&b, seg)
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func writeSegment(b *strings.Builder, seg Segment) {
	if seg.Type == ParameterSegment {
		b.WriteString(segmentMatcher)
		return
	}
	b.WriteString(regexp.QuoteMeta(seg.Value))
}

// Extract collects placeholder values from a request already accepted by
// the compiled matcher. Values come back in template order.
//
// Legacy templates read query values by pairing consecutive key=value tokens
// of the raw query at the same positions as the template's pairs.
func (t Template) Extract(path, rawQuery string) []string {
	values := make([]string, 0, len(t.Placeholders))

	requestSegments := splitPath(path)
	for i, seg := range t.Path {
		if seg.Type == ParameterSegment && i < len(requestSegments) {
			values = append(values, requestSegments[i])
		}
	}

	if t.Legacy && rawQuery != "" {
		pairs := strings.Split(rawQuery, "&")
		for i, seg := range t.Query {
			if seg.Type != ParameterSegment || i >= len(pairs) {
				continue
			}
			_, value, _ := strings.Cut(pairs[i], "=")
			values = append(values, value)
		}
	}

	return values
}

// Join prepends a controller prefix to a route template
func Join(prefix, template string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	switch {
	case template == "" && prefix == "":
		return "/"
	case template == "":
		return prefix
	case template == "/" && prefix != "":
		return prefix
	}
	return prefix + template
}
