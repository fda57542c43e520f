package recovery

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// Strategy names, in ladder order.
const (
	StrategyDirect    = "direct"
	StrategyScrub     = "scrub"
	StrategyNormalize = "normalize"
	StrategyReescape  = "reescape"
	StrategySalvage   = "salvage"
)

// Strategy is one rung of the recovery ladder. Apply returns false when the
// strategy has nothing to contribute for the given text.
type Strategy struct {
	Name string
	// FromExtracted feeds the strategy the extracted text instead of the
	// previous strategy's output.
	FromExtracted bool
	Degraded      bool
	Apply         func(text string) (string, bool)
}

func (p *Pipeline) ladder() []Strategy {
	strategies := []Strategy{
		{Name: StrategyDirect, FromExtracted: true, Apply: identity},
		{Name: StrategyScrub, FromExtracted: true, Apply: scrubControl},
		{Name: StrategyNormalize, FromExtracted: true, Apply: normalizeWhitespace},
	}
	if len(p.escapeFields) > 0 {
		strategies = append(strategies, Strategy{
			Name:  StrategyReescape,
			Apply: reescapeFields(p.escapeFields),
		})
	}
	if p.summaryFallback {
		strategies = append(strategies, Strategy{
			Name:     StrategySalvage,
			Degraded: true,
			Apply:    salvageSummary,
		})
	}
	return strategies
}

var (
	fencedObject = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	greedyObject = regexp.MustCompile(`(?s)\{.*\}`)
	whitespace   = regexp.MustCompile(`\s+`)
	bareSummary  = regexp.MustCompile(`"summary"\s*:\s*"([^"]+)"`)
)

// Extract narrows raw output to its most likely JSON object: the body of a
// fenced block, else the span from the first '{' to the last '}', else raw.
func Extract(raw string) string {
	if m := fencedObject.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if span := greedyObject.FindString(raw); span != "" {
		return span
	}
	return raw
}

func identity(text string) (string, bool) {
	return text, true
}

// scrubControl keeps printable characters plus space, tab, LF and CR. Other
// characters below 0x20 become a space and the remaining non-printables are dropped.
func scrubControl(text string) (string, bool) {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsPrint(r), r == '\n', r == '\t', r == '\r':
			b.WriteRune(r)
		case r < 0x20:
			b.WriteByte(' ')
		}
	}
	return b.String(), true
}

// normalizeWhitespace drops every non-printable character except space, then
// collapses whitespace runs.
func normalizeWhitespace(text string) (string, bool) {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsPrint(r) {
			b.WriteRune(r)
		}
	}
	cleaned := strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(b.String())
	return whitespace.ReplaceAllString(cleaned, " "), true
}

func fieldValuePattern(field string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)"` + regexp.QuoteMeta(field) + `"\s*:\s*"([^"\\]*(?:\\.[^"\\]*)*)"`)
}

// reescapeFields repairs the string values of the named fields in place. It
// reports false when no value needed repair.
func reescapeFields(fields []string) func(string) (string, bool) {
	patterns := make([]*regexp.Regexp, 0, len(fields))
	for _, field := range fields {
		patterns = append(patterns, fieldValuePattern(field))
	}
	return func(text string) (string, bool) {
		type splice struct {
			start, end int
			value      string
		}
		var splices []splice
		for _, re := range patterns {
			for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
				value := text[loc[2]:loc[3]]
				escaped := escapeJSONString(value)
				if escaped != value {
					splices = append(splices, splice{start: loc[2], end: loc[3], value: escaped})
				}
			}
		}
		if len(splices) == 0 {
			return text, false
		}
		sort.Slice(splices, func(i, j int) bool { return splices[i].start > splices[j].start })
		out := text
		for _, s := range splices {
			out = out[:s.start] + s.value + out[s.end:]
		}
		return out, true
	}
}

// escapeJSONString escapes control characters and lone backslashes while
// keeping escape sequences that are already valid JSON.
func escapeJSONString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\':
			if n := validEscapeLength(s[i:]); n > 0 {
				b.WriteString(s[i : i+n])
				i += n - 1
				continue
			}
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\r':
			b.WriteString(`\r`)
		case c == '\t':
			b.WriteString(`\t`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// validEscapeLength returns the length of the JSON escape sequence at the
// start of s, or 0 if s does not start with one.
func validEscapeLength(s string) int {
	if len(s) < 2 || s[0] != '\\' {
		return 0
	}
	switch s[1] {
	case '"', '\\', '/', 'b', 'f', 'n', 'r', 't':
		return 2
	case 'u':
		if len(s) < 6 {
			return 0
		}
		for _, h := range s[2:6] {
			if !unicode.Is(unicode.ASCII_Hex_Digit, h) {
				return 0
			}
		}
		return 6
	}
	return 0
}

// salvageSummary synthesizes {"summary": ...} from the first bare summary value.
func salvageSummary(text string) (string, bool) {
	m := bareSummary.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	summary := m[1]
	var decoded string
	if err := json.Unmarshal([]byte(`"`+summary+`"`), &decoded); err == nil {
		summary = decoded
	}
	out, err := json.Marshal(map[string]string{"summary": summary})
	if err != nil {
		return "", false
	}
	return string(out), true
}
