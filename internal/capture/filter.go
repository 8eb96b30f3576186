package capture

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher holds compiled ignore patterns. A pattern is a plain substring,
// "re:<regexp>", or "glob:<pattern>".
type Matcher struct {
	substrings []string
	regexps    []*regexp.Regexp
	globs      []glob.Glob
}

// CompilePatterns builds a Matcher. Patterns that fail to compile are logged
// and skipped.
func CompilePatterns(patterns []string, logger *slog.Logger) *Matcher {
	m := &Matcher{}
	for _, p := range patterns {
		switch {
		case p == "":
		case strings.HasPrefix(p, "re:"):
			re, err := regexp.Compile(strings.TrimPrefix(p, "re:"))
			if err != nil {
				logger.Warn("capture: invalid ignore pattern", "pattern", p, "error", err)
				continue
			}
			m.regexps = append(m.regexps, re)
		case strings.HasPrefix(p, "glob:"):
			g, err := glob.Compile(strings.TrimPrefix(p, "glob:"))
			if err != nil {
				logger.Warn("capture: invalid ignore pattern", "pattern", p, "error", err)
				continue
			}
			m.globs = append(m.globs, g)
		default:
			m.substrings = append(m.substrings, p)
		}
	}
	return m
}

// Match reports whether any non-empty value matches any pattern.
func (m *Matcher) Match(values ...string) bool {
	if m == nil {
		return false
	}
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, s := range m.substrings {
			if strings.Contains(v, s) {
				return true
			}
		}
		for _, re := range m.regexps {
			if re.MatchString(v) {
				return true
			}
		}
		for _, g := range m.globs {
			if g.Match(v) {
				return true
			}
		}
	}
	return false
}

// Empty reports whether the matcher has no patterns.
func (m *Matcher) Empty() bool {
	return m == nil || len(m.substrings)+len(m.regexps)+len(m.globs) == 0
}
