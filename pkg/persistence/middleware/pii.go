package middleware

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/ports"
)

// Mask replaces redacted metadata values.
const Mask = "***"

type piiMiddleware struct {
	next     ports.AuditLog
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks audit metadata values
// whose keys match any of the patterns. Nested maps are walked.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns, err := CompilePatterns(patternStrings)
	if err != nil {
		return nil, err
	}
	return func(next ports.AuditLog) ports.AuditLog {
		return &piiMiddleware{next: next, patterns: patterns}
	}, nil
}

// CompilePatterns compiles redaction key patterns, reporting every invalid one.
func CompilePatterns(patternStrings []string) ([]*regexp.Regexp, error) {
	patterns := make([]*regexp.Regexp, 0, len(patternStrings))
	var errs []error
	for _, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("redaction pattern %q: %w", p, err))
			continue
		}
		patterns = append(patterns, re)
	}
	return patterns, errors.Join(errs...)
}

func (m *piiMiddleware) Append(ctx context.Context, record domain.AuditRecord) error {
	// The caller keeps its copy of the metadata untouched.
	record.Metadata = domain.CloneMap(record.Metadata)
	maskMap(record.Metadata, m.patterns)
	return m.next.Append(ctx, record)
}

func (m *piiMiddleware) List(ctx context.Context, entityID string) ([]domain.AuditRecord, error) {
	return m.next.List(ctx, entityID)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		if matchesAny(k, patterns) {
			m[k] = Mask
			continue
		}
		switch val := v.(type) {
		case map[string]any:
			maskMap(val, patterns)
		case []any:
			for _, item := range val {
				if sub, ok := item.(map[string]any); ok {
					maskMap(sub, patterns)
				}
			}
		}
	}
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
