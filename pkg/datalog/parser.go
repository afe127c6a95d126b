package datalog

import (
	"fmt"
	"strings"
	"unicode"
)

// Clause is a positive Horn clause: Head holds when every Body fact holds.
type Clause struct {
	Head string
	Body []string
}

// String renders the clause back into "head :- b1, b2." form.
func (c Clause) String() string {
	return fmt.Sprintf("%s :- %s.", c.Head, strings.Join(c.Body, ", "))
}

// ParseClause parses a rule written as "consequence :- cond1, cond2."
// Only conjunctions of positive facts are accepted.
func ParseClause(src string) (Clause, error) {
	src = strings.TrimSpace(src)
	idx := strings.Index(src, ":-")
	if idx == -1 {
		return Clause{}, fmt.Errorf("expected format 'head :- body' but got '%s'", src)
	}

	head, err := parseFact(src[:idx])
	if err != nil {
		return Clause{}, fmt.Errorf("invalid head: %w", err)
	}

	body, err := ParseFacts(src[idx+2:])
	if err != nil {
		return Clause{}, fmt.Errorf("invalid body of '%s': %w", head, err)
	}
	for _, b := range body {
		if b == head {
			return Clause{}, fmt.Errorf("clause '%s' lists its head in its own body", head)
		}
	}

	return Clause{Head: head, Body: body}, nil
}

// ParseFacts parses a comma separated list of fact identifiers such as
// `port_22_open, "password_auth_enabled".` and returns them in order.
// Duplicates are kept; callers decide how to treat them.
func ParseFacts(src string) ([]string, error) {
	src = strings.TrimSpace(src)
	// Remove trailing dot and leading ? (query form)
	src = strings.TrimSuffix(src, ".")
	src = strings.TrimPrefix(src, "?")

	raw := SmartSplit(src)
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty fact list")
	}

	facts := make([]string, 0, len(raw))
	for _, r := range raw {
		f, err := parseFact(r)
		if err != nil {
			return nil, err
		}
		facts = append(facts, f)
	}
	return facts, nil
}

// parseFact strips quotes and checks that s is a single bare identifier.
func parseFact(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'")
	if s == "" {
		return "", fmt.Errorf("empty fact")
	}
	for _, r := range s {
		if unicode.IsSpace(r) || strings.ContainsRune("(),:", r) {
			return "", fmt.Errorf("invalid character %q in fact '%s'", r, s)
		}
	}
	return s, nil
}

// SmartSplit splits a string by comma, correctly handling quotes and parentheses.
// e.g. "a, b, 'c,d'" -> ["a", "b", "'c,d'"]
func SmartSplit(s string) []string {
	var results []string
	var current strings.Builder
	depth := 0
	inQuote := false
	var quoteChar rune
	// A separator as the last rune still closes an (empty) field.
	lastSep := false

	for _, r := range s {
		lastSep = false
		switch r {
		case '"', '\'':
			if inQuote {
				if r == quoteChar {
					inQuote = false // Close quote
				}
			} else {
				inQuote = true
				quoteChar = r
			}
			current.WriteRune(r)
		case '(':
			if !inQuote {
				depth++
			}
			current.WriteRune(r)
		case ')':
			if !inQuote {
				depth--
			}
			current.WriteRune(r)
		case ',':
			if !inQuote && depth == 0 {
				results = append(results, strings.TrimSpace(current.String()))
				current.Reset()
				lastSep = true
				continue
			}
			current.WriteRune(r)
		default:
			current.WriteRune(r)
		}
	}
	if current.Len() > 0 || lastSep {
		results = append(results, strings.TrimSpace(current.String()))
	}
	return results
}
