package glob

import (
	"fmt"
	"strings"
)

// segmentKind classifies one compiled pattern segment.
type segmentKind uint8

const (
	// segLiteral matches one path component byte-for-byte.
	segLiteral segmentKind = iota
	// segWildcard matches one path component with "*", "?" and char classes.
	segWildcard
	// segDoubleStar matches zero or more whole path components.
	segDoubleStar
)

// segment is one compiled slash-separated pattern component.
type segment struct {
	text string
	kind segmentKind
}

// compiledPattern is the compiled form of one glob pattern.
type compiledPattern struct {
	// source is the original pattern string, kept for error reporting.
	source string
	// segments are slash-separated components, adjacent "**" collapsed.
	segments []segment
}

// Validate reports whether pattern is a syntactically well-formed glob.
func Validate(pattern string) error {
	_, err := compile(pattern)
	return err
}

// Match reports whether pattern matches the given root-relative path.
// The path is normalized to slash-separated clean relative form first.
func Match(pattern, path string) (bool, error) {
	cp, err := compile(pattern)
	if err != nil {
		return false, err
	}

	candidate := normalizePath(path)
	if candidate == "" {
		return false, nil
	}

	return cp.match(candidate), nil
}

// compile validates and compiles one pattern.
//
// Rules:
// - patterns are relative; leading "/" and ".." components are rejected
// - trailing "/" means "everything under" and compiles to a final "**"
// - adjacent "**" segments collapse to one
// - "**" inside a segment (e.g. "a**b") degrades to "*"
func compile(pattern string) (*compiledPattern, error) {
	raw := strings.TrimSpace(pattern)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty pattern", ErrMalformedPattern)
	}

	if strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("%w: %q: pattern must be relative to the root", ErrMalformedPattern, pattern)
	}

	dirOnly := strings.HasSuffix(raw, "/")
	raw = strings.TrimSuffix(raw, "/")
	raw = strings.TrimPrefix(raw, "./")
	if raw == "" {
		return nil, fmt.Errorf("%w: %q: empty after normalization", ErrMalformedPattern, pattern)
	}

	cp := &compiledPattern{source: pattern}
	for _, part := range strings.Split(raw, "/") {
		switch part {
		case "":
			return nil, fmt.Errorf("%w: %q: empty path segment", ErrMalformedPattern, pattern)
		case ".":
			continue
		case "..":
			return nil, fmt.Errorf("%w: %q: pattern may not traverse outside the root", ErrMalformedPattern, pattern)
		case "**":
			// Adjacent "**" segments collapse to one.
			if n := len(cp.segments); n > 0 && cp.segments[n-1].kind == segDoubleStar {
				continue
			}
			cp.segments = append(cp.segments, segment{text: part, kind: segDoubleStar})
			continue
		}

		if err := validateSegment(part); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrMalformedPattern, pattern, err)
		}

		kind := segLiteral
		if segmentHasGlobMeta(part) {
			kind = segWildcard
		}
		cp.segments = append(cp.segments, segment{text: part, kind: kind})
	}

	if len(cp.segments) == 0 {
		return nil, fmt.Errorf("%w: %q: no path segments", ErrMalformedPattern, pattern)
	}

	if dirOnly {
		// Trailing "/" means "match everything under".
		if cp.segments[len(cp.segments)-1].kind != segDoubleStar {
			cp.segments = append(cp.segments, segment{text: "**", kind: segDoubleStar})
		}
	}

	return cp, nil
}

// validateSegment rejects segments with unterminated char classes.
func validateSegment(part string) error {
	for i := 0; i < len(part); i++ {
		if part[i] != '[' {
			continue
		}

		end := findCharClassEnd(part, i)
		if end < 0 {
			return fmt.Errorf("unterminated character class at offset %d", i)
		}
		i = end
	}

	return nil
}

// segmentHasGlobMeta reports whether segment contains wildcard syntax.
func segmentHasGlobMeta(part string) bool {
	return strings.ContainsAny(part, "*?[")
}

// match reports whether the compiled pattern matches a normalized path.
func (p *compiledPattern) match(candidate string) bool {
	return matchSegments(p.segments, strings.Split(candidate, "/"))
}

// matchSegments matches compiled segments against path components left to right.
func matchSegments(segs []segment, parts []string) bool {
	for len(segs) > 0 {
		s := segs[0]
		if s.kind == segDoubleStar {
			if len(segs) == 1 {
				// Terminal "**" absorbs any remaining components, including none.
				return true
			}

			for skip := 0; skip <= len(parts); skip++ {
				if matchSegments(segs[1:], parts[skip:]) {
					return true
				}
			}

			return false
		}

		if len(parts) == 0 {
			return false
		}

		if !matchComponent(s, parts[0]) {
			return false
		}

		segs = segs[1:]
		parts = parts[1:]
	}

	return len(parts) == 0
}

// canMatchDescendants reports whether some path strictly below the directory
// described by parts could still match segs. Used to prune tree traversal.
func canMatchDescendants(segs []segment, parts []string) bool {
	if len(segs) == 0 {
		// Pattern fully consumed at or above this directory.
		return false
	}

	s := segs[0]
	if s.kind == segDoubleStar {
		return true
	}

	if len(parts) == 0 {
		return true
	}

	if !matchComponent(s, parts[0]) {
		return false
	}

	return canMatchDescendants(segs[1:], parts[1:])
}

// matchComponent matches one segment against one path component.
func matchComponent(s segment, name string) bool {
	if s.kind == segLiteral {
		return s.text == name
	}

	return matchWildcard(s.text, name)
}

// matchWildcard matches a "*", "?" and "[...]" wildcard pattern against one
// path component, with iterative star backtracking.
func matchWildcard(pattern, name string) bool {
	pIdx := 0
	nIdx := 0
	starPattern := -1
	starName := 0

	for nIdx < len(name) {
		if pIdx < len(pattern) {
			switch c := pattern[pIdx]; c {
			case '*':
				// Runs of stars (including "**" inside a segment) act as one "*".
				for pIdx < len(pattern) && pattern[pIdx] == '*' {
					pIdx++
				}
				starPattern = pIdx
				starName = nIdx
				continue
			case '?':
				pIdx++
				nIdx++
				continue
			case '[':
				if end := findCharClassEnd(pattern, pIdx); end >= 0 {
					if matchCharClass(pattern[pIdx+1:end], name[nIdx]) {
						pIdx = end + 1
						nIdx++
						continue
					}
					break
				}
				// Unterminated class is rejected at compile time; treat as literal here.
				if c == name[nIdx] {
					pIdx++
					nIdx++
					continue
				}
			default:
				if c == name[nIdx] {
					pIdx++
					nIdx++
					continue
				}
			}
		}

		if starPattern >= 0 {
			// Mismatch after a previous star: backtrack pattern to the token
			// after '*' and let '*' consume one more input byte.
			pIdx = starPattern
			starName++
			nIdx = starName
			continue
		}

		return false
	}

	for pIdx < len(pattern) && pattern[pIdx] == '*' {
		pIdx++
	}

	return pIdx == len(pattern)
}

// matchCharClass matches one byte against the class body (without brackets),
// honoring "!"/"^" negation, a literal leading "]" and "a-z" ranges.
func matchCharClass(body string, c byte) bool {
	negated := false
	idx := 0
	if idx < len(body) && (body[idx] == '!' || body[idx] == '^') {
		negated = true
		idx++
	}

	matched := false
	first := true
	for idx < len(body) {
		lo := body[idx]
		if lo == ']' && !first {
			break
		}
		first = false

		if idx+2 < len(body) && body[idx+1] == '-' && body[idx+2] != ']' {
			if lo <= c && c <= body[idx+2] {
				matched = true
			}
			idx += 3
			continue
		}

		if lo == c {
			matched = true
		}
		idx++
	}

	return matched != negated
}

// findCharClassEnd locates the closing bracket for a glob char class.
func findCharClassEnd(pat string, start int) int {
	if start < 0 || start >= len(pat) || pat[start] != '[' {
		return -1
	}

	idx := start + 1
	if idx < len(pat) && (pat[idx] == '!' || pat[idx] == '^') {
		idx++
	}

	if idx < len(pat) && pat[idx] == ']' {
		idx++
	}

	for ; idx < len(pat); idx++ {
		if pat[idx] == ']' {
			return idx
		}
	}

	return -1
}
