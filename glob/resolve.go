package glob

import (
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Strictness is the policy for an include pattern that matches nothing.
type Strictness uint8

const (
	// StrictnessError fails the whole resolution on a zero-match include pattern.
	StrictnessError Strictness = iota
	// StrictnessWarn records the condition and continues.
	StrictnessWarn
	// StrictnessIgnore silently continues.
	StrictnessIgnore
)

// ParseStrictness parses the textual strictness spelling.
func ParseStrictness(s string) (Strictness, error) {
	switch strings.ToLower(s) {
	case "error":
		return StrictnessError, nil
	case "warn":
		return StrictnessWarn, nil
	case "ignore":
		return StrictnessIgnore, nil
	default:
		return 0, fmt.Errorf("unrecognized strictness: %q", s)
	}
}

func (s Strictness) String() string {
	switch s {
	case StrictnessError:
		return "error"
	case StrictnessWarn:
		return "warn"
	case StrictnessIgnore:
		return "ignore"
	default:
		return fmt.Sprintf("strictness(%d)", uint8(s))
	}
}

// Conjunction is the policy combining all include patterns' match outcomes.
type Conjunction uint8

const (
	// ConjunctionAllMatch requires every non-vetoed include pattern to contribute.
	ConjunctionAllMatch Conjunction = iota
	// ConjunctionAnyMatch requires at least one include pattern to contribute.
	ConjunctionAnyMatch
)

// ParseConjunction parses the textual conjunction spelling.
func ParseConjunction(s string) (Conjunction, error) {
	switch strings.ToLower(s) {
	case "all", "all_match", "and":
		return ConjunctionAllMatch, nil
	case "any", "any_match", "or":
		return ConjunctionAnyMatch, nil
	default:
		return 0, fmt.Errorf("unrecognized conjunction: %q", s)
	}
}

func (c Conjunction) String() string {
	switch c {
	case ConjunctionAllMatch:
		return "all_match"
	case ConjunctionAnyMatch:
		return "any_match"
	default:
		return fmt.Sprintf("conjunction(%d)", uint8(c))
	}
}

// PathGlobs is one immutable resolution request.
type PathGlobs struct {
	// Include patterns select files; the set must be non-empty.
	Include []string
	// Exclude patterns remove files from the included union. An exclude
	// pattern matching nothing is never an error.
	Exclude []string
	// Strictness applies per include pattern that matches zero files.
	Strictness Strictness
	// Conjunction applies across the include set as a whole.
	Conjunction Conjunction
}

// ResolveOptions tunes one resolution.
type ResolveOptions struct {
	// Parallelism bounds concurrent include pattern expansion. Zero or
	// negative means sequential.
	Parallelism int
	// OnWarn is invoked for each zero-match include pattern under WARN
	// strictness. May be nil.
	OnWarn func(pattern string)
}

// Resolve expands globs against fsys and returns the deduplicated,
// byte-wise lexicographically sorted set of matching file paths.
//
// Evaluation order: validate all patterns, expand includes, apply
// strictness per pattern, apply conjunction on the aggregate, union,
// subtract excludes, sort. The strictness and conjunction checks see
// pre-exclusion match sets.
func Resolve(fsys fs.FS, globs PathGlobs, opts ResolveOptions) ([]string, error) {
	if len(globs.Include) == 0 {
		return nil, ErrEmptyInclude
	}

	// Wire decoding accepts any byte for the policy enums; values outside
	// them must not fall through the policy switches as IGNORE.
	if globs.Strictness > StrictnessIgnore {
		return nil, fmt.Errorf("%w: strictness %d", ErrInvalidPolicy, uint8(globs.Strictness))
	}
	if globs.Conjunction > ConjunctionAnyMatch {
		return nil, fmt.Errorf("%w: conjunction %d", ErrInvalidPolicy, uint8(globs.Conjunction))
	}

	include := make([]*compiledPattern, len(globs.Include))
	for i, pattern := range globs.Include {
		cp, err := compile(pattern)
		if err != nil {
			return nil, err
		}
		include[i] = cp
	}

	exclude := make([]*compiledPattern, len(globs.Exclude))
	for i, pattern := range globs.Exclude {
		cp, err := compile(pattern)
		if err != nil {
			return nil, err
		}
		exclude[i] = cp
	}

	matches, err := expandAll(fsys, include, opts.Parallelism)
	if err != nil {
		return nil, err
	}

	anyMatched := false
	for i, set := range matches {
		if len(set) > 0 {
			anyMatched = true
			continue
		}

		switch globs.Strictness {
		case StrictnessError:
			return nil, fmt.Errorf("%w: %q", ErrNoMatches, include[i].source)
		case StrictnessWarn:
			if opts.OnWarn != nil {
				opts.OnWarn(include[i].source)
			}
		case StrictnessIgnore:
		}
	}

	// Both conjunctions reduce to the same aggregate check once per-pattern
	// strictness has run: the union of include matches must be non-empty.
	if !anyMatched {
		return nil, fmt.Errorf("%w: %s over %q", ErrConjunctionUnsatisfied,
			globs.Conjunction, globs.Include)
	}

	union := make(map[string]struct{})
	for _, set := range matches {
		for _, path := range set {
			union[path] = struct{}{}
		}
	}

	out := make([]string, 0, len(union))
nextPath:
	for path := range union {
		for _, cp := range exclude {
			if cp.match(path) {
				continue nextPath
			}
		}
		out = append(out, path)
	}

	sort.Strings(out)
	return out, nil
}

// expandAll expands include patterns, concurrently when parallelism allows.
func expandAll(fsys fs.FS, include []*compiledPattern, parallelism int) ([][]string, error) {
	matches := make([][]string, len(include))

	if parallelism <= 1 || len(include) == 1 {
		for i, cp := range include {
			set, err := expandOne(fsys, cp)
			if err != nil {
				return nil, err
			}
			matches[i] = set
		}
		return matches, nil
	}

	g := new(errgroup.Group)
	g.SetLimit(parallelism)
	for i, cp := range include {
		i, cp := i, cp
		g.Go(func() error {
			set, err := expandOne(fsys, cp)
			if err != nil {
				return err
			}
			matches[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return matches, nil
}

func expandOne(fsys fs.FS, cp *compiledPattern) ([]string, error) {
	var set []string
	err := cp.expand(fsys, func(path string) error {
		set = append(set, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("expanding %q: %w", cp.source, err)
	}

	return set, nil
}
