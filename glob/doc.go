/*
Package glob implements glob pattern matching and include/exclude
resolution over a rooted file tree.

Pattern dialect: "*" matches within one path segment, "**" as a whole
segment matches zero or more segments, "?" matches one character, and
"[...]" matches a character class with "!" or "^" negation. Patterns are
relative to the tree root; ".." is rejected as malformed.

Basic flow:
  - validate or match one pattern (`Validate` / `Match`)
  - enumerate matches for one pattern (`Expand` / `ExpandFunc`)
  - resolve a full include/exclude request (`Resolve`)

Resolve applies a strictness policy to include patterns that match
nothing and a conjunction policy across the include set, then returns a
deduplicated, lexicographically sorted path list so output is independent
of filesystem iteration order.
*/
package glob
