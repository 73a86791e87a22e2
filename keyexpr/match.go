package keyexpr

// Includes reports whether every key matched by other is also matched by ke.
func (ke KeyExpr) Includes(other KeyExpr) bool {
	return includes(ke.Chunks(), other.Chunks())
}

// Intersects reports whether at least one concrete key is matched by both
// ke and other.
func (ke KeyExpr) Intersects(other KeyExpr) bool {
	return intersects(ke.Chunks(), other.Chunks())
}

// Matches reports whether the concrete key is matched by this expression.
// It is Intersects with the right-hand side treated as a literal key.
func (ke KeyExpr) Matches(key KeyExpr) bool {
	return ke.Intersects(key)
}

func chunkMatch(pattern, chunk string) bool {
	// "**" is handled by the callers; here a chunk either equals the
	// pattern or the pattern is the single-chunk wildcard.
	if pattern == "*" || chunk == "*" {
		return pattern != "**" && chunk != "**"
	}
	return pattern == chunk
}

func includes(super, sub []string) bool {
	switch {
	case len(super) == 0:
		return len(sub) == 0
	case super[0] == "**":
		if len(super) == 1 {
			return true
		}
		for i := 0; i <= len(sub); i++ {
			if includes(super[1:], sub[i:]) {
				return true
			}
		}
		return false
	case len(sub) == 0:
		return false
	case sub[0] == "**":
		// a non-** chunk can never include a ** chunk
		return false
	case super[0] == "*" || super[0] == sub[0]:
		return includes(super[1:], sub[1:])
	default:
		return false
	}
}

func intersects(a, b []string) bool {
	switch {
	case len(a) == 0:
		return len(b) == 0 || allSuper(b)
	case len(b) == 0:
		return allSuper(a)
	case a[0] == "**":
		if len(a) == 1 {
			return true
		}
		for i := 0; i <= len(b); i++ {
			if intersects(a[1:], b[i:]) {
				return true
			}
		}
		return false
	case b[0] == "**":
		return intersects(b, a)
	case chunkMatch(a[0], b[0]):
		return intersects(a[1:], b[1:])
	default:
		return false
	}
}

func allSuper(chunks []string) bool {
	for _, c := range chunks {
		if c != "**" {
			return false
		}
	}
	return true
}
