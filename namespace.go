package axml

import (
	"fmt"

	"golang.org/x/exp/slices"
)

type nsBinding struct {
	prefix, uri string
}

// namespaceScope holds the prefix bindings currently in effect, innermost last.
type namespaceScope struct {
	bindings []nsBinding
}

func (s *namespaceScope) reset() {
	s.bindings = s.bindings[:0]
}

func (s *namespaceScope) declare(prefix, uri string) {
	s.bindings = append(s.bindings, nsBinding{prefix: prefix, uri: uri})
}

// undeclare removes the innermost binding equal to (prefix, uri). Removing any
// other binding for the same uri would change what sibling elements resolve to.
func (s *namespaceScope) undeclare(prefix, uri string) error {
	want := nsBinding{prefix: prefix, uri: uri}
	idx := lastIndex(s.bindings, func(b nsBinding) bool { return b == want })
	if idx < 0 {
		return fmt.Errorf("%w: %s=%q was never declared", ErrUnbalancedNamespace, prefix, uri)
	}
	if idx != len(s.bindings)-1 {
		top := s.bindings[len(s.bindings)-1]
		return fmt.Errorf("%w: %s=%q ends while %s=%q is still open", ErrUnbalancedNamespace, prefix, uri, top.prefix, top.uri)
	}
	s.bindings = slices.Delete(s.bindings, idx, idx+1)
	return nil
}

// resolve returns the prefix most recently bound to uri.
func (s *namespaceScope) resolve(uri string) (string, bool) {
	idx := lastIndex(s.bindings, func(b nsBinding) bool { return b.uri == uri })
	if idx < 0 {
		return "", false
	}
	return s.bindings[idx].prefix, true
}

func lastIndex(bindings []nsBinding, match func(nsBinding) bool) int {
	for i := len(bindings) - 1; i >= 0; i-- {
		if match(bindings[i]) {
			return i
		}
	}
	return -1
}
