package cache

import (
	"strings"
)

// Key is a colon-separated cache key. Namespace is its first segment and
// labels metrics.
type Key struct {
	Namespace string
	parts     []string
}

// NewKey starts a key in namespace.
func NewKey(namespace string) Key {
	return Key{Namespace: namespace}
}

// Part appends a bare segment.
func (k Key) Part(value string) Key {
	return Key{Namespace: k.Namespace, parts: appendCopy(k.parts, value)}
}

// With appends a "name=value" segment.
func (k Key) With(name, value string) Key {
	return k.Part(name + "=" + value)
}

// String renders the key.
func (k Key) String() string {
	if len(k.parts) == 0 {
		return k.Namespace
	}
	return k.Namespace + ":" + strings.Join(k.parts, ":")
}

// appendCopy never shares the backing array between derived keys.
func appendCopy(parts []string, value string) []string {
	out := make([]string, len(parts), len(parts)+1)
	copy(out, parts)
	return append(out, value)
}
