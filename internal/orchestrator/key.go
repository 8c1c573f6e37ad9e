package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/pulseguard/internal/registry"
)

// ErrInvalidToolKey is returned for keys that cannot be split unambiguously.
var ErrInvalidToolKey = errors.New("invalid tool key")

// Key identifies a tool across all providers. It is serialized as
// "<namespace>__<name>" only at the completion API boundary.
type Key struct {
	Namespace string
	Name      string
}

// NewKey validates both parts.
func NewKey(namespace, name string) (Key, error) {
	k := Key{Namespace: namespace, Name: name}
	if err := k.Validate(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Validate rejects empty parts, parts containing the separator and parts
// that would merge with it: a namespace ending in "_" or a name starting
// with "_".
func (k Key) Validate() error {
	switch {
	case k.Namespace == "" || k.Name == "":
		return fmt.Errorf("%w: empty component in %q", ErrInvalidToolKey, k.Namespace+registry.Separator+k.Name)
	case strings.Contains(k.Namespace, registry.Separator):
		return fmt.Errorf("%w: namespace %q contains %q", ErrInvalidToolKey, k.Namespace, registry.Separator)
	case strings.Contains(k.Name, registry.Separator):
		return fmt.Errorf("%w: tool name %q contains %q", ErrInvalidToolKey, k.Name, registry.Separator)
	case strings.HasSuffix(k.Namespace, "_"):
		return fmt.Errorf("%w: namespace %q ends with \"_\"", ErrInvalidToolKey, k.Namespace)
	case strings.HasPrefix(k.Name, "_"):
		return fmt.Errorf("%w: tool name %q starts with \"_\"", ErrInvalidToolKey, k.Name)
	}
	return nil
}

func (k Key) String() string { return k.Namespace + registry.Separator + k.Name }

// ParseKey splits a serialized key. Exactly one separator is allowed.
func ParseKey(s string) (Key, error) {
	ns, name, ok := strings.Cut(s, registry.Separator)
	if !ok {
		return Key{}, fmt.Errorf("%w: %q has no %q", ErrInvalidToolKey, s, registry.Separator)
	}
	return NewKey(ns, name)
}
