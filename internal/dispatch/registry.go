package dispatch

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDuplicateCommand is returned by strict registries when a name or alias is
// registered twice.
var ErrDuplicateCommand = errors.New("duplicate command registration")

// Registry maps command names and aliases to their descriptors. It is
// populated once at startup and read-only afterwards, so lookups need no
// locking.
type Registry struct {
	strict   bool
	byKey    map[string]Command
	commands []Command
}

// NewRegistry constructs an empty registry. In strict mode Register fails on
// duplicate names or aliases; otherwise the later registration silently wins,
// matching the legacy behavior.
func NewRegistry(strict bool) *Registry {
	return &Registry{
		strict: strict,
		byKey:  make(map[string]Command),
	}
}

// Register adds a command under its name and every alias.
func (r *Registry) Register(cmd Command) error {
	if r == nil || r.byKey == nil {
		return errors.New("registry is not initialized")
	}
	if cmd == nil {
		return errors.New("command is required")
	}

	name := normalizeKey(cmd.Name())
	if name == "" {
		return errors.New("command name is required")
	}

	keys := append([]string{name}, cmd.Aliases()...)
	seen := make(map[string]struct{}, len(keys))

	for _, key := range keys {
		key = normalizeKey(key)
		if key == "" {
			return fmt.Errorf("command %q has an empty alias", name)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		if _, exists := r.byKey[key]; exists && r.strict {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, key)
		}
		r.byKey[key] = cmd
	}

	r.commands = append(r.commands, cmd)
	return nil
}

// Resolve returns the command registered under the given key,
// case-insensitively.
func (r *Registry) Resolve(key string) (Command, bool) {
	if r == nil || r.byKey == nil {
		return nil, false
	}

	cmd, ok := r.byKey[normalizeKey(key)]
	return cmd, ok
}

// Commands returns every registered descriptor in registration order. Used for
// free-text fan-out and diagnostics.
func (r *Registry) Commands() []Command {
	if r == nil {
		return nil
	}

	out := make([]Command, len(r.commands))
	copy(out, r.commands)
	return out
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
