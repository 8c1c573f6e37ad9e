package registry

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Separator joins a namespace and a tool name in the flat catalog.
// Neither part may contain it.
const Separator = "__"

var (
	// ErrUnsupportedProvider is returned for a provider file type with no launcher.
	ErrUnsupportedProvider = errors.New("unsupported provider type")
	// ErrInvalidNamespace is returned when a provider name cannot serve as a namespace.
	ErrInvalidNamespace = errors.New("invalid provider namespace")
)

// Provider is one configured tool-provider process.
type Provider struct {
	Path    string   `yaml:"path" json:"path"`
	Command string   `yaml:"command,omitempty" json:"command,omitempty"`
	Args    []string `yaml:"args,omitempty" json:"args,omitempty"`
}

// DefaultLaunchers maps script extensions to interpreters.
func DefaultLaunchers() map[string]string {
	return map[string]string{
		".py": "python3",
		".js": "node",
	}
}

// Launch is a fully resolved provider start command.
type Launch struct {
	Namespace string
	Path      string
	Command   string
	Args      []string
}

// Namespace derives a namespace from a provider path: the base name
// without its extension.
func Namespace(path string) (string, error) {
	base := filepath.Base(path)
	ns := strings.TrimSuffix(base, filepath.Ext(base))
	if ns == "" || ns == "." || ns == string(filepath.Separator) {
		return "", fmt.Errorf("%w: empty name from %q", ErrInvalidNamespace, path)
	}
	if strings.Contains(ns, Separator) {
		return "", fmt.Errorf("%w: %q contains %q", ErrInvalidNamespace, ns, Separator)
	}
	if strings.HasSuffix(ns, "_") {
		return "", fmt.Errorf("%w: %q ends with \"_\"", ErrInvalidNamespace, ns)
	}
	return ns, nil
}

// Resolve turns a configured provider into a launch command.
// Scripts run under the launcher for their extension; extensionless paths
// run directly. An explicit Command bypasses the extension table.
func Resolve(p Provider, launchers map[string]string) (Launch, error) {
	if p.Path == "" {
		return Launch{}, fmt.Errorf("%w: empty path", ErrUnsupportedProvider)
	}
	ns, err := Namespace(p.Path)
	if err != nil {
		return Launch{}, err
	}

	l := Launch{Namespace: ns, Path: p.Path}
	switch ext := filepath.Ext(p.Path); {
	case p.Command != "":
		l.Command = p.Command
		l.Args = append([]string{p.Path}, p.Args...)
	case ext == "":
		l.Command = p.Path
		l.Args = append([]string(nil), p.Args...)
	default:
		interp, ok := launchers[strings.ToLower(ext)]
		if !ok {
			return Launch{}, fmt.Errorf("%w: %q (extension %s)", ErrUnsupportedProvider, p.Path, ext)
		}
		l.Command = interp
		l.Args = append([]string{p.Path}, p.Args...)
	}
	return l, nil
}

// DialFunc opens the transport for a resolved provider.
type DialFunc func(ctx context.Context, l Launch) (mcpsdk.Transport, error)

// CommandDial starts the provider as a child process speaking MCP on stdio.
// The process lives until the session is closed.
func CommandDial(_ context.Context, l Launch) (mcpsdk.Transport, error) {
	cmd := exec.Command(l.Command, l.Args...)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}
