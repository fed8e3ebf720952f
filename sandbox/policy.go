// Package sandbox defines the security policy ACTION host services are
// evaluated against: what network, filesystem, process, and
// capability access a flow's host calls are allowed.
package sandbox

import (
	"fmt"

	"github.com/flowlattice/engine/runtime"
)

// NetworkPolicy is the coarse network-access switch.
type NetworkPolicy string

const (
	NetworkAllowAll      NetworkPolicy = "ALLOW_ALL"
	NetworkLocalhostOnly NetworkPolicy = "LOCALHOST_ONLY"
	NetworkBlockAll      NetworkPolicy = "BLOCK_ALL"
)

// FilesystemPolicy is the coarse filesystem-access switch.
type FilesystemPolicy string

const (
	FilesystemReadWrite FilesystemPolicy = "READ_WRITE"
	FilesystemReadOnly  FilesystemPolicy = "READ_ONLY"
	FilesystemBlockAll  FilesystemPolicy = "BLOCK_ALL"
)

// SecurityPolicy bounds what a flow's ACTION components may reach out
// to. It is read-only input to host service dispatch: the registry
// itself never enforces it, a handler consults it before performing
// network/filesystem/process access; enforcement is always delegated
// to the environment the engine runs in.
type SecurityPolicy struct {
	Network    NetworkPolicy    `yaml:"network"`
	Filesystem FilesystemPolicy `yaml:"filesystem"`

	// AllowNetwork/AllowedHosts and AllowFilesystem/AllowedPaths are a
	// finer-grained allowlist layered under Network==ALLOW_ALL or unset /
	// Filesystem==READ_WRITE|READ_ONLY: Network/Filesystem decide the
	// coarse enum, these narrow it further to specific hosts/paths.
	AllowNetwork    bool     `yaml:"allowNetwork" default:"false"`
	AllowedHosts    []string `yaml:"allowedHosts"`
	AllowFilesystem bool     `yaml:"allowFilesystem" default:"false"`
	AllowedPaths    []string `yaml:"allowedPaths"`

	AllowProcessSpawn   bool  `yaml:"allowProcessSpawn" default:"false"`
	MaxProcessCount     int   `yaml:"maxProcessCount" default:"0" validate:"gte=0"`
	MaxRequestTimeoutMs int64 `yaml:"maxRequestTimeoutMs" default:"5000" validate:"gt=0"`
	MaxResponseBytes    int64 `yaml:"maxResponseBytes" default:"1048576" validate:"gt=0"`

	// Capability toggles: booleans the host environment consults before
	// letting an ACTION handler exercise the named capability. The
	// engine itself never codegens, reflects, deserializes untrusted
	// data, shells out, or loads native code; these exist purely so a
	// handler can check "am I allowed to."
	AllowCodegen         bool `yaml:"allowCodegen" default:"false"`
	AllowReflection      bool `yaml:"allowReflection" default:"false"`
	AllowDeserialization bool `yaml:"allowDeserialization" default:"false"`
	AllowShell           bool `yaml:"allowShell" default:"false"`
	AllowJNI             bool `yaml:"allowJNI" default:"false"`
	AllowNativeLibs      bool `yaml:"allowNativeLibs" default:"false"`
	AllowCrypto          bool `yaml:"allowCrypto" default:"false"`
}

// DefaultSecurityPolicy returns the most restrictive policy: no
// network, no filesystem, no process spawning, every capability denied.
func DefaultSecurityPolicy() (SecurityPolicy, error) {
	policy := SecurityPolicy{}
	if err := runtime.InitializeConfig(&policy, nil); err != nil {
		return SecurityPolicy{}, fmt.Errorf("sandbox: failed to build default policy: %w", err)
	}
	return policy, nil
}

// FromRawValues builds a SecurityPolicy from a flow document's
// "security" section (already decoded into a generic map by the schema
// loader), applying defaults then validating.
func FromRawValues(raw map[string]any) (SecurityPolicy, error) {
	policy := SecurityPolicy{}
	if err := runtime.InitializeConfig(&policy, raw); err != nil {
		return SecurityPolicy{}, fmt.Errorf("sandbox: invalid security policy: %w", err)
	}
	return policy, nil
}

// AllowsHost reports whether host is reachable under this policy. The
// Network enum decides the coarse question first (BLOCK_ALL always
// denies, LOCALHOST_ONLY only allows loopback hosts); for ALLOW_ALL, or
// when Network is unset (legacy callers that only populate
// AllowNetwork/AllowedHosts), AllowNetwork must be set and, if
// AllowedHosts is non-empty, host must appear in it (an empty allowlist
// with AllowNetwork means "any host").
func (p SecurityPolicy) AllowsHost(host string) bool {
	switch p.Network {
	case NetworkBlockAll:
		return false
	case NetworkLocalhostOnly:
		return isLocalhost(host)
	}
	if !p.AllowNetwork {
		return false
	}
	if len(p.AllowedHosts) == 0 {
		return true
	}
	for _, h := range p.AllowedHosts {
		if h == host {
			return true
		}
	}
	return false
}

func isLocalhost(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// AllowsPath reports whether path is reachable under this policy,
// mirroring AllowsHost's Filesystem-enum-then-allowlist semantics.
func (p SecurityPolicy) AllowsPath(path string) bool {
	if p.Filesystem == FilesystemBlockAll {
		return false
	}
	if !p.AllowFilesystem {
		return false
	}
	if len(p.AllowedPaths) == 0 {
		return true
	}
	for _, allowed := range p.AllowedPaths {
		if allowed == path {
			return true
		}
	}
	return false
}

// AllowsWrite reports whether this policy permits writing to path: it
// must AllowsPath, and Filesystem must not be READ_ONLY.
func (p SecurityPolicy) AllowsWrite(path string) bool {
	return p.AllowsPath(path) && p.Filesystem != FilesystemReadOnly
}
