package dubbo

import "time"

// DefaultDubboVersion is the dubbo_version stamped into every request when
// ClientConfig.DubboVersion is left empty, matching the original client's
// default (client.py: dubbo_version='2.6.1').
const DefaultDubboVersion = "2.6.1"

// DefaultSessionTimeout is used when RegistryConfig.SessionTimeout is zero.
const DefaultSessionTimeout = 10 * time.Second

// DefaultCallTimeout is used when a Client.Call is invoked without an
// explicit timeout.
const DefaultCallTimeout = 5 * time.Second

// ClientConfig binds a Client to a Java interface and either a Registry or
// a direct host, following the teacher's plain-struct Config/Options
// pattern (config.go, options.go) rather than a file- or flag-based loader:
// per spec.md §1 "Configuration loading is a plain structure with named
// fields — not a subject of its own."
type ClientConfig struct {
	// Interface is the Java interface's fully-qualified dotted name, e.g.
	// "com.example.Svc". Required.
	Interface string
	// Version and Group scope the lookup to a provider version/group.
	// Optional. Version is always written into the request body and the
	// "version" attachment (as an empty string when unset); Group is used
	// only for provider filtering and is not sent on the wire.
	Version string
	Group   string
	// DubboVersion defaults to DefaultDubboVersion when empty.
	DubboVersion string
	// Registry resolves Interface to a live host via ZooKeeper. Either
	// Registry or Host must be set.
	Registry *Registry
	// Host bypasses discovery and calls a fixed "ip:port" directly.
	Host string
	// Timeout bounds Client.Call when the caller does not pass one
	// explicitly. Defaults to DefaultCallTimeout.
	Timeout time.Duration
}

// Verify validates the ClientConfig, returning a *RegisterError for any
// violation. It mirrors Config.Verify/Options.Verify in the teacher.
func (c *ClientConfig) Verify() error {
	if c.Registry == nil && c.Host == "" {
		return newRegisterError("client requires either a registry or a direct host")
	}
	if c.Interface == "" {
		return newRegisterError("client requires a non-empty interface name")
	}
	return nil
}

// RegistryConfig configures a ZooKeeper-backed Registry.
type RegistryConfig struct {
	// Hosts is the ZooKeeper ensemble, e.g. []string{"zk1:2181", "zk2:2181"}.
	Hosts []string
	// ApplicationName identifies this consumer process in the registered
	// consumer:// URL (client.py's application_name).
	ApplicationName string
	// SessionTimeout defaults to DefaultSessionTimeout when zero.
	SessionTimeout time.Duration
	// Logger receives diagnostic messages; defaults to a discard logger.
	Logger Logger
	// Metrics, when non-nil, receives Prometheus observations. Optional.
	Metrics *Metrics
}

// Verify validates the RegistryConfig.
func (c *RegistryConfig) Verify() error {
	if len(c.Hosts) == 0 {
		return newRegisterError("registry requires at least one zookeeper host")
	}
	return nil
}
