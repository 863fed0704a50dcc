package dubbo

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	providersNode     = "providers"
	configuratorsNode = "configurators"
	consumersNode     = "consumers"
)

// interfaceEntry is the Registry's private bookkeeping for one interface:
// the published RoutingEntry plus the filter context captured at first
// discovery, re-used by watcher callbacks on every subsequent re-list
// (spec.md §4.5: "re-filter by (consumerGroup, consumerVersion) captured
// at first discovery").
type interfaceEntry struct {
	routing         RoutingEntry
	consumerGroup   string
	consumerVersion string
	// firstProvider is the first surviving ProviderURL seen at discovery
	// time, kept so registerConsumer can source the dubbo/methods/version
	// fields spec.md §4.5 requires the consumer:// URL to carry, rather
	// than reconstructing them from the flattened host string.
	firstProvider *ProviderURL
}

// Registry is the ZooKeeper-backed discovery layer of spec.md §4.5: it
// watches the provider and configurator znodes for each interface it has
// been asked about, maintains one RoutingEntry per interface under a
// single mutex, and registers this process as an ephemeral consumer under
// the consumers znode (which it does not watch). Grounded on original_source/dubbo/client.py's
// ZkRegister, translated from kazoo's get_children/watch/ensure_path/
// create_async onto go-zookeeper/zk's ChildrenW/Create.
type Registry struct {
	conn *zk.Conn

	mu      sync.Mutex
	entries map[string]*interfaceEntry

	localIP         string
	applicationName string

	logger  Logger
	metrics *Metrics
}

// NewRegistry connects to the ZooKeeper ensemble in cfg and starts the
// session-state listener goroutine. The session itself is owned by the
// Registry and torn down by Close, per spec.md §5's "the ZK session is
// owned by the Registry and closed on close()".
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.Verify(); err != nil {
		return nil, err
	}
	timeout := cfg.SessionTimeout
	if timeout == 0 {
		timeout = DefaultSessionTimeout
	}

	conn, events, err := zk.Connect(cfg.Hosts, timeout)
	if err != nil {
		return nil, newTransportError(err)
	}

	r := &Registry{
		conn:            conn,
		entries:         make(map[string]*interfaceEntry),
		localIP:         primaryIP(),
		applicationName: cfg.ApplicationName,
		logger:          orDefaultLogger(cfg.Logger),
		metrics:         cfg.Metrics,
	}
	go r.watchSessionState(events)
	return r, nil
}

// Close closes the underlying ZooKeeper session. Ephemeral consumer
// znodes are removed by the server as a consequence.
func (r *Registry) Close() error {
	r.conn.Close()
	return nil
}

// watchSessionState logs LOST/SUSPENDED/CONNECTED transitions for the
// lifetime of the session, per spec.md §4.5 "Session handling" and
// SPEC_FULL.md §6's supplemented feature restoring client.py's
// state_listener.
func (r *Registry) watchSessionState(events <-chan zk.Event) {
	for ev := range events {
		switch ev.State {
		case zk.StateHasSession:
			r.logger.Printf("zk session established")
		case zk.StateDisconnected:
			r.logger.Printf("zk session suspended")
		case zk.StateExpired:
			r.logger.Printf("zk session lost, ephemeral nodes will be recreated on next discovery")
		}
	}
}

// GetProviderHost returns one live host for iface, picked by weighted
// random routing, performing first-time ZooKeeper discovery if needed
// (spec.md §4.5/§4.6).
func (r *Registry) GetProviderHost(iface, consumerGroup, consumerVersion string) (string, error) {
	entry, err := r.getOrDiscover(iface, consumerGroup, consumerVersion)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	routing := entry.routing
	r.mu.Unlock()
	return PickHost(iface, routing)
}

func (r *Registry) getOrDiscover(iface, consumerGroup, consumerVersion string) (*interfaceEntry, error) {
	r.mu.Lock()
	if e, ok := r.entries[iface]; ok {
		r.mu.Unlock()
		return e, nil
	}
	r.mu.Unlock()

	providersPath := fmt.Sprintf("/dubbo/%s/providers", iface)
	if ok, _, err := r.conn.Exists(providersPath); err != nil {
		return nil, newTransportError(err)
	} else if !ok {
		return nil, newRegisterError("interface %s is not registered in zookeeper", iface)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[iface]; ok {
		return e, nil
	}

	entry := &interfaceEntry{consumerGroup: consumerGroup, consumerVersion: consumerVersion}
	r.entries[iface] = entry

	if err := r.listProviders(iface, entry); err != nil {
		delete(r.entries, iface)
		return nil, err
	}
	if err := r.listConfigurators(iface, entry); err != nil {
		delete(r.entries, iface)
		return nil, err
	}
	r.registerConsumer(iface, entry)

	return entry, nil
}

// listProviders lists /dubbo/I/providers with a child watch and replaces
// entry.routing.Hosts. It re-arms its own watch on every fire, per
// spec.md §4.5's one-shot-watch re-arming rule. The caller (getOrDiscover)
// holds r.mu.
func (r *Registry) listProviders(iface string, entry *interfaceEntry) error {
	path := fmt.Sprintf("/dubbo/%s/providers", iface)
	children, _, events, err := r.conn.ChildrenW(path)
	if err != nil {
		return newTransportError(err)
	}

	hosts, first, err := filterProviders(children, entry.consumerGroup, entry.consumerVersion)
	if err != nil {
		return err
	}

	entry.routing.Hosts = hosts
	if first != nil {
		entry.firstProvider = first
	}
	r.metrics.setRoutingEntrySize(iface, len(hosts))

	go r.watchProviders(iface, events)
	return nil
}

func (r *Registry) watchProviders(iface string, events <-chan zk.Event) {
	<-events
	r.metrics.watchFiredEvent(iface, providersNode)

	r.mu.Lock()
	entry, ok := r.entries[iface]
	r.mu.Unlock()
	if !ok {
		return
	}

	path := fmt.Sprintf("/dubbo/%s/providers", iface)
	children, _, next, err := r.conn.ChildrenW(path)
	if err != nil {
		r.logger.Printf("re-list providers for %s failed: %v", iface, err)
		return
	}

	hosts, first, err := filterProviders(children, entry.consumerGroup, entry.consumerVersion)
	if err != nil {
		r.logger.Printf("re-filter providers for %s failed: %v", iface, err)
		hosts = nil
	}

	r.mu.Lock()
	entry.routing.Hosts = hosts
	if first != nil {
		entry.firstProvider = first
	}
	r.mu.Unlock()
	r.metrics.setRoutingEntrySize(iface, len(hosts))

	go r.watchProviders(iface, next)
}

// listConfigurators lists /dubbo/I/configurators with a child watch and
// replaces entry.routing.Weights. The caller (getOrDiscover) holds r.mu.
func (r *Registry) listConfigurators(iface string, entry *interfaceEntry) error {
	path := fmt.Sprintf("/dubbo/%s/configurators", iface)
	children, _, events, err := r.conn.ChildrenW(path)
	if err != nil {
		if err == zk.ErrNoNode {
			go r.watchConfigurators(iface, nil)
			return nil
		}
		return newTransportError(err)
	}

	weights := buildWeights(children)

	entry.routing.Weights = weights

	go r.watchConfigurators(iface, events)
	return nil
}

func (r *Registry) watchConfigurators(iface string, events <-chan zk.Event) {
	if events == nil {
		return
	}
	<-events
	r.metrics.watchFiredEvent(iface, configuratorsNode)

	r.mu.Lock()
	entry, ok := r.entries[iface]
	r.mu.Unlock()
	if !ok {
		return
	}

	path := fmt.Sprintf("/dubbo/%s/configurators", iface)
	children, _, next, err := r.conn.ChildrenW(path)
	if err != nil {
		r.logger.Printf("re-list configurators for %s failed: %v", iface, err)
		return
	}

	weights := buildWeights(children)

	r.mu.Lock()
	entry.routing.Weights = weights
	r.mu.Unlock()

	go r.watchConfigurators(iface, next)
}

// registerConsumer builds and creates the ephemeral consumer:// znode,
// per spec.md §4.5's consumer registration rule and
// original_source/dubbo/client.py's _register_consumer, which sources
// dubbo/interface/methods/revision/version off the first matched
// provider's own fields rather than inventing them; application is this
// Registry's configured ApplicationName. Failures are
// logged, not returned, matching "failure is logged but does not fail
// discovery."
func (r *Registry) registerConsumer(iface string, entry *interfaceEntry) {
	provider := entry.firstProvider
	if provider == nil {
		return
	}

	params := map[string]string{
		"application": r.applicationName,
		"category":    "consumers",
		"check":       "false",
		"connected":   "true",
		"dubbo":       provider.Fields["dubbo"],
		"interface":   provider.Fields["interface"],
		"methods":     provider.Fields["methods"],
		"pid":         strconv.Itoa(os.Getpid()),
		"side":        "consumer",
		"timestamp":   strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if revision, ok := provider.Fields["revision"]; ok && revision != "" {
		params["revision"] = revision
	}
	if version, ok := provider.Fields["version"]; ok && version != "" {
		params["version"] = version
	}

	var keys []string
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []string
	for _, k := range keys {
		pairs = append(pairs, k+"="+url.QueryEscape(params[k]))
	}

	consumerURL := fmt.Sprintf("consumer://%s%s?%s", r.localIP, provider.Path, strings.Join(pairs, "&"))

	consumersPath := fmt.Sprintf("/dubbo/%s/consumers", iface)
	if err := r.ensurePath(consumersPath); err != nil {
		r.logger.Printf("ensure consumers path %s failed: %v", consumersPath, err)
		return
	}

	znode := consumersPath + "/" + url.QueryEscape(consumerURL)
	_, err := r.conn.Create(znode, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && err != zk.ErrNodeExists {
		r.logger.Printf("register consumer for %s failed: %v", iface, err)
	}
}

// ensurePath creates every missing ancestor of p, mirroring kazoo's
// ensure_path.
func (r *Registry) ensurePath(p string) error {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	cur := ""
	for _, part := range parts {
		cur += "/" + part
		_, err := r.conn.Create(cur, nil, 0, zk.WorldACL(zk.PermAll))
		if err != nil && err != zk.ErrNodeExists {
			return err
		}
	}
	return nil
}

// filterProviders decodes, parses, and filters ZK child names per
// spec.md §4.5's provider-filtering rule, returning the surviving hosts
// in listing order plus the first surviving ProviderURL (nil if none
// survive), which registerConsumer needs for its field set.
func filterProviders(children []string, consumerGroup, consumerVersion string) ([]string, *ProviderURL, error) {
	var hosts []string
	var first *ProviderURL
	for _, raw := range children {
		p, err := parseProviderURL(raw)
		if err != nil {
			continue
		}
		if p.Scheme != "dubbo" {
			continue
		}
		if !groupMatches(consumerGroup, p) || !versionMatches(consumerVersion, p) {
			continue
		}
		hosts = append(hosts, p.Host)
		if first == nil {
			pCopy := p
			first = &pCopy
		}
	}
	return hosts, first, nil
}

// ProviderURL is a parsed, URL-decoded provider znode name (spec.md §3).
type ProviderURL struct {
	Scheme string
	Host   string
	Path   string
	Fields map[string]string
}

func parseProviderURL(raw string) (ProviderURL, error) {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return ProviderURL{}, err
	}
	u, err := url.Parse(decoded)
	if err != nil {
		return ProviderURL{}, err
	}
	fields := make(map[string]string)
	for k, v := range u.Query() {
		if len(v) > 0 {
			fields[k] = v[0]
		}
	}
	return ProviderURL{Scheme: u.Scheme, Host: u.Host, Path: u.Path, Fields: fields}, nil
}

// groupMatches and versionMatches implement spec.md §4.5's filter rule,
// resolving the flagged AND/OR open question as
// groupMatches(consumerGroup, provider) AND versionMatches(consumerVersion,
// provider), as recorded in DESIGN.md's registry.go entry.
func groupMatches(consumerGroup string, p ProviderURL) bool {
	return fieldMatches(consumerGroup, p.Fields["group"], p.Fields["default.group"])
}

func versionMatches(consumerVersion string, p ProviderURL) bool {
	return fieldMatches(consumerVersion, p.Fields["version"], "")
}

func fieldMatches(consumerValue, providerValue, providerDefault string) bool {
	if consumerValue == "" || consumerValue == "*" {
		return true
	}
	for _, v := range strings.Split(consumerValue, ",") {
		if v == providerValue {
			return true
		}
		if providerDefault != "" && v == providerDefault {
			return true
		}
	}
	return false
}

// buildWeights implements spec.md §4.5's configurator parsing: each
// configurator URL contributes weights[provider.host] = fields.weight
// (default 100).
func buildWeights(children []string) map[string]int {
	weights := make(map[string]int)
	for _, raw := range children {
		p, err := parseProviderURL(raw)
		if err != nil {
			continue
		}
		w := defaultWeight
		if s, ok := p.Fields["weight"]; ok {
			if parsed, err := strconv.Atoi(s); err == nil {
				w = parsed
			}
		}
		weights[p.Host] = w
	}
	return weights
}

// primaryIP returns this process's outbound IP, used as the consumer://
// URL's host component. It dials a UDP "connection" (no packets sent) to
// force the OS to pick a route, the common Go idiom for discovering the
// local address without an external lookup service.
func primaryIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}
