// Package discovery advertises a bench on the local network over mDNS and
// finds other benches doing the same.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// DefaultServiceName is the mDNS service name for benchd
	DefaultServiceName = "_benchd._tcp"
)

// Bench is a benchd instance found on the network
type Bench struct {
	Instance   string            `json:"instance" yaml:"instance"`
	Hostname   string            `json:"hostname" yaml:"hostname"`
	Address    string            `json:"address" yaml:"address"`
	Port       int               `json:"port" yaml:"port"`
	Version    string            `json:"version,omitempty" yaml:"version,omitempty"`
	APIPrefix  string            `json:"api_prefix,omitempty" yaml:"api_prefix,omitempty"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// URL is the bench's server root, using the advertised scheme
func (b Bench) URL() string {
	scheme := b.Properties["scheme"]
	if scheme != "https" {
		scheme = "http"
	}
	host := b.Address
	if host == "" {
		host = b.Hostname
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(b.Port))
}

// Advertiser publishes this bench under a service name
type Advertiser struct {
	instance    string
	port        int
	serviceType string
	txt         []string

	mu     sync.Mutex
	server *mdns.Server
}

// NewAdvertiser creates an Advertiser. info is published as TXT records.
func NewAdvertiser(serviceType string, port int, info map[string]string) *Advertiser {
	if serviceType == "" {
		serviceType = DefaultServiceName
	}
	return &Advertiser{
		port:        port,
		serviceType: serviceType,
		txt:         txtRecords(info),
	}
}

// Start begins advertising the bench on the network
func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	host, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}
	a.instance = host

	service, err := mdns.NewMDNSService(host, a.serviceType, "", "", a.port, nil, a.txt)
	if err != nil {
		return fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mDNS server: %w", err)
	}

	a.server = server
	return nil
}

// Instance is the advertised instance name, empty until Start succeeds
func (a *Advertiser) Instance() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.instance
}

// Stop terminates the mDNS advertisement
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	return err
}

// Browse queries for benches for up to timeout. Responses are merged per
// instance and returned sorted by instance name.
func Browse(ctx context.Context, serviceType string, timeout time.Duration) ([]Bench, error) {
	if serviceType == "" {
		serviceType = DefaultServiceName
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	entriesCh := make(chan *mdns.ServiceEntry, 16)
	found := make(map[string]Bench)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		for entry := range entriesCh {
			if b, ok := parseEntry(entry); ok {
				found[b.Instance] = b
			}
		}
	}()

	params := mdns.DefaultParams(serviceType)
	params.Timeout = timeout
	params.Entries = entriesCh
	params.DisableIPv6 = true

	err := mdns.Query(params)
	close(entriesCh)
	<-collected
	if err != nil {
		return nil, fmt.Errorf("mdns query failed: %w", err)
	}

	benches := make([]Bench, 0, len(found))
	for _, b := range found {
		benches = append(benches, b)
	}
	sort.Slice(benches, func(i, j int) bool { return benches[i].Instance < benches[j].Instance })
	return benches, nil
}

// parseEntry converts an mDNS entry into a Bench
func parseEntry(entry *mdns.ServiceEntry) (Bench, bool) {
	if entry == nil || entry.Name == "" {
		return Bench{}, false
	}

	b := Bench{
		Instance:   instanceName(entry.Name),
		Hostname:   strings.TrimSuffix(entry.Host, "."),
		Port:       entry.Port,
		Properties: make(map[string]string),
	}

	// Prefer IPv4 for simplicity
	if entry.AddrV4 != nil {
		b.Address = entry.AddrV4.String()
	} else if entry.AddrV6 != nil {
		b.Address = entry.AddrV6.String()
	}

	for _, field := range entry.InfoFields {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			b.Version = value
		case "api":
			b.APIPrefix = value
		default:
			b.Properties[key] = value
		}
	}

	if len(b.Properties) == 0 {
		b.Properties = nil
	}
	return b, true
}

// instanceName strips the service and domain from a full instance name
// such as "bench-01._benchd._tcp.local.".
func instanceName(full string) string {
	if i := strings.Index(full, "._"); i > 0 {
		return full[:i]
	}
	return strings.TrimSuffix(full, ".")
}

func txtRecords(info map[string]string) []string {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]string, 0, len(keys))
	for _, k := range keys {
		records = append(records, fmt.Sprintf("%s=%s", k, info[k]))
	}
	return records
}
