package readiness

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is a dependency that must accept TCP connections before startup
// continues.
type Endpoint struct {
	Name string
	Host string
	Port int
}

func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	if e.Name != "" && e.Name != e.Address() {
		return e.Name + "(" + e.Address() + ")"
	}
	return e.Address()
}

// ParseEndpoint accepts "host:port" or "name=host:port".
func ParseEndpoint(value string) (Endpoint, error) {
	value = strings.TrimSpace(value)
	name := ""
	if idx := strings.Index(value, "="); idx >= 0 {
		name = strings.TrimSpace(value[:idx])
		value = strings.TrimSpace(value[idx+1:])
	}
	host, portText, err := net.SplitHostPort(value)
	if err != nil {
		return Endpoint{}, fmt.Errorf("readiness: invalid endpoint %q: %w", value, err)
	}
	if strings.TrimSpace(host) == "" {
		return Endpoint{}, fmt.Errorf("readiness: endpoint %q has no host", value)
	}
	port, err := strconv.Atoi(portText)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("readiness: endpoint %q has invalid port %q", value, portText)
	}
	if name == "" {
		name = net.JoinHostPort(host, portText)
	}
	return Endpoint{Name: name, Host: host, Port: port}, nil
}

// ParseEndpoints parses every entry of values. Entries may themselves be
// comma separated lists, as found in environment variables.
func ParseEndpoints(values []string) ([]Endpoint, error) {
	endpoints := make([]Endpoint, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			endpoint, err := ParseEndpoint(part)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, endpoint)
		}
	}
	return endpoints, nil
}
