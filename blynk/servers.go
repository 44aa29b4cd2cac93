package blynk

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/net/idna"
)

// DefaultServers are the regional Blynk cloud endpoints in their initial
// preference order.
var DefaultServers = []string{
	"blynk.cloud",
	"fra1.blynk.cloud",
	"lon1.blynk.cloud",
	"ny3.blynk.cloud",
	"sgp1.blynk.cloud",
	"blr1.blynk.cloud",
}

// ServerList is an ordered set of hostnames. The host that last answered
// successfully is moved to the front so it is tried first next time.
type ServerList struct {
	hosts []string
}

// NewServerList normalises every host to its ASCII lookup form.
func NewServerList(hosts ...string) (*ServerList, error) {
	if len(hosts) == 0 {
		return nil, ErrNoServers
	}

	list := &ServerList{hosts: make([]string, 0, len(hosts))}
	for _, h := range hosts {
		h = strings.TrimSpace(h)
		if h == "" {
			return nil, fmt.Errorf("%w: empty hostname", ErrInvalidHost)
		}
		ascii, err := idna.Lookup.ToASCII(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %w", ErrInvalidHost, h, err)
		}
		if slices.Contains(list.hosts, ascii) {
			continue
		}
		list.hosts = append(list.hosts, ascii)
	}
	return list, nil
}

// Hosts returns a copy of the hosts in the order they will be tried.
func (l *ServerList) Hosts() []string {
	return slices.Clone(l.hosts)
}

func (l *ServerList) Len() int {
	return len(l.hosts)
}

// promote moves the host at index i to the front, keeping the relative order
// of the others.
func (l *ServerList) promote(i int) {
	if i <= 0 || i >= len(l.hosts) {
		return
	}
	host := l.hosts[i]
	copy(l.hosts[1:i+1], l.hosts[:i])
	l.hosts[0] = host
}
