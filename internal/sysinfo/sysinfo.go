// Package sysinfo supplies the read-only status shown in the IDLE
// sub-views: hostname, network association and the system clock.
package sysinfo

import (
	"net"
	"os"
	"strings"
	"sync"
	"time"
)

// Info is a snapshot of the host status.
type Info struct {
	Hostname  string
	Interface string // first non-loopback interface that is up
	IP        string
	Wireless  bool
	Now       time.Time
}

// Provider caches Info so the control loop never performs interface
// enumeration on every frame.
type Provider struct {
	refresh time.Duration

	mu        sync.Mutex
	cached    Info
	fetchedAt time.Time
}

func NewProvider(refresh time.Duration) *Provider {
	return &Provider{refresh: refresh}
}

// Info returns the cached snapshot, refreshing it when stale. Now is
// always current.
func (p *Provider) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.fetchedAt) >= p.refresh || p.fetchedAt.IsZero() {
		p.cached = fetch()
		p.fetchedAt = now
	}
	info := p.cached
	info.Now = now
	return info
}

func fetch() Info {
	var info Info
	info.Hostname, _ = os.Hostname()

	ifaces, err := net.Interfaces()
	if err != nil {
		return info
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.To4() == nil {
				continue
			}
			info.Interface = iface.Name
			info.IP = ipnet.IP.String()
			info.Wireless = strings.HasPrefix(iface.Name, "wl")
			return info
		}
	}
	return info
}
