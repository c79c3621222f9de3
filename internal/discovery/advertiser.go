// Package discovery advertises the OPC port over mDNS so clients on the
// local network can find the server without configuration.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

const (
	// ServiceType is the DNS-SD service type for Open Pixel Control.
	ServiceType = "_opc._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// maxInstanceNameLen is the DNS label limit.
	maxInstanceNameLen = 63
)

// ErrAlreadyStarted is returned when Start is called on a running advertiser.
var ErrAlreadyStarted = errors.New("discovery: already advertising")

// service is the part of *zeroconf.Server the advertiser uses.
type service interface {
	SetText(txt []string)
	Shutdown()
}

type registerFunc func(instance, svcType, domain string, port int, txt []string, ifaces []net.Interface) (service, error)

func zeroconfRegister(instance, svcType, domain string, port int, txt []string, ifaces []net.Interface) (service, error) {
	server, err := zeroconf.Register(instance, svcType, domain, port, txt, ifaces)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// Config configures an Advertiser.
type Config struct {
	// Instance is the advertised instance name.
	Instance string
	// Version is published in the TXT record.
	Version string
	// Interface restricts advertising to one network interface. Empty
	// means all interfaces.
	Interface string
}

// Advertiser publishes one _opc._tcp service.
type Advertiser struct {
	cfg      Config
	register registerFunc

	mu      sync.Mutex
	server  service
	devices int
}

// NewAdvertiser creates an advertiser. Nothing is published until Start.
func NewAdvertiser(cfg Config) *Advertiser {
	if cfg.Instance == "" {
		cfg.Instance = "fcserver"
	}
	if len(cfg.Instance) > maxInstanceNameLen {
		cfg.Instance = cfg.Instance[:maxInstanceNameLen]
	}
	return &Advertiser{cfg: cfg, register: zeroconfRegister}
}

// Start advertises port on the local network.
func (a *Advertiser) Start(port int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return ErrAlreadyStarted
	}

	server, err := a.register(a.cfg.Instance, ServiceType, Domain, port, a.txt(), a.interfaces())
	if err != nil {
		return fmt.Errorf("registering %s service: %w", ServiceType, err)
	}
	a.server = server
	return nil
}

// SetDeviceCount updates the number of attached devices in the TXT record.
func (a *Advertiser) SetDeviceCount(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n == a.devices {
		return
	}
	a.devices = n
	if a.server != nil {
		a.server.SetText(a.txt())
	}
}

// Stop withdraws the advertisement. It is safe to call more than once.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func (a *Advertiser) txt() []string {
	txt := []string{"devices=" + strconv.Itoa(a.devices)}
	if a.cfg.Version != "" {
		txt = append(txt, "version="+a.cfg.Version)
	}
	return txt
}

// interfaces returns nil, meaning all interfaces, unless one is configured
// and exists.
func (a *Advertiser) interfaces() []net.Interface {
	if a.cfg.Interface == "" {
		return nil
	}
	iface, err := net.InterfaceByName(a.cfg.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
