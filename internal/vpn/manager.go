package vpn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fleetgate/fleetgate-server/internal/config"
	"github.com/fleetgate/fleetgate-server/internal/models"
	"github.com/fleetgate/fleetgate-server/internal/storage"
)

// Manager renders VPN client configuration for devices and assembles the
// per-device network rule set around it.
type Manager struct {
	store storage.Store
	cfg   config.VPNConfig
}

// NewManager creates a VPN manager
func NewManager(store storage.Store, cfg config.VPNConfig) *Manager {
	return &Manager{store: store, cfg: cfg}
}

// NATRule maps one internal address onto the device's VPN address
type NATRule struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

// ClientConfig is the VPN block attached to a check-in response
type ClientConfig struct {
	OpenVPN    string    `json:"openvpn"`
	NAT        []NATRule `json:"nat"`
	Masquerade []string  `json:"masquerade"`
	Routes     []string  `json:"routes"`
}

// GenerateConfiguration renders the protocol-native client configuration
// text for a device, inlining its stored certificate material.
func (m *Manager) GenerateConfiguration(ctx context.Context, dev *models.Device) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	cert, err := m.store.GetCertificate(ctx, dev.ID, models.CertificateVpnClient)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", fmt.Errorf("device %s has no vpn-client certificate", dev.DeviceUUID)
		}
		return "", fmt.Errorf("load certificate: %w", err)
	}

	var b strings.Builder
	b.WriteString("client\n")
	b.WriteString("dev tun\n")
	fmt.Fprintf(&b, "remote %s %d %s\n", m.cfg.RemoteHost, m.cfg.RemotePort, m.cfg.Proto)
	b.WriteString("nobind\n")
	b.WriteString("persist-key\n")
	b.WriteString("persist-tun\n")
	b.WriteString("remote-cert-tls server\n")
	fmt.Fprintf(&b, "cipher %s\n", m.cfg.Cipher)
	b.WriteString("verb 3\n")

	writeTag(&b, "ca", cert.CAPEM)
	writeTag(&b, "cert", cert.CertPEM)
	writeTag(&b, "key", cert.KeyPEM)

	return b.String(), nil
}

func writeTag(b *strings.Builder, tag, body string) {
	fmt.Fprintf(b, "<%s>\n", tag)
	b.WriteString(strings.Trim(body, "\n"))
	b.WriteString("\n")
	fmt.Fprintf(b, "</%s>\n", tag)
}

// AssembleClientConfig combines the rendered configuration with the
// device's NAT rules, masquerade rules and routes.
func (m *Manager) AssembleClientConfig(ctx context.Context, dev *models.Device, devType *models.DeviceType) (*ClientConfig, error) {
	raw, err := m.GenerateConfiguration(ctx, dev)
	if err != nil {
		return nil, err
	}

	cc := &ClientConfig{OpenVPN: raw}

	cc.NAT = append(cc.NAT, NATRule{Source: dev.VirtualIP, Destination: dev.VpnIP})
	if devType.EndpointDevicesEnabled {
		endpoints, err := m.store.ListEndpointDevices(ctx, dev.ID)
		if err != nil {
			return nil, fmt.Errorf("list endpoint devices: %w", err)
		}
		for _, ep := range endpoints {
			cc.NAT = append(cc.NAT, NATRule{Source: ep.Address, Destination: dev.VpnIP})
		}
	}

	if devType.MasqueradeEnabled {
		switch dev.MasqueradeType {
		case models.MasqueradeDefault:
			cc.Masquerade = []string{m.cfg.DeviceSubnet, m.cfg.TechnicianSubnet}
		case models.MasqueradeCustom:
			cc.Masquerade = append(cc.Masquerade, dev.MasqueradeSubnets...)
		case models.MasqueradeNone:
			// no masquerade rules
		}
	}

	for _, route := range []string{m.cfg.DeviceSubnet, m.cfg.TechnicianSubnet, dev.VirtualSubnet} {
		if route != "" {
			cc.Routes = append(cc.Routes, route)
		}
	}

	return cc, nil
}

// GatewayAddress returns the VPN gateway address devices connect through
func (m *Manager) GatewayAddress() string {
	return m.cfg.GatewayAddress
}
