// Package vlan moves switch access ports between VLANs over RESTCONF.
package vlan

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strefethen/room-combine-go/internal/retry"
	"github.com/strefethen/room-combine-go/internal/topology"
)

const interfacePath = "/restconf/data/Cisco-IOS-XE-native:native/interface"

// StatusError is any switch response other than 204 No Content.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("switch returned http %d", e.Status)
	}
	return fmt.Sprintf("switch returned http %d: %s", e.Status, e.Body)
}

// Configurator applies access-VLAN membership to switch ports.
type Configurator struct {
	httpClient *http.Client
	sw         topology.SwitchSpec
	policy     retry.Policy
	logger     *zerolog.Logger
}

// NewConfigurator creates a Configurator for one switch.
func NewConfigurator(sw topology.SwitchSpec, timeout time.Duration, insecureTLS bool, policy retry.Policy, logger *zerolog.Logger) *Configurator {
	if logger == nil {
		logger = &log.Logger
	}
	componentLogger := logger.With().Str("component", "vlan").Str("switch", sw.Host).Logger()

	return &Configurator{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext:     (&net.Dialer{Timeout: timeout}).DialContext,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: insecureTLS},
				IdleConnTimeout: 90 * time.Second,
			},
		},
		sw:     sw,
		policy: policy,
		logger: &componentLogger,
	}
}

// Combine moves the node's ports onto the primary VLAN.
func (c *Configurator) Combine(ctx context.Context, node *topology.NodeSpec, primaryVLAN int) error {
	return c.Assign(ctx, node, primaryVLAN)
}

// Split moves the node's ports back to its own VLAN.
func (c *Configurator) Split(ctx context.Context, node *topology.NodeSpec) error {
	return c.Assign(ctx, node, node.VLANID)
}

// Assign resolves the node's ports and applies vlanID, retrying under the
// configured policy until the switch answers 204.
func (c *Configurator) Assign(ctx context.Context, node *topology.NodeSpec, vlanID int) error {
	ports, err := c.sw.PortsFor(node)
	if err != nil {
		return err
	}

	name := fmt.Sprintf("vlan %d on %s", vlanID, node.ID)
	err = retry.Do(ctx, c.policy, c.logger, name, func(ctx context.Context) error {
		return c.Apply(ctx, ports, vlanID)
	})
	if err != nil {
		c.logger.Error().Err(err).Str("node", string(node.ID)).Int("vlan", vlanID).Msg("vlan change failed")
		return err
	}

	c.logger.Info().
		Str("node", string(node.ID)).
		Int("vlan", vlanID).
		Strs("ports", ports).
		Msg("vlan applied")
	return nil
}

type accessVLAN struct {
	VLAN int `json:"vlan"`
}

type switchportAccess struct {
	VLAN accessVLAN `json:"vlan"`
}

type switchport struct {
	Access switchportAccess `json:"Cisco-IOS-XE-switch:access"`
}

type gigabitEthernet struct {
	Name       string     `json:"name"`
	Switchport switchport `json:"switchport"`
}

type interfaceBody struct {
	Interface struct {
		GigabitEthernet []gigabitEthernet `json:"GigabitEthernet"`
	} `json:"Cisco-IOS-XE-native:interface"`
}

// BuildBody renders the RESTCONF PATCH document for ports and vlanID.
func BuildBody(ports []string, vlanID int) ([]byte, error) {
	var body interfaceBody
	for _, port := range ports {
		body.Interface.GigabitEthernet = append(body.Interface.GigabitEthernet, gigabitEthernet{
			Name: port,
			Switchport: switchport{
				Access: switchportAccess{VLAN: accessVLAN{VLAN: vlanID}},
			},
		})
	}
	return json.Marshal(body)
}

// Apply sends a single PATCH. Success is exactly 204.
func (c *Configurator) Apply(ctx context.Context, ports []string, vlanID int) error {
	body, err := BuildBody(ports, vlanID)
	if err != nil {
		return err
	}

	endpoint := "https://" + c.sw.Host + interfacePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/yang-data+json")
	req.Header.Set("Accept", "application/yang-data+json")
	req.SetBasicAuth(c.sw.Username, c.sw.Password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("patch %s: %w", c.sw.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	return nil
}
