package mdns

import (
	"context"
	"encoding/xml"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	wsDiscoveryAddr = "239.255.255.250:3702"
	maxPacketSize   = 4096
)

// DiscoveredDevice is one camera candidate found on the LAN.
type DiscoveredDevice struct {
	EndpointRef string   `json:"endpoint_ref"`
	XAddrs      []string `json:"xaddrs"`
	Scopes      []string `json:"scopes"`
	Types       []string `json:"types"`
}

type probeEnvelope struct {
	XMLName xml.Name  `xml:"http://www.w3.org/2003/05/soap-envelope Envelope"`
	Body    probeBody `xml:"Body"`
}

type probeBody struct {
	ProbeMatches probeMatches `xml:"http://schemas.xmlsoap.org/ws/2005/04/discovery ProbeMatches"`
}

type probeMatches struct {
	ProbeMatch []probeMatch `xml:"ProbeMatch"`
}

type probeMatch struct {
	EndpointReference struct {
		Address string `xml:"Address"`
	} `xml:"EndpointReference"`
	Types  string `xml:"Types"`
	Scopes string `xml:"Scopes"`
	XAddrs string `xml:"XAddrs"`
}

// Scan sends a WS-Discovery probe on the local network and collects
// ProbeMatch responses for duration, de-duplicated by endpoint
// reference (or, absent one, by the first XAddr). Grounded directly on
// `ws_discovery.go`'s `WSDiscoveryClient.Scan`.
func Scan(ctx context.Context, duration time.Duration) ([]DiscoveredDevice, error) {
	laddr, err := net.ResolveUDPAddr("udp4", ":0")
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	dst, err := net.ResolveUDPAddr("udp4", wsDiscoveryAddr)
	if err != nil {
		return nil, err
	}
	probe := buildProbeMessage(uuid.New().String())
	if _, err := conn.WriteToUDP([]byte(probe), dst); err != nil {
		return nil, err
	}

	devices := make(map[string]DiscoveredDevice)
	deadline := time.Now().Add(duration)
	buf := make([]byte, maxPacketSize)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		conn.SetReadDeadline(time.Now().Add(remaining))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		if dev, ok := parseProbeMatch(buf[:n]); ok {
			key := dev.EndpointRef
			if key == "" && len(dev.XAddrs) > 0 {
				key = dev.XAddrs[0]
			}
			if key != "" {
				devices[key] = dev
			}
		}
	}

	out := make([]DiscoveredDevice, 0, len(devices))
	for _, d := range devices {
		out = append(out, d)
	}
	return out, nil
}

func buildProbeMessage(messageID string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<e:Envelope xmlns:e="http://www.w3.org/2003/05/soap-envelope"
            xmlns:w="http://schemas.xmlsoap.org/ws/2004/08/addressing"
            xmlns:d="http://schemas.xmlsoap.org/ws/2005/04/discovery"
            xmlns:dn="http://www.onvif.org/ver10/network/wsdl">
  <e:Header>
    <w:MessageID>uuid:` + messageID + `</w:MessageID>
    <w:To>urn:schemas-xmlsoap-org:ws:2005:04:discovery</w:To>
    <w:Action>http://schemas.xmlsoap.org/ws/2005/04/discovery/Probe</w:Action>
  </e:Header>
  <e:Body>
    <d:Probe>
      <d:Types>dn:NetworkVideoTransmitter</d:Types>
    </d:Probe>
  </e:Body>
</e:Envelope>`
}

func parseProbeMatch(msg []byte) (DiscoveredDevice, bool) {
	var env probeEnvelope
	if err := xml.Unmarshal(msg, &env); err != nil {
		return DiscoveredDevice{}, false
	}
	if len(env.Body.ProbeMatches.ProbeMatch) == 0 {
		return DiscoveredDevice{}, false
	}
	m := env.Body.ProbeMatches.ProbeMatch[0]
	return DiscoveredDevice{
		EndpointRef: m.EndpointReference.Address,
		XAddrs:      splitWS(m.XAddrs),
		Scopes:      splitWS(m.Scopes),
		Types:       splitWS(m.Types),
	}, true
}

func splitWS(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
