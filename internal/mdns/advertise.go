package mdns

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
)

const (
	mdnsAddr         = "224.0.0.251:5353"
	serviceType      = "_http._tcp.local"
	announceInterval = 30 * time.Second
)

// Advertiser periodically announces this process as an `_http._tcp`
// mDNS service and answers matching queries on demand (spec.md §6:
// "instance name containing physical-mcp, port = vision-api port").
type Advertiser struct {
	instance string
	host     string
	port     int
	log      zerolog.Logger
}

// New builds an Advertiser for the given vision-api port. The instance
// name is "physical-mcp @ <hostname>".
func New(port int, log zerolog.Logger) *Advertiser {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}
	return &Advertiser{
		instance: fmt.Sprintf("physical-mcp @ %s", hostname),
		host:     hostname,
		port:     port,
		log:      log,
	}
}

// Run joins the mDNS multicast group, answers incoming queries for our
// service type, and sends an unsolicited announcement every
// announceInterval, until ctx is cancelled.
func (a *Advertiser) Run(ctx context.Context) error {
	group, err := net.ResolveUDPAddr("udp4", mdnsAddr)
	if err != nil {
		return err
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, group)
	if err != nil {
		return err
	}
	defer conn.Close()

	go a.listen(ctx, conn)

	ticker := time.NewTicker(announceInterval)
	defer ticker.Stop()

	a.announce(conn, group)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.announce(conn, group)
		}
	}
}

func (a *Advertiser) listen(ctx context.Context, conn *net.UDPConn) {
	buf := make([]byte, 4096)
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		for _, name := range parseQuestionNames(buf[:n]) {
			if name == serviceType {
				a.replyTo(conn, addr)
				break
			}
		}
	}
}

func (a *Advertiser) replyTo(conn *net.UDPConn, addr *net.UDPAddr) {
	group, err := net.ResolveUDPAddr("udp4", mdnsAddr)
	if err != nil {
		return
	}
	_, _ = conn.WriteToUDP(a.packet(), group)
	_ = addr
}

func (a *Advertiser) announce(conn *net.UDPConn, group *net.UDPAddr) {
	if _, err := conn.WriteToUDP(a.packet(), group); err != nil {
		a.log.Warn().Err(err).Msg("mdns: failed to send announcement")
	}
}

// packet builds one mDNS response: PTR (service type -> instance), SRV
// (instance -> host:port), TXT (empty).
func (a *Advertiser) packet() []byte {
	instanceFQDN := a.instance + "." + serviceType
	hostFQDN := a.host + ".local"

	ptr := resourceRecord(serviceType, typePTR, classIN, 120, encodeName(instanceFQDN))
	srv := resourceRecord(instanceFQDN, typeSRV, classIN, 120, srvRData(0, 0, uint16(a.port), hostFQDN))
	txt := resourceRecord(instanceFQDN, typeTXT, classIN, 120, txtRData(nil))

	hdr := header(0, 0x8400, 0, 3, 0, 0) // QR=1, AA=1 (mDNS response)
	msg := append([]byte{}, hdr...)
	msg = append(msg, ptr...)
	msg = append(msg, srv...)
	msg = append(msg, txt...)
	return msg
}
