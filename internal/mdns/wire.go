// Package mdns implements the minimal mDNS service advertisement
// spec.md §6 names (`_http._tcp`, port = vision-api port) and a
// WS-Discovery-style LAN camera probe for `GET /cameras/discover`
// (spec.md §4.11). No mDNS/zeroconf or WS-Discovery client library
// appears anywhere in the retrieval pack, so both are hand-rolled over
// stdlib UDP sockets (`net.ListenMulticastUDP` for the advertisement,
// a plain `net.ListenUDP` socket that probes the multicast group for
// discovery) — the discovery half is a direct
// generalization of
// `_examples/SudharshanMutalik46-ts-vms-v1.0/internal/discovery/ws_discovery.go`'s
// `WSDiscoveryClient.Scan` (probe, then collect-until-deadline), and the
// advertisement half reuses the same raw-packet-over-UDP approach for
// the other direction (answering instead of probing).
package mdns

import "encoding/binary"

const (
	typePTR = 12
	typeSRV = 33
	typeTXT = 16
	typeA   = 1
	classIN = 1
)

// encodeName DNS-encodes a dotted name ("physical-mcp._http._tcp.local")
// as length-prefixed labels terminated by a zero byte. No name
// compression; every message here is small enough that it doesn't
// matter.
func encodeName(name string) []byte {
	var out []byte
	start := 0
	for i := 0; i <= len(name); i++ {
		if i == len(name) || name[i] == '.' {
			if i > start {
				label := name[start:i]
				out = append(out, byte(len(label)))
				out = append(out, label...)
			}
			start = i + 1
		}
	}
	out = append(out, 0)
	return out
}

// header builds a 12-byte DNS message header.
func header(id uint16, flags uint16, qd, an, ns, ar uint16) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint16(buf[0:], id)
	binary.BigEndian.PutUint16(buf[2:], flags)
	binary.BigEndian.PutUint16(buf[4:], qd)
	binary.BigEndian.PutUint16(buf[6:], an)
	binary.BigEndian.PutUint16(buf[8:], ns)
	binary.BigEndian.PutUint16(buf[10:], ar)
	return buf
}

// resourceRecord builds one RR: NAME TYPE CLASS TTL RDLENGTH RDATA.
func resourceRecord(name string, rrType uint16, class uint16, ttl uint32, rdata []byte) []byte {
	var buf []byte
	buf = append(buf, encodeName(name)...)
	tmp := make([]byte, 8)
	binary.BigEndian.PutUint16(tmp[0:], rrType)
	binary.BigEndian.PutUint16(tmp[2:], class)
	binary.BigEndian.PutUint32(tmp[4:], ttl)
	buf = append(buf, tmp...)
	rdlen := make([]byte, 2)
	binary.BigEndian.PutUint16(rdlen, uint16(len(rdata)))
	buf = append(buf, rdlen...)
	buf = append(buf, rdata...)
	return buf
}

// srvRData builds SRV record data: priority weight port target.
func srvRData(priority, weight, port uint16, target string) []byte {
	buf := make([]byte, 6)
	binary.BigEndian.PutUint16(buf[0:], priority)
	binary.BigEndian.PutUint16(buf[2:], weight)
	binary.BigEndian.PutUint16(buf[4:], port)
	return append(buf, encodeName(target)...)
}

// txtRData builds TXT record data from a set of "key=value" strings.
func txtRData(pairs []string) []byte {
	var buf []byte
	for _, p := range pairs {
		buf = append(buf, byte(len(p)))
		buf = append(buf, p...)
	}
	if buf == nil {
		buf = []byte{0}
	}
	return buf
}

// parseQuestionNames extracts the queried names from a (possibly
// malformed) DNS message's question section, best-effort. Used only to
// decide whether an incoming mDNS query is asking about our service;
// a parse failure just means we don't answer that packet.
func parseQuestionNames(msg []byte) []string {
	if len(msg) < 12 {
		return nil
	}
	qdcount := binary.BigEndian.Uint16(msg[4:6])
	offset := 12
	var names []string
	for i := 0; i < int(qdcount); i++ {
		name, next, ok := readName(msg, offset)
		if !ok {
			break
		}
		names = append(names, name)
		offset = next + 4 // skip QTYPE + QCLASS
	}
	return names
}

// readName decodes one DNS name starting at offset (no compression
// support, sufficient for the simple queries mDNS clients send).
func readName(msg []byte, offset int) (string, int, bool) {
	var labels []string
	for {
		if offset >= len(msg) {
			return "", 0, false
		}
		n := int(msg[offset])
		if n == 0 {
			offset++
			break
		}
		if n&0xC0 != 0 {
			// Compressed name pointer; not supported here.
			return "", 0, false
		}
		offset++
		if offset+n > len(msg) {
			return "", 0, false
		}
		labels = append(labels, string(msg[offset:offset+n]))
		offset += n
	}
	name := ""
	for i, l := range labels {
		if i > 0 {
			name += "."
		}
		name += l
	}
	return name, offset, true
}
