package pipeline

import (
	"net/netip"
	"strings"

	"github.com/intellicloud/netsentry/pkg/models"
)

// rfc1918 are the private ranges counted as "inside" alongside loopback
// and link-local addresses.
var rfc1918 = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

// suspiciousPorts are destination ports that raise TCP flows to High.
var suspiciousPorts = map[int]bool{
	22:   true, // ssh
	23:   true, // telnet
	25:   true, // smtp
	445:  true, // smb
	1433: true, // mssql
	3389: true, // rdp
	5900: true, // vnc
}

// IsInside reports whether ip is loopback, link-local, or RFC1918.
// Addresses that fail to parse are not inside.
func IsInside(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return true
	}
	for _, net := range rfc1918 {
		if net.Contains(addr) {
			return true
		}
	}
	return false
}

// InferDirection classifies a flow by which endpoints are inside.
func InferDirection(src, dst string) string {
	srcIn, dstIn := IsInside(src), IsInside(dst)
	switch {
	case srcIn && dstIn:
		return models.DirectionInternal
	case srcIn:
		return models.DirectionOutbound
	case dstIn:
		return models.DirectionInbound
	default:
		return models.DirectionExternal
	}
}

// ScoreSeverity is High exactly for TCP flows to a suspicious port.
func ScoreSeverity(proto string, dport *int) string {
	if dport != nil && strings.EqualFold(proto, "tcp") && suspiciousPorts[*dport] {
		return models.SeverityHigh
	}
	return models.SeverityLow
}
