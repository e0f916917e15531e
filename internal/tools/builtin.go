package tools

import (
	"net"
	"regexp"
)

const (
	hostPattern    = `^[\w.\-]+$`
	rangePattern   = `^[\w.\-/]+$`
	ipv4Pattern    = `^[\d.]+$`
	cidrPattern    = `^[\d.]+/\d+$`
	portsPattern   = `^[0-9,\-]+$`
	DefaultScanSet = "22,80,443,8080,8443"
)

var targetRE = regexp.MustCompile(hostPattern)

// BuiltinSpecs returns the catalog of network tools.
func BuiltinSpecs() []ToolSpec {
	argsParam := Param{Name: "arguments", Type: TypeString, Description: "Extra command-line arguments"}
	return []ToolSpec{
		{
			Name:        "ping_host",
			Description: "Ping a host to check reachability and round-trip time",
			Params: []Param{
				{Name: "target", Type: TypeString, Required: true, Pattern: hostPattern, Description: "IP address or hostname"},
				{Name: "count", Type: TypeInteger, Default: 4, Description: "Echo requests to send (1-20)"},
				{Name: "timeout", Type: TypeInteger, Default: 2, Description: "Seconds to wait per reply (1-10)"},
				argsParam,
			},
		},
		{
			Name:        "traceroute_host",
			Description: "Trace the network path to a host",
			Params: []Param{
				{Name: "target", Type: TypeString, Required: true, Pattern: hostPattern, Description: "IP address or hostname"},
				{Name: "max_hops", Type: TypeInteger, Default: 30, Description: "Maximum hops (1-64)"},
				{Name: "timeout", Type: TypeInteger, Default: 3, Description: "Seconds to wait per probe (1-10)"},
				argsParam,
			},
		},
		{
			Name:        "nmap_scan",
			Description: "Run an nmap scan against a host or CIDR range",
			Params: []Param{
				{Name: "target", Type: TypeString, Required: true, Pattern: rangePattern, Description: "IP, hostname or CIDR range"},
				{Name: "scan_type", Type: TypeEnum, Default: "basic", Enum: []string{"basic", "quick", "intense", "ping", "version", "os"}},
				{Name: "ports", Type: TypeString, Pattern: portsPattern, Description: `Ports such as "22,80,443" or "1-1000"`},
				argsParam,
			},
		},
		{
			Name:        "hping3_probe",
			Description: "Probe a host with hping3 using TCP, UDP, ICMP or raw IP packets",
			Params: []Param{
				{Name: "target", Type: TypeString, Required: true, Pattern: hostPattern, Description: "IP address or hostname"},
				{Name: "mode", Type: TypeEnum, Default: "syn", Enum: []string{"syn", "ack", "fin", "udp", "icmp", "rawip"}},
				{Name: "port", Type: TypeInteger, Default: 80, Description: "Destination port (1-65535)"},
				{Name: "count", Type: TypeInteger, Default: 4, Description: "Packets to send (1-100)"},
				{Name: "flags", Type: TypeString, Description: `Custom TCP flags for syn mode, e.g. "SA"`},
				argsParam,
			},
		},
		{
			Name:        "quick_port_scan",
			Description: "TCP connect scan of a short list of ports",
			Params: []Param{
				{Name: "target", Type: TypeString, Required: true, Pattern: ipv4Pattern, Description: "IPv4 address"},
				{Name: "ports", Type: TypeString, Default: DefaultScanSet, Pattern: portsPattern, Description: "Comma separated ports, at most 50"},
			},
		},
		{
			Name:        "arp_scan",
			Description: "Discover hosts on the local network with ARP",
			Params: []Param{
				{Name: "network", Type: TypeString, Default: "192.168.1.0/24", Pattern: cidrPattern, Description: "Network in CIDR notation"},
			},
		},
		{
			Name:        "dns_lookup_tool",
			Description: "Resolve DNS records for a name",
			Params: []Param{
				{Name: "target", Type: TypeString, Required: true, Description: "Domain name, or an address for PTR"},
				{Name: "record_types", Type: TypeString, Default: "A", Description: "Comma separated: A, AAAA, MX, NS, TXT, CNAME, PTR, SRV"},
				{Name: "nameserver", Type: TypeString, Pattern: `^[\w.:\-\[\]]+$`, Description: "DNS server to query, e.g. 8.8.8.8"},
			},
		},
		{
			Name:        "send_packet",
			Description: "Send a packet described as JSON layers and report the response",
			Params: []Param{
				{Name: "pkt_desc", Type: TypeString, Required: true, Description: `Layers as JSON, e.g. {"IP":{"dst":"10.0.0.1"},"TCP":{"dport":80,"flags":"S"}}`},
				{Name: "is_ethernet", Type: TypeBoolean, Default: false, Description: "Send at the link layer"},
				{Name: "want_response", Type: TypeBoolean, Default: true, Description: "Wait for a reply"},
			},
		},
		{
			Name:        "craft_packet_json",
			Description: "Validate and pretty-print a JSON packet description without sending it",
			Params: []Param{
				{Name: "pkt_desc", Type: TypeString, Required: true, Description: "Layers as JSON"},
			},
		},
	}
}

// Deps lets callers swap the system dependencies of the built-in tools.
type Deps struct {
	Runner   Runner
	Dialer   Dialer
	Resolver func(nameserver string) Resolver
}

// RegisterBuiltins registers every network tool on r.
func RegisterBuiltins(r *Registry, deps Deps) error {
	n := &netTools{run: deps.Runner, dialer: deps.Dialer, resolver: deps.Resolver}
	if n.run == nil {
		n.run = ExecRunner{}
	}
	if n.dialer == nil {
		n.dialer = &net.Dialer{}
	}
	if n.resolver == nil {
		n.resolver = netResolver
	}

	caps := map[string]CapabilityFunc{
		"ping_host":         n.ping,
		"traceroute_host":   n.traceroute,
		"nmap_scan":         n.nmap,
		"hping3_probe":      n.hping3,
		"quick_port_scan":   n.quickPortScan,
		"arp_scan":          n.arpScan,
		"dns_lookup_tool":   n.dnsLookup,
		"send_packet":       n.sendPacket,
		"craft_packet_json": n.craftPacket,
	}
	for _, spec := range BuiltinSpecs() {
		if err := r.Register(spec, caps[spec.Name]); err != nil {
			return err
		}
	}
	return nil
}
