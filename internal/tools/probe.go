package tools

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Dialer opens TCP connections for quick_port_scan.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Resolver is the subset of *net.Resolver used by dns_lookup_tool.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupMX(ctx context.Context, name string) ([]*net.MX, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
	LookupTXT(ctx context.Context, name string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupAddr(ctx context.Context, addr string) ([]string, error)
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

const (
	PortOpen     = "open"
	PortClosed   = "closed"
	PortFiltered = "filtered"

	maxScanPorts  = 50
	portProbeWait = time.Second
)

type PortState struct {
	Port  int    `json:"port"`
	State string `json:"state"`
}

type PortScanPayload struct {
	Target string      `json:"target"`
	Ports  []PortState `json:"ports"`
}

func (p PortScanPayload) Open() []int {
	open := make([]int, 0)
	for _, s := range p.Ports {
		if s.State == PortOpen {
			open = append(open, s.Port)
		}
	}
	return open
}

type DNSPayload struct {
	Target  string              `json:"target"`
	Records map[string][]string `json:"records"`
	Errors  map[string]string   `json:"errors,omitempty"`
}

// parsePortList accepts "22,80,8000-8010"; out-of-range entries are
// dropped and the list is capped at maxScanPorts.
func parsePortList(spec string) ([]int, error) {
	ports := make([]int, 0)
	seen := map[int]bool{}
	add := func(p int) {
		if p >= 1 && p <= 65535 && !seen[p] && len(ports) < maxScanPorts {
			seen[p] = true
			ports = append(ports, p)
		}
	}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, isRange := strings.Cut(part, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("bad port %q", part)
		}
		if !isRange {
			add(a)
			continue
		}
		b, err := strconv.Atoi(hi)
		if err != nil || b < a {
			return nil, fmt.Errorf("bad port range %q", part)
		}
		for p := a; p <= b && len(ports) < maxScanPorts; p++ {
			add(p)
		}
	}
	if len(ports) == 0 {
		return nil, errors.New("no valid ports")
	}
	return ports, nil
}

func (n *netTools) quickPortScan(ctx context.Context, p Params) Outcome {
	target := p.String("target")
	ports, err := parsePortList(p.String("ports"))
	if err != nil {
		return Failed(err.Error(), nil)
	}

	payload := PortScanPayload{Target: target, Ports: make([]PortState, 0, len(ports))}
	for _, port := range ports {
		if ctx.Err() != nil {
			return Failed("scan interrupted", payload)
		}
		payload.Ports = append(payload.Ports, PortState{Port: port, State: n.probePort(ctx, target, port)})
	}
	return Succeeded(payload)
}

func (n *netTools) probePort(ctx context.Context, host string, port int) string {
	dctx, cancel := context.WithTimeout(ctx, portProbeWait)
	defer cancel()
	conn, err := n.dialer.DialContext(dctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err == nil {
		conn.Close()
		return PortOpen
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return PortClosed
	}
	return PortFiltered
}

var dnsRecordTypes = map[string]bool{
	"A": true, "AAAA": true, "MX": true, "NS": true, "TXT": true, "CNAME": true, "PTR": true, "SRV": true,
}

func netResolver(nameserver string) Resolver {
	if nameserver == "" {
		return net.DefaultResolver
	}
	addr := nameserver
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, "53")
	}
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
}

func (n *netTools) dnsLookup(ctx context.Context, p Params) Outcome {
	target := p.String("target")
	types := make([]string, 0)
	for _, t := range strings.Split(p.String("record_types"), ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if dnsRecordTypes[t] {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		types = []string{"A"}
	}

	r := n.resolver(p.String("nameserver"))
	payload := DNSPayload{Target: target, Records: map[string][]string{}, Errors: map[string]string{}}
	for _, t := range types {
		recs, err := lookup(ctx, r, t, target)
		if err != nil {
			payload.Errors[t] = err.Error()
			continue
		}
		payload.Records[t] = recs
	}
	if len(payload.Records) == 0 {
		keys := make([]string, 0, len(payload.Errors))
		for k := range payload.Errors {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Failed(fmt.Sprintf("no %s records for %s: %s", strings.Join(keys, ","), target, payload.Errors[keys[0]]), payload)
	}
	return Succeeded(payload)
}

func lookup(ctx context.Context, r Resolver, rtype, target string) ([]string, error) {
	out := make([]string, 0)
	switch rtype {
	case "A", "AAAA":
		addrs, err := r.LookupIPAddr(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, a := range addrs {
			if (a.IP.To4() != nil) == (rtype == "A") {
				out = append(out, a.IP.String())
			}
		}
	case "MX":
		mxs, err := r.LookupMX(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, mx := range mxs {
			out = append(out, fmt.Sprintf("%d %s", mx.Pref, mx.Host))
		}
	case "NS":
		nss, err := r.LookupNS(ctx, target)
		if err != nil {
			return nil, err
		}
		for _, ns := range nss {
			out = append(out, ns.Host)
		}
	case "TXT":
		txt, err := r.LookupTXT(ctx, target)
		if err != nil {
			return nil, err
		}
		out = append(out, txt...)
	case "CNAME":
		cname, err := r.LookupCNAME(ctx, target)
		if err != nil {
			return nil, err
		}
		out = append(out, cname)
	case "PTR":
		names, err := r.LookupAddr(ctx, target)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	case "SRV":
		_, srvs, err := r.LookupSRV(ctx, "", "", target)
		if err != nil {
			return nil, err
		}
		for _, s := range srvs {
			out = append(out, fmt.Sprintf("%d %d %d %s", s.Priority, s.Weight, s.Port, s.Target))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no %s records found", rtype)
	}
	return out, nil
}
