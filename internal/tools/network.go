package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PingPayload is the parsed result of ping_host.
type PingPayload struct {
	Target          string   `json:"target"`
	PacketsSent     int      `json:"packets_sent"`
	PacketsReceived int      `json:"packets_received"`
	PacketLoss      float64  `json:"packet_loss"`
	RTTMin          *float64 `json:"rtt_min,omitempty"`
	RTTAvg          *float64 `json:"rtt_avg,omitempty"`
	RTTMax          *float64 `json:"rtt_max,omitempty"`
	Raw             string   `json:"raw_output"`
}

type Hop struct {
	Hop      int      `json:"hop"`
	Hostname string   `json:"hostname"`
	IP       string   `json:"ip"`
	RTT      *float64 `json:"rtt_ms,omitempty"` // mean of the probes that answered
}

type TraceroutePayload struct {
	Target string `json:"target"`
	Hops   []Hop  `json:"hops"`
	Raw    string `json:"raw_output"`
}

type OpenPort struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	Service  string `json:"service"`
}

type NmapPayload struct {
	Target    string     `json:"target"`
	ScanType  string     `json:"scan_type"`
	OpenPorts []OpenPort `json:"open_ports"`
	Raw       string     `json:"raw_output"`
}

type Hping3Payload struct {
	Target   string `json:"target"`
	Mode     string `json:"mode"`
	Port     int    `json:"port,omitempty"`
	Sent     int    `json:"packets_sent"`
	Received int    `json:"packets_received"`
	Raw      string `json:"raw_output"`
}

type ARPHost struct {
	IP     string `json:"ip"`
	MAC    string `json:"mac"`
	Vendor string `json:"vendor,omitempty"`
}

type ARPPayload struct {
	Network string    `json:"network"`
	Hosts   []ARPHost `json:"hosts"`
	Raw     string    `json:"raw_output"`
}

var (
	pingLossRE  = regexp.MustCompile(`([\d.]+)% packet loss`)
	pingCountRE = regexp.MustCompile(`(\d+) packets transmitted, (\d+) (?:packets )?received`)
	pingRTTRE   = regexp.MustCompile(`(?:rtt|round-trip) min/avg/max/(?:mdev|stddev) = ([\d.]+)/([\d.]+)/([\d.]+)`)
	hopRE       = regexp.MustCompile(`^\s*(\d+)\s+(\S+)\s+\(([\d.]+)\)(.*)`)
	hopRTTRE    = regexp.MustCompile(`([\d.]+)\s+ms`)
	nmapPortRE  = regexp.MustCompile(`^(\d+)/(\w+)\s+open\s+(\S+)`)
	hpingSumRE  = regexp.MustCompile(`(\d+) packets transmitted, (\d+) packets received`)
	macRE       = regexp.MustCompile(`^([0-9a-fA-F]{2}:){5}[0-9a-fA-F]{2}$`)
)

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func extraArgs(p Params) []string {
	return strings.Fields(p.String("arguments"))
}

// netTools holds the dependencies shared by the built-in capabilities.
type netTools struct {
	run      Runner
	dialer   Dialer
	resolver func(nameserver string) Resolver
}

func (n *netTools) require(bin string) (Outcome, bool) {
	if _, err := n.run.LookPath(bin); err != nil {
		return Failed(fmt.Sprintf("%s is not installed", bin), nil), false
	}
	return Outcome{}, true
}

func (n *netTools) ping(ctx context.Context, p Params) Outcome {
	target := p.String("target")
	count := clamp(p.Int("count"), 1, 20)
	timeout := clamp(p.Int("timeout"), 1, 10)

	args := []string{"-c", strconv.Itoa(count), "-W", strconv.Itoa(timeout)}
	args = append(args, extraArgs(p)...)
	args = append(args, target)

	res, err := n.run.Run(ctx, "ping", args...)
	if err != nil {
		return Failed(fmt.Sprintf("ping: %v", err), nil)
	}
	payload := parsePing(target, count, res.Stdout)
	if res.ExitCode != 0 {
		msg := fmt.Sprintf("%s unreachable (%.0f%% packet loss)", target, payload.PacketLoss)
		if payload.PacketsReceived == 0 && !pingLossRE.MatchString(res.Stdout) {
			msg = fmt.Sprintf("ping exited %d: %s", res.ExitCode, res.Output())
		}
		return Failed(msg, payload)
	}
	return Succeeded(payload)
}

func parsePing(target string, count int, out string) PingPayload {
	pl := PingPayload{Target: target, PacketsSent: count, PacketLoss: 100, Raw: out}
	if m := pingCountRE.FindStringSubmatch(out); m != nil {
		pl.PacketsSent, _ = strconv.Atoi(m[1])
		pl.PacketsReceived, _ = strconv.Atoi(m[2])
	}
	if m := pingLossRE.FindStringSubmatch(out); m != nil {
		pl.PacketLoss, _ = strconv.ParseFloat(m[1], 64)
		if pingCountRE.FindStringSubmatch(out) == nil {
			pl.PacketsReceived = int(float64(count) * (100 - pl.PacketLoss) / 100)
		}
	}
	if m := pingRTTRE.FindStringSubmatch(out); m != nil {
		pl.RTTMin = parseFloatPtr(m[1])
		pl.RTTAvg = parseFloatPtr(m[2])
		pl.RTTMax = parseFloatPtr(m[3])
	}
	return pl
}

func parseFloatPtr(s string) *float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func (n *netTools) traceroute(ctx context.Context, p Params) Outcome {
	if out, ok := n.require("traceroute"); !ok {
		return out
	}
	target := p.String("target")
	hops := clamp(p.Int("max_hops"), 1, 64)
	wait := clamp(p.Int("timeout"), 1, 10)

	args := []string{"-m", strconv.Itoa(hops), "-w", strconv.Itoa(wait)}
	args = append(args, extraArgs(p)...)
	args = append(args, target)

	res, err := n.run.Run(ctx, "traceroute", args...)
	if err != nil {
		return Failed(fmt.Sprintf("traceroute: %v", err), nil)
	}
	payload := TraceroutePayload{Target: target, Hops: parseHops(res.Stdout), Raw: res.Stdout}
	if res.ExitCode != 0 {
		return Failed(fmt.Sprintf("traceroute exited %d: %s", res.ExitCode, res.Output()), payload)
	}
	return Succeeded(payload)
}

func parseHops(out string) []Hop {
	hops := make([]Hop, 0)
	for _, line := range strings.Split(out, "\n") {
		m := hopRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		h := Hop{Hop: n, Hostname: m[2], IP: m[3]}
		if rtts := hopRTTRE.FindAllStringSubmatch(m[4], -1); len(rtts) > 0 {
			var sum float64
			var got int
			for _, r := range rtts {
				if f, err := strconv.ParseFloat(r[1], 64); err == nil {
					sum += f
					got++
				}
			}
			if got > 0 {
				avg := sum / float64(got)
				h.RTT = &avg
			}
		}
		hops = append(hops, h)
	}
	return hops
}

var nmapScanArgs = map[string][]string{
	"basic":   {"-sT", "-T3"},
	"quick":   {"-sn"},
	"intense": {"-sS", "-sV", "-T4"},
	"ping":    {"-sn", "-PE"},
	"version": {"-sV"},
	"os":      {"-O"},
}

func (n *netTools) nmap(ctx context.Context, p Params) Outcome {
	if out, ok := n.require("nmap"); !ok {
		return out
	}
	target := p.String("target")
	scan := p.String("scan_type")

	args := append([]string{}, nmapScanArgs[scan]...)
	if ports := p.String("ports"); ports != "" {
		args = append(args, "-p", ports)
	}
	args = append(args, extraArgs(p)...)
	args = append(args, target)

	res, err := n.run.Run(ctx, "nmap", args...)
	if err != nil {
		return Failed(fmt.Sprintf("nmap: %v", err), nil)
	}
	payload := NmapPayload{Target: target, ScanType: scan, OpenPorts: parseNmapPorts(res.Stdout), Raw: res.Stdout}
	if res.ExitCode != 0 {
		return Failed(fmt.Sprintf("nmap exited %d: %s", res.ExitCode, res.Output()), payload)
	}
	return Succeeded(payload)
}

func parseNmapPorts(out string) []OpenPort {
	ports := make([]OpenPort, 0)
	for _, line := range strings.Split(out, "\n") {
		m := nmapPortRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		port, _ := strconv.Atoi(m[1])
		ports = append(ports, OpenPort{Port: port, Protocol: m[2], Service: m[3]})
	}
	return ports
}

var (
	hpingModeFlags = map[string]string{
		"syn":   "-S",
		"ack":   "-A",
		"fin":   "-F",
		"udp":   "-2",
		"icmp":  "-1",
		"rawip": "-0",
	}
	tcpFlagArgs = map[rune]string{'S': "-S", 'A': "-A", 'F': "-F", 'R': "-R", 'U': "-U", 'P': "-P"}
)

func hpingArgs(mode string, port, count int, flags string, extra []string, target string) []string {
	args := []string{"-c", strconv.Itoa(count)}
	if flags != "" && mode == "syn" {
		for _, f := range strings.ToUpper(flags) {
			if a, ok := tcpFlagArgs[f]; ok {
				args = append(args, a)
			}
		}
	} else {
		args = append(args, hpingModeFlags[mode])
	}
	if mode != "icmp" && mode != "rawip" {
		args = append(args, "-p", strconv.Itoa(port))
	}
	args = append(args, extra...)
	return append(args, target)
}

func (n *netTools) hping3(ctx context.Context, p Params) Outcome {
	if out, ok := n.require("hping3"); !ok {
		return out
	}
	target := p.String("target")
	mode := p.String("mode")
	port := clamp(p.Int("port"), 1, 65535)
	count := clamp(p.Int("count"), 1, 100)

	res, err := n.run.Run(ctx, "hping3", hpingArgs(mode, port, count, p.String("flags"), extraArgs(p), target)...)
	if err != nil {
		return Failed(fmt.Sprintf("hping3: %v", err), nil)
	}
	payload := parseHping(target, mode, port, count, res)
	if res.ExitCode != 0 && payload.Received == 0 {
		return Failed(fmt.Sprintf("hping3 exited %d: %s", res.ExitCode, res.Output()), payload)
	}
	return Succeeded(payload)
}

// hping3 prints its statistics to stderr.
func parseHping(target, mode string, port, count int, res CommandResult) Hping3Payload {
	raw := res.Stdout + res.Stderr
	pl := Hping3Payload{Target: target, Mode: mode, Sent: count, Raw: raw}
	if mode != "icmp" && mode != "rawip" {
		pl.Port = port
	}
	if m := hpingSumRE.FindStringSubmatch(raw); m != nil {
		pl.Sent, _ = strconv.Atoi(m[1])
		pl.Received, _ = strconv.Atoi(m[2])
	}
	return pl
}

func (n *netTools) arpScan(ctx context.Context, p Params) Outcome {
	if out, ok := n.require("arp-scan"); !ok {
		return out
	}
	network := p.String("network")
	res, err := n.run.Run(ctx, "arp-scan", "--plain", "--quiet", network)
	if err != nil {
		return Failed(fmt.Sprintf("arp-scan: %v", err), nil)
	}
	payload := ARPPayload{Network: network, Hosts: parseARP(res.Stdout), Raw: res.Stdout}
	if res.ExitCode != 0 {
		return Failed(fmt.Sprintf("arp-scan exited %d: %s", res.ExitCode, res.Output()), payload)
	}
	return Succeeded(payload)
}

func parseARP(out string) []ARPHost {
	hosts := make([]ARPHost, 0)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), "\t")
		if len(fields) < 2 || !macRE.MatchString(fields[1]) {
			continue
		}
		h := ARPHost{IP: fields[0], MAC: strings.ToLower(fields[1])}
		if len(fields) > 2 {
			h.Vendor = fields[2]
		}
		hosts = append(hosts, h)
	}
	return hosts
}
