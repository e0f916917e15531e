package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

var allowedLayers = map[string]bool{
	"Ether": true, "IP": true, "ARP": true, "TCP": true, "UDP": true, "ICMP": true, "Raw": true,
}

type CraftPayload struct {
	Layers []string `json:"layers"`
	JSON   string   `json:"json"`
}

type SendPayload struct {
	Layers   []string `json:"layers"`
	Command  []string `json:"command"`
	Sent     int      `json:"packets_sent"`
	Received int      `json:"packets_received"`
	Response string   `json:"response,omitempty"`
	Raw      string   `json:"raw_output"`
}

// parseLayers checks a packet description such as
// {"IP":{"dst":"10.0.0.1"},"TCP":{"dport":80,"flags":"S"}} and returns the
// layer names in document order.
func parseLayers(desc string) (gjson.Result, []string, error) {
	if !gjson.Valid(desc) {
		return gjson.Result{}, nil, fmt.Errorf("invalid JSON packet description")
	}
	doc := gjson.Parse(desc)
	if !doc.IsObject() {
		return gjson.Result{}, nil, fmt.Errorf("packet description must be an object of layers")
	}
	layers := make([]string, 0)
	var bad error
	doc.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if !allowedLayers[name] {
			allowed := make([]string, 0, len(allowedLayers))
			for l := range allowedLayers {
				allowed = append(allowed, l)
			}
			sort.Strings(allowed)
			bad = fmt.Errorf("unknown or disallowed layer %s (allowed: %s)", name, strings.Join(allowed, ", "))
			return false
		}
		if !value.IsObject() {
			bad = fmt.Errorf("layer %s must be an object of fields", name)
			return false
		}
		layers = append(layers, name)
		return true
	})
	if bad != nil {
		return gjson.Result{}, nil, bad
	}
	if len(layers) == 0 {
		return gjson.Result{}, nil, fmt.Errorf("packet description has no layers")
	}
	return doc, layers, nil
}

func (n *netTools) craftPacket(_ context.Context, p Params) Outcome {
	desc := p.String("pkt_desc")
	_, layers, err := parseLayers(desc)
	if err != nil {
		return Failed(err.Error(), nil)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(desc), "", "  "); err != nil {
		return Failed(err.Error(), nil)
	}
	return Succeeded(CraftPayload{Layers: layers, JSON: buf.String()})
}

// sendArgs maps an IP-based packet description onto hping3 arguments.
func sendArgs(doc gjson.Result) ([]string, error) {
	dst := doc.Get("IP.dst").String()
	if dst == "" {
		return nil, fmt.Errorf("IP.dst is required to send a packet")
	}
	if !targetRE.MatchString(dst) {
		return nil, fmt.Errorf("invalid IP.dst %q", dst)
	}

	var extra []string
	if ttl := doc.Get("IP.ttl"); ttl.Exists() {
		extra = append(extra, "-t", strconv.FormatInt(ttl.Int(), 10))
	}
	if load := doc.Get("Raw.load"); load.Exists() {
		extra = append(extra, "-d", strconv.Itoa(len(load.String())))
	}

	switch {
	case doc.Get("TCP").Exists():
		port := int(doc.Get("TCP.dport").Int())
		if port == 0 {
			port = 80
		}
		if sport := doc.Get("TCP.sport"); sport.Exists() {
			extra = append(extra, "-s", strconv.FormatInt(sport.Int(), 10))
		}
		flags := doc.Get("TCP.flags").String()
		if flags == "" {
			flags = "S"
		}
		return hpingArgs("syn", clamp(port, 1, 65535), 1, flags, extra, dst), nil
	case doc.Get("UDP").Exists():
		port := int(doc.Get("UDP.dport").Int())
		if port == 0 {
			port = 53
		}
		return hpingArgs("udp", clamp(port, 1, 65535), 1, "", extra, dst), nil
	case doc.Get("ICMP").Exists():
		return hpingArgs("icmp", 0, 1, "", extra, dst), nil
	}
	return hpingArgs("rawip", 0, 1, "", extra, dst), nil
}

func (n *netTools) sendPacket(ctx context.Context, p Params) Outcome {
	doc, layers, err := parseLayers(p.String("pkt_desc"))
	if err != nil {
		return Failed(err.Error(), nil)
	}
	for _, l := range layers {
		if l == "Ether" || l == "ARP" {
			return Failed("link-layer frames cannot be sent; describe an IP packet instead", nil)
		}
	}
	if p.Bool("is_ethernet") {
		return Failed("link-layer sending is not supported; describe an IP packet instead", nil)
	}
	if out, ok := n.require("hping3"); !ok {
		return out
	}
	args, err := sendArgs(doc)
	if err != nil {
		return Failed(err.Error(), nil)
	}

	res, err := n.run.Run(ctx, "hping3", args...)
	if err != nil {
		return Failed(fmt.Sprintf("hping3: %v", err), nil)
	}
	raw := res.Stdout + res.Stderr
	payload := SendPayload{Layers: layers, Command: append([]string{"hping3"}, args...), Sent: 1, Raw: raw}
	if m := hpingSumRE.FindStringSubmatch(raw); m != nil {
		payload.Sent, _ = strconv.Atoi(m[1])
		payload.Received, _ = strconv.Atoi(m[2])
	}
	for _, line := range strings.Split(raw, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "len=") {
			payload.Response = strings.TrimSpace(line)
			break
		}
	}
	if payload.Sent == 0 {
		return Failed(fmt.Sprintf("packet not sent: %s", res.Output()), payload)
	}
	if p.Bool("want_response") && payload.Received == 0 {
		return Failed("no response received", payload)
	}
	return Succeeded(payload)
}
