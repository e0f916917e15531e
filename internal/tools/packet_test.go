package tools

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type fakeResolver struct {
	ips map[string][]net.IPAddr
	mx  map[string][]*net.MX
}

var errNoSuchHost = errors.New("no such host")

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if ips, ok := f.ips[host]; ok {
		return ips, nil
	}
	return nil, errNoSuchHost
}

func (f fakeResolver) LookupMX(_ context.Context, name string) ([]*net.MX, error) {
	if mx, ok := f.mx[name]; ok {
		return mx, nil
	}
	return nil, errNoSuchHost
}

func (fakeResolver) LookupNS(context.Context, string) ([]*net.NS, error) { return nil, errNoSuchHost }
func (fakeResolver) LookupTXT(context.Context, string) ([]string, error) { return nil, errNoSuchHost }
func (fakeResolver) LookupCNAME(context.Context, string) (string, error) { return "", errNoSuchHost }
func (fakeResolver) LookupAddr(context.Context, string) ([]string, error) { return nil, errNoSuchHost }
func (fakeResolver) LookupSRV(context.Context, string, string, string) (string, []*net.SRV, error) {
	return "", nil, errNoSuchHost
}

func TestDNSLookup(t *testing.T) {
	res := fakeResolver{
		ips: map[string][]net.IPAddr{"example.com": {{IP: net.ParseIP("93.184.216.34")}, {IP: net.ParseIP("2606:2800:220:1::1")}}},
		mx:  map[string][]*net.MX{"example.com": {{Host: "mail.example.com.", Pref: 10}}},
	}
	var asked string
	r := NewRegistry()
	require.NoError(t, RegisterBuiltins(r, Deps{Runner: &fakeRunner{}, Resolver: func(ns string) Resolver {
		asked = ns
		return res
	}}))

	ex, err := r.Execute(context.Background(), "dns_lookup_tool", map[string]any{
		"target": "example.com", "record_types": "a, aaaa,MX,TXT,SOA", "nameserver": "8.8.8.8",
	})
	require.NoError(t, err)
	require.True(t, ex.Outcome.Success)
	assert.Equal(t, "8.8.8.8", asked)

	pl := ex.Outcome.Payload.(DNSPayload)
	assert.Equal(t, []string{"93.184.216.34"}, pl.Records["A"])
	assert.Equal(t, []string{"2606:2800:220:1::1"}, pl.Records["AAAA"])
	assert.Equal(t, []string{"10 mail.example.com."}, pl.Records["MX"])
	assert.Contains(t, pl.Errors, "TXT")
	assert.NotContains(t, pl.Errors, "SOA")
	assert.Equal(t, "DNS example.com (3 records)", Summarize(ex))

	ex, err = r.Execute(context.Background(), "dns_lookup_tool", map[string]any{"target": "missing.invalid"})
	require.NoError(t, err)
	assert.False(t, ex.Outcome.Success)
	assert.Contains(t, ex.Outcome.Error, "no A records")
}

func TestCraftPacket(t *testing.T) {
	r := newTestRegistry(t, &fakeRunner{}, nil)

	ex, err := r.Execute(context.Background(), "craft_packet_json", map[string]any{
		"pkt_desc": `{"IP":{"dst":"10.0.0.1"},"TCP":{"dport":80,"flags":"S"}}`,
	})
	require.NoError(t, err)
	require.True(t, ex.Outcome.Success)
	pl := ex.Outcome.Payload.(CraftPayload)
	assert.Equal(t, []string{"IP", "TCP"}, pl.Layers)
	assert.Contains(t, pl.JSON, "\n  \"TCP\": {")

	for _, desc := range []string{`{"IP":`, `{"Dot11":{}}`, `[1,2]`, `{"IP":"10.0.0.1"}`, `{}`} {
		ex, err := r.Execute(context.Background(), "craft_packet_json", map[string]any{"pkt_desc": desc})
		require.NoError(t, err)
		assert.False(t, ex.Outcome.Success, desc)
	}
}

func TestSendArgs(t *testing.T) {
	args, err := sendArgs(gjson.Parse(`{"IP":{"dst":"10.0.0.1","ttl":5},"TCP":{"dport":22,"sport":4000,"flags":"SA"}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "1", "-S", "-A", "-p", "22", "-t", "5", "-s", "4000", "10.0.0.1"}, args)

	args, err = sendArgs(gjson.Parse(`{"IP":{"dst":"10.0.0.1"},"ICMP":{}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "1", "-1", "10.0.0.1"}, args)

	_, err = sendArgs(gjson.Parse(`{"UDP":{"dport":53}}`))
	assert.Error(t, err)
}

func TestSendPacket(t *testing.T) {
	run := &fakeRunner{results: map[string]CommandResult{"hping3": {
		Stdout: "len=46 ip=10.0.0.1 ttl=64 DF id=0 sport=80 flags=SA seq=0 win=64240 rtt=0.9 ms\n",
		Stderr: "1 packets transmitted, 1 packets received, 0% packet loss\n",
	}}}
	r := newTestRegistry(t, run, nil)

	ex, err := r.Execute(context.Background(), "send_packet", map[string]any{
		"pkt_desc": `{"IP":{"dst":"10.0.0.1"},"TCP":{"dport":80}}`,
	})
	require.NoError(t, err)
	require.True(t, ex.Outcome.Success, ex.Outcome.Error)
	pl := ex.Outcome.Payload.(SendPayload)
	assert.Equal(t, 1, pl.Received)
	assert.Contains(t, pl.Response, "flags=SA")

	ex, err = r.Execute(context.Background(), "send_packet", map[string]any{
		"pkt_desc": `{"Ether":{},"ARP":{"pdst":"10.0.0.0/24"}}`, "is_ethernet": true,
	})
	require.NoError(t, err)
	assert.False(t, ex.Outcome.Success)
	assert.Len(t, run.calls, 1)
}
