package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

type sysctlMapping struct {
	key      string
	facts    map[string]string
	fallback string
}

// sysctlFacts maps kernel settings to facts, in output order. Values not
// listed map to fallback when it is set.
var sysctlFacts = []sysctlMapping{
	{key: "net.ipv4.ip_forward", facts: map[string]string{"0": "ip_forwarding_disabled", "1": "ip_forwarding_enabled"}},
	{key: "net.ipv4.tcp_syncookies", facts: map[string]string{"0": "syn_cookies_disabled"}, fallback: "syn_cookies_enabled"},
	{key: "net.ipv4.conf.all.accept_source_route", facts: map[string]string{"1": "source_routing_enabled"}},
	{key: "net.ipv4.conf.default.accept_source_route", facts: map[string]string{"1": "source_routing_enabled"}},
	{key: "net.ipv4.conf.all.rp_filter", facts: map[string]string{"0": "rp_filter_disabled"}},
}

// Sysctl reads sysctl.conf style settings and returns the facts they imply.
// Later assignments override earlier ones. Keys may use '/' or '.'.
func Sysctl(r io.Reader) ([]string, error) {
	settings := make(map[string]string)

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		// "-key = value" means ignore errors setting key.
		line = strings.TrimPrefix(line, "-")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("sysctl line %d: expected key = value, got %q", lineNo, line)
		}
		key = strings.ReplaceAll(strings.TrimSpace(key), "/", ".")
		settings[key] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sysctl settings: %w", err)
	}

	out := newFactList()
	for _, m := range sysctlFacts {
		value, ok := settings[m.key]
		if !ok {
			continue
		}
		if f, ok := m.facts[value]; ok {
			out.add(f)
		} else if m.fallback != "" {
			out.add(m.fallback)
		}
	}
	return out.facts, nil
}
