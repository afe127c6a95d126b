package ingest

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strings"
)

// weakMACs are MAC algorithms considered too weak for SSH.
var weakMACs = []string{"hmac-md5", "hmac-sha1", "umac-64", "-96"}

// SSHDConfig reads an sshd_config and returns the facts it implies. As in
// sshd, keywords are case insensitive, the first value of a keyword wins and
// parsing of global options stops at the first Match block. Port may repeat.
func SSHDConfig(r io.Reader) ([]string, error) {
	opts := make(map[string]string)
	var ports []string

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := splitDirective(line)
		if !ok {
			return nil, fmt.Errorf("sshd_config line %d: missing value for %q", lineNo, line)
		}
		key = strings.ToLower(key)
		if key == "match" {
			break
		}
		if key == "port" {
			ports = append(ports, value)
			continue
		}
		if _, set := opts[key]; !set {
			opts[key] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read sshd_config: %w", err)
	}

	out := newFactList()

	switch strings.ToLower(opts["permitrootlogin"]) {
	case "yes":
		out.add("ssh_root_login_enabled")
	case "no", "prohibit-password", "without-password", "forced-commands-only":
		out.add("ssh_root_login_disabled")
	}

	passwordAuth := strings.ToLower(opts["passwordauthentication"])
	switch passwordAuth {
	case "yes":
		out.add("password_auth_enabled")
	case "no":
		out.add("key_auth_only")
	}
	if passwordAuth != "no" && strings.EqualFold(opts["permitemptypasswords"], "yes") {
		out.add("ssh_empty_passwords")
	}

	if proto, ok := opts["protocol"]; ok {
		if strings.Contains(proto, "1") {
			out.add("ssh_protocol_1")
		} else if strings.Contains(proto, "2") {
			out.add("ssh_protocol_2")
		}
	}

	if strings.EqualFold(opts["x11forwarding"], "yes") {
		out.add("ssh_x11_forwarding")
	}
	if strings.EqualFold(opts["allowagentforwarding"], "yes") {
		out.add("ssh_agent_forwarding")
	}

	// No Port directive means 22.
	if len(ports) == 0 || slices.Contains(ports, "22") {
		out.add("ssh_default_port")
	}

	if macs, ok := opts["macs"]; ok && hasWeakMAC(macs) {
		out.add("ssh_weak_mac")
	}

	return out.facts, nil
}

// splitDirective splits "Key value" or "Key=value".
func splitDirective(line string) (string, string, bool) {
	i := strings.IndexAny(line, " \t=")
	if i < 0 {
		return "", "", false
	}
	key := line[:i]
	value := strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line[i:]), "="))
	value = strings.Trim(value, `"`)
	return key, value, value != ""
}

func hasWeakMAC(list string) bool {
	for _, mac := range strings.Split(strings.ToLower(list), ",") {
		mac = strings.TrimSpace(mac)
		// A leading '-' removes algorithms from the default set.
		if strings.HasPrefix(mac, "-") {
			continue
		}
		for _, weak := range weakMACs {
			if strings.Contains(mac, weak) {
				return true
			}
		}
	}
	return false
}
