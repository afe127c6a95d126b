package ingest

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// tcpListen is the socket state of a listening socket in /proc/net/tcp.
const tcpListen = "0A"

// PortFact names the fact for an open TCP port.
func PortFact(port int) string {
	return fmt.Sprintf("port_%d_open", port)
}

// Ports maps port numbers to facts in the given order without repeats.
func Ports(ports []int) ([]string, error) {
	out := newFactList()
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("port %d out of range", p)
		}
		out.add(PortFact(p))
	}
	return out.facts, nil
}

// ParsePorts parses a comma or space separated port list such as "22, 80 443".
func ParsePorts(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
	ports := make([]int, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q", f)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

// ListeningPorts reads /proc/net/tcp or /proc/net/tcp6 content and returns
// the local ports in LISTEN state, in table order without repeats.
func ListeningPorts(r io.Reader) ([]int, error) {
	var ports []int
	seen := make(map[int]bool)

	scanner := bufio.NewScanner(r)
	header := true
	for scanner.Scan() {
		if header {
			header = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[3] != tcpListen {
			continue
		}
		_, hexPort, ok := strings.Cut(fields[1], ":")
		if !ok {
			return nil, fmt.Errorf("malformed local address %q", fields[1])
		}
		p, err := strconv.ParseUint(hexPort, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("malformed port in %q: %w", fields[1], err)
		}
		if !seen[int(p)] {
			seen[int(p)] = true
			ports = append(ports, int(p))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read socket table: %w", err)
	}
	return ports, nil
}
