// Package ingest derives initial facts from configuration snapshots of a
// server: sshd_config, sysctl settings and listening TCP ports.
package ingest

// factList keeps facts in discovery order without repeats.
type factList struct {
	facts []string
	seen  map[string]bool
}

func newFactList() *factList {
	return &factList{facts: []string{}, seen: make(map[string]bool)}
}

func (l *factList) add(facts ...string) {
	for _, f := range facts {
		if f == "" || l.seen[f] {
			continue
		}
		l.seen[f] = true
		l.facts = append(l.facts, f)
	}
}
