package vpn

import (
	"bufio"
	"strings"

	"github.com/rs/zerolog/log"
)

// BlockMap is the parsed representation of a raw VPN client configuration:
// directive name to value, with multi-line tagged sections collapsed into
// single string values. A multi-certificate ca value is additionally split
// into CAChain, in document order.
type BlockMap struct {
	Directives map[string]string
	CAChain    []string
}

// Get returns a directive value
func (b BlockMap) Get(key string) string {
	return b.Directives[key]
}

// Has reports whether a directive is present
func (b BlockMap) Has(key string) bool {
	_, ok := b.Directives[key]
	return ok
}

// pemWrapped lists the directives whose values carry PEM material; their
// begin/end marker lines are stripped after parsing.
var pemWrapped = []string{"ca", "cert", "key", "tls-auth"}

// ParseConfig tokenizes a raw VPN client configuration line by line. Blank
// lines and #-comments are skipped; a line opening a <tag> switches to
// concatenation mode for that tag until the matching close tag; every other
// line is a `key value` pair, with valueless directives stored as "true".
// A configuration with fewer than two recognized directives is logged as an
// error, but the partial block map is still returned.
func ParseConfig(raw string) BlockMap {
	bm := BlockMap{Directives: make(map[string]string)}

	var (
		tag   string
		block []string
	)

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if tag != "" {
			if strings.TrimSpace(line) == "</"+tag+">" {
				bm.Directives[tag] = strings.Join(block, "\n")
				tag = ""
				block = nil
				continue
			}
			block = append(block, line)
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		if strings.HasPrefix(trimmed, "<") && strings.HasSuffix(trimmed, ">") && !strings.HasPrefix(trimmed, "</") {
			tag = trimmed[1 : len(trimmed)-1]
			block = nil
			continue
		}

		key, value, found := strings.Cut(trimmed, " ")
		if !found {
			// Boolean directive
			bm.Directives[key] = "true"
			continue
		}
		bm.Directives[key] = strings.TrimSpace(value)
	}

	if tag != "" {
		// Unterminated tag: keep what was collected
		bm.Directives[tag] = strings.Join(block, "\n")
		log.Error().Str("tag", tag).Msg("vpn config: unterminated tag block")
	}

	inferProto(bm.Directives)

	// The chain must be split before marker stripping: a glued
	// end-marker/begin-marker line is the only separator between
	// concatenated certificates.
	if ca, ok := bm.Directives["ca"]; ok {
		bm.CAChain = splitCertificateChain(ca)
	}

	for _, key := range pemWrapped {
		if v, ok := bm.Directives[key]; ok {
			bm.Directives[key] = stripPEMMarkers(v)
		}
	}

	if len(bm.Directives) < 2 {
		log.Error().Int("directives", len(bm.Directives)).Msg("vpn config: incomplete configuration")
	}

	return bm
}

// inferProto derives the proto directive from a 3-token remote line
// (`host port proto`) when proto is not explicitly present. The remote
// value is rewritten to `host port`.
func inferProto(directives map[string]string) {
	if _, ok := directives["proto"]; ok {
		return
	}
	remote, ok := directives["remote"]
	if !ok {
		return
	}
	fields := strings.Fields(remote)
	if len(fields) != 3 {
		return
	}
	directives["remote"] = fields[0] + " " + fields[1]
	directives["proto"] = fields[2]
}

// stripPEMMarkers removes PEM begin/end marker lines, preserving the body
// bytes between them.
func stripPEMMarkers(v string) string {
	lines := strings.Split(v, "\n")
	kept := lines[:0]
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if strings.HasPrefix(t, "-----BEGIN ") || strings.HasPrefix(t, "-----END ") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Trim(strings.Join(kept, "\n"), "\n")
}

// splitCertificateChain splits a ca value holding one or more concatenated
// certificates into individual bodies, in order. Handles chains glued
// together without an intervening newline between end and begin markers.
func splitCertificateChain(ca string) []string {
	const (
		begin = "-----BEGIN CERTIFICATE-----"
		end   = "-----END CERTIFICATE-----"
	)

	if !strings.Contains(ca, begin) {
		// Markers already stripped: single certificate body
		if strings.TrimSpace(ca) == "" {
			return nil
		}
		return []string{ca}
	}

	var chain []string
	rest := ca
	for {
		i := strings.Index(rest, begin)
		if i < 0 {
			break
		}
		rest = rest[i+len(begin):]
		j := strings.Index(rest, end)
		if j < 0 {
			body := strings.Trim(rest, "\n")
			if body != "" {
				chain = append(chain, body)
			}
			break
		}
		body := strings.Trim(rest[:j], "\n")
		if body != "" {
			chain = append(chain, body)
		}
		rest = rest[j+len(end):]
	}

	return chain
}
