// Package dnsauth builds and verifies the email authentication trio:
// SPF, DKIM and DMARC. Builders render the TXT record values to publish;
// the verifier checks what a zone actually serves against them.
package dnsauth

import (
	"fmt"
	"strings"
)

// txtChunkSize is the single-string limit in a TXT RDATA. Longer values
// (DKIM keys, mostly) are split into multiple character-strings.
const txtChunkSize = 255

// SPF describes the sending sources for a domain.
type SPF struct {
	Includes []string // include: mechanisms, e.g. "spf.protection.outlook.com"
	IP4      []string // ip4: mechanisms
	IP6      []string // ip6: mechanisms
	MX       bool
	// All is the catch-all qualifier: "-all" (fail), "~all" (softfail)
	// or "?all" (neutral). Defaults to "~all".
	All string
}

// Render returns the SPF TXT record value.
func (s *SPF) Render() string {
	parts := []string{"v=spf1"}
	if s.MX {
		parts = append(parts, "mx")
	}
	for _, ip := range s.IP4 {
		parts = append(parts, "ip4:"+ip)
	}
	for _, ip := range s.IP6 {
		parts = append(parts, "ip6:"+ip)
	}
	for _, inc := range s.Includes {
		parts = append(parts, "include:"+inc)
	}
	all := s.All
	if all == "" {
		all = "~all"
	}
	parts = append(parts, all)
	return strings.Join(parts, " ")
}

// DKIM describes a DKIM public key record.
type DKIM struct {
	Selector  string
	Domain    string
	PublicKey string // base64 key material, no whitespace
	KeyType   string // defaults to "rsa"
}

// Name returns the owner name the record is published at.
func (d *DKIM) Name() string {
	return d.Selector + "._domainkey." + d.Domain
}

// Render returns the DKIM TXT record value.
func (d *DKIM) Render() string {
	keyType := d.KeyType
	if keyType == "" {
		keyType = "rsa"
	}
	return fmt.Sprintf("v=DKIM1; k=%s; p=%s", keyType, d.PublicKey)
}

// RenderChunked splits the record value into TXT character-strings. Most
// RSA-2048 keys exceed the 255-octet limit and need this form.
func (d *DKIM) RenderChunked() []string {
	return chunkTXT(d.Render())
}

func chunkTXT(value string) []string {
	if len(value) <= txtChunkSize {
		return []string{value}
	}
	var chunks []string
	for len(value) > txtChunkSize {
		chunks = append(chunks, value[:txtChunkSize])
		value = value[txtChunkSize:]
	}
	if value != "" {
		chunks = append(chunks, value)
	}
	return chunks
}

// DMARC describes a DMARC policy record.
type DMARC struct {
	Policy          string // "none", "quarantine", "reject"
	SubdomainPolicy string
	RUA             []string // aggregate report addresses, "mailto:" added if missing
	RUF             []string // forensic report addresses
	Percent         int      // 0 means omit (defaults to 100 at evaluators)
	ADKIM           string   // "r" or "s"
	ASPF            string   // "r" or "s"
}

// Name returns the owner name the record is published at.
func (d *DMARC) Name(domain string) string {
	return "_dmarc." + domain
}

// Render returns the DMARC TXT record value.
func (d *DMARC) Render() string {
	policy := d.Policy
	if policy == "" {
		policy = "none"
	}
	parts := []string{"v=DMARC1", "p=" + policy}
	if d.SubdomainPolicy != "" {
		parts = append(parts, "sp="+d.SubdomainPolicy)
	}
	if len(d.RUA) > 0 {
		parts = append(parts, "rua="+mailtoList(d.RUA))
	}
	if len(d.RUF) > 0 {
		parts = append(parts, "ruf="+mailtoList(d.RUF))
	}
	if d.Percent > 0 && d.Percent < 100 {
		parts = append(parts, fmt.Sprintf("pct=%d", d.Percent))
	}
	if d.ADKIM != "" {
		parts = append(parts, "adkim="+d.ADKIM)
	}
	if d.ASPF != "" {
		parts = append(parts, "aspf="+d.ASPF)
	}
	return strings.Join(parts, "; ")
}

func mailtoList(addrs []string) string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if !strings.HasPrefix(a, "mailto:") {
			a = "mailto:" + a
		}
		out = append(out, a)
	}
	return strings.Join(out, ",")
}
