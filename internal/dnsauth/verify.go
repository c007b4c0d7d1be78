package dnsauth

import (
	"context"
	"fmt"
	"strings"

	"github.com/miekg/dns"
)

// Resolver answers TXT lookups. The live implementation queries a real
// nameserver; tests inject canned zones.
type Resolver interface {
	// LookupTXT returns one string per TXT record, character-strings
	// already concatenated.
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// DNSResolver resolves against a specific nameserver over UDP with TCP
// fallback on truncation.
type DNSResolver struct {
	Server string // host:port, e.g. "8.8.8.8:53"
	client *dns.Client
}

// NewDNSResolver creates a resolver against the given nameserver.
func NewDNSResolver(server string) *DNSResolver {
	if server == "" {
		server = "8.8.8.8:53"
	}
	if !strings.Contains(server, ":") {
		server += ":53"
	}
	return &DNSResolver{Server: server, client: &dns.Client{}}
}

func (r *DNSResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), dns.TypeTXT)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, r.Server)
	if err != nil {
		return nil, fmt.Errorf("query %s TXT: %w", name, err)
	}
	if in.Truncated {
		tcp := &dns.Client{Net: "tcp"}
		in, _, err = tcp.ExchangeContext(ctx, msg, r.Server)
		if err != nil {
			return nil, fmt.Errorf("query %s TXT over tcp: %w", name, err)
		}
	}
	if in.Rcode == dns.RcodeNameError {
		return nil, nil
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("query %s TXT: rcode %s", name, dns.RcodeToString[in.Rcode])
	}

	var values []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			values = append(values, strings.Join(txt.Txt, ""))
		}
	}
	return values, nil
}

// CheckResult is one record's verification outcome.
type CheckResult struct {
	Name     string
	Kind     string // "SPF", "DKIM", "DMARC"
	Found    bool
	Match    bool
	Actual   string
	Expected string
	Issues   []string
}

// Verifier checks published records against expected values.
type Verifier struct {
	resolver Resolver
}

// NewVerifier builds a verifier over a resolver.
func NewVerifier(resolver Resolver) *Verifier {
	return &Verifier{resolver: resolver}
}

// CheckSPF verifies the domain publishes exactly the expected SPF record.
// Multiple v=spf1 records are a standards violation and reported as an
// issue.
func (v *Verifier) CheckSPF(ctx context.Context, domain string, expected *SPF) (*CheckResult, error) {
	result := &CheckResult{Name: domain, Kind: "SPF", Expected: expected.Render()}

	values, err := v.resolver.LookupTXT(ctx, domain)
	if err != nil {
		return nil, err
	}
	var spfRecords []string
	for _, val := range values {
		if strings.HasPrefix(val, "v=spf1") {
			spfRecords = append(spfRecords, val)
		}
	}
	if len(spfRecords) == 0 {
		result.Issues = append(result.Issues, "no SPF record published")
		return result, nil
	}
	if len(spfRecords) > 1 {
		result.Issues = append(result.Issues, fmt.Sprintf("%d SPF records published, receivers treat this as permerror", len(spfRecords)))
	}

	result.Found = true
	result.Actual = spfRecords[0]
	result.Match = result.Actual == result.Expected
	if !result.Match {
		result.Issues = append(result.Issues, "published record differs from expected")
	}
	return result, nil
}

// CheckDKIM verifies the selector publishes the expected public key.
func (v *Verifier) CheckDKIM(ctx context.Context, expected *DKIM) (*CheckResult, error) {
	name := expected.Name()
	result := &CheckResult{Name: name, Kind: "DKIM", Expected: expected.Render()}

	values, err := v.resolver.LookupTXT(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, val := range values {
		if !strings.Contains(val, "v=DKIM1") && !strings.Contains(val, "p=") {
			continue
		}
		result.Found = true
		result.Actual = val
		break
	}
	if !result.Found {
		result.Issues = append(result.Issues, "no DKIM record published at selector")
		return result, nil
	}

	actualKey := tagValue(result.Actual, "p")
	expectedKey := expected.PublicKey
	result.Match = actualKey == expectedKey
	if !result.Match {
		if actualKey == "" {
			result.Issues = append(result.Issues, "record revokes the key (empty p= tag)")
		} else {
			result.Issues = append(result.Issues, "published public key differs from expected")
		}
	}
	return result, nil
}

// CheckDMARC verifies the domain's DMARC policy.
func (v *Verifier) CheckDMARC(ctx context.Context, domain string, expected *DMARC) (*CheckResult, error) {
	name := "_dmarc." + domain
	result := &CheckResult{Name: name, Kind: "DMARC", Expected: expected.Render()}

	values, err := v.resolver.LookupTXT(ctx, name)
	if err != nil {
		return nil, err
	}
	for _, val := range values {
		if strings.HasPrefix(val, "v=DMARC1") {
			result.Found = true
			result.Actual = val
			break
		}
	}
	if !result.Found {
		result.Issues = append(result.Issues, "no DMARC record published")
		return result, nil
	}

	actualPolicy := tagValue(result.Actual, "p")
	expectedPolicy := expected.Policy
	if expectedPolicy == "" {
		expectedPolicy = "none"
	}
	result.Match = result.Actual == result.Expected
	if actualPolicy != expectedPolicy {
		result.Issues = append(result.Issues, fmt.Sprintf("policy is %q, expected %q", actualPolicy, expectedPolicy))
	} else if !result.Match {
		result.Issues = append(result.Issues, "policy matches but other tags differ")
	}
	return result, nil
}

// tagValue extracts a tag=value pair from a DKIM/DMARC style record.
func tagValue(record, tag string) string {
	for _, part := range strings.Split(record, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, tag+"=") {
			return strings.TrimSpace(part[len(tag)+1:])
		}
	}
	return ""
}
