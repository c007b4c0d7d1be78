package dnsauth

import (
	"context"
	"strings"
	"testing"
)

// fakeResolver serves a canned zone.
type fakeResolver struct {
	zone map[string][]string
}

func (f *fakeResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return f.zone[name], nil
}

func TestSPFRender(t *testing.T) {
	spf := &SPF{
		Includes: []string{"spf.protection.outlook.com", "_spf.google.com"},
		IP4:      []string{"203.0.113.10"},
		All:      "-all",
	}
	want := "v=spf1 ip4:203.0.113.10 include:spf.protection.outlook.com include:_spf.google.com -all"
	if got := spf.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestSPFRenderDefaultsToSoftfail(t *testing.T) {
	spf := &SPF{Includes: []string{"spf.example.net"}}
	if got := spf.Render(); got != "v=spf1 include:spf.example.net ~all" {
		t.Errorf("Render() = %q", got)
	}
}

func TestDKIMRenderChunked(t *testing.T) {
	// RSA-2048 keys produce ~390 base64 characters.
	key := strings.Repeat("A", 392)
	dkim := &DKIM{Selector: "selector1", Domain: "example.com", PublicKey: key}

	if dkim.Name() != "selector1._domainkey.example.com" {
		t.Errorf("Name() = %q", dkim.Name())
	}

	chunks := dkim.RenderChunked()
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 255 {
			t.Errorf("chunk %d is %d octets, limit 255", i, len(c))
		}
	}
	if strings.Join(chunks, "") != dkim.Render() {
		t.Error("joined chunks differ from full record")
	}
	if !strings.HasPrefix(chunks[0], "v=DKIM1; k=rsa; p=") {
		t.Errorf("first chunk = %q", chunks[0][:30])
	}
}

func TestDMARCRender(t *testing.T) {
	dmarc := &DMARC{
		Policy:  "quarantine",
		RUA:     []string{"dmarc-reports@example.com"},
		Percent: 50,
		ADKIM:   "s",
	}
	want := "v=DMARC1; p=quarantine; rua=mailto:dmarc-reports@example.com; pct=50; adkim=s"
	if got := dmarc.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestCheckSPFMatch(t *testing.T) {
	expected := &SPF{Includes: []string{"spf.protection.outlook.com"}, All: "-all"}
	resolver := &fakeResolver{zone: map[string][]string{
		"example.com": {
			"MS=ms12345678",
			"v=spf1 include:spf.protection.outlook.com -all",
		},
	}}
	v := NewVerifier(resolver)

	result, err := v.CheckSPF(context.Background(), "example.com", expected)
	if err != nil {
		t.Fatalf("CheckSPF: %v", err)
	}
	if !result.Found || !result.Match || len(result.Issues) != 0 {
		t.Errorf("result = %+v", result)
	}
}

func TestCheckSPFFlagsMultipleRecords(t *testing.T) {
	expected := &SPF{Includes: []string{"a.example.net"}}
	resolver := &fakeResolver{zone: map[string][]string{
		"example.com": {
			"v=spf1 include:a.example.net ~all",
			"v=spf1 include:b.example.net ~all",
		},
	}}
	result, err := NewVerifier(resolver).CheckSPF(context.Background(), "example.com", expected)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Issues) == 0 || !strings.Contains(result.Issues[0], "permerror") {
		t.Errorf("issues = %v", result.Issues)
	}
}

func TestCheckSPFMissing(t *testing.T) {
	resolver := &fakeResolver{zone: map[string][]string{}}
	result, err := NewVerifier(resolver).CheckSPF(context.Background(), "example.com", &SPF{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Found {
		t.Error("Found = true for empty zone")
	}
	if len(result.Issues) == 0 {
		t.Error("missing record produced no issue")
	}
}

func TestCheckDKIMKeyMismatch(t *testing.T) {
	expected := &DKIM{Selector: "selector1", Domain: "example.com", PublicKey: "EXPECTEDKEY"}
	resolver := &fakeResolver{zone: map[string][]string{
		"selector1._domainkey.example.com": {"v=DKIM1; k=rsa; p=OTHERKEY"},
	}}
	result, err := NewVerifier(resolver).CheckDKIM(context.Background(), expected)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Found || result.Match {
		t.Errorf("result = %+v", result)
	}
}

func TestCheckDKIMRevokedKey(t *testing.T) {
	expected := &DKIM{Selector: "selector1", Domain: "example.com", PublicKey: "KEY"}
	resolver := &fakeResolver{zone: map[string][]string{
		"selector1._domainkey.example.com": {"v=DKIM1; k=rsa; p="},
	}}
	result, err := NewVerifier(resolver).CheckDKIM(context.Background(), expected)
	if err != nil {
		t.Fatal(err)
	}
	if result.Match {
		t.Error("revoked key reported as match")
	}
	if len(result.Issues) == 0 || !strings.Contains(result.Issues[0], "revokes") {
		t.Errorf("issues = %v", result.Issues)
	}
}

func TestCheckDMARCPolicyDiffers(t *testing.T) {
	expected := &DMARC{Policy: "reject"}
	resolver := &fakeResolver{zone: map[string][]string{
		"_dmarc.example.com": {"v=DMARC1; p=none; rua=mailto:reports@example.com"},
	}}
	result, err := NewVerifier(resolver).CheckDMARC(context.Background(), "example.com", expected)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Found || result.Match {
		t.Errorf("result = %+v", result)
	}
	if len(result.Issues) == 0 || !strings.Contains(result.Issues[0], `policy is "none"`) {
		t.Errorf("issues = %v", result.Issues)
	}
}
