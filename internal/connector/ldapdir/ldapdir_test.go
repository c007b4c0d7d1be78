package ldapdir

import (
	"context"
	"strings"
	"testing"

	"github.com/go-ldap/ldap/v3"

	"github.com/opsrelay/relay-core/internal/coded"
)

// fakeConn answers searches from a fixed user table and records modify
// requests.
type fakeConn struct {
	users    map[string]string // sAMAccountName -> DN
	modifies []*ldap.ModifyRequest
}

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	result := &ldap.SearchResult{}
	for account, dn := range f.users {
		if strings.Contains(req.Filter, "(sAMAccountName="+account+")") {
			result.Entries = append(result.Entries, &ldap.Entry{DN: dn})
		}
	}
	if !strings.Contains(req.Filter, "sAMAccountName") {
		// Unfiltered user search returns everyone.
		for _, dn := range f.users {
			result.Entries = append(result.Entries, &ldap.Entry{DN: dn})
		}
	}
	return result, nil
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	f.modifies = append(f.modifies, req)
	return nil
}

func (f *fakeConn) Close() error { return nil }

func newTestDirectory(fc *fakeConn) *Directory {
	d, _ := New(&Config{
		URL:    "ldaps://dc.local",
		BindDN: "CN=svc,DC=corp,DC=local",
		BaseDN: "DC=corp,DC=local",
	})
	d.dialFn = func(cfg *Config) (conn, error) { return fc, nil }
	return d
}

func TestTLSConfigForStartTLS(t *testing.T) {
	cfg := &Config{
		URL:      "ldap://dc01.corp.example.com:389",
		StartTLS: true,
	}
	tc := tlsConfigFor(cfg)
	if tc.ServerName != "dc01.corp.example.com" {
		t.Errorf("ServerName = %q, want the URL host", tc.ServerName)
	}
	if tc.InsecureSkipVerify {
		t.Error("InsecureSkipVerify set without being configured")
	}

	cfg.InsecureSkipVerify = true
	if !tlsConfigFor(cfg).InsecureSkipVerify {
		t.Error("InsecureSkipVerify not carried through")
	}
}

func TestReplaceAttributesBuildsReplaceModify(t *testing.T) {
	fc := &fakeConn{users: map[string]string{"jdoe": "CN=Jane Doe,OU=Staff,DC=corp,DC=local"}}
	d := newTestDirectory(fc)
	ctx := context.Background()

	dn, err := d.FindUserDN(ctx, "jdoe")
	if err != nil {
		t.Fatalf("FindUserDN: %v", err)
	}
	if err := d.ReplaceAttributes(ctx, dn, map[string]string{
		"title":      "Site Reliability Engineer",
		"department": "",
	}); err != nil {
		t.Fatalf("ReplaceAttributes: %v", err)
	}

	if len(fc.modifies) != 1 {
		t.Fatalf("modifies = %d, want 1", len(fc.modifies))
	}
	req := fc.modifies[0]
	if req.DN != dn {
		t.Errorf("modify DN = %q", req.DN)
	}
	byAttr := map[string]ldap.PartialAttribute{}
	for _, change := range req.Changes {
		if change.Operation != ldap.ReplaceAttribute {
			t.Errorf("change operation = %d, want replace", change.Operation)
		}
		byAttr[change.Modification.Type] = change.Modification
	}
	if got := byAttr["title"].Vals; len(got) != 1 || got[0] != "Site Reliability Engineer" {
		t.Errorf("title vals = %v", got)
	}
	// Empty value clears the attribute.
	if got := byAttr["department"].Vals; len(got) != 0 {
		t.Errorf("department vals = %v, want empty", got)
	}
}

func TestFindUserDNNotFound(t *testing.T) {
	d := newTestDirectory(&fakeConn{users: map[string]string{}})
	_, err := d.FindUserDN(context.Background(), "ghost")
	if coded.CodeOf(err) != coded.CodeNotFound {
		t.Errorf("error code = %q, want %q", coded.CodeOf(err), coded.CodeNotFound)
	}
}

func TestBulkApplyCSV(t *testing.T) {
	fc := &fakeConn{users: map[string]string{
		"jdoe":   "CN=Jane Doe,OU=Staff,DC=corp,DC=local",
		"bsmith": "CN=Bob Smith,OU=Staff,DC=corp,DC=local",
	}}
	d := newTestDirectory(fc)

	csvData := `sAMAccountName,title,telephoneNumber
jdoe,Engineer,555-0100
ghost,Analyst,555-0101
bsmith,Manager,555-0102
`
	result, err := d.BulkApplyCSV(context.Background(), strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("BulkApplyCSV: %v", err)
	}
	if result.Applied != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 2 applied, 1 failed", result)
	}
	if len(result.Errors) != 1 || result.Errors[0].Key != "ghost" || result.Errors[0].Line != 3 {
		t.Errorf("errors = %+v", result.Errors)
	}
	if len(fc.modifies) != 2 {
		t.Errorf("modifies = %d, want 2", len(fc.modifies))
	}
}

func TestBulkApplyCSVRejectsBadHeader(t *testing.T) {
	d := newTestDirectory(&fakeConn{})
	_, err := d.BulkApplyCSV(context.Background(), strings.NewReader("email,title\na@b.c,Engineer\n"))
	if err == nil || !strings.Contains(err.Error(), "sAMAccountName") {
		t.Errorf("err = %v, want header rejection", err)
	}
}
