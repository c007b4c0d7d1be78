package meraki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gosnmp/gosnmp"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

// stubDashboard serves a two-page network list to exercise Link-header
// paging, plus devices, availabilities and per-network clients.
type stubDashboard struct {
	pagedCalls int
}

func (s *stubDashboard) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := httptest.NewRecorder()
	if req.Header.Get("X-Cisco-Meraki-API-Key") != "key-1" {
		writeDashJSON(rec, 401, map[string]any{"errors": []string{"Invalid API key"}})
		return rec.Result(), nil
	}

	path := req.URL.Path
	switch {
	case strings.HasSuffix(path, "/organizations/org-1/networks"):
		s.pagedCalls++
		if req.URL.Query().Get("startingAfter") == "" {
			rec.Header().Set("Link",
				"<http://dash.local/api/v1/organizations/org-1/networks?perPage=1000&startingAfter=N_1>; rel=next")
			writeDashJSON(rec, 200, []map[string]any{
				{"id": "N_1", "name": "HQ", "timeZone": "Europe/London"},
			})
		} else {
			writeDashJSON(rec, 200, []map[string]any{
				{"id": "N_2", "name": "Warehouse", "timeZone": "Europe/London"},
			})
		}

	case strings.HasSuffix(path, "/organizations/org-1/devices"):
		writeDashJSON(rec, 200, []map[string]any{
			{"serial": "Q2AB-1", "name": "sw-core", "model": "MS225", "networkId": "N_1"},
			{"serial": "Q2AB-2", "name": "ap-lobby", "model": "MR46", "networkId": "N_1"},
		})

	case strings.HasSuffix(path, "/devices/availabilities"):
		writeDashJSON(rec, 200, []map[string]any{
			{"serial": "Q2AB-1", "status": "online"},
			{"serial": "Q2AB-2", "status": "alerting"},
		})

	case strings.HasSuffix(path, "/networks/N_1/clients"):
		writeDashJSON(rec, 200, []map[string]any{
			{"id": "c1", "description": "laptop-ada", "mac": "aa:01", "usage": map[string]any{"sent": 100.0, "recv": 400.0}},
			{"id": "c2", "description": "phone-grace", "mac": "aa:02", "usage": map[string]any{"sent": 50.0, "recv": 75.0}},
			{"id": "c3", "description": "printer", "mac": "aa:03", "usage": map[string]any{"sent": 10.0, "recv": 5.0}},
		})

	case strings.HasSuffix(path, "/organizations/org-1"):
		writeDashJSON(rec, 200, map[string]any{"name": "Acme"})

	default:
		writeDashJSON(rec, 404, map[string]any{"errors": []string{"not found"}})
	}
	return rec.Result(), nil
}

func writeDashJSON(rec *httptest.ResponseRecorder, status int, v any) {
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(status)
	json.NewEncoder(rec).Encode(v)
}

func newTestDashboard(stub *stubDashboard) *Dashboard {
	return newWithTransport(&Config{
		APIKey:   "key-1",
		OrgID:    "org-1",
		BaseURL:  "http://dash.local/api/v1",
		SNMPHost: "snmp.meraki.local",
	}, stub)
}

func TestListNetworksFollowsLinkHeader(t *testing.T) {
	stub := &stubDashboard{}
	d := newTestDashboard(stub)

	networks, err := d.ListNetworks(context.Background())
	if err != nil {
		t.Fatalf("ListNetworks: %v", err)
	}
	if len(networks) != 2 {
		t.Fatalf("networks = %d, want 2 across pages", len(networks))
	}
	if stub.pagedCalls != 2 {
		t.Fatalf("page fetches = %d, want 2", stub.pagedCalls)
	}
	if networks[1]["id"] != "N_2" {
		t.Fatalf("unexpected second page: %v", networks[1])
	}
}

func TestListDevicesMergesAvailability(t *testing.T) {
	d := newTestDashboard(&stubDashboard{})

	devices, err := d.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(devices))
	}
	if devices[0]["status"] != "online" || devices[1]["status"] != "alerting" {
		t.Fatalf("availability not merged: %v", devices)
	}
}

func TestReadClientsRequiresNetworkID(t *testing.T) {
	d := newTestDashboard(&stubDashboard{})

	_, err := d.Read(context.Background(), &endpoint.ReadRequest{DatasetID: "meraki.clients"})
	if coded.CodeOf(err) != coded.CodeBadPayload {
		t.Fatalf("expected bad payload error, got %v", err)
	}

	it, err := d.Read(context.Background(), &endpoint.ReadRequest{
		DatasetID: "meraki.clients",
		Params:    map[string]any{"networkId": "N_1"},
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	defer it.Close()
	var count int
	for it.Next() {
		count++
	}
	if count != 3 {
		t.Fatalf("clients = %d, want 3", count)
	}
}

func TestNetworkUsageSummaryTopN(t *testing.T) {
	d := newTestDashboard(&stubDashboard{})

	summary, err := d.NetworkUsageSummary(context.Background(), "N_1", 2)
	if err != nil {
		t.Fatalf("NetworkUsageSummary: %v", err)
	}
	if summary.ClientCount != 3 {
		t.Fatalf("client count = %d, want 3", summary.ClientCount)
	}
	if summary.TotalSentKB != 160 || summary.TotalRecvKB != 480 {
		t.Fatalf("totals = %v/%v, want 160/480", summary.TotalSentKB, summary.TotalRecvKB)
	}
	if len(summary.TopClients) != 2 {
		t.Fatalf("top clients = %d, want 2", len(summary.TopClients))
	}
	if summary.TopClients[0].ID != "c1" || summary.TopClients[1].ID != "c2" {
		t.Fatalf("top clients out of order: %v", summary.TopClients)
	}
}

func TestInvalidAPIKeyIsAuthError(t *testing.T) {
	d := newWithTransport(&Config{APIKey: "wrong", OrgID: "org-1", BaseURL: "http://dash.local/api/v1"}, &stubDashboard{})

	_, err := d.ListNetworks(context.Background())
	if coded.CodeOf(err) != coded.CodeAuthInvalid {
		t.Fatalf("expected auth error, got %v", err)
	}
}

// fakeSNMP plays a two-interface device.
type fakeSNMP struct {
	connectErr error
	closed     bool
}

func (f *fakeSNMP) Connect() error { return f.connectErr }
func (f *fakeSNMP) Close() error   { f.closed = true; return nil }

func (f *fakeSNMP) Get(oids []string) (*gosnmp.SnmpPacket, error) {
	return &gosnmp.SnmpPacket{Variables: []gosnmp.SnmpPDU{
		{Name: oidSysName, Type: gosnmp.OctetString, Value: []byte("mx-edge")},
		{Name: oidSysUpTime, Type: gosnmp.TimeTicks, Value: uint32(512000)},
	}}, nil
}

func (f *fakeSNMP) BulkWalkAll(root string) ([]gosnmp.SnmpPDU, error) {
	switch root {
	case oidIfDescr:
		return []gosnmp.SnmpPDU{
			{Name: root + ".1", Type: gosnmp.OctetString, Value: []byte("wan0")},
			{Name: root + ".2", Type: gosnmp.OctetString, Value: []byte("lan0")},
		}, nil
	case oidIfInOctets:
		return []gosnmp.SnmpPDU{
			{Name: root + ".1", Type: gosnmp.Counter32, Value: uint(1000)},
			{Name: root + ".2", Type: gosnmp.Counter32, Value: uint(2000)},
		}, nil
	case oidIfOutOctets:
		return []gosnmp.SnmpPDU{
			{Name: root + ".1", Type: gosnmp.Counter32, Value: uint(500)},
			{Name: root + ".2", Type: gosnmp.Counter32, Value: uint(700)},
		}, nil
	}
	return nil, nil
}

func TestPollSNMPProducesGaugeRecords(t *testing.T) {
	fake := &fakeSNMP{}
	d := newTestDashboard(&stubDashboard{})
	d.snmp = fake

	records, err := d.PollSNMP(context.Background())
	if err != nil {
		t.Fatalf("PollSNMP: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want system + 2 interfaces", len(records))
	}
	if records[0]["kind"] != "system" || records[0]["sysName"] != "mx-edge" {
		t.Fatalf("unexpected system record: %v", records[0])
	}

	byName := map[string]endpoint.Record{}
	for _, rec := range records[1:] {
		byName[rec["interface"].(string)] = rec
	}
	wan := byName["wan0"]
	if wan["inOctets"] != uint64(1000) || wan["outOctets"] != uint64(500) {
		t.Fatalf("unexpected wan0 counters: %v", wan)
	}
	if !fake.closed {
		t.Fatal("expected SNMP connection to be closed")
	}
}

func TestPollSNMPUnreachable(t *testing.T) {
	d := newTestDashboard(&stubDashboard{})
	d.snmp = &fakeSNMP{connectErr: fmt.Errorf("dial udp: timeout")}

	_, err := d.PollSNMP(context.Background())
	if coded.CodeOf(err) != coded.CodeEndpointUnreachable {
		t.Fatalf("expected unreachable error, got %v", err)
	}
	if !coded.IsRetryable(err) {
		t.Fatal("unreachable device should be retryable")
	}
}
