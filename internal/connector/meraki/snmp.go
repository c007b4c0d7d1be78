package meraki

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/opsrelay/relay-core/internal/coded"
	"github.com/opsrelay/relay-core/internal/endpoint"
)

const (
	oidSysName     = ".1.3.6.1.2.1.1.5.0"
	oidSysUpTime   = ".1.3.6.1.2.1.1.3.0"
	oidIfDescr     = ".1.3.6.1.2.1.2.2.1.2"
	oidIfInOctets  = ".1.3.6.1.2.1.2.2.1.10"
	oidIfOutOctets = ".1.3.6.1.2.1.2.2.1.16"
)

// snmpClient is the slice of gosnmp the poller needs. Tests substitute a
// fake; production wraps *gosnmp.GoSNMP.
type snmpClient interface {
	Connect() error
	Get(oids []string) (*gosnmp.SnmpPacket, error)
	BulkWalkAll(rootOid string) ([]gosnmp.SnmpPDU, error)
	Close() error
}

type gosnmpClient struct {
	*gosnmp.GoSNMP
}

func (c gosnmpClient) Close() error {
	if c.Conn != nil {
		return c.Conn.Close()
	}
	return nil
}

func (d *Dashboard) snmpConn() (snmpClient, error) {
	if d.snmp != nil {
		return d.snmp, nil
	}
	if d.config.SNMPHost == "" {
		return nil, coded.Errorf(coded.CodeBadPayload, false, "snmpHost is not configured")
	}
	port := d.config.SNMPPort
	if port == 0 {
		port = 16100
	}
	return gosnmpClient{&gosnmp.GoSNMP{
		Target:    d.config.SNMPHost,
		Port:      port,
		Community: d.config.SNMPCommunity,
		Version:   gosnmp.Version2c,
		Timeout:   5 * time.Second,
		Retries:   2,
	}}, nil
}

// PollSNMP walks the system and interface counter OIDs on the configured
// SNMP endpoint and returns one record per metric row: a system record
// with name and uptime, then one record per interface with octet counters.
func (d *Dashboard) PollSNMP(ctx context.Context) ([]endpoint.Record, error) {
	conn, err := d.snmpConn()
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(); err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	defer conn.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	packet, err := conn.Get([]string{oidSysName, oidSysUpTime})
	if err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	system := endpoint.Record{"kind": "system", "host": d.config.SNMPHost}
	for _, pdu := range packet.Variables {
		switch pdu.Name {
		case oidSysName:
			system["sysName"] = pduString(pdu)
		case oidSysUpTime:
			system["uptimeTicks"] = pduUint(pdu)
		}
	}
	records := []endpoint.Record{system}

	names, err := walkColumn(conn, oidIfDescr)
	if err != nil {
		return nil, err
	}
	inOctets, err := walkColumn(conn, oidIfInOctets)
	if err != nil {
		return nil, err
	}
	outOctets, err := walkColumn(conn, oidIfOutOctets)
	if err != nil {
		return nil, err
	}

	for index, pdu := range names {
		rec := endpoint.Record{
			"kind":      "interface",
			"host":      d.config.SNMPHost,
			"interface": pduString(pdu),
		}
		if in, ok := inOctets[index]; ok {
			rec["inOctets"] = pduUint(in)
		}
		if out, ok := outOctets[index]; ok {
			rec["outOctets"] = pduUint(out)
		}
		records = append(records, rec)
	}
	return records, nil
}

// walkColumn walks one ifTable column and keys the PDUs by row index
// (the OID suffix past the column root).
func walkColumn(conn snmpClient, root string) (map[string]gosnmp.SnmpPDU, error) {
	pdus, err := conn.BulkWalkAll(root)
	if err != nil {
		return nil, coded.Wrap(coded.CodeEndpointUnreachable, true, err)
	}
	byIndex := make(map[string]gosnmp.SnmpPDU, len(pdus))
	for _, pdu := range pdus {
		index := strings.TrimPrefix(pdu.Name, root+".")
		byIndex[index] = pdu
	}
	return byIndex, nil
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return fmt.Sprintf("%v", pdu.Value)
}

func pduUint(pdu gosnmp.SnmpPDU) uint64 {
	return gosnmp.ToBigInt(pdu.Value).Uint64()
}
