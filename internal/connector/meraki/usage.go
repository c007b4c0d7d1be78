package meraki

import (
	"context"
	"sort"
)

// ClientUsage is one client's traffic totals in kilobytes.
type ClientUsage struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	MAC         string  `json:"mac"`
	SentKB      float64 `json:"sentKb"`
	RecvKB      float64 `json:"recvKb"`
	TotalKB     float64 `json:"totalKb"`
}

// UsageSummary aggregates one network's client traffic.
type UsageSummary struct {
	NetworkID   string        `json:"networkId"`
	ClientCount int           `json:"clientCount"`
	TotalSentKB float64       `json:"totalSentKb"`
	TotalRecvKB float64       `json:"totalRecvKb"`
	TopClients  []ClientUsage `json:"topClients"`
}

// NetworkUsageSummary fetches a network's clients and reduces them to
// per-network totals plus the top-N clients by combined traffic.
func (d *Dashboard) NetworkUsageSummary(ctx context.Context, networkID string, topN int) (*UsageSummary, error) {
	if topN <= 0 {
		topN = 10
	}
	clients, err := d.ListClients(ctx, networkID)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{NetworkID: networkID, ClientCount: len(clients)}
	usages := make([]ClientUsage, 0, len(clients))
	for _, c := range clients {
		u := ClientUsage{
			ID:          stringField(c, "id"),
			Description: stringField(c, "description"),
			MAC:         stringField(c, "mac"),
		}
		if usage, ok := c["usage"].(map[string]any); ok {
			u.SentKB = floatField(usage, "sent")
			u.RecvKB = floatField(usage, "recv")
		}
		u.TotalKB = u.SentKB + u.RecvKB
		summary.TotalSentKB += u.SentKB
		summary.TotalRecvKB += u.RecvKB
		usages = append(usages, u)
	}

	sort.Slice(usages, func(i, j int) bool { return usages[i].TotalKB > usages[j].TotalKB })
	if len(usages) > topN {
		usages = usages[:topN]
	}
	summary.TopClients = usages
	return summary, nil
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func floatField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
