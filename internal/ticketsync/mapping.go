package ticketsync

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"

	"github.com/opsrelay/relay-core/internal/connector/nagios"
)

// Profile maps alerts to ticket attributes. Rules are evaluated top to
// bottom; the first match wins and the defaults fill anything left empty.
type Profile struct {
	Defaults RuleOutput `yaml:"defaults"`
	Rules    []Rule     `yaml:"rules"`
}

// Rule pairs a match condition with ticket attributes.
type Rule struct {
	Match  RuleMatch  `yaml:"match"`
	Ticket RuleOutput `yaml:"ticket"`
}

// RuleMatch selects alerts. Empty fields match everything; Host and
// Service take path.Match globs ("db*", "Disk *"). A '*' does not cross
// a '/' in the matched value.
type RuleMatch struct {
	State   string `yaml:"state"`
	Host    string `yaml:"host"`
	Service string `yaml:"service"`
}

// RuleOutput is the ticket attributes a rule assigns.
type RuleOutput struct {
	Priority string `yaml:"priority"`
	Group    string `yaml:"group"`
	Urgency  string `yaml:"urgency"`
}

// LoadProfile reads a mapping profile from a YAML file.
func LoadProfile(file string) (*Profile, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read mapping profile: %w", err)
	}
	return ParseProfile(data)
}

// ParseProfile decodes a mapping profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse mapping profile: %w", err)
	}
	for i, r := range p.Rules {
		if err := validGlob(r.Match.Host); err != nil {
			return nil, fmt.Errorf("rule %d host pattern: %w", i, err)
		}
		if err := validGlob(r.Match.Service); err != nil {
			return nil, fmt.Errorf("rule %d service pattern: %w", i, err)
		}
	}
	return &p, nil
}

func validGlob(pattern string) error {
	if pattern == "" {
		return nil
	}
	_, err := path.Match(pattern, "probe")
	return err
}

// DefaultProfile is used when no mapping file is configured.
func DefaultProfile() *Profile {
	return &Profile{
		Defaults: RuleOutput{Priority: "Medium", Group: "Operations"},
		Rules: []Rule{
			{Match: RuleMatch{State: "CRITICAL"}, Ticket: RuleOutput{Priority: "High"}},
			{Match: RuleMatch{State: "DOWN"}, Ticket: RuleOutput{Priority: "High"}},
		},
	}
}

// Resolve returns the ticket attributes for an alert.
func (p *Profile) Resolve(alert *nagios.Alert) RuleOutput {
	out := p.Defaults
	for _, r := range p.Rules {
		if !r.matches(alert) {
			continue
		}
		if r.Ticket.Priority != "" {
			out.Priority = r.Ticket.Priority
		}
		if r.Ticket.Group != "" {
			out.Group = r.Ticket.Group
		}
		if r.Ticket.Urgency != "" {
			out.Urgency = r.Ticket.Urgency
		}
		break
	}
	return out
}

func (r *Rule) matches(alert *nagios.Alert) bool {
	if r.Match.State != "" && r.Match.State != alert.State {
		return false
	}
	if r.Match.Host != "" {
		if ok, _ := path.Match(r.Match.Host, alert.Host); !ok {
			return false
		}
	}
	if r.Match.Service != "" {
		if ok, _ := path.Match(r.Match.Service, alert.Service); !ok {
			return false
		}
	}
	return true
}
