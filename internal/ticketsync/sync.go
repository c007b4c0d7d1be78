// Package ticketsync reconciles Nagios problems with ServiceDesk Plus
// requests. Each problem gets exactly one ticket: new problems open one,
// state changes add a worknote and escalations raise the ticket priority,
// recoveries close it. Running the sync twice against an unchanged alert
// set is a no-op.
package ticketsync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/opsrelay/relay-core/internal/connector/nagios"
	"github.com/opsrelay/relay-core/internal/state"
)

// AlertSource yields the current open problems.
type AlertSource interface {
	OpenProblems(ctx context.Context) ([]*nagios.Alert, error)
}

// Ticketer is the slice of the ITSM connector the sync needs.
type Ticketer interface {
	CreateRequest(ctx context.Context, subject, description, priority, group string) (string, error)
	AddNote(ctx context.Context, requestID, note string) error
	UpdatePriority(ctx context.Context, requestID, priority string) error
	CloseRequest(ctx context.Context, requestID, comments string) error
}

// severity orders alert states so a transition can be classified as an
// escalation. Host and service states share one scale.
var severity = map[string]int{
	"OK": 0, "UP": 0,
	"UNKNOWN":  1,
	"WARNING":  2,
	"CRITICAL": 3, "DOWN": 3, "UNREACHABLE": 3,
}

// Summary is the outcome of one reconciliation pass.
type Summary struct {
	Alerts    int
	Created   int
	Noted     int
	Escalated int
	Closed    int
	Errors    int
}

// Syncer drives the reconciliation.
type Syncer struct {
	source  AlertSource
	tickets Ticketer
	mapping state.TicketMap
	profile *Profile
	log     zerolog.Logger
}

// NewSyncer builds a syncer. A nil profile falls back to DefaultProfile.
func NewSyncer(source AlertSource, tickets Ticketer, mapping state.TicketMap, profile *Profile, log zerolog.Logger) *Syncer {
	if profile == nil {
		profile = DefaultProfile()
	}
	return &Syncer{source: source, tickets: tickets, mapping: mapping, profile: profile, log: log}
}

// Run executes one reconciliation pass. Alert-level failures are counted
// and logged but do not stop the pass.
func (s *Syncer) Run(ctx context.Context) (*Summary, error) {
	alerts, err := s.source.OpenProblems(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch open problems: %w", err)
	}

	summary := &Summary{Alerts: len(alerts)}
	current := make(map[string]*nagios.Alert, len(alerts))

	for _, alert := range alerts {
		key := alert.DedupeKey()
		current[key] = alert
		if err := s.reconcileAlert(ctx, key, alert, summary); err != nil {
			summary.Errors++
			s.log.Error().Err(err).Str("alert", key).Msg("alert reconciliation failed")
		}
	}

	if err := s.closeRecovered(ctx, current, summary); err != nil {
		return summary, err
	}

	s.log.Info().
		Int("alerts", summary.Alerts).
		Int("created", summary.Created).
		Int("noted", summary.Noted).
		Int("escalated", summary.Escalated).
		Int("closed", summary.Closed).
		Int("errors", summary.Errors).
		Msg("ticket sync pass finished")
	return summary, nil
}

func (s *Syncer) reconcileAlert(ctx context.Context, key string, alert *nagios.Alert, summary *Summary) error {
	existing, err := s.mapping.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("mapping lookup: %w", err)
	}

	if existing == nil {
		out := s.profile.Resolve(alert)
		subject := fmt.Sprintf("[%s] %s", alert.State, key)
		description := alert.Output
		ticketID, err := s.tickets.CreateRequest(ctx, subject, description, out.Priority, out.Group)
		if err != nil {
			return fmt.Errorf("create ticket: %w", err)
		}
		now := time.Now().UTC()
		if err := s.mapping.Put(ctx, &state.TicketMapping{
			DedupeKey:  key,
			TicketID:   ticketID,
			AlertState: alert.State,
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return fmt.Errorf("persist mapping: %w", err)
		}
		summary.Created++
		s.log.Info().Str("alert", key).Str("ticket", ticketID).Str("priority", out.Priority).Msg("ticket created")
		return nil
	}

	if existing.AlertState == alert.State {
		return nil
	}

	note := fmt.Sprintf("State changed %s -> %s: %s", existing.AlertState, alert.State, alert.Output)
	if err := s.tickets.AddNote(ctx, existing.TicketID, note); err != nil {
		return fmt.Errorf("add worknote: %w", err)
	}
	if severity[alert.State] > severity[existing.AlertState] {
		out := s.profile.Resolve(alert)
		if err := s.tickets.UpdatePriority(ctx, existing.TicketID, out.Priority); err != nil {
			return fmt.Errorf("escalate priority: %w", err)
		}
		summary.Escalated++
		s.log.Info().Str("alert", key).Str("ticket", existing.TicketID).Str("priority", out.Priority).Msg("ticket priority escalated")
	}
	existing.AlertState = alert.State
	existing.UpdatedAt = time.Now().UTC()
	if err := s.mapping.Put(ctx, existing); err != nil {
		return fmt.Errorf("persist mapping: %w", err)
	}
	summary.Noted++
	s.log.Info().Str("alert", key).Str("ticket", existing.TicketID).Str("state", alert.State).Msg("worknote added")
	return nil
}

// closeRecovered closes tickets whose alert no longer appears.
func (s *Syncer) closeRecovered(ctx context.Context, current map[string]*nagios.Alert, summary *Summary) error {
	active, err := s.mapping.Active(ctx)
	if err != nil {
		return fmt.Errorf("list active mappings: %w", err)
	}
	for _, m := range active {
		if _, stillOpen := current[m.DedupeKey]; stillOpen {
			continue
		}
		if err := s.tickets.CloseRequest(ctx, m.TicketID, "Alert recovered"); err != nil {
			summary.Errors++
			s.log.Error().Err(err).Str("alert", m.DedupeKey).Str("ticket", m.TicketID).Msg("ticket close failed")
			continue
		}
		if err := s.mapping.Resolve(ctx, m.DedupeKey); err != nil {
			summary.Errors++
			s.log.Error().Err(err).Str("alert", m.DedupeKey).Msg("mapping resolve failed")
			continue
		}
		summary.Closed++
		s.log.Info().Str("alert", m.DedupeKey).Str("ticket", m.TicketID).Msg("ticket closed on recovery")
	}
	return nil
}
