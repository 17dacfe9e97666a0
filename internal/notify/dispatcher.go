package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"
)

// Dispatcher delivers out-of-band messages about lead activity.
//
// All methods are best-effort from the engines' point of view: delivery
// failure is logged and never propagated into the transaction the caller is
// waiting on. Engines call Dispatch to get that behavior.
type Dispatcher interface {
	// NotifyProviderOfLead tells a provider a lead was routed to or claimed
	// by them. chargeCents is what the provider actually paid (0 for
	// credit-covered routing and trial claims).
	NotifyProviderOfLead(ctx context.Context, p directory.Provider, l leads.Lead, chargeCents int64) error

	// NotifyAdminUnservedLead alerts the operations channel that no provider
	// covers a new lead.
	NotifyAdminUnservedLead(ctx context.Context, l leads.Lead) error

	// NotifyProviderLowCredits tells a provider a lead was delivered but
	// their credit balance is exhausted and needs a top-up.
	NotifyProviderLowCredits(ctx context.Context, p directory.Provider, l leads.Lead) error
}

const dispatchTimeout = 10 * time.Second

// Dispatch runs fn on its own goroutine with a detached timeout context.
// Errors and panics are logged, never returned; notification latency must
// not block the transaction a patient or provider is waiting on.
func Dispatch(log *slog.Logger, name string, fn func(ctx context.Context) error) {
	go func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error("notification panicked", "notification", name, "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Error("notification failed", "notification", name, "err", err)
		}
	}()
}

// Nop discards every notification. Used when no transport is configured.
type Nop struct{}

func (Nop) NotifyProviderOfLead(context.Context, directory.Provider, leads.Lead, int64) error {
	return nil
}
func (Nop) NotifyAdminUnservedLead(context.Context, leads.Lead) error { return nil }
func (Nop) NotifyProviderLowCredits(context.Context, directory.Provider, leads.Lead) error {
	return nil
}

// Multi fans a notification out to several dispatchers, returning the first
// error after attempting all of them.
type Multi []Dispatcher

func (m Multi) NotifyProviderOfLead(ctx context.Context, p directory.Provider, l leads.Lead, chargeCents int64) error {
	var first error
	for _, d := range m {
		if err := d.NotifyProviderOfLead(ctx, p, l, chargeCents); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) NotifyAdminUnservedLead(ctx context.Context, l leads.Lead) error {
	var first error
	for _, d := range m {
		if err := d.NotifyAdminUnservedLead(ctx, l); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) NotifyProviderLowCredits(ctx context.Context, p directory.Provider, l leads.Lead) error {
	var first error
	for _, d := range m {
		if err := d.NotifyProviderLowCredits(ctx, p, l); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder captures notifications in memory for tests.
type Recorder struct {
	mu sync.Mutex

	ProviderLeads []RecordedProviderLead
	Unserved      []leads.Lead
	LowCredits    []RecordedProviderLead
}

type RecordedProviderLead struct {
	ProviderID  string
	LeadID      string
	ChargeCents int64
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) NotifyProviderOfLead(ctx context.Context, p directory.Provider, l leads.Lead, chargeCents int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ProviderLeads = append(r.ProviderLeads, RecordedProviderLead{ProviderID: p.ID, LeadID: l.ID, ChargeCents: chargeCents})
	return nil
}

func (r *Recorder) NotifyAdminUnservedLead(ctx context.Context, l leads.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Unserved = append(r.Unserved, l)
	return nil
}

func (r *Recorder) NotifyProviderLowCredits(ctx context.Context, p directory.Provider, l leads.Lead) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.LowCredits = append(r.LowCredits, RecordedProviderLead{ProviderID: p.ID, LeadID: l.ID})
	return nil
}

// Counts returns the number of recorded notifications per kind.
func (r *Recorder) Counts() (providerLeads, unserved, lowCredits int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ProviderLeads), len(r.Unserved), len(r.LowCredits)
}
