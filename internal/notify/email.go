package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"leadmarket-platform/internal/directory"
	"leadmarket-platform/internal/leads"

	"gopkg.in/gomail.v2"
)

// EmailDispatcher sends plain SMTP mail directly. It is the fallback
// transport for deployments without a message broker; the queue dispatcher
// is preferred in production.
type EmailDispatcher struct {
	dialer     *gomail.Dialer
	from       string
	adminEmail string
}

func NewEmailDispatcher(host string, port int, user, password, from, adminEmail string) *EmailDispatcher {
	return &EmailDispatcher{
		dialer:     gomail.NewDialer(host, port, user, password),
		from:       from,
		adminEmail: adminEmail,
	}
}

var providerLeadTmpl = template.Must(template.New("provider_lead").Parse(
	`A new patient request is assigned to you.

Name: {{.Lead.Name}}
Phone: {{.Lead.Phone}}
Location: {{.Lead.City}}, {{.Lead.State}} {{.Lead.Zip}}
Urgency: {{.Lead.Urgency}}
{{if gt .ChargeCents 0}}Charged: ${{.ChargeDollars}}{{else}}No charge was applied for this lead.{{end}}
`))

var unservedTmpl = template.Must(template.New("unserved").Parse(
	`No provider covers a new lead.

Lead: {{.ID}}
Location: {{.City}}, {{.State}} {{.Zip}}
Urgency: {{.Urgency}}

The lead remains open for manual placement.
`))

var lowCreditsTmpl = template.Must(template.New("low_credits").Parse(
	`A lead in {{.Lead.Zip}} was reserved for you, but your lead credit balance is empty.

Top up your credits to keep receiving requests without interruption.
`))

func (d *EmailDispatcher) NotifyProviderOfLead(ctx context.Context, p directory.Provider, l leads.Lead, chargeCents int64) error {
	body, err := render(providerLeadTmpl, struct {
		Lead          leads.Lead
		ChargeCents   int64
		ChargeDollars string
	}{l, chargeCents, fmt.Sprintf("%.2f", float64(chargeCents)/100)})
	if err != nil {
		return err
	}
	return d.send(p.Email, "New patient request assigned to you", body)
}

func (d *EmailDispatcher) NotifyAdminUnservedLead(ctx context.Context, l leads.Lead) error {
	if d.adminEmail == "" {
		return fmt.Errorf("notify: admin email not configured")
	}
	body, err := render(unservedTmpl, l)
	if err != nil {
		return err
	}
	return d.send(d.adminEmail, fmt.Sprintf("Unserved lead in %s %s", l.State, l.Zip), body)
}

func (d *EmailDispatcher) NotifyProviderLowCredits(ctx context.Context, p directory.Provider, l leads.Lead) error {
	body, err := render(lowCreditsTmpl, struct {
		Provider directory.Provider
		Lead     leads.Lead
	}{p, l})
	if err != nil {
		return err
	}
	return d.send(p.Email, "Action needed: lead credits exhausted", body)
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: template render failed: %w", err)
	}
	return buf.String(), nil
}

func (d *EmailDispatcher) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", d.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	if err := d.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("notify: smtp send failed: %w", err)
	}
	return nil
}
