// Package email renders and delivers the transactional messages produced by
// the billing reconciler and expiry scheduler.
package email

import (
	"fmt"
	"html/template"
	"strings"

	"crixen/internal/types"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Subject string
	HTML    string
}

var expiryWarningTmpl = template.Must(template.New("expiry_warning").Parse(`
<p>Hi,</p>
<p>Your Crixen <strong>{{.Tier}}</strong> subscription expires in <strong>{{.DaysLeft}}</strong> day{{if ne .DaysLeft "1"}}s{{end}}.</p>
<p>Renew now to keep your generation limits, projects, and strategies.</p>
<p><a href="{{.RenewURL}}">Renew your subscription</a></p>
`))

var expiryNoticeTmpl = template.Must(template.New("expiry_notice").Parse(`
<p>Hi,</p>
<p>Your Crixen <strong>{{.Tier}}</strong> subscription has expired and your account has moved to the starter plan.</p>
<p>You can resubscribe at any time to restore your previous limits.</p>
<p><a href="{{.RenewURL}}">Resubscribe</a></p>
`))

var paymentReceiptTmpl = template.Must(template.New("payment_receipt").Parse(`
<p>Hi,</p>
<p>Thanks for your payment of <strong>${{.Amount}}</strong>. Your account is now on the <strong>{{.Tier}}</strong> plan.</p>
<p>Your subscription is active for the next 30 days.</p>
`))

// Render produces the subject and HTML body for an email job. Unknown kinds
// are an error so the worker can dead-letter malformed jobs instead of
// silently dropping them.
func Render(job types.EmailJob, frontendURL string) (*Message, error) {
	data := map[string]string{
		"Tier":     job.Params["tier"],
		"DaysLeft": job.Params["days_left"],
		"Amount":   job.Params["amount"],
		"RenewURL": frontendURL + "/billing",
	}
	if data["Tier"] == "" {
		data["Tier"] = "pro"
	}

	var (
		subject string
		tmpl    *template.Template
	)
	switch job.Kind {
	case types.EmailExpiryWarning:
		subject = fmt.Sprintf("Your Crixen subscription expires in %s days", data["DaysLeft"])
		if data["DaysLeft"] == "1" {
			subject = "Your Crixen subscription expires tomorrow"
		}
		tmpl = expiryWarningTmpl
	case types.EmailExpiryNotice:
		subject = "Your Crixen subscription has expired"
		tmpl = expiryNoticeTmpl
	case types.EmailPaymentReceipt:
		subject = "Your Crixen payment receipt"
		tmpl = paymentReceiptTmpl
	default:
		return nil, fmt.Errorf("email: unknown job kind %q", job.Kind)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("email: rendering %s: %w", job.Kind, err)
	}

	return &Message{Subject: subject, HTML: buf.String()}, nil
}
