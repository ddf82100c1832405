package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

// ReminderData feeds the dunning reminder templates.
type ReminderData struct {
	ClientName    string
	InvoiceNumber string
	AmountDue     string
	DueDate       string
	DaysOverdue   int
}

var reminderSubjects = map[int]string{
	1: "Rappel: facture %s arrivée à échéance",
	2: "Relance: facture %s impayée",
	3: "Relance ferme: facture %s toujours impayée",
	4: "Mise en demeure: facture %s",
}

var reminderBody = template.Must(template.New("reminder").Parse(`
<p>Bonjour {{.ClientName}},</p>
<p>Sauf erreur de notre part, la facture <strong>{{.InvoiceNumber}}</strong>
d'un montant de <strong>{{.AmountDue}}</strong>, échue le {{.DueDate}}
({{.DaysOverdue}} jours de retard), reste impayée à ce jour.</p>
<p>Merci de procéder à son règlement dans les meilleurs délais.</p>
`))

// SendReminder renders and sends the dunning email for a tier.
func SendReminder(ctx context.Context, provider Provider, to string, tier int, data ReminderData) error {
	subjectFmt, ok := reminderSubjects[tier]
	if !ok {
		return fmt.Errorf("unknown reminder tier %d", tier)
	}

	var body bytes.Buffer
	if err := reminderBody.Execute(&body, data); err != nil {
		return fmt.Errorf("render reminder template: %w", err)
	}

	subject := fmt.Sprintf(subjectFmt, data.InvoiceNumber)
	return provider.Send(ctx, []string{to}, subject, body.String())
}
