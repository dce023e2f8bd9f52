package proposal

import (
	"net/mail"

	"github.com/trezcool/tribunal/core"
)

// email templates
const (
	submittedTemplate = "proposal_submitted"
	approvedTemplate  = "proposal_approved"
	rejectedTemplate  = "proposal_rejected"
)

type notificationData struct {
	Name            string
	ID              string
	Title           string
	AuthorName      string
	TargetHierarchy int
	Reason          string
}

// notifySubmitted asks every maestro with an email for a vote.
func (svc *Service) notifySubmitted(p Proposal, committee []core.Reviewer) {
	if svc.mailer == nil {
		return
	}
	var messages []*core.EmailMessage
	for _, r := range committee {
		if r.Email == "" {
			continue
		}
		messages = append(messages, svc.message(
			mail.Address{Name: r.Name, Address: r.Email},
			"New proposal to review: "+p.Title,
			submittedTemplate,
			p, r.Name,
		))
	}
	if len(messages) > 0 {
		svc.mailer.SendMessages(messages...)
	}
}

// notifySettled tells the author the verdict.
func (svc *Service) notifySettled(p Proposal) {
	if svc.mailer == nil || p.AuthorEmail == "" {
		return
	}
	subject, tmpl := "Your proposal was approved", approvedTemplate
	if p.Status == StatusRejected {
		subject, tmpl = "Your proposal was rejected", rejectedTemplate
	}
	svc.mailer.SendMessages(svc.message(
		mail.Address{Name: p.AuthorName, Address: p.AuthorEmail},
		subject, tmpl, p, p.AuthorName,
	))
}

func (svc *Service) message(to mail.Address, subject, tmpl string, p Proposal, name string) *core.EmailMessage {
	return &core.EmailMessage{
		To:           []mail.Address{to},
		Subject:      subject,
		TemplateName: tmpl,
		TemplateData: notificationData{
			Name:            name,
			ID:              p.ID,
			Title:           p.ResolvedTitle(),
			AuthorName:      p.AuthorName,
			TargetHierarchy: p.TargetHierarchy,
			Reason:          p.RejectionReason,
		},
	}
}
