package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"sync"

	"github.com/pkg/errors"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/kwanza/darasa/core"
)

type sendgridService struct {
	from   mail.Address
	client *sendgrid.Client
	logger core.Logger
}

var _ core.EmailService = (*sendgridService)(nil) // interface compliance check

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		from:   conf.FromEmailAddress(),
		client: sendgrid.NewSendClient(conf.SendgridApiKey),
		logger: logger,
	}
}

func (svc *sendgridService) SendMessages(messages ...*core.EmailMessage) {
	var wg sync.WaitGroup
	for _, msg := range messages {
		wg.Add(1)
		go func(m *core.EmailMessage) {
			defer wg.Done()
			if err := svc.Send(m); err != nil {
				svc.logger.Error(fmt.Sprintf("sending mail: %v", err), err)
			}
		}(msg)
	}
	wg.Wait()
}

func (svc *sendgridService) Send(msg *core.EmailMessage) error {
	if !msg.HasRecipients() {
		return nil
	}
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering message")
	}
	if !msg.HasContent() {
		return nil
	}

	resp, err := svc.client.Send(svc.buildMail(msg))
	if err != nil {
		return errors.Wrap(err, "sending mail")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("sending mail: sendgrid responded %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func (svc *sendgridService) buildMail(msg *core.EmailMessage) *sgmail.SGMailV3 {
	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(svc.from.Name, svc.from.Address))
	m.Subject = msg.Subject

	p := sgmail.NewPersonalization()
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgmail.NewEmail(cc.Name, cc.Address))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(sgmail.NewEmail(bcc.Name, bcc.Address))
	}
	m.AddPersonalizations(p)

	if msg.TextContent != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	}
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	for _, at := range msg.Attachments {
		attachment := sgmail.NewAttachment()
		attachment.SetContent(at.Content.String())
		attachment.SetType(at.ContentType)
		attachment.SetFilename(at.Filename)
		attachment.SetDisposition("attachment")
		m.AddAttachment(attachment)
	}
	return m
}
