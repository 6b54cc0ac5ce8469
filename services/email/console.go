package emailsvc

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/kwanza/darasa/core"
)

type consoleService struct {
	from   mail.Address
	logger core.Logger
}

var _ core.EmailService = (*consoleService)(nil) // interface compliance check

// NewConsoleService returns an EmailService that prints messages to the
// console instead of sending them. For local development.
func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{from: conf.FromEmailAddress(), logger: logger}
}

func (svc *consoleService) SendMessages(messages ...*core.EmailMessage) {
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

func (svc *consoleService) Send(msg *core.EmailMessage) error {
	if !msg.HasRecipients() {
		return nil
	}
	if err := msg.Render(); err != nil {
		return err
	}
	if !msg.HasContent() {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("From: %s\n", svc.from.String()))
	sb.WriteString(fmt.Sprintf("To: %s\n", joinAddresses(msg.To)))
	if len(msg.Cc) > 0 {
		sb.WriteString(fmt.Sprintf("Cc: %s\n", joinAddresses(msg.Cc)))
	}
	sb.WriteString(fmt.Sprintf("Subject: %s\n\n", msg.Subject))
	sb.WriteString(msg.TextContent)

	svc.logger.Info(sb.String())
	return nil
}

func joinAddresses(addrs []mail.Address) string {
	strs := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		strs = append(strs, addr.String())
	}
	return strings.Join(strs, ", ")
}
