package emailsvc

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/kwanza/darasa/core"
)

// SendErr, when set, is returned by every Send call; simulates delivery
// failure in tests.
type dummyService struct {
	mutex        sync.Mutex
	SentMessages []core.EmailMessage
	SendErr      error
}

var _ core.EmailService = (*dummyService)(nil) // interface compliance check

// NewDummyService returns an EmailService that only records sent messages.
// For tests.
func NewDummyService() *dummyService { //nolint:revive
	return new(dummyService)
}

func (svc *dummyService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		_ = svc.Send(msg)
	}
}

func (svc *dummyService) Send(msg *core.EmailMessage) error {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	if svc.SendErr != nil {
		return svc.SendErr
	}
	if err := msg.Render(); err != nil {
		return errors.Wrap(err, "rendering message")
	}
	svc.SentMessages = append(svc.SentMessages, *msg)
	return nil
}

// Fail makes all subsequent Send calls return err.
func (svc *dummyService) Fail(err error) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	svc.SendErr = err
}

// Sent returns a snapshot of the recorded messages.
func (svc *dummyService) Sent() []core.EmailMessage {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()
	return append([]core.EmailMessage(nil), svc.SentMessages...)
}
