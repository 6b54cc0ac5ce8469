package user

import (
	"context"

	"github.com/kwanza/darasa/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose background work runs synchronously,
// for deterministic tests.
func NewServiceMock(
	repo Repository,
	mailSvc core.EmailService,
	mirror core.Cache,
	limiter core.AttemptLimiter,
	logger core.Logger,
	conf *core.Config,
) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			mirror:  mirror,
			limiter: limiter,
			logger:  logger,
			conf:    conf,
		},
	}
}

func (svc *serviceMock) UpdatePrivacy(ctx context.Context, id string, settings PrivacySettings) (PrivacySettings, error) {
	settings.Normalize()
	if err := svc.repo.UpdatePrivacy(ctx, id, settings); err != nil {
		return PrivacySettings{}, err
	}
	// run synchronously
	svc.mirrorPrivacy(id, settings)
	return settings, nil
}
