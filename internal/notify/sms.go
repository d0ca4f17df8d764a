package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"CrisisDesk/internal/crisis"
	"CrisisDesk/pkg/breaker"
	pkgerrors "CrisisDesk/pkg/errors"
	"CrisisDesk/pkg/sms"
	"CrisisDesk/utils"
)

var errNoValidContacts = errors.New("no emergency contact has a valid phone number")

// SMSConfig 紧急联系人短信模板
type SMSConfig struct {
	SignName     string
	TemplateCode string
	// PhoneHashSalt 日志中以加盐 hash 关联号码
	PhoneHashSalt string
}

// SMSContactNotifier 通过短信通知紧急联系人，模板只带联系人称呼，不带症状
type SMSContactNotifier struct {
	client  sms.Client
	cfg     SMSConfig
	breaker *breaker.CircuitBreaker
	logger  *zap.Logger
}

var _ crisis.ContactNotifier = (*SMSContactNotifier)(nil)

func NewSMSContactNotifier(client sms.Client, cfg SMSConfig, logger *zap.Logger) *SMSContactNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSContactNotifier{
		client:  client,
		cfg:     cfg,
		breaker: breaker.New("emergency_contact_sms", breakerMaxFailures, breakerResetTimeout),
		logger:  logger,
	}
}

func (n *SMSContactNotifier) NotifyContacts(ctx context.Context, userID string, severity crisis.Severity, contacts []crisis.EmergencyContact) error {
	if n.cfg.SignName == "" {
		return pkgerrors.ErrSignNameRequired
	}
	if n.cfg.TemplateCode == "" {
		return pkgerrors.ErrTemplateCodeRequired
	}

	phones := make([]string, 0, len(contacts))
	params := make([]string, 0, len(contacts))
	hashes := make([]string, 0, len(contacts))
	for _, c := range contacts {
		if !utils.ValidatePhone(c.Phone) {
			n.logger.Warn("Skipping emergency contact with invalid phone",
				zap.String("user_id", userID),
				zap.String("phone", sms.MaskPhone(c.Phone)),
			)
			continue
		}
		param, err := sms.TemplateParam(map[string]string{"name": c.Name})
		if err != nil {
			return err
		}
		phones = append(phones, c.Phone)
		params = append(params, param)
		hashes = append(hashes, utils.HashIdentifier(n.cfg.PhoneHashSalt, c.Phone))
	}
	if len(phones) == 0 {
		return errNoValidContacts
	}

	var resp *sms.SendResponse
	err := n.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		if len(phones) == 1 {
			resp, err = n.client.SendSingle(ctx, phones[0], n.cfg.SignName, n.cfg.TemplateCode, params[0])
		} else {
			resp, err = n.client.SendBatch(ctx, phones, n.cfg.SignName, n.cfg.TemplateCode, params)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to notify emergency contacts: %w", err)
	}

	n.logger.Info("Emergency contacts notified",
		zap.String("user_id", userID),
		zap.String("severity", severity.String()),
		zap.Strings("phone_hashes", hashes),
		zap.String("biz_id", resp.MessageID),
		zap.String("provider", resp.Provider),
	)
	return nil
}
