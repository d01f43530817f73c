// Package worker holds the background pieces of the pipeline: the SES
// transport, the Redis send throttle and the cron scheduler that starts due
// campaigns.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/audience-dispatch/internal/domain"
	"github.com/ignite/audience-dispatch/internal/pkg/logger"
	"github.com/ignite/audience-dispatch/internal/service/sending"
)

type sesAPI interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESConfig configures the SES transport. Empty keys fall back to the
// default AWS credential chain.
type SESConfig struct {
	Region           string
	AccessKey        string
	SecretKey        string
	ConfigurationSet string
}

// SESSender sends emails via AWS SES using the SDK v2.
type SESSender struct {
	client    sesAPI
	configSet string
	now       func() time.Time
}

var _ sending.Sender = (*SESSender)(nil)

// NewSESSender creates an SES sender.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newSESSender(sesv2.NewFromConfig(awsCfg), cfg.ConfigurationSet), nil
}

func newSESSender(client sesAPI, configSet string) *SESSender {
	return &SESSender{client: client, configSet: configSet, now: time.Now}
}

// Send delivers a single email through AWS SES. Errors are classified for
// the orchestrator: rejections are permanent, throttling and outages are
// transient.
func (s *SESSender) Send(ctx context.Context, msg *domain.EmailMessage) (*domain.SendResult, error) {
	from := msg.FromEmail
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, msg.FromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination:      &types.Destination{ToAddresses: []string{msg.Email}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body:    &types.Body{},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("campaign_id"), Value: aws.String(msg.CampaignID)},
			{Name: aws.String("contact_id"), Value: aws.String(msg.ContactID)},
		},
	}
	if msg.HTMLContent != "" {
		input.Content.Simple.Body.Html = &types.Content{Data: aws.String(msg.HTMLContent), Charset: aws.String("UTF-8")}
	}
	if msg.TextContent != "" {
		input.Content.Simple.Body.Text = &types.Content{Data: aws.String(msg.TextContent), Charset: aws.String("UTF-8")}
	}
	if s.configSet != "" {
		input.ConfigurationSetName = aws.String(s.configSet)
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		logger.Debug("ses send failed", "campaign_id", msg.CampaignID, "email", msg.Email, "err", err)
		return nil, classifySESError(err)
	}

	res := &domain.SendResult{SentAt: s.now().UTC()}
	if out != nil && out.MessageId != nil {
		res.MessageID = *out.MessageId
	}
	return res, nil
}

func classifySESError(err error) error {
	var (
		rejected   *types.MessageRejected
		unverified *types.MailFromDomainNotVerifiedException
		badRequest *types.BadRequestException
		notFound   *types.NotFoundException
		throttled  *types.TooManyRequestsException
		limit      *types.LimitExceededException
		paused     *types.SendingPausedException
		suspended  *types.AccountSuspendedException
	)
	switch {
	case errors.As(err, &rejected):
		return sending.NewPermanent("MessageRejected", err)
	case errors.As(err, &unverified):
		return sending.NewPermanent("MailFromDomainNotVerified", err)
	case errors.As(err, &badRequest):
		return sending.NewPermanent("BadRequest", err)
	case errors.As(err, &notFound):
		return sending.NewPermanent("NotFound", err)
	case errors.As(err, &throttled):
		return sending.NewTransient("TooManyRequests", err)
	case errors.As(err, &limit):
		return sending.NewTransient("LimitExceeded", err)
	case errors.As(err, &paused):
		return sending.NewTransient("SendingPaused", err)
	case errors.As(err, &suspended):
		// Account-level: retry and fail the row rather than bounce the address.
		return sending.NewTransient("AccountSuspended", err)
	}
	return sending.NewTransient("", err)
}
