package provider

import (
	"context"
	"errors"
	"net/mail"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/smithy-go"

	"github.com/foxzi/msghub/internal/models"
)

// DefaultAWSRegion is used when aws_region is unset
const DefaultAWSRegion = "us-east-1"

const charsetUTF8 = "UTF-8"

// SESAPI is the subset of the SES client used here
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESCredentials identifies an AWS account and region
type SESCredentials struct {
	AccessKey string
	SecretKey string
	Region    string
}

// NewSESAPI creates an SES client with static credentials
func NewSESAPI(creds SESCredentials, timeout time.Duration) SESAPI {
	region := creds.Region
	if region == "" {
		region = DefaultAWSRegion
	}
	return ses.New(ses.Options{
		Region:      region,
		Credentials: aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")),
		HTTPClient:  newHTTPClient(timeout),
	})
}

// SES sends email through Amazon SES
type SES struct {
	api     SESAPI
	from    mail.Address
	timeout time.Duration
}

// NewSES creates an SES email client
func NewSES(api SESAPI, from mail.Address, timeout time.Duration) *SES {
	return &SES{api: api, from: from, timeout: timeout}
}

func (c *SES) Name() string            { return models.EmailProviderAWSSES }
func (c *SES) Channel() models.Channel { return models.ChannelEmail }

func (c *SES) Send(ctx context.Context, msg *Message) Result {
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return failure(c.Name(), "invalid email address %q", msg.To)
	}

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	body := &types.Body{}
	if msg.HTML {
		body.Html = &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charsetUTF8)}
		body.Text = &types.Content{Data: aws.String(HTMLToText(msg.Body)), Charset: aws.String(charsetUTF8)}
	} else {
		body.Text = &types.Content{Data: aws.String(msg.Body), Charset: aws.String(charsetUTF8)}
	}

	out, err := c.api.SendEmail(ctx, &ses.SendEmailInput{
		Source:      aws.String(c.from.String()),
		Destination: &types.Destination{ToAddresses: []string{msg.To}},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String(charsetUTF8)},
			Body:    body,
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return failure(c.Name(), "%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
		return failure(c.Name(), "%v", err)
	}

	return success(c.Name(), aws.ToString(out.MessageId))
}
