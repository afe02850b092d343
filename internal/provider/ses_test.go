package provider

import (
	"context"
	"net/mail"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/smithy-go"
)

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = params
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: aws.String("0100-ses-id")}, nil
}

func TestSESSendHTML(t *testing.T) {
	api := &fakeSES{}
	c := NewSES(api, mail.Address{Name: "Shop", Address: "no-reply@shop.example"}, time.Second)

	res := c.Send(context.Background(), &Message{
		To:      "ana@example.com",
		Subject: "Hi Ana",
		Body:    "<p>Hello <b>Ana</b></p>",
		HTML:    true,
	})
	if !res.Success {
		t.Fatalf("Send failed: %s", res.Error)
	}
	if res.MessageID != "0100-ses-id" || res.Provider != "aws_ses" {
		t.Errorf("Result = %+v", res)
	}

	in := api.input
	if aws.ToString(in.Source) != `"Shop" <no-reply@shop.example>` {
		t.Errorf("Source = %q", aws.ToString(in.Source))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "ana@example.com" {
		t.Errorf("Destination = %v", in.Destination.ToAddresses)
	}
	if aws.ToString(in.Message.Subject.Data) != "Hi Ana" {
		t.Errorf("Subject = %q", aws.ToString(in.Message.Subject.Data))
	}
	if in.Message.Body.Html == nil || aws.ToString(in.Message.Body.Html.Data) != "<p>Hello <b>Ana</b></p>" {
		t.Error("expected HTML part")
	}
	if in.Message.Body.Text == nil || aws.ToString(in.Message.Body.Text.Data) != "Hello Ana" {
		t.Errorf("Text part = %v", in.Message.Body.Text)
	}
}

func TestSESSendPlain(t *testing.T) {
	api := &fakeSES{}
	res := NewSES(api, mail.Address{Address: "no-reply@shop.example"}, time.Second).
		Send(context.Background(), &Message{To: "ana@example.com", Subject: "s", Body: "plain"})
	if !res.Success {
		t.Fatalf("Send failed: %s", res.Error)
	}
	if api.input.Message.Body.Html != nil {
		t.Error("plain message must not have an HTML part")
	}
}

func TestSESAPIError(t *testing.T) {
	api := &fakeSES{err: &smithy.GenericAPIError{Code: "MessageRejected", Message: "Email address is not verified."}}
	res := NewSES(api, mail.Address{Address: "no-reply@shop.example"}, time.Second).
		Send(context.Background(), &Message{To: "ana@example.com", Subject: "s", Body: "b"})

	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Error != "MessageRejected: Email address is not verified." {
		t.Errorf("Error = %q", res.Error)
	}
}

func TestSESInvalidAddress(t *testing.T) {
	api := &fakeSES{}
	res := NewSES(api, mail.Address{Address: "no-reply@shop.example"}, time.Second).
		Send(context.Background(), &Message{To: "not an address", Body: "b"})
	if res.Success || !strings.Contains(res.Error, "invalid email address") {
		t.Errorf("Result = %+v", res)
	}
	if api.input != nil {
		t.Error("SendEmail must not be called")
	}
}
