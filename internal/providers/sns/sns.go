// Package sns sends SMS through Amazon SNS direct publish.
package sns

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

// Name is the registry name of this adapter.
const Name = "sns"

const (
	attrSenderID = "AWS.SNS.SMS.SenderID"
	attrSMSType  = "AWS.SNS.SMS.SMSType"
)

var throttlingCodes = map[string]bool{
	"Throttling":          true,
	"ThrottlingException": true,
	"ThrottledException":  true,
}

// PublishAPI is the subset of the SNS client used by the adapter.
type PublishAPI interface {
	Publish(ctx context.Context, params *awssns.PublishInput, optFns ...func(*awssns.Options)) (*awssns.PublishOutput, error)
}

// Option customises the behaviour of the SNS adapter.
type Option func(*Adapter)

// WithClient injects a ready SNS client instead of building one from the
// credentials.
func WithClient(client PublishAPI) Option {
	return func(a *Adapter) {
		if client != nil {
			a.client = client
		}
	}
}

// WithHTTPClient sets the HTTP client used when the adapter builds its own
// SNS client.
func WithHTTPClient(client common.HTTPClient) Option {
	return func(a *Adapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// Adapter implements common.Adapter for Amazon SNS.
type Adapter struct {
	logger     zerolog.Logger
	client     PublishAPI
	httpClient common.HTTPClient
	senderID   string
	smsType    string
}

// New constructs an SNS adapter. Required keys: key, secret, region.
// Optional: sender_id, sms_type, endpoint.
func New(cfg common.ProviderConfig, logger zerolog.Logger, opts ...Option) (*Adapter, error) {
	if err := cfg.Require(Name, "key", "secret", "region"); err != nil {
		return nil, err
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	a := &Adapter{
		logger:   logger.With().Str("provider", Name).Logger(),
		senderID: cfg.Get("sender_id"),
		smsType:  cfg.Get("sms_type"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.client == nil {
		client, err := newClient(cfg, a.httpClient)
		if err != nil {
			return nil, err
		}
		a.client = client
	}
	return a, nil
}

func newClient(cfg common.ProviderConfig, httpClient common.HTTPClient) (*awssns.Client, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Get("region")),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.Get("key"), cfg.Get("secret"), "")),
	}
	if httpClient != nil {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(httpClient))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), loadOpts...)
	if err != nil {
		return nil, errs.Configuration(Name, "load aws config: %v", err)
	}

	endpoint, err := cfg.URL(Name, "endpoint", "")
	if err != nil {
		return nil, err
	}
	return awssns.NewFromConfig(awsCfg, func(o *awssns.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Factory adapts New to the registry factory signature.
func Factory(cfg common.ProviderConfig, deps common.Deps) (common.Adapter, error) {
	return New(cfg, deps.Logger, WithHTTPClient(deps.Client()))
}

// Name returns the registry name.
func (a *Adapter) Name() string { return Name }

// Send publishes the text body to each recipient. SNS has no template
// support, so template-only messages are rejected before any call.
func (a *Adapter) Send(ctx context.Context, msg *message.Message) (*common.SendResult, error) {
	if !msg.HasText() {
		if msg.HasTemplate() {
			return nil, errs.Validation("AWS SNS requires message text; templates are not supported")
		}
		return nil, errs.Validation("message text is required")
	}

	attrs := a.attributes()
	result := common.NewSendResult(Name)
	for _, to := range msg.Recipients() {
		out, err := a.client.Publish(ctx, &awssns.PublishInput{
			PhoneNumber:       aws.String(to),
			Message:           aws.String(msg.Text()),
			MessageAttributes: attrs,
		})
		if err != nil {
			err = classify(err)
			a.logger.Warn().Str("recipient", to).Err(err).Msg("sns publish failed")
			return result, err
		}
		id := aws.ToString(out.MessageId)
		if id == "" {
			return result, &errs.ProviderError{Provider: Name, Message: "publish response missing MessageId"}
		}
		result.Add(to, id)
	}
	return result, nil
}

func (a *Adapter) attributes() map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{}
	if a.senderID != "" {
		attrs[attrSenderID] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(a.senderID)}
	}
	if a.smsType != "" {
		attrs[attrSMSType] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(a.smsType)}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

// classify maps SDK errors onto the gateway taxonomy: anything the service
// answered is a provider error, everything else a transport failure.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return &errs.ProviderError{
			Provider:  Name,
			Code:      apiErr.ErrorCode(),
			Message:   apiErr.ErrorMessage(),
			Temporary: apiErr.ErrorFault() == smithy.FaultServer || throttlingCodes[apiErr.ErrorCode()],
			Err:       err,
		}
	}
	return errs.Network(Name, fmt.Errorf("publish: %w", err))
}
