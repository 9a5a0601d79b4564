package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	common "github.com/ajayykmr/sms-gateway/internal/adapters/common"
	"github.com/ajayykmr/sms-gateway/internal/errs"
	"github.com/ajayykmr/sms-gateway/internal/message"
)

type fakePublisher struct {
	inputs []*awssns.PublishInput
	out    *awssns.PublishOutput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, in *awssns.PublishInput, _ ...func(*awssns.Options)) (*awssns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

var baseConfig = common.ProviderConfig{"key": "AKIA", "secret": "s3cr3t", "region": "us-east-1"}

func textMessage(t *testing.T, to ...string) *message.Message {
	t.Helper()
	m := message.New()
	require.NoError(t, m.AddRecipients(to...))
	require.NoError(t, m.SetText("Your code is 1234"))
	return m
}

func TestNewRequiresRegion(t *testing.T) {
	_, err := New(common.ProviderConfig{"key": "AKIA", "secret": "s"}, zerolog.Nop(), WithClient(&fakePublisher{}))
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestNewBuildsClient(t *testing.T) {
	a, err := New(baseConfig, zerolog.Nop())
	require.NoError(t, err)
	assert.NotNil(t, a.client)
}

func TestSendPublishesWithAttributes(t *testing.T) {
	pub := &fakePublisher{out: &awssns.PublishOutput{MessageId: aws.String("mid-1")}}
	cfg := baseConfig.Clone()
	cfg["sender_id"] = "ACME"
	cfg["sms_type"] = "Transactional"

	a, err := New(cfg, zerolog.Nop(), WithClient(pub))
	require.NoError(t, err)

	res, err := a.Send(context.Background(), textMessage(t, "+15551230001"))
	require.NoError(t, err)
	assert.Equal(t, "mid-1", res.Deliveries[0].ProviderMessageID)

	require.Len(t, pub.inputs, 1)
	in := pub.inputs[0]
	assert.Equal(t, "+15551230001", aws.ToString(in.PhoneNumber))
	assert.Equal(t, "Your code is 1234", aws.ToString(in.Message))
	assert.Equal(t, "ACME", aws.ToString(in.MessageAttributes[attrSenderID].StringValue))
	assert.Equal(t, "String", aws.ToString(in.MessageAttributes[attrSMSType].DataType))
}

func TestSendOmitsUnsetAttributes(t *testing.T) {
	pub := &fakePublisher{out: &awssns.PublishOutput{MessageId: aws.String("mid-1")}}
	a, err := New(baseConfig, zerolog.Nop(), WithClient(pub))
	require.NoError(t, err)

	_, err = a.Send(context.Background(), textMessage(t, "+15551230001"))
	require.NoError(t, err)
	assert.Nil(t, pub.inputs[0].MessageAttributes)
}

func TestSendRejectsTemplateOnly(t *testing.T) {
	pub := &fakePublisher{}
	a, err := New(baseConfig, zerolog.Nop(), WithClient(pub))
	require.NoError(t, err)

	m := message.New()
	require.NoError(t, m.AddRecipients("+15551230001"))
	require.NoError(t, m.SetTemplate("OTP", nil))

	_, err = a.Send(context.Background(), m)
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Contains(t, err.Error(), "AWS SNS requires message text")
	assert.Empty(t, pub.inputs)
}

func TestSendMissingMessageID(t *testing.T) {
	a, err := New(baseConfig, zerolog.Nop(), WithClient(&fakePublisher{out: &awssns.PublishOutput{}}))
	require.NoError(t, err)

	_, err = a.Send(context.Background(), textMessage(t, "+15551230001"))
	assert.ErrorIs(t, err, errs.ErrProvider)
}

func TestSendErrorClassification(t *testing.T) {
	apiErr := &smithy.GenericAPIError{Code: "InvalidParameter", Message: "Invalid parameter: PhoneNumber", Fault: smithy.FaultClient}
	pub := &fakePublisher{err: apiErr}
	a, err := New(baseConfig, zerolog.Nop(), WithClient(pub))
	require.NoError(t, err)

	res, err := a.Send(context.Background(), textMessage(t, "+15551230001", "+15551230002"))
	var perr *errs.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "InvalidParameter", perr.Code)
	assert.Equal(t, "Invalid parameter: PhoneNumber", perr.Message)
	assert.Len(t, pub.inputs, 1, "fail fast on first recipient")
	assert.Empty(t, res.Deliveries)

	pub.err = &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}
	_, err = a.Send(context.Background(), textMessage(t, "+15551230001"))
	assert.True(t, errs.Temporary(err))

	pub.err = errors.New("dial tcp: i/o timeout")
	_, err = a.Send(context.Background(), textMessage(t, "+15551230001"))
	assert.ErrorIs(t, err, errs.ErrNetwork)
}
