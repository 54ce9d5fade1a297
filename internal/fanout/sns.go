package fanout

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSPublisher publishes envelopes to one SNS topic.
type SNSPublisher struct {
	client   *sns.Client
	topicARN string
}

// NewSNSPublisher builds an SNS client from static credentials.
func NewSNSPublisher(ctx context.Context, accessKey, secretKey, region, topicARN string) (*SNSPublisher, error) {
	if accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("fanout: access key or secret key is empty")
	}
	if topicARN == "" {
		return nil, fmt.Errorf("fanout: topic ARN is empty")
	}

	cred := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	cfg, err := config.LoadDefaultConfig(ctx, config.WithCredentialsProvider(cred), config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	return &SNSPublisher{client: sns.NewFromConfig(cfg), topicARN: topicARN}, nil
}

// Publish implements Publisher.
func (p *SNSPublisher) Publish(ctx context.Context, payload []byte) error {
	output, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(payload)),
	})
	if err != nil {
		return err
	}
	if output == nil {
		return fmt.Errorf("fanout: publish output is nil")
	}
	return nil
}
