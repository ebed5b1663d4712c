package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// GetParameters accepts at most 10 names per call (AWS service limit).
const ssmBatchLimit = 10

// ssmAPI is the slice of the SSM client the provider needs; tests inject a
// fake here.
type ssmAPI interface {
	GetParameters(ctx context.Context, params *ssm.GetParametersInput, optFns ...func(*ssm.Options)) (*ssm.GetParametersOutput, error)
}

// SSMProvider resolves secrets from AWS Systems Manager Parameter Store,
// where non-local environments keep them as SecureString parameters.
// Parameters are expected in the same region the process runs in.
type SSMProvider struct {
	region string

	// client is built lazily on first use when nil.
	client ssmAPI
}

// NewSSMProvider returns a provider for the given AWS region.
func NewSSMProvider(region string) *SSMProvider {
	return &SSMProvider{region: region}
}

func newSSMProviderWithClient(region string, client ssmAPI) *SSMProvider {
	return &SSMProvider{region: region, client: client}
}

func (p *SSMProvider) ensureClient(ctx context.Context) error {
	if p.client != nil {
		return nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(p.region))
	if err != nil {
		return fmt.Errorf("loading AWS config for SSM (region=%s): %w", p.region, err)
	}
	p.client = ssm.NewFromConfig(cfg)
	return nil
}

// GetParametersBatch fetches and decrypts the named parameters, splitting the
// request into chunks of ssmBatchLimit. A parameter SSM reports as invalid
// fails the whole call; cancellation is honored between chunks.
func (p *SSMProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}
	if err := p.ensureClient(ctx); err != nil {
		return nil, err
	}

	result := make(map[string]string, len(keys))
	for len(keys) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("SSM parameter retrieval interrupted: %w", err)
		}

		chunk := keys
		if len(chunk) > ssmBatchLimit {
			chunk = chunk[:ssmBatchLimit]
		}
		keys = keys[len(chunk):]

		output, err := p.client.GetParameters(ctx, &ssm.GetParametersInput{
			Names:          chunk,
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("SSM GetParameters failed: %w", err)
		}
		if len(output.InvalidParameters) > 0 {
			return nil, fmt.Errorf("SSM parameters not found: %v", output.InvalidParameters)
		}
		for _, param := range output.Parameters {
			if param.Name != nil && param.Value != nil {
				result[*param.Name] = *param.Value
			}
		}
	}
	return result, nil
}
