// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llms

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/kadirpekel/repochat/pkg/config"
)

const (
	envAWSRegion  = "AWS_REGION"
	envAWSRoleARN = "AWS_ROLE_ARN"

	defaultBedrockRegion = "us-east-1"
)

// BedrockProvider generates through Amazon Bedrock's Converse API.
// Credentials come from the standard AWS chain; when AWS_ROLE_ARN is set
// the provider assumes that role through STS first.
type BedrockProvider struct {
	client *bedrockruntime.Client
	model  string

	maxTokens   int
	temperature *float64
	topP        *float64
}

func NewBedrockProvider(ctx context.Context, binding config.Binding) (*BedrockProvider, error) {
	region := os.Getenv(envAWSRegion)
	if region == "" {
		region = defaultBedrockRegion
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &AuthError{
			Provider: config.ProviderBedrock,
			Hint:     "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY",
			Err:      fmt.Errorf("loading AWS configuration: %w", err),
		}
	}

	if roleARN := os.Getenv(envAWSRoleARN); roleARN != "" {
		stsClient := sts.NewFromConfig(awsCfg)
		awsCfg.Credentials = aws.NewCredentialsCache(stscreds.NewAssumeRoleProvider(stsClient, roleARN))
	}

	return &BedrockProvider{
		client:      bedrockruntime.NewFromConfig(awsCfg),
		model:       binding.Model,
		maxTokens:   binding.Params.MaxTokens,
		temperature: binding.Params.Temperature,
		topP:        binding.Params.TopP,
	}, nil
}

// buildConverseParts maps the request to Converse's message model. The
// API takes system text separately and requires role alternation to start
// with a user message, so a leading assistant turn gets a placeholder.
func (p *BedrockProvider) buildConverseParts(req *Request) ([]types.Message, []types.SystemContentBlock, *types.InferenceConfiguration) {
	var system []types.SystemContentBlock
	if req.System != "" {
		system = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}

	messages := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := types.ConversationRoleUser
		if m.Role == RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: m.Content}},
		})
	}
	if len(messages) > 0 && messages[0].Role == types.ConversationRoleAssistant {
		messages = append([]types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "(continued)"}},
		}}, messages...)
	}

	inference := &types.InferenceConfiguration{}
	configured := false
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}
	if maxTokens > 0 {
		inference.MaxTokens = aws.Int32(int32(maxTokens))
		configured = true
	}
	if t := firstFloat(req.Temperature, p.temperature); t != nil {
		inference.Temperature = aws.Float32(float32(*t))
		configured = true
	}
	if t := firstFloat(req.TopP, p.topP); t != nil {
		inference.TopP = aws.Float32(float32(*t))
		configured = true
	}
	if !configured {
		inference = nil
	}

	return messages, system, inference
}

func firstFloat(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func (p *BedrockProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	messages, system, inference := p.buildConverseParts(req)

	out, err := p.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.model),
		Messages:        messages,
		System:          system,
		InferenceConfig: inference,
	})
	if err != nil {
		return nil, p.classifyError(err)
	}

	var sb strings.Builder
	if msg, ok := out.Output.(*types.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if text, ok := block.(*types.ContentBlockMemberText); ok {
				sb.WriteString(text.Value)
			}
		}
	}

	resp := &Response{Text: sb.String()}
	if out.Usage != nil && out.Usage.TotalTokens != nil {
		resp.Tokens = int(*out.Usage.TotalTokens)
	}
	return resp, nil
}

func (p *BedrockProvider) GenerateStreaming(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	out := make(chan StreamChunk, 100)
	go func() {
		defer close(out)
		if err := p.streamInto(ctx, req, out); err != nil {
			out <- StreamChunk{Type: ChunkTypeError, Err: err}
		}
	}()
	return out, nil
}

func (p *BedrockProvider) streamInto(ctx context.Context, req *Request, out chan<- StreamChunk) error {
	messages, system, inference := p.buildConverseParts(req)

	resp, err := p.client.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(p.model),
		Messages:        messages,
		System:          system,
		InferenceConfig: inference,
	})
	if err != nil {
		return p.classifyError(err)
	}

	stream := resp.GetStream()
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					return p.classifyError(err)
				}
				out <- StreamChunk{Type: ChunkTypeDone}
				return nil
			}
			switch v := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
					select {
					case out <- StreamChunk{Type: ChunkTypeText, Text: delta.Value}:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				out <- StreamChunk{Type: ChunkTypeDone}
				return nil
			}
		}
	}
}

// classifyError surfaces Bedrock's typed failures with actionable text.
func (p *BedrockProvider) classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "UnrecognizedClientException", "AccessDeniedException", "ExpiredTokenException":
			return &AuthError{
				Provider: config.ProviderBedrock,
				Hint:     "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY",
				Err:      fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage()),
			}
		case "ResourceNotFoundException":
			return fmt.Errorf("bedrock model %q not found or not enabled in this region: %s", p.model, apiErr.ErrorMessage())
		}
	}
	return fmt.Errorf("bedrock request failed: %w", err)
}

func (p *BedrockProvider) GetModelName() string { return p.model }

func (p *BedrockProvider) GetMaxTokens() int { return p.maxTokens }

func (p *BedrockProvider) Close() error { return nil }
