package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/siherrmann/rolecard/model"
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("API key required")

const defaultExtractionPrompt = `你是一位专门分析小说角色的AI助手。请从以下小说段落中提取出现的所有角色信息。

要求：
1. 只提取真正的角色名称，不要提取普通词汇、代词或描述性词语
2. 对每个角色进行深度分析，包括外貌特征、性格特点、说话习惯、人际关系等
3. 如果同一个角色有多个称呼方式，请合并为一个条目
4. 输出格式必须是标准的JSON数组

输出格式示例：
[
  {
    "名字": "角色名",
    "特徵": "外貌特征",
    "性格": "性格特点",
    "說話習慣": "说话习惯",
    "動機": "目标或动机",
    "備註": "其他备注"
  }
]

请直接输出JSON数组，不要包含任何其他内容或markdown格式。

小说段落：
`

// LLMExtractor extracts raw entity records from chunks through the
// Anthropic messages API. Retries use exponential backoff; every failure
// stays isolated to its chunk.
type LLMExtractor struct {
	client         anthropic.Client
	model          anthropic.Model
	maxTokens      int
	prompt         string
	retryLimit     int
	initialBackoff time.Duration
	validation     model.ValidationConfig
	log            *slog.Logger
}

// NewLLMExtractor creates an extractor. Env var ANTHROPIC_API_KEY takes
// precedence over the explicit apiKey.
func NewLLMExtractor(apiKey string, config model.ExtractionConfig, validation model.ValidationConfig, logger *slog.Logger) (*LLMExtractor, error) {
	envKey := os.Getenv("ANTHROPIC_API_KEY")
	if envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY or provide a key via config", ErrAPIKeyRequired)
	}

	prompt := config.Prompt
	if prompt == "" {
		prompt = defaultExtractionPrompt
	}

	return &LLMExtractor{
		client:         anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:          anthropic.Model(config.Model),
		maxTokens:      config.MaxTokens,
		prompt:         prompt,
		retryLimit:     config.RetryLimit,
		initialBackoff: time.Duration(config.RetryDelaySeconds) * time.Second,
		validation:     validation,
		log:            logger,
	}, nil
}

// Func adapts the extractor to the pipeline's ExtractFunc.
func (e *LLMExtractor) Func() ExtractFunc {
	return e.Extract
}

// Extract runs one chunk through the model and parses the response into
// validated raw records.
func (e *LLMExtractor) Extract(ctx context.Context, chunk Chunk) ([]*model.RawEntry, error) {
	raw, err := e.callWithRetry(ctx, e.prompt+chunk.Content)
	if err != nil {
		return nil, err
	}

	records, err := e.ParseResponse(raw, chunk.Name+".json")
	if err != nil {
		return nil, err
	}

	e.log.Debug("Extracted chunk",
		slog.String("chunk", chunk.Name),
		slog.Int("records", len(records)))

	return records, nil
}

// ParseResponse parses a model response into validated records. Markdown
// code fences around the JSON array are tolerated; records failing name
// validation are dropped.
func (e *LLMExtractor) ParseResponse(raw string, sourceFile string) ([]*model.RawEntry, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var entries []*model.RawEntry
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}

	valid := make([]*model.RawEntry, 0, len(entries))
	for _, entry := range entries {
		if entry == nil || !e.validation.ValidName(entry.Name) {
			continue
		}
		entry.Name = strings.TrimSpace(entry.Name)
		entry.SourceFile = sourceFile
		valid = append(valid, entry)
	}
	return valid, nil
}

func (e *LLMExtractor) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     e.model,
		MaxTokens: int64(e.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= e.retryLimit; attempt++ {
		if attempt > 0 {
			backoff := e.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := e.client.Messages.New(ctx, params)

		if err == nil {
			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d retries: %w", e.retryLimit+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		// Rate limits and server-side failures are worth retrying.
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}

	return false
}
