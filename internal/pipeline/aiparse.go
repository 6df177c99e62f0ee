package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/kaptinlin/jsonschema"
)

// AI 服务的响应一律视为不可信输入：要么解析出类型化结果，要么返回错误触发降级。

var errEmptyAIResponse = errors.New("empty ai response")

var codeFencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")

const expansionSchemaJSON = `{
	"type": "object",
	"properties": {
		"concepts": {"type": "array", "items": {"type": "string"}},
		"synonyms": {"type": "array", "items": {"type": "string"}},
		"behavioral_indicators": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["concepts", "synonyms", "behavioral_indicators"]
}`

const intentSchemaJSON = `{
	"type": "object",
	"properties": {
		"category": {"type": "string", "minLength": 1},
		"concepts": {"type": "array", "items": {"type": "string"}},
		"citation_types": {"type": "array", "items": {"type": "string"}}
	},
	"required": ["category", "concepts", "citation_types"]
}`

var (
	expansionSchema = mustCompileSchema(expansionSchemaJSON)
	intentSchema    = mustCompileSchema(intentSchemaJSON)
)

func mustCompileSchema(raw string) *jsonschema.Schema {
	schema, err := jsonschema.NewCompiler().Compile([]byte(raw))
	if err != nil {
		panic(fmt.Sprintf("compile ai response schema: %v", err))
	}
	return schema
}

// aiExpansion 是概念扩展调用的期望响应。
type aiExpansion struct {
	Concepts             []string `json:"concepts"`
	Synonyms             []string `json:"synonyms"`
	BehavioralIndicators []string `json:"behavioral_indicators"`
}

// terms 返回扩展带来的全部新检索词。
func (a aiExpansion) terms() []string {
	out := make([]string, 0, len(a.Concepts)+len(a.Synonyms)+len(a.BehavioralIndicators))
	out = append(out, a.Concepts...)
	out = append(out, a.Synonyms...)
	out = append(out, a.BehavioralIndicators...)
	return out
}

// stripCodeFence 去掉模型常见的 ```json ... ``` 包裹。
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if m := codeFencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// decodeAIJSON 按 剥离代码块 → 解析 → 修复 → schema 校验 → 类型化 的顺序解析 AI 响应。
func decodeAIJSON(raw string, schema *jsonschema.Schema, out any) error {
	text := stripCodeFence(raw)
	if text == "" {
		return errEmptyAIResponse
	}

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(text)
		if repairErr != nil {
			return fmt.Errorf("ai response is not valid json: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &data); err != nil {
			return fmt.Errorf("repaired ai response is not valid json: %w", err)
		}
		text = repaired
	}

	result := schema.Validate(data)
	if !result.IsValid() {
		fields := make([]string, 0, len(result.Errors))
		for field, e := range result.Errors {
			fields = append(fields, fmt.Sprintf("%s: %s", field, e.Message))
		}
		sort.Strings(fields)
		return fmt.Errorf("ai response does not match expected shape: %s", strings.Join(fields, "; "))
	}

	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode ai response: %w", err)
	}
	return nil
}

func parseExpansion(raw string) (aiExpansion, error) {
	var exp aiExpansion
	if err := decodeAIJSON(raw, expansionSchema, &exp); err != nil {
		return aiExpansion{}, err
	}
	return exp, nil
}
