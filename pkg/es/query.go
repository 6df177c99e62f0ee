package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
)

// Hit 是搜索响应中的单条命中，Source 保持原始 JSON 由调用方解码。
type Hit struct {
	ID     string          `json:"_id"`
	Score  float64         `json:"_score"`
	Source json.RawMessage `json:"_source"`
}

type searchResponse struct {
	Hits struct {
		Hits []Hit `json:"hits"`
	} `json:"hits"`
}

// KNNQuery 构建 kNN 检索请求体，filter 可为 nil。
func KNNQuery(field string, vector []float32, k int, filter map[string]interface{}) map[string]interface{} {
	knn := map[string]interface{}{
		"field":          field,
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if filter != nil {
		knn["filter"] = filter
	}
	return map[string]interface{}{
		"knn":     knn,
		"size":    k,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
}

// AnyTermQuery 构建析取式全文查询：每个词一个 match 子句，多词短语额外加 match_phrase 提权。
func AnyTermQuery(fields []string, terms []string, filters []map[string]interface{}, size int) map[string]interface{} {
	should := make([]map[string]interface{}, 0, len(terms)*2)
	for _, t := range terms {
		should = append(should, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  t,
				"fields": fields,
			},
		})
		if strings.Contains(t, " ") {
			should = append(should, map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  t,
					"fields": fields,
					"type":   "phrase",
					"boost":  3.0,
				},
			})
		}
	}
	boolQuery := map[string]interface{}{
		"should":               should,
		"minimum_should_match": 1,
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	return map[string]interface{}{
		"query":   map[string]interface{}{"bool": boolQuery},
		"size":    size,
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
	}
}

// TermFilter 构建精确过滤子句。
func TermFilter(field string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

// Search 执行搜索并返回命中列表。
func Search(ctx context.Context, client *elasticsearch.Client, index string, body map[string]interface{}) ([]Hit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := client.Search(
		client.Search.WithContext(ctx),
		client.Search.WithIndex(index),
		client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch returned an error: %s: %s", res.Status(), string(bodyBytes))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}
	return parsed.Hits.Hits, nil
}

// CosineFromScore 把 ES cosine 相似度的 _score ((1+cos)/2) 还原为 cos，并截断到 [0,1]。
func CosineFromScore(score float64) float64 {
	cos := 2*score - 1
	if cos < 0 {
		return 0
	}
	if cos > 1 {
		return 1
	}
	return cos
}
