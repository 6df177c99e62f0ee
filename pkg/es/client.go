// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"evidence-rag-go/internal/config"
	"evidence-rag-go/pkg/log"
)

// ESClient 是进程共享的 Elasticsearch 客户端。
var ESClient *elasticsearch.Client

// NewClient 根据配置创建客户端，Addresses 支持逗号分隔多个节点。
func NewClient(esCfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
}

// InitES 初始化全局客户端，并确保证据索引与法律知识索引存在。
func InitES(esCfg config.ElasticsearchConfig) error {
	client, err := NewClient(esCfg)
	if err != nil {
		return err
	}
	ESClient = client
	ctx := context.Background()
	if err := createIndexIfNotExists(ctx, client, esCfg.EvidenceIndex, EvidenceMapping(esCfg.Dims)); err != nil {
		return err
	}
	return createIndexIfNotExists(ctx, client, esCfg.LegalIndex, LegalMapping(esCfg.Dims))
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(ctx context.Context, client *elasticsearch.Client, indexName, mapping string) error {
	res, err := client.Indices.Exists([]string{indexName}, client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithContext(ctx),
		client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", indexName)
	return nil
}

// EvidenceMapping 返回用户证据分块索引的 mapping，向量使用 cosine 相似度。
func EvidenceMapping(dims int) string {
	return fmt.Sprintf(`{
	"mappings": {
		"properties": {
			"unit_id": { "type": "keyword" },
			"file_md5": { "type": "keyword" },
			"file_name": { "type": "keyword" },
			"chunk_id": { "type": "integer" },
			"text_content": { "type": "text", "analyzer": "english" },
			"vector": { "type": "dense_vector", "dims": %d, "index": true, "similarity": "cosine" },
			"user_id": { "type": "long" },
			"category": { "type": "keyword" },
			"legal_significance": { "type": "text", "analyzer": "english" },
			"created_at": { "type": "date" }
		}
	}
}`, dims)
}

// LegalMapping 返回法律知识索引的 mapping。
func LegalMapping(dims int) string {
	return fmt.Sprintf(`{
	"mappings": {
		"properties": {
			"doc_id": { "type": "keyword" },
			"title": { "type": "text", "analyzer": "english" },
			"text_content": { "type": "text", "analyzer": "english" },
			"vector": { "type": "dense_vector", "dims": %d, "index": true, "similarity": "cosine" },
			"jurisdiction": { "type": "keyword" },
			"citations": {
				"properties": {
					"short": { "type": "keyword" },
					"full": { "type": "text" },
					"jurisdiction": { "type": "keyword" },
					"confidence": { "type": "float" }
				}
			},
			"verified_at": { "type": "date" },
			"created_at": { "type": "date" }
		}
	}
}`, dims)
}
