// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"companion-go/internal/config"
	"companion-go/internal/model"
	"companion-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ESClient *elasticsearch.Client

// InitES 初始化 Elasticsearch 客户端
func InitES(esCfg config.ElasticsearchConfig) error {
	cfg := elasticsearch.Config{
		Addresses: []string{esCfg.Addresses},
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return err
	}
	ESClient = client
	return createIndexIfNotExists(client, esCfg.IndexName)
}

const transcriptMapping = `{
	"mappings": {
		"properties": {
			"message_id": { "type": "long" },
			"user_id": { "type": "long" },
			"sender": { "type": "keyword" },
			"message": { "type": "text" },
			"timestamp": { "type": "date" }
		}
	}
}`

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func createIndexIfNotExists(client *elasticsearch.Client, indexName string) error {
	res, err := client.Indices.Exists([]string{indexName})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	res, err = client.Indices.Create(
		indexName,
		client.Indices.Create.WithBody(strings.NewReader(transcriptMapping)),
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

// TranscriptIndex 负责聊天记录的全文索引与检索，检索结果总是限定在单个用户内。
type TranscriptIndex struct {
	client *elasticsearch.Client
	index  string
}

func NewTranscriptIndex(client *elasticsearch.Client, index string) *TranscriptIndex {
	return &TranscriptIndex{client: client, index: index}
}

// Index 将单条聊天记录写入索引，文档 ID 即消息 ID。
func (t *TranscriptIndex) Index(ctx context.Context, doc model.TranscriptDocument) error {
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      t.index,
		DocumentID: strconv.FormatUint(uint64(doc.MessageID), 10),
		Body:       bytes.NewReader(docBytes),
		// 返回前文档已可检索，随后的 DeleteByUser 才能删到它
		Refresh: "wait_for",
	}
	res, err := req.Do(ctx, t.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		log.Errorf("索引聊天记录到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index transcript message")
	}
	return nil
}

// Search 在用户自己的聊天记录中做全文检索，按相关度排序。
func (t *TranscriptIndex) Search(ctx context.Context, userID uint, query string, size int) ([]model.SearchHit, error) {
	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []interface{}{
					map[string]interface{}{"match": map[string]interface{}{"message": query}},
				},
				"filter": []interface{}{
					map[string]interface{}{"term": map[string]interface{}{"user_id": userID}},
				},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("序列化 Elasticsearch 查询失败: %w", err)
	}

	res, err := t.client.Search(
		t.client.Search.WithContext(ctx),
		t.client.Search.WithIndex(t.index),
		t.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		bodyBytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("elasticsearch 返回错误, status: %s, body: %s", res.Status(), string(bodyBytes))
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Score  float64                  `json:"_score"`
				Source model.TranscriptDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("解析 Elasticsearch 响应失败: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.SearchHit{
			MessageID: h.Source.MessageID,
			Sender:    h.Source.Sender,
			Message:   h.Source.Message,
			Timestamp: model.LocalTime(h.Source.Timestamp),
			Score:     h.Score,
		})
	}
	return hits, nil
}

// DeleteByUser 删除某个用户的全部索引文档。
func (t *TranscriptIndex) DeleteByUser(ctx context.Context, userID uint) error {
	query := fmt.Sprintf(`{"query":{"term":{"user_id":%d}}}`, userID)
	res, err := t.client.DeleteByQuery(
		[]string{t.index},
		strings.NewReader(query),
		t.client.DeleteByQuery.WithContext(ctx),
		t.client.DeleteByQuery.WithConflicts("proceed"),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("按用户删除索引文档失败: %s", res.String())
	}
	return nil
}
