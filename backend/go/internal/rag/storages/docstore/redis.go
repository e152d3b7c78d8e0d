package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"CaseForAI/backend/go/internal/rag/interfaces"
	"CaseForAI/backend/go/internal/rag/schema"

	"github.com/go-redis/redis/v8"
)

// RedisDocStore 将块文本保存在 Redis 中：
// chunks:<case> 是 chunk id -> JSON 的哈希，chunks:<case>:doc:<document> 是该文档的 chunk id 集合。
type RedisDocStore struct {
	rdb redis.UniversalClient
}

// NewRedisDocStore 创建一个基于 Redis 的 DocStore。
func NewRedisDocStore(rdb redis.UniversalClient) *RedisDocStore {
	return &RedisDocStore{rdb: rdb}
}

func caseKey(caseID string) string {
	return "chunks:" + caseID
}

func documentKey(caseID, documentID string) string {
	return fmt.Sprintf("chunks:%s:doc:%s", caseID, documentID)
}

// Add 在一个事务中写入所有块及其文档索引。
func (s *RedisDocStore) Add(ctx context.Context, caseID string, docs map[string]*schema.Document) error {
	if len(docs) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(docs))
	byDocument := make(map[string][]interface{})
	for id, doc := range docs {
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("序列化块 %s 失败: %w", id, err)
		}
		values[id] = data
		if docID := doc.MetaString(schema.MetadataKeyDocumentID); docID != "" {
			byDocument[docID] = append(byDocument[docID], id)
		}
	}

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, caseKey(caseID), values)
		for docID, ids := range byDocument {
			pipe.SAdd(ctx, documentKey(caseID, docID), ids...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("写入块到 Redis 失败: %w", err)
	}
	return nil
}

// Get 批量读取块，不存在的 id 不会出现在结果中。
func (s *RedisDocStore) Get(ctx context.Context, caseID string, ids []string) (map[string]*schema.Document, error) {
	result := make(map[string]*schema.Document, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	vals, err := s.rdb.HMGet(ctx, caseKey(caseID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("从 Redis 读取块失败: %w", err)
	}
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var doc schema.Document
		if err := json.Unmarshal([]byte(raw), &doc); err != nil {
			return nil, fmt.Errorf("解析块 %s 失败: %w", ids[i], err)
		}
		result[ids[i]] = &doc
	}
	return result, nil
}

// DeleteDocument 删除文档的所有块。
func (s *RedisDocStore) DeleteDocument(ctx context.Context, caseID, documentID string) error {
	key := documentKey(caseID, documentID)
	ids, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("读取文档块索引失败: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(ids) > 0 {
			pipe.HDel(ctx, caseKey(caseID), ids...)
		}
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("删除文档块失败: %w", err)
	}
	return nil
}

var _ interfaces.DocStore = (*RedisDocStore)(nil)
