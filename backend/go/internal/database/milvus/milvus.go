package milvus

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"CaseForAI/backend/go/internal/config"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
	// 用于控制后台自动刷新协程的取消函数。
	cancelAutoFlush context.CancelFunc
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.StopAutoFlush(context.Background())
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// ChunkSchema 返回案件文本块集合的默认字段定义。
// id 为主键，case_id / document_id / owner_id 用于过滤和按文档删除。
func ChunkSchema(collection, vectorField string, dim int) config.SchemaConfig {
	return config.SchemaConfig{
		CollectionName: collection,
		Description:    "case document chunks",
		VectorField:    vectorField,
		Fields: []config.FieldConfig{
			{Name: "id", DataType: "VarChar", IsPrimaryKey: true, MaxLength: 64},
			{Name: vectorField, DataType: "FloatVector", Dim: dim},
			{Name: "case_id", DataType: "VarChar", MaxLength: 64},
			{Name: "document_id", DataType: "VarChar", MaxLength: 64},
			{Name: "owner_id", DataType: "VarChar", MaxLength: 64},
		},
		Index: config.IndexConfig{
			FieldName:  vectorField,
			IndexType:  "IVF_FLAT",
			MetricType: "L2",
			Params:     map[string]interface{}{"nlist": 128},
		},
	}
}

// FlushCollection 手动触发一次刷新操作，将内存中的数据写入磁盘。
func (c *MilvusClient) FlushCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	if err := c.Client.Flush(ctx, collName, false); err != nil {
		return fmt.Errorf("刷新集合 '%s' 失败: %w", collName, err)
	}
	log.Printf("✅ 集合 '%s' 刷新成功！", collName)
	return nil
}

// StartAutoFlush 启动后台自动刷新任务，ingestion worker 使用它让新写入的向量尽快可查。
func (c *MilvusClient) StartAutoFlush(interval time.Duration) {
	if c.cancelAutoFlush != nil {
		log.Println("⚠️ 自动刷新任务已在运行中，无需重复启动。")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelAutoFlush = cancel
	collName := c.Config.Schema.CollectionName

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("🚀 已启动后台自动刷新任务，每隔 %s 刷新一次集合 '%s'。", interval, collName)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := c.Client.Flush(flushCtx, collName, false); err != nil {
					log.Printf("❌ 自动刷新集合 '%s' 失败: %v", collName, err)
				}
				flushCancel()
			}
		}
	}()
}

// StopAutoFlush 停止后台自动刷新任务，并执行最后一次刷新。
func (c *MilvusClient) StopAutoFlush(ctx context.Context) {
	if c.cancelAutoFlush != nil {
		c.cancelAutoFlush()
		c.cancelAutoFlush = nil
		if err := c.FlushCollection(ctx); err != nil {
			log.Printf("❌ 停止自动刷新时，最终刷新失败: %v", err)
		}
	}
}

// EnsureCollection 确保 Milvus 集合存在，不存在时按配置创建字段和索引，然后加载集合。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schemaFields := make([]*entity.Field, 0, len(c.Config.Schema.Fields))
		for _, fieldCfg := range c.Config.Schema.Fields {
			field := entity.NewField().WithName(fieldCfg.Name)

			if fieldCfg.IsPrimaryKey {
				field = field.WithIsPrimaryKey(true)
			}
			if fieldCfg.IsAutoID {
				field = field.WithIsAutoID(true)
			}

			switch fieldCfg.DataType {
			case "Int64":
				field = field.WithDataType(entity.FieldTypeInt64)
			case "VarChar":
				field = field.WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(fieldCfg.MaxLength))
			case "FloatVector":
				field = field.WithDataType(entity.FieldTypeFloatVector).WithDim(int64(fieldCfg.Dim))
			case "BinaryVector":
				field = field.WithDataType(entity.FieldTypeBinaryVector).WithDim(int64(fieldCfg.Dim))
			case "Float":
				field = field.WithDataType(entity.FieldTypeFloat)
			case "Double":
				field = field.WithDataType(entity.FieldTypeDouble)
			case "Bool":
				field = field.WithDataType(entity.FieldTypeBool)
			default:
				return fmt.Errorf("不支持的数据类型: %s", fieldCfg.DataType)
			}

			schemaFields = append(schemaFields, field)
		}

		if len(c.Config.Schema.Fields) == 0 {
			return fmt.Errorf("集合 '%s' 未配置字段", collName)
		}
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription(c.Config.Schema.Description)

		for _, field := range schemaFields {
			schema = schema.WithField(field)
		}

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := c.buildIndexFromConfig()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, c.Config.Schema.Index.FieldName, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", c.Config.Schema.Index.FieldName, err)
		}
	}

	err = c.Client.LoadCollection(ctx, collName, false)
	if err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}

	return nil
}

// buildIndexFromConfig 是一个辅助函数，用于从配置构建索引实体。
func (c *MilvusClient) buildIndexFromConfig() (entity.Index, error) {
	indexCfg := c.Config.Schema.Index
	metricType := entity.MetricType(indexCfg.MetricType)

	switch indexCfg.IndexType {
	case "IVF_FLAT":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		return entity.NewIndexIvfFlat(metricType, nlist)
	case "HNSW":
		M, ok := indexCfg.Params["M"].(int)
		if !ok {
			M = 8
		}
		efConstruction, ok := indexCfg.Params["efConstruction"].(int)
		if !ok {
			efConstruction = 96
		}
		return entity.NewIndexHNSW(metricType, M, efConstruction)
	case "IVF_SQ8":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		return entity.NewIndexIvfSQ8(metricType, nlist)
	case "IVF_PQ":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		m, ok := indexCfg.Params["m"].(int)
		if !ok {
			m = 16
		}
		nbits, ok := indexCfg.Params["nbits"].(int)
		if !ok {
			nbits = 8
		}
		return entity.NewIndexIvfPQ(metricType, nlist, m, nbits)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexCfg.IndexType)
	}
}
