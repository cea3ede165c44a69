package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Settings 应用配置，全部来自环境变量
type Settings struct {
	Environment string // development / staging / production

	// Ark 模型服务
	ArkAPIKey     string
	ArkBaseURL    string
	ArkChatModel  string
	ArkImageModel string
	ArkVideoModel string
	ArkMock       bool

	// Neo4j 图数据库
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
	Neo4jMaxPool  int

	// Redis 通知通道
	RedisURL string

	// GCS 媒体存储
	GCSBucket     string
	GCSPublicBase string

	// 生成参数
	DefaultStylePreset string
	BatchSize          int
}

// Load 读取.env并组装Settings
func Load() *Settings {
	// .env不存在时忽略，线上环境直接注入环境变量
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file loaded")
	}

	return &Settings{
		Environment:        getEnv("ENVIRONMENT", "development"),
		ArkAPIKey:          os.Getenv("ARK_API_KEY"),
		ArkBaseURL:         getEnv("ARK_BASE_URL", "https://ark.cn-beijing.volces.com"),
		ArkChatModel:       getEnv("ARK_CHAT_MODEL", "doubao-seed-1-6"),
		ArkImageModel:      getEnv("ARK_IMAGE_MODEL", "doubao-seedream-4.0"),
		ArkVideoModel:      getEnv("ARK_VIDEO_MODEL", "doubao-seedance-1-0-lite-i2v"),
		ArkMock:            boolEnv("ARK_MOCK"),
		Neo4jURI:           os.Getenv("NEO4J_URI"),
		Neo4jUser:          getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:      os.Getenv("NEO4J_PASSWORD"),
		Neo4jDatabase:      getEnv("NEO4J_DATABASE", "neo4j"),
		Neo4jMaxPool:       intEnv("NEO4J_MAX_POOL_SIZE", 50),
		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSPublicBase:      os.Getenv("GCS_PUBLIC_BASE_URL"),
		DefaultStylePreset: getEnv("STYLE_PRESET", "comic_book"),
		BatchSize:          intEnv("EPISODE_BATCH_SIZE", 50),
	}
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return def
}

func boolEnv(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true"
}
