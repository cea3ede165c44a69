package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"genesis/internal/config"
)

// 单集就绪通知发布到该频道，由推送网关订阅
const episodeReadyChannel = "genesis:episodes:ready"

const publishTimeout = 5 * time.Second

// Notifier 尽力而为的就绪通知，失败只记日志，绝不影响管线结果
type Notifier struct {
	client *redis.Client
	log    *logrus.Entry
}

func NewNotifier(cfg *config.Settings) *Notifier {
	log := logrus.WithField("component", "notifier")

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warnf("invalid redis url, notifications disabled: %v", err)
		return &Notifier{log: log}
	}
	return &Notifier{client: redis.NewClient(opts), log: log}
}

type episodeReadyMessage struct {
	HeroID    string `json:"hero_id"`
	EpisodeID string `json:"episode_id"`
	Title     string `json:"title"`
}

// EpisodeReady 发布单集就绪消息，返回是否送达
func (n *Notifier) EpisodeReady(ctx context.Context, heroID, episodeID, title string) bool {
	if n.client == nil {
		return false
	}

	payload, err := json.Marshal(episodeReadyMessage{HeroID: heroID, EpisodeID: episodeID, Title: title})
	if err != nil {
		n.log.Warnf("marshal episode ready message: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if err := n.client.Publish(ctx, episodeReadyChannel, payload).Err(); err != nil {
		n.log.Warnf("publish episode ready for hero %s: %v", heroID, err)
		return false
	}
	return true
}

// Close 释放redis连接
func (n *Notifier) Close() error {
	if n.client == nil {
		return nil
	}
	return n.client.Close()
}
