package realtime

import (
	"fmt"

	"github.com/lusia-studio/cli/config"
)

// NewPushChannel creates the push channel backend selected by config
func NewPushChannel(cfg config.RealtimeConfig, apiKey string) (PushChannel, error) {
	switch cfg.Backend {
	case "", "websocket":
		return NewWebsocketChannel(cfg.Websocket.URL, apiKey), nil
	case "redis":
		return NewRedisChannel(RedisOptions{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Database: cfg.Redis.Database,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
		})
	default:
		return nil, fmt.Errorf("unsupported realtime backend: %s", cfg.Backend)
	}
}
