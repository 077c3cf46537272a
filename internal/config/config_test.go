package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	content := `
server:
  port: 8080

mysql:
  host: 127.0.0.1
  port: 3306
  user: root
  password: secret
  database: cricketledger
  max_open_conns: 50
  max_idle_conns: 10

redis:
  host: 127.0.0.1
  port: 6379
  db: 0

kafka:
  brokers:
    - 127.0.0.1:9092
  consumer_group: deposit-worker
  topic:
    deposit_credit: deposit.credit

deposit:
  confirmation_threshold: 3
  webhook_secret: test-secret
  claim_ttl_seconds: 900

business:
  currency: USDT
  default_commission_pct: "10"
  max_retry_count: 5
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := LoadConfig(path)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "cricketledger", cfg.MySQL.Database)
	assert.Equal(t, 50, cfg.MySQL.MaxOpenConns)
	assert.Equal(t, []string{"127.0.0.1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "deposit-worker", cfg.Kafka.ConsumerGroup)
	assert.Equal(t, "deposit.credit", cfg.Kafka.Topic.DepositCredit)
	assert.Equal(t, 3, cfg.Deposit.ConfirmationThreshold)
	assert.Equal(t, "test-secret", cfg.Deposit.WebhookSecret)
	assert.Equal(t, 900, cfg.Deposit.ClaimTTLSeconds)
	assert.Equal(t, "USDT", cfg.Business.Currency)
	assert.Equal(t, "10", cfg.Business.DefaultCommissionPct)

	// 全局引用同步更新（历史调用方仍依赖它）
	assert.Same(t, cfg, GlobalConfig)
}
