package config

import (
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config 全局配置结构
// 进程启动时加载一次，之后只读，所有组件通过构造参数持有
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	SettleResult string `mapstructure:"settle_result"`
	RefundResult string `mapstructure:"refund_result"`
}

// SettlementConfig 结算业务配置
// 分账比例不是写死的常量，启动时校验平台份额加各池子比例之和恰好为1
type SettlementConfig struct {
	PlatformMerchantID   int64              `mapstructure:"platform_merchant_id"`
	PlatformShare        float64            `mapstructure:"platform_share"` // 平台/商家份额
	Allocations          map[string]float64 `mapstructure:"allocations"`    // 各池子占交易额的比例
	MemberProductPrice   float64            `mapstructure:"member_product_price"`
	PointsDiscountRate   float64            `mapstructure:"points_discount_rate"` // 1积分抵多少元
	MaxPointsValue       float64            `mapstructure:"max_points_value"`     // 周补贴单积分价值上限
	TaxRate              float64            `mapstructure:"tax_rate"`
	ManualAuditThreshold float64            `mapstructure:"manual_audit_threshold"` // 超过则提现转人工审核
	CouponValidDays      int                `mapstructure:"coupon_valid_days"`
	MaxPurchasePerDay    int                `mapstructure:"max_purchase_per_day"` // 24小时内会员商品购买上限
	MaxTeamLayer         int                `mapstructure:"max_team_layer"`
	MaxRetryCount        int                `mapstructure:"max_retry_count"` // outbox 最大重试次数
}

// 比例求和允许的浮点误差
const allocationEpsilon = 1e-9

// PlatformShareDec 平台份额（Decimal）
func (c *SettlementConfig) PlatformShareDec() decimal.Decimal {
	return decimal.NewFromFloat(c.PlatformShare)
}

// AllocationDec 指定池子的分配比例（Decimal）
func (c *SettlementConfig) AllocationDec(accountType string) decimal.Decimal {
	return decimal.NewFromFloat(c.Allocations[accountType])
}

// Validate 校验分账比例：平台份额 + 各池子比例之和必须为1
func (c *SettlementConfig) Validate() error {
	if len(c.Allocations) == 0 {
		return fmt.Errorf("分账比例未配置")
	}
	sum := c.PlatformShare
	for accountType, percent := range c.Allocations {
		if percent < 0 {
			return fmt.Errorf("分账比例不能为负数: %s", accountType)
		}
		sum += percent
	}
	if sum < 1-allocationEpsilon || sum > 1+allocationEpsilon {
		return fmt.Errorf("分账比例之和必须为1，当前为 %v", sum)
	}
	if c.PointsDiscountRate <= 0 {
		return fmt.Errorf("积分抵扣比例必须大于0")
	}
	if c.TaxRate < 0 || c.TaxRate >= 1 {
		return fmt.Errorf("税率必须在 [0,1) 之间")
	}
	return nil
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	if err := config.Settlement.Validate(); err != nil {
		log.Fatalf("结算配置不合法: %v", err)
	}

	return config
}
