package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 是一个全局变量，用于存储所有应用程序的配置
var Cfg *Config

// Config 结构体定义了应用程序的所有配置项
// 它与 config.yaml 文件的结构完全对应
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Game     GameConfig     `mapstructure:"game"`
	Reveal   RevealConfig   `mapstructure:"reveal"`
}

// ServerConfig 定义了服务器相关的配置
type ServerConfig struct {
	Mode    string     `mapstructure:"mode"`
	Address string     `mapstructure:"address"`
	Cors    CorsConfig `mapstructure:"cors"`
}

// CorsConfig 定义了CORS相关的配置
type CorsConfig struct {
	AllowedOrigins []string `mapstructure:"allowedOrigins"`
}

// DatabaseConfig 定义了数据库和缓存相关的配置
type DatabaseConfig struct {
	SqlitePath string      `mapstructure:"sqlitePath"`
	Redis      RedisConfig `mapstructure:"redis"`
}

// RedisConfig 定义了Redis的配置
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// GameConfig 定义了对战会话与回合调度相关的配置
type GameConfig struct {
	// TotalRounds 是一场会话包含的回合总数
	TotalRounds int `mapstructure:"totalRounds"`
	// StylingSeconds 是每回合设计阶段的时长
	StylingSeconds int `mapstructure:"stylingSeconds"`
	// VotingSeconds 是每回合投票阶段的时长
	VotingSeconds int `mapstructure:"votingSeconds"`
	// ResultsPauseSeconds 是回合结算后进入下一回合前的停顿
	ResultsPauseSeconds int `mapstructure:"resultsPauseSeconds"`
	// HeartbeatSeconds 是客户端心跳的期望间隔
	HeartbeatSeconds int `mapstructure:"heartbeatSeconds"`
	// DisconnectAfterSeconds 是心跳静默多久后将参与者标记为离线。
	// 0 表示从不主动降级，只有显式的leave操作会移除参与者。
	DisconnectAfterSeconds int `mapstructure:"disconnectAfterSeconds"`
	// WinnerScoreIncrement 是回合获胜者获得的固定加分
	WinnerScoreIncrement int `mapstructure:"winnerScoreIncrement"`
	// SessionTimeoutMinutes 是等待中的会话多久未开局后被判定超时
	SessionTimeoutMinutes int `mapstructure:"sessionTimeoutMinutes"`
}

// RevealConfig 定义了汇总揭晓服务的缓存与限流配置
type RevealConfig struct {
	// CacheTTLSeconds 是揭晓结果缓存的生存时间
	CacheTTLSeconds int `mapstructure:"cacheTTLSeconds"`
	// CacheCapacity 是缓存的最大条目数，超出后按最旧插入淘汰
	CacheCapacity int `mapstructure:"cacheCapacity"`
	// InflightWaitSeconds 是等待他人计算结果的轮询上限
	InflightWaitSeconds int `mapstructure:"inflightWaitSeconds"`
	// InflightPollMillis 是轮询检查缓存的间隔
	InflightPollMillis int `mapstructure:"inflightPollMillis"`
	// RateLimitPerMinute 是单个调用者每分钟的请求上限
	RateLimitPerMinute int `mapstructure:"rateLimitPerMinute"`
	// BatchLimit 是单次批量揭晓处理的会话数上限
	BatchLimit int `mapstructure:"batchLimit"`
}

// LoadConfig 函数负责查找、加载和解析配置文件
// 它会在指定的路径中查找名为 config.yaml 的文件
func LoadConfig() (*Config, error) {
	// 0. 先加载.env文件（如存在），让环境变量覆盖生效
	_ = godotenv.Load()

	v := viper.New()

	// 1. 设置配置文件名和类型
	v.SetConfigName("config") // 文件名 (不带扩展名)
	v.SetConfigType("yaml")   // 文件类型

	// 2. 添加配置文件搜索路径
	v.AddConfigPath("./config") // `config/config.yaml`
	v.AddConfigPath(".")        // `./config.yaml` (如果在根目录)

	// 3. 设置环境变量支持
	// 允许通过环境变量覆盖配置，例如 SERVER_ADDRESS=:8888
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. 写入所有配置项的默认值，配置文件缺失时仍可启动
	setDefaults(v)

	// 5. 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fmt.Println("未找到config.yaml，使用默认配置启动。")
	}

	// 6. 将配置反序列化到结构体中
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// 7. 将加载的配置赋值给全局变量
	Cfg = &cfg

	return Cfg, nil
}

// setDefaults 注册所有配置项的默认值。
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.cors.allowedOrigins", []string{"http://localhost:3000"})

	v.SetDefault("database.sqlitePath", "styleoff.db")
	v.SetDefault("database.redis.address", "localhost:6379")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)

	v.SetDefault("game.totalRounds", 3)
	v.SetDefault("game.stylingSeconds", 60)
	v.SetDefault("game.votingSeconds", 30)
	v.SetDefault("game.resultsPauseSeconds", 3)
	v.SetDefault("game.heartbeatSeconds", 30)
	v.SetDefault("game.disconnectAfterSeconds", 0)
	v.SetDefault("game.winnerScoreIncrement", 10)
	v.SetDefault("game.sessionTimeoutMinutes", 30)

	v.SetDefault("reveal.cacheTTLSeconds", 300)
	v.SetDefault("reveal.cacheCapacity", 1000)
	v.SetDefault("reveal.inflightWaitSeconds", 10)
	v.SetDefault("reveal.inflightPollMillis", 100)
	v.SetDefault("reveal.rateLimitPerMinute", 30)
	v.SetDefault("reveal.batchLimit", 50)
}

// Default 返回一份全默认值的配置，主要供测试使用。
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("默认配置解析失败: " + err.Error())
	}
	return &cfg
}
