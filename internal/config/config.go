// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、密钥）和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"foodnextdoor/internal/mailer"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	Server   ServerConfig      `yaml:"server"`
	Database DatabaseConfig    `yaml:"database"`
	Redis    RedisConfig       `yaml:"redis"`
	Auth     AuthConfig        `yaml:"auth"`
	SMTP     mailer.SMTPConfig `yaml:"smtp"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Driver  string `yaml:"driver"` // mongodb, postgres, sqlite
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
	URI     string `yaml:"uri"`  // mongodb 完整连接串（优先）
	Path    string `yaml:"path"` // sqlite 数据文件路径
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

// AuthConfig 认证令牌配置
type AuthConfig struct {
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
	ResetTokenTTL   time.Duration `yaml:"reset_token_ttl"`
	VerifyTokenTTL  time.Duration `yaml:"verify_token_ttl"`
}

// UnmarshalYAML 支持 "15m"/"168h" 形式的时长字符串
func (a *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		AccessTokenTTL  string `yaml:"access_token_ttl"`
		RefreshTokenTTL string `yaml:"refresh_token_ttl"`
		ResetTokenTTL   string `yaml:"reset_token_ttl"`
		VerifyTokenTTL  string `yaml:"verify_token_ttl"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parse := func(s string, dst *time.Duration) error {
		if s == "" {
			return nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*dst = d
		return nil
	}

	if err := parse(raw.AccessTokenTTL, &a.AccessTokenTTL); err != nil {
		return err
	}
	if err := parse(raw.RefreshTokenTTL, &a.RefreshTokenTTL); err != nil {
		return err
	}
	if err := parse(raw.ResetTokenTTL, &a.ResetTokenTTL); err != nil {
		return err
	}
	return parse(raw.VerifyTokenTTL, &a.VerifyTokenTTL)
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	APIPort        string
	DatabaseDriver string
	DatabaseURL    string
	MongoDatabase  string
	RedisURL       string
	JWTSecret      string
	Auth           AuthConfig
	SMTP           mailer.SMTPConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 构建最终配置
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	// 从环境变量获取敏感信息
	dbPassword := getEnv("DB_PASSWORD", "")
	yamlCfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	yamlCfg.SMTP.Password = getEnv("SMTP_PASSWORD", "")

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		databaseURL = buildDatabaseURL(yamlCfg.Database, dbPassword)
	}

	// 构建最终配置
	cfg := &Config{
		Env:            env,
		APIPort:        getEnv("API_PORT", yamlCfg.Server.Port),
		DatabaseDriver: detectDatabaseDriver(yamlCfg.Database.Driver, databaseURL),
		DatabaseURL:    databaseURL,
		MongoDatabase:  yamlCfg.Database.Name,
		RedisURL:       buildRedisURL(yamlCfg.Redis),
		JWTSecret:      getEnv("JWT_SECRET", ""),
		Auth:           yamlCfg.Auth,
		SMTP:           yamlCfg.SMTP,
	}

	// 验证并填充认证默认值
	cfg.Auth.validate()

	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	// 1. 初始化默认值
	cfg := &YAMLConfig{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "mongodb", Host: "localhost", Port: 27017, Name: "foodnextdoor", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Auth: AuthConfig{
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 168 * time.Hour,
			ResetTokenTTL:   30 * time.Minute,
			VerifyTokenTTL:  24 * time.Hour,
		},
		SMTP: mailer.SMTPConfig{Port: "587", SendTimeout: 10},
	}

	// 2. 加载 common.yaml（公共配置）
	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	// 3. 加载 {env}.yaml（环境特定配置，覆盖公共配置）
	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// validate 验证并填充认证默认值
func (a *AuthConfig) validate() {
	if a.AccessTokenTTL == 0 {
		a.AccessTokenTTL = 15 * time.Minute
	}
	if a.RefreshTokenTTL == 0 {
		a.RefreshTokenTTL = 168 * time.Hour
	}
	if a.ResetTokenTTL == 0 {
		a.ResetTokenTTL = 30 * time.Minute
	}
	if a.VerifyTokenTTL == 0 {
		a.VerifyTokenTTL = 24 * time.Hour
	}
}
