package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadEnvFile 将 .env 文件中的变量加载到进程环境，供配置中的 ${VAR} 展开使用
// 已存在的环境变量不会被覆盖；文件不存在时直接返回
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("加载环境变量文件失败: %w", err)
	}
	log.Printf("ℹ️ [配置] 已加载环境变量文件: %s", path)
	return nil
}

// Load 加载配置文件并应用默认值
// 文件不存在时返回默认配置；内容中的 ${VAR} 在解析前展开为环境变量
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Printf("ℹ️ [配置] 配置文件不存在，使用默认配置: %s", path)
			return Default(), nil
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return Parse(data)
}

// Parse 解析 YAML 配置内容
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}
