// Package config loads daemon configuration. Precedence, lowest to highest:
// built-in defaults, optional YAML file, environment variables. A .env file
// in the working directory is folded into the environment first.
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the daemon needs to run.
type Config struct {
	Port    string `yaml:"port"`     // HTTP listen port
	DataDir string `yaml:"data_dir"` // directory for the SQLite database

	ChatURL   string `yaml:"chat_url"`   // OpenAI-compatible chat completions endpoint
	ChatKey   string `yaml:"chat_key"`   // API key for the chat endpoint
	ChatModel string `yaml:"chat_model"` // generation model name

	EmbedURL   string `yaml:"embed_url"`   // Ollama base URL for embeddings
	EmbedModel string `yaml:"embed_model"` // embedding model name
}

// Load builds the configuration. The YAML file path comes from SKEIN_CONFIG;
// a missing file is fine, a malformed one is an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, using environment variables")
	} else {
		log.Println("[config] Loaded .env file")
	}

	cfg := Config{
		Port:       "8240",
		DataDir:    "./data",
		ChatURL:    "https://api.groq.com/openai/v1/chat/completions",
		ChatModel:  "moonshotai/kimi-k2-instruct-0905",
		EmbedURL:   "http://localhost:11434",
		EmbedModel: "nomic-embed-text",
	}

	if path := os.Getenv("SKEIN_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Printf("[config] Loaded %s", path)
	}

	cfg.Port = envOr("SKEIN_PORT", cfg.Port)
	cfg.DataDir = envOr("SKEIN_DATA_DIR", cfg.DataDir)
	cfg.ChatURL = envOr("SKEIN_CHAT_URL", cfg.ChatURL)
	cfg.ChatKey = envOr("SKEIN_CHAT_KEY", cfg.ChatKey)
	cfg.ChatModel = envOr("SKEIN_CHAT_MODEL", cfg.ChatModel)
	cfg.EmbedURL = envOr("OLLAMA_URL", cfg.EmbedURL)
	cfg.EmbedModel = envOr("OLLAMA_EMBED_MODEL", cfg.EmbedModel)

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
