package knograph

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config selects the storage backend and LLM provider. The Neo4j backend is
// used when URI is set, otherwise SQLite at DBPath.
type Config struct {
	Neo4j struct {
		URI      string `yaml:"uri"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
	} `yaml:"neo4j"`

	// DBPath is the SQLite file, or ":memory:" for an ephemeral graph.
	DBPath string `yaml:"db_path"`

	OpenAI struct {
		APIKey string `yaml:"api_key"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	Ollama struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ollama"`

	// LogMode is "production" or "development".
	LogMode string `yaml:"log_mode"`

	// StoreTimeout bounds individual graph operations on the Neo4j backend.
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// DefaultConfig returns a config backed by a local SQLite file and
// production logging.
func DefaultConfig() Config {
	var cfg Config
	cfg.DBPath = "knograph.db"
	cfg.LogMode = "production"
	cfg.StoreTimeout = 30 * time.Second
	return cfg
}

// LoadConfig builds the config from defaults, an optional YAML file and
// environment variables, in increasing precedence.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Neo4j.URI, "NEO4J_URI")
	setFromEnv(&c.Neo4j.User, "NEO4J_USER")
	setFromEnv(&c.Neo4j.Password, "NEO4J_PASSWORD")
	setFromEnv(&c.Neo4j.Database, "NEO4J_DATABASE")
	setFromEnv(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setFromEnv(&c.OpenAI.Model, "OPENAI_MODEL")
	setFromEnv(&c.Ollama.BaseURL, "OLLAMA_BASE_URL")
	setFromEnv(&c.Ollama.Model, "OLLAMA_MODEL")
	setFromEnv(&c.DBPath, "KNOGRAPH_DB_PATH")
	setFromEnv(&c.LogMode, "KNOGRAPH_LOG_MODE")
}

func setFromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
