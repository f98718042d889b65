package app

import (
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
)

// Config holds the client and stub backend configuration, loadable from
// environment variables (KART_ prefix), a .env file, or YAML config files.
type Config struct {
	APIURL         string        `default:"http://localhost:3000/api" env:"API_URL" yaml:"api_url" usage:"Marketplace API root"`
	StatePath      string        `env:"STATE_PATH" yaml:"state_path" usage:"SQLite file holding the session and guest cart"`
	RequestTimeout time.Duration `default:"10s" env:"REQUEST_TIMEOUT" yaml:"request_timeout" usage:"Timeout of a single API request"`
	Stub           StubConfig    `env:"STUB" yaml:"stub"`
}

const defaultStubAddr = "127.0.0.1:3000"

// StubConfig configures the in-memory backend served by "kart stub".
type StubConfig struct {
	Addr          string         `default:"127.0.0.1:3000" env:"ADDR" yaml:"addr" usage:"Listen address"`
	Secret        string         `env:"SECRET" yaml:"secret" usage:"HMAC secret for session tokens, random when empty"`
	TokenTTL      time.Duration  `default:"24h" env:"TOKEN_TTL" yaml:"token_ttl" usage:"Session token lifetime"`
	Catalog       string         `env:"CATALOG" yaml:"catalog" usage:"YAML catalog file, built-in demo catalog when empty"`
	CORSOrigins   []string       `env:"CORS_ORIGINS" yaml:"cors_origins" usage:"Allowed browser origins, any when empty"`
	AuthRateLimit int            `default:"20" env:"AUTH_RATE_LIMIT" yaml:"auth_rate_limit" usage:"Login and register attempts per IP and minute"`
	DemoEmail     string         `default:"demo@example.com" env:"DEMO_EMAIL" yaml:"demo_email" usage:"Seeded demo account, skipped when empty"`
	DemoPassword  string         `default:"demo1234" env:"DEMO_PASSWORD" yaml:"demo_password" usage:"Password of the demo account"`
	Graceful      GracefulConfig `env:"GRACEFUL" yaml:"graceful"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"1s" env:"READINESS_DELAY" yaml:"readiness_delay" usage:"Delay after readiness=false before shutdown"`
	ShutdownTimeout time.Duration `default:"10s" env:"SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout" usage:"Maximum shutdown duration"`
}

// LoadConfig loads .env, then environment variables and YAML files:
// ./kart.yaml and <user config dir>/kart/config.yaml.
func LoadConfig() (*Config, error) {
	files := []string{"kart.yaml"}
	if dir, err := os.UserConfigDir(); err == nil {
		files = append(files, filepath.Join(dir, "kart", "config.yaml"))
	}
	return loadConfig(".env", files)
}

func loadConfig(dotenv string, files []string) (*Config, error) {
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix:        "KART",
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		Files:            files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills values that depend on the environment.
func (c *Config) applyDefaults() error {
	if c.StatePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "state path: resolve home directory")
		}
		c.StatePath = filepath.Join(home, ".local", "share", "kart", "state.db")
	}
	// Hosting platforms announce the port to bind as PORT.
	if port := os.Getenv("PORT"); port != "" && c.Stub.Addr == defaultStubAddr {
		c.Stub.Addr = "0.0.0.0:" + port
	}
	if c.RequestTimeout <= 0 {
		return errors.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}
