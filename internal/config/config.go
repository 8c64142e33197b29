package config

import (
	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
)

// BotType names a worker playback role.
type BotType string

const (
	BotMusic      BotType = "music"
	BotMusicAlt   BotType = "music2"
	BotSoundboard BotType = "soundboard"
)

// KnownBotTypes lists every routable worker role.
var KnownBotTypes = []BotType{BotMusic, BotMusicAlt, BotSoundboard}

// IsKnownBotType reports whether t names a routable worker role.
func IsKnownBotType(t BotType) bool {
	for _, k := range KnownBotTypes {
		if t == k {
			return true
		}
	}
	return false
}

// Worker holds configuration for one worker process.
type Worker struct {
	DiscordToken    string  `env:"DISCORD_TOKEN" validate:"required"`
	BotType         BotType `env:"BOT_TYPE" envDefault:"music" validate:"oneof=music music2 soundboard"`
	WorkerSecret    string  `env:"WORKER_SECRET"`
	ListenAddr      string  `env:"WORKER_LISTEN_ADDR" envDefault:":8731"`
	AdvertiseURL    string  `env:"WORKER_ADVERTISE_URL"`
	OrchestratorURL string  `env:"ORCHESTRATOR_URL"`
	SnapshotPath    string  `env:"SNAPSHOT_PATH" envDefault:"snapshots.json"`
	LocalMediaDir   string  `env:"LOCAL_MEDIA_DIR" envDefault:"media"`
	MaxVolume       int     `env:"MAX_VOLUME" envDefault:"100" validate:"min=1,max=100"`
	DefaultVolume   int     `env:"DEFAULT_VOLUME" envDefault:"100" validate:"min=0,max=100"`
	LogLevel        string  `env:"LOG_LEVEL" envDefault:"info"`
}

// Orchestrator holds configuration for the orchestrator process.
type Orchestrator struct {
	ListenAddr   string `env:"ORCH_LISTEN_ADDR" envDefault:":8730"`
	WorkerSecret string `env:"WORKER_SECRET"`
	APISecret    string `env:"API_SECRET"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

func loadEnv() {
	if err := godotenv.Load(); err != nil {
		zlog.Debug().Msg("no .env file found, using system environment")
	}
}

// NewWorker loads and validates worker configuration from the environment.
func NewWorker() (*Worker, error) {
	loadEnv()

	cfg := &Worker{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse worker env")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "validate worker config")
	}
	if cfg.DefaultVolume > cfg.MaxVolume {
		cfg.DefaultVolume = cfg.MaxVolume
	}
	if cfg.AdvertiseURL == "" {
		cfg.AdvertiseURL = "http://127.0.0.1" + cfg.ListenAddr
	}
	return cfg, nil
}

// NewOrchestrator loads orchestrator configuration from the environment.
func NewOrchestrator() (*Orchestrator, error) {
	loadEnv()

	cfg := &Orchestrator{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse orchestrator env")
	}
	// The public surface proxies into workers with the internal secret
	// attached, so it must never be weaker than the internal side.
	if cfg.APISecret == "" {
		cfg.APISecret = cfg.WorkerSecret
	}
	return cfg, nil
}
