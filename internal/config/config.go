package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	Mode       string   `mapstructure:"mode"`
	LogLevel   string   `mapstructure:"log_level"`
	Initiate   bool     `mapstructure:"initiate"`
	ICEServers []string `mapstructure:"ice_servers"`

	Signal     SignalConfig     `mapstructure:"signal"`
	Video      VideoConfig      `mapstructure:"video"`
	Rendezvous RendezvousConfig `mapstructure:"rendezvous"`
}

type SignalConfig struct {
	ServerAddress  string        `mapstructure:"server_address"`
	Transport      string        `mapstructure:"transport"`
	LocalPeerID    string        `mapstructure:"local_peer_id"`
	RemotePeerID   string        `mapstructure:"remote_peer_id"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

type VideoConfig struct {
	LocalCapacity  int    `mapstructure:"local_capacity"`
	RemoteCapacity int    `mapstructure:"remote_capacity"`
	FrameRate      int    `mapstructure:"frame_rate"`
	CaptureWidth   uint32 `mapstructure:"capture_width"`
	CaptureHeight  uint32 `mapstructure:"capture_height"`
}

type RendezvousConfig struct {
	Port            int           `mapstructure:"port"`
	LongPollTimeout time.Duration `mapstructure:"long_poll_timeout"`
	MailboxCapacity int           `mapstructure:"mailbox_capacity"`
	RateLimit       int           `mapstructure:"rate_limit"`
	RateInterval    time.Duration `mapstructure:"rate_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("initiate", false)
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})

	v.SetDefault("signal.server_address", "http://localhost:3000/")
	v.SetDefault("signal.transport", "http")
	v.SetDefault("signal.local_peer_id", string(domain.NewPeerID()))
	v.SetDefault("signal.remote_peer_id", "other")
	v.SetDefault("signal.poll_interval", "500ms")
	v.SetDefault("signal.request_timeout", "30s")
	v.SetDefault("signal.max_backoff", "10s")

	v.SetDefault("video.local_capacity", 3)
	v.SetDefault("video.remote_capacity", 5)
	v.SetDefault("video.frame_rate", 30)
	v.SetDefault("video.capture_width", 640)
	v.SetDefault("video.capture_height", 480)

	v.SetDefault("rendezvous.port", 3000)
	v.SetDefault("rendezvous.long_poll_timeout", "20s")
	v.SetDefault("rendezvous.mailbox_capacity", 64)
	v.SetDefault("rendezvous.rate_limit", 200)
	v.SetDefault("rendezvous.rate_interval", "10s")
}

// Flags declares the command-line overrides understood by Load.
func Flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("mode", "", "gin mode: debug or release")
	fs.String("log_level", "", "zerolog level")
	fs.Bool("initiate", false, "place the call on startup")
	fs.String("signal.server_address", "", "rendezvous base URL")
	fs.String("signal.transport", "", "signaling transport: http or ws")
	fs.String("signal.local_peer_id", "", "own mailbox id")
	fs.String("signal.remote_peer_id", "", "remote mailbox id")
	fs.Int("rendezvous.port", 0, "rendezvous listen port")
	return fs
}

// Load reads config/config.<CONFIG_ENV>.yaml, then VIDEOCALL_* environment
// variables, then any flags in fs that were set explicitly.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	setDefaults(v)

	v.SetEnvPrefix("VIDEOCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if bindErr == nil && f.Changed {
				bindErr = v.BindPFlag(f.Name, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Str("transport", cfg.Signal.Transport).
		Str("local", cfg.Signal.LocalPeerID).
		Str("remote", cfg.Signal.RemotePeerID).
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Endpoint() domain.PeerEndpoint {
	return domain.PeerEndpoint{
		Local:  domain.PeerID(c.Signal.LocalPeerID),
		Remote: domain.PeerID(c.Signal.RemotePeerID),
	}
}

func (c *Config) Validate() error {
	if err := c.Endpoint().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.Signal.Transport {
	case "http", "ws":
	default:
		return fmt.Errorf("%w: signal.transport %q", ErrInvalidConfig, c.Signal.Transport)
	}
	if c.Video.LocalCapacity < 1 || c.Video.RemoteCapacity < 1 {
		return fmt.Errorf("%w: video capacities must be positive", ErrInvalidConfig)
	}
	if c.Video.FrameRate < 1 || c.Video.FrameRate > core.MaxFrameRate {
		return fmt.Errorf("%w: video.frame_rate must be in 1..%d", ErrInvalidConfig, core.MaxFrameRate)
	}
	if c.Video.CaptureWidth == 0 || c.Video.CaptureHeight == 0 {
		return fmt.Errorf("%w: capture size must be non-zero", ErrInvalidConfig)
	}
	if c.Rendezvous.MailboxCapacity < 1 {
		return fmt.Errorf("%w: rendezvous.mailbox_capacity must be positive", ErrInvalidConfig)
	}
	if c.Rendezvous.LongPollTimeout <= 0 {
		return fmt.Errorf("%w: rendezvous.long_poll_timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
