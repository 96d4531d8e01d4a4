package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "STORYBOX"

const (
	defaultSendBuffer = 256

	// minSendBuffer fits the largest burst one client can be sent at once:
	// a reconnect during review replays every story of a full room.
	minSendBuffer = maxPlayers + 8
)

type Config struct {
	bind           string
	codeLength     int
	maxMessageSize int
	port           int
	prefix         string
	profile        bool
	sendBuffer     int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	logger *zap.SugaredLogger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.codeLength < 4 || c.codeLength > 12 {
		return fmt.Errorf("invalid code length (must be between 4-12 inclusive): %d", c.codeLength)
	}
	if c.sendBuffer < minSendBuffer {
		return fmt.Errorf("invalid send buffer (must be at least %d): %d", minSendBuffer, c.sendBuffer)
	}
	if c.maxMessageSize < 256 {
		return fmt.Errorf("invalid max message size (must be at least 256 bytes): %d", c.maxMessageSize)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newLogger(verbose bool) (*zap.SugaredLogger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.DisableCaller = true
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(logDate)
	zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger.Sugar(), nil
}

// loadEnvFile copies variables from a dotenv file into the environment
// without overriding ones already set. A missing file is not an error.
func loadEnvFile(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func newCmd(cfg *Config) *cobra.Command {
	envFile := os.Getenv(envPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	cobra.CheckErr(loadEnvFile(envFile))

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "storybox",
		Short:         "A party game where stories are written one hidden fragment at a time.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.verbose)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			cfg.logger = logger

			return ServePage(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()

	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	flags.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: STORYBOX_BIND)")
	flags.IntVar(&cfg.codeLength, "code-length", 5, "length of generated room codes (env: STORYBOX_CODE_LENGTH)")
	flags.IntVar(&cfg.maxMessageSize, "max-message-size", 4096, "largest accepted websocket message, in bytes (env: STORYBOX_MAX_MESSAGE_SIZE)")
	flags.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: STORYBOX_PORT)")
	flags.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: STORYBOX_PREFIX)")
	flags.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: STORYBOX_PROFILE)")
	flags.IntVar(&cfg.sendBuffer, "send-buffer", defaultSendBuffer, "outbound messages queued per connection before it is dropped (env: STORYBOX_SEND_BUFFER)")
	flags.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: STORYBOX_TLS_CERT)")
	flags.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: STORYBOX_TLS_KEY)")
	flags.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: STORYBOX_VERBOSE)")
	flags.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: STORYBOX_VERSION)")

	flags.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = flags.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("storybox v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
