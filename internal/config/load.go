package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Default values applied before any source is read.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8000
	DefaultLogLevel      = "info"
	DefaultModel         = "PaddleOCR-VL-1.5"
	DefaultOutputRoot    = "output"
	DefaultMaxFileBytes  = 25 * 1024 * 1024
	DefaultMaxTotalBytes = 250 * 1024 * 1024
	DefaultConcurrency   = 2
	DefaultQueueSize     = 1024
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = []struct {
	key    string
	envVar string
}{
	{"server.host", "HOST"},
	{"server.port", "PORT"},
	{"server.log_level", "LOG_LEVEL"},
	{"ocr.api_url", "BAIDU_PADDLE_OCR_API_URL"},
	{"ocr.job_url", "BAIDU_PADDLE_OCR_JOB_URL"},
	{"ocr.token", "BAIDU_AI_STUDIO_API_KEY"},
	{"ocr.model", "OCR_MODEL"},
	{"ocr.request_timeout", "OCR_REQUEST_TIMEOUT"},
	{"ocr.poll_interval", "OCR_POLL_INTERVAL"},
	{"ocr.poll_max_wait", "OCR_POLL_MAX_WAIT"},
	{"queue.concurrency", "DEFAULT_CONCURRENCY"},
	{"queue.size", "QUEUE_SIZE"},
	{"storage.output_root", "OUTPUT_ROOT"},
	{"storage.max_file_bytes", "MAX_FILE_BYTES"},
	{"storage.max_total_bytes", "MAX_TOTAL_BYTES"},
}

// flagBindings maps config keys to command-line flag names.
var flagBindings = map[string]string{
	"server.host":         "host",
	"server.port":         "port",
	"server.log_level":    "log-level",
	"queue.concurrency":   "concurrency",
	"storage.output_root": "output-root",
}

// Options controls where Load looks for configuration.
type Options struct {
	// ConfigFile is an optional YAML file. A missing explicit file is an error.
	ConfigFile string

	// EnvFiles are dotenv files loaded into the process environment. Missing
	// files are ignored. Variables already set in the environment win.
	EnvFiles []string

	// Flags, when set, override every other source for the flags that were
	// changed on the command line.
	Flags *pflag.FlagSet
}

// Load configuration from dotenv files, environment variables, an optional
// config file and command-line flags, in increasing order of precedence for
// flags and environment over the file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(opts Options) (*Config, error) {
	for _, f := range opts.EnvFiles {
		// godotenv.Load never overrides variables that are already set.
		_ = godotenv.Load(f)
	}

	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", opts.ConfigFile, err)
		}
	}

	for _, env := range envBindings {
		if err := v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("error binding environment variable %s: %w", env.envVar, err)
		}
	}

	if opts.Flags != nil {
		for key, name := range flagBindings {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		trimQuotesHook,
		secondsDurationHook,
		mapstructure.StringToTimeDurationHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.log_level", DefaultLogLevel)
	v.SetDefault("ocr.model", DefaultModel)
	v.SetDefault("ocr.request_timeout", 10*time.Minute)
	v.SetDefault("ocr.poll_interval", 3*time.Second)
	v.SetDefault("ocr.poll_max_wait", 15*time.Minute)
	v.SetDefault("queue.concurrency", DefaultConcurrency)
	v.SetDefault("queue.size", DefaultQueueSize)
	v.SetDefault("storage.output_root", DefaultOutputRoot)
	v.SetDefault("storage.max_file_bytes", DefaultMaxFileBytes)
	v.SetDefault("storage.max_total_bytes", DefaultMaxTotalBytes)
}

// trimQuotesHook strips surrounding whitespace and double quotes from string
// values, as found in hand-edited .env files.
func trimQuotesHook(_ reflect.Type, _ reflect.Type, data interface{}) (interface{}, error) {
	s, ok := data.(string)
	if !ok {
		return data, nil
	}
	return strings.Trim(strings.TrimSpace(s), `"`), nil
}

// secondsDurationHook accepts a bare number of seconds for duration fields.
func secondsDurationHook(_ reflect.Type, t reflect.Type, data interface{}) (interface{}, error) {
	s, ok := data.(string)
	if !ok || t != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return data, nil
	}
	return time.Duration(secs * float64(time.Second)), nil
}
