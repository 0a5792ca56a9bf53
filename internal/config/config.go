package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL   string
	ChainID  int64
	LogLevel string

	FromBlock         uint64
	ToBlock           uint64
	Addresses         []string
	Topic0            []string
	BatchSize         uint64
	Out               string
	Checkpoint        string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
	Confirmations     uint64
	Follow            bool
	PollInterval      time.Duration
	Attribute         bool

	Protocols Protocols

	Concurrency           int
	CandidateThresholdBps int64

	PGDSN         string
	PGMaxConns    int
	RunMigrations bool

	Redis RedisConfig
	S3    S3Config

	NonceWait    time.Duration
	NonceLockTTL time.Duration
	CacheTTL     time.Duration
}

// Protocols holds the per-exchange deployment settings. Address maps are kept
// as strings and parsed by the helpers in protocols.go.
type Protocols struct {
	SeaportExchange        string
	SeaportConduits        map[string]string
	ZeroExExchange         string
	ZoraExchange           string
	ZoraTransferHelper     string
	OperatorFilterRegistry string
	WrappedNative          string
	// Currencies maps payment token address to decimals.
	Currencies map[string]string
	// FeeWallets maps order kind to a comma separated wallet list.
	FeeWallets map[string]string
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	TLSEnabled bool
}

type S3Config struct {
	Endpoint       string
	Region         string
	Bucket         string
	Prefix         string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// Load merges config file, environment variables, and flags into Config.
// A .env file in the working directory is loaded into the environment first.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	// Order kinds such as seaport-v1.5 appear as map keys, so "." cannot be the key delimiter.
	v := viper.NewWithOptions(viper.KeyDelimiter("::"))
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("chain-id", int64(1))
	v.SetDefault("batch-size", uint64(2000))
	v.SetDefault("out", "./data/logs.jsonl")
	v.SetDefault("checkpoint", "./data/checkpoint.json")
	v.SetDefault("checkpoint-enabled", true)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("poll-interval", 12*time.Second)
	v.SetDefault("attribute", true)
	v.SetDefault("log-level", "info")
	v.SetDefault("concurrency", 20)
	v.SetDefault("candidate-threshold-bps", int64(1000))
	v.SetDefault("pg-max-conns", 10)
	v.SetDefault("run-migrations", true)
	v.SetDefault("redis-pool-size", 10)
	v.SetDefault("s3-region", "us-east-1")
	v.SetDefault("nonce-wait", 5*time.Second)
	v.SetDefault("nonce-lock-ttl", 30*time.Second)
	v.SetDefault("cache-ttl", 10*time.Minute)
	v.SetDefault("seaport-exchange", "0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC")
	v.SetDefault("zeroex-exchange", "0xDef1C0ded9bec7F1a1670819833240f027b25EfF")
	v.SetDefault("zora-exchange", "0x6170B3C3A54C3d8c854934cBC314eD479b2B29A3")
	v.SetDefault("zora-transfer-helper", "0x909e9efE4D87d1a6018C2065aE642b6D0447bc91")
	v.SetDefault("weth", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:            v.GetString("rpc"),
		ChainID:           v.GetInt64("chain-id"),
		LogLevel:          v.GetString("log-level"),
		FromBlock:         v.GetUint64("from"),
		ToBlock:           v.GetUint64("to"),
		Addresses:         getStringSlice(v, "address"),
		Topic0:            getStringSlice(v, "topic0"),
		BatchSize:         v.GetUint64("batch-size"),
		Out:               v.GetString("out"),
		Checkpoint:        v.GetString("checkpoint"),
		CheckpointEnabled: v.GetBool("checkpoint-enabled"),
		MaxRetries:        v.GetInt("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
		Confirmations:     v.GetUint64("confirmations"),
		Follow:            v.GetBool("follow"),
		PollInterval:      v.GetDuration("poll-interval"),
		Attribute:         v.GetBool("attribute"),
		Protocols: Protocols{
			SeaportExchange:        v.GetString("seaport-exchange"),
			SeaportConduits:        getStringMap(v, "seaport-conduits"),
			ZeroExExchange:         v.GetString("zeroex-exchange"),
			ZoraExchange:           v.GetString("zora-exchange"),
			ZoraTransferHelper:     v.GetString("zora-transfer-helper"),
			OperatorFilterRegistry: v.GetString("operator-filter-registry"),
			WrappedNative:          v.GetString("weth"),
			Currencies:             getStringMap(v, "currencies"),
			FeeWallets:             getStringMap(v, "fee-wallets"),
		},
		Concurrency:           v.GetInt("concurrency"),
		CandidateThresholdBps: v.GetInt64("candidate-threshold-bps"),
		PGDSN:                 v.GetString("pg-dsn"),
		PGMaxConns:            v.GetInt("pg-max-conns"),
		RunMigrations:         v.GetBool("run-migrations"),
		Redis: RedisConfig{
			Addr:       v.GetString("redis-addr"),
			Password:   v.GetString("redis-password"),
			DB:         v.GetInt("redis-db"),
			PoolSize:   v.GetInt("redis-pool-size"),
			TLSEnabled: v.GetBool("redis-tls"),
		},
		S3: S3Config{
			Endpoint:       v.GetString("s3-endpoint"),
			Region:         v.GetString("s3-region"),
			Bucket:         v.GetString("s3-bucket"),
			Prefix:         v.GetString("s3-prefix"),
			AccessKey:      v.GetString("s3-access-key"),
			SecretKey:      v.GetString("s3-secret-key"),
			ForcePathStyle: v.GetBool("s3-force-path-style"),
		},
		NonceWait:    v.GetDuration("nonce-wait"),
		NonceLockTTL: v.GetDuration("nonce-lock-ttl"),
		CacheTTL:     v.GetDuration("cache-ttl"),
	}

	return cfg, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

// getStringMap reads a map from the config file, or "k=v,k=v" from a flag or env var.
func getStringMap(v *viper.Viper, key string) map[string]string {
	if !v.IsSet(key) {
		return nil
	}

	switch typed := v.Get(key).(type) {
	case map[string]interface{}:
		out := make(map[string]string, len(typed))
		for k, item := range typed {
			out[strings.TrimSpace(k)] = strings.TrimSpace(fmt.Sprintf("%v", item))
		}
		return out
	case map[string]string:
		return typed
	case string:
		return parsePairs(splitAndClean(typed))
	case []string:
		return parsePairs(cleanStrings(typed))
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return parsePairs(cleanStrings(items))
	default:
		return nil
	}
}

func parsePairs(items []string) map[string]string {
	out := make(map[string]string, len(items))
	for _, item := range items {
		key, value, _ := strings.Cut(item, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
