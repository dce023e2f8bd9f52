package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string
		Build            string
		AppName          string
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridAPIKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		Store    StoreConfig
		Tribunal TribunalConfig
		Asset    AssetConfig
	}

	ServerConfig struct {
		Host            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	// StoreConfig selects the KVStore backing the proposal collection.
	StoreConfig struct {
		Driver string // memory | postgres | redis
		Key    string
	}

	TribunalConfig struct {
		MaestroLevel  int
		OverrideLevel int
		// Quorum is the number of ballots that settle a proposal; 0 means a strict majority of its maestros.
		Quorum             int
		MaxConflictRetries int
		Maestros           []Reviewer
	}

	AssetConfig struct {
		MaxSize int64
		Dir     string
		BaseURL string
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, strconv.Itoa(dbc.Port))
}

// NewConfig reads the configuration from the environment.
// Env vars are prefixed with the current ENV (DEV by default), eg: DEV_DATABASE_HOST.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Tribunal")
	v.SetDefault("secretKey", "kq7-zt)b3x$+91=fr&uo2h(w!c)#*d5(#pg4h^$cegm2emy")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tribunal")
	v.SetDefault("database.user", "tribunal")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.key", "proposals")

	v.SetDefault("tribunal.maestroLevel", 5)
	v.SetDefault("tribunal.overrideLevel", 6)
	v.SetDefault("tribunal.quorum", 0)
	v.SetDefault("tribunal.maxConflictRetries", 10)
	v.SetDefault("tribunal.maestros", "")

	v.SetDefault("asset.maxSize", 5<<20)
	v.SetDefault("asset.dir", "media")
	v.SetDefault("asset.baseURL", "/media")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("testMode"),
		Env:             env,
		Build:           v.GetString("build"),
		AppName:         v.GetString("appName"),
		WorkDir:         wd,
		SecretKey:       v.GetString("secretKey"),
		FrontendBaseURL: v.GetString("frontendBaseURL"),
		RollbarToken:    v.GetString("rollbarToken"),
		SendgridAPIKey:  v.GetString("sendgridApiKey"),
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Store: StoreConfig{
			Driver: CleanString(v.GetString("store.driver"), true /* lower */),
			Key:    v.GetString("store.key"),
		},
		Tribunal: TribunalConfig{
			MaestroLevel:       v.GetInt("tribunal.maestroLevel"),
			OverrideLevel:      v.GetInt("tribunal.overrideLevel"),
			Quorum:             v.GetInt("tribunal.quorum"),
			MaxConflictRetries: v.GetInt("tribunal.maxConflictRetries"),
			Maestros:           ParseReviewers(v.GetString("tribunal.maestros")),
		},
		Asset: AssetConfig{
			MaxSize: v.GetInt64("asset.maxSize"),
			Dir:     v.GetString("asset.dir"),
			BaseURL: v.GetString("asset.baseURL"),
		},
	}

	if addr, err := mail.ParseAddress(v.GetString("defaultFromEmail")); err == nil {
		conf.DefaultFromEmail = *addr
	} else {
		conf.DefaultFromEmail = mail.Address{Address: v.GetString("defaultFromEmail")}
	}
	conf.DefaultFromEmail.Name = conf.AppName
	return conf
}
