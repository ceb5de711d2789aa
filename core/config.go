package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env             string
	Debug           bool
	TestMode        bool
	AppName         string
	Build           string
	SecretKey       string
	WorkDir         string
	FrontendBaseURL string
	Storage         string // postgres | memory
	Server          struct {
		Host                      string
		Address                   string
		DebugAddress              string
		DisableReqLogs            bool
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}
	Database struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
	Moffin struct {
		BaseURL      string
		ClientID     string
		ClientSecret string
		Timeout      time.Duration
	}
	PasswordResetTimeoutDelta time.Duration
	SendgridAPIKey            string
	RollbarToken              string

	defaultFromEmail string
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func (c *Config) UseMemoryStorage() bool {
	return c.Storage == StorageMemory
}

// DBAddress returns the "host:port" of the configured database server.
func (c *Config) DBAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

// NewConfig loads the configuration for the current ENV (DEV by default, TEST, QA or PROD).
// Values are read from the environment, prefixed with the ENV name (eg. DEV_SECRET_KEY),
// after loading config/.env.<env> when it exists.
func NewConfig() *Config {
	vp := viper.New()

	vp.SetTypeByDefaultValue(true)
	vp.SetDefault("debug", true)
	vp.SetDefault("app_name", "Forma")
	vp.SetDefault("build", "dev")
	vp.SetDefault("secret_key", "x7l#2s!v+0d-kp3(qz8w@nf4$u1c)ra9&m_e5ht6=jgyb*io")
	vp.SetDefault("default_from_email", "Forma <noreply@localhost>")
	vp.SetDefault("frontend_base_url", "http://localhost:3000")
	vp.SetDefault("storage", StoragePostgres)
	vp.SetDefault("server_host", "localhost")
	vp.SetDefault("server_address", ":8000")
	vp.SetDefault("server_debug_address", ":4000")
	vp.SetDefault("server_disable_req_logs", false)
	vp.SetDefault("server_read_timeout", 5*time.Second)
	vp.SetDefault("server_write_timeout", 10*time.Second)
	vp.SetDefault("server_shutdown_timeout", 5*time.Second)
	vp.SetDefault("jwt_expiration_delta", 7*24*time.Hour)
	vp.SetDefault("jwt_refresh_expiration_delta", 4*time.Hour)
	vp.SetDefault("password_reset_timeout_delta", 3*24*time.Hour)
	vp.SetDefault("database_engine", "postgres")
	vp.SetDefault("database_host", "localhost")
	vp.SetDefault("database_port", "5432")
	vp.SetDefault("database_name", "forma")
	vp.SetDefault("database_user", "forma")
	vp.SetDefault("database_password", "forma")
	vp.SetDefault("database_admin_user", "postgres")
	vp.SetDefault("database_admin_password", "")
	vp.SetDefault("database_disable_tls", true)
	vp.SetDefault("moffin_base_url", "https://staging.moffin.mx/api/v1")
	vp.SetDefault("moffin_client_id", "")
	vp.SetDefault("moffin_client_secret", "")
	vp.SetDefault("moffin_timeout", 15*time.Second)
	vp.SetDefault("sendgrid_api_key", "")
	vp.SetDefault("rollbar_token", "")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		vp.SetDefault("test_mode", true)
		vp.SetDefault("storage", StorageMemory)
	}
	vp.SetEnvPrefix(env)

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
	vp.AutomaticEnv()

	conf := &Config{
		Env:              env,
		Debug:            vp.GetBool("debug"),
		TestMode:         vp.GetBool("test_mode"),
		AppName:          vp.GetString("app_name"),
		Build:            vp.GetString("build"),
		SecretKey:        vp.GetString("secret_key"),
		WorkDir:          wd,
		FrontendBaseURL:  strings.TrimSuffix(vp.GetString("frontend_base_url"), "/"),
		Storage:          vp.GetString("storage"),
		defaultFromEmail: vp.GetString("default_from_email"),
	}
	conf.Server.Host = vp.GetString("server_host")
	conf.Server.Address = vp.GetString("server_address")
	conf.Server.DebugAddress = vp.GetString("server_debug_address")
	conf.Server.DisableReqLogs = vp.GetBool("server_disable_req_logs")
	conf.Server.ReadTimeout = vp.GetDuration("server_read_timeout")
	conf.Server.WriteTimeout = vp.GetDuration("server_write_timeout")
	conf.Server.ShutdownTimeout = vp.GetDuration("server_shutdown_timeout")
	conf.Server.JWTExpirationDelta = vp.GetDuration("jwt_expiration_delta")
	conf.Server.JWTRefreshExpirationDelta = vp.GetDuration("jwt_refresh_expiration_delta")
	conf.Database.Engine = vp.GetString("database_engine")
	conf.Database.Host = vp.GetString("database_host")
	conf.Database.Port = vp.GetString("database_port")
	conf.Database.Name = vp.GetString("database_name")
	conf.Database.User = vp.GetString("database_user")
	conf.Database.Password = vp.GetString("database_password")
	conf.Database.AdminUser = vp.GetString("database_admin_user")
	conf.Database.AdminPassword = vp.GetString("database_admin_password")
	conf.Database.DisableTLS = vp.GetBool("database_disable_tls")
	conf.Moffin.BaseURL = strings.TrimSuffix(vp.GetString("moffin_base_url"), "/")
	conf.Moffin.ClientID = vp.GetString("moffin_client_id")
	conf.Moffin.ClientSecret = vp.GetString("moffin_client_secret")
	conf.Moffin.Timeout = vp.GetDuration("moffin_timeout")
	conf.PasswordResetTimeoutDelta = vp.GetDuration("password_reset_timeout_delta")
	conf.SendgridAPIKey = vp.GetString("sendgrid_api_key")
	conf.RollbarToken = vp.GetString("rollbar_token")
	return conf
}

// NewTestConfig returns a Config suitable for unit tests: in-memory storage and a fixed secret key.
func NewTestConfig() *Config {
	conf := &Config{
		Env:              "TEST",
		TestMode:         true,
		AppName:          "Forma",
		Build:            "test",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		Storage:          StorageMemory,
		defaultFromEmail: "Forma <noreply@localhost>",
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	conf.Moffin.BaseURL = "https://staging.moffin.mx/api/v1"
	conf.Moffin.Timeout = 5 * time.Second
	conf.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	return conf
}
