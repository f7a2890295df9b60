// Package conf loads the service's configuration: a JSON file
// alongside the executable holding a "db" object, with PGFIRE_
// environment variable and CLI flag overrides, matching the teacher's
// viper-based Config loading (serv/config.go).
package conf

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DB holds the connection settings for the relational store, per
// spec §6 ("Configuration").
type DB struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"db"`
}

// Config is the top-level configuration document.
type Config struct {
	DB DB `mapstructure:"db"`

	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Load reads configPath (a JSON file) into a Config, applying
// PGFIRE_-prefixed environment variable overrides for every key.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix("PGFIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8666)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "reading config file %q", configPath)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "parsing config")
	}
	return &c, nil
}

// ConnString renders the Postgres connection string pgx expects.
func (c *Config) ConnString() string {
	port := c.DB.Port
	if port == 0 {
		port = 5432
	}
	return "postgres://" + c.DB.Username + ":" + c.DB.Password + "@" +
		c.DB.Host + ":" + strconv.Itoa(port) + "/" + c.DB.Name
}
