package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all process configuration, parsed from the environment.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,required"`
	GuildID      string `env:"GUILD_ID,required"`

	DiscordClientID     string `env:"DISCORD_CLIENT_ID"`
	DiscordClientSecret string `env:"DISCORD_CLIENT_SECRET"`
	DiscordRedirectURI  string `env:"DISCORD_REDIRECT_URI"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	SpotifyRedirectURI  string `env:"SPOTIFY_REDIRECT_URI"`

	WebAddr string `env:"WEB_ADDR" envDefault:":5000"`

	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`
	LogPath     string `env:"LOG_PATH" envDefault:"bot.log"`

	YTDLPPath  string `env:"YTDLP_PATH" envDefault:"yt-dlp"`
	FFmpegPath string `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
}

// New loads .env (if present) and parses the environment into a Config.
func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, falling back to system environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// SpotifyEnabled reports whether Spotify account linking is configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != "" && c.SpotifyRedirectURI != ""
}

// DiscordOAuthEnabled reports whether web login via Discord is configured.
func (c *Config) DiscordOAuthEnabled() bool {
	return c.DiscordClientID != "" && c.DiscordClientSecret != "" && c.DiscordRedirectURI != ""
}
