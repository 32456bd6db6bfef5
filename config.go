// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/PingAK9/flutter-playout/channel"
	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

func setDefaults() {
	viper.SetDefault("server.listen", ":7460")
	viper.SetDefault("server.path", channel.DefaultPath)
	viper.SetDefault("player.tick_interval", "1s")
	viper.SetDefault("player.live_stream_field", true)
	viper.SetDefault("mpris.enabled", false)
	viper.SetDefault("mpris.name", "playout")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)
	viper.SetDefault("log.file", "")
}

// readConfig loads the config file. Without an explicit file a missing
// config is fine and the defaults apply.
func readConfig(configFile *string) error {
	setDefaults()

	explicit := configFile != nil && *configFile != ""
	if explicit {
		// use custom config file
		viper.SetConfigFile(*configFile)
	} else {
		// lookup default dirs
		viper.SetConfigName("playout")
		viper.SetConfigType("toml")
		viper.AddConfigPath("$HOME/.config/playout")
		viper.AddConfigPath(".")
	}

	// read it
	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !explicit && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("Config file error: %s\n", err)
	}

	// validate
	if _, err := time.ParseDuration(viper.GetString("player.tick_interval")); err != nil {
		return fmt.Errorf("Config property player.tick_interval: %s\n", err)
	}
	return nil
}

func playerConfig() playback.Config {
	return playback.Config{
		TickInterval:    viper.GetDuration("player.tick_interval"),
		LiveStreamField: viper.GetBool("player.live_stream_field"),
	}
}

func loggerOptions() logger.Options {
	return logger.Options{
		Level: viper.GetString("log.level"),
		JSON:  viper.GetBool("log.json"),
		File:  viper.GetString("log.file"),
	}
}

// watchConfig applies log level edits without a restart.
func watchConfig(l *logger.Logger) {
	if viper.ConfigFileUsed() == "" {
		return
	}
	viper.OnConfigChange(func(e fsnotify.Event) {
		if err := l.SetLevel(viper.GetString("log.level")); err != nil {
			l.PrintError("config reload", err)
			return
		}
		l.Printf("config: %s changed, log level %s", e.Name, viper.GetString("log.level"))
	})
	viper.WatchConfig()
}
