// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/PingAK9/flutter-playout/channel"
	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/mpvplayer"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/PingAK9/flutter-playout/remote"
	"github.com/spf13/viper"
)

var osExit = os.Exit  // A variable to allow mocking os.Exit in tests
var headlessMode bool // This can be set to true during tests
var testMode bool     // This can be set to true during tests, too

const DEVELOPMENT = "development"

// Version is the program version; usually set from BuildInfo
var Version string = DEVELOPMENT

const shutdownTimeout = 5 * time.Second

// return codes:
// 0 - OK
// 1 - generic errors
// 2 - main config errors
func main() {
	help := flag.Bool("help", false, "Print usage")
	enableMpris := flag.Bool("mpris", false, "Enable MPRIS2")
	listen := flag.String("listen", "", "listen on `addr` (overrides server.listen)")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	configFile := flag.String("config", "", "use config `file`")
	version := flag.Bool("version", false, "print the playout version and exit")

	flag.Parse()
	if *help {
		fmt.Printf("USAGE: %s <args>\n", os.Args[0])
		flag.Usage()
		osExit(0)
		return
	}
	if Version == DEVELOPMENT {
		if bi, ok := debug.ReadBuildInfo(); ok {
			Version = bi.Main.Version
		}
	}
	if *version {
		fmt.Printf("playout %s", Version)
		osExit(0)
		return
	}

	// cpuprofile code straight from https://pkg.go.dev/runtime/pprof
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal("could not create CPU profile: ", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal("could not start CPU profile: ", err)
		}
		defer pprof.StopCPUProfile()
	}

	if err := readConfig(configFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read configuration from file '%s': %v\n", *configFile, err)
		osExit(2)
		return
	}
	if *listen != "" {
		viper.Set("server.listen", *listen)
	}
	if *enableMpris {
		viper.Set("mpris.enabled", true)
	}

	logger, err := logger.Setup(loggerOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		osExit(2)
		return
	}

	if testMode {
		fmt.Println("Running in test mode for testing.")
		osExit(0)
		return
	}
	watchConfig(logger)

	// init mpv engine
	player, err := mpvplayer.NewPlayer(logger)
	if err != nil {
		fmt.Println("Unable to initialize mpv. Is libmpv installed?")
		osExit(1)
		return
	}
	defer player.Quit()

	opts := playback.Options{
		Backend:      player,
		AudioSession: player,
		Logger:       logger,
		Config:       playerConfig(),
	}

	// mpris2 player control (linux only but fails gracefully on other systems)
	if viper.GetBool("mpris.enabled") {
		mprisPlayer, err := remote.RegisterMprisPlayer(viper.GetString("mpris.name"), logger)
		if err != nil {
			fmt.Printf("Unable to register MPRIS with DBUS: %s\n", err)
			fmt.Println("Try running without MPRIS")
			osExit(1)
			return
		}
		defer mprisPlayer.Close()
		opts.Display = mprisPlayer
		opts.Commands = mprisPlayer
	}

	engine, err := playback.NewEngine(opts)
	if err != nil {
		fmt.Printf("Unable to start playback engine: %s\n", err)
		osExit(1)
		return
	}
	defer engine.Close()

	server := channel.NewServer(engine, viper.GetString("server.path"), logger)
	defer server.Close()

	if headlessMode {
		fmt.Println("Running in headless mode for testing.")
		osExit(0)
		return
	}

	httpServer := &http.Server{
		Addr:              viper.GetString("server.listen"),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("playout %s listening on %s", Version, httpServer.Addr)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.PrintError("ListenAndServe", err)
			osExit(1)
			return
		}
	case <-ctx.Done():
		logger.Print("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.PrintError("Shutdown", err)
	}
}
