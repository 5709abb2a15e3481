/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/friendsincode/yurets_fm/internal/config"
	"github.com/friendsincode/yurets_fm/internal/logging"
	"github.com/friendsincode/yurets_fm/internal/server"
	"github.com/friendsincode/yurets_fm/internal/telegram"
	"github.com/friendsincode/yurets_fm/internal/version"
)

var (
	logger zerolog.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "yuretsfm",
	Short: "Yurets FM - single channel internet radio",
	Long:  "Yurets FM streams one continuous audio channel assembled from local files and Telegram channels on a time-of-day schedule.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the radio server",
	Long:  "Start the broadcast engine and the HTTP endpoints for listeners.",
	RunE:  runServe,
}

var loginCmd = &cobra.Command{
	Use:   "telegram-login",
	Short: "Authorize a Telegram user account",
	Long:  "Run the interactive login flow and save the session file the serve command uses.",
	RunE:  runTelegramLogin,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger = logging.SetupWithFile(cfg.Environment, cfg.LogFile)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	logger.Info().Str("version", version.Version).Msg("Yurets FM starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}

	return srv.Start(ctx)
}

func runTelegramLogin(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	if !cfg.TelegramConfigured() {
		return fmt.Errorf("set YURETS_TELEGRAM_API_ID and YURETS_TELEGRAM_API_HASH first")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return telegram.Login(ctx, telegram.Options{
		APIID:       cfg.TelegramAPIID,
		APIHash:     cfg.TelegramAPIHash,
		SessionFile: cfg.TelegramSession,
	}, os.Stdin, os.Stdout)
}
