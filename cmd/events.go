/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mto-maintenance/apiserver/config"
	"github.com/mto-maintenance/apiserver/internal/logging"
	"github.com/mto-maintenance/apiserver/internal/mq"
	"github.com/mto-maintenance/apiserver/internal/services"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// eventsCmd represents the events command.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the auth event stream",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print auth events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.IsProduction())
		if err != nil {
			return err
		}
		defer func() {
			_ = logger.Sync()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.FromConfig(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if broker == nil {
			return fmt.Errorf("MQ_DRIVER is %q; nothing to tail", cfg.MQ.Driver)
		}
		defer func() {
			_ = broker.Close()
		}()

		logger.Info("tailing auth events", zap.String("channel", cfg.MQ.Channel))
		err = broker.Subscribe(ctx, cfg.MQ.Channel, func(ctx context.Context, msg mq.Message) error {
			var event services.AuthEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Malformed payloads are dropped rather than redelivered forever.
				logger.Warn("skipping malformed event", zap.String("id", msg.ID), zap.Error(err))
				return nil
			}
			line, err := json.Marshal(event)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(line))
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
