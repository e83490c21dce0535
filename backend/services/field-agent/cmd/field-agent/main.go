package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	libconfig "fieldservice/backend/libs/config"
	"fieldservice/backend/libs/logging"
	app "fieldservice/backend/services/field-agent/internal/app"
	"fieldservice/backend/services/field-agent/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "field-agent",
	Short: "On-device agent for pest control field visits",
	Long:  `Runs the station map editor and the visit session engine of a technician device, and syncs them with visit-service.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			return nil
		}
		return os.Setenv(libconfig.PathEnv, configFile)
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local device API",
	RunE:  runServe,
}

var customersCmd = &cobra.Command{
	Use:   "customers",
	Short: "Print customers and their maps from visit-service",
	RunE:  runCustomers,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides "+libconfig.PathEnv+")")
	rootCmd.AddCommand(serveCmd, customersCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("field-agent")
	if err != nil {
		return err
	}
	defer logger.Sync() // best-effort flush

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", zap.Error(err))
		return err
	}
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application stopped with error", zap.Error(err))
		return err
	}
	return nil
}

func runCustomers(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger("field-agent")
	if err != nil {
		return err
	}
	defer logger.Sync() // best-effort flush

	customers, err := app.Customers(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(customers)
}
