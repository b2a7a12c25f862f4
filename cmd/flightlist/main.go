// cmd/flightlist/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"glider-device-service/internal/blackboard"
	"glider-device-service/internal/device"
	"glider-device-service/internal/driver"
	"glider-device-service/internal/model"
	"glider-device-service/internal/operation"
)

var (
	verbose bool
	timeout time.Duration
)

func main() {
	registry := driver.NewRegistry(zap.NewNop())
	driver.RegisterDefaultDrivers(registry, zap.NewNop())

	rootCmd := &cobra.Command{
		Use:   "flightlist DRIVER PORT BAUD",
		Short: "List the flights stored in a logger",
		Long:  "List the flights stored in a logger.\n\nWhere DRIVER is one of:\n" + loggerNames(registry),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			baud, err := strconv.ParseUint(args[2], 10, 32)
			if err != nil || baud == 0 {
				return fmt.Errorf("invalid baud rate %q", args[2])
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			logger := zap.NewNop()
			if verbose {
				if logger, err = zap.NewDevelopment(); err != nil {
					return err
				}
				defer logger.Sync()
			}

			return runFlightList(ctx, cmd.OutOrStdout(), registry, logger, model.DeviceConfig{
				PortType:   model.PortTypeSerial,
				Path:       args[1],
				BaudRate:   uint(baud),
				DriverName: args[0],
			})
		},
		SilenceUsage: true,
	}
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log the device conversation")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 2*time.Minute, "Give up after this long")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loggerNames(registry *driver.Registry) string {
	var b strings.Builder
	for _, reg := range registry.Loggers() {
		fmt.Fprintf(&b, "\t%s\n", reg.Name)
	}
	return b.String()
}

func runFlightList(ctx context.Context, out io.Writer, registry *driver.Registry, logger *zap.Logger, cfg model.DeviceConfig) error {
	reg, err := registry.FindByName(cfg.DriverName)
	if err != nil {
		return err
	}
	if !reg.IsLogger() {
		return fmt.Errorf("not a logger driver: %s", cfg.DriverName)
	}

	board := blackboard.New(1, time.Minute, nil, logger)
	d := device.NewDescriptor(0, registry, board, nil, logger, device.Options{})
	d.SetConfig(cfg)
	defer d.Close()

	handle, err := d.Open(ctx)
	if err != nil {
		return err
	}
	if handle != nil {
		if err := handle.Wait(); err != nil {
			return fmt.Errorf("failed to open %s: %w", cfg.Path, err)
		}
	}
	if !d.Borrow() {
		return errors.New("device is not open")
	}
	defer d.Return()

	flights, err := d.ReadFlightList(operation.NewContextEnv(ctx, logger, nil))
	if err != nil {
		return fmt.Errorf("failed to read flight list: %w", err)
	}

	for _, flight := range flights {
		fmt.Fprintln(out, flight.String())
	}
	return nil
}
