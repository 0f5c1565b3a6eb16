// Command capturecore runs the audio capture registry service.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"capturecore/internal/app"
	"capturecore/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "capturecore",
		Short:         "Audio capture session and upload registry",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

type serveFlags struct {
	httpAddr      string
	storageDriver string
	blobDriver    string
	publicBaseURL string
}

// apply overlays flags the user set explicitly on top of cfg.
func (f serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = f.httpAddr
	}
	if cmd.Flags().Changed("storage-driver") {
		cfg.StorageDriver = f.storageDriver
	}
	if cmd.Flags().Changed("blob-driver") {
		cfg.BlobDriver = f.blobDriver
	}
	if cmd.Flags().Changed("public-base-url") {
		cfg.PublicBaseURL = f.publicBaseURL
	}
}

func loadConfig(cmd *cobra.Command, flags serveFlags) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	flags.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&flags.httpAddr, "http-addr", "", "listen address (overrides CAPTURECORE_HTTP_ADDR)")
	cmd.Flags().StringVar(&flags.storageDriver, "storage-driver", "", "registry storage: memory|sqlite|postgres")
	cmd.Flags().StringVar(&flags.blobDriver, "blob-driver", "", "chunk storage: fs|s3|memory")
	cmd.Flags().StringVar(&flags.publicBaseURL, "public-base-url", "", "base url used in upload slot urls")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, logOut io.Writer) error {
	a, err := app.New(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	runErr := a.Run(ctx)
	closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := a.Close(closeCtx); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", app.ServiceName, version)
			return err
		},
	}
}
