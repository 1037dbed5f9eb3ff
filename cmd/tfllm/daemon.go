package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/tfllm/tfllm"
	"github.com/tfllm/tfllm/client"
	"github.com/tfllm/tfllm/lifecycle"
	"github.com/tfllm/tfllm/model"
	"github.com/tfllm/tfllm/serve"
	"github.com/tfllm/tfllm/shell"
)

func newController(cfg *tfllm.Config) *lifecycle.Controller {
	c := lifecycle.NewController(
		tfllm.RecordPath(),
		tfllm.SocketPath(),
		filepath.Join(tfllm.DataDir(), "daemon.log"),
	)
	// Startup includes model load; give it the load budget plus slack.
	c.StartTimeout = cfg.LoadTimeout() + 30*time.Second
	c.StopGrace = cfg.StopGrace()
	return c
}

func newServeCmd() *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the daemon that keeps the model loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tfllm.LoadConfig()
			if err != nil {
				return err
			}
			if foreground {
				return serve.Run(cmd.Context(), cfg)
			}

			rec, err := newController(cfg).StartBackground()
			if errors.Is(err, lifecycle.ErrAlreadyRunning) {
				fmt.Println("Daemon is already running.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Daemon started (pid %d, socket %s).\n", rec.PID, rec.Socket)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "run in the foreground instead of detaching")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tfllm.LoadConfig()
			if err != nil {
				return err
			}
			err = newController(cfg).Stop()
			if errors.Is(err, lifecycle.ErrNotRunning) {
				fmt.Println("Daemon is not running.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Println("Daemon stopped.")
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := tfllm.LoadConfig()
			if err != nil {
				return err
			}
			rec, err := newController(cfg).Status()
			if errors.Is(err, lifecycle.ErrNotRunning) {
				fmt.Println("Daemon is not running.")
				return nil
			}
			if err != nil {
				return err
			}
			if client.New(cfg).Ping() {
				fmt.Printf("Daemon is running (pid %d, socket %s).\n", rec.PID, rec.Socket)
			} else {
				fmt.Printf("Daemon process %d is alive but not answering on %s.\n", rec.PID, rec.Socket)
			}
			return nil
		},
	}
}

func newDownloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download all model artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := model.LoadManifest()
			if err != nil {
				return err
			}
			destDir := filepath.Join(tfllm.DataDir(), "models")
			for _, quant := range manifest.Quants() {
				fmt.Printf("Fetching %s...\n", quant)
				path, err := manifest.Ensure(cmd.Context(), quant, destDir)
				if err != nil {
					return fmt.Errorf("download %s: %w", quant, err)
				}
				fmt.Printf("  %s\n", path)
			}
			return nil
		},
	}
}

func newInitCmd() *cobra.Command {
	var alias string
	cmd := &cobra.Command{
		Use:   "init <bash|zsh|fish>",
		Short: "Print the shell integration script",
		Long: `Print the script that defines the fix alias for your shell.
Add to ~/.bashrc or ~/.zshrc:
  eval "$(tfllm init bash)"
or to config.fish:
  tfllm init fish | source`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := shell.Script(args[0], alias)
			if err != nil {
				return err
			}
			fmt.Print(script)
			return nil
		},
	}
	cmd.Flags().StringVar(&alias, "alias", shell.DefaultAlias, "name of the shell function to define")
	return cmd
}
