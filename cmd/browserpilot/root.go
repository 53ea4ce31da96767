package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"browserpilot/internal/config"
	"browserpilot/internal/control"
	"browserpilot/internal/coordinator"
	"browserpilot/internal/logging"
)

func newRootCmd(fileCfg config.Config) *cobra.Command {
	var (
		proxyPort     int
		controlPort   int
		browserKind   string
		headless      bool
		noHeadless    bool
		noSandbox     bool
		workspace     string
		disableEditor bool
		configPath    string
	)

	root := &cobra.Command{
		Use:   "browserpilot",
		Short: "Browser coordinator: stable CDP port in front of a movable browser",
		Long: `browserpilot owns the lifecycle of a locally-launched browser and
publishes a stable proxy port that automation clients can connect to
regardless of which concrete browser is currently running.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := fileCfg
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}

			// Flags override file config.
			flags := cmd.Flags()
			if flags.Changed("proxy-port") {
				cfg.ProxyPort = proxyPort
			}
			if flags.Changed("control-port") {
				cfg.ControlPort = controlPort
			}
			if flags.Changed("browser") {
				cfg.Browser = browserKind
			}
			if flags.Changed("headless") {
				cfg.Headless = &headless
			}
			if noHeadless {
				f := false
				cfg.Headless = &f
			}
			if noSandbox {
				cfg.NoSandbox = true
			}
			if workspace != "" {
				cfg.Workspace = workspace
			}
			if disableEditor {
				cfg.DisableEditor = true
			}

			return runCoordinator(cfg.Resolve())
		},
	}

	flags := root.Flags()
	flags.IntVar(&proxyPort, "proxy-port", 0, "stable proxy port (0 = OS-assigned)")
	flags.IntVar(&controlPort, "control-port", 0, "loopback status HTTP port (0 = disabled)")
	flags.StringVar(&browserKind, "browser", "", "preferred browser kind (chrome, edge, chromium, brave, firefox)")
	flags.BoolVar(&headless, "headless", true, "launch browsers headless")
	flags.BoolVar(&noHeadless, "no-headless", false, "launch browsers with a visible window")
	flags.BoolVar(&noSandbox, "no-sandbox", false, "pass --no-sandbox to launched browsers")
	flags.StringVar(&workspace, "workspace", "", "workspace root for editor IPC discovery (default: cwd)")
	flags.BoolVar(&disableEditor, "no-editor", false, "skip editor-host detection")
	flags.StringVar(&configPath, "config", "", "config file path")

	root.AddCommand(newWrapCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newBrowsersCmd())
	root.AddCommand(newNavigateCmd())
	root.AddCommand(newDOMCmd())
	root.AddCommand(newScreenshotCmd())
	root.AddCommand(newFetchCmd())
	return root
}

// runCoordinator starts the daemon and blocks until a termination signal
// arrives, then shuts down in order. Exit code 1 on startup failure.
func runCoordinator(cfg *config.Resolved) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	coord := coordinator.New(cfg)
	if err := coord.Start(ctx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	var ctrl *control.Server
	if cfg.ControlPort > 0 {
		ctrl = control.New(coord)
		if err := ctrl.Start(cfg.ControlPort); err != nil {
			coord.Shutdown()
			return fmt.Errorf("startup failed: %w", err)
		}
	}

	logging.Infof("coordinator ready on proxy port %d", coord.ProxyPort())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	sig := <-sigCh
	logging.Infof("received %v, shutting down", sig)

	if ctrl != nil {
		ctrl.Shutdown()
	}
	coord.Shutdown()
	return nil
}
