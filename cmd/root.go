package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/browser"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"webkvm/internal/config"
	"webkvm/internal/hotkey"
	"webkvm/internal/network"
	"webkvm/internal/session"
	"webkvm/internal/tray"
	"webkvm/internal/viewer"
)

var version = "0.1.0"

var log = logrus.WithField("pkg", "main")

type rootFlags struct {
	configPath string
	device     string
	listen     string
	noTray     bool
	noBrowser  bool
	logLevel   string
}

var (
	flags  rootFlags
	cfgMgr *config.Manager
)

var rootCmd = &cobra.Command{
	Use:           "webkvm",
	Short:         "Remote KVM client: pointer uplink and four-channel video viewer",
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runClient(cfgMgr.Get())
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default ~/.config/webkvm/config.json)")
	pf.StringVarP(&flags.device, "device", "d", "", "device base URL, e.g. http://192.168.1.10/")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.Flags().StringVarP(&flags.listen, "listen", "l", "", "viewer listen address")
	rootCmd.Flags().BoolVar(&flags.noTray, "no-tray", false, "do not show the system tray icon")
	rootCmd.Flags().BoolVar(&flags.noBrowser, "no-browser", false, "do not open the viewer page")

	rootCmd.AddCommand(discoverCmd, mouseCmd, snapshotCmd, autostartCmd, configCmd, versionCmd)
}

// Execute executes root CLI command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

// loadConfig reads the config file and applies flag overrides. The log
// level follows every change of the managed config.
func loadConfig(cmd *cobra.Command) error {
	var m *config.Manager
	if flags.configPath != "" {
		m = config.NewManagerAt(flags.configPath)
	} else {
		var err error
		if m, err = config.NewManager(); err != nil {
			return err
		}
	}
	m.RegisterChangeCallback(func() {
		applyLogLevel(m.Get().General.LogLevel)
	})
	cfgMgr = m

	if err := cfgMgr.Load(); err != nil {
		return errors.Wrap(err, "load config")
	}

	cfg := cfgMgr.Get()
	applyFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfgMgr.Set(cfg)
	return nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if flags.device != "" {
		cfg.Device.BaseURL = flags.device
	}
	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cfg.Viewer.Listen = flags.listen
	}
	if flags.noBrowser {
		cfg.Viewer.OpenBrowser = false
	}
	if flags.noTray {
		cfg.General.Tray = false
	}
	if flags.logLevel != "" {
		cfg.General.LogLevel = flags.logLevel
	}
}

func applyLogLevel(name string) {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		log.WithError(err).Warn("Config: Keeping current log level")
		return
	}
	if level != logrus.GetLevel() {
		logrus.SetLevel(level)
		log.Debugf("Config: Log level set to %s", level)
	}
}

func newDevice(cfg config.Config) (*network.DeviceClient, error) {
	return network.NewDeviceClient(cfg.Device.BaseURL, network.DeviceOptions{
		MouseTimeout: cfg.Device.MouseTimeout.Std(),
		ImageTimeout: cfg.Device.ImageTimeout.Std(),
		ImageExt:     cfg.Device.ImageExt,
	})
}

func sessionOptions(cfg config.Config) session.Options {
	return session.Options{
		MouseInterval: cfg.Poll.MouseInterval.Std(),
		VideoInterval: cfg.Poll.VideoInterval.Std(),
		MouseTimeout:  cfg.Device.MouseTimeout.Std(),
		StallTimeout:  cfg.Poll.StallTimeout.Std(),
	}
}

// viewerURL turns a listen address into a URL a local browser can open
func viewerURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String() + "/"
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func runClient(cfg config.Config) error {
	log.Infof("webkvm %s starting, device %s", version, cfg.Device.BaseURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dev, err := newDevice(cfg)
	if err != nil {
		return err
	}

	hub := viewer.NewHub()
	frames := viewer.NewFrameStore(hub.Broadcast)
	keys := hotkey.NewManager()
	runner := session.NewRunner(session.Deps{
		Device:   dev,
		Display:  frames,
		Platform: hub,
		Keys:     keys,
	}, sessionOptions(cfg), hub.NotifyReload)
	if err := runner.BindHotkeys(keys, cfg.Hotkeys.Release, cfg.Hotkeys.Reload); err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Viewer.Listen)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.Viewer.Listen)
	}
	url := viewerURL(ln.Addr())
	srv := viewer.NewServer(runner, hub, frames, dev.BaseURL())

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, ln); err != nil {
			log.WithError(err).Error("Viewer server failed")
			stop()
		}
	}()
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	openViewer := func() {
		if err := browser.OpenURL(url); err != nil {
			log.WithError(err).Warnf("Failed to open browser, visit %s", url)
		}
	}
	if cfg.Viewer.OpenBrowser {
		openViewer()
	}

	if cfg.General.Tray {
		runTray(ctx, stop, runner, openViewer, url)
	} else {
		<-ctx.Done()
	}

	log.Info("webkvm shutting down")
	wg.Wait()
	return nil
}

// runTray blocks on the tray event loop until ctx ends or Quit is chosen
func runTray(ctx context.Context, stop context.CancelFunc, runner *session.Runner, openViewer func(), url string) {
	t := tray.New("webkvm viewer at "+url, tray.Actions{
		OpenViewer: openViewer,
		Reload: func() {
			if err := runner.Reload("tray request"); err != nil {
				log.WithError(err).Warn("Tray: Reload ignored")
			}
		},
		Quit: stop,
	})

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.SetStatus(statusLine(runner.Status(ctx)))
			case <-ctx.Done():
				t.Stop()
				return
			}
		}
	}()
	t.Run()
}
