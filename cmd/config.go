package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or write the configuration file",
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	Run: func(*cobra.Command, []string) {
		fmt.Println(cfgMgr.Path())
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "Write the effective configuration, flag overrides included",
	Long: `Write the effective configuration to the config file.

Values come from the existing file (or the defaults when there is none)
with the given flags applied, so

    webkvm config save -d http://192.168.1.10/ --listen 0.0.0.0:8090

creates a config file pointing at that device.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := cfgMgr.Save(); err != nil {
			return errors.Wrapf(err, "save %s", cfgMgr.Path())
		}
		fmt.Printf("Configuration written to %s\n", cfgMgr.Path())
		return nil
	},
}

func init() {
	f := configSaveCmd.Flags()
	f.StringVarP(&flags.listen, "listen", "l", "", "viewer listen address")
	f.BoolVar(&flags.noTray, "no-tray", false, "disable the system tray icon")
	f.BoolVar(&flags.noBrowser, "no-browser", false, "do not open the viewer page on start")

	configCmd.AddCommand(configPathCmd, configSaveCmd)
}
