package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"webkvm/internal/autostart"
)

var autostartCmd = &cobra.Command{
	Use:       "autostart [enable|disable|status]",
	Short:     "Manage starting webkvm at login",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"enable", "disable", "status"},
	RunE: func(_ *cobra.Command, args []string) error {
		switch args[0] {
		case "enable":
			e, err := autostart.DefaultEntry()
			if err != nil {
				return err
			}
			if flags.device != "" {
				e.Args = append(e.Args, "--device", flags.device)
			}
			return autostart.Enable(e)
		case "disable":
			return autostart.Disable()
		default:
			fmt.Println("autostart enabled:", autostart.IsEnabled())
			return nil
		}
	},
}
