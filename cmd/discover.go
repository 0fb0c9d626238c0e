package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"webkvm/internal/network"
)

var discoverPort int

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Scan the local network for KVM devices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		log.Infof("Discovery: Scanning local /24 on port %d", discoverPort)
		devices, err := network.ScanDevices(ctx, discoverPort)
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No devices found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IP\tURL\tFORMAT\tSIZE")
		for _, d := range devices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%dx%d\n", d.IP, d.BaseURL, d.Format, d.Width, d.Height)
		}
		return w.Flush()
	},
}

func init() {
	discoverCmd.Flags().IntVarP(&discoverPort, "port", "p", 80, "device HTTP port")
}
