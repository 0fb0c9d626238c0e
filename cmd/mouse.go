package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"webkvm/internal/input"
)

var mouseDelta input.MouseDelta

var mouseCmd = &cobra.Command{
	Use:   "mouse",
	Short: "Send one mouse report to the device",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := cfgMgr.Get()
		dev, err := newDevice(cfg)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Device.MouseTimeout.Std())
		defer cancel()
		if err := dev.SendMouse(ctx, mouseDelta); err != nil {
			return err
		}
		fmt.Println(dev.MouseURL(mouseDelta))
		return nil
	},
}

func init() {
	mouseCmd.Flags().IntVar(&mouseDelta.DX, "dx", 0, "relative x movement")
	mouseCmd.Flags().IntVar(&mouseDelta.DY, "dy", 0, "relative y movement")
	mouseCmd.Flags().BoolVar(&mouseDelta.LeftClicked, "left", false, "report a left click")
	mouseCmd.Flags().BoolVar(&mouseDelta.RightClicked, "right", false, "report a right click")
}
