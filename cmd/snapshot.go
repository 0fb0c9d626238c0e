package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
	"github.com/spf13/cobra"

	"webkvm/internal/network"
)

var snapshotDir string

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Fetch one frame of every channel into a directory",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := cfgMgr.Get()
		dev, err := newDevice(cfg)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(snapshotDir, 0755); err != nil {
			return errors.Wrap(err, "create output directory")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Poll.StallTimeout.Std())
		defer cancel()
		stamp := time.Now().UnixMilli()

		var (
			frames [network.Channels]network.Frame
			errs   [network.Channels]error
			mu     sync.Mutex
		)
		wg := sizedwaitgroup.New(network.Channels)
		for ch := 0; ch < network.Channels; ch++ {
			wg.Add()
			go func(ch int) {
				defer wg.Done()
				f, err := dev.FetchFrame(ctx, ch, stamp)
				mu.Lock()
				frames[ch], errs[ch] = f, err
				mu.Unlock()
			}(ch)
		}
		wg.Wait()

		for ch, f := range frames {
			if errs[ch] != nil {
				return errors.Wrapf(errs[ch], "channel %d", ch)
			}
			path := filepath.Join(snapshotDir, fmt.Sprintf("ch%d.%s", ch, f.Format))
			if err := os.WriteFile(path, f.Data, 0644); err != nil {
				return errors.Wrapf(err, "write %s", path)
			}
			fmt.Printf("%s  %dx%d  %s\n", path, f.Width, f.Height, humanize.Bytes(uint64(len(f.Data))))
		}
		return nil
	},
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotDir, "out", "o", ".", "output directory")
}
