package network

import (
	"bytes"
	"image"

	// Decoders for every format the device may serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/pkg/errors"
)

// Channels is the number of video channels served by the device
const Channels = 4

// Frame is one loaded channel image
type Frame struct {
	Channel     int
	Stamp       int64 // Unix ms of the fetch cycle
	Data        []byte
	ContentType string
	Format      string
	Width       int
	Height      int
}

// Loaded reports whether the frame holds image data
func (f Frame) Loaded() bool {
	return len(f.Data) > 0
}

// DecodeFrame validates data as an image and wraps it in a Frame
func DecodeFrame(channel int, stamp int64, data []byte, contentType string) (Frame, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Frame{}, errors.Wrapf(ErrUndecodableFrame, "channel %d: %v", channel, err)
	}
	if contentType == "" {
		contentType = "image/" + format
	}
	return Frame{
		Channel:     channel,
		Stamp:       stamp,
		Data:        data,
		ContentType: contentType,
		Format:      format,
		Width:       cfg.Width,
		Height:      cfg.Height,
	}, nil
}
