// Package network provides the HTTP client for the KVM device's CGI
// endpoints and LAN discovery of devices.
package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"webkvm/internal/input"
)

var log = logrus.WithField("pkg", "network")

var (
	// ErrBadStatus is returned when the device answers with anything but 200
	ErrBadStatus = errors.New("device returned non-200 status")

	// ErrUndecodableFrame is returned when a channel image cannot be decoded
	ErrUndecodableFrame = errors.New("frame is not a decodable image")
)

const (
	// MousePath is the uplink endpoint relative to the device base URL
	MousePath = "cgi-bin/mouse"

	// ImagePathPrefix is followed by the channel number (0..3)
	ImagePathPrefix = "cgi-bin/getimg"

	// DefaultImageExt is the ext hint the device expects on image requests
	DefaultImageExt = ".jpeg"

	userAgent = "webkvm"
)

// DeviceOptions tunes the device client
type DeviceOptions struct {
	MouseTimeout time.Duration
	ImageTimeout time.Duration
	ImageExt     string
}

// DeviceClient talks to the device's CGI backend
type DeviceClient struct {
	base  *url.URL
	ext   string
	mouse *req.Client
	image *req.Client
}

// NewDeviceClient creates a client for the device at baseURL
// (e.g. "http://192.168.1.10/").
func NewDeviceClient(baseURL string, opts DeviceOptions) (*DeviceClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse device url %q", baseURL)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("device url %q must be absolute", baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if opts.ImageExt == "" {
		opts.ImageExt = DefaultImageExt
	}

	return &DeviceClient{
		base:  u,
		ext:   opts.ImageExt,
		mouse: newReqClient(opts.MouseTimeout),
		image: newReqClient(opts.ImageTimeout),
	}, nil
}

func newReqClient(timeout time.Duration) *req.Client {
	c := req.C().SetUserAgent(userAgent)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// BaseURL returns the device base URL
func (c *DeviceClient) BaseURL() string {
	return c.base.String()
}

// MouseURL returns the full uplink URL for d
func (c *DeviceClient) MouseURL(d input.MouseDelta) string {
	return c.endpoint(MousePath, MouseQuery(d))
}

// ImageURL returns the full URL of one channel image
func (c *DeviceClient) ImageURL(channel int, stamp int64) string {
	return c.endpoint(ImagePathPrefix+strconv.Itoa(channel), ImageQuery(stamp, c.ext))
}

func (c *DeviceClient) endpoint(path, rawQuery string) string {
	u := c.base.ResolveReference(&url.URL{Path: path})
	u.RawQuery = rawQuery
	return u.String()
}

// MouseQuery encodes d as dx=..&dy=..&lc=..&rc=.. in that order
func MouseQuery(d input.MouseDelta) string {
	return fmt.Sprintf("dx=%d&dy=%d&lc=%d&rc=%d", d.DX, d.DY, flag(d.LeftClicked), flag(d.RightClicked))
}

// ImageQuery encodes the cache-busting stamp and the ext hint
func ImageQuery(stamp int64, ext string) string {
	return "t=" + strconv.FormatInt(stamp, 10) + "&ext=" + url.QueryEscape(ext)
}

func flag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SendMouse sends one flushed delta. Only HTTP 200 counts as success; the
// body is ignored.
func (c *DeviceClient) SendMouse(ctx context.Context, d input.MouseDelta) error {
	resp, err := c.mouse.R().SetContext(ctx).Get(c.MouseURL(d))
	if err != nil {
		return errors.Wrap(err, "mouse request")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrBadStatus, "mouse: status %d", resp.StatusCode)
	}
	return nil
}

// FetchFrame loads one channel image. The frame counts as loaded only if
// it decodes as an image.
func (c *DeviceClient) FetchFrame(ctx context.Context, channel int, stamp int64) (Frame, error) {
	resp, err := c.image.R().SetContext(ctx).Get(c.ImageURL(channel, stamp))
	if err != nil {
		return Frame{}, errors.Wrapf(err, "channel %d request", channel)
	}
	if resp.StatusCode != http.StatusOK {
		return Frame{}, errors.Wrapf(ErrBadStatus, "channel %d: status %d", channel, resp.StatusCode)
	}
	data, err := resp.ToBytes()
	if err != nil {
		return Frame{}, errors.Wrapf(err, "channel %d body", channel)
	}
	return DecodeFrame(channel, stamp, data, resp.Header.Get("Content-Type"))
}
