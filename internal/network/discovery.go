package network

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/remeh/sizedwaitgroup"
)

// DiscoveredDevice represents a KVM device found on the network
type DiscoveredDevice struct {
	IP      string `json:"ip"`
	Port    int    `json:"port"`
	BaseURL string `json:"base_url"`
	Format  string `json:"format"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

const (
	scanParallelism = 32
	probeTimeout    = 500 * time.Millisecond
)

// GetLocalIP returns the primary local IP address
func GetLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// ScanDevices scans the local /24 for hosts serving channel 0 images
func ScanDevices(ctx context.Context, port int) ([]DiscoveredDevice, error) {
	localIP, err := GetLocalIP()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get local IP")
	}

	parts := strings.Split(localIP, ".")
	if len(parts) != 4 {
		return nil, errors.Errorf("invalid IP address format: %s", localIP)
	}
	subnet := strings.Join(parts[:3], ".")

	var (
		devices []DiscoveredDevice
		mu      sync.Mutex
	)
	wg := sizedwaitgroup.New(scanParallelism)

	for i := 1; i <= 254; i++ {
		ip := fmt.Sprintf("%s.%d", subnet, i)
		if ip == localIP {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add()
		go func(ip string) {
			defer wg.Done()
			if dev, ok := ProbeDevice(ctx, ip, port); ok {
				mu.Lock()
				devices = append(devices, dev)
				mu.Unlock()
			}
		}(ip)
	}
	wg.Wait()

	sort.Slice(devices, func(i, j int) bool { return devices[i].IP < devices[j].IP })
	return devices, ctx.Err()
}

// ProbeDevice checks whether ip:port answers cgi-bin/getimg0 with an image
func ProbeDevice(ctx context.Context, ip string, port int) (DiscoveredDevice, bool) {
	base := fmt.Sprintf("http://%s/", net.JoinHostPort(ip, fmt.Sprint(port)))
	client, err := NewDeviceClient(base, DeviceOptions{ImageTimeout: probeTimeout})
	if err != nil {
		return DiscoveredDevice{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	frame, err := client.FetchFrame(ctx, 0, time.Now().UnixMilli())
	if err != nil {
		return DiscoveredDevice{}, false
	}

	log.Debugf("Discovery: Found device at %s (%s %dx%d)", base, frame.Format, frame.Width, frame.Height)
	return DiscoveredDevice{
		IP:      ip,
		Port:    port,
		BaseURL: base,
		Format:  frame.Format,
		Width:   frame.Width,
		Height:  frame.Height,
	}, true
}

// GetLocalIPs returns all available local IPv4 addresses
func GetLocalIPs() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var ips []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip = ip.To4(); ip != nil {
				ips = append(ips, ip.String())
			}
		}
	}
	return ips, nil
}
