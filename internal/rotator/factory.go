package rotator

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/rjboer/noisemap/internal/connectionmgr"
	"github.com/rjboer/noisemap/internal/logging"
	"github.com/rjboer/noisemap/internal/mdns"
	"github.com/rjboer/noisemap/internal/model"
)

// DiscoverAddress is the address value that selects mDNS discovery.
const DiscoverAddress = "mdns"

// Options selects and configures one rotator driver.
type Options struct {
	// Driver is spid, rotctld or mock.
	Driver string
	// Address is host or host:port for TCP, a device path for serial, or "mdns".
	Address   string
	Port      int
	Transport string
	BaudRate  int
	Config    Config
	// DiscoveryTimeout bounds the mDNS browse.
	DiscoveryTimeout time.Duration
	Logger           logging.Logger
}

// DefaultPort is the rotctld listening port.
const DefaultPort = 4533

// Open constructs and connects the rotator named by opts.Driver.
func Open(ctx context.Context, opts Options) (Rotator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "spid", "rotctld":
		transport, err := connectionmgr.ParseTransport(opts.Transport)
		if err != nil {
			return nil, err
		}
		addr, err := resolveAddress(ctx, opts, transport, logger)
		if err != nil {
			return nil, err
		}
		link := connectionmgr.New(addr, transport)
		if opts.BaudRate > 0 {
			link.BaudRate = opts.BaudRate
		}
		c := NewClient(link, opts.Config, logger)
		if err := c.Open(ctx); err != nil {
			_ = c.Close()
			return nil, err
		}
		return c, nil
	case "mock":
		return NewSimulated(model.Position{}, opts.Config, time.Now().UnixNano(), logger), nil
	default:
		return nil, fmt.Errorf("no support for %q rotators", opts.Driver)
	}
}

func resolveAddress(ctx context.Context, opts Options, transport connectionmgr.Transport, logger logging.Logger) (string, error) {
	if transport == connectionmgr.TransportSerial {
		return opts.Address, nil
	}
	if strings.EqualFold(opts.Address, DiscoverAddress) {
		timeout := opts.DiscoveryTimeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		hosts, err := mdns.Discover(ctx, mdns.RotctldService, timeout)
		if err != nil {
			return "", err
		}
		if len(hosts) == 0 {
			return "", fmt.Errorf("no %s service found on the local network", mdns.RotctldService)
		}
		addr := hosts[0].Address()
		logger.Info("rotator discovered", logging.F("instance", hosts[0].Instance), logging.F("address", addr))
		return addr, nil
	}
	if _, _, err := net.SplitHostPort(opts.Address); err == nil {
		return opts.Address, nil
	}
	port := opts.Port
	if port <= 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(opts.Address, strconv.Itoa(port)), nil
}
