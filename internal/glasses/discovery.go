package glasses

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/g1ctl/internal/transport"
)

// DefaultScanTimeout bounds a discovery scan.
const DefaultScanTimeout = 15 * time.Second

// Discovery scans for the two earpieces, telling them apart by the side
// marker embedded in their advertised names.
type Discovery struct {
	scanner      transport.Scanner
	logger       *logrus.Logger
	leftPattern  string
	rightPattern string
	timeout      time.Duration
}

// NewDiscovery creates a discovery helper. Empty patterns select the vendor
// defaults, a zero timeout selects DefaultScanTimeout.
func NewDiscovery(scanner transport.Scanner, leftPattern, rightPattern string, timeout time.Duration, logger *logrus.Logger) *Discovery {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if leftPattern == "" {
		leftPattern = "_L_"
	}
	if rightPattern == "" {
		rightPattern = "_R_"
	}
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	return &Discovery{
		scanner:      scanner,
		logger:       logger,
		leftPattern:  leftPattern,
		rightPattern: rightPattern,
		timeout:      timeout,
	}
}

// Find scans until both sides are seen or the timeout elapses. It returns
// an error unless both sides were found.
func (d *Discovery) Find(ctx context.Context) (map[transport.Side]transport.Advertisement, error) {
	scanCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	d.logger.WithField("timeout", d.timeout).Info("Scanning for glasses")

	// Advertisement callbacks arrive on the BLE stack's goroutine.
	seen := hashmap.New[string, transport.Advertisement]()
	found := hashmap.New[int, transport.Advertisement]()

	err := d.scanner.Scan(scanCtx, false, func(adv transport.Advertisement) {
		if adv.Name == "" {
			return
		}
		if _, dup := seen.GetOrInsert(adv.Address, adv); dup {
			return
		}
		switch {
		case strings.Contains(adv.Name, d.leftPattern):
			found.Set(int(transport.Left), adv)
		case strings.Contains(adv.Name, d.rightPattern):
			found.Set(int(transport.Right), adv)
		default:
			return
		}
		d.logger.WithFields(logrus.Fields{
			"name":    adv.Name,
			"address": adv.Address,
			"rssi":    adv.RSSI,
		}).Info("Discovered earpiece")
		if found.Len() == 2 {
			cancel() // both sides seen, stop early
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	result := make(map[transport.Side]transport.Advertisement, 2)
	found.Range(func(key int, adv transport.Advertisement) bool {
		result[transport.Side(key)] = adv
		return true
	})

	var missing []string
	for _, side := range transport.Sides() {
		if _, ok := result[side]; !ok {
			missing = append(missing, side.String())
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("discovery incomplete, missing %s earpiece(s)", strings.Join(missing, " and "))
	}
	return result, nil
}
