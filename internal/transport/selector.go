package transport

import (
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrNoBackend means selection found no usable backend and startup cannot
// proceed.
var ErrNoBackend = errors.New("no server backend available")

// Selection is the outcome of backend selection. When the operator forced
// a name matching no descriptor, Descriptor is nil and BareName carries
// the forced label; the supervisor will attempt it and fail loudly.
type Selection struct {
	Descriptor *Descriptor
	BareName   string
}

// Name returns the selected backend name.
func (s Selection) Name() string {
	if s.Descriptor != nil {
		return s.Descriptor.Name
	}
	return s.BareName
}

// Select picks a backend from the descriptor set. A forced name wins
// outright, even when unavailable. A preferred name narrows the
// candidates. Otherwise TLS capability filters first, then the first
// available candidate in precedence order wins.
func Select(descriptors []Descriptor, cfg Config, force, prefer string, tlsRequested bool, logger *zap.Logger) (Selection, error) {
	var unavailable []string

	for i := range descriptors {
		d := &descriptors[i]

		if force != "" {
			if d.Name == force {
				return Selection{Descriptor: d}, nil
			}
			continue
		}

		if prefer != "" {
			if d.Name != prefer {
				continue
			}
		} else if tlsRequested && !d.SupportsTLS {
			continue
		}

		if d.Probe(cfg) {
			if len(unavailable) > 0 {
				logger.Debug("Unavailable server backends",
					zap.String("backends", strings.Join(unavailable, ", ")))
			}
			return Selection{Descriptor: d}, nil
		}
		unavailable = append(unavailable, d.Name)
	}

	if len(unavailable) > 0 {
		logger.Debug("Unavailable server backends",
			zap.String("backends", strings.Join(unavailable, ", ")))
	}

	if force != "" {
		// Unknown forced name: hand back the bare label, the caller will
		// try to start it and surface the failure.
		return Selection{BareName: force}, nil
	}

	return Selection{}, ErrNoBackend
}
