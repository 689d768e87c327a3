package topology

import (
	"context"
	"sync"

	"github.com/noironetworks/neutron/pkg/stores"
	"github.com/noironetworks/neutron/pkg/telemetry"
)

// LinkApplier applies one link state to the fabric. engine.Manager
// implements it.
type LinkApplier interface {
	UpdateLink(ctx context.Context, link stores.HostLink) error
}

// Service serializes link reports from every agent onto the engine.
type Service struct {
	mu      sync.Mutex
	applier LinkApplier
	logger  *telemetry.Logger
}

var _ Reporter = (*Service)(nil)

// NewService creates a Service applying links through applier.
func NewService(applier LinkApplier, logger *telemetry.Logger) *Service {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return &Service{
		applier: applier,
		logger:  logger.NewComponentLogger("topology-service"),
	}
}

// UpdateLink implements Reporter. Reports are applied one at a time.
func (s *Service) UpdateLink(ctx context.Context, link stores.HostLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.logger.WithField("host", link.Host).WithField("ifname", link.Ifname)
	if link.SwitchID == "" {
		logger.Info("removing host link")
	} else {
		logger.WithField("switch", link.SwitchID).
			WithField("port", link.Module+"/"+link.Port).
			Debug("applying host link")
	}

	if err := s.applier.UpdateLink(ctx, link); err != nil {
		logger.WithError(err).Error("failed to apply host link")
		return err
	}
	return nil
}
