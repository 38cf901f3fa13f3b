// ABOUTME: Public constructors and re-exported types
// ABOUTME: Thin layer over the internal coordinator, participant and discovery packages
package berkeley

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/harperreed/berkeley-go/internal/coordinator"
	"github.com/harperreed/berkeley-go/internal/discovery"
	"github.com/harperreed/berkeley-go/internal/participant"
	"github.com/harperreed/berkeley-go/internal/protocol"
	"github.com/harperreed/berkeley-go/internal/transport"
)

type (
	Coordinator       = coordinator.Coordinator
	CoordinatorConfig = coordinator.Config
	CycleResult       = coordinator.CycleResult
	ParticipantInfo   = coordinator.ParticipantInfo

	Participant       = participant.Participant
	ParticipantConfig = participant.Config
	ParticipantState  = participant.State
	ParticipantStats  = participant.Stats
	Correction        = participant.Correction

	BindError      = coordinator.BindError
	ConnectError   = participant.ConnectError
	DecodeError    = protocol.DecodeError
	TransportError = transport.TransportError
)

const (
	TransportTCP       = transport.KindTCP
	TransportWebSocket = transport.KindWebSocket
)

// NewCoordinator creates a coordinator; call Start, or Listen then Serve
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	return coordinator.New(config)
}

// NewParticipant creates a participant; call Connect then Run
func NewParticipant(config ParticipantConfig) *Participant {
	return participant.New(config)
}

// Discover browses mDNS for a coordinator and returns its address and transport
func Discover(ctx context.Context, timeout time.Duration, logger logr.Logger) (addr, kind string, err error) {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	mgr := discovery.NewManager(discovery.Config{Logger: logger})
	defer mgr.Stop()

	info, err := mgr.WaitForCoordinator(ctx)
	if err != nil {
		return "", "", err
	}
	return info.Addr(), info.Transport, nil
}
