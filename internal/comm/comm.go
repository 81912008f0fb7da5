// Package comm implements the communication service (§4.2): drains
// component data sockets and the shared UDP socket, routes messages
// according to GlobalState's routing table, and flushes egress buffers.
package comm

import (
	"errors"
	"log/slog"

	"github.com/caldera-rt/runner/internal/core"
	"github.com/caldera-rt/runner/internal/ipc"
	"github.com/caldera-rt/runner/internal/metrics"
	"github.com/caldera-rt/runner/internal/wire"
)

// DefaultAttemptsPerComponent is K from §4.2 Phase A.
const DefaultAttemptsPerComponent = 5

// Service holds the per-component framed connections and the per-period
// egress buffers; it is reused across periods so buffered partial inbound
// frames survive period boundaries. Egress buffers are cleared at the end
// of every period.
type Service struct {
	logger   *slog.Logger
	udp      *ipc.UDPSocket
	attempts int

	readers map[core.ComponentID]*ipc.FrameReader
	writers map[core.ComponentID]*ipc.FrameWriter

	componentEgress map[core.ComponentID][]wire.Message
	addressEgress   map[string][]wire.Message
}

// New builds a Service. udp may be nil in tests that only exercise
// component-to-component routing.
func New(logger *slog.Logger, udp *ipc.UDPSocket, attemptsPerComponent int) *Service {
	if attemptsPerComponent <= 0 {
		attemptsPerComponent = DefaultAttemptsPerComponent
	}
	return &Service{
		logger:          logger,
		udp:             udp,
		attempts:        attemptsPerComponent,
		readers:         make(map[core.ComponentID]*ipc.FrameReader),
		writers:         make(map[core.ComponentID]*ipc.FrameWriter),
		componentEgress: make(map[core.ComponentID][]wire.Message),
		addressEgress:   make(map[string][]wire.Message),
	}
}

// RunPeriod executes phases A, B, C in order (§4.2).
func (s *Service) RunPeriod(gs *core.GlobalState) {
	s.reconcile(gs)
	s.phaseA(gs)
	s.phaseB(gs)
	s.phaseC(gs)
}

// reconcile adds framed connections for newly-implemented components and
// drops them for components whose Implementation is gone, so readers
// never outlive the socket they wrap.
func (s *Service) reconcile(gs *core.GlobalState) {
	for cid, c := range gs.Components {
		if c.Implementation == nil {
			continue
		}
		if _, ok := s.readers[cid]; !ok {
			s.readers[cid] = ipc.NewFrameReader(int(c.Implementation.DataSock.Fd()))
			s.writers[cid] = ipc.NewFrameWriter(int(c.Implementation.DataSock.Fd()))
		}
	}
	for cid := range s.readers {
		if c, ok := gs.Components[cid]; !ok || c.Implementation == nil {
			delete(s.readers, cid)
			delete(s.writers, cid)
			delete(s.componentEgress, cid)
		}
	}
}

// phaseA drains each running component's data socket up to s.attempts
// times and routes each decoded Message.
func (s *Service) phaseA(gs *core.GlobalState) {
	for cid, c := range gs.Components {
		if !c.Run {
			continue
		}
		reader, ok := s.readers[cid]
		if !ok {
			continue
		}
		for i := 0; i < s.attempts; i++ {
			body, err := reader.Next()
			if err != nil {
				if !errors.Is(err, core.ErrWouldBlock) {
					s.logger.Error("comm: phase A read failed", "component", cid.String(), "err", err)
				}
				break
			}
			if errors.Is(checkFrame(body), core.ErrZeroLengthFrame) {
				continue
			}
			msg, err := wire.DecodeBody(body)
			if err != nil {
				s.logger.Error("comm: phase A decode failed", "component", cid.String(), "err", err)
				metrics.MessagesDroppedTotal.WithLabelValues("decode_error").Inc()
				continue
			}
			s.route(gs, core.ComponentEndpoint(cid), msg)
		}
	}
}

// phaseB drains the shared UDP socket up to N_components * 5 times.
func (s *Service) phaseB(gs *core.GlobalState) {
	if s.udp == nil {
		return
	}
	maxAttempts := len(gs.Components) * 5
	for i := 0; i < maxAttempts; i++ {
		addr, payload, err := s.udp.RecvFrom()
		if err != nil {
			if !errors.Is(err, core.ErrWouldBlock) {
				s.logger.Error("comm: phase B recvfrom failed", "err", err)
			}
			break
		}
		if len(payload) < wire.LengthPrefixSize {
			s.logger.Error("comm: phase B short datagram", "from", addr, "len", len(payload), "err", core.ErrShortFrame)
			metrics.MessagesDroppedTotal.WithLabelValues("short_frame").Inc()
			continue
		}
		body := payload[wire.LengthPrefixSize:]
		if errors.Is(checkFrame(body), core.ErrZeroLengthFrame) {
			continue
		}
		msg, err := wire.DecodeBody(body)
		if err != nil {
			s.logger.Error("comm: phase B decode failed", "from", addr, "err", err)
			metrics.MessagesDroppedTotal.WithLabelValues("decode_error").Inc()
			continue
		}
		s.route(gs, core.AddressEndpoint(addr), msg)
	}
}

// route looks up (source, channel_id) in gs.Routes and appends the
// message to the appropriate egress buffer, or drops it if there is no
// route (§4.2).
func (s *Service) route(gs *core.GlobalState, source core.Endpoint, msg wire.Message) {
	key := core.RouteEndpoint{Endpoint: source, ChannelID: msg.ChannelID}
	target, ok := gs.Routes[key]
	if !ok {
		s.logger.Error("comm: no route", "source", key.String(), "err", core.ErrRouteNotFound)
		metrics.MessagesDroppedTotal.WithLabelValues("no_route").Inc()
		return
	}
	metrics.MessagesRoutedTotal.WithLabelValues(sourceKindLabel(source.Kind)).Inc()
	switch target.Endpoint.Kind {
	case core.EndpointComponent:
		s.componentEgress[target.Endpoint.Component] = append(s.componentEgress[target.Endpoint.Component], msg)
	case core.EndpointAddress:
		s.addressEgress[target.Endpoint.Address] = append(s.addressEgress[target.Endpoint.Address], msg)
	case core.EndpointRunner:
		gs.Inbox[target.ChannelID] = append(gs.Inbox[target.ChannelID], msg)
	}
}

// checkFrame reports core.ErrZeroLengthFrame for an empty frame, which
// §4.6/§8 require skipping without side effect (no log, no metric, no
// route), and nil otherwise.
func checkFrame(body []byte) error {
	if len(body) == 0 {
		return core.ErrZeroLengthFrame
	}
	return nil
}

func sourceKindLabel(k core.EndpointKind) string {
	switch k {
	case core.EndpointComponent:
		return "component"
	case core.EndpointAddress:
		return "address"
	case core.EndpointRunner:
		return "runner"
	default:
		return "unknown"
	}
}

// phaseC flushes every egress buffer and clears it unconditionally,
// whether or not the write succeeded (§4.2).
func (s *Service) phaseC(gs *core.GlobalState) {
	for cid, msgs := range s.componentEgress {
		c, ok := gs.Components[cid]
		if !ok || !c.Run {
			delete(s.componentEgress, cid)
			continue
		}
		writer := s.writers[cid]
		if writer != nil {
			for _, m := range msgs {
				if err := writer.WriteFrame(wire.Encode(m)); err != nil && !errors.Is(err, core.ErrWouldBlock) {
					s.logger.Error("comm: phase C write failed", "component", cid.String(), "err", err)
				}
			}
		}
		delete(s.componentEgress, cid)
	}

	if s.udp != nil {
		for addr, msgs := range s.addressEgress {
			for _, m := range msgs {
				if err := s.udp.SendTo(addr, wire.Encode(m)); err != nil && !errors.Is(err, core.ErrWouldBlock) {
					s.logger.Error("comm: phase C sendto failed", "addr", addr, "err", err)
				}
			}
			delete(s.addressEgress, addr)
		}
	} else {
		for addr := range s.addressEgress {
			delete(s.addressEgress, addr)
		}
	}
}
