package exchange

import (
	"context"
	"errors"

	"github.com/marcelsud/dmz-exchange/gateway"
	"github.com/marcelsud/dmz-exchange/internal/requestid"
	"github.com/marcelsud/dmz-exchange/message"
	"github.com/marcelsud/dmz-exchange/metrics"
	"github.com/rs/zerolog"
)

/* Service represents the exchange pipeline
 * Uses pointer semantics as it's an API, not data. It keeps no state between
 * requests; everything mutable lives in the injected collaborators.
 */

// Gate decides whether a project may exchange messages
type Gate interface {
	IsAllowed(code string) bool
}

// Store durably records inbound messages
type Store interface {
	Persist(ctx context.Context, msg message.Message) (string, error)
}

// Deliverer forwards outbound messages to the gateway
type Deliverer interface {
	Deliver(ctx context.Context, msg message.Message) (gateway.Ack, error)
}

// UseCase defines the operations exposed to the transport layer
type UseCase interface {
	Send(ctx context.Context, raw []byte) (Receipt, error)
	Receive(ctx context.Context, raw []byte) (Receipt, error)
}

// Receipt describes an acknowledged message
type Receipt struct {
	RequestID string
	MessageID string
	State     State
	Path      string      // inbound only
	Ack       gateway.Ack // outbound only
}

type Service struct {
	validator message.Validator
	gate      Gate
	store     Store
	deliverer Deliverer
	recorder  metrics.Recorder
	logger    zerolog.Logger
}

// NewService creates a new exchange service with dependency injection
func NewService(validator message.Validator, gate Gate, store Store, deliverer Deliverer, recorder metrics.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		validator: validator,
		gate:      gate,
		store:     store,
		deliverer: deliverer,
		recorder:  recorder,
		logger:    logger.With().Str("component", "exchange").Str("schema", validator.Variant().String()).Logger(),
	}
}

// Send validates, gates and forwards a locally authored message
func (s *Service) Send(ctx context.Context, raw []byte) (Receipt, error) {
	msg, err := s.admit(ctx, metrics.Outbound, raw)
	if err != nil {
		return Receipt{}, err
	}

	// past the gate the message is committed; a dropped caller must not abort delivery
	ctx = context.WithoutCancel(ctx)

	ack, err := s.deliverer.Deliver(ctx, msg)
	if err != nil {
		kind := GatewayUnavailable
		if errors.Is(err, gateway.ErrRejected) {
			kind = GatewayRejected
		}
		return Receipt{}, s.reject(ctx, metrics.Outbound, &Rejection{Kind: kind, Stage: Delivered, MessageID: msg.ID, Err: err})
	}
	s.logState(ctx, msg.ID, Delivered)

	return s.acknowledge(ctx, metrics.Outbound, Receipt{MessageID: msg.ID, Ack: ack}), nil
}

// Receive validates, gates and persists a message relayed by the gateway
func (s *Service) Receive(ctx context.Context, raw []byte) (Receipt, error) {
	msg, err := s.admit(ctx, metrics.Inbound, raw)
	if err != nil {
		return Receipt{}, err
	}

	ctx = context.WithoutCancel(ctx)

	path, err := s.store.Persist(ctx, msg)
	if err != nil {
		return Receipt{}, s.reject(ctx, metrics.Inbound, &Rejection{Kind: StoreFailure, Stage: Persisted, MessageID: msg.ID, Err: err})
	}
	s.logState(ctx, msg.ID, Persisted)

	return s.acknowledge(ctx, metrics.Inbound, Receipt{MessageID: msg.ID, Path: path}), nil
}

// admit runs the steps shared by both directions: validation then whitelist
func (s *Service) admit(ctx context.Context, direction metrics.Direction, raw []byte) (message.Message, error) {
	s.logState(ctx, "", Received)

	msg, err := s.validator.Validate(raw)
	if err != nil {
		return message.Message{}, s.reject(ctx, direction, &Rejection{Kind: SchemaRejection, Stage: Validated, Err: err})
	}
	s.logState(ctx, msg.ID, Validated)

	if !s.gate.IsAllowed(msg.Project) {
		return message.Message{}, s.reject(ctx, direction, &Rejection{Kind: WhitelistRejection, Stage: WhitelistChecked, MessageID: msg.ID, Err: ErrProjectNotAllowed})
	}
	s.logState(ctx, msg.ID, WhitelistChecked)

	return msg, nil
}

func (s *Service) acknowledge(ctx context.Context, direction metrics.Direction, r Receipt) Receipt {
	r.RequestID = requestid.FromContext(ctx)
	r.State = Acknowledged
	s.record(ctx, direction, metrics.Acknowledged)
	s.logger.Info().
		Str("request_id", r.RequestID).
		Str("message_id", r.MessageID).
		Str("direction", string(direction)).
		Msg("message acknowledged")
	return r
}

func (s *Service) reject(ctx context.Context, direction metrics.Direction, r *Rejection) error {
	s.record(ctx, direction, r.Kind.outcome())

	event := s.logger.Warn()
	if !r.Kind.IsClientError() {
		event = s.logger.Error()
	}
	event.Err(r.Err).
		Str("request_id", requestid.FromContext(ctx)).
		Str("message_id", r.MessageID).
		Str("direction", string(direction)).
		Str("kind", r.Kind.String()).
		Str("stage", r.Stage.String()).
		Msg("message rejected")
	return r
}

func (s *Service) record(ctx context.Context, direction metrics.Direction, outcome metrics.Outcome) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.Record(ctx, direction, outcome); err != nil {
		s.logger.Warn().Err(err).Msg("recording metrics")
	}
}

func (s *Service) logState(ctx context.Context, messageID string, state State) {
	s.logger.Debug().
		Str("request_id", requestid.FromContext(ctx)).
		Str("message_id", messageID).
		Str("state", state.String()).
		Msg("state transition")
}
