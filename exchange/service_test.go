package exchange_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/marcelsud/dmz-exchange/exchange"
	"github.com/marcelsud/dmz-exchange/exchange/mocks"
	"github.com/marcelsud/dmz-exchange/gateway"
	"github.com/marcelsud/dmz-exchange/internal/requestid"
	"github.com/marcelsud/dmz-exchange/message"
	"github.com/marcelsud/dmz-exchange/metrics"
	metricsmocks "github.com/marcelsud/dmz-exchange/metrics/mocks"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const msgID = "123e4567-e89b-12d3-a456-426614174000"

func strictPayload(project string) []byte {
	return []byte(fmt.Sprintf(`{
		"ID": %q,
		"Project": %q,
		"Test ID": "T001",
		"Timestamp": "2026-01-30T11:22:33",
		"Test Status": "PASS",
		"Data": {"key1": "value1"}
	}`, msgID, project))
}

type fixture struct {
	gate      *mocks.Gate
	store     *mocks.Store
	deliverer *mocks.Deliverer
	recorder  *metricsmocks.Recorder
	service   *exchange.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	f := fixture{
		gate:      mocks.NewGate(t),
		store:     mocks.NewStore(t),
		deliverer: mocks.NewDeliverer(t),
		recorder:  metricsmocks.NewRecorder(t),
	}
	f.service = exchange.NewService(message.NewStrictSchema(), f.gate, f.store, f.deliverer, f.recorder, zerolog.Nop())
	return f
}

func matchMessage(id, project string) interface{} {
	return mock.MatchedBy(func(m message.Message) bool {
		return m.ID == id && m.Project == project
	})
}

func requireRejection(t *testing.T, err error, kind exchange.Kind) *exchange.Rejection {
	t.Helper()
	r, ok := exchange.AsRejection(err)
	require.True(t, ok, "expected *exchange.Rejection, got %v", err)
	assert.Equal(t, kind, r.Kind)
	return r
}

func TestSend(t *testing.T) {
	ctx := requestid.WithID(context.Background(), "req-1")

	t.Run("success - whitelisted message is delivered", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ABC").Return(true)
		f.deliverer.On("Deliver", mock.Anything, matchMessage(msgID, "ABC")).
			Return(gateway.Ack{StatusCode: http.StatusOK, Attempts: 1}, nil)
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.Acknowledged).Return(nil)

		receipt, err := f.service.Send(ctx, strictPayload("ABC"))
		require.NoError(t, err)
		assert.Equal(t, msgID, receipt.MessageID)
		assert.Equal(t, "req-1", receipt.RequestID)
		assert.Equal(t, exchange.Acknowledged, receipt.State)
		assert.Equal(t, http.StatusOK, receipt.Ack.StatusCode)
	})

	t.Run("success - delivery is not cancelled with the caller", func(t *testing.T) {
		f := setup(t)
		cctx, cancel := context.WithCancel(ctx)
		f.gate.On("IsAllowed", "ABC").Run(func(mock.Arguments) { cancel() }).Return(true)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything).Return(gateway.Ack{}, nil).
			Run(func(args mock.Arguments) {
				assert.NoError(t, args.Get(0).(context.Context).Err())
			})
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.Acknowledged).Return(nil)

		_, err := f.service.Send(cctx, strictPayload("ABC"))
		require.NoError(t, err)
	})

	t.Run("error - absent project never reaches the gateway", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ZZZ").Return(false)
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.WhitelistRejected).Return(nil)

		_, err := f.service.Send(ctx, strictPayload("ZZZ"))
		r := requireRejection(t, err, exchange.WhitelistRejection)
		assert.Equal(t, exchange.WhitelistChecked, r.Stage)
		assert.ErrorIs(t, err, exchange.ErrProjectNotAllowed)
		assert.True(t, r.Kind.IsClientError())
		f.deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
		f.store.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
	})

	t.Run("error - schema rejection skips the gate", func(t *testing.T) {
		f := setup(t)
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.SchemaRejected).Return(nil)

		_, err := f.service.Send(ctx, []byte(`{"ID":"nope"}`))
		r := requireRejection(t, err, exchange.SchemaRejection)
		assert.ErrorIs(t, err, message.ErrInvalid)
		assert.Equal(t, exchange.Validated, r.Stage)
		f.gate.AssertNotCalled(t, "IsAllowed", mock.Anything)
	})

	t.Run("error - gateway rejection is a client error", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ABC").Return(true)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything).
			Return(gateway.Ack{}, fmt.Errorf("%w: gateway returned 422", gateway.ErrRejected))
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.GatewayRejected).Return(nil)

		_, err := f.service.Send(ctx, strictPayload("ABC"))
		r := requireRejection(t, err, exchange.GatewayRejected)
		assert.True(t, r.Kind.IsClientError())
		assert.Equal(t, msgID, r.MessageID)
	})

	t.Run("error - gateway unavailable is a server error", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ABC").Return(true)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything).
			Return(gateway.Ack{}, fmt.Errorf("%w after 3 attempts", gateway.ErrUnavailable))
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.GatewayUnavailable).Return(nil)

		_, err := f.service.Send(ctx, strictPayload("ABC"))
		r := requireRejection(t, err, exchange.GatewayUnavailable)
		assert.False(t, r.Kind.IsClientError())
	})

	t.Run("success - metrics failure does not fail the request", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ABC").Return(true)
		f.deliverer.On("Deliver", mock.Anything, mock.Anything).Return(gateway.Ack{}, nil)
		f.recorder.On("Record", mock.Anything, metrics.Outbound, metrics.Acknowledged).Return(errors.New("redis down"))

		_, err := f.service.Send(ctx, strictPayload("ABC"))
		require.NoError(t, err)
	})
}

func TestReceive(t *testing.T) {
	ctx := requestid.WithID(context.Background(), "req-2")

	t.Run("success - whitelisted message is persisted", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ABC").Return(true)
		f.store.On("Persist", mock.Anything, matchMessage(msgID, "ABC")).Return("/data/ABC/"+msgID+".json", nil)
		f.recorder.On("Record", mock.Anything, metrics.Inbound, metrics.Acknowledged).Return(nil)

		receipt, err := f.service.Receive(ctx, strictPayload("ABC"))
		require.NoError(t, err)
		assert.Equal(t, msgID, receipt.MessageID)
		assert.Equal(t, "/data/ABC/"+msgID+".json", receipt.Path)
		assert.Equal(t, exchange.Acknowledged, receipt.State)
	})

	t.Run("error - disabled project is treated like an absent one", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "DIS").Return(false)
		f.recorder.On("Record", mock.Anything, metrics.Inbound, metrics.WhitelistRejected).Return(nil)

		_, err := f.service.Receive(ctx, strictPayload("DIS"))
		requireRejection(t, err, exchange.WhitelistRejection)
		f.store.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything)
		f.deliverer.AssertNotCalled(t, "Deliver", mock.Anything, mock.Anything)
	})

	t.Run("error - store failure is a server error", func(t *testing.T) {
		f := setup(t)
		f.gate.On("IsAllowed", "ABC").Return(true)
		f.store.On("Persist", mock.Anything, mock.Anything).Return("", errors.New("failed to persist message"))
		f.recorder.On("Record", mock.Anything, metrics.Inbound, metrics.StoreFailed).Return(nil)

		_, err := f.service.Receive(ctx, strictPayload("ABC"))
		r := requireRejection(t, err, exchange.StoreFailure)
		assert.False(t, r.Kind.IsClientError())
		assert.Equal(t, exchange.Persisted, r.Stage)
	})

	t.Run("error - body that is not JSON is a schema rejection", func(t *testing.T) {
		f := setup(t)
		f.recorder.On("Record", mock.Anything, metrics.Inbound, metrics.SchemaRejected).Return(nil)

		_, err := f.service.Receive(ctx, []byte("hello"))
		requireRejection(t, err, exchange.SchemaRejection)
	})
}

func TestReceive_PermissiveVariant(t *testing.T) {
	gate := mocks.NewGate(t)
	store := mocks.NewStore(t)
	service := exchange.NewService(message.NewPermissiveSchema(), gate, store, mocks.NewDeliverer(t), metrics.NewMemoryCollector(), zerolog.Nop())

	raw, err := json.Marshal(map[string]any{
		"ID": msgID, "Project": "ABC", "TestID": "T1", "Area": "North",
		"Status": "OK", "Date": "30012026T11:22:33", "Data": map[string]any{"n": 1},
	})
	require.NoError(t, err)

	gate.On("IsAllowed", "ABC").Return(true)
	store.On("Persist", mock.Anything, mock.MatchedBy(func(m message.Message) bool {
		return m.Variant == message.Permissive && m.Area == "North"
	})).Return("/data/2026/01/30/"+msgID+".json", nil)

	receipt, err := service.Receive(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, msgID, receipt.MessageID)
}
