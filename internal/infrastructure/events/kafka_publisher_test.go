package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/events"
)

type mockWriter struct {
	mock.Mock
}

func (m *mockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	args := m.Called(ctx, msgs)
	return args.Error(0)
}

func (m *mockWriter) Close() error {
	return m.Called().Error(0)
}

func TestPublish_MovimientoVaAlTopicoDeMovimientos(t *testing.T) {
	movements, alerts := new(mockWriter), new(mockWriter)
	var sent []kafka.Message
	movements.On("WriteMessages", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]kafka.Message) }).
		Return(nil).Once()

	p := events.NewKafkaPublisherWithWriters(movements, alerts, nil)
	err := p.Publish(context.Background(), "o1:p1", inventory.StockMovedEvent{
		EventType:  inventory.EventStockMoved,
		OwnerID:    "o1",
		ProductID:  "p1",
		Quantity:   decimal.NewFromInt(5),
		Balance:    decimal.NewFromInt(95),
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)
	movements.AssertExpectations(t)
	alerts.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)

	require.Len(t, sent, 1)
	assert.Equal(t, "o1:p1", string(sent[0].Key))
	var body map[string]any
	require.NoError(t, json.Unmarshal(sent[0].Value, &body))
	assert.Equal(t, "stock.moved", body["event_type"])
	assert.Equal(t, "95", body["balance"])
}

func TestPublish_AlertaVaAlTopicoDeAlertas(t *testing.T) {
	movements, alerts := new(mockWriter), new(mockWriter)
	alerts.On("WriteMessages", mock.Anything, mock.Anything).Return(nil).Once()

	p := events.NewKafkaPublisherWithWriters(movements, alerts, nil)
	err := p.Publish(context.Background(), "o1:p1", inventory.StockAlertEvent{EventType: inventory.EventStockAlert, State: "LOW_STOCK"})
	require.NoError(t, err)
	alerts.AssertExpectations(t)
	movements.AssertNotCalled(t, "WriteMessages", mock.Anything, mock.Anything)
}

func TestPublish_ErrorDelBrokerSePropaga(t *testing.T) {
	movements, alerts := new(mockWriter), new(mockWriter)
	movements.On("WriteMessages", mock.Anything, mock.Anything).Return(errors.New("broker caído"))

	p := events.NewKafkaPublisherWithWriters(movements, alerts, nil)
	err := p.Publish(context.Background(), "k", inventory.StockMovedEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker caído")
}

func TestPublish_TipoDesconocido(t *testing.T) {
	p := events.NewKafkaPublisherWithWriters(new(mockWriter), new(mockWriter), nil)
	err := p.Publish(context.Background(), "k", struct{}{})
	assert.Error(t, err)
}
