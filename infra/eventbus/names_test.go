package eventbus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/amirasaad/autotransfer/pkg/config"
	"github.com/amirasaad/autotransfer/pkg/domain/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	tc := events.EventTypeTransactionCompleted
	assert.Equal(t, "rules:events:transaction:completed", streamNameFor("rules:", tc))
	assert.Equal(t, "autotransfer:dlq:transaction:completed", dlqStreamName("", tc))
	assert.Equal(t, "autotransfer:group:schedule:tick", groupNameFor(" ", events.EventTypeScheduleTick))
	assert.Equal(t, "app.transaction.completed", topicNameFor("app", tc))
	assert.Equal(t, "autotransfer.dlq.schedule.tick", dlqTopicNameFor("", events.EventTypeScheduleTick))
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, parseBrokers(" a:9092, ,b:9092,"))
	assert.Empty(t, parseBrokers(""))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	due := time.Date(2026, 3, 4, 0, 5, 0, 0, time.UTC)
	tick := events.NewScheduleTick(uuid.New(), uuid.New(), due, due)

	raw, err := encodeEnvelope(tick)
	require.NoError(t, err)

	decoded, err := decodeEnvelope(raw)
	require.NoError(t, err)
	got, ok := decoded.(*events.ScheduleTick)
	require.True(t, ok)
	assert.Equal(t, tick.EventID, got.EventID)
	assert.True(t, due.Equal(got.DueAt))
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	unknown, _ := json.Marshal(envelope{Type: "Nope.Event", Payload: json.RawMessage(`{}`)})
	cases := map[string][]byte{
		"garbage":      []byte("not json"),
		"missing type": []byte(`{"payload":{}}`),
		"unknown type": unknown,
		"bad payload":  []byte(`{"type":"Schedule.Tick","payload":"x"}`),
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeEnvelope(raw)
			assert.Error(t, err)
		})
	}
}

func TestSASLAndTLSConfig(t *testing.T) {
	m, err := buildKafkaSASLMechanism(&config.EventBus{})
	require.NoError(t, err)
	assert.Nil(t, m)

	_, err = buildKafkaSASLMechanism(&config.EventBus{SASLUsername: "svc"})
	assert.Error(t, err)

	m, err = buildKafkaSASLMechanism(&config.EventBus{SASLUsername: "svc", SASLPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "PLAIN", m.Name())

	tlsCfg, err := buildKafkaTLSConfig(&config.EventBus{})
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	_, err = buildKafkaTLSConfig(&config.EventBus{TLSEnabled: true, TLSCAFile: "/does/not/exist.pem"})
	assert.Error(t, err)

	dialer, transport, err := newKafkaDialer(&config.EventBus{TLSEnabled: true, TLSSkipVerify: true})
	require.NoError(t, err)
	require.NotNil(t, dialer.TLS)
	assert.True(t, dialer.TLS.InsecureSkipVerify)
	assert.NotNil(t, transport)
}

func TestNewWithKafkaRequiresBrokers(t *testing.T) {
	_, err := NewWithKafka(&config.EventBus{KafkaBrokers: " , "}, nil)
	assert.Error(t, err)
	_, err = NewWithKafka(nil, nil)
	assert.Error(t, err)
}
