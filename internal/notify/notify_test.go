package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idsguard/internal/config"
	"idsguard/internal/model"
)

func testAlerts() []model.Alert {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []model.Alert{
		{ID: "a1", Timestamp: ts, Source: model.SourceFileUpload, Confidence: 0.9, Details: map[string]any{"destination_port": 22.0}},
		{ID: "a2", Timestamp: ts, Source: model.SourceFileUpload, Confidence: 0.7, Details: map[string]any{}},
	}
}

type fakeRedis struct {
	channel  string
	messages [][]byte
	err      error
	closed   bool
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.channel = channel
	f.messages = append(f.messages, message.([]byte))
	cmd.SetVal(1)
	return cmd
}

func (f *fakeRedis) Close() error {
	f.closed = true
	return nil
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestRedisPublishesJSON(t *testing.T) {
	fr := &fakeRedis{}
	r := &Redis{client: fr, channel: "idsguard:alerts"}
	require.NoError(t, r.Publish(context.Background(), testAlerts()))
	assert.Equal(t, "idsguard:alerts", fr.channel)
	require.Len(t, fr.messages, 2)
	var got model.Alert
	require.NoError(t, json.Unmarshal(fr.messages[0], &got))
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, 22.0, got.Details["destination_port"])
	require.NoError(t, r.Close())
	assert.True(t, fr.closed)
}

func TestKafkaKeysByAlertID(t *testing.T) {
	fw := &fakeWriter{}
	k := &Kafka{writer: fw}
	require.NoError(t, k.Publish(context.Background(), testAlerts()))
	require.Len(t, fw.msgs, 2)
	assert.Equal(t, "a2", string(fw.msgs[1].Key))
	assert.Equal(t, "File Upload", string(fw.msgs[0].Headers[0].Value))
}

func TestMultiAttemptsEveryPublisher(t *testing.T) {
	fr := &fakeRedis{err: errors.New("connection refused")}
	fw := &fakeWriter{}
	m := Multi{&Redis{client: fr, channel: "c"}, &Kafka{writer: fw}}
	err := m.Publish(context.Background(), testAlerts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
	assert.Len(t, fw.msgs, 2)

	assert.NoError(t, m.Publish(context.Background(), nil))
}

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(config.NotifyConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = FromConfig(config.NotifyConfig{Redis: config.RedisConfig{Enabled: true, URL: "://bad"}}, nil)
	assert.Error(t, err)

	p, err = FromConfig(config.NotifyConfig{
		Redis: config.RedisConfig{Enabled: true, URL: "redis://localhost:6379/0", Channel: "c"},
		Kafka: config.KafkaConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "t"},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, p.(Multi), 2)
	require.NoError(t, p.Close())
}
