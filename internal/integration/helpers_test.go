//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/station-qc/internal/adapter/csvstream"
	"github.com/couchcryptid/station-qc/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the test and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("station-qc-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// loadMockPackets reads the sample observation CSV and encodes every row in
// the JSON wire form.
func loadMockPackets(t *testing.T) [][]byte {
	t.Helper()
	packets, err := csvstream.LoadFile(context.Background(), filepath.Join("..", "..", "data", "mock", "sample_observations.csv"))
	require.NoError(t, err)

	out := make([][]byte, 0, len(packets))
	for _, p := range packets {
		cp, ok := p.(domain.CompositePacket)
		require.True(t, ok)
		out = append(out, encodeComposite(t, cp))
	}
	return out
}

func encodeComposite(t *testing.T, p domain.CompositePacket) []byte {
	t.Helper()
	wire := map[string]any{
		"type":       domain.KindComposite,
		"station_id": p.StationID,
		"metadata":   p.Metadata,
	}
	if !p.Timestamp.IsZero() {
		wire["timestamp"] = p.Timestamp.Format(time.RFC3339)
	}
	for v, value := range p.Values {
		wire[string(v)] = value
	}
	for _, v := range p.Invalid {
		wire[string(v)] = "ERR"
	}
	neighbors := make([]float64, 0, len(p.Neighbors))
	for _, n := range p.Neighbors {
		if n.Value != nil {
			neighbors = append(neighbors, *n.Value)
		}
	}
	wire["neighbor_temp_values"] = neighbors

	data, err := json.Marshal(wire)
	require.NoError(t, err)
	return data
}
