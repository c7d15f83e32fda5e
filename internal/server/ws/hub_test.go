package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/simexchange/internal/domain"
)

type fakeBus struct {
	subs   map[string]chan []byte
	stream []domain.StreamMessage
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: map[string]chan []byte{
		domain.ChannelDeploy:     make(chan []byte, 8),
		domain.ChannelCollateral: make(chan []byte, 8),
	}}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.subs[channel] <- payload
	return nil
}

func (b *fakeBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	return b.subs[channel], nil
}

func (b *fakeBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *fakeBus) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	var out []domain.StreamMessage
	for _, m := range b.stream {
		if m.ID > lastID {
			out = append(out, m)
		}
	}
	return out, nil
}

func startHub(t *testing.T, bus domain.SignalBus) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(bus, nil, Config{Mode: "serve"})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	var s structpb.Struct
	require.NoError(t, proto.Unmarshal(data, &s))
	return s.AsMap()
}

func TestHubStatusAndBroadcast(t *testing.T) {
	bus := newFakeBus()
	conn := dial(t, startHub(t, bus)+"/ws")

	status := readFrame(t, conn)
	assert.Equal(t, "status", status["channel"])
	payload := status["payload"].(map[string]any)
	assert.Equal(t, "serve", payload["mode"])
	assert.Equal(t, true, payload["ws_connected"])

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelDeploy,
		[]byte(`{"sessionId":"s1","status":"success"}`)))

	frame := readFrame(t, conn)
	assert.Equal(t, domain.ChannelDeploy, frame["channel"])
	assert.Equal(t, map[string]any{"sessionId": "s1", "status": "success"}, frame["payload"])
}

func TestHubUnsubscribe(t *testing.T) {
	bus := newFakeBus()
	conn := dial(t, startHub(t, bus)+"/ws")
	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{domain.ChannelDeploy}}))
	// The read pump handles the request asynchronously; give it time
	// before publishing.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelDeploy, []byte(`{"n":1}`)))
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelCollateral, []byte(`{"n":2}`)))

	frame := readFrame(t, conn)
	assert.Equal(t, domain.ChannelCollateral, frame["channel"])
}

func TestHubReplay(t *testing.T) {
	bus := newFakeBus()
	bus.stream = []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"attempt":1}`)},
		{ID: "2-0", Payload: []byte(`{"attempt":2}`)},
		{ID: "3-0", Payload: []byte(`{"attempt":3}`)},
	}
	conn := dial(t, startHub(t, bus)+"/ws?since=1-0")

	readFrame(t, conn)
	first := readFrame(t, conn)
	assert.Equal(t, "2-0", first["id"])
	assert.Equal(t, map[string]any{"attempt": float64(2)}, first["payload"])
	second := readFrame(t, conn)
	assert.Equal(t, "3-0", second["id"])
}

func TestEncodeFrameRejectsInvalidJSON(t *testing.T) {
	_, err := EncodeFrame(domain.ChannelDeploy, "", []byte("not json"))
	require.Error(t, err)
}
