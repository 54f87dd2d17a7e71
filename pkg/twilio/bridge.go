package twilio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/realtime-ai/realtime-coach/pkg/audio"
	"github.com/realtime-ai/realtime-coach/pkg/logger"
	"github.com/realtime-ai/realtime-coach/pkg/trace"
)

// FrameBytes is one 20 ms mu-law frame at 8 kHz. Outbound audio is sent in
// frames of this size.
const FrameBytes = audio.TelephonySampleRate * 20 / 1000

var (
	// ErrNotStarted is returned when sending before the stream's start event.
	ErrNotStarted = errors.New("media stream not started")
	// ErrClosed is returned when sending on a closed bridge.
	ErrClosed = errors.New("media stream closed")
)

// AudioSink consumes one call's converted audio and stream events.
type AudioSink interface {
	// OnAudio receives one inbound frame as base64 PCM16 LE, 16 kHz mono.
	// An error ends the stream.
	OnAudio(ctx context.Context, pcm16 string) error
	OnDTMF(ctx context.Context, digit string)
	OnMark(ctx context.Context, name string)
	Close() error
}

// SinkFactory creates the sink for a stream once its start event arrives.
type SinkFactory func(ctx context.Context, b *Bridge, start StartPayload) (AudioSink, error)

// Bridge runs one Media Streams WebSocket.
type Bridge struct {
	conn *websocket.Conn
	log  *logger.Logger

	// gorilla/websocket allows one concurrent writer.
	writeMu sync.Mutex

	mu        sync.RWMutex
	streamSid string
	callSid   string

	inboundFrames atomic.Int64
	droppedFrames atomic.Int64
	closed        atomic.Bool
}

// NewBridge wraps an upgraded WebSocket. log may be nil.
func NewBridge(conn *websocket.Conn, log *logger.Logger) *Bridge {
	return &Bridge{
		conn: conn,
		log:  logger.OrNop(log).Named("twilio"),
	}
}

// StreamSid returns the stream SID, empty before the start event.
func (b *Bridge) StreamSid() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.streamSid
}

// CallSid returns the call SID, empty before the start event.
func (b *Bridge) CallSid() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.callSid
}

// Stats returns the number of inbound frames delivered and dropped.
func (b *Bridge) Stats() (delivered, dropped int64) {
	return b.inboundFrames.Load(), b.droppedFrames.Load()
}

// Run reads the stream until Twilio sends stop, the socket closes or ctx is
// done. The sink created by factory is closed before Run returns.
func (b *Bridge) Run(ctx context.Context, factory SinkFactory) error {
	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	g.Go(func() error {
		defer close(done)
		return b.readLoop(gctx, factory)
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
			// Unblocks ReadMessage.
			b.Close()
		case <-done:
		}
		return nil
	})

	err := g.Wait()
	b.Close()
	return err
}

func (b *Bridge) readLoop(ctx context.Context, factory SinkFactory) error {
	var sink AudioSink
	defer func() {
		if sink != nil {
			if err := sink.Close(); err != nil {
				b.log.Warn("sink close failed", "error", err)
			}
		}
	}()

	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || b.closed.Load() ||
				websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			_, span := trace.InstrumentStreamError(ctx, b.StreamSid(), err)
			span.End()
			return fmt.Errorf("read media stream: %w", err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("unparseable media stream message", "error", err)
			continue
		}

		switch msg.Event {
		case EventConnected:
			b.log.Debug("media stream connected", "protocol", msg.Protocol, "version", msg.Version)

		case EventStart:
			if msg.Start == nil {
				b.log.Warn("start event missing payload")
				continue
			}
			if sink != nil {
				b.log.Warn("duplicate start event", "stream_sid", msg.Start.StreamSid)
				continue
			}
			b.mu.Lock()
			b.streamSid = msg.Start.StreamSid
			b.callSid = msg.Start.CallSid
			b.mu.Unlock()

			_, span := trace.InstrumentStreamStarted(ctx, msg.Start.StreamSid, msg.Start.CallSid)
			span.End()
			b.log.Info("media stream started",
				"stream_sid", msg.Start.StreamSid,
				"call_sid", msg.Start.CallSid,
				"encoding", msg.Start.MediaFormat.Encoding,
				"sample_rate", msg.Start.MediaFormat.SampleRate)

			s, err := factory(ctx, b, *msg.Start)
			if err != nil {
				return fmt.Errorf("create audio sink: %w", err)
			}
			sink = s

		case EventMedia:
			if sink == nil || msg.Media == nil {
				continue
			}
			if msg.Media.Track != "" && msg.Media.Track != TrackInbound {
				continue
			}
			pcm, err := audio.TelephonyToAIStrict(msg.Media.Payload)
			if err != nil {
				b.droppedFrames.Add(1)
				b.log.Debug("dropping media frame", "chunk", msg.Media.Chunk, "error", err)
				continue
			}
			b.inboundFrames.Add(1)
			if err := sink.OnAudio(ctx, pcm); err != nil {
				return fmt.Errorf("audio sink: %w", err)
			}

		case EventMark:
			if sink != nil && msg.Mark != nil {
				sink.OnMark(ctx, msg.Mark.Name)
			}

		case EventDTMF:
			if sink != nil && msg.DTMF != nil {
				sink.OnDTMF(ctx, msg.DTMF.Digit)
			}

		case EventStop:
			delivered, dropped := b.Stats()
			_, span := trace.InstrumentStreamClosed(ctx, b.StreamSid(), b.CallSid())
			span.End()
			b.log.Info("media stream stopped",
				"call_sid", b.CallSid(),
				"frames", delivered,
				"dropped_frames", dropped)
			return nil

		default:
			b.log.Debug("unknown media stream event", "event", msg.Event)
		}
	}
}

// SendAudio plays base64 PCM16 LE 16 kHz audio to the caller. It is
// converted to mu-law 8 kHz and written as 20 ms media frames.
func (b *Bridge) SendAudio(ctx context.Context, pcm16 string) error {
	sid := b.StreamSid()
	if sid == "" {
		return ErrNotStarted
	}

	payload, err := audio.AIToTelephonyStrict(pcm16)
	if err != nil {
		return err
	}
	mulaw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode converted audio: %w", err)
	}
	_, span := trace.InstrumentAudioTranscode(ctx, "ai_to_telephony", len(pcm16), len(payload))
	defer span.End()

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	for off := 0; off < len(mulaw); off += FrameBytes {
		end := min(off+FrameBytes, len(mulaw))
		msg := Message{
			Event:     EventMedia,
			StreamSid: sid,
			Media: &MediaPayload{
				Payload: base64.StdEncoding.EncodeToString(mulaw[off:end]),
			},
		}
		if err := b.writeLocked(msg); err != nil {
			trace.RecordError(span, err)
			return err
		}
	}
	return nil
}

// SendMark asks Twilio to echo name once the audio sent so far has played.
func (b *Bridge) SendMark(name string) error {
	sid := b.StreamSid()
	if sid == "" {
		return ErrNotStarted
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.writeLocked(Message{Event: EventMark, StreamSid: sid, Mark: &MarkPayload{Name: name}})
}

// ClearAudio discards audio Twilio has buffered but not yet played.
func (b *Bridge) ClearAudio() error {
	sid := b.StreamSid()
	if sid == "" {
		return ErrNotStarted
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.writeLocked(Message{Event: EventClear, StreamSid: sid})
}

func (b *Bridge) writeLocked(msg Message) error {
	if b.closed.Load() {
		return ErrClosed
	}
	if err := b.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Event, err)
	}
	return nil
}

// Close closes the socket. It is safe to call more than once.
func (b *Bridge) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.conn.Close()
}

// Loopback is an AudioSink that plays the caller's audio straight back
// through both codec directions. It is a smoke test for live trunks.
type Loopback struct {
	bridge *Bridge
}

// LoopbackFactory is a SinkFactory creating Loopback sinks.
func LoopbackFactory(_ context.Context, b *Bridge, _ StartPayload) (AudioSink, error) {
	return &Loopback{bridge: b}, nil
}

func (l *Loopback) OnAudio(ctx context.Context, pcm16 string) error {
	return l.bridge.SendAudio(ctx, pcm16)
}

func (l *Loopback) OnDTMF(context.Context, string) {
	_ = l.bridge.ClearAudio()
}

func (l *Loopback) OnMark(context.Context, string) {}

func (l *Loopback) Close() error { return nil }
