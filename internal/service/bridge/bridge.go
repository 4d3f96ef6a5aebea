// Package bridge runs the two relay loops that connect one client session to its provider.
package bridge

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-relay/backend/internal/metrics"
	speechmodel "github.com/zhouzirui/z-relay/backend/internal/model/speech"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

// ErrNoUpstream is returned by Run when the session has no provider connection bound.
var ErrNoUpstream = errors.New("session has no upstream connection")

// Bridge relays audio client→provider and transcripts provider→client for one session.
type Bridge struct {
	registry *session.Registry
	session  *session.Session
	decoder  speech.Decoder
	metrics  *metrics.Metrics
	logger   *log.Logger
}

// New creates a bridge for an active session.
func New(registry *session.Registry, sess *session.Session, decoder speech.Decoder, m *metrics.Metrics, logger *log.Logger) *Bridge {
	return &Bridge{
		registry: registry,
		session:  sess,
		decoder:  decoder,
		metrics:  m,
		logger:   logger.WithPrefix("bridge").With("session", sess.ID),
	}
}

// Run blocks until either loop ends or ctx is cancelled. Whatever ends first, both
// connections are closed and the session is removed from the registry before Run returns.
// Client disconnects, stop commands and a finished provider stream return nil.
func (b *Bridge) Run(ctx context.Context) error {
	started := time.Now()
	defer b.registry.Remove(b.session.ID)

	upstream := b.session.Upstream()
	if upstream == nil {
		_ = b.session.Close()
		return ErrNoUpstream
	}
	downstream := b.session.Downstream()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		return b.pumpAudio(gctx, downstream, upstream)
	})
	g.Go(func() error {
		defer cancel()
		return b.pumpTranscripts(gctx, upstream, downstream)
	})
	g.Go(func() error {
		// 关闭连接以唤醒仍阻塞在读取上的另一个循环
		<-gctx.Done()
		_ = b.session.Close()
		return nil
	})

	err := g.Wait()
	if err != nil {
		kind := speech.ErrorKind(err)
		b.metrics.SessionError(kind)
		b.logger.Warn("session ended with error", "kind", kind, "err", err, "duration", time.Since(started))
		return err
	}

	b.logger.Info("session ended", "duration", time.Since(started))
	return nil
}

// pumpAudio forwards client frames to the provider one at a time.
func (b *Bridge) pumpAudio(ctx context.Context, downstream session.Downstream, upstream session.Upstream) error {
	for {
		messageType, data, err := downstream.ReadMessage()
		if err != nil {
			if b.ending(ctx) || speech.IsDisconnect(err) {
				b.logger.Debug("client disconnected")
				return nil
			}
			return &speech.ConnectionError{Op: "read client", Err: err}
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := upstream.WriteMessage(websocket.BinaryMessage, data); err != nil {
				if b.ending(ctx) {
					return nil
				}
				b.notifyClient(downstream, "transcription provider connection lost")
				return &speech.ConnectionError{Op: "forward audio", Err: err}
			}
			b.metrics.AudioForwarded(len(data))

		case websocket.TextMessage:
			cmd, err := speech.ParseControl(data)
			if err != nil {
				b.logger.Warn("invalid control message", "err", err)
				continue
			}
			switch cmd.Event {
			case speechmodel.EventStopTranscription:
				b.logger.Info("stop requested by client")
				return nil
			case speechmodel.EventStartTranscription:
				b.logger.Debug("transcription already started")
			default:
				b.logger.Warn("unsupported control event", "event", cmd.Event)
			}
		}
	}
}

// pumpTranscripts decodes provider messages and emits the resulting events in order.
func (b *Bridge) pumpTranscripts(ctx context.Context, upstream session.Upstream, downstream session.Downstream) error {
	for {
		_, data, err := upstream.ReadMessage()
		if err != nil {
			if b.ending(ctx) {
				return nil
			}
			if speech.IsClosure(err) {
				b.logger.Info("provider closed the connection")
				return nil
			}
			b.notifyClient(downstream, "transcription provider connection lost")
			return &speech.ConnectionError{Op: "read provider", Err: err}
		}

		events, feedErr := b.decoder.Feed(data)
		for _, ev := range events {
			if err := downstream.Emit(ev.Name(), ev); err != nil {
				if b.ending(ctx) {
					return nil
				}
				return &speech.ConnectionError{Op: "emit " + ev.Name(), Err: err}
			}
			b.metrics.TranscriptEmitted(ev.Name())
		}

		var (
			protoErr    *speech.ProtocolError
			providerErr *speech.ProviderError
		)
		switch {
		case feedErr == nil:
		case errors.As(feedErr, &protoErr):
			b.metrics.MalformedMessage()
			b.logger.Warn("skipping malformed provider message", "err", feedErr)
		case errors.Is(feedErr, speech.ErrStreamFinished):
			b.logger.Info("provider finished the stream")
			return nil
		case errors.As(feedErr, &providerErr):
			b.notifyClient(downstream, providerErr.Message)
			return feedErr
		default:
			return feedErr
		}
	}
}

// ending reports whether the session is already being torn down.
func (b *Bridge) ending(ctx context.Context) bool {
	return ctx.Err() != nil || b.session.State() == session.StateClosed
}

// notifyClient sends a best-effort error event before teardown.
func (b *Bridge) notifyClient(downstream session.Downstream, message string) {
	if message == "" {
		message = "transcription failed"
	}
	if err := downstream.Emit(speechmodel.EventError, speechmodel.ErrorPayload{Message: message}); err != nil {
		b.logger.Debug("error event not delivered", "err", err)
	}
}
