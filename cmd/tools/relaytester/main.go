package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	speechmodel "github.com/zhouzirui/z-relay/backend/internal/model/speech"
	"github.com/zhouzirui/z-relay/backend/internal/model/transcript"
)

type options struct {
	url       string
	audioPath string
	chunkSize int
	interval  time.Duration
	timeout   time.Duration
	verbose   bool
}

type incoming struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "relaytester",
		Short:        "Stream an audio file through a running relay and print transcripts",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := log.NewWithOptions(os.Stderr, log.Options{
				ReportTimestamp: true,
				TimeFormat:      "15:04:05.000",
			})
			if opts.verbose {
				logger.SetLevel(log.DebugLevel)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts, logger)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.url, "url", "ws://localhost:8080/api/relay/ws", "Relay WebSocket URL")
	flags.StringVar(&opts.audioPath, "audio", "", "Audio file to stream (required)")
	flags.IntVar(&opts.chunkSize, "chunk-size", 3200, "Bytes per binary frame")
	flags.DurationVar(&opts.interval, "interval", 100*time.Millisecond, "Delay between frames")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "How long to wait for transcripts after the last frame")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log every event")
	_ = cmd.MarkFlagRequired("audio")

	return cmd
}

func run(ctx context.Context, opts *options, logger *log.Logger) error {
	if opts.chunkSize <= 0 {
		return fmt.Errorf("chunk-size must be positive, got %d", opts.chunkSize)
	}

	audio, err := os.ReadFile(opts.audioPath)
	if err != nil {
		return fmt.Errorf("read audio: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer conn.Close()

	results := make(chan error, 1)
	go func() {
		results <- readEvents(conn, logger)
	}()

	if err := sendControl(conn, speechmodel.EventStartTranscription); err != nil {
		return err
	}
	logger.Info("streaming audio", "file", opts.audioPath, "bytes", len(audio), "chunk", opts.chunkSize)

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for offset := 0; offset < len(audio); offset += opts.chunkSize {
		end := min(offset+opts.chunkSize, len(audio))
		if err := conn.WriteMessage(websocket.BinaryMessage, audio[offset:end]); err != nil {
			return fmt.Errorf("send audio: %w", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-results:
			return err
		case <-ticker.C:
		}
	}

	logger.Info("audio sent, waiting for transcripts", "timeout", opts.timeout)

	select {
	case <-ctx.Done():
	case err := <-results:
		return err
	case <-time.After(opts.timeout):
	}

	if err := sendControl(conn, speechmodel.EventStopTranscription); err != nil {
		logger.Warn("stop not delivered", "err", err)
	}
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)

	select {
	case err := <-results:
		return err
	case <-time.After(2 * time.Second):
		return nil
	}
}

// readEvents 打印服务端推送的事件，连接正常关闭时返回 nil
func readEvents(conn *websocket.Conn, logger *log.Logger) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read relay: %w", err)
		}

		var msg incoming
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("unexpected frame", "data", string(data))
			continue
		}

		switch msg.Event {
		case speechmodel.EventConnected:
			logger.Info("connected", "data", string(msg.Data))
		case transcript.EventUpdate:
			logger.Debug("update", "data", string(msg.Data))
		case transcript.EventComplete:
			var ev transcript.Event
			_ = json.Unmarshal(msg.Data, &ev)
			fmt.Println(ev.Text)
		case speechmodel.EventError:
			var payload speechmodel.ErrorPayload
			_ = json.Unmarshal(msg.Data, &payload)
			return errors.New(payload.Message)
		default:
			logger.Debug("event", "name", msg.Event)
		}
	}
}

func sendControl(conn *websocket.Conn, event string) error {
	data, err := json.Marshal(speechmodel.ControlMessage{Event: event})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}
