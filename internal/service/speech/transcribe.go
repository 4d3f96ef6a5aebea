package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gorilla/websocket"
)

// transcribeChunkSize 一次性转写时每个音频帧的字节数
const transcribeChunkSize = 3200

// Transcribe 在一个独立的上游会话中转写整段音频，返回全部识别文本。
// 音频按帧发送，最后发送一个空帧表示结束；收到 finished 或上游正常关闭后返回。
func (s *Service) Transcribe(ctx context.Context, sessionID string, audio io.Reader) (string, error) {
	conn, err := s.provider.Connect(ctx, sessionID)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	sent := make(chan error, 1)
	go func() {
		err := streamAudio(conn, audio)
		if err != nil {
			// 唤醒仍在等待结果的读取
			_ = conn.Close()
		}
		sent <- err
	}()

	text, readErr := collectTranscript(conn, NewAggregator())
	_ = conn.Close()
	sendErr := <-sent

	switch {
	case readErr == nil:
		return text, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case sendErr != nil:
		return "", sendErr
	default:
		return "", readErr
	}
}

// streamAudio 将音频切分为二进制帧发送，并以空帧结束
func streamAudio(conn *ProviderConn, audio io.Reader) error {
	buf := make([]byte, transcribeChunkSize)
	for {
		n, err := io.ReadFull(audio, buf)
		if n > 0 {
			if werr := conn.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				return &ConnectionError{Op: "send audio", Err: werr}
			}
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read audio: %w", err)
		}
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{}); err != nil {
		return &ConnectionError{Op: "end audio", Err: err}
	}
	return nil
}

// collectTranscript 读取上游结果直到流结束，拼接每句完成的文本
func collectTranscript(conn *ProviderConn, agg *Aggregator) (string, error) {
	var utterances []string
	finish := func() string {
		if pending := agg.Pending(); pending != "" {
			utterances = append(utterances, pending)
		}
		return strings.Join(utterances, " ")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return finish(), nil
			}
			return "", &ConnectionError{Op: "read provider", Err: err}
		}

		events, feedErr := agg.Feed(data)
		for _, ev := range events {
			if ev.Complete && ev.Text != "" {
				utterances = append(utterances, ev.Text)
			}
		}

		var protoErr *ProtocolError
		switch {
		case feedErr == nil:
		case errors.As(feedErr, &protoErr):
			continue
		case errors.Is(feedErr, ErrStreamFinished):
			return finish(), nil
		default:
			return "", feedErr
		}
	}
}
