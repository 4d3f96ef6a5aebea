package speech

import (
	"encoding/json"
	"strings"

	"github.com/zhouzirui/z-relay/backend/internal/model/transcript"
)

// Aggregator 将识别服务的 token 批次转换为转写事件，并累积当前一句话的文本
type Aggregator struct {
	utterance []string
}

// NewAggregator 创建聚合器，每个会话使用一个
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Feed decodes one provider message and returns the events it produces.
// Malformed input yields a *ProtocolError; an error message from the provider yields a *ProviderError;
// a finished message yields its events together with ErrStreamFinished.
func (a *Aggregator) Feed(raw []byte) ([]transcript.Event, error) {
	var batch transcript.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, &ProtocolError{Err: err}
	}

	if batch.ErrorCode != 0 {
		return nil, &ProviderError{Code: batch.ErrorCode, Message: batch.ErrorMessage}
	}

	events := a.Apply(batch.Tokens)
	if batch.Finished {
		return events, ErrStreamFinished
	}
	return events, nil
}

// Apply 按顺序处理 token：非结束标记的文本以空格拼接为一次更新；
// 每个结束标记产生一次完成事件，内容为该句累积的最终文本。
// 结束标记本身不产生更新；即使该句没有累积任何文本，也会发出一次文本为空的完成事件，
// 保证完成事件与上游的结束标记一一对应。
func (a *Aggregator) Apply(tokens []transcript.Token) []transcript.Event {
	var (
		events  []transcript.Event
		pending []string
	)

	flush := func() {
		if len(pending) == 0 {
			return
		}
		events = append(events, transcript.Event{Text: strings.Join(pending, " ")})
		pending = nil
	}

	for _, tok := range tokens {
		if tok.IsEnd() {
			flush()
			events = append(events, transcript.Event{
				Text:     strings.Join(a.utterance, " "),
				Complete: true,
			})
			a.utterance = nil
			continue
		}

		if tok.Text == "" {
			continue
		}

		pending = append(pending, tok.Text)
		if tok.Final() {
			a.utterance = append(a.utterance, tok.Text)
		}
	}
	flush()

	return events
}

// Pending returns the text accumulated for the utterance in progress.
func (a *Aggregator) Pending() string {
	return strings.Join(a.utterance, " ")
}
