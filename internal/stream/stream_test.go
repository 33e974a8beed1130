// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ragchat/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func body(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

func frames(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		b.WriteString("data: ")
		b.WriteString(p)
		b.WriteString("\n\n")
	}
	return b.String()
}

func runChunks(t *testing.T, chunks ...Chunk) *Result {
	t.Helper()
	res, err := Run(context.Background(), NewSliceSource(chunks, nil), nil)
	require.NoError(t, err)
	return res
}

// blockingSource yields its chunks, then blocks until closed.
type blockingSource struct {
	chunks []Chunk
	once   sync.Once
	done   chan struct{}
}

func newBlockingSource(chunks ...Chunk) *blockingSource {
	return &blockingSource{chunks: chunks, done: make(chan struct{})}
}

func (s *blockingSource) Next() (Chunk, error) {
	if len(s.chunks) > 0 {
		c := s.chunks[0]
		s.chunks = s.chunks[1:]
		return c, nil
	}
	<-s.done
	return nil, io.ErrClosedPipe
}

func (s *blockingSource) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

// =============================================================================
// DECODE TESTS
// =============================================================================

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Chunk
	}{
		{
			name:    "meta",
			payload: `{"type":"meta","conversation_id":"c_1","user_message_id":"m_9"}`,
			want:    MetaChunk{ConversationID: "c_1", UserMessageID: "m_9"},
		},
		{
			name:    "meta numeric ids",
			payload: `{"type":"meta","conversation_id":42}`,
			want:    MetaChunk{ConversationID: "42"},
		},
		{
			name:    "token",
			payload: `{"type":"token","content":"Hel"}`,
			want:    TokenChunk{Content: "Hel"},
		},
		{
			name:    "timing",
			payload: `{"type":"timing","timings":{"retrieval_ms":10,"prompt_build_ms":2,"generation_ms":300,"total_ms":312}}`,
			want:    TimingChunk{Timings: model.Timings{RetrievalMs: 10, PromptBuildMs: 2, GenerationMs: 300, TotalMs: 312}},
		},
		{
			name:    "confidence",
			payload: `{"type":"confidence","confidence":{"level":"low","avg_score":0.2,"top_score":0.3,"chunk_count":2,"should_fallback":true},"disclaimer":"weak"}`,
			want: ConfidenceChunk{
				Confidence: model.Confidence{Level: model.ConfidenceLow, AvgScore: 0.2, TopScore: 0.3, ChunkCount: 2, ShouldFallback: true},
				Disclaimer: "weak",
			},
		},
		{
			name:    "tool progress",
			payload: `{"type":"tool_progress","tool":"infographic","message":"rendering"}`,
			want:    ToolProgressChunk{Tool: "infographic", Message: "rendering"},
		},
		{
			name:    "tool error string",
			payload: `{"type":"tool_error","tool":"infographic","error":"quota"}`,
			want:    ToolErrorChunk{Tool: "infographic", Error: "quota"},
		},
		{
			name:    "tool error object",
			payload: `{"type":"tool_error","error":{"message":"boom"}}`,
			want:    ToolErrorChunk{Error: "boom"},
		},
		{
			name:    "rewrite",
			payload: `{"type":"rewrite","original_query":"q3 stuff","rewritten_query":"third quarter planning"}`,
			want:    RewriteChunk{Rewrite: model.QueryRewrite{Original: "q3 stuff", Rewritten: "third quarter planning"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Decode([]byte(tc.payload))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.Type(), got.Type())
		})
	}
}

func TestDecode_SourcesScaledToPercent(t *testing.T) {
	got, err := Decode([]byte(`{"type":"sources","sources":[{"title":"Standup","relevance_score":0.87,"date":1709632800000},{"title":"x","relevance_score":1.4}]}`))
	require.NoError(t, err)

	sc, ok := got.(SourcesChunk)
	require.True(t, ok)
	require.Len(t, sc.Sources, 2)
	assert.InDelta(t, 87.0, sc.Sources[0].RelevanceScore, 0.001)
	assert.Equal(t, "2024-03-05", sc.Sources[0].Date.String())
	assert.Equal(t, 100.0, sc.Sources[1].RelevanceScore)
}

func TestDecode_ToolResultSourcesKeptAsPercent(t *testing.T) {
	got, err := Decode([]byte(`{"type":"tool_result","tool":"search","result":{"sources":[{"title":"a","relevance_score":72}],"image_url":"https://img/1.png"}}`))
	require.NoError(t, err)

	tr, ok := got.(ToolResultChunk)
	require.True(t, ok)
	assert.Equal(t, "search", tr.Tool)
	require.Len(t, tr.Result.Sources, 1)
	assert.Equal(t, 72.0, tr.Result.Sources[0].RelevanceScore)
	assert.Equal(t, "https://img/1.png", tr.Result.ImageURL)
	assert.NotEmpty(t, tr.Result.Raw)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		unknown bool
	}{
		{name: "not json", payload: `{"type":"token",`},
		{name: "unknown type", payload: `{"type":"heartbeat"}`, unknown: true},
		{name: "missing type", payload: `{"content":"x"}`, unknown: true},
		{name: "timing without body", payload: `{"type":"timing"}`},
		{name: "tool call without name", payload: `{"type":"tool_call","args":{}}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.payload))
			var de *DecodeError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tc.unknown, errors.Is(err, ErrUnknownType))
		})
	}
}

// =============================================================================
// FRAME READER TESTS
// =============================================================================

func TestFrameReader_Framing(t *testing.T) {
	input := ": keep-alive comment\n" +
		"event: message\n" +
		"id: 1\n" +
		"data: {\"type\":\"token\",\r\n" +
		"data: \"content\":\"a\"}\r\n" +
		"\r\n" +
		"\n\n" +
		"data:{\"type\":\"token\",\"content\":\"b\"}\n\n" +
		"data: {\"type\":\"token\",\"content\":\"c\"}"

	r := NewFrameReader(body(input), nil)
	var got []string
	for {
		c, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, c.(TokenChunk).Content)
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
	assert.Zero(t, r.Skipped())
}

func TestFrameReader_SkipsMalformedWithWarning(t *testing.T) {
	var logBuf bytes.Buffer
	logger := log.New(&logBuf, "", 0)

	input := frames(`{"type":"token","content":"a"}`, `{not json`, `{"type":"mystery"}`, `{"type":"token","content":"b"}`)
	r := NewFrameReader(body(input), logger)

	c, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenChunk{Content: "a"}, c)

	c, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, TokenChunk{Content: "b"}, c)

	_, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, r.Skipped())
	assert.Contains(t, logBuf.String(), "WARN")
}

func TestFrameReader_FrameTooLarge(t *testing.T) {
	big := `{"type":"token","content":"` + strings.Repeat("x", MaxFrameSize) + `"}`
	r := NewFrameReader(body(frames(big)), nil)

	_, err := r.Next()
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

type closeTracker struct {
	io.Reader
	closes int
}

func (c *closeTracker) Close() error {
	c.closes++
	return nil
}

func TestFrameReader_CloseIdempotent(t *testing.T) {
	tr := &closeTracker{Reader: strings.NewReader("")}
	r := NewFrameReader(tr, nil)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, tr.closes)
}

// =============================================================================
// REDUCER PROPERTY TESTS
// =============================================================================

func TestRun_TokenOrdering(t *testing.T) {
	res := runChunks(t,
		TokenChunk{Content: "The "},
		SourcesChunk{Sources: []model.Source{{Title: "a"}}},
		TokenChunk{Content: "quick "},
		TimingChunk{Timings: model.Timings{TotalMs: 5}},
		ConfidenceChunk{Confidence: model.Confidence{Level: model.ConfidenceHigh}},
		TokenChunk{Content: "fox"},
		RewriteChunk{Rewrite: model.QueryRewrite{Original: "a", Rewritten: "b"}},
	)
	assert.Equal(t, "The quick fox", res.Message.Content)
	assert.Equal(t, model.RoleAssistant, res.Message.Role)
	assert.Equal(t, 7, res.Frames)
	require.NotNil(t, res.Message.Rewrite)
	assert.Equal(t, "b", res.Message.Rewrite.Rewritten)
}

func TestRun_SourcesPrecedence(t *testing.T) {
	a := []model.Source{{Title: "A", RelevanceScore: 40}}
	b := []model.Source{{Title: "B", RelevanceScore: 91}}

	res := runChunks(t,
		SourcesChunk{Sources: a},
		ToolCallChunk{Tool: "search"},
		ToolResultChunk{Tool: "search", Result: model.ToolResult{Sources: b}},
		SourcesChunk{Sources: a},
		TokenChunk{Content: "done"},
	)
	assert.Equal(t, b, res.Message.Sources)
}

func TestRun_SourcesReplaceNotMerge(t *testing.T) {
	res := runChunks(t,
		SourcesChunk{Sources: []model.Source{{Title: "A"}, {Title: "B"}}},
		SourcesChunk{Sources: []model.Source{{Title: "C"}}},
		TokenChunk{Content: "x"},
	)
	assert.Equal(t, []model.Source{{Title: "C"}}, res.Message.Sources)
}

func TestRun_EmptyContentFallback(t *testing.T) {
	tests := []struct {
		name   string
		chunks []Chunk
		want   string
	}{
		{
			name:   "nothing at all",
			chunks: nil,
			want:   NoResponseText,
		},
		{
			name:   "metadata only",
			chunks: []Chunk{MetaChunk{ConversationID: "c"}, TimingChunk{}},
			want:   NoResponseText,
		},
		{
			name:   "tool result without tokens",
			chunks: []Chunk{ToolCallChunk{Tool: "infographic"}, ToolResultChunk{Result: model.ToolResult{ImageURL: "u"}}},
			want:   "",
		},
		{
			name:   "tool error without tokens",
			chunks: []Chunk{ToolCallChunk{Tool: "infographic"}, ToolErrorChunk{Error: "quota"}},
			want:   NoResponseText,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := runChunks(t, tc.chunks...)
			assert.Equal(t, tc.want, res.Message.Content)
		})
	}
}

func TestRun_ToolStateMachine(t *testing.T) {
	order := map[model.ToolStatus]int{
		model.ToolStarting:   1,
		model.ToolProcessing: 2,
		model.ToolComplete:   3,
		model.ToolError:      3,
	}

	tests := []struct {
		name     string
		chunks   []Chunk
		terminal model.ToolStatus
	}{
		{
			name: "complete",
			chunks: []Chunk{
				ToolCallChunk{Tool: "infographic", Args: []byte(`{"topic":"q3"}`)},
				ToolProgressChunk{Message: "1/2"},
				ToolProgressChunk{Message: "2/2"},
				ToolResultChunk{Result: model.ToolResult{ImageURL: "u"}},
				ToolErrorChunk{Error: "late"},
			},
			terminal: model.ToolComplete,
		},
		{
			name: "error",
			chunks: []Chunk{
				ToolProgressChunk{Message: "early"},
				ToolCallChunk{Tool: "ghostwriter"},
				ToolCallChunk{Tool: "ghostwriter"},
				ToolErrorChunk{Error: "failed"},
				ToolProgressChunk{Message: "after"},
			},
			terminal: model.ToolError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen []model.ToolStatus
			obs := ObserverFunc(func(_ Change, live Live) {
				if n := len(seen); live.Tool.Status != model.ToolIdle && (n == 0 || seen[n-1] != live.Tool.Status) {
					seen = append(seen, live.Tool.Status)
				}
			})

			res, err := Run(context.Background(), NewSliceSource(tc.chunks, nil), obs)
			require.NoError(t, err)

			for i := 1; i < len(seen); i++ {
				assert.Less(t, order[seen[i-1]], order[seen[i]], "statuses %v out of order", seen)
			}
			assert.Equal(t, tc.terminal, seen[len(seen)-1])
			assert.Equal(t, tc.terminal, res.ToolState.Status)
			assert.False(t, res.ToolState.IsActive)
			if tc.terminal == model.ToolComplete {
				assert.Empty(t, res.Message.ToolError)
				assert.NotNil(t, res.Message.ToolResult)
			} else {
				assert.Nil(t, res.Message.ToolResult)
			}
		})
	}
}

func TestRun_FramesAfterTerminalToolIgnored(t *testing.T) {
	a := []model.Source{{Title: "A", RelevanceScore: 40}}
	b := []model.Source{{Title: "B", RelevanceScore: 91}}

	t.Run("result after error", func(t *testing.T) {
		var ignored []string
		obs := ObserverFunc(func(change Change, _ Live) {
			if change.Ignored {
				ignored = append(ignored, change.Reason)
			}
		})
		res, err := Run(context.Background(), NewSliceSource([]Chunk{
			SourcesChunk{Sources: a},
			ToolCallChunk{Tool: "infographic"},
			ToolErrorChunk{Error: "render failed"},
			ToolResultChunk{Result: model.ToolResult{Sources: b, ImageURL: "u"}},
		}, nil), obs)
		require.NoError(t, err)

		assert.Equal(t, model.ToolError, res.ToolState.Status)
		assert.Equal(t, "render failed", res.Message.ToolError)
		assert.Nil(t, res.Message.ToolResult)
		assert.Equal(t, a, res.Message.Sources)
		assert.Equal(t, []string{"tool_result after tool finished"}, ignored)
	})

	t.Run("error after result", func(t *testing.T) {
		res := runChunks(t,
			ToolCallChunk{Tool: "infographic"},
			ToolResultChunk{Result: model.ToolResult{Sources: b, ImageURL: "u"}},
			ToolErrorChunk{Error: "late"},
		)
		assert.Equal(t, model.ToolComplete, res.ToolState.Status)
		assert.Empty(t, res.Message.ToolError)
		require.NotNil(t, res.Message.ToolResult)
		assert.Equal(t, "u", res.Message.ToolResult.ImageURL)
		assert.Equal(t, b, res.Message.Sources)
	})

	t.Run("second result after complete", func(t *testing.T) {
		res := runChunks(t,
			ToolCallChunk{Tool: "search"},
			ToolResultChunk{Result: model.ToolResult{Sources: b}},
			ToolResultChunk{Result: model.ToolResult{Sources: a}},
			TokenChunk{Content: "done"},
		)
		assert.Equal(t, b, res.Message.Sources)
		assert.Equal(t, b, res.Message.ToolResult.Sources)
	})
}

func TestRun_ToolErrorIsData(t *testing.T) {
	res := runChunks(t,
		TokenChunk{Content: "Here is the summary."},
		ToolCallChunk{Tool: "infographic"},
		ToolErrorChunk{Error: "image service down"},
	)
	assert.Equal(t, "Here is the summary.", res.Message.Content)
	assert.Equal(t, "image service down", res.Message.ToolError)
	assert.Equal(t, "infographic", res.Message.ToolName)
	assert.Nil(t, res.Message.ToolResult)
	assert.False(t, res.Message.Failed)
}

func TestRun_MetaIdentifiers(t *testing.T) {
	var live []Live
	obs := ObserverFunc(func(_ Change, l Live) { live = append(live, l) })

	res, err := Run(context.Background(), NewSliceSource([]Chunk{
		TokenChunk{Content: "a"},
		MetaChunk{ConversationID: "c_7", UserMessageID: "m_3"},
		TokenChunk{Content: "b"},
	}, nil), obs)
	require.NoError(t, err)

	assert.Equal(t, "c_7", res.ConversationID)
	assert.Equal(t, "m_3", res.UserMessageID)
	require.Len(t, live, 3)
	assert.Equal(t, "a", live[0].Content)
	assert.Empty(t, live[0].ConversationID)
	assert.Equal(t, "c_7", live[1].ConversationID)
	assert.Equal(t, "ab", live[2].Content)
}

func TestRun_CancellationDiscardsPartialState(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := newBlockingSource(TokenChunk{Content: "par"}, TokenChunk{Content: "tial"})
	tokens := 0
	obs := ObserverFunc(func(c Change, _ Live) {
		if _, ok := c.Chunk.(TokenChunk); ok {
			tokens++
			if tokens == 2 {
				go cancel()
			}
		}
	})

	res, err := Run(ctx, src, obs)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_TransportFailure(t *testing.T) {
	boom := errors.New("connection reset")
	src := NewSliceSource([]Chunk{TokenChunk{Content: "half"}}, boom)

	res, err := Run(context.Background(), src, nil)
	assert.Nil(t, res)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Frames)
	assert.ErrorIs(t, err, boom)
	assert.True(t, src.Closed())
}

func TestRun_MalformedFrameResilience(t *testing.T) {
	clean := frames(`{"type":"token","content":"one "}`, `{"type":"token","content":"two"}`)
	dirty := frames(`{"type":"token","content":"one "}`) +
		"data: {\"type\":\"token\",\"content\":\n\n" +
		frames(`{"type":"token","content":"two"}`)

	want, err := Run(context.Background(), NewFrameReader(body(clean), nil), nil)
	require.NoError(t, err)
	got, err := Run(context.Background(), NewFrameReader(body(dirty), nil), nil)
	require.NoError(t, err)

	assert.Equal(t, want.Message.Content, got.Message.Content)
	assert.Equal(t, "one two", got.Message.Content)
	assert.Equal(t, 1, got.Skipped)
}

func TestFailureMessage(t *testing.T) {
	msg := FailureMessage(errors.New("dial tcp: refused"))
	assert.Equal(t, "Sorry, I couldn't complete that request: dial tcp: refused", msg.Content)
	assert.True(t, msg.Failed)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Nil(t, msg.Sources)
	assert.Nil(t, msg.Confidence)
	assert.Nil(t, msg.ToolResult)
}
