package studio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-portrait-studio/internal/style"
	"ai-portrait-studio/internal/upload"
)

type result struct {
	url string
	err error
}

type call struct {
	source  string
	styleID string
	ctx     context.Context
	reply   chan result
}

// fakeGenerator parks every request until the test answers it.
type fakeGenerator struct {
	calls chan call
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{calls: make(chan call, 64)}
}

func (f *fakeGenerator) Generate(ctx context.Context, source, prompt string) (string, error) {
	c := call{source: source, styleID: prompt, ctx: ctx, reply: make(chan result, 1)}
	f.calls <- c
	r := <-c.reply
	return r.url, r.err
}

func (f *fakeGenerator) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a generation request")
		return call{}
	}
}

func (f *fakeGenerator) collect(t *testing.T, n int) map[string]call {
	t.Helper()
	out := make(map[string]call, n)
	for i := 0; i < n; i++ {
		c := f.next(t)
		out[c.styleID] = c
	}
	return out
}

func (f *fakeGenerator) assertIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected generation request for %s", c.styleID)
	case <-time.After(50 * time.Millisecond):
	}
}

func newTestStudio(gen Generator, onChange func(State)) *Studio {
	return New(Options{
		Generator: gen,
		OnChange:  onChange,
		Prompt:    func(def style.Definition) string { return def.ID },
	})
}

func assertStyleIDs(t *testing.T, snap Snapshot) {
	t.Helper()
	got := make([]string, 0, len(snap.States))
	for _, st := range snap.States {
		got = append(got, st.StyleID())
	}
	want := style.IDs()
	sort.Strings(got)
	sort.Strings(want)
	assert.Equal(t, want, got)
}

func statusOf(t *testing.T, s *Studio, styleID string) State {
	t.Helper()
	st, ok := s.Snapshot().State(styleID)
	require.True(t, ok)
	return st
}

func TestNewStartsIdle(t *testing.T) {
	s := newTestStudio(newFakeGenerator(), nil)
	snap := s.Snapshot()

	assert.False(t, snap.HasSource())
	assertStyleIDs(t, snap)
	for _, st := range snap.States {
		assert.Equal(t, StatusIdle, st.Status())
	}
}

func TestSubmitImageStartsEveryStyle(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)

	s.SubmitImage("data:image/jpeg;base64,QQ==")

	snap := s.Snapshot()
	assert.Equal(t, "data:image/jpeg;base64,QQ==", snap.Source)
	assertStyleIDs(t, snap)
	require.Len(t, snap.States, len(style.Catalog()))
	for _, st := range snap.States {
		assert.Equal(t, StatusLoading, st.Status())
		_, hasErr := st.Error()
		assert.False(t, hasErr)
	}

	calls := gen.collect(t, len(style.Catalog()))
	assert.Len(t, calls, len(style.Catalog()))
	for _, c := range calls {
		assert.Equal(t, "data:image/jpeg;base64,QQ==", c.source)
		c.reply <- result{url: "data:image/png;base64," + c.styleID}
	}
	s.Wait()

	for _, st := range s.Snapshot().States {
		url, ok := st.ImageURL()
		require.True(t, ok)
		assert.Equal(t, "data:image/png;base64,"+st.StyleID(), url)
	}
}

func TestRetrySupersedesInFlight(t *testing.T) {
	tests := []struct {
		name     string
		oldFirst bool
	}{
		{name: "stale settles after newer", oldFirst: false},
		{name: "stale settles before newer", oldFirst: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := newFakeGenerator()
			s := newTestStudio(gen, nil)
			s.SubmitImage("data:image/jpeg;base64,QQ==")
			first := gen.collect(t, len(style.Catalog()))

			target := "hk_retro"
			require.True(t, s.Retry(target))
			retried := gen.next(t)
			require.Equal(t, target, retried.styleID)

			if tt.oldFirst {
				first[target].reply <- result{url: "old"}
				retried.reply <- result{url: "new"}
			} else {
				retried.reply <- result{url: "new"}
				first[target].reply <- result{url: "old"}
			}
			for id, c := range first {
				if id != target {
					c.reply <- result{url: "ok"}
				}
			}
			s.Wait()

			url, ok := statusOf(t, s, target).ImageURL()
			require.True(t, ok)
			assert.Equal(t, "new", url)
			assertStyleIDs(t, s.Snapshot())
		})
	}
}

func TestStaleErrorDoesNotOverwriteNewerSuccess(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	first := gen.collect(t, len(style.Catalog()))

	first["anime_fresh"].reply <- result{err: errors.New("boom")}
	require.Eventually(t, func() bool {
		return statusOf(t, s, "anime_fresh").Status() == StatusError
	}, time.Second, 5*time.Millisecond)

	require.True(t, s.Retry("anime_fresh"))
	st := statusOf(t, s, "anime_fresh")
	assert.Equal(t, StatusLoading, st.Status())
	_, hasErr := st.Error()
	assert.False(t, hasErr, "retry clears the previous error")

	gen.next(t).reply <- result{url: "fixed"}
	for id, c := range first {
		if id != "anime_fresh" {
			c.reply <- result{url: "ok"}
		}
	}
	s.Wait()

	url, ok := statusOf(t, s, "anime_fresh").ImageURL()
	require.True(t, ok)
	assert.Equal(t, "fixed", url)
}

func TestFailureIsIsolated(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	calls := gen.collect(t, len(style.Catalog()))

	calls["cyberpunk_neon"].reply <- result{err: errors.New("quota exceeded")}
	require.Eventually(t, func() bool {
		return statusOf(t, s, "cyberpunk_neon").Status() == StatusError
	}, time.Second, 5*time.Millisecond)

	for _, st := range s.Snapshot().States {
		if st.StyleID() != "cyberpunk_neon" {
			assert.Equal(t, StatusLoading, st.Status(), st.StyleID())
		}
	}

	calls["business_elite"].reply <- result{url: "done"}
	require.Eventually(t, func() bool {
		return statusOf(t, s, "business_elite").Status() == StatusSuccess
	}, time.Second, 5*time.Millisecond)

	msg, ok := statusOf(t, s, "cyberpunk_neon").Error()
	require.True(t, ok)
	assert.Equal(t, "quota exceeded", msg)

	for id, c := range calls {
		if id != "cyberpunk_neon" && id != "business_elite" {
			c.reply <- result{url: "done"}
		}
	}
	s.Wait()
}

func TestResetDiscardsInFlight(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	calls := gen.collect(t, len(style.Catalog()))

	s.Reset()
	for _, c := range calls {
		c.reply <- result{url: "late"}
	}
	s.Wait()

	snap := s.Snapshot()
	assert.False(t, snap.HasSource())
	assertStyleIDs(t, snap)
	for _, st := range snap.States {
		assert.Equal(t, StatusIdle, st.Status())
		_, hasURL := st.ImageURL()
		_, hasErr := st.Error()
		assert.False(t, hasURL)
		assert.False(t, hasErr)
	}
}

func TestResetFromMixedStates(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	calls := gen.collect(t, len(style.Catalog()))

	i := 0
	for _, c := range calls {
		if i%2 == 0 {
			c.reply <- result{url: "ok"}
		} else {
			c.reply <- result{err: errors.New("nope")}
		}
		i++
	}
	s.Wait()

	s.Reset()
	for _, st := range s.Snapshot().States {
		assert.Equal(t, StatusIdle, st.Status())
	}
	assert.False(t, s.Retry("hk_retro"), "retry after reset has no source")
	gen.assertIdle(t)
}

func TestRetryWithoutSourceIsNoop(t *testing.T) {
	gen := newFakeGenerator()
	var changes int
	s := newTestStudio(gen, func(State) { changes++ })

	before := s.Snapshot()
	assert.False(t, s.Retry("hk_retro"))

	assert.Equal(t, before, s.Snapshot())
	assert.Zero(t, changes)
	gen.assertIdle(t)
}

func TestRetryUnknownStyleIsNoop(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	calls := gen.collect(t, len(style.Catalog()))

	assert.False(t, s.Retry("does_not_exist"))
	gen.assertIdle(t)
	assertStyleIDs(t, s.Snapshot())

	for _, c := range calls {
		c.reply <- result{url: "ok"}
	}
	s.Wait()
}

func TestSettlementMessages(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	calls := gen.collect(t, len(style.Catalog()))

	calls["hk_retro"].reply <- result{}
	calls["oil_painting"].reply <- result{err: errors.New("  ")}
	for id, c := range calls {
		if id != "hk_retro" && id != "oil_painting" {
			c.reply <- result{url: "ok"}
		}
	}
	s.Wait()

	for _, id := range []string{"hk_retro", "oil_painting"} {
		msg, ok := statusOf(t, s, id).Error()
		require.True(t, ok, id)
		assert.Equal(t, DefaultErrorMessage, msg)
	}
}

func TestOnChangeObservesTransitions(t *testing.T) {
	gen := newFakeGenerator()
	var mu sync.Mutex
	seen := make(map[string][]Status)
	s := newTestStudio(gen, func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen[st.StyleID()] = append(seen[st.StyleID()], st.Status())
	})

	s.SubmitImage("data:image/jpeg;base64,QQ==")
	for _, c := range gen.collect(t, len(style.Catalog())) {
		c.reply <- result{url: "ok"}
	}
	s.Wait()
	s.Reset()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, len(style.Catalog()))
	for id, statuses := range seen {
		assert.Equal(t, []Status{StatusLoading, StatusSuccess, StatusIdle}, statuses, id)
	}
}

func TestRequestTimeout(t *testing.T) {
	s := New(Options{
		Generator: GeneratorFunc(func(ctx context.Context, source, prompt string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}),
		RequestTimeout: 20 * time.Millisecond,
	})

	s.SubmitImage("data:image/jpeg;base64,QQ==")
	s.Wait()

	for _, st := range s.Snapshot().States {
		msg, ok := st.Error()
		require.True(t, ok)
		assert.Contains(t, msg, context.DeadlineExceeded.Error())
	}
}

func TestUploadToResults(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	acq := upload.New(upload.Options{})

	photo := bytes.Repeat([]byte{0xff, 0xd8}, 1<<20)
	err := acq.Select(s, upload.File{
		Name:      "portrait.jpg",
		MediaType: "image/jpeg",
		Size:      int64(len(photo)),
		Reader:    bytes.NewReader(photo),
	})
	require.NoError(t, err)

	for _, st := range s.Snapshot().States {
		assert.Equal(t, StatusLoading, st.Status())
	}

	calls := gen.collect(t, len(style.Catalog()))
	for id, c := range calls {
		if id == "oil_painting" {
			c.reply <- result{err: errors.New("upstream unavailable")}
			continue
		}
		c.reply <- result{url: fmt.Sprintf("data:image/png;base64,%s", id)}
	}
	s.Wait()

	urls := make(map[string]bool)
	var failures int
	for _, st := range s.Snapshot().States {
		switch st.Status() {
		case StatusSuccess:
			url, _ := st.ImageURL()
			urls[url] = true
		case StatusError:
			failures++
			msg, _ := st.Error()
			assert.NotEmpty(t, msg)
		default:
			t.Fatalf("unexpected status %s for %s", st.Status(), st.StyleID())
		}
	}
	assert.Len(t, urls, len(style.Catalog())-1)
	assert.Equal(t, 1, failures)
}

func TestRejectedUploadChangesNothing(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)
	before := s.Snapshot()

	err := upload.New(upload.Options{}).Select(s, upload.File{
		Name:      "notes.txt",
		MediaType: "text/plain",
		Size:      5,
		Reader:    bytes.NewReader([]byte("hello")),
	})

	assert.ErrorIs(t, err, upload.ErrInvalidType)
	assert.Equal(t, before, s.Snapshot())
	gen.assertIdle(t)
}

func TestSubmitEmptyImageIsIgnored(t *testing.T) {
	gen := newFakeGenerator()
	s := newTestStudio(gen, nil)

	s.SubmitImage("")
	gen.assertIdle(t)

	snap := s.Snapshot()
	assert.False(t, snap.HasSource())
	for _, st := range snap.States {
		assert.Equal(t, StatusIdle, st.Status())
	}
	assert.False(t, s.Retry("hk_retro"))
}

func TestSupersededChangeIsNotDelivered(t *testing.T) {
	var mu sync.Mutex
	var seen []State
	s := newTestStudio(newFakeGenerator(), func(st State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, st)
	})

	first := s.Catalog()[0].ID

	// A settlement applied just before Reset but delivered after it.
	s.mu.Lock()
	s.source = "data:image/jpeg;base64,QQ=="
	s.slots[0].state = succeeded(first, "data:image/png;base64,QQ==")
	late := s.changeLocked(0)
	s.mu.Unlock()

	s.Reset()
	s.notify(late)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, len(style.Catalog()))
	for _, st := range seen {
		assert.Equal(t, StatusIdle, st.Status(), st.StyleID())
	}
}
