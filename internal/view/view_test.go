package view

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/style"
)

func settledStudio(t *testing.T, failing string) *studio.Studio {
	t.Helper()
	s := studio.New(studio.Options{
		Generator: studio.GeneratorFunc(func(ctx context.Context, source, prompt string) (string, error) {
			if prompt == failing {
				return "", errors.New("upstream refused")
			}
			return "data:image/png;base64," + prompt, nil
		}),
		Prompt: func(def style.Definition) string { return def.ID },
	})
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	s.Wait()
	return s
}

func TestBuildUploadPhase(t *testing.T) {
	s := studio.New(studio.Options{Generator: studio.GeneratorFunc(nil)})
	page := Build(style.Catalog(), s.Snapshot())

	assert.Equal(t, PhaseUpload, page.Phase)
	assert.Empty(t, page.Source)
	assert.Empty(t, page.Cards)
	assert.Len(t, page.Styles, len(style.Catalog()))
}

func TestBuildResultsPhase(t *testing.T) {
	s := settledStudio(t, "hk_retro")
	page := Build(style.Catalog(), s.Snapshot())

	assert.Equal(t, PhaseResults, page.Phase)
	assert.Equal(t, "data:image/jpeg;base64,QQ==", page.Source)
	assert.Equal(t, "正在为您生成 6 组不同风格的大片", page.Headline)
	assert.Zero(t, page.Pending)
	require.Len(t, page.Cards, len(style.Catalog()))

	for _, card := range page.Cards {
		if card.StyleID == "hk_retro" {
			assert.Equal(t, studio.StatusError, card.Status)
			assert.Equal(t, "upstream refused", card.Label)
			assert.True(t, card.CanRetry)
			assert.False(t, card.CanDownload)
			assert.Empty(t, card.ImageURL)
			continue
		}
		assert.Equal(t, studio.StatusSuccess, card.Status)
		assert.Equal(t, "data:image/png;base64,"+card.StyleID, card.ImageURL)
		assert.True(t, card.CanDownload)
		assert.False(t, card.CanRetry)
		assert.Equal(t, card.Name+"_AI写真.png", card.DownloadName)
	}
}

func TestBuildCountsPending(t *testing.T) {
	release := make(chan struct{})
	s := studio.New(studio.Options{
		Generator: studio.GeneratorFunc(func(ctx context.Context, source, prompt string) (string, error) {
			<-release
			return "data:image/png;base64,QQ==", nil
		}),
	})
	s.SubmitImage("data:image/jpeg;base64,QQ==")
	defer func() {
		close(release)
		s.Wait()
	}()

	page := Build(style.Catalog(), s.Snapshot())
	assert.Equal(t, len(style.Catalog()), page.Pending)
	for _, card := range page.Cards {
		assert.Equal(t, "正在生成...", card.Label)
	}
	assert.Contains(t, Board(page), "⏳")
}

func TestBoard(t *testing.T) {
	s := settledStudio(t, "anime_fresh")
	text := Board(Build(style.Catalog(), s.Snapshot()))

	assert.Contains(t, text, "✅ 商务精英 — 已完成")
	assert.Contains(t, text, "❌ 日系动漫 — upstream refused")
	assert.Contains(t, text, "全部完成")

	upload := Board(Build(style.Catalog(), studio.Snapshot{}))
	assert.Contains(t, upload, Title)
	assert.Contains(t, upload, "古风汉服")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "写真", truncateRunes("写真", 2))
	assert.Equal(t, "写…", truncateRunes("写真", 1))
}
