// Package view turns a studio snapshot into what a surface renders. It holds
// no state of its own.
package view

import (
	"fmt"
	"strings"

	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/style"
)

const (
	PhaseUpload  = "upload"
	PhaseResults = "results"

	Title       = "AI 写真馆"
	Description = "上传一张人物照片，一键生成六种风格的 AI 艺术写真"
)

type Page struct {
	Phase       string       `json:"phase"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Source      string       `json:"source,omitempty"`
	Headline    string       `json:"headline,omitempty"`
	Pending     int          `json:"pending"`
	Styles      []StyleBadge `json:"styles,omitempty"`
	Cards       []Card       `json:"cards,omitempty"`
}

// StyleBadge is one entry of the decorative preview grid on the upload screen.
type StyleBadge struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Card struct {
	StyleID      string        `json:"styleId"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Status       studio.Status `json:"status"`
	Label        string        `json:"label,omitempty"`
	ImageURL     string        `json:"imageUrl,omitempty"`
	CanRetry     bool          `json:"canRetry"`
	CanDownload  bool          `json:"canDownload"`
	DownloadName string        `json:"downloadName,omitempty"`
}

func Build(catalog []style.Definition, snap studio.Snapshot) Page {
	page := Page{
		Title:       Title,
		Description: Description,
	}

	if !snap.HasSource() {
		page.Phase = PhaseUpload
		for _, def := range catalog {
			page.Styles = append(page.Styles, StyleBadge{ID: def.ID, Name: def.Name})
		}
		return page
	}

	page.Phase = PhaseResults
	page.Source = snap.Source
	page.Headline = fmt.Sprintf("正在为您生成 %d 组不同风格的大片", len(catalog))

	for _, def := range catalog {
		st, ok := snap.State(def.ID)
		if !ok {
			continue
		}
		card := Card{
			StyleID:     def.ID,
			Name:        def.Name,
			Description: def.Description,
			Status:      st.Status(),
		}

		switch st.Status() {
		case studio.StatusIdle:
			card.Label = "等待开始"
		case studio.StatusLoading:
			card.Label = "正在生成..."
			page.Pending++
		case studio.StatusSuccess:
			card.ImageURL, _ = st.ImageURL()
			card.CanDownload = true
			card.DownloadName = style.DownloadName(def)
		case studio.StatusError:
			msg, _ := st.Error()
			if strings.TrimSpace(msg) == "" {
				msg = "生成失败"
			}
			card.Label = msg
			card.CanRetry = true
		}

		page.Cards = append(page.Cards, card)
	}

	return page
}

// Board renders a page as plain text for chat surfaces.
func Board(page Page) string {
	var b strings.Builder

	if page.Phase == PhaseUpload {
		b.WriteString(page.Title)
		b.WriteString("\n\n")
		b.WriteString(page.Description)
		b.WriteString("\n\n")
		for _, s := range page.Styles {
			b.WriteString("• ")
			b.WriteString(s.Name)
			b.WriteString("\n")
		}
		b.WriteString("\n📷 点击或发送一张人物照片开始")
		return b.String()
	}

	b.WriteString("🖼 ")
	b.WriteString(page.Headline)
	b.WriteString("\n\n")
	for _, c := range page.Cards {
		b.WriteString(statusIcon(c.Status))
		b.WriteString(" ")
		b.WriteString(c.Name)
		switch c.Status {
		case studio.StatusSuccess:
			b.WriteString(" — 已完成")
		case studio.StatusError:
			b.WriteString(" — ")
			b.WriteString(truncateRunes(c.Label, 80))
		default:
			b.WriteString(" — ")
			b.WriteString(c.Label)
		}
		b.WriteString("\n")
	}
	if page.Pending == 0 {
		b.WriteString("\n全部完成，可对失败的风格点击重试。")
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusIcon(s studio.Status) string {
	switch s {
	case studio.StatusLoading:
		return "⏳"
	case studio.StatusSuccess:
		return "✅"
	case studio.StatusError:
		return "❌"
	default:
		return "▫️"
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
