package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ai-portrait-studio/internal/debounce"
	"ai-portrait-studio/internal/session"
	"ai-portrait-studio/internal/studio"
	"ai-portrait-studio/internal/style"
	"ai-portrait-studio/internal/telegram"
	"ai-portrait-studio/internal/upload"
	"ai-portrait-studio/internal/view"
)

const (
	callbackRetry = "rt:"
	callbackReset = "reset"

	sessionPrefix = "tg:"
)

// Messenger is the part of the Telegram client the handler talks to.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, kb *telegram.Keyboard) (int, error)
	EditTextWithKeyboard(chatID int64, messageID int, text string, kb *telegram.Keyboard) error
	SendPhotoDataURL(chatID int64, dataURL, fileName, caption string, kb *telegram.Keyboard) error
	AnswerCallback(callbackID, text string, alert bool) error
	DownloadFile(ctx context.Context, fileID string, limit int64) (telegram.File, error)
}

type Options struct {
	Telegram Messenger
	Acquirer *upload.Acquirer
	// Studio is the template for every chat's studio. OnChange is set by the
	// handler.
	Studio     studio.Options
	BoardDelay time.Duration
	Logger     *slog.Logger
}

type Handler struct {
	tg       Messenger
	acquirer *upload.Acquirer
	sessions *session.Store
	board    *debounce.Debouncer
	logger   *slog.Logger

	studioOpts studio.Options
	catalog    []style.Definition
	byID       map[string]style.Definition

	mu     sync.Mutex
	boards map[int64]int
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	acquirer := opts.Acquirer
	if acquirer == nil {
		acquirer = upload.New(upload.Options{Logger: logger})
	}

	catalog := opts.Studio.Catalog
	if catalog == nil {
		catalog = style.Catalog()
	}

	h := &Handler{
		tg:         opts.Telegram,
		acquirer:   acquirer,
		logger:     logger,
		studioOpts: opts.Studio,
		catalog:    catalog,
		byID:       make(map[string]style.Definition, len(catalog)),
		boards:     make(map[int64]int),
	}
	for _, def := range catalog {
		h.byID[def.ID] = def
	}
	h.studioOpts.Catalog = catalog
	if h.studioOpts.Logger == nil {
		h.studioOpts.Logger = logger
	}

	h.sessions = session.NewStore(session.Options{New: h.newStudio})
	h.board = debounce.New(debounce.Options{
		Delay:   opts.BoardDelay,
		OnFlush: h.flushBoard,
	})
	return h
}

// Sessions exposes the per-chat studios so the caller can run the janitor.
func (h *Handler) Sessions() *session.Store {
	return h.sessions
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(update.CallbackQuery)
	}
	if update.Message == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		return h.handleCommand(chatID, msg)
	}

	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		return h.handleImage(ctx, chatID, photo.FileID, upload.File{
			Name:      "photo.jpg",
			MediaType: "image/jpeg",
			Size:      int64(photo.FileSize),
		})
	}

	if msg.Document != nil {
		doc := msg.Document
		return h.handleImage(ctx, chatID, doc.FileID, upload.File{
			Name:      doc.FileName,
			MediaType: doc.MimeType,
			Size:      int64(doc.FileSize),
		})
	}

	if strings.TrimSpace(msg.Text) != "" {
		return h.tg.SendText(chatID, "📷 请发送一张人物照片，我会为您生成 6 种风格的写真。")
	}

	return nil
}

func (h *Handler) handleCommand(chatID int64, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID,
			"🖼 "+view.Title+"\n\n"+
				view.Description+"\n\n"+
				"发送一张人物照片（照片或图片文件，不超过 10MB）即可开始。\n\n"+
				"命令:\n"+
				"/styles - 查看全部风格\n"+
				"/reset - 清空当前照片和结果\n"+
				"/help - 帮助",
		)
	case "styles":
		var b strings.Builder
		b.WriteString("🎨 可用风格\n")
		for _, def := range h.catalog {
			fmt.Fprintf(&b, "\n• %s\n  %s", def.Name, def.Description)
		}
		return h.tg.SendText(chatID, b.String())
	case "reset":
		if st, ok := h.sessions.Lookup(chatKey(chatID)); ok {
			st.Reset()
		}
		return h.tg.SendText(chatID, "✅ 已清空，发送新照片重新开始。")
	default:
		return h.tg.SendText(chatID, "❌ 未知命令，请使用 /help")
	}
}

func (h *Handler) handleImage(ctx context.Context, chatID int64, fileID string, f upload.File) error {
	h.tg.SendTyping(chatID)

	f.Reader = bytes.NewReader(nil)
	if f.Size <= upload.MaxBytes && !declaredNonImage(f.MediaType) {
		file, err := h.tg.DownloadFile(ctx, fileID, upload.MaxBytes)
		if err != nil {
			h.logger.Error("telegram download failed", "chat_id", chatID, "err", err)
			f.Reader = errReader{err: err}
		} else {
			f.Reader = bytes.NewReader(file.Data)
			if f.MediaType == "" {
				f.MediaType = file.MediaType
			}
		}
	}

	st := h.sessions.Get(chatKey(chatID))
	if err := h.acquirer.Select(st, f); err != nil {
		return h.tg.SendText(chatID, "❌ "+upload.UserMessage(err))
	}

	return h.publishBoard(chatID, st, true)
}

func (h *Handler) handleCallback(cb *tgbotapi.CallbackQuery) error {
	if cb.Message == nil || cb.Message.Chat == nil {
		return h.tg.AnswerCallback(cb.ID, "", false)
	}
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(cb.Data, callbackRetry):
		id := strings.TrimPrefix(cb.Data, callbackRetry)
		def, ok := h.byID[id]
		if !ok {
			return h.tg.AnswerCallback(cb.ID, "未知风格", true)
		}
		st, ok := h.sessions.Lookup(chatKey(chatID))
		if !ok || !st.Retry(id) {
			return h.tg.AnswerCallback(cb.ID, "请先发送一张照片", true)
		}
		return h.tg.AnswerCallback(cb.ID, "正在重新生成 "+def.Name, false)
	case cb.Data == callbackReset:
		if st, ok := h.sessions.Lookup(chatKey(chatID)); ok {
			st.Reset()
		}
		return h.tg.AnswerCallback(cb.ID, "已重新开始", false)
	default:
		return h.tg.AnswerCallback(cb.ID, "", false)
	}
}

func (h *Handler) newStudio(key string) *studio.Studio {
	opts := h.studioOpts
	chatID, err := strconv.ParseInt(strings.TrimPrefix(key, sessionPrefix), 10, 64)
	if err == nil {
		opts.OnChange = func(st studio.State) { h.onChange(chatID, st) }
	}
	return studio.New(opts)
}

func (h *Handler) onChange(chatID int64, st studio.State) {
	h.board.Add(chatKey(chatID))

	def := h.byID[st.StyleID()]
	kb := retryKeyboard(def.ID)

	switch st.Status() {
	case studio.StatusSuccess:
		imageURL, _ := st.ImageURL()
		if err := h.tg.SendPhotoDataURL(chatID, imageURL, style.DownloadName(def), "✅ "+def.Name, &kb); err != nil {
			h.logger.Error("send result failed", "chat_id", chatID, "style", def.ID, "err", err)
		}
	case studio.StatusError:
		message, _ := st.Error()
		if _, err := h.tg.SendTextWithKeyboard(chatID, "❌ "+def.Name+"\n"+message, &kb); err != nil {
			h.logger.Error("send failure failed", "chat_id", chatID, "style", def.ID, "err", err)
		}
	}
}

func (h *Handler) flushBoard(key string) {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(key, sessionPrefix), 10, 64)
	if err != nil {
		return
	}
	st, ok := h.sessions.Lookup(key)
	if !ok {
		return
	}
	if err := h.publishBoard(chatID, st, false); err != nil {
		h.logger.Error("board update failed", "chat_id", chatID, "err", err)
	}
}

// publishBoard renders the chat's board. fresh sends a new message instead of
// editing the previous one.
func (h *Handler) publishBoard(chatID int64, st *studio.Studio, fresh bool) error {
	if fresh {
		h.board.Cancel(chatKey(chatID))
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	page := view.Build(h.catalog, st.Snapshot())
	text := view.Board(page)
	var kb *telegram.Keyboard
	if page.Phase == view.PhaseResults {
		reset := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔁 重新开始", callbackReset),
		))
		kb = &reset
	}

	if msgID, ok := h.boards[chatID]; ok && !fresh {
		return h.tg.EditTextWithKeyboard(chatID, msgID, text, kb)
	}

	msgID, err := h.tg.SendTextWithKeyboard(chatID, text, kb)
	if err != nil {
		return err
	}
	h.boards[chatID] = msgID
	return nil
}

func retryKeyboard(styleID string) telegram.Keyboard {
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 重试", callbackRetry+styleID),
	))
}

func chatKey(chatID int64) string {
	return sessionPrefix + strconv.FormatInt(chatID, 10)
}

func declaredNonImage(mediaType string) bool {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	return mediaType != "" && mediaType != "application/octet-stream" && !strings.HasPrefix(mediaType, "image/")
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
