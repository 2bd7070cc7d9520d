package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/samsaffron/pulse/internal/chat"
	"github.com/samsaffron/pulse/internal/store"
	"github.com/samsaffron/pulse/internal/wire"
)

const (
	maxReferenceFileChars = 20000
	maxReferenceChars     = 3500
	referenceTTL          = 30 * time.Minute
)

var referenceFiles = glob.MustCompile("*.{txt,md,html,css,js,json,xml,yaml,yml,csv,pdf,docx,odt,rtf}")

type referenceFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// buildReference joins the accepted files into one context block,
// clipped to maxReferenceChars. Files with other extensions are skipped.
func buildReference(files []referenceFile) string {
	var b strings.Builder
	for _, f := range files {
		name := strings.TrimSpace(f.Name)
		if name == "" || !referenceFiles.Match(strings.ToLower(name)) {
			continue
		}
		content := f.Content
		if r := []rune(content); len(r) > maxReferenceFileChars {
			content = string(r[:maxReferenceFileChars])
		}
		fmt.Fprintf(&b, "[User file: %s]\n", name)
		if content != "" {
			b.WriteString(content + "\n\n")
		} else {
			b.WriteString("(No text content captured for this file.)\n\n")
		}
	}
	out := b.String()
	if r := []rune(out); len(r) > maxReferenceChars {
		out = string(r[:maxReferenceChars])
	}
	return out
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Files []referenceFile `json:"files"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if len(body.Files) == 0 {
		writeError(w, http.StatusBadRequest, "No files provided.")
		return
	}
	ref := buildReference(body.Files)
	if ref == "" {
		writeError(w, http.StatusBadRequest, "No valid files after filtering.")
		return
	}
	sessionFrom(r.Context()).SetReference(ref)
	s.logger.Info("stored reference context", "chars", len(ref), "files", len(body.Files))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chat.TurnRequest
	if !readJSON(w, r, &req) {
		return
	}

	sess := sessionFrom(r.Context())
	release, err := sess.Begin()
	if err != nil {
		writeError(w, http.StatusConflict, "A reply is already streaming.")
		return
	}
	defer release()

	wire.SetHeaders(w)
	fw := wire.NewWriter(w)

	if !s.botCheckPassed(r) {
		_ = fw.WriteFrame(wire.Error("Turnstile verification required."))
		_ = fw.WriteDone()
		return
	}

	req.Reference = sess.TakeReference(referenceTTL)

	rec := s.persistTarget(r, req.RecordID)
	var consumer *chat.Consumer
	if rec != nil {
		consumer = chat.NewConsumer(chat.ConsumerOptions{Document: req.Document, History: req.Conversation()})
		fw.Tee(func(f wire.Frame) { consumer.Handle(f) })
	}

	err = s.engine.Run(r.Context(), req, fw)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("chat stream ended early", "error", err)
	}

	if consumer == nil {
		return
	}
	if !consumer.Done() || consumer.Result().Err != "" {
		consumer.Stop()
		return
	}
	s.persist(context.WithoutCancel(r.Context()), rec, consumer.Result())
}

// persistTarget returns the caller's record a turn should be saved to, or
// nil when the turn is not saved.
func (s *Server) persistTarget(r *http.Request, id string) *store.Record {
	if id == "" {
		return nil
	}
	user := identityFrom(r.Context())
	if user == nil {
		return nil
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.logger.Warn("load site for chat", "id", id, "error", err)
		return nil
	}
	if rec == nil || rec.OwnerID != user.ID {
		return nil
	}
	return rec
}

func (s *Server) persist(ctx context.Context, rec *store.Record, res chat.Result) {
	if res.Document != "" && res.Document != rec.Content {
		doc := res.Document
		if _, err := s.store.Update(ctx, rec.ID, store.RecordUpdate{Content: &doc}); err != nil {
			s.logger.Error("save site after turn", "id", rec.ID, "error", err)
		}
	}
	if err := s.store.SaveTranscript(ctx, rec.ID, chat.ToTranscript(res.Messages)); err != nil {
		s.logger.Error("save transcript", "id", rec.ID, "error", err)
	}
	s.logger.Debug("turn saved", "id", rec.ID, "status", res.Status, "summary", res.Summary)
}
