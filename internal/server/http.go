package server

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/engine"
)

type audioRequest struct {
	Audio     string `json:"audio"`
	SessionID string `json:"session_id,omitempty"`
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type wakeResponse struct {
	Detected   bool   `json:"detected"`
	WakeWord   string `json:"wake_word,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

type voiceResponse struct {
	SessionID  string `json:"session_id"`
	Transcript string `json:"transcript"`
	Response   string `json:"response"`
	Audio      string `json:"audio,omitempty"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func jsonError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(fiber.Map{"error": msg})
}

func (s *Server) requestContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.timeout)
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"name":      s.name,
		"status":    "ok",
		"providers": s.providers,
		"sessions":  s.deps.Store.Len(),
	})
}

func (s *Server) handleWakeCheck(c *fiber.Ctx) error {
	var req audioRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	text, err := s.transcribe(ctx, req.Audio)
	if errors.Is(err, domain.ErrNoSpeech) {
		return c.JSON(wakeResponse{})
	}
	if err != nil {
		s.log.Error("wake check: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, msgWakeFailed)
	}

	phrase, ok := s.deps.Matcher.Match(text)
	if ok {
		s.log.Info("wake word %q in %q", phrase, text)
	}
	return c.JSON(wakeResponse{Detected: ok, WakeWord: phrase, Transcript: text})
}

func (s *Server) handleVoiceChat(c *fiber.Ctx) error {
	var req audioRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	text, err := s.transcribe(ctx, req.Audio)
	if errors.Is(err, domain.ErrNoSpeech) || errors.Is(err, errBadAudio) {
		return jsonError(c, fiber.StatusBadRequest, msgNotUnderstood)
	}
	if err != nil {
		s.log.Error("voice chat: transcribe: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, msgProcessing)
	}

	id := sessionID(req.SessionID)
	sink := &captureSink{}

	reply, err := s.newEngine(s.deps.Store.Get(id), s.controller(id), sink).Turn(ctx, text)
	if errors.Is(err, engine.ErrDropped) {
		return jsonError(c, fiber.StatusConflict, msgBusy)
	}
	if err != nil {
		s.log.Error("voice chat: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, msgProcessing)
	}
	return c.JSON(voiceResponse{
		SessionID:  id,
		Transcript: text,
		Response:   reply,
		Audio:      sink.dataURL(),
	})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return jsonError(c, fiber.StatusBadRequest, msgEmptyMessage)
	}
	ctx, cancel := s.requestContext(c)
	defer cancel()

	id := sessionID(req.SessionID)
	reply, err := s.newEngine(s.deps.Store.Get(id), s.controller(id), nil).Turn(ctx, req.Message)
	if errors.Is(err, engine.ErrDropped) {
		return jsonError(c, fiber.StatusConflict, msgBusy)
	}
	if err != nil {
		s.log.Error("chat: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, msgProcessing)
	}
	return c.JSON(chatResponse{SessionID: id, Message: reply})
}

func (s *Server) handleEndSession(c *fiber.Ctx) error {
	s.dropController(c.Params("id"))
	if err := s.deps.Store.Delete(c.Params("id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return jsonError(c, fiber.StatusNotFound, "unknown session")
		}
		return jsonError(c, fiber.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func sessionID(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return uuid.NewString()
}
