package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/pokemonrocks9/thinking-of-you-backend/internal/domain"
	apperrors "github.com/pokemonrocks9/thinking-of-you-backend/internal/errors"
)

const (
	maxLinkCodeLen = 64
	maxNameLen     = 100
)

type registerRequest struct {
	LinkCode        string `json:"linkCode"`
	Name            string `json:"name"`
	ExternalChannel string `json:"externalChannel"`
	// Aliases from older client revisions; ExternalChannel wins if several
	// are set.
	TimelineToken string `json:"timelineToken"`
	WebhookURL    string `json:"webhookUrl"`
}

func (r *registerRequest) channel() string {
	switch {
	case r.ExternalChannel != "":
		return r.ExternalChannel
	case r.WebhookURL != "":
		return r.WebhookURL
	default:
		return r.TimelineToken
	}
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateLinkCode(req.LinkCode); err != nil {
		return err
	}
	if err := validateName(req.Name, "name"); err != nil {
		return err
	}

	res, err := s.relay.Register(c.Request().Context(), req.LinkCode, req.Name, req.channel())
	if err != nil {
		return apperrors.InternalError("failed to register", err).WithField("link_code", req.LinkCode)
	}

	return writeJSON(c, 200, map[string]any{
		"success":   true,
		"connected": res.Connected,
	})
}

type pingRequest struct {
	LinkCode   string          `json:"linkCode"`
	SenderName string          `json:"senderName"`
	Payload    json.RawMessage `json:"payload"`
}

func (s *Server) handlePing(c echo.Context) error {
	var req pingRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateLinkCode(req.LinkCode); err != nil {
		return err
	}
	if err := validateName(req.SenderName, "senderName"); err != nil {
		return err
	}
	if len(req.Payload) > s.config.MaxPayloadBytes {
		return apperrors.ValidationError("payload too large").
			WithField("max_bytes", s.config.MaxPayloadBytes)
	}

	_, err := s.relay.Ping(c.Request().Context(), req.LinkCode, req.SenderName, req.Payload)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NotFoundError("unknown link code").WithField("link_code", req.LinkCode)
	case errors.Is(err, domain.ErrNotPaired):
		return apperrors.StateError("partner has not registered yet").WithField("link_code", req.LinkCode)
	case err != nil:
		return apperrors.InternalError("failed to ping", err).WithField("link_code", req.LinkCode)
	}

	return writeJSON(c, 200, map[string]any{"success": true})
}

func (s *Server) handleCheck(c echo.Context) error {
	linkCode := c.QueryParam("linkCode")
	recipientName := c.QueryParam("recipientName")
	if err := validateLinkCode(linkCode); err != nil {
		return err
	}
	if err := validateName(recipientName, "recipientName"); err != nil {
		return err
	}

	res, err := s.relay.Check(c.Request().Context(), linkCode, recipientName)
	if err != nil {
		return apperrors.InternalError("failed to check", err).WithField("link_code", linkCode)
	}

	body := map[string]any{
		"hasNotification": res.HasNotification,
		// Field name the original watch client polls for.
		"hasPing": res.HasNotification,
	}
	if res.Payload != nil {
		body["payload"] = res.Payload
	}
	return writeJSON(c, 200, body)
}

type distanceRequest struct {
	LinkCode string          `json:"linkCode"`
	Value    json.RawMessage `json:"value"`
}

func (s *Server) handleWriteDistance(c echo.Context) error {
	var req distanceRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body")
	}
	if err := validateLinkCode(req.LinkCode); err != nil {
		return err
	}
	if len(req.Value) == 0 {
		return apperrors.ValidationError("value is required")
	}
	if len(req.Value) > s.config.MaxPayloadBytes {
		return apperrors.ValidationError("value too large").
			WithField("max_bytes", s.config.MaxPayloadBytes)
	}

	err := s.relay.WriteAux(c.Request().Context(), req.LinkCode, req.Value)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NotFoundError("unknown link code").WithField("link_code", req.LinkCode)
	case err != nil:
		return apperrors.InternalError("failed to store distance", err).WithField("link_code", req.LinkCode)
	}

	return writeJSON(c, 200, map[string]any{"success": true})
}

func (s *Server) handleReadDistance(c echo.Context) error {
	linkCode := c.QueryParam("linkCode")
	if err := validateLinkCode(linkCode); err != nil {
		return err
	}

	blob, err := s.relay.ReadAux(c.Request().Context(), linkCode)
	if err != nil {
		return apperrors.InternalError("failed to read distance", err).WithField("link_code", linkCode)
	}

	if blob == nil {
		return writeJSON(c, 200, map[string]any{"value": nil})
	}
	return writeJSON(c, 200, map[string]any{"value": blob})
}

func (s *Server) handleWhoIsRegistered(c echo.Context) error {
	linkCode := c.QueryParam("linkCode")
	if err := validateLinkCode(linkCode); err != nil {
		return err
	}

	names, exists, err := s.relay.RegisteredNames(c.Request().Context(), linkCode)
	if err != nil {
		return apperrors.InternalError("failed to list names", err).WithField("link_code", linkCode)
	}

	return writeJSON(c, 200, map[string]any{
		"registeredNames": names,
		"exists":          exists,
	})
}

func validateLinkCode(linkCode string) error {
	if linkCode == "" {
		return apperrors.ValidationError("linkCode is required")
	}
	if len(linkCode) > maxLinkCodeLen {
		return apperrors.ValidationError("linkCode too long").WithField("max_len", maxLinkCodeLen)
	}
	return nil
}

func validateName(name, field string) error {
	if name == "" {
		return apperrors.ValidationError(field + " is required")
	}
	if len(name) > maxNameLen {
		return apperrors.ValidationError(field + " too long").WithField("max_len", maxNameLen)
	}
	return nil
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
