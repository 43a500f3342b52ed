package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/crash"
	"github.com/modforge/assembler/internal/progress"
	"github.com/modforge/assembler/internal/tracer"
)

// handleCrashDoctor runs the Crash Pipeline synchronously and returns
// its terminal payload directly — unlike build-board, §6 doesn't frame
// this endpoint as a progress stream, just a single `complete`/`error`
// shape.
func (s *Server) handleCrashDoctor(c echo.Context) error {
	var req crashDoctorRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, fmt.Errorf("%w: decoding request body: %v", apierr.ErrInvalidRequest, err))
	}
	if req.CrashLog == "" || req.MCVersion == "" || req.ModLoader == "" {
		return writeAPIError(c, fmt.Errorf("%w: crash_log, mc_version, and mod_loader are required", apierr.ErrInvalidRequest))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestBudgetCrash)
	defer cancel()

	rawLog := req.CrashLog
	if req.GameLog != "" {
		rawLog += "\n\n--- GAME LOG ---\n" + req.GameLog
	}

	var captured []progress.Event
	stream := progress.NewStream(func(evt progress.Event) { captured = append(captured, evt) })

	tr := tracer.New("crash-doctor", nil)

	in := crash.Input{
		UserID:      userID(c),
		Tier:        tier(c),
		RawLog:      rawLog,
		Board:       req.BoardState,
		Loader:      req.ModLoader,
		GameVersion: req.MCVersion,
	}

	result, err := s.crashOrch.Run(ctx, in, stream, tr)
	if err != nil {
		return writeAPIError(c, err)
	}

	return c.JSON(http.StatusOK, crashDoctorResponse{
		Success:           true,
		Suggestions:       result.Suggestions,
		PatchedBoardState: result.PatchedBoardState,
		Warnings:          result.Warnings,
		Confidence:        result.Confidence,
		SessionID:         result.SessionID,
	})
}
