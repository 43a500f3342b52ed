package http

import (
	"context"
	"fmt"

	"github.com/labstack/echo/v4"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/orchestrator"
	"github.com/modforge/assembler/internal/progress"
	"github.com/modforge/assembler/internal/tracer"
)

// handleBuildBoard runs the full assembly flow, streaming stage events
// as SSE frames and finishing with a terminal complete/error event
// (§4.P, §6). A request missing a required field gets a 400 error body
// before any streaming; past that check the stream itself carries
// success/failure, so the HTTP response is 200 and a client reads the
// terminal event to learn the outcome.
func (s *Server) handleBuildBoard(c echo.Context) error {
	var req buildBoardRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, fmt.Errorf("%w: decoding request body: %v", apierr.ErrInvalidRequest, err))
	}
	if req.Prompt == "" || req.MCVersion == "" || req.ModLoader == "" || req.MaxMods <= 0 {
		return writeAPIError(c, fmt.Errorf("%w: prompt, mc_version, mod_loader, and a positive max_mods are required", apierr.ErrInvalidRequest))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.config.RequestBudgetAssembly)
	defer cancel()

	stream := progress.NewStream(progress.EchoSink(c))
	go stream.StartHeartbeat(ctx.Done())

	tr := tracer.New(req.ProjectID, nil)

	buildReq := orchestrator.BuildRequest{
		UserID:            userID(c),
		Prompt:            req.Prompt,
		MCVersion:         req.MCVersion,
		ModLoader:         req.ModLoader,
		MaxMods:           req.MaxMods,
		CurrentMods:       req.CurrentMods,
		ProjectID:         req.ProjectID,
		FabricCompatMode:  req.FabricCompatMode,
		UseArchitectureV3: req.UseV3Architecture,
		Tier:              tier(c),
	}

	// Errors are reported on the stream itself (stream.Error was already
	// called by Run); nothing further to write to the HTTP response.
	_, _ = s.assembler.Run(ctx, buildReq, stream, tr)
	return nil
}
