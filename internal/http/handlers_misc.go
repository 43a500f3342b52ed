package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/modstore"
)

// handleGetModTags is the one public, unauthenticated, synchronous
// endpoint of §6: a plain catalog lookup with no LLM call and no quota
// check.
func (s *Server) handleGetModTags(c echo.Context) error {
	var req modTagsRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, fmt.Errorf("%w: decoding request body: %v", apierr.ErrInvalidRequest, err))
	}
	if len(req.SourceIDs) == 0 {
		return writeAPIError(c, fmt.Errorf("%w: source_ids must be non-empty", apierr.ErrInvalidRequest))
	}

	mods, err := s.store.GetModsBatch(c.Request().Context(), req.SourceIDs)
	if err != nil {
		return writeAPIError(c, err)
	}

	tags := make(map[string][]string, len(mods))
	for _, m := range mods {
		tags[m.SourceID] = m.Tags
	}

	return c.JSON(http.StatusOK, modTagsResponse{Tags: tags})
}

// handleFeedback records a thumbs up/down on a build-board result.
func (s *Server) handleFeedback(c echo.Context) error {
	return s.recordFeedback(c)
}

// handleFeedbackCategorization records feedback on an auto-sort/
// categorization result. §6 gives it its own route but the same
// idempotent-by-build_id semantics as /api/feedback.
func (s *Server) handleFeedbackCategorization(c echo.Context) error {
	return s.recordFeedback(c)
}

func (s *Server) recordFeedback(c echo.Context) error {
	var req feedbackRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, fmt.Errorf("%w: decoding request body: %v", apierr.ErrInvalidRequest, err))
	}
	if req.BuildID == "" {
		return writeAPIError(c, fmt.Errorf("%w: build_id is required", apierr.ErrInvalidRequest))
	}

	feedback := modstore.SortFeedback{
		BuildID:  req.BuildID,
		UserID:   userID(c),
		Positive: req.Positive,
		Comment:  req.Comment,
	}
	if err := s.store.RecordSortFeedback(c.Request().Context(), feedback); err != nil {
		return writeAPIError(c, err)
	}

	return c.JSON(http.StatusOK, feedbackResponse{Success: true})
}
