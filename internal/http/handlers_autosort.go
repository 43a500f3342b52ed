package http

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/modforge/assembler/internal/apierr"
	"github.com/modforge/assembler/internal/domain"
)

// handleAutoSort classifies a caller-supplied mod list into the fixed
// category set without going through the full Assembler — the request
// carries only name/source_id/description per mod, not enough to run
// retrieval or selection against the catalog.
func (s *Server) handleAutoSort(c echo.Context) error {
	var req autoSortRequest
	if err := c.Bind(&req); err != nil {
		return writeAPIError(c, fmt.Errorf("%w: decoding request body: %v", apierr.ErrInvalidRequest, err))
	}
	if len(req.Mods) == 0 {
		return writeAPIError(c, fmt.Errorf("%w: mods must be non-empty", apierr.ErrInvalidRequest))
	}

	mods := make([]domain.Mod, len(req.Mods))
	for i, m := range req.Mods {
		if m.SourceID == "" || m.Name == "" {
			return writeAPIError(c, fmt.Errorf("%w: every mod needs a name and source_id", apierr.ErrInvalidRequest))
		}
		mods[i] = domain.Mod{SourceID: m.SourceID, Name: m.Name, Summary: m.Description}
	}

	result, err := s.categorizer.Categorize(c.Request().Context(), mods)
	if err != nil {
		return writeAPIError(c, err)
	}

	modToCategory := make(map[string]string, len(result.Assignments))
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, a := range result.Assignments {
		modToCategory[a.SourceID] = string(a.Category)
		if _, ok := seen[string(a.Category)]; !ok {
			seen[string(a.Category)] = struct{}{}
			categories = append(categories, string(a.Category))
		}
	}

	return c.JSON(http.StatusOK, autoSortResponse{
		Success:       true,
		Categories:    categories,
		ModToCategory: modToCategory,
		Stats: autoSortStats{
			TokensUsed: int64(result.Usage.InputTokens + result.Usage.OutputTokens),
			CostUSD:    result.CostUSD,
		},
	})
}
