package api

import (
	"errors"
	"net/http"

	"github.com/waypointgames/waypoint/pkg/catalog"
	"github.com/waypointgames/waypoint/pkg/page"
)

type pagesResponse struct {
	Pages []page.Page `json:"pages"`
}

type batchRequest struct {
	Pages []page.Page `json:"pages" validate:"required,min=1,max=500"`
}

type batchResponse struct {
	Pages []page.Page       `json:"pages"`
	IDMap map[string]string `json:"idMap"`
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.deps.Catalog.Pages(r.Context(), r.PathValue("gameID"), r.URL.Query().Get("chapterId"))
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if pages == nil {
		pages = []page.Page{}
	}
	writeJSON(w, http.StatusOK, pagesResponse{Pages: pages})
}

// createPages creates a batch of pages carrying temporary ids. The whole
// batch is rejected if any page is invalid or references a page that is
// neither in the batch nor already in the game.
func (s *Server) createPages(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pages, idMap, err := s.deps.Catalog.CreatePages(r.Context(), r.PathValue("gameID"), req.Pages)
	if errors.Is(err, catalog.ErrInvalidBatch) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
		return
	}
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, batchResponse{Pages: pages, IDMap: idMap})
}
