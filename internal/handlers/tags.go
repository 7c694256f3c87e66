package handlers

import "net/http"

// HandleTags serves GET /api/v1/tags, the caller's tags sorted by name.
func (h *Handler) HandleTags(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	session, ok := SessionFromContext(r.Context())
	if !ok {
		sendError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	tags, err := h.TagRepo.ListByUser(ctx, session.UserID)
	if err != nil {
		h.internalError(w, r, err, "failed to list tags")
		return
	}
	sendJSON(w, http.StatusOK, tags)
}
