package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/newsroomkit/editorial/pkg/editorial"
)

// PostHandler handles HTTP requests for posts using pkg/editorial
type PostHandler struct {
	service editorial.Service
	images  editorial.ImageStore
}

// NewPostHandler creates a new post handler
func NewPostHandler(service editorial.Service, images editorial.ImageStore) *PostHandler {
	return &PostHandler{
		service: service,
		images:  images,
	}
}

// Routes returns the routes for posts
func (h *PostHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(ActingUser)

	r.Post("/", h.CreatePost)
	r.Get("/", h.ListPosts)
	r.Get("/{id}", h.GetPost)
	r.Put("/{id}", h.UpdatePost)
	r.Delete("/{id}", h.DeletePost)

	r.Get("/{id}/state", h.GetState)
	r.Get("/{id}/history", h.GetHistory)

	// Edit lock
	r.Get("/{id}/lock", h.InspectLock)
	r.Put("/{id}/lock", h.AcquireLock)
	r.Delete("/{id}/lock", h.ReleaseLock)

	// Placements
	r.Post("/{id}/publish", h.Publish)
	r.Get("/{id}/publications", h.ListPublications)
	r.Put("/{id}/publications", h.ReplacePublications)

	// Image slots
	r.Post("/{id}/images", h.UploadImage)
	r.Get("/{id}/images/{imageID}/url", h.GetImageURL)

	return r
}

// CreatePostRequest is the request body for creating a post
type CreatePostRequest struct {
	StateID          int         `json:"state_id"`
	Title            string      `json:"title"`
	Body             string      `json:"body"`
	Content          string      `json:"content"`
	Short            string      `json:"short"`
	Commentary       string      `json:"commentary"`
	ExternalLink     string      `json:"external_link"`
	ExternalSourceID *uuid.UUID  `json:"external_source_id,omitempty"`
	ItemTypeID       *uuid.UUID  `json:"item_type_id,omitempty"`
	MetaTitle        string      `json:"meta_title"`
	MetaDescription  string      `json:"meta_description"`
	MetaKeywords     string      `json:"meta_keywords"`
	Keywords         []uuid.UUID `json:"keywords,omitempty"`
	Tags             []uuid.UUID `json:"tags,omitempty"`
}

// UpdatePostRequest is the request body for updating a post. Absent fields are
// left untouched.
type UpdatePostRequest struct {
	StateID          *int        `json:"state_id,omitempty"`
	Title            *string     `json:"title,omitempty"`
	Body             *string     `json:"body,omitempty"`
	Content          *string     `json:"content,omitempty"`
	Short            *string     `json:"short,omitempty"`
	Commentary       *string     `json:"commentary,omitempty"`
	ExternalLink     *string     `json:"external_link,omitempty"`
	ExternalSourceID *uuid.UUID  `json:"external_source_id,omitempty"`
	ItemTypeID       *uuid.UUID  `json:"item_type_id,omitempty"`
	MetaTitle        *string     `json:"meta_title,omitempty"`
	MetaDescription  *string     `json:"meta_description,omitempty"`
	MetaKeywords     *string     `json:"meta_keywords,omitempty"`
	Lock             *bool       `json:"lock,omitempty"`
	Keywords         []uuid.UUID `json:"keywords,omitempty"`
	Tags             []uuid.UUID `json:"tags,omitempty"`

	Publish      *PublishRequest            `json:"publish,omitempty"`
	Publications []editorial.PlacementInput `json:"publications,omitempty"`
}

// PublishRequest is the request body for the implicit publish path
type PublishRequest struct {
	SectionID  uuid.UUID  `json:"section_id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	ItemTypeID *uuid.UUID `json:"item_type_id,omitempty"`
	IsFeatured bool       `json:"is_featured"`
}

// ReplacePublicationsRequest is the request body for the explicit placement path
type ReplacePublicationsRequest struct {
	Placements []editorial.PlacementInput `json:"placements"`
}

// StateResponse is the response body for the derived lifecycle state
type StateResponse struct {
	State string `json:"state"`
}

// ImageURLResponse carries the serving URL for an uploaded image
type ImageURLResponse struct {
	URL string `json:"url"`
}

// CreatePost creates a new post
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, _ := UserFromContext(r.Context())

	post, err := h.service.CreatePost(r.Context(), editorial.CreatePostRequest{
		ActingUserID:     userID,
		StateID:          editorial.StoredState(req.StateID),
		Title:            req.Title,
		Body:             req.Body,
		Content:          req.Content,
		Short:            req.Short,
		Commentary:       req.Commentary,
		ExternalLink:     req.ExternalLink,
		ExternalSourceID: req.ExternalSourceID,
		ItemTypeID:       req.ItemTypeID,
		MetaTitle:        req.MetaTitle,
		MetaDescription:  req.MetaDescription,
		MetaKeywords:     req.MetaKeywords,
		Keywords:         req.Keywords,
		Tags:             req.Tags,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}

	slog.Info("Post created", "post_id", post.ID.String(), "user_id", userID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, post)
}

// GetPost retrieves a post with its derived state, lock and relations
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetPostDetails(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, details)
}

// ListPosts lists posts with optional filters
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	var filters editorial.PostListFilters

	if v := r.URL.Query().Get("state"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || !editorial.StoredState(n).Valid() {
			http.Error(w, "Invalid state filter", http.StatusBadRequest)
			return
		}
		state := editorial.StoredState(n)
		filters.State = &state
	}
	if v := r.URL.Query().Get("waiting_list"); v != "" {
		waiting, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid waiting_list filter", http.StatusBadRequest)
			return
		}
		filters.WaitingList = &waiting
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		filters.Limit = &limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			http.Error(w, "Invalid offset", http.StatusBadRequest)
			return
		}
		filters.Offset = &offset
	}

	posts, err := h.service.ListPosts(r.Context(), editorial.ListPostsRequest{Filters: filters})
	if err != nil {
		renderError(w, r, err)
		return
	}
	if posts == nil {
		posts = []*editorial.Post{}
	}

	render.JSON(w, r, posts)
}

// UpdatePost applies a partial update through the mutation pipeline
func (h *PostHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, _ := UserFromContext(r.Context())

	update := editorial.UpdatePostRequest{
		PostID:           id,
		ActingUserID:     userID,
		Title:            req.Title,
		Body:             req.Body,
		Content:          req.Content,
		Short:            req.Short,
		Commentary:       req.Commentary,
		ExternalLink:     req.ExternalLink,
		ExternalSourceID: req.ExternalSourceID,
		ItemTypeID:       req.ItemTypeID,
		MetaTitle:        req.MetaTitle,
		MetaDescription:  req.MetaDescription,
		MetaKeywords:     req.MetaKeywords,
		Lock:             req.Lock,
		Keywords:         req.Keywords,
		Tags:             req.Tags,
		Publications:     req.Publications,
	}
	if req.StateID != nil {
		state := editorial.StoredState(*req.StateID)
		update.StateID = &state
	}
	if req.Publish != nil {
		update.Publish = &editorial.PublishCriteria{
			SectionID:  req.Publish.SectionID,
			CategoryID: req.Publish.CategoryID,
			ItemTypeID: req.Publish.ItemTypeID,
			IsFeatured: req.Publish.IsFeatured,
		}
	}

	post, err := h.service.UpdatePost(r.Context(), update)
	if err != nil {
		renderError(w, r, err)
		return
	}

	slog.Info("Post updated", "post_id", id.String(), "user_id", userID.String())
	render.JSON(w, r, post)
}

// DeletePost deletes a post. Posts that were ever placed are soft-deleted,
// the rest are removed outright.
func (h *PostHandler) DeletePost(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	userID, _ := UserFromContext(r.Context())

	if err := h.service.DeletePost(r.Context(), editorial.DeletePostRequest{
		PostID:       id,
		ActingUserID: userID,
	}); err != nil {
		renderError(w, r, err)
		return
	}

	slog.Info("Post deleted", "post_id", id.String(), "user_id", userID.String())
	w.WriteHeader(http.StatusNoContent)
}

// GetState returns the derived lifecycle state
func (h *PostHandler) GetState(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	state, err := h.service.EffectiveState(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, StateResponse{State: string(state)})
}

// GetHistory returns the audit ledger for a post, optionally filtered by action
func (h *PostHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	req := editorial.HistoryRequest{PostID: id}
	if v := r.URL.Query().Get("action"); v != "" {
		action := editorial.AuditAction(v)
		switch action {
		case editorial.AuditCreate, editorial.AuditUpdate, editorial.AuditDelete:
			req.Action = &action
		default:
			http.Error(w, "Invalid action filter", http.StatusBadRequest)
			return
		}
	}

	records, err := h.service.History(r.Context(), req)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if records == nil {
		records = []*editorial.AuditRecord{}
	}

	render.JSON(w, r, records)
}

// InspectLock returns the lock row regardless of state
func (h *PostHandler) InspectLock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	lock, err := h.service.InspectLock(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, lock)
}

// AcquireLock claims the edit lock for the acting user
func (h *PostHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	userID, _ := UserFromContext(r.Context())

	lock, err := h.service.AcquireLock(r.Context(), id, userID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	slog.Info("Lock acquired", "post_id", id.String(), "user_id", userID.String())
	render.JSON(w, r, lock)
}

// ReleaseLock releases the edit lock held by the acting user
func (h *PostHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	userID, _ := UserFromContext(r.Context())

	if err := h.service.ReleaseLock(r.Context(), id, userID); err != nil {
		renderError(w, r, err)
		return
	}

	slog.Info("Lock released", "post_id", id.String(), "user_id", userID.String())
	w.WriteHeader(http.StatusNoContent)
}

// Publish places the post into catalog-resolved slots
func (h *PostHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	userID, _ := UserFromContext(r.Context())

	pubs, err := h.service.Publish(r.Context(), editorial.PublishPostRequest{
		PostID:       id,
		ActingUserID: userID,
		Criteria: editorial.PublishCriteria{
			SectionID:  req.SectionID,
			CategoryID: req.CategoryID,
			ItemTypeID: req.ItemTypeID,
			IsFeatured: req.IsFeatured,
		},
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	if pubs == nil {
		pubs = []*editorial.Publication{}
	}

	slog.Info("Post published", "post_id", id.String(), "placements", len(pubs))
	render.JSON(w, r, pubs)
}

// ListPublications lists the current placement set
func (h *PostHandler) ListPublications(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	pubs, err := h.service.ListPublications(r.Context(), id)
	if err != nil {
		renderError(w, r, err)
		return
	}
	if pubs == nil {
		pubs = []*editorial.Publication{}
	}

	render.JSON(w, r, pubs)
}

// ReplacePublications swaps the whole placement set
func (h *PostHandler) ReplacePublications(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	var req ReplacePublicationsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Placements == nil {
		req.Placements = []editorial.PlacementInput{}
	}

	userID, _ := UserFromContext(r.Context())

	pubs, err := h.service.ReplacePublications(r.Context(), editorial.ReplacePublicationsRequest{
		PostID:       id,
		ActingUserID: userID,
		Placements:   req.Placements,
	})
	if err != nil {
		renderError(w, r, err)
		return
	}
	if pubs == nil {
		pubs = []*editorial.Publication{}
	}

	render.JSON(w, r, pubs)
}

// UploadImage stores the uploaded bytes and assigns the reference to one
// layout coordinate. Expects a multipart form with a "file" part plus "rows"
// and "cols" values.
func (h *PostHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		http.Error(w, "image uploads not configured", http.StatusNotImplemented)
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	rows, err := strconv.Atoi(r.FormValue("rows"))
	if err != nil || rows <= 0 {
		http.Error(w, "Invalid rows value", http.StatusBadRequest)
		return
	}
	cols, err := strconv.Atoi(r.FormValue("cols"))
	if err != nil || cols <= 0 {
		http.Error(w, "Invalid cols value", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Missing file part", http.StatusBadRequest)
		return
	}
	defer file.Close()

	userID, _ := UserFromContext(r.Context())
	imageID := uuid.New()

	if err := h.images.Upload(r.Context(), imageKey(id, imageID), file); err != nil {
		slog.Error("Failed to store image", "post_id", id.String(), "error", err)
		http.Error(w, "Failed to store image", http.StatusInternalServerError)
		return
	}

	slot := editorial.ImageSlot{ImageID: imageID, Rows: rows, Cols: cols}
	if err := h.service.SetPostImage(r.Context(), editorial.SetPostImageRequest{
		PostID:       id,
		ActingUserID: userID,
		Image:        slot,
	}); err != nil {
		// The stored bytes are orphaned on failure; best effort cleanup.
		if derr := h.images.Delete(r.Context(), imageKey(id, imageID)); derr != nil {
			slog.Warn("Failed to clean up orphaned image", "post_id", id.String(), "error", derr)
		}
		renderError(w, r, err)
		return
	}

	slog.Info("Image uploaded", "post_id", id.String(), "image_id", imageID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, slot)
}

// GetImageURL returns a serving URL for an uploaded image
func (h *PostHandler) GetImageURL(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		http.Error(w, "image uploads not configured", http.StatusNotImplemented)
		return
	}

	id, ok := parseID(w, r)
	if !ok {
		return
	}

	imageID, err := uuid.Parse(chi.URLParam(r, "imageID"))
	if err != nil {
		http.Error(w, "Invalid image ID", http.StatusBadRequest)
		return
	}

	url, err := h.images.GetURL(r.Context(), imageKey(id, imageID))
	if err != nil {
		slog.Error("Failed to build image URL", "post_id", id.String(), "error", err)
		http.Error(w, "Failed to build image URL", http.StatusInternalServerError)
		return
	}

	render.JSON(w, r, ImageURLResponse{URL: url})
}

func imageKey(postID, imageID uuid.UUID) string {
	return fmt.Sprintf("posts/%s/%s", postID, imageID)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		slog.Error("Invalid post ID", "post_id", idStr, "error", err)
		http.Error(w, "Invalid post ID", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// renderError maps domain errors onto HTTP statuses.
func renderError(w http.ResponseWriter, r *http.Request, err error) {
	var held *editorial.LockHeldError
	var unknownSlot *editorial.UnknownSlotError

	switch {
	case errors.As(err, &held):
		slog.Info("Lock contention", "owner", held.Owner.ID.String(), "holder", held.HolderID.String())
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, map[string]string{
			"error":     err.Error(),
			"holder_id": held.HolderID.String(),
		})
	case errors.As(err, &unknownSlot):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, editorial.ErrPostNotFound),
		errors.Is(err, editorial.ErrLockNotFound),
		errors.Is(err, editorial.ErrPublicationNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, editorial.ErrPermissionDenied):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, editorial.ErrDuplicateTitle), errors.Is(err, editorial.ErrDuplicateSlug):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, editorial.ErrDataIntegrity):
		slog.Error("Data integrity violation", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		slog.Error("Request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
