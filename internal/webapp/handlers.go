package webapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"shop-post-bot/internal/moderation"
	"shop-post-bot/internal/photostore"
	"shop-post-bot/internal/storage"
)

type categoryResponse struct {
	ID         int64    `json:"id"`
	Name       string   `json:"name"`
	Emoji      string   `json:"emoji"`
	Label      string   `json:"label"`
	SpecFields []string `json:"spec_fields"`
}

type shopAddressResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type specSearchRequest struct {
	ProductName string `json:"product_name" binding:"required"`
	CategoryID  int64  `json:"category_id"  binding:"required"`
}

type postRequest struct {
	CategoryID    int64             `json:"category_id" binding:"required"`
	ProductName   string            `json:"product_name"`
	Specs         map[string]string `json:"specs"`
	Photos        []string          `json:"photos"`
	AvitoLink     string            `json:"avito_link"`
	Price         string            `json:"price"`
	ProductID     string            `json:"product_id"`
	ShopAddressID int64             `json:"shop_address_id"`
	ShopAddress   string            `json:"shop_address"`
	ContactLink   string            `json:"contact_link"`
}

type buttonResponse struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

func (s *Server) listCategories(c *gin.Context) {
	categories, err := s.opts.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to list categories", err)
		return
	}
	resp := make([]categoryResponse, 0, len(categories))
	for _, cat := range categories {
		fields := cat.SpecFields
		if fields == nil {
			fields = []string{}
		}
		resp = append(resp, categoryResponse{ID: cat.ID, Name: cat.Name, Emoji: cat.Emoji, Label: cat.Label(), SpecFields: fields})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listShopAddresses(c *gin.Context) {
	addresses, err := s.opts.Catalog.ListShopAddresses(c.Request.Context())
	if err != nil {
		s.internalError(c, "Failed to list shop addresses", err)
		return
	}
	resp := make([]shopAddressResponse, 0, len(addresses))
	for _, a := range addresses {
		resp = append(resp, shopAddressResponse{ID: a.ID, Name: a.Name, Address: a.Address})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) searchSpecs(c *gin.Context) {
	var req specSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	category, err := s.opts.Catalog.GetCategory(c.Request.Context(), req.CategoryID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown category"})
		return
	}
	if err != nil {
		s.internalError(c, "Failed to load category", err)
		return
	}

	specs := map[string]string{}
	if s.opts.Specs != nil {
		if found := s.opts.Specs.Lookup(c.Request.Context(), req.ProductName, category); found != nil {
			specs = found
		}
	}
	c.JSON(http.StatusOK, gin.H{"specs": specs})
}

func (s *Server) previewPost(c *gin.Context) {
	sub, ok := s.bindSubmission(c)
	if !ok {
		return
	}
	preview, err := s.opts.Lifecycle.Preview(c.Request.Context(), sub)
	if err != nil {
		s.submissionError(c, err)
		return
	}
	var buttons []buttonResponse
	for _, row := range preview.Buttons {
		for _, b := range row {
			buttons = append(buttons, buttonResponse{Text: b.Text, URL: b.URL})
		}
	}
	c.JSON(http.StatusOK, gin.H{"text": preview.Body, "buttons": buttons})
}

func (s *Server) createPost(c *gin.Context) {
	sub, ok := s.bindSubmission(c)
	if !ok {
		return
	}
	id, err := s.opts.Lifecycle.SubmitListing(c.Request.Context(), sub)
	if err != nil {
		s.submissionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id, "status": string(storage.StatusPending)})
}

func (s *Server) uploadPhoto(c *gin.Context) {
	header, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	file, err := header.Open()
	if err != nil {
		s.internalError(c, "Failed to open uploaded photo", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, photostore.MaxPhotoSize+1))
	if err != nil {
		s.internalError(c, "Failed to read uploaded photo", err)
		return
	}
	link, err := s.opts.Photos.Upload(c.Request.Context(), data)
	if errors.Is(err, photostore.ErrUnsupportedPhoto) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.internalError(c, "Failed to store photo", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": link})
}

func (s *Server) bindSubmission(c *gin.Context) (moderation.Submission, bool) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return moderation.Submission{}, false
	}
	address, err := s.resolveAddress(c.Request.Context(), req)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown shop address"})
		return moderation.Submission{}, false
	}
	if err != nil {
		s.internalError(c, "Failed to load shop address", err)
		return moderation.Submission{}, false
	}

	user := currentUser(c)
	return moderation.Submission{
		SubmitterID:   user.ID,
		SubmitterName: user.DisplayName(),
		CategoryID:    req.CategoryID,
		ProductName:   req.ProductName,
		Specs:         req.Specs,
		Photos:        req.Photos,
		ExternalLink:  req.AvitoLink,
		Price:         req.Price,
		ExternalID:    req.ProductID,
		ShopAddress:   address,
		ContactLink:   req.ContactLink,
	}, true
}

// resolveAddress copies the chosen address text so later edits of the
// address do not change listings already submitted.
func (s *Server) resolveAddress(ctx context.Context, req postRequest) (string, error) {
	if req.ShopAddressID == 0 {
		return req.ShopAddress, nil
	}
	a, err := s.opts.Catalog.GetShopAddress(ctx, req.ShopAddressID)
	if err != nil {
		return "", err
	}
	return a.Address, nil
}

func (s *Server) submissionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, moderation.ErrInvalidSubmission):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, moderation.ErrRenderFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		s.internalError(c, "Failed to process listing", err)
	}
}

func (s *Server) internalError(c *gin.Context, msg string, err error) {
	s.logger.Errorf("%s: %v", msg, err)
	_ = c.Error(fmt.Errorf("%s: %w", msg, err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}
