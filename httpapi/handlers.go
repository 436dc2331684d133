package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/service"
)

func currentUser(c *gin.Context) *core.User {
	return c.MustGet(userKey).(*core.User)
}

// param reads name from the query string first, then from the form body.
func param(c *gin.Context, name string) (string, bool) {
	if v, ok := c.GetQuery(name); ok {
		return v, true
	}
	return c.GetPostForm(name)
}

func intParam(c *gin.Context, name string) (*int, error) {
	raw, ok := param(c, name)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInvalid, "http.param",
			fmt.Errorf("Invalid value for %s: must be an integer", name))
	}
	return &n, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.New(apperrors.CategoryNotFound, "http.path", apperrors.ErrImageNotFound)
	}
	return id, nil
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) register(c *gin.Context) {
	var body credentials
	if err := c.ShouldBindJSON(&body); err != nil {
		renderError(c, s.log, apperrors.New(apperrors.CategoryInvalid, "http.register", errors.New("Invalid request body")))
		return
	}
	if _, err := s.users.Register(c.Request.Context(), body.Email, body.Password); err != nil {
		renderError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
}

// login accepts the OAuth2 password form (username/password) or a JSON body
// with email/password.
func (s *Server) login(c *gin.Context) {
	var body credentials
	if strings.HasPrefix(c.ContentType(), "application/json") {
		if err := c.ShouldBindJSON(&body); err != nil {
			renderError(c, s.log, apperrors.New(apperrors.CategoryInvalid, "http.login", errors.New("Invalid request body")))
			return
		}
	} else {
		body.Email = c.PostForm("username")
		body.Password = c.PostForm("password")
	}

	token, err := s.users.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token, "token_type": "bearer"})
}

func (s *Server) upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		renderError(c, s.log, apperrors.New(apperrors.CategoryInvalid, "http.upload", apperrors.ErrNoFile))
		return
	}
	defer file.Close()

	up, err := s.images.Upload(c.Request.Context(), currentUser(c).ID, header.Filename, file)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":          up.Image.ID,
		"filename":    up.Image.Filename,
		"uploaded_by": up.UploadedBy,
	})
}

func (s *Server) transform(c *gin.Context) {
	imageID, err := intParam(c, "image_id")
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	if imageID == nil {
		renderError(c, s.log, apperrors.New(apperrors.CategoryInvalid, "http.transform", errors.New("image_id required")))
		return
	}
	action, _ := param(c, "action")
	format, _ := param(c, "output_format")

	var p core.Params
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"width", &p.Width}, {"height", &p.Height},
		{"left", &p.Left}, {"top", &p.Top}, {"right", &p.Right}, {"bottom", &p.Bottom},
		{"angle", &p.Angle}, {"quality", &p.Quality},
	} {
		v, err := intParam(c, f.name)
		if err != nil {
			renderError(c, s.log, err)
			return
		}
		*f.dst = v
	}

	res, err := s.transformer.Transform(c.Request.Context(), service.TransformRequest{
		UserID:       currentUser(c).ID,
		ImageID:      int64(*imageID),
		Action:       action,
		Params:       p,
		OutputFormat: format,
	})
	if err != nil {
		renderError(c, s.log, err)
		return
	}

	tr := res.Transformation
	if res.Reused {
		c.JSON(http.StatusOK, gin.H{
			"message":           "Transformation already exists",
			"output_file":       service.BaseName(tr.Locator),
			"transformation_id": tr.ID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"original_image_id": tr.ImageID,
		"action":            tr.Action,
		"output_file":       service.BaseName(tr.Locator),
		"transformation_id": tr.ID,
	})
}

type imageItem struct {
	ID                  int64     `json:"id"`
	Filename            string    `json:"filename"`
	CreatedAt           time.Time `json:"created_at"`
	TransformationCount int       `json:"transformation_count"`
}

func (s *Server) list(c *gin.Context) {
	page, size := 1, 5
	for name, dst := range map[string]*int{"page": &page, "size": &size} {
		v, err := intParam(c, name)
		if err != nil {
			renderError(c, s.log, err)
			return
		}
		if v != nil {
			*dst = *v
		}
	}

	res, err := s.images.List(c.Request.Context(), currentUser(c).ID, page, size)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	items := make([]imageItem, len(res.Items))
	for i, it := range res.Items {
		items[i] = imageItem(it)
	}
	c.JSON(http.StatusOK, gin.H{
		"total": res.Total,
		"page":  res.Page,
		"size":  res.Size,
		"items": items,
	})
}

func (s *Server) getImage(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	tid, err := intParam(c, "transformation_id")
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	// 0 selects the original, as an absent parameter does.
	var transformationID *int64
	if tid != nil && *tid != 0 {
		v := int64(*tid)
		transformationID = &v
	}

	blob, err := s.images.Open(c.Request.Context(), currentUser(c).ID, id, transformationID)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	defer blob.Body.Close()

	c.DataFromReader(http.StatusOK, -1, blob.ContentType, blob.Body, map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", blob.Name),
	})
}

type transformationItem struct {
	ID         int64       `json:"id"`
	Action     core.Action `json:"action"`
	Params     string      `json:"params"`
	OutputFile string      `json:"output_file"`
	CreatedAt  time.Time   `json:"created_at"`
}

func (s *Server) history(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	list, err := s.images.History(c.Request.Context(), currentUser(c).ID, id)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	items := make([]transformationItem, len(list))
	for i, t := range list {
		items[i] = transformationItem{
			ID:         t.ID,
			Action:     t.Action,
			Params:     t.Params,
			OutputFile: service.BaseName(t.Locator),
			CreatedAt:  t.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"image_id": id, "items": items})
}

func (s *Server) deleteImage(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		renderError(c, s.log, err)
		return
	}
	if err := s.images.Delete(c.Request.Context(), currentUser(c).ID, id); err != nil {
		renderError(c, s.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
