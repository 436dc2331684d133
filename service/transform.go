// Package service holds the application operations: uploading, retrieving
// and transforming images, and account management.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Skryldev/image-host/core"
	apperrors "github.com/Skryldev/image-host/errors"
	"github.com/Skryldev/image-host/pipeline"
	"github.com/Skryldev/image-host/utils"
)

// DefaultOutputFormat applies when a transform request names no format.
const DefaultOutputFormat = core.FormatJPEG

// Runner executes a pipeline off the request goroutine. *core.Processor
// implements it.
type Runner interface {
	Run(ctx context.Context, id string, runner core.PipelineRunner, input *core.ImageData) (*core.ImageData, error)
}

// TransformRequest is one transformation call as received from a client.
type TransformRequest struct {
	UserID       int64
	ImageID      int64
	Action       string
	Params       core.Params
	OutputFormat string // empty means DefaultOutputFormat
}

// TransformResult is the ledger row serving the request. Reused is true when
// an identical transformation already existed and nothing new was written.
type TransformResult struct {
	Transformation core.Transformation
	Reused         bool
}

// Transformer orchestrates lookup → validate → dedup → decode/op/encode →
// persist → record. It is safe for concurrent use.
type Transformer struct {
	images    core.ImageRepository
	ledger    core.Ledger
	storage   core.Storage
	registry  core.Registry
	runner    Runner
	events    core.EventPublisher
	logger    core.Logger
	hooks     []core.Hook
	maxPixels int64
}

// TransformerDeps bundles the collaborators of a Transformer.
type TransformerDeps struct {
	Images   core.ImageRepository
	Ledger   core.Ledger
	Storage  core.Storage
	Registry core.Registry
	Runner   Runner
	Events   core.EventPublisher
	Logger   core.Logger
	Hooks    []core.Hook

	// MaxPixels bounds the produced raster; <= 0 means the config default.
	MaxPixels int64
}

func NewTransformer(d TransformerDeps) *Transformer {
	return &Transformer{
		images:    d.Images,
		ledger:    d.Ledger,
		storage:   d.Storage,
		registry:  d.Registry,
		runner:    d.Runner,
		events:    d.Events,
		logger:    d.Logger,
		hooks:     d.Hooks,
		maxPixels: d.MaxPixels,
	}
}

// Transform applies req to the caller's image. An image the caller does not
// own is reported as not found before the request itself is validated. A
// repeat of an earlier request returns the earlier row without decoding or
// writing anything. No ledger row or blob survives a failed call.
func (t *Transformer) Transform(ctx context.Context, req TransformRequest) (*TransformResult, error) {
	const op = "transform"

	img, err := t.images.Get(ctx, req.ImageID, req.UserID)
	if err != nil {
		return nil, imageLookupErr(op, err)
	}

	action, err := core.ParseAction(req.Action)
	if err != nil {
		return nil, err
	}
	format := DefaultOutputFormat
	if req.OutputFormat != "" {
		if format, err = core.ParseFormat(req.OutputFormat); err != nil {
			return nil, err
		}
	}
	if _, ok := t.registry.EncoderFor(format); !ok {
		return nil, apperrors.New(apperrors.CategoryInvalid, op,
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	p, err := pipeline.Build(t.registry, action, req.Params, format, t.maxPixels, t.hooks...)
	if err != nil {
		return nil, err
	}

	params := core.Canonical(action, req.Params, format)
	if existing, found, err := t.ledger.FindMatching(ctx, img.ID, action, params); err != nil {
		return nil, err
	} else if found {
		return &TransformResult{Transformation: *existing, Reused: true}, nil
	}

	src, err := t.load(ctx, img.Locator)
	if err != nil {
		return nil, err
	}

	jobID := uuid.NewString()
	start := time.Now()
	out, err := t.runner.Run(ctx, jobID, p, src)
	if err != nil {
		t.logger.Warn("transform failed",
			"job_id", jobID, "image_id", img.ID, "action", string(action),
			"category", string(apperrors.CategoryOf(err)), "error", err.Error())
		return nil, err
	}

	locator, err := t.storage.Save(ctx, out.Data, format.ContentType(), "")
	if err != nil {
		return nil, err
	}

	tr := core.Transformation{ImageID: img.ID, Action: action, Params: params, Locator: locator}
	created, err := t.ledger.Insert(ctx, &tr)
	if err != nil {
		discard(t.storage, t.logger, locator)
		return nil, err
	}
	if !created {
		// A concurrent identical request recorded its row first.
		discard(t.storage, t.logger, locator)
		return &TransformResult{Transformation: tr, Reused: true}, nil
	}

	t.logger.Info("transformation stored",
		"job_id", jobID, "image_id", img.ID, "transformation_id", tr.ID,
		"action", string(action), "params", params, "bytes", len(out.Data),
		"duration_ms", time.Since(start).Milliseconds())

	publish(ctx, t.events, t.logger, core.Event{
		Type:             core.EventImageTransformed,
		ImageID:          img.ID,
		UserID:           req.UserID,
		TransformationID: tr.ID,
		Action:           action,
		Locator:          locator,
	})
	return &TransformResult{Transformation: tr}, nil
}

// load reads the source blob and sniffs its format.
func (t *Transformer) load(ctx context.Context, locator string) (*core.ImageData, error) {
	rc, err := t.storage.Open(ctx, locator)
	if err != nil {
		return nil, blobLookupErr("transform.load", err)
	}
	defer rc.Close()

	data, err := utils.ReadAll(ctx, rc, 0)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "transform.load", err)
	}
	format, err := core.ParseFormat(utils.DetectFormat(data))
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "transform.load", apperrors.ErrUnsupportedFormat)
	}
	return &core.ImageData{Data: data, Format: format}, nil
}
