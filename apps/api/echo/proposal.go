package echoapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/asset"
	"github.com/trezcool/tribunal/core/editor"
	"github.com/trezcool/tribunal/core/proposal"
)

type proposalApi struct {
	svc          *proposal.Service
	uploader     asset.Uploader
	maxAssetSize int64
}

func registerProposalAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := proposalApi{
		svc:          opts.ProposalSvc,
		uploader:     opts.Uploader,
		maxAssetSize: opts.MaxAssetSize,
	}

	pg := g.Group("/proposals", jwt, identityMiddleware())
	pg.POST("", api.create)
	pg.GET("", api.query)
	pg.GET("/approved", api.approved)
	pg.GET("/queue", api.queue, levelMiddleware(opts.MaestroLevel))
	pg.GET("/stream", api.stream)

	// detail endpoints
	dg := pg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PATCH("", api.update)
	dg.DELETE("", api.withdraw)
	dg.POST("/content", api.editContent)
	dg.POST("/blocks/:blockId/asset", api.attachAsset)
	dg.POST("/submit", api.submit)
	dg.POST("/votes", api.vote)
	dg.POST("/reject", api.reject)
	dg.GET("/render", api.render)
	dg.GET("/preview", api.preview)
}

type (
	EditContentRequest struct {
		Ops []editor.Op `json:"ops"`
	}

	VoteRequest struct {
		Decision proposal.Decision `json:"decision"`
	}

	RejectRequest struct {
		Reason string `json:"reason"`
	}
)

// Handlers

func (api *proposalApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data proposal.NewProposal
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProposal")
	}

	p, err := api.svc.Create(ctx.Request().Context(), claims.Author(), data)
	if err != nil {
		return errors.Wrap(err, "creating proposal")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *proposalApi) query(ctx echo.Context) error {
	proposals, err := api.svc.Query(ctx.Request().Context(), bindQueryFilter(ctx))
	if err != nil {
		return errors.Wrap(err, "querying proposals")
	}
	return ctx.JSON(http.StatusOK, proposals)
}

// approved lists what learners of ?hierarchy= may see.
func (api *proposalApi) approved(ctx echo.Context) error {
	proposals, err := api.svc.Approved(ctx.Request().Context(), bindHierarchy(ctx))
	if err != nil {
		return errors.Wrap(err, "querying approved proposals")
	}
	return ctx.JSON(http.StatusOK, proposals)
}

// queue lists the pending proposals awaiting the vote of the current reviewer.
func (api *proposalApi) queue(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	filter := bindQueryFilter(ctx)
	filter.Status = proposal.StatusPending
	proposals, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying pending proposals")
	}
	id := claims.Subject
	proposals = lo.Filter(proposals, func(p proposal.Proposal, _ int) bool {
		return lo.Contains(p.Votes.Maestros, id) &&
			!lo.Contains(p.Votes.Approvals, id) && !lo.Contains(p.Votes.Rejections, id)
	})
	return ctx.JSON(http.StatusOK, proposals)
}

func (api *proposalApi) retrieve(ctx echo.Context) error {
	p, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting proposal")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *proposalApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data proposal.UpdateProposal
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProposal")
	}

	p, err := api.svc.UpdateDraft(ctx.Request().Context(), ctx.Param("id"), claims.Author(), data)
	if err != nil {
		return errors.Wrap(err, "updating proposal")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *proposalApi) withdraw(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Withdraw(ctx.Request().Context(), ctx.Param("id"), claims.Author()); err != nil {
		return errors.Wrap(err, "withdrawing proposal")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *proposalApi) editContent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data EditContentRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EditContentRequest")
	}

	p, err := api.svc.EditContent(ctx.Request().Context(), ctx.Param("id"), claims.Author(), data.Ops...)
	if err != nil {
		return errors.Wrap(err, "editing content")
	}
	return ctx.JSON(http.StatusOK, p)
}

// attachAsset expects a multipart form with the asset under "file".
func (api *proposalApi) attachAsset(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "file", Error: "a file is required"})
	}
	if api.maxAssetSize > 0 && fh.Size > api.maxAssetSize {
		return errors.Wrapf(asset.ErrTooLarge, "%d bytes (max %d)", fh.Size, api.maxAssetSize)
	}
	f, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening uploaded file")
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return errors.Wrap(err, "reading uploaded file")
	}

	p, err := api.svc.AttachAsset(
		ctx.Request().Context(), ctx.Param("id"), ctx.Param("blockId"), claims.Author(),
		api.uploader, asset.Asset{FileName: fh.Filename, Data: data},
	)
	if err != nil {
		return errors.Wrap(err, "attaching asset")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *proposalApi) submit(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	p, err := api.svc.Submit(ctx.Request().Context(), ctx.Param("id"), claims.Author())
	if err != nil {
		return errors.Wrap(err, "submitting proposal")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *proposalApi) vote(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data VoteRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VoteRequest")
	}

	p, err := api.svc.CastVote(ctx.Request().Context(), ctx.Param("id"), claims.Reviewer(), data.Decision)
	if err != nil {
		return errors.Wrap(err, "casting vote")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *proposalApi) reject(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data RejectRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RejectRequest")
	}

	p, err := api.svc.Reject(ctx.Request().Context(), ctx.Param("id"), claims.Reviewer(), data.Reason)
	if err != nil {
		return errors.Wrap(err, "rejecting proposal")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *proposalApi) render(ctx echo.Context) error {
	doc, err := api.svc.Render(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "rendering proposal")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *proposalApi) preview(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	doc, err := api.svc.Preview(ctx.Request().Context(), ctx.Param("id"), claims.Author())
	if err != nil {
		return errors.Wrap(err, "previewing proposal")
	}
	return ctx.JSON(http.StatusOK, doc)
}

// stream pushes, as server-sent events, the proposals matching the query params every time they change.
func (api *proposalApi) stream(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	filter := bindQueryFilter(ctx)

	events, err := api.svc.Watch(reqCtx)
	if err != nil {
		return errors.Wrap(err, "watching proposals")
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	write := func(version int64) error {
		proposals, err := api.svc.Query(reqCtx, filter)
		if err != nil {
			return err
		}
		data, err := json.Marshal(proposals)
		if err != nil {
			return err
		}
		if _, err = fmt.Fprintf(res, "id: %d\nevent: proposals\ndata: %s\n\n", version, data); err != nil {
			return err
		}
		res.Flush()
		return nil
	}

	// initial state, then one event per change
	if err = write(0); err != nil {
		return nil // headers are sent, nothing more to report
	}
	for evt := range events {
		if err = write(evt.Version); err != nil {
			break
		}
	}
	for range events { // drain until the watch stops
	}
	return nil
}
