package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/tribunal/core"
	"github.com/trezcool/tribunal/core/proposal"
)

const orderingParam = "ordering"

// bindOrderings reads the "ordering" query param, eg: ?ordering=-submittedAt,title
func bindOrderings(ctx echo.Context) []core.Ordering {
	return core.ParseOrderings(ctx.QueryParam(orderingParam))
}

// bindQueryFilter reads the proposal filters from the query params. Unknown values match nothing.
func bindQueryFilter(ctx echo.Context) proposal.QueryFilter {
	filter := proposal.QueryFilter{
		Status:    proposal.Status(core.CleanString(ctx.QueryParam("status"), true /* lower */)),
		Category:  proposal.Category(core.CleanString(ctx.QueryParam("category"), true /* lower */)),
		AuthorID:  core.CleanString(ctx.QueryParam("author")),
		Search:    core.CleanString(ctx.QueryParam("search")),
		Orderings: bindOrderings(ctx),
	}
	filter.TargetHierarchy = bindHierarchy(ctx)
	return filter
}

func bindHierarchy(ctx echo.Context) int {
	h, err := strconv.Atoi(core.CleanString(ctx.QueryParam("hierarchy")))
	if err != nil {
		return 0
	}
	return h
}
