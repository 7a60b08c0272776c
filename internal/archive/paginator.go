package archive

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrPaginationDone is returned by Next once the final page has been read.
var ErrPaginationDone = errors.New("pagination finished")

type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// PageFunc fetches one page. The first call receives an empty cursor.
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Paginator walks a cursor-paged listing through an Executor. It is
// forward-only; start a new one to read the listing again.
type Paginator[T any] struct {
	exec   *Executor
	method string
	fetch  PageFunc[T]
	cursor string
	done   bool
}

func Paginate[T any](exec *Executor, method string, fetch PageFunc[T]) *Paginator[T] {
	if exec == nil {
		exec = NewExecutor(ExecutorOptions{})
	}
	return &Paginator[T]{exec: exec, method: method, fetch: fetch}
}

func (p *Paginator[T]) Done() bool {
	return p.done
}

// Next returns the items of the next page. A failed fetch leaves the cursor
// where it was.
func (p *Paginator[T]) Next(ctx context.Context) ([]T, error) {
	if p.done {
		return nil, ErrPaginationDone
	}
	cursor := p.cursor
	page, err := Execute(ctx, p.exec, p.method, func(ctx context.Context) (Page[T], error) {
		return p.fetch(ctx, cursor)
	})
	if err != nil {
		return nil, err
	}
	next := strings.TrimSpace(page.NextCursor)
	switch {
	case !page.HasMore:
		p.done = true
	case next == "":
		p.exec.logger.Warn("page reports more results without a cursor, stopping",
			zap.String("method", p.method),
		)
		p.done = true
	default:
		p.cursor = next
	}
	return page.Items, nil
}

// Collect drains the remaining pages into one slice.
func (p *Paginator[T]) Collect(ctx context.Context) ([]T, error) {
	var all []T
	for !p.done {
		items, err := p.Next(ctx)
		if err != nil {
			return all, err
		}
		all = append(all, items...)
	}
	return all, nil
}
