package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/pipeline"
)

// statQuery is one figure of the quick stats, answered by a single SELECT
type statQuery struct {
	Label string
	SQL   string
}

var statQueries = []statQuery{
	{"Customers", "SELECT COUNT(*) AS count FROM customers"},
	{"Products", "SELECT COUNT(*) AS count FROM products"},
	{"Orders", "SELECT COUNT(*) AS count FROM orders"},
	{"Total Sales", "SELECT COALESCE(SUM(total_amount), 0) AS total FROM orders"},
}

// statValue is the answer to one statQuery
type statValue struct {
	Label string
	Value string
	Err   error
}

func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:        "stats",
		Usage:       "Display database statistics",
		Description: `Show customer, product and order counts and the total sales amount.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, closeStore, err := openStoreFor(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer closeStore()

			return runStats(ctx, output(cmd), pipeline.NewExecutor(store))
		},
	}
}

// collectStats runs every stat query concurrently through runner
func collectStats(ctx context.Context, runner *pipeline.Executor) ([]statValue, error) {
	values := make([]statValue, len(statQueries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(len(statQueries))

	for i, q := range statQueries {
		g.Go(func() error {
			values[i] = statValue{Label: q.Label}

			res, err := runner.Execute(gctx, q.SQL)
			if err != nil {
				return err
			}

			if !res.OK() {
				values[i].Err = res.Err
				return nil
			}

			v, ok := res.Rows.Scalar()
			if !ok {
				values[i].Err = errors.Newf(errors.ErrTypeInternal, "expected one value, got %d rows", res.Rows.Len())
				return nil
			}

			values[i].Value = v.String()

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return values, nil
}

func runStats(ctx context.Context, w io.Writer, runner *pipeline.Executor) error {
	values, err := collectStats(ctx, runner)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "Database Statistics\n")
	_, _ = fmt.Fprintf(w, "===================\n\n")

	failed := 0

	for _, v := range values {
		if v.Err != nil {
			failed++

			_, _ = fmt.Fprintf(w, "%-12s %s\n", v.Label+":", dimColor.Sprint("unavailable"))

			continue
		}

		_, _ = fmt.Fprintf(w, "%-12s %s\n", v.Label+":", v.Value)
	}

	if failed == len(values) {
		return errors.Wrap(values[0].Err, errors.ErrTypeDatabase, "the demo tables are missing").
			WithSuggestion("Run 'askdb seed' to create them")
	}

	return nil
}
