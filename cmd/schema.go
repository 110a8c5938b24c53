package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v3"

	"github.com/kyleking/askdb/internal/errors"
	"github.com/kyleking/askdb/internal/schema"
)

func SchemaCommand() *cli.Command {
	return &cli.Command{
		Name:        "schema",
		Usage:       "Display the database schema",
		Description: `Show the tables, columns and foreign keys the questions are answered against.`,
		ArgsUsage:   " [table]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "table", Usage: "table, text or json"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, closeStore, err := openStoreFor(ctx, cmd, true)
			if err != nil {
				return err
			}
			defer closeStore()

			desc, err := store.Describe(ctx)
			if err != nil {
				return err
			}

			return runSchema(output(cmd), desc, cmd.Args().First(), cmd.String("format"))
		},
	}
}

func runSchema(w io.Writer, desc *schema.Descriptor, tableName, format string) error {
	if tableName != "" {
		t, ok := desc.Table(tableName)
		if !ok {
			return errors.Newf(errors.ErrTypeValidation, "table %q not found", tableName).
				WithSuggestion("Available tables: " + strings.Join(desc.TableNames(), ", "))
		}

		desc = &schema.Descriptor{Dialect: desc.Dialect, Tables: []schema.Table{*t}}
	}

	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(desc)
	case "text":
		_, err := fmt.Fprintln(w, desc.Format())
		return err
	case "", "table":
		renderSchemaTables(w, desc)
		return nil
	default:
		return errors.Newf(errors.ErrTypeValidation, "unknown schema format %q", format).
			WithSuggestion("Use table, text or json")
	}
}

func renderSchemaTables(w io.Writer, desc *schema.Descriptor) {
	if len(desc.Tables) == 0 {
		_, _ = fmt.Fprintln(w, "No tables.")
		return
	}

	for i, t := range desc.Tables {
		if i > 0 {
			_, _ = fmt.Fprintln(w)
		}

		_, _ = fmt.Fprintln(w, headerColor.Sprint("Table: "+t.Name))

		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleLight)
		tw.AppendHeader(table.Row{"Column", "Type", "Nullable", "Key"})

		for _, c := range t.Columns {
			nullable := "YES"
			if !c.Nullable {
				nullable = "NO"
			}

			tw.AppendRow(table.Row{c.Name, c.Type, nullable, columnKey(t, c)})
		}

		tw.Render()
	}
}

// columnKey describes the key role of c in t
func columnKey(t schema.Table, c schema.Column) string {
	var parts []string

	if c.PrimaryKey {
		parts = append(parts, "PK")
	}

	for _, fk := range t.ForeignKeys {
		for i, col := range fk.Columns {
			if col != c.Name {
				continue
			}

			ref := fk.RefTable
			if i < len(fk.RefColumns) {
				ref += "." + fk.RefColumns[i]
			}

			parts = append(parts, "FK "+ref)
		}
	}

	return strings.Join(parts, ", ")
}
