package main

import (
	"context"
	"fmt"

	"github.com/go-mizu/xpg"
	"github.com/go-mizu/xpg/internal/table1"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

type (
	checkFlags struct {
		types  []string
		tables []string
	}
)

func (c *Cmd) getCheckCmd() *cobra.Command {
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Verifies types and tables against the database catalog",
		Long: `Verifies types and tables against the database catalog.

Every configured type is loaded from pg_type and pg_enum. Every configured
table is read from pg_attribute and its columns are checked for registered
types. Tables with a known record shape are also checked against that shape.`,
		RunE:              c.execCheck,
		DisableAutoGenTag: true,
	}
	checkCmd.PersistentFlags().StringSliceVarP(&c.checkFlags.types, "type", "t", nil, "user-defined type to load (repeatable, adds to config types)")
	checkCmd.PersistentFlags().StringSliceVarP(&c.checkFlags.tables, "table", "r", nil, "table to check (repeatable, adds to config tables)")
	return checkCmd
}

// knownShapes are the record shapes of the tables this module has
// repositories for.
func knownShapes() (map[string]xpg.Shape, error) {
	shape, err := xpg.ShapeOf[table1.Row]()
	if err != nil {
		return nil, err
	}
	return map[string]xpg.Shape{
		table1.TableName: shape,
	}, nil
}

func (c *Cmd) execCheck(cmd *cobra.Command, args []string) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := c.connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			c.log.Warn("Failed closing pool", zap.Error(err))
		}
	}()

	types := append(append([]string{}, cfg.Types...), c.checkFlags.types...)
	tables := append(append([]string{}, cfg.Tables...), c.checkFlags.tables...)

	reg := xpg.NewRegistry(xpg.WithLogger(c.log))
	if err := xpg.LoadTypes(ctx, pool, reg, types...); err != nil {
		return err
	}
	c.log.Info("Loaded types", zap.Strings("types", types))

	shapes, err := knownShapes()
	if err != nil {
		return err
	}
	failed := 0
	for _, table := range tables {
		if err := checkTable(ctx, pool, reg, table, shapes); err != nil {
			failed++
			c.log.Error("Table check failed", zap.String("table", table), zap.Error(err))
			continue
		}
		c.log.Info("Table check passed", zap.String("table", table))
	}
	if failed > 0 {
		return kerrors.WithKind(nil, xpg.ErrShapeMismatch, fmt.Sprintf("%d of %d tables failed the check", failed, len(tables)))
	}
	return nil
}

func checkTable(ctx context.Context, h xpg.Handle, reg *xpg.Registry, table string, shapes map[string]xpg.Shape) error {
	cols, err := xpg.TableColumns(ctx, h, reg, table)
	if err != nil {
		return err
	}
	if err := xpg.VerifyShape(reg, cols, xpg.ShapeFromColumns(cols)); err != nil {
		return err
	}
	if shape, ok := shapes[table]; ok {
		if err := xpg.VerifyShape(reg, cols, shape); err != nil {
			return err
		}
	}
	return nil
}
