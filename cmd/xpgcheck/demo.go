package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-mizu/xpg"
	"github.com/go-mizu/xpg/internal/table1"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

func (c *Cmd) getDemoCmd() *cobra.Command {
	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Runs the table1 statements against a database",
		Long: `Runs the table1 statements against a database: inserts through every
text, citext, mytext and my_enum column, selects the enum array, and inserts
twice inside one transaction.`,
		RunE:              c.execDemo,
		DisableAutoGenTag: true,
	}
	return demoCmd
}

func (c *Cmd) execDemo(cmd *cobra.Command, args []string) error {
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

	reg := xpg.NewRegistry(xpg.WithLogger(c.log))
	if err := xpg.LoadTypes(ctx, pool, reg, table1.Types()...); err != nil {
		return err
	}
	ex := xpg.NewExecutor(reg, xpg.WithLogger(c.log))
	repo := table1.New(ex, c.log)

	textNull := "insert_text_null_col"
	citextNull := "insert_citext_null_col"
	steps := []struct {
		name string
		run  func() (*table1.Row, error)
	}{
		{"insert_text_col", func() (*table1.Row, error) { return repo.InsertText(ctx, pool, "insert_text_col") }},
		{"insert_text_null_col", func() (*table1.Row, error) { return repo.InsertTextNull(ctx, pool, &textNull) }},
		{"insert_citext_col", func() (*table1.Row, error) { return repo.InsertCitext(ctx, pool, "insert_citext") }},
		{"insert_citext_null_col", func() (*table1.Row, error) { return repo.InsertCitextNull(ctx, pool, &citextNull) }},
		{"insert_mytext_col", func() (*table1.Row, error) { return repo.InsertMyText(ctx, pool, "insert_mytext_col") }},
		{"insert_mytext_null_col", func() (*table1.Row, error) {
			return repo.InsertMyTextNull(ctx, pool, table1.MyText.Text("insert_mytext_null_col"))
		}},
	}
	for _, s := range steps {
		row, err := s.run()
		if err != nil {
			return err
		}
		c.log.Info("Row", zap.String("step", s.name), zap.String("row", fmt.Sprintf("%+v", *row)))
	}

	// Non-text values never reach a citext column.
	_, err = repo.InsertCitextValues(ctx, pool, xpg.Int(42), xpg.Array("text", xpg.Text("hello"), xpg.Text("world")))
	if !errors.Is(err, xpg.ErrEncode) {
		return kerrors.WithMsg(err, "Expected citext insert of non-text values to be rejected")
	}
	c.log.Info("Rejected non-text citext values", zap.Error(err))

	enums, err := repo.SelectEnums(ctx, pool)
	if err != nil {
		return err
	}
	c.log.Info("Row", zap.String("step", "select_myenum_array"), zap.Strings("myenums", enums))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := repo.InsertInTx(ctx, tx, "insert_in_tx"); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			c.log.Error("Failed rolling back", zap.Error(rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	n, err := repo.CountText(ctx, pool, "insert_in_tx")
	if err != nil {
		return err
	}
	c.log.Info("Committed transaction", zap.Int64("insert_in_tx_rows", n))
	return nil
}
