// Package table1 is a typed repository over the table1 experiment schema:
// text, citext and mytext domain columns, a my_enum column and their
// nullable twins.
package table1

import (
	"context"

	"github.com/go-mizu/xpg"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"xorkevin.dev/kerrors"
)

const (
	TableName = "table1"

	StateOne   = "state1"
	StateTwo   = "state2"
	StateThree = "state3"
)

var (
	// MyEnum is the my_enum type
	MyEnum = xpg.MustEnumType("my_enum", StateOne, StateTwo, StateThree)
	// MyText is the mytext domain over text
	MyText = xpg.MustDomainType("mytext", "text", xpg.CompareDefault)
	// Citext is the citext extension type
	Citext = xpg.MustDomainType("citext", "text", xpg.CompareCaseInsensitive)
)

// Types lists the user-defined types table1 depends on.
func Types() []string {
	return []string{MyEnum.Name(), MyText.Name(), Citext.Name()}
}

// Register declares the table1 types in reg without catalog OIDs.
func Register(reg *xpg.Registry) error {
	if err := reg.RegisterEnum(MyEnum, 0, 0); err != nil {
		return err
	}
	if err := reg.RegisterDomain(MyText, 0, 0); err != nil {
		return err
	}
	if err := reg.RegisterDomain(Citext, 0, 0); err != nil {
		return err
	}
	return nil
}

type (
	// Row is one table1 row
	Row struct {
		ID         uuid.UUID       `db:"table1_id"`
		Text       string          `db:"text"`
		TextNull   *string         `db:"text_null"`
		Citext     xpg.DomainText  `db:"citext,type=citext"`
		CitextNull *xpg.DomainText `db:"citext_null,type=citext"`
		MyText     xpg.DomainText  `db:"mytext,type=mytext"`
		MyTextNull *xpg.DomainText `db:"mytext_null,type=mytext"`
		MyEnum     string          `db:"myenum,type=my_enum"`
		MyEnumNull *string         `db:"myenum_null,type=my_enum"`
	}

	// EnumArray is the result of selecting every myenum as one array
	EnumArray struct {
		MyEnums []string `db:"myenums,type=_my_enum"`
	}
)

const returningRow = ` RETURNING table1_id, text, text_null, citext, citext_null, mytext, mytext_null, myenum, myenum_null`

type (
	// Repo runs the table1 statements
	Repo struct {
		ex  *xpg.Executor
		log *zap.Logger
	}
)

// New creates a repo over ex
func New(ex *xpg.Executor, log *zap.Logger) *Repo {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repo{ex: ex, log: log.Named("table1")}
}

func (r *Repo) insertOne(ctx context.Context, h xpg.Handle, query string, args ...any) (*Row, error) {
	row, err := xpg.Get[Row](ctx, r.ex, h, query+returningRow, args...)
	if err != nil {
		return nil, err
	}
	r.log.Debug("Inserted row", zap.Stringer("table1_id", row.ID))
	return &row, nil
}

// InsertText inserts a row with only the text column set
func (r *Repo) InsertText(ctx context.Context, h xpg.Handle, text string) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (text) VALUES ($1)`, text)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting text")
	}
	return row, nil
}

// InsertTextNull inserts a row with only the nullable text column set
func (r *Repo) InsertTextNull(ctx context.Context, h xpg.Handle, text *string) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (text_null) VALUES ($1)`, text)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting nullable text")
	}
	return row, nil
}

// InsertCitext inserts a row with only the citext column set
func (r *Repo) InsertCitext(ctx context.Context, h xpg.Handle, text string) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (citext) VALUES ($1)`, xpg.Typed(Citext.Name(), Citext.Wrap(text)))
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting citext")
	}
	return row, nil
}

// InsertCitextNull inserts a row with only the nullable citext column set,
// casting a text parameter to citext in SQL
func (r *Repo) InsertCitextNull(ctx context.Context, h xpg.Handle, text *string) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (citext_null) VALUES ($1::TEXT::citext)`, text)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting nullable citext")
	}
	return row, nil
}

// InsertCitextValues inserts arbitrary values into the citext columns. Values
// that are not text are rejected with [xpg.ErrEncode] before the statement is
// sent.
func (r *Repo) InsertCitextValues(ctx context.Context, h xpg.Handle, citext, citextNull xpg.Value) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (citext, citext_null) VALUES ($1, $2)`,
		xpg.Typed(Citext.Name(), citext),
		xpg.Typed(Citext.Name(), citextNull),
	)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting citext values")
	}
	return row, nil
}

// InsertMyText inserts a row with only the mytext column set
func (r *Repo) InsertMyText(ctx context.Context, h xpg.Handle, text string) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (mytext) VALUES ($1::TEXT::mytext)`, text)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting mytext")
	}
	return row, nil
}

// InsertMyTextNull inserts a row with only the nullable mytext column set
func (r *Repo) InsertMyTextNull(ctx context.Context, h xpg.Handle, text xpg.DomainText) (*Row, error) {
	row, err := r.insertOne(ctx, h, `INSERT INTO table1 (mytext_null) VALUES ($1)`, xpg.Typed(MyText.Name(), text.AsValue()))
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed inserting nullable mytext")
	}
	return row, nil
}

// SetEnum updates myenum of every row whose text equals text
func (r *Repo) SetEnum(ctx context.Context, h xpg.Handle, text, state string) (int64, error) {
	v, err := MyEnum.Value(state)
	if err != nil {
		return 0, err
	}
	n, err := r.ex.NamedExec(ctx, h, `UPDATE table1 SET myenum = :state WHERE text = :text`, map[string]any{
		"state": v,
		"text":  text,
	})
	if err != nil {
		return 0, kerrors.WithMsg(err, "Failed updating myenum")
	}
	return n, nil
}

// SelectEnums reads myenum of every row as one array
func (r *Repo) SelectEnums(ctx context.Context, h xpg.Handle) ([]string, error) {
	row, err := xpg.Get[EnumArray](ctx, r.ex, h, `SELECT ARRAY(SELECT myenum FROM table1) AS myenums`)
	if err != nil {
		return nil, kerrors.WithMsg(err, "Failed selecting myenum array")
	}
	return row.MyEnums, nil
}

// InsertInTx inserts text twice through two composed operations sharing tx.
// Neither insert is visible outside tx until the caller commits.
func (r *Repo) InsertInTx(ctx context.Context, tx *xpg.Tx, text string) error {
	if _, err := r.ex.Exec(ctx, tx, `INSERT INTO table1 (text) VALUES ($1)`, text); err != nil {
		return kerrors.WithMsg(err, "Failed first insert in transaction")
	}
	return r.insertInTxNested(ctx, tx, text)
}

func (r *Repo) insertInTxNested(ctx context.Context, tx *xpg.Tx, text string) error {
	if _, err := r.ex.Exec(ctx, tx, `INSERT INTO table1 (text) VALUES ($1)`, text); err != nil {
		return kerrors.WithMsg(err, "Failed nested insert in transaction")
	}
	return nil
}

// CountText counts rows whose text equals text
func (r *Repo) CountText(ctx context.Context, h xpg.Handle, text string) (int64, error) {
	rec, err := r.ex.FetchOne(ctx, h, xpg.Shape{xpg.NotNull("count", "int8")}, `SELECT count(*) AS count FROM table1 WHERE text = $1`, text)
	if err != nil {
		return 0, kerrors.WithMsg(err, "Failed counting rows")
	}
	n, _ := rec.Get("count").AsInt()
	return n, nil
}
