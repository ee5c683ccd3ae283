/*
Package xpg is a typed value and transaction layer over database/sql for
PostgreSQL. It translates between application values and PostgreSQL types,
including enums, text domains such as citext, and one-dimensional arrays of
those, and runs statements through exclusively borrowed transactions.

# Overview

You write plain SQL with $n placeholders (or :name, see [Named]). Every
parameter is encoded through a [Registry] of codecs before anything is sent,
and every result column is decoded against a declared [Shape]. Type errors
surface as returned errors at the call, never as silently coerced values.

	reg := xpg.NewRegistry()
	_ = reg.RegisterEnum(xpg.MustEnumType("my_enum", "state1", "state2", "state3"), 0, 0)
	_ = reg.RegisterDomain(xpg.MustDomainType("mytext", "text", xpg.CompareDefault), 0, 0)
	ex := xpg.NewExecutor(reg)

Registration happens once at startup. [NewExecutor] seals the registry; a
sealed registry is read-only and shared across goroutines without locks.
[LoadTypes] reads enum members and domain bases from pg_type and pg_enum
instead of declaring them by hand.

# Values

A [Value] is a tagged union over null, text, bool, int, float, uuid, enum,
domain and array. Enum values are built only by [EnumType.Value], so an enum
value always names a declared member. Domain values decode into [DomainText];
the text is reachable only through Unwrap, so a domain never passes for a
plain string by accident. An empty array is a non-null value with zero
elements.

# Shapes and structs

A [Shape] lists the expected columns. Required columns must be present,
Optional columns read as null when absent, and NotNull columns reject a
present null. Extra columns are ignored.

[ShapeOf] derives a shape from a struct:

  - Fields bind by `db:"name"`; `type=` sets the PostgreSQL type.
  - Pointer fields are optional and nullable.
  - Nested structs can be flattened with `db:",inline"`.

# Transactions

A [*Tx] is borrowed exclusively for the duration of each statement, so
composed operations pass the same *Tx down one after another and see each
other's uncommitted writes. A second borrow while a statement is in flight
fails with [ErrTransactionBusy]. Commit and Rollback consume the Tx. A
statement cancelled through its context leaves the Tx aborted, and only
Rollback is then accepted. Nothing rolls back automatically.

# Error handling

Errors carry a kind usable with errors.Is ([ErrEncode], [ErrMissingColumn],
[ErrNoRows], ...) and positional detail usable with errors.As
([ColumnError], [ElementError], [ParamError], [BatchError]). Driver errors
that mean the connection is unusable are tagged [ErrConnection].
*/
package xpg
