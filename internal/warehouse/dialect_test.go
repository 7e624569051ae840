package warehouse

import (
	"errors"
	"testing"
)

func TestSnowflakeDialect_LookupSQL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     ObjectType
		obj     string
		want    string
		wantErr error
	}{
		{name: "table_uppercased", typ: TypeTables, obj: "orders", want: "SHOW TABLES LIKE 'ORDERS'"},
		{name: "pipe", typ: TypePipes, obj: "raw_pipe", want: "SHOW PIPES LIKE 'RAW_PIPE'"},
		{name: "stage", typ: TypeStages, obj: "my_stage", want: "SHOW STAGES LIKE 'MY_STAGE'"},
		{name: "quote_escaped", typ: TypeViews, obj: "o'brien", want: "SHOW VIEWS LIKE 'O''BRIEN'"},
		{name: "unknown_type", typ: ObjectType("WIDGETS"), obj: "x", wantErr: ErrUnsupportedObject},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, args, err := SnowflakeDialect{}.LookupSQL(tc.typ, tc.obj)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("LookupSQL() err=%v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupSQL() err=%v", err)
			}
			if got != tc.want {
				t.Fatalf("LookupSQL()=%q, want %q", got, tc.want)
			}
			if len(args) != 0 {
				t.Fatalf("LookupSQL() args=%v, want none", args)
			}
		})
	}
}

func TestUnqualifiedName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"orders":               "orders",
		"raw.orders":           "orders",
		`DB.SCHEMA."Orders"`:   "Orders",
		"  analytics.v_sales ": "v_sales",
	}
	for in, want := range cases {
		if got := UnqualifiedName(in); got != want {
			t.Fatalf("UnqualifiedName(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestError_UnwrapAndMessage(t *testing.T) {
	t.Parallel()

	base := errors.New("boom")
	err := &Error{Op: "exec", Stmt: "CREATE TABLE t (x INT)", Err: base}
	if !errors.Is(err, base) {
		t.Fatalf("errors.Is(Error, base)=false, want true")
	}
	if got := err.Error(); got != `warehouse exec "CREATE TABLE t (x INT)": boom` {
		t.Fatalf("Error()=%q", got)
	}

	noStmt := &Error{Op: "connect", Err: base}
	if got := noStmt.Error(); got != "warehouse connect: boom" {
		t.Fatalf("Error()=%q", got)
	}
}
