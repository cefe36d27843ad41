package store

import (
	"strings"
	"testing"
)

func TestRowPreservesColumnOrder(t *testing.T) {
	t.Parallel()
	row := NewRow(3)
	row.Set("zeta", Int(1))
	row.Set("alpha", Text("a"))
	row.Set("mid", Null())

	got := mustMarshal(t, row)
	want := `{"zeta":1,"alpha":"a","mid":null}`
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if strings.Join(row.Columns(), ",") != "zeta,alpha,mid" {
		t.Fatalf("unexpected columns %v", row.Columns())
	}
}

func TestRowDuplicateColumnKeepsFirstPositionLastValue(t *testing.T) {
	t.Parallel()
	row := NewRow(3)
	row.Set("a", Int(1))
	row.Set("b", Int(2))
	row.Set("a", Int(3))

	if row.Len() != 2 {
		t.Fatalf("expected 2 columns, got %d", row.Len())
	}
	got := mustMarshal(t, row)
	if got != `{"a":3,"b":2}` {
		t.Fatalf("unexpected row %s", got)
	}
}

func TestRowMap(t *testing.T) {
	t.Parallel()
	row := NewRow(2)
	row.Set("a", Text("x"))
	row.Set("b", Int(1))
	row.Map(func(column string, v Value) Value {
		if v.Kind() == KindText {
			return Text(strings.ToUpper(v.String()))
		}
		return v
	})
	if got := mustMarshal(t, row); got != `{"a":"X","b":1}` {
		t.Fatalf("unexpected row %s", got)
	}
}

func TestRowsMarshalEmpty(t *testing.T) {
	t.Parallel()
	var rows Rows
	if got := mustMarshal(t, rows); got != `[]` {
		t.Fatalf("expected [], got %s", got)
	}
	if got := mustMarshal(t, Rows{}); got != `[]` {
		t.Fatalf("expected [], got %s", got)
	}
}

func TestRowsMarshal(t *testing.T) {
	t.Parallel()
	row := NewRow(1)
	row.Set("ok", Int(1))
	if got := mustMarshal(t, Rows{row}); got != `[{"ok":1}]` {
		t.Fatalf("expected [{\"ok\":1}], got %s", got)
	}
}
