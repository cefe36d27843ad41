package classifier

import "testing"

func TestClassify_Admits(t *testing.T) {
	t.Parallel()
	cases := []string{
		"select 1 as ok",
		"SELECT * FROM users",
		"   select now()   ",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"select updated_at from t",
		"select * from t where name = 'doe'",
		"selectx",
	}
	for _, sql := range cases {
		if !Classify(sql) {
			t.Fatalf("expected %q to be admitted", sql)
		}
	}
}

func TestClassify_RejectsNonReadPrefix(t *testing.T) {
	t.Parallel()
	cases := []string{
		"",
		"   ",
		"insert into t values (1)",
		"explain select 1",
		"(select 1)",
		"show search_path",
		"delete from t",
	}
	for _, sql := range cases {
		ok, reason := Verdict(sql)
		if ok {
			t.Fatalf("expected %q to be rejected", sql)
		}
		if reason != ReasonNotRead {
			t.Fatalf("expected reason %q for %q, got %q", ReasonNotRead, sql, reason)
		}
	}
}

func TestClassify_RejectsSemicolon(t *testing.T) {
	t.Parallel()
	cases := []string{
		"select 1;",
		"select 1; select 2",
		"select ';' as x",
	}
	for _, sql := range cases {
		ok, reason := Verdict(sql)
		if ok {
			t.Fatalf("expected %q to be rejected", sql)
		}
		if reason != ReasonSemicolon {
			t.Fatalf("expected reason %q for %q, got %q", ReasonSemicolon, sql, reason)
		}
	}
}

func TestClassify_RejectsBlockedKeyword(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"with x as (delete from t returning *) select * from x": "delete",
		"select * from t for update":                            "update",
		"SELECT 1 AS x UNION SELECT 2 INTO TEMP t CREATE":       "create",
		"select do":                                             "do",
		"select copy from t":                                    "copy",
	}
	for sql, kw := range cases {
		ok, reason := Verdict(sql)
		if ok {
			t.Fatalf("expected %q to be rejected", sql)
		}
		if reason != ReasonBlockedKeywordPf+kw {
			t.Fatalf("expected reason %q for %q, got %q", ReasonBlockedKeywordPf+kw, sql, reason)
		}
	}
}

// Known false positive: a blocked word used as a literal between spaces.
func TestClassify_FalsePositiveLiteral(t *testing.T) {
	t.Parallel()
	if Classify("select ' delete ' as x") {
		t.Fatal("expected space-delimited literal keyword to be rejected")
	}
}

func TestClassify_KeywordDelimitedByNewlinesOrParens(t *testing.T) {
	t.Parallel()
	cases := []string{
		"with x as (\ndelete\nfrom t returning *) select * from x",
		"with x as (delete\tfrom t returning *) select * from x",
		"select 1,drop from t",
	}
	for _, sql := range cases {
		if Classify(sql) {
			t.Fatalf("expected %q to be rejected", sql)
		}
	}
}

// Known false negative: keywords glued to comments are not tokens.
func TestClassify_FalseNegativeComment(t *testing.T) {
	t.Parallel()
	sql := "with x as (delete/**/from t returning *) select * from x"
	if !Classify(sql) {
		t.Fatalf("expected %q to be admitted by the lexical filter", sql)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	t.Parallel()
	sql := "select * from t where id = 1"
	first := Classify(sql)
	for i := 0; i < 10; i++ {
		if Classify(sql) != first {
			t.Fatal("expected identical verdicts for identical input")
		}
	}
}
