package policy

import (
	"errors"
	"testing"
)

func TestCheckQueryAllowsSelect(t *testing.T) {
	allowed := []string{
		"SELECT * FROM calls",
		"  select id, call_string from calls where id > 3 order by id desc limit 5;",
		"SELECT * FROM calls WHERE call_string LIKE '%delete; drop%'",
		"SELECT count(*) FROM calls -- into nothing",
		"SELECT 'it''s into' AS x",
	}
	for _, q := range allowed {
		if err := CheckQuery(q); err != nil {
			t.Fatalf("CheckQuery(%q) error = %v, want nil", q, err)
		}
	}
}

func TestCheckQueryRejectsWrites(t *testing.T) {
	rejected := []string{
		"",
		"DELETE FROM calls",
		"drop table calls",
		"WITH x AS (DELETE FROM calls RETURNING *) SELECT * FROM x",
		"SELECT 1; DELETE FROM calls",
		"SELECT * INTO backup FROM calls",
		"SELECT * FROM calls FOR UPDATE",
		"selection",
		"/* hi */ DELETE FROM calls",
	}
	for _, q := range rejected {
		err := CheckQuery(q)
		if !errors.Is(err, ErrQueryForbidden) {
			t.Fatalf("CheckQuery(%q) error = %v, want ErrQueryForbidden", q, err)
		}
	}
}
