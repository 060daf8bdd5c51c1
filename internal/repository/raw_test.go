package repository_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/optiontrack/internal/models"
	"github.com/kjannette/optiontrack/internal/repository"
	"github.com/kjannette/optiontrack/internal/testutil"
)

func rawTable(t *testing.T) *repository.Table {
	t.Helper()
	ctx := context.Background()
	clock := testutil.NewClock(sessionStart)
	store := openStore(t, clock)

	_, err := store.Write(ctx, chain(models.MarketOpen, 211, clock.Now()), nil)
	require.NoError(t, err)

	table, err := store.Table(ctx, "nasdaq", models.KindNear)
	require.NoError(t, err)
	return table
}

func TestQueryRaw_Allowed(t *testing.T) {
	table := rawTable(t)
	ctx := context.Background()

	rows, err := table.QueryRaw(ctx, "SELECT * FROM nasdaq_near WHERE option_right = ? AND strike >= ?", "C", 210.0)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	for _, r := range rows {
		assert.Equal(t, "C", r.Right)
	}

	rows, err = table.QueryRaw(ctx, "select n.* from nasdaq_near n where n.strike > (select min(strike) from nasdaq_near) order by strike")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 212.5, rows[0].Strike)
}

func TestQueryRaw_Rejected(t *testing.T) {
	table := rawTable(t)
	ctx := context.Background()

	cases := map[string]string{
		"empty":                 "",
		"not a select":          "DELETE FROM nasdaq_near",
		"cte":                   "WITH x AS (SELECT * FROM nasdaq_near) SELECT * FROM x",
		"stacked":               "SELECT * FROM nasdaq_near; DROP TABLE nasdaq_near",
		"line comment":          "SELECT * FROM nasdaq_near -- hi",
		"block comment":         "SELECT * FROM nasdaq_near /* hi */",
		"literal":               "SELECT * FROM nasdaq_near WHERE option_right = 'C'",
		"quoted ident":          `SELECT * FROM "polygon_near"`,
		"other table":           "SELECT * FROM polygon_near",
		"schema table":          "SELECT * FROM sqlite_master",
		"join":                  "SELECT a.* FROM nasdaq_near a JOIN nasdaq_leap b ON a.strike = b.strike",
		"comma list":            "SELECT a.* FROM nasdaq_near a, nasdaq_leap b",
		"comma no alias":        "SELECT * FROM nasdaq_near, nasdaq_leap",
		"derived":               "SELECT * FROM (SELECT * FROM nasdaq_near) x",
		"pragma":                "SELECT * FROM pragma_table_info",
		"into":                  "SELECT * INTO copy_tbl FROM nasdaq_near",
		"no table":              "SELECT 1",
		"arg mismatch":          "SELECT * FROM nasdaq_near WHERE strike = ?",
		"keyword alias list":    "SELECT window.* FROM nasdaq_near AS window, nasdaq_leap m",
		"keyword alias catalog": "SELECT window.* FROM nasdaq_near AS window, sqlite_master m",
		"bare keyword alias":    "SELECT * FROM nasdaq_near window , nasdaq_leap",
		"join word alias":       "SELECT * FROM nasdaq_near AS left, nasdaq_leap",
		"pragma function":       "SELECT * FROM nasdaq_near AS window , pragma_table_info",
		"pragma join":           "SELECT a.* FROM nasdaq_near a JOIN pragma_table_info b ON a.strike = b.cid",
		"catalog in where":      "SELECT * FROM nasdaq_near WHERE strike IN (SELECT rootpage FROM sqlite_master)",
		"pg catalog":            "SELECT * FROM nasdaq_near WHERE strike IN (SELECT oid FROM pg_class)",
		"union table":           "SELECT * FROM nasdaq_near UNION ALL TABLE polygon_near",
		"union other":           "SELECT * FROM nasdaq_near UNION SELECT * FROM polygon_near",
		"values":                "SELECT * FROM nasdaq_near UNION ALL VALUES (?)",
		"list in subquery":      "SELECT * FROM nasdaq_near WHERE strike IN (SELECT a.strike FROM nasdaq_near a, nasdaq_leap b)",
	}
	for name, stmt := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := table.QueryRaw(ctx, stmt)
			assert.ErrorIs(t, err, repository.ErrRejected)
		})
	}
}

func TestQueryRaw_ClauseKeywordsAfterTable(t *testing.T) {
	table := rawTable(t)
	ctx := context.Background()

	rows, err := table.QueryRaw(ctx, "SELECT * FROM nasdaq_near GROUP BY strike, option_right ORDER BY strike, option_right")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = table.QueryRaw(ctx, "SELECT * FROM nasdaq_near WHERE strike < ? UNION SELECT * FROM nasdaq_near WHERE strike > ?", 211.0, 212.0)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

func TestQueryRaw_ExecutionFailure(t *testing.T) {
	table := rawTable(t)

	_, err := table.QueryRaw(context.Background(), "SELECT strike FROM nasdaq_near")
	require.Error(t, err, "result must carry the row columns")
	assert.ErrorIs(t, err, repository.ErrPersistence)
	assert.NotErrorIs(t, err, repository.ErrRejected)
}
