package repository

import "fmt"

const rowColumns = `load_date, load_time, expiry_group, spot_price, prev_close, strike,
	option_right, price, bid, ask, open_interest, volume, implied_vol`

const metricsColumns = `load_date, load_time, expiry_group, spot_price, atm_strike,
	call_iv, put_iv, avg_iv, upper_bound, lower_bound, expected_move`

func chainDDL(table string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	load_date     TEXT NOT NULL,
	load_time     TEXT NOT NULL,
	expiry_group  TEXT NOT NULL,
	spot_price    DOUBLE PRECISION NOT NULL,
	prev_close    DOUBLE PRECISION NOT NULL,
	strike        DOUBLE PRECISION NOT NULL,
	option_right  TEXT NOT NULL,
	price         DOUBLE PRECISION NOT NULL,
	bid           DOUBLE PRECISION NOT NULL,
	ask           DOUBLE PRECISION NOT NULL,
	open_interest BIGINT NOT NULL,
	volume        BIGINT NOT NULL,
	implied_vol   DOUBLE PRECISION,
	PRIMARY KEY (load_date, load_time, expiry_group, strike, option_right)
)`, table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expiry ON %s (expiry_group, load_date, load_time)`, table, table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_metrics (
	load_date     TEXT NOT NULL,
	load_time     TEXT NOT NULL,
	expiry_group  TEXT NOT NULL,
	spot_price    DOUBLE PRECISION NOT NULL,
	atm_strike    DOUBLE PRECISION,
	call_iv       DOUBLE PRECISION,
	put_iv        DOUBLE PRECISION,
	avg_iv        DOUBLE PRECISION,
	upper_bound   DOUBLE PRECISION,
	lower_bound   DOUBLE PRECISION,
	expected_move DOUBLE PRECISION,
	PRIMARY KEY (load_date, load_time, expiry_group)
)`, table),
	}
}
