package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/kjannette/optiontrack/internal/db"
	"github.com/kjannette/optiontrack/internal/models"
)

var (
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("no stored snapshot")
	ErrRejected    = errors.New("statement rejected")
)

// DefaultWriteInterval is the minimum spacing between two stored captures of one table.
const DefaultWriteInterval = 15 * time.Minute

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

type Options struct {
	Symbol   string
	Interval time.Duration
	Now      func() time.Time
	Log      *logrus.Entry
}

// Store owns the snapshot tables of one database. Tables are created on first use.
type Store struct {
	conn     *sql.DB
	dialect  db.Dialect
	symbol   string
	interval time.Duration
	now      func() time.Time
	log      *logrus.Entry

	mu     sync.Mutex
	tables map[string]*Table
}

func Open(conn *sql.DB, dialect db.Dialect, opts Options) *Store {
	if opts.Interval <= 0 {
		opts.Interval = DefaultWriteInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.WithField("component", "store")
	}
	return &Store{
		conn:     conn,
		dialect:  dialect,
		symbol:   opts.Symbol,
		interval: opts.Interval,
		now:      opts.Now,
		log:      opts.Log,
		tables:   make(map[string]*Table),
	}
}

// TableName is the logical table holding captures of one source and chain kind.
func TableName(source string, kind models.ChainKind) string {
	return source + "_" + string(kind)
}

// Table returns the handle for a logical table, creating its schema if needed.
func (s *Store) Table(ctx context.Context, source string, kind models.ChainKind) (*Table, error) {
	name := TableName(source, kind)
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("%w: invalid table name %q", ErrPersistence, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tables[name]; ok {
		return t, nil
	}

	for _, stmt := range chainDDL(name) {
		if _, err := s.conn.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrPersistence, name, err)
		}
	}

	t := &Table{store: s, name: name, source: source, kind: kind}
	if err := t.seedLastWrite(ctx); err != nil {
		return nil, err
	}
	s.tables[name] = t
	return t, nil
}

// Write stores a capture in the table matching its source and kind, subject to the gate.
func (s *Store) Write(ctx context.Context, snap *models.ChainSnapshot, metrics []models.ExpiryMetrics) (bool, error) {
	if snap == nil {
		return false, nil
	}
	t, err := s.Table(ctx, snap.Source, snap.Kind)
	if err != nil {
		return false, err
	}
	return t.Write(ctx, snap, metrics)
}

// Table is one logical snapshot table plus its metrics companion.
type Table struct {
	store  *Store
	name   string
	source string
	kind   models.ChainKind

	mu        sync.Mutex
	lastWrite time.Time
}

func (t *Table) Name() string { return t.name }

// LastWrite is the time of the most recent committed capture, zero if none.
func (t *Table) LastWrite() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastWrite
}

func (t *Table) seedLastWrite(ctx context.Context) error {
	q := fmt.Sprintf(`SELECT load_date, load_time FROM %s ORDER BY load_date DESC, load_time DESC LIMIT 1`, t.name)
	var date, clock string
	err := t.store.conn.QueryRowContext(ctx, q).Scan(&date, &clock)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: read last write of %s: %v", ErrPersistence, t.name, err)
	}
	ts, err := ParseLoadStamp(date, clock)
	if err != nil {
		return fmt.Errorf("%w: stored stamp %s %s: %v", ErrPersistence, date, clock, err)
	}
	t.lastWrite = ts
	return nil
}

// Write appends one capture when the market is open and the write interval has
// elapsed since the last committed capture. It reports whether rows were stored.
// All rows go in one transaction; the gate only advances after commit.
func (t *Table) Write(ctx context.Context, snap *models.ChainSnapshot, metrics []models.ExpiryMetrics) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if snap == nil || snap.MarketStatus != models.MarketOpen {
		return false, nil
	}
	now := t.store.now()
	if !t.lastWrite.IsZero() && now.Sub(t.lastWrite) < t.store.interval {
		return false, nil
	}

	rows := FlattenSnapshot(snap, now)
	mrows := FlattenMetrics(metrics, snap.Spot, now)

	if err := t.insert(ctx, rows, mrows); err != nil {
		return false, err
	}
	t.lastWrite = now

	t.store.log.WithFields(logrus.Fields{
		"table":   t.name,
		"rows":    len(rows),
		"metrics": len(mrows),
	}).Info("snapshot stored")
	return true, nil
}

func (t *Table) insert(ctx context.Context, rows []models.PersistedRow, mrows []models.MetricsRow) error {
	d := t.store.dialect
	tx, err := t.store.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrPersistence, err)
	}
	defer tx.Rollback()

	rowStmt, err := tx.PrepareContext(ctx, d.Rebind(fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (load_date, load_time, expiry_group, strike, option_right) DO NOTHING`,
		t.name, rowColumns)))
	if err != nil {
		return fmt.Errorf("%w: prepare %s: %v", ErrPersistence, t.name, err)
	}
	defer rowStmt.Close()

	for _, r := range rows {
		if _, err := rowStmt.ExecContext(ctx,
			r.LoadDate, r.LoadTime, r.ExpiryGroup, r.SpotPrice, r.PreviousClose, r.Strike,
			r.Right, r.Price, r.Bid, r.Ask, r.OpenInterest, r.Volume, nullable(r.IV),
		); err != nil {
			return fmt.Errorf("%w: insert %s: %v", ErrPersistence, t.name, err)
		}
	}

	metricsStmt, err := tx.PrepareContext(ctx, d.Rebind(fmt.Sprintf(
		`INSERT INTO %s_metrics (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (load_date, load_time, expiry_group) DO NOTHING`,
		t.name, metricsColumns)))
	if err != nil {
		return fmt.Errorf("%w: prepare %s_metrics: %v", ErrPersistence, t.name, err)
	}
	defer metricsStmt.Close()

	for _, m := range mrows {
		if _, err := metricsStmt.ExecContext(ctx,
			m.LoadDate, m.LoadTime, m.ExpiryGroup, m.SpotPrice, nullable(m.ATMStrike),
			nullable(m.CallIV), nullable(m.PutIV), nullable(m.AverageIV),
			nullable(m.Upper), nullable(m.Lower), nullable(m.ExpectedMove),
		); err != nil {
			return fmt.Errorf("%w: insert %s_metrics: %v", ErrPersistence, t.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit %s: %v", ErrPersistence, t.name, err)
	}
	return nil
}

// QueryLatest rebuilds the most recent capture stored on the given date.
func (t *Table) QueryLatest(ctx context.Context, date time.Time) (*models.ChainSnapshot, error) {
	day := models.DateKey(date)
	d := t.store.dialect

	var latest sql.NullString
	err := t.store.conn.QueryRowContext(ctx,
		d.Rebind(fmt.Sprintf(`SELECT MAX(load_time) FROM %s WHERE load_date = ?`, t.name)), day,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("%w: latest load time: %v", ErrPersistence, err)
	}
	if !latest.Valid {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, t.name, day)
	}

	rows, err := t.queryRows(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE load_date = ? AND load_time = ? ORDER BY expiry_group, strike, option_right`,
		rowColumns, t.name), day, latest.String)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, t.name, day)
	}
	return t.rebuild(rows)
}

// QueryRange returns every stored row of one expiry group with a load date in [start, end].
func (t *Table) QueryRange(ctx context.Context, expiry, start, end time.Time) ([]models.PersistedRow, error) {
	return t.queryRows(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE expiry_group = ? AND load_date >= ? AND load_date <= ?
		 ORDER BY load_date, load_time, strike, option_right`, rowColumns, t.name),
		models.DateKey(expiry), models.DateKey(start), models.DateKey(end))
}

// QueryMetrics returns the stored metric series of one expiry group.
func (t *Table) QueryMetrics(ctx context.Context, expiry, start, end time.Time) ([]models.MetricsRow, error) {
	q := t.store.dialect.Rebind(fmt.Sprintf(
		`SELECT %s FROM %s_metrics WHERE expiry_group = ? AND load_date >= ? AND load_date <= ?
		 ORDER BY load_date, load_time`, metricsColumns, t.name))

	rows, err := t.store.conn.QueryContext(ctx, q, models.DateKey(expiry), models.DateKey(start), models.DateKey(end))
	if err != nil {
		return nil, fmt.Errorf("%w: query %s_metrics: %v", ErrPersistence, t.name, err)
	}
	defer rows.Close()

	var out []models.MetricsRow
	for rows.Next() {
		var m models.MetricsRow
		var atm, callIV, putIV, avgIV, upper, lower, move sql.NullFloat64
		if err := rows.Scan(&m.LoadDate, &m.LoadTime, &m.ExpiryGroup, &m.SpotPrice,
			&atm, &callIV, &putIV, &avgIV, &upper, &lower, &move); err != nil {
			return nil, fmt.Errorf("%w: scan %s_metrics: %v", ErrPersistence, t.name, err)
		}
		m.ATMStrike = fromNull(atm)
		m.CallIV = fromNull(callIV)
		m.PutIV = fromNull(putIV)
		m.AverageIV = fromNull(avgIV)
		m.Upper = fromNull(upper)
		m.Lower = fromNull(lower)
		m.ExpectedMove = fromNull(move)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate %s_metrics: %v", ErrPersistence, t.name, err)
	}
	return out, nil
}

func (t *Table) queryRows(ctx context.Context, query string, args ...any) ([]models.PersistedRow, error) {
	rows, err := t.store.conn.QueryContext(ctx, t.store.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrPersistence, t.name, err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanRow(s scannable) (models.PersistedRow, error) {
	var r models.PersistedRow
	var iv sql.NullFloat64
	err := s.Scan(&r.LoadDate, &r.LoadTime, &r.ExpiryGroup, &r.SpotPrice, &r.PreviousClose, &r.Strike,
		&r.Right, &r.Price, &r.Bid, &r.Ask, &r.OpenInterest, &r.Volume, &iv)
	r.IV = fromNull(iv)
	return r, err
}

func collectRows(rows *sql.Rows) ([]models.PersistedRow, error) {
	var out []models.PersistedRow
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrPersistence, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %v", ErrPersistence, err)
	}
	return out, nil
}

func (t *Table) rebuild(rows []models.PersistedRow) (*models.ChainSnapshot, error) {
	first := rows[0]
	at, err := ParseLoadStamp(first.LoadDate, first.LoadTime)
	if err != nil {
		return nil, fmt.Errorf("%w: stored stamp: %v", ErrPersistence, err)
	}

	contracts := make([]models.OptionContract, 0, len(rows))
	for _, r := range rows {
		expiry, err := models.ParseDate(r.ExpiryGroup)
		if err != nil {
			return nil, fmt.Errorf("%w: expiry group %q: %v", ErrPersistence, r.ExpiryGroup, err)
		}
		right, err := models.ParseRight(r.Right)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		contracts = append(contracts, models.OptionContract{
			Strike:       decimal.NewFromFloat(r.Strike),
			Expiry:       expiry,
			Right:        right,
			Last:         r.Price,
			Bid:          r.Bid,
			Ask:          r.Ask,
			OpenInterest: r.OpenInterest,
			Volume:       r.Volume,
			IV:           r.IV,
		})
	}
	// only captures taken while the market was open are ever stored
	return models.NewChainSnapshot(t.store.symbol, t.source, t.kind, first.SpotPrice, first.PreviousClose,
		at, models.MarketOpen, contracts), nil
}

// FlattenSnapshot turns a capture into storage rows stamped with the load time.
func FlattenSnapshot(snap *models.ChainSnapshot, at time.Time) []models.PersistedRow {
	date, clock := LoadStamp(at)
	out := make([]models.PersistedRow, 0, snap.ContractCount())
	for _, key := range snap.ExpiryKeys() {
		for _, c := range snap.Expiries[key] {
			out = append(out, models.PersistedRow{
				LoadDate:      date,
				LoadTime:      clock,
				ExpiryGroup:   key,
				SpotPrice:     snap.Spot,
				PreviousClose: snap.PreviousClose,
				Strike:        c.Strike.InexactFloat64(),
				Right:         c.Right.Code(),
				Price:         c.ObservedPrice(),
				Bid:           c.Bid,
				Ask:           c.Ask,
				OpenInterest:  c.OpenInterest,
				Volume:        c.Volume,
				IV:            c.IV,
			})
		}
	}
	return out
}

func FlattenMetrics(metrics []models.ExpiryMetrics, spot float64, at time.Time) []models.MetricsRow {
	date, clock := LoadStamp(at)
	out := make([]models.MetricsRow, 0, len(metrics))
	for _, m := range metrics {
		row := models.MetricsRow{
			LoadDate:     date,
			LoadTime:     clock,
			ExpiryGroup:  models.DateKey(m.Expiry),
			SpotPrice:    spot,
			CallIV:       m.CallIV,
			PutIV:        m.PutIV,
			AverageIV:    m.AverageIV,
			Upper:        m.Upper,
			Lower:        m.Lower,
			ExpectedMove: m.ExpectedMove,
		}
		if m.HasATM {
			atm := m.ATMStrike.InexactFloat64()
			row.ATMStrike = &atm
		}
		out = append(out, row)
	}
	return out
}

func nullable(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func fromNull(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
