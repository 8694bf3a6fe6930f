package loaders

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"github.com/ALEYI17/InfraSight_gpuview/pkg/types"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS experiment (
	name         TEXT NOT NULL,
	extent_begin INTEGER NOT NULL DEFAULT 0,
	extent_end   INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS collectors (
	id       TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS metrics (
	collector  TEXT NOT NULL,
	id         TEXT NOT NULL,
	short_name TEXT NOT NULL,
	value_type TEXT NOT NULL,
	position   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS counters (
	idx  INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS threads (
	id   INTEGER PRIMARY KEY,
	host TEXT NOT NULL,
	pid  INTEGER NOT NULL,
	rank INTEGER
);
CREATE TABLE IF NOT EXISTS data_transfers (
	thread   INTEGER NOT NULL,
	call     INTEGER NOT NULL,
	begin_ts INTEGER NOT NULL,
	end_ts   INTEGER NOT NULL,
	device   INTEGER NOT NULL,
	dir      INTEGER NOT NULL,
	size     INTEGER NOT NULL,
	async    INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS kernel_executions (
	thread   INTEGER NOT NULL,
	call     INTEGER NOT NULL,
	begin_ts INTEGER NOT NULL,
	end_ts   INTEGER NOT NULL,
	device   INTEGER NOT NULL,
	function TEXT NOT NULL,
	grid_x   INTEGER NOT NULL,
	grid_y   INTEGER NOT NULL,
	grid_z   INTEGER NOT NULL,
	block_x  INTEGER NOT NULL,
	block_y  INTEGER NOT NULL,
	block_z  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS periodic_samples (
	thread INTEGER NOT NULL,
	time   INTEGER NOT NULL,
	counts TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS function_samples (
	thread   INTEGER NOT NULL,
	metric   TEXT NOT NULL,
	function TEXT NOT NULL,
	time     INTEGER NOT NULL,
	value    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS data_transfers_thread ON data_transfers(thread, begin_ts);
CREATE INDEX IF NOT EXISTS kernel_executions_thread ON kernel_executions(thread, begin_ts);
CREATE INDEX IF NOT EXISTS periodic_samples_thread ON periodic_samples(thread, time);
CREATE INDEX IF NOT EXISTS function_samples_metric ON function_samples(metric, time);
`

// SQLiteLoader reads an experiment database. Metadata is read once at open,
// events are queried on every visit.
type SQLiteLoader struct {
	db         *sql.DB
	path       string
	name       string
	extent     types.Interval
	collectors []types.Collector
	counters   []string
	threads    []types.Thread
}

func NewSQLiteLoader(path string) (*SQLiteLoader, error) {
	logger := logutil.GetLogger()

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	l := &SQLiteLoader{db: db, path: path}
	if err := l.readMetadata(context.Background()); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	logger.Debug("opened experiment database",
		zap.String("path", path),
		zap.String("name", l.name),
		zap.Int("threads", len(l.threads)))
	return l, nil
}

func (l *SQLiteLoader) readMetadata(ctx context.Context) error {
	var begin, end int64
	err := l.db.QueryRowContext(ctx,
		`SELECT name, extent_begin, extent_end FROM experiment LIMIT 1`).Scan(&l.name, &begin, &end)
	if err != nil {
		return errors.Wrap(err, "experiment")
	}
	if end <= begin {
		if err := l.db.QueryRowContext(ctx, `
			SELECT COALESCE(MIN(t), 0), COALESCE(MAX(t), -1) + 1 FROM (
				SELECT begin_ts AS t FROM data_transfers UNION ALL
				SELECT end_ts FROM data_transfers UNION ALL
				SELECT begin_ts FROM kernel_executions UNION ALL
				SELECT end_ts FROM kernel_executions UNION ALL
				SELECT time FROM periodic_samples UNION ALL
				SELECT time FROM function_samples
			)`).Scan(&begin, &end); err != nil {
			return errors.Wrap(err, "extent")
		}
	}
	l.extent = types.Interval{Begin: types.Time(begin), End: types.Time(end)}

	rows, err := l.db.QueryContext(ctx, `
		SELECT c.id, m.id, m.short_name, m.value_type
		FROM collectors c LEFT JOIN metrics m ON m.collector = c.id
		ORDER BY c.position, m.position`)
	if err != nil {
		return errors.Wrap(err, "collectors")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cid               string
			mid, short, vtype sql.NullString
		)
		if err := rows.Scan(&cid, &mid, &short, &vtype); err != nil {
			return err
		}
		if n := len(l.collectors); n == 0 || l.collectors[n-1].ID != cid {
			l.collectors = append(l.collectors, types.Collector{ID: cid})
		}
		if mid.Valid {
			c := &l.collectors[len(l.collectors)-1]
			c.Metrics = append(c.Metrics, types.MetricDesc{ID: mid.String, ShortName: short.String, ValueType: vtype.String})
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	crows, err := l.db.QueryContext(ctx, `SELECT name FROM counters ORDER BY idx`)
	if err != nil {
		return errors.Wrap(err, "counters")
	}
	defer crows.Close()
	for crows.Next() {
		var name string
		if err := crows.Scan(&name); err != nil {
			return err
		}
		l.counters = append(l.counters, name)
	}
	if err := crows.Err(); err != nil {
		return err
	}

	trows, err := l.db.QueryContext(ctx, `SELECT id, host, pid, rank FROM threads ORDER BY id`)
	if err != nil {
		return errors.Wrap(err, "threads")
	}
	defer trows.Close()
	for trows.Next() {
		var (
			t    types.Thread
			rank sql.NullInt64
		)
		if err := trows.Scan(&t.ID, &t.Host, &t.PID, &rank); err != nil {
			return err
		}
		if rank.Valid {
			r := int(rank.Int64)
			t.Rank = &r
		}
		l.threads = append(l.threads, t)
	}
	return trows.Err()
}

func (l *SQLiteLoader) Name() string                  { return l.name }
func (l *SQLiteLoader) Collectors() []types.Collector { return l.collectors }
func (l *SQLiteLoader) Extent() types.Interval        { return l.extent }
func (l *SQLiteLoader) Threads() []types.Thread       { return l.threads }
func (l *SQLiteLoader) Counters() []string            { return l.counters }

func (l *SQLiteLoader) Close() error {
	return l.db.Close()
}

func (l *SQLiteLoader) VisitDataTransfers(t types.Thread, interval types.Interval, fn func(types.DataTransfer) bool) error {
	rows, err := l.db.Query(`
		SELECT call, begin_ts, end_ts, device, dir, size, async FROM data_transfers
		WHERE thread = ? AND begin_ts < ? AND end_ts >= ?
		ORDER BY begin_ts, rowid`, t.ID, int64(interval.End), int64(interval.Begin))
	if err != nil {
		return errors.Wrap(err, "querying data transfers")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			call, begin, end, size int64
			device                 uint32
			dir                    uint8
			async                  bool
		)
		if err := rows.Scan(&call, &begin, &end, &device, &dir, &size, &async); err != nil {
			return err
		}
		dt := types.DataTransfer{
			Call:   types.Time(call),
			Begin:  types.Time(begin),
			End:    types.Time(end),
			Device: device,
			Dir:    dir,
			Size:   uint64(size),
			Async:  async,
		}
		if !fn(dt) {
			return nil
		}
	}
	return rows.Err()
}

func (l *SQLiteLoader) VisitKernelExecutions(t types.Thread, interval types.Interval, fn func(types.KernelExecution) bool) error {
	rows, err := l.db.Query(`
		SELECT call, begin_ts, end_ts, device, function,
		       grid_x, grid_y, grid_z, block_x, block_y, block_z
		FROM kernel_executions
		WHERE thread = ? AND begin_ts < ? AND end_ts >= ?
		ORDER BY begin_ts, rowid`, t.ID, int64(interval.End), int64(interval.Begin))
	if err != nil {
		return errors.Wrap(err, "querying kernel executions")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			k                types.KernelExecution
			call, begin, end int64
		)
		if err := rows.Scan(&call, &begin, &end, &k.Device, &k.Function,
			&k.Grid[0], &k.Grid[1], &k.Grid[2], &k.Block[0], &k.Block[1], &k.Block[2]); err != nil {
			return err
		}
		k.Call, k.Begin, k.End = types.Time(call), types.Time(begin), types.Time(end)
		if !fn(k) {
			return nil
		}
	}
	return rows.Err()
}

func (l *SQLiteLoader) VisitPeriodicSamples(t types.Thread, interval types.Interval, fn func(types.PeriodicSample) bool) error {
	rows, err := l.db.Query(`
		SELECT time, counts FROM periodic_samples
		WHERE thread = ? AND time >= ? AND time < ?
		ORDER BY time, rowid`, t.ID, int64(interval.Begin), int64(interval.End))
	if err != nil {
		return errors.Wrap(err, "querying periodic samples")
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ts     int64
			counts string
		)
		if err := rows.Scan(&ts, &counts); err != nil {
			return err
		}
		values, err := decodeCounts(counts)
		if err != nil {
			return errors.Wrapf(err, "sample at %d", ts)
		}
		if !fn(types.PeriodicSample{Time: types.Time(ts), Counts: values}) {
			return nil
		}
	}
	return rows.Err()
}

func (l *SQLiteLoader) MetricValues(metric string, interval types.Interval) ([]types.MetricValue, error) {
	rows, err := l.db.Query(`
		SELECT function, thread, SUM(value) FROM function_samples
		WHERE metric = ? AND time >= ? AND time < ?
		GROUP BY function, thread
		ORDER BY MIN(rowid)`, metric, int64(interval.Begin), int64(interval.End))
	if err != nil {
		return nil, errors.Wrapf(err, "querying metric %s", metric)
	}
	defer rows.Close()
	var out []types.MetricValue
	for rows.Next() {
		var v types.MetricValue
		if err := rows.Scan(&v.Function, &v.ThreadID, &v.Value); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func encodeCounts(counts []uint64) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = strconv.FormatUint(c, 10)
	}
	return strings.Join(parts, ",")
}

func decodeCounts(s string) ([]uint64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]uint64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// WriteSQLite stores exp as a new experiment database at path.
func WriteSQLite(ctx context.Context, path string, exp *Experiment) (err error) {
	mem, err := NewMemory(exp)
	if err != nil {
		return err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "creating schema")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	extent := mem.Extent()
	if _, err = tx.ExecContext(ctx, `INSERT INTO experiment (name, extent_begin, extent_end) VALUES (?, ?, ?)`,
		exp.Name, int64(extent.Begin), int64(extent.End)); err != nil {
		return errors.Wrap(err, "experiment")
	}
	for i, c := range exp.Collectors {
		if _, err = tx.ExecContext(ctx, `INSERT INTO collectors (id, position) VALUES (?, ?)`, c.ID, i); err != nil {
			return errors.Wrapf(err, "collector %s", c.ID)
		}
		for j, m := range c.Metrics {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO metrics (collector, id, short_name, value_type, position) VALUES (?, ?, ?, ?, ?)`,
				c.ID, m.ID, m.ShortName, m.ValueType, j); err != nil {
				return errors.Wrapf(err, "metric %s", m.ID)
			}
		}
	}
	for i, name := range exp.Counters {
		if _, err = tx.ExecContext(ctx, `INSERT INTO counters (idx, name) VALUES (?, ?)`, i, name); err != nil {
			return errors.Wrapf(err, "counter %s", name)
		}
	}
	for _, th := range exp.Threads {
		if err = writeThread(ctx, tx, &th); err != nil {
			return errors.Wrapf(err, "thread %d", th.ID)
		}
	}
	return tx.Commit()
}

func writeThread(ctx context.Context, tx *sql.Tx, th *ThreadData) error {
	var rank sql.NullInt64
	if th.Rank != nil {
		rank = sql.NullInt64{Int64: int64(*th.Rank), Valid: true}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO threads (id, host, pid, rank) VALUES (?, ?, ?, ?)`,
		th.ID, th.Host, th.PID, rank); err != nil {
		return err
	}
	for _, dt := range th.DataTransfers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO data_transfers (thread, call, begin_ts, end_ts, device, dir, size, async)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			th.ID, int64(dt.Call), int64(dt.Begin), int64(dt.End), dt.Device, dt.Dir, int64(dt.Size), dt.Async); err != nil {
			return err
		}
	}
	for _, k := range th.KernelExecutions {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kernel_executions (thread, call, begin_ts, end_ts, device, function,
				grid_x, grid_y, grid_z, block_x, block_y, block_z)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			th.ID, int64(k.Call), int64(k.Begin), int64(k.End), k.Device, k.Function,
			k.Grid[0], k.Grid[1], k.Grid[2], k.Block[0], k.Block[1], k.Block[2]); err != nil {
			return err
		}
	}
	for _, s := range th.PeriodicSamples {
		if _, err := tx.ExecContext(ctx, `INSERT INTO periodic_samples (thread, time, counts) VALUES (?, ?, ?)`,
			th.ID, int64(s.Time), encodeCounts(s.Counts)); err != nil {
			return err
		}
	}
	for _, f := range th.FunctionSamples {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO function_samples (thread, metric, function, time, value) VALUES (?, ?, ?, ?, ?)`,
			th.ID, f.Metric, f.Function, int64(f.Time), f.Value); err != nil {
			return err
		}
	}
	return nil
}
