package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stopscan/pkg/contract"
)

// Options: SQLite 结果账本选项。
type Options struct {
	// Path: 数据库文件路径（必需）。
	Path string `json:"path"`
	// BusyTimeoutMS: 锁等待超时；<=0 为 5000。
	BusyTimeoutMS int `json:"busy_timeout_ms,omitempty"`
}

const schema = `
CREATE TABLE IF NOT EXISTS results (
	task TEXT PRIMARY KEY,
	bytes BLOB NOT NULL,
	written_at TEXT NOT NULL
)`

// Writer 以工件标识为主键写入 results 表；重复写入覆盖旧值。
type Writer struct {
	db  *sql.DB
	now func() time.Time
}

// New 打开（必要时创建）数据库并建表。
func New(opts *Options) (*Writer, error) {
	if opts == nil || strings.TrimSpace(opts.Path) == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", contract.ErrMalformedInput)
	}
	if dir := filepath.Dir(opts.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// 单连接：写入由提交闩串行化，避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)
	busy := opts.BusyTimeoutMS
	if busy <= 0 {
		busy = 5000
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy)); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	return &Writer{db: db, now: time.Now}, nil
}

var _ contract.Writer = (*Writer)(nil)

// Write 读取 r 的全部字节并 upsert 到 results。
func (w *Writer) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: empty artifact id", contract.ErrPathInvalid)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err = w.db.ExecContext(ctx,
		`INSERT INTO results (task, bytes, written_at) VALUES (?, ?, ?)
		 ON CONFLICT(task) DO UPDATE SET bytes = excluded.bytes, written_at = excluded.written_at`,
		string(id), data, w.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", id, err)
	}
	return nil
}

// Read 取回工件字节；不存在时返回 fs.ErrNotExist。
func (w *Writer) Read(ctx context.Context, id contract.ArtifactID) ([]byte, error) {
	var data []byte
	err := w.db.QueryRowContext(ctx, `SELECT bytes FROM results WHERE task = ?`, string(id)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, os.ErrNotExist)
	}
	return data, err
}

// List 按工件标识升序列出全部键。
func (w *Writer) List(ctx context.Context) ([]contract.ArtifactID, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT task FROM results ORDER BY task`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []contract.ArtifactID
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, contract.ArtifactID(s))
	}
	return out, rows.Err()
}

// Close 关闭数据库。
func (w *Writer) Close() error { return w.db.Close() }
