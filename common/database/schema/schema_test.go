package schema

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRows struct {
	driver.Rows
	versions []int32
	pos      int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.versions)
}

func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*int32) = r.versions[r.pos-1]
	*dest[1].(*time.Time) = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return nil
}

func (r *fakeRows) Close() error { return nil }
func (r *fakeRows) Err() error   { return nil }

type fakeConn struct {
	applied []int32
	execs   []string
	failOn  string
}

func (c *fakeConn) Exec(_ context.Context, query string, _ ...any) error {
	if c.failOn != "" && strings.Contains(query, c.failOn) {
		return errors.New("exec failed")
	}
	c.execs = append(c.execs, strings.TrimSpace(query))
	return nil
}

func (c *fakeConn) Query(context.Context, string, ...any) (driver.Rows, error) {
	return &fakeRows{versions: c.applied}, nil
}

var testMigrations = []Migration{
	{Version: 2, Description: "second", Up: "CREATE TABLE b", Down: "DROP TABLE b"},
	{Version: 1, Description: "first", Up: "CREATE TABLE a", Down: "DROP TABLE a"},
	{Version: 3, Description: "third", Up: "CREATE TABLE c", Down: "DROP TABLE c"},
}

func TestMigrator_MigrateSkipsApplied(t *testing.T) {
	conn := &fakeConn{applied: []int32{1}}
	m := NewMigrator(conn, zap.NewNop())

	applied, err := m.Migrate(context.Background(), testMigrations)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	var creates []string
	for _, q := range conn.execs {
		if strings.HasPrefix(q, "CREATE TABLE ") && !strings.Contains(q, "migrations") {
			creates = append(creates, q)
		}
	}
	assert.Equal(t, []string{"CREATE TABLE b", "CREATE TABLE c"}, creates)
}

func TestMigrator_MigrateStopsOnFailure(t *testing.T) {
	conn := &fakeConn{failOn: "CREATE TABLE b"}
	m := NewMigrator(conn, zap.NewNop())

	applied, err := m.Migrate(context.Background(), testMigrations)
	require.Error(t, err)
	assert.Equal(t, 1, applied)
	assert.Contains(t, err.Error(), "failed to apply migration 2")
}

func TestMigrator_Rollback(t *testing.T) {
	conn := &fakeConn{}
	m := NewMigrator(conn, zap.NewNop())

	require.NoError(t, m.RollbackMigration(context.Background(), testMigrations[0]))
	require.Len(t, conn.execs, 2)
	assert.Equal(t, "DROP TABLE b", conn.execs[0])
	assert.Contains(t, conn.execs[1], "DELETE FROM migrations")
}
