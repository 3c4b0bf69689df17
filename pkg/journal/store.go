package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/apt-mock/apt-mock-go/pkg/device"
	"github.com/apt-mock/apt-mock-go/pkg/log"
	"github.com/apt-mock/apt-mock-go/pkg/wire"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultQueueSize is the number of pending moves buffered before new ones
// are dropped.
const DefaultQueueSize = 1024

// Move is one end-of-move event emitted by a mock.
type Move struct {
	ID           int64        `json:"id"`
	Time         time.Time    `json:"time"`
	Serial       uint32       `json:"serial,omitempty"`
	ConnectionID string       `json:"connection_id,omitempty"`
	Channel      uint16       `json:"channel"`
	Kind         wire.Kind    `json:"kind"`
	Name         string       `json:"name"`
	Position     *int32       `json:"position,omitempty"`
	Status       *wire.Status `json:"status,omitempty"`
}

// Query selects moves. Zero fields match everything.
type Query struct {
	Channel uint16
	Kind    wire.Kind

	// Limit caps the result; zero selects 100.
	Limit int
}

// ChannelStats counts end-of-move events of one channel.
type ChannelStats struct {
	Channel   uint16 `json:"channel"`
	Completed int    `json:"completed"`
	Stopped   int    `json:"stopped"`
	Homed     int    `json:"homed"`
}

// Store records end-of-move events in SQLite. It implements log.Logger so
// it can sit in a MultiLogger next to the protocol file log; events are
// written by a background goroutine and Log never blocks on the database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	queue    chan request
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool
	dropped  atomic.Int64
	failed   atomic.Int64
}

type request struct {
	move *Move
	sync chan struct{}
}

var (
	_ log.Logger    = (*Store)(nil)
	_ device.Worker = (*Store)(nil)
)

// Open opens or creates a journal at path. Use ":memory:" for an in-memory
// database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: an in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	s := &Store{
		db:     db,
		queue:  make(chan request, DefaultQueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	go s.run()
	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS moves (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts DATETIME NOT NULL,
		serial INTEGER,
		conn_id TEXT,
		channel INTEGER NOT NULL,
		kind INTEGER NOT NULL,
		name TEXT NOT NULL,
		position INTEGER,
		status INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_moves_channel ON moves(channel);
	CREATE INDEX IF NOT EXISTS idx_moves_ts ON moves(ts);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Log queues outgoing MOVE_COMPLETED, MOVE_STOPPED and MOVE_HOMED
// messages. Other events are ignored.
func (s *Store) Log(event log.Event) {
	m := moveFromEvent(event)
	if m == nil || s.closed.Load() {
		return
	}
	select {
	case s.queue <- request{move: m}:
	default:
		s.dropped.Add(1)
	}
}

func moveFromEvent(event log.Event) *Move {
	msg := event.Message
	if msg == nil || event.Direction != log.DirectionOut {
		return nil
	}
	switch msg.Kind {
	case wire.MoveCompleted, wire.MoveStopped, wire.MoveHomed:
	default:
		return nil
	}
	return &Move{
		Time:         event.Timestamp,
		Serial:       event.Serial,
		ConnectionID: event.ConnectionID,
		Channel:      event.Channel,
		Kind:         msg.Kind,
		Name:         msg.Name,
		Position:     msg.Position,
		Status:       msg.Status,
	}
}

// run writes queued moves until stopped, then drains the queue.
func (s *Store) run() {
	defer close(s.doneCh)
	for {
		select {
		case req := <-s.queue:
			s.handle(req)
		case <-s.stopCh:
			for {
				select {
				case req := <-s.queue:
					s.handle(req)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) handle(req request) {
	if req.sync != nil {
		close(req.sync)
		return
	}
	// A failed insert loses one history row; the mock keeps running.
	if err := s.insert(req.move); err != nil {
		s.failed.Add(1)
	}
}

func (s *Store) insert(m *Move) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pos, status sql.NullInt64
	if m.Position != nil {
		pos = sql.NullInt64{Int64: int64(*m.Position), Valid: true}
	}
	if m.Status != nil {
		status = sql.NullInt64{Int64: int64(*m.Status), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO moves (ts, serial, conn_id, channel, kind, name, position, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Time, m.Serial, m.ConnectionID, m.Channel, uint16(m.Kind), m.Name, pos, status)
	return err
}

// Sync waits until every move queued before the call is written.
func (s *Store) Sync(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case s.queue <- request{sync: done}:
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-s.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns the number of moves lost to a full queue.
func (s *Store) Dropped() int64 {
	return s.dropped.Load()
}

// Failed returns the number of moves the database rejected.
func (s *Store) Failed() int64 {
	return s.failed.Load()
}

// Moves returns matching moves, most recent first.
func (s *Store) Moves(ctx context.Context, q Query) ([]Move, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if q.Limit <= 0 {
		q.Limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, serial, conn_id, channel, kind, name, position, status
		FROM moves
		WHERE (? = 0 OR channel = ?) AND (? = 0 OR kind = ?)
		ORDER BY id DESC
		LIMIT ?
	`, q.Channel, q.Channel, uint16(q.Kind), uint16(q.Kind), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var moves []Move
	for rows.Next() {
		var m Move
		var serial sql.NullInt64
		var connID sql.NullString
		var kind uint16
		var pos, status sql.NullInt64

		if err := rows.Scan(&m.ID, &m.Time, &serial, &connID, &m.Channel, &kind, &m.Name, &pos, &status); err != nil {
			return nil, err
		}
		m.Kind = wire.Kind(kind)
		m.Serial = uint32(serial.Int64)
		m.ConnectionID = connID.String
		if pos.Valid {
			v := int32(pos.Int64)
			m.Position = &v
		}
		if status.Valid {
			v := wire.Status(status.Int64)
			m.Status = &v
		}
		moves = append(moves, m)
	}

	return moves, rows.Err()
}

// Stats counts end-of-move events per channel.
func (s *Store) Stats(ctx context.Context) ([]ChannelStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT channel,
		       SUM(kind = ?), SUM(kind = ?), SUM(kind = ?)
		FROM moves
		GROUP BY channel
		ORDER BY channel
	`, uint16(wire.MoveCompleted), uint16(wire.MoveStopped), uint16(wire.MoveHomed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ChannelStats
	for rows.Next() {
		var cs ChannelStats
		if err := rows.Scan(&cs.Channel, &cs.Completed, &cs.Stopped, &cs.Homed); err != nil {
			return nil, err
		}
		stats = append(stats, cs)
	}
	return stats, rows.Err()
}

// WorkerName identifies the writer in shutdown errors.
func (s *Store) WorkerName() string { return "journal writer" }

// SignalStop asks the writer to drain the queue and exit.
func (s *Store) SignalStop() {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopCh)
	})
}

// Done is closed once the writer has exited.
func (s *Store) Done() <-chan struct{} { return s.doneCh }

// Close stops the writer, waiting up to timeout for the queue to drain, and
// closes the database.
func (s *Store) Close(timeout time.Duration) error {
	sc := device.NewShutdownCoordinator(timeout)
	sc.Add(s)
	if err := sc.Shutdown(context.Background()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
