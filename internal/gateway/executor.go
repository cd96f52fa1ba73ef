package gateway

import (
	"log/slog"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Executor runs guild-scoped work. Tasks for one guild must run one at a
// time in submission order; different guilds may run in parallel.
type Executor interface {
	Submit(guild snowflake.ID, fn func())
}

// SerialExecutor keeps a FIFO per guild drained by at most one goroutine,
// which exits once the FIFO is empty. Submit never blocks on the task.
type SerialExecutor struct {
	mu     sync.Mutex
	queues map[snowflake.ID][]func()
	wg     sync.WaitGroup
}

func NewSerialExecutor() *SerialExecutor {
	return &SerialExecutor{queues: make(map[snowflake.ID][]func())}
}

func (e *SerialExecutor) Submit(guild snowflake.ID, fn func()) {
	e.mu.Lock()
	q, running := e.queues[guild]
	e.queues[guild] = append(q, fn)
	if !running {
		e.wg.Add(1)
		go e.drain(guild)
	}
	e.mu.Unlock()
}

func (e *SerialExecutor) drain(guild snowflake.ID) {
	defer e.wg.Done()
	for {
		e.mu.Lock()
		q := e.queues[guild]
		if len(q) == 0 {
			delete(e.queues, guild)
			e.mu.Unlock()
			return
		}
		fn := q[0]
		q[0] = nil
		e.queues[guild] = q[1:]
		e.mu.Unlock()

		run(guild, fn)
	}
}

// Wait blocks until every submitted task has run.
func (e *SerialExecutor) Wait() {
	e.wg.Wait()
}

func run(guild snowflake.ID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("guild task panic recovered", "guildID", guild, "panic", r)
		}
	}()
	fn()
}

// InlineExecutor runs tasks on the caller's goroutine.
type InlineExecutor struct{}

func (InlineExecutor) Submit(guild snowflake.ID, fn func()) {
	run(guild, fn)
}
