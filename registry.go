package schedcore

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"github.com/hollowfield-labs/schedcore/schederr"
)

// threadRegistry is a write-once table, grown on demand with no fixed
// capacity, mapping each registering goroutine to a Role and a stable
// integer identity. Exactly one LOOPER may register; any number of
// THREADPOOL goroutines may. Entries never change after registration,
// but every Lookup takes the table's read lock. Grounded on the teacher's
// loopGoroutineID atomic.Uint64 + isLoopThread() pattern (loop.go),
// generalised here from "is this the one loop goroutine" to "what role,
// if any, does this goroutine have".
type threadRegistry struct {
	mu       sync.RWMutex
	byGID    map[uint64]*registeredThread
	nextID   uint64
	looperID uint64 // 0 until the looper registers
}

type registeredThread struct {
	id   uint64
	role Role
	gid  uint64
}

func newThreadRegistry() *threadRegistry {
	return &threadRegistry{
		byGID: make(map[uint64]*registeredThread),
	}
}

// Register assigns an id to the calling goroutine under the given role.
// It fails with schederr.ErrRoleTaken if role is RoleLooper and a looper
// is already registered.
func (r *threadRegistry) Register(role Role) (uint64, error) {
	gid := currentGoroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byGID[gid]; ok {
		return existing.id, nil
	}

	if role == RoleLooper && r.looperID != 0 {
		return 0, schederr.NewConfigError("register_thread", schederr.ErrRoleTaken)
	}

	r.nextID++
	id := r.nextID
	r.byGID[gid] = &registeredThread{id: id, role: role, gid: gid}
	if role == RoleLooper {
		r.looperID = id
	}
	return id, nil
}

// Lookup returns the registered (id, role) for the calling goroutine.
func (r *threadRegistry) Lookup() (uint64, Role, bool) {
	gid := currentGoroutineID()
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byGID[gid]
	if !ok {
		return 0, RoleUnknown, false
	}
	return t.id, t.role, true
}

// currentGoroutineID parses the calling goroutine's id out of a small
// runtime.Stack trace. Grounded on the teacher's getGoroutineID
// (loop.go), which uses the same "goroutine N [running]:" parsing trick
// to identify the loop goroutine without cgo or a third-party dependency
// for something the runtime already prints.
func currentGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		return 0
	}
	b = b[len(prefix):]
	if idx := bytes.IndexByte(b, ' '); idx >= 0 {
		b = b[:idx]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
