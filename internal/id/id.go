package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu   sync.Mutex
	mono io.Reader
)

func init() {
	// Seed a PRNG from crypto/rand so ULID entropy is unpredictable.
	// ulid.Monotonic keeps IDs generated within the same millisecond
	// lexicographically increasing.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	mono = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// New returns a ULID string (time-sortable identifier). Used for run IDs,
// where wall-clock entropy is fine.
func New() string {
	mu.Lock()
	defer mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), mono)
	if err != nil {
		// Errors are extremely unlikely unless time goes backwards or entropy fails.
		panic(err)
	}
	return id.String()
}

// Sequence generates deterministic ULIDs stamped with simulated time.
// Two sequences built from the same seed emit identical IDs for identical
// inputs, which keeps trade logs byte-identical across reruns.
type Sequence struct {
	mono io.Reader
}

func NewSequence(seed int64) *Sequence {
	return &Sequence{
		mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0),
	}
}

// At returns the next ID stamped with the given (simulated) time.
func (s *Sequence) At(t time.Time) string {
	id, err := ulid.New(ulid.Timestamp(t.UTC()), s.mono)
	if err != nil {
		panic(err)
	}
	return id.String()
}
