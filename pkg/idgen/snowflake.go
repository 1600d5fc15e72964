package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
// Used for outbox event ids: unique per worker, roughly time ordered.
//
//   0 - 41 bit timestamp (ms) - 10 bit worker id - 12 bit sequence
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	now       func() time.Time
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultSnowflake = &Snowflake{workerID: 1, now: time.Now}
	initOnce         sync.Once
)

// NewSnowflake returns a generator for workerID (0-1023).
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID, now: time.Now}, nil
}

// Init replaces the process-wide generator. Only the first call has effect.
func Init(workerID int64) error {
	sf, err := NewSnowflake(workerID)
	if err != nil {
		return err
	}
	initOnce.Do(func() {
		defaultSnowflake = sf
	})
	return nil
}

// NextID 生成下一个ID
func NextID() int64 {
	return defaultSnowflake.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	if now < s.timestamp {
		// clock moved backwards; stay on the last issued millisecond
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，借用下一毫秒；时钟回拨期间也不会阻塞
			now = s.timestamp + 1
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}
