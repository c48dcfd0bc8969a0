package idgen

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// 雪花算法 ID：41位毫秒时间戳 | 10位机器ID | 12位序列号
// 流水号、消息键都基于它生成，保证全局唯一且趋势递增。

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
	now       func() int64
}

var (
	defaultMu        sync.Mutex
	defaultGenerator *Snowflake
)

// New 创建生成器，workerID 取值 0-1023
func New(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID 必须在 0-%d 之间: %d", maxWorkerID, workerID)
	}
	return &Snowflake{
		workerID: workerID,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Init 设置默认生成器的机器ID，多实例部署时每个实例应不同
func Init(workerID int64) error {
	g, err := New(workerID)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultGenerator = g
	defaultMu.Unlock()
	return nil
}

func defaultSnowflake() *Snowflake {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultGenerator == nil {
		defaultGenerator, _ = New(1)
	}
	return defaultGenerator
}

// NextID 使用默认生成器生成下一个ID
func NextID() int64 {
	return defaultSnowflake().Generate()
}

func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// 时钟回拨时沿用上次时间戳，靠序列号保证不重复
	if now < s.timestamp {
		now = s.timestamp
	}

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = s.now()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateTransactionNo 生成流水号，格式 TXN + 十进制雪花ID
func GenerateTransactionNo() string {
	return "TXN" + strconv.FormatInt(NextID(), 10)
}
