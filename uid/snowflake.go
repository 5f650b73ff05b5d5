package uid

import (
	"net"
	"sync/atomic"
	"time"
)

type SnowflakeOptions struct {
	// MachineID 为 nil 时取本机 IPv4 地址的低 10 位
	MachineID *int64 `cfg:"machineID"`
}

// SnowflakeGenerator 64 位结构：1 位符号位 + 41 位时间戳 + 10 位机器 id + 12 位序列号
type SnowflakeGenerator struct {
	// 高 52 位时间戳，低 12 位序列号
	state     int64
	machineID int64
	epoch     int64
}

const (
	sequenceBits  = 12
	machineIDBits = 10

	maxSequence  = (1 << sequenceBits) - 1
	maxMachineID = (1 << machineIDBits) - 1

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits
)

var snowflakeEpoch = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

func NewSnowflakeGeneratorWithOptions(options *SnowflakeOptions) *SnowflakeGenerator {
	var machineID int64
	if options != nil && options.MachineID != nil {
		machineID = *options.MachineID
	} else {
		machineID = machineIDFromIP()
	}

	return &SnowflakeGenerator{
		state:     (time.Now().UnixMilli() - snowflakeEpoch) << sequenceBits,
		machineID: machineID & maxMachineID,
		epoch:     snowflakeEpoch,
	}
}

func machineIDFromIP() int64 {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return 0
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipv4 := ipnet.IP.To4(); ipv4 != nil {
				return int64(ipv4[2])<<8 | int64(ipv4[3])
			}
		}
	}
	return 0
}

func (g *SnowflakeGenerator) Generate() int64 {
	ts, seq := nextState(&g.state, func() int64 { return time.Now().UnixMilli() - g.epoch })
	return (ts << timestampShift) | (g.machineID << machineIDShift) | seq
}

// nextState 原子推进 时间戳+序列号 状态，同一毫秒内序列号用尽时等待下一毫秒
func nextState(state *int64, now func() int64) (int64, int64) {
	for {
		old := atomic.LoadInt64(state)
		oldTS := old >> sequenceBits
		oldSeq := old & maxSequence

		ts := now()
		var seq int64
		if ts <= oldTS {
			ts = oldTS
			seq = (oldSeq + 1) & maxSequence
			if seq == 0 {
				for ts <= oldTS {
					ts = now()
				}
			}
		}

		if atomic.CompareAndSwapInt64(state, old, (ts<<sequenceBits)|seq) {
			return ts, seq
		}
	}
}
