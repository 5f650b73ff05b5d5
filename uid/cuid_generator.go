package uid

import (
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	cuidBase      = 36
	cuidBlockSize = 4
	// 36^4
	cuidBlockMax = 1679616
)

// CUIDGenerator 生成 25 位的 cuid：
//
//	c + 时间戳 + 计数器 + 机器指纹 + 8 位随机数
type CUIDGenerator struct {
	counter     uint64
	fingerprint string
}

func NewCUIDGenerator() *CUIDGenerator {
	return &CUIDGenerator{
		counter:     rand.Uint64N(cuidBlockMax),
		fingerprint: fingerprint(),
	}
}

func fingerprint() string {
	host, _ := os.Hostname()
	sum := len(host) + cuidBase
	for _, c := range host {
		sum += int(c)
	}
	return pad(strconv.Itoa(os.Getpid()), 2) + pad(strconv.FormatInt(int64(sum), cuidBase), 2)
}

func pad(s string, size int) string {
	if len(s) >= size {
		return s[len(s)-size:]
	}
	return strings.Repeat("0", size-len(s)) + s
}

func block(n uint64) string {
	return pad(strconv.FormatUint(n%cuidBlockMax, cuidBase), cuidBlockSize)
}

func (g *CUIDGenerator) Generate() string {
	var sb strings.Builder
	sb.Grow(25)
	sb.WriteByte('c')
	sb.WriteString(strconv.FormatInt(time.Now().UnixMilli(), cuidBase))
	sb.WriteString(block(atomic.AddUint64(&g.counter, 1)))
	sb.WriteString(g.fingerprint)
	sb.WriteString(block(rand.Uint64N(cuidBlockMax)))
	sb.WriteString(block(rand.Uint64N(cuidBlockMax)))
	return sb.String()
}
