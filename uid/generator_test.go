package uid

import (
	"regexp"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestUUIDGenerator_Generate(t *testing.T) {
	tests := []struct {
		name        string
		options     *UUIDOptions
		pattern     string
		wantVersion uuid.Version
	}{
		{"nil options", nil, `^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, 4},
		{"v4 without hyphens", &UUIDOptions{Version: 4}, `^[0-9a-f]{32}$`, 4},
		{"v7 with hyphens", &UUIDOptions{Version: 7, WithHyphens: true}, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, 7},
		{"invalid version fallback to v4", &UUIDOptions{Version: 3, WithHyphens: true}, `^[0-9a-f-]{36}$`, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewUUIDGeneratorWithOptions(tt.options)
			s := gen.Generate()
			if !regexp.MustCompile(tt.pattern).MatchString(s) {
				t.Fatalf("generated UUID %s does not match %s", s, tt.pattern)
			}
			u, err := uuid.Parse(s)
			if err != nil {
				t.Fatalf("uuid.Parse(%s) failed: %v", s, err)
			}
			if u.Version() != tt.wantVersion {
				t.Errorf("expected version %d, got %d", tt.wantVersion, u.Version())
			}
		})
	}
}

func TestCUIDGenerator_Generate(t *testing.T) {
	gen := NewCUIDGenerator()
	pattern := regexp.MustCompile(`^c[0-9a-z]{24}$`)
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.Generate()
		if !pattern.MatchString(id) {
			t.Fatalf("cuid %s does not match %s", id, pattern)
		}
		if ids[id] {
			t.Fatalf("生成了重复的ID: %s", id)
		}
		ids[id] = true
	}
}

func TestSnowflakeGenerator_Generate(t *testing.T) {
	gen := NewSnowflakeGeneratorWithOptions(nil)

	id1 := gen.Generate()
	id2 := gen.Generate()
	if id1 >= id2 {
		t.Errorf("ID应该递增，但得到 id1=%d, id2=%d", id1, id2)
	}
	if ts := id1 >> timestampShift; ts <= 0 {
		t.Errorf("时间戳应该大于0，但得到 %d", ts)
	}
}

func TestSnowflakeGenerator_MachineID(t *testing.T) {
	for _, machineID := range []int64{123, 2048 + 5} {
		id := NewSnowflakeGeneratorWithOptions(&SnowflakeOptions{MachineID: &machineID}).Generate()
		if got := (id >> machineIDShift) & maxMachineID; got != machineID&maxMachineID {
			t.Errorf("期望机器ID为 %d，但得到 %d", machineID&maxMachineID, got)
		}
	}
}

func TestSnowflakeGenerator_Concurrent(t *testing.T) {
	gen := NewSnowflakeGeneratorWithOptions(nil)

	var mu sync.Mutex
	var wg sync.WaitGroup
	ids := make(map[int64]bool)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, 2000)
			for i := 0; i < 2000; i++ {
				local = append(local, gen.Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if ids[id] {
					t.Errorf("生成了重复的ID: %d", id)
				}
				ids[id] = true
			}
		}()
	}
	wg.Wait()
}

func TestTimestampSeqGenerator_Generate(t *testing.T) {
	gen := NewTimestampSeqGenerator()
	prev := gen.Generate()
	// 超过一毫秒的序列号容量，覆盖等待下一毫秒的分支
	for i := 0; i < 3*(maxSequence+1); i++ {
		id := gen.Generate()
		if id <= prev {
			t.Fatalf("ID应该递增，但得到 prev=%d, id=%d", prev, id)
		}
		prev = id
	}
}
