package idgen

import (
	"strings"
	"testing"
)

func TestNextIDUnique(t *testing.T) {
	seen := make(map[int64]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := NextID()
		if _, dup := seen[id]; dup {
			t.Fatalf("重复ID: %d", id)
		}
		seen[id] = struct{}{}
	}
}

func TestGenerateInvestmentNo(t *testing.T) {
	no := GenerateInvestmentNo()
	if !strings.HasPrefix(no, "INV") {
		t.Errorf("投资单号前缀错误: %s", no)
	}
	// INV + 14位时间 + 8位序号
	if len(no) != 25 {
		t.Errorf("投资单号长度 = %d, want 25: %s", len(no), no)
	}
}

func TestGenerateEntryNo(t *testing.T) {
	no := GenerateEntryNo()
	if !strings.HasPrefix(no, "LGR") {
		t.Errorf("流水号前缀错误: %s", no)
	}
	if no2 := GenerateEntryNo(); no2 == no {
		t.Errorf("连续生成的流水号重复: %s", no)
	}
}
