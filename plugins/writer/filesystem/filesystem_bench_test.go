package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"stopscan/pkg/contract"
)

// BenchmarkWrite 不同结果块尺寸下的写入性能。
func BenchmarkWrite(b *testing.B) {
	for _, sz := range []int{4, 4 * 1 << 16} {
		b.Run(fmt.Sprintf("size=%d", sz), func(b *testing.B) {
			data := bytes.Repeat([]byte{7}, sz)
			w, err := New(&Options{OutputDir: b.TempDir()})
			if err != nil {
				b.Fatalf("创建 Writer 失败: %v", err)
			}
			id := contract.ArtifactID("task-1-65537.bin")
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Write(ctx, id, bytes.NewReader(data)); err != nil {
					b.Fatalf("写入失败: %v", err)
				}
			}
		})
	}
}
