package extract

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/packagewjx/appd-extractor/internal/appd"
	"github.com/packagewjx/appd-extractor/internal/table"
	"github.com/stretchr/testify/assert"
)

type fetchCall struct {
	startMs int64
	endMs   int64
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// 各时间片连在一起应当不重叠、无空隙地覆盖整个时间范围。
// 时间片锚定在显式的游标上而不是每次请求时的墙钟，
// 运行再慢也不会出现重叠抓取。
func TestFetchWindowedEventsCoversRange(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	var calls []fetchCall
	fetch := func(startMs, endMs int64) ([]table.Row, appd.Status) {
		calls = append(calls, fetchCall{startMs, endMs})
		return []table.Row{{"id": len(calls)}}, appd.StatusValid
	}

	result := FetchWindowedEvents(fetch, 500, 0, now, discardLogger())
	assert.Equal(t, 3, result.Len())

	// 500分钟 = 240 + 240 + 20
	if !assert.Len(t, calls, 3) {
		assert.FailNow(t, "unexpected call count")
	}
	assert.Equal(t, now.UnixMilli(), calls[0].endMs)
	for i, call := range calls {
		assert.Less(t, call.startMs, call.endMs)
		if i > 0 {
			// 上一片的起点就是这一片的终点
			assert.Equal(t, calls[i-1].startMs, call.endMs)
		}
	}
	totalMins := (calls[0].endMs - calls[len(calls)-1].startMs) / 60000
	assert.Equal(t, int64(500), totalMins)
}

// 结果数恰好到达上限说明响应被截断了，窗口减半重试一次
func TestFetchWindowedEventsHalvesOnCap(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	capped := make([]table.Row, EventResultCap)
	for i := range capped {
		capped[i] = table.Row{"id": i}
	}

	var calls []fetchCall
	fetch := func(startMs, endMs int64) ([]table.Row, appd.Status) {
		calls = append(calls, fetchCall{startMs, endMs})
		if len(calls) == 1 {
			return capped, appd.StatusValid
		}
		return []table.Row{{"id": "ok"}}, appd.StatusValid
	}

	result := FetchWindowedEvents(fetch, 240, 0, now, discardLogger())

	// 第一次240分钟被截断，重试一次120分钟；剩下120分钟由下一片处理
	if !assert.Len(t, calls, 3) {
		assert.FailNow(t, "unexpected call count")
	}
	windowMins := func(c fetchCall) int64 { return (c.endMs - c.startMs) / 60000 }
	assert.Equal(t, int64(240), windowMins(calls[0]))
	assert.Equal(t, int64(120), windowMins(calls[1]))
	assert.Equal(t, int64(120), windowMins(calls[2]))

	// 重试与第一次请求的终点相同
	assert.Equal(t, calls[0].endMs, calls[1].endMs)
	// 下一片紧接重试片的起点
	assert.Equal(t, calls[1].startMs, calls[2].endMs)

	// 重试结果即使仍然到达上限也只重试一次，这里接受2行
	assert.Equal(t, 2, result.Len())
}

// 窗口已经到下限时不再二分，照单全收
func TestFetchWindowedEventsRespectsFloor(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	capped := make([]table.Row, EventResultCap)
	for i := range capped {
		capped[i] = table.Row{"id": i}
	}

	callCount := 0
	fetch := func(startMs, endMs int64) ([]table.Row, appd.Status) {
		callCount++
		return capped, appd.StatusValid
	}

	result := FetchWindowedEvents(fetch, MinEventWindowMins, 0, now, discardLogger())
	assert.Equal(t, 1, callCount)
	assert.Equal(t, EventResultCap, result.Len())
}

// 单片失败只跳过该片，不影响其他时间片
func TestFetchWindowedEventsSkipsFailedSlice(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	callCount := 0
	fetch := func(startMs, endMs int64) ([]table.Row, appd.Status) {
		callCount++
		if callCount == 1 {
			return nil, appd.StatusError
		}
		return []table.Row{{"id": callCount}}, appd.StatusValid
	}

	result := FetchWindowedEvents(fetch, 480, 0, now, discardLogger())
	assert.Equal(t, 2, callCount)
	assert.Equal(t, 1, result.Len())
}

func TestFetchWindowedEventsEmptyDuration(t *testing.T) {
	fetch := func(startMs, endMs int64) ([]table.Row, appd.Status) {
		assert.FailNow(t, "fetch should not be called")
		return nil, appd.StatusEmpty
	}
	result := FetchWindowedEvents(fetch, 0, 0, time.Now(), discardLogger())
	assert.Equal(t, 0, result.Len())
}
