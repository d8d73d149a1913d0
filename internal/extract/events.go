package extract

import (
	"log"
	"time"

	"github.com/packagewjx/appd-extractor/internal/appd"
	"github.com/packagewjx/appd-extractor/internal/table"
)

const (
	// 事件接口单次请求的结果上限。超过上限时接口静默截断，
	// 调用方只能通过结果数恰好等于上限来推断。
	EventResultCap = 600

	// 默认请求窗口，在请求次数与单次响应大小之间折衷
	DefaultEventWindowMins = 240

	// 窗口二分的下限
	MinEventWindowMins = 5

	// 连续请求之间的间隔，避免触发接口限流
	DefaultEventRequestDelay = 500 * time.Millisecond
)

// EventSliceFunc 获取[startTimeMs, endTimeMs]时间片内的事件行。
// 生产实现调用控制器接口，测试中换成返回固定数据的实现。
type EventSliceFunc func(startTimeMs, endTimeMs int64) ([]table.Row, appd.Status)

// FetchWindowedEvents 用自适应窗口拉取totalDurationMins分钟内的全部事件。
// 时间片以游标从now向过去滑动，各片之间不重叠也没有空隙。
// 某一片的结果数达到上限时，把窗口减半（下限5分钟）重试一次，
// 重试后的结果无论多少都接受，剩余未覆盖部分由后续时间片继续处理。
// 单片失败按无事件处理，不会中断整个拉取。
func FetchWindowedEvents(fetch EventSliceFunc, totalDurationMins int, delay time.Duration, now time.Time, logger *log.Logger) *table.Table {
	result := table.New()
	if totalDurationMins <= 0 {
		return result
	}

	cursor := now
	remaining := totalDurationMins
	first := true

	for remaining > 0 {
		if !first && delay > 0 {
			time.Sleep(delay)
		}
		first = false

		window := remaining
		if window > DefaultEventWindowMins {
			window = DefaultEventWindowMins
		}

		end := cursor
		start := end.Add(-time.Duration(window) * time.Minute)
		rows, status := fetch(start.UnixMilli(), end.UnixMilli())

		if status == appd.StatusValid && len(rows) >= EventResultCap && window > MinEventWindowMins {
			window = window / 2
			if window < MinEventWindowMins {
				window = MinEventWindowMins
			}
			logger.Printf("时间片结果达到上限%d条，窗口减半为%d分钟后重试", EventResultCap, window)
			start = end.Add(-time.Duration(window) * time.Minute)
			rows, status = fetch(start.UnixMilli(), end.UnixMilli())
		}

		switch status {
		case appd.StatusValid:
			for _, row := range rows {
				result.Append(row)
			}
		case appd.StatusEmpty:
			// 这一片没有事件，正常情况
		default:
			logger.Printf("拉取%d分钟时间片失败，跳过该片继续", window)
		}

		cursor = start
		remaining -= window
	}

	return result
}
