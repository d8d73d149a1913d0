package extract

import "sort"

// 事件接口支持的严重级别
var SeverityLevels = []string{"INFO", "WARN", "ERROR"}

const EventTypeCustom = "CUSTOM"

// EventTypeGroups 是按类别整理的常见事件类型。控制器文档没有穷举全部类型，
// 不同版本可能多出或缺少若干项，这里按类别列出常见集合供筛选。
var EventTypeGroups = map[string][]string{
	"Application": {
		"APPLICATION_ERROR",
		"APPLICATION_DEPLOYMENT",
		"APPLICATION_CONFIG_CHANGE",
		EventTypeCustom,
	},
	"Diagnostics": {
		"DIAGNOSTIC_SESSION",
		"ERROR_DIAGNOSTIC_SESSION",
		"SLOW_DIAGNOSTIC_SESSION",
		"DEADLOCK",
		"MEMORY_LEAK_DIAGNOSTICS",
	},
	"Discovery": {
		"BACKEND_DISCOVERED",
		"SERVICE_ENDPOINT_DISCOVERED",
	},
	"Agent": {
		"AGENT_EVENT",
		"AGENT_STATUS",
		"AGENT_CONFIGURATION",
	},
	"Policy": {
		"POLICY_OPEN_WARNING",
		"POLICY_OPEN_CRITICAL",
		"POLICY_CLOSE_WARNING",
		"POLICY_CLOSE_CRITICAL",
	},
}

// AllEventTypes 返回去重并排序后的全部已知事件类型。
func AllEventTypes() []string {
	set := make(map[string]struct{})
	for _, group := range EventTypeGroups {
		for _, eventType := range group {
			set[eventType] = struct{}{}
		}
	}
	result := make([]string, 0, len(set))
	for eventType := range set {
		result = append(result, eventType)
	}
	sort.Strings(result)
	return result
}
